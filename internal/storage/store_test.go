package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mike-a-ellis/ragtrack/internal/embedding"
	"github.com/mike-a-ellis/ragtrack/internal/testutil"
)

type failingPersister struct {
	saves int
}

func (p *failingPersister) Save(*Snapshot) error {
	p.saves++
	return errors.New("disk full")
}

func (p *failingPersister) Load() (*Snapshot, error) {
	return nil, ErrSnapshotNotFound
}

type fixedEmbedder struct {
	vectors [][]float32
}

func (e fixedEmbedder) GenerateEmbeddings(context.Context, []string) ([][]float32, error) {
	return e.vectors, nil
}

func TestAddSource_AppendsAndPersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "embeddings", "store.bin")
	store := NewStore(NewFilePersister(path))
	emb := &testutil.HashEmbedder{}

	h1, err := store.AddSource(ctx, "https://a.test", "alpha beta", []string{"alpha", "beta"}, emb)
	require.NoError(t, err)
	h2, err := store.AddSource(ctx, "https://b.test", "gamma", []string{"gamma"}, emb)
	require.NoError(t, err)

	assert.Equal(t, SourceHandle(1), h1)
	assert.Equal(t, SourceHandle(2), h2)
	assert.Equal(t, 2, store.Len())
	assert.Equal(t, 3, store.ChunkCount())
	assert.Equal(t, testutil.Dimension, store.Dimension())
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, emb.Texts)

	// The file on disk reflects both sources
	reloaded, err := Open(NewFilePersister(path))
	require.NoError(t, err)
	assert.Equal(t, store.Snapshot(), reloaded.Snapshot())
}

func TestAddSource_EmptyChunksShortCircuit(t *testing.T) {
	store := NewStore(nil)
	emb := &testutil.HashEmbedder{}

	h, err := store.AddSource(context.Background(), "https://empty.test", "", nil, emb)
	require.NoError(t, err)
	assert.Equal(t, SourceHandle(1), h)
	assert.Equal(t, 0, emb.Calls, "zero chunks must not call the embedder")
	assert.Equal(t, 0, store.ChunkCount())

	vecs, ok := store.Vectors("https://empty.test")
	require.True(t, ok)
	assert.Empty(t, vecs)
}

func TestAddSource_EmbeddingFailureLeavesStoreUnchanged(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil)
	emb := &testutil.HashEmbedder{}

	_, err := store.AddSource(ctx, "https://a.test", "ok", []string{"ok"}, emb)
	require.NoError(t, err)
	before := store.Snapshot()

	emb.FailOn = "poison"
	_, err = store.AddSource(ctx, "https://b.test", "fine poison", []string{"fine", "poison"}, emb)
	require.Error(t, err)
	assert.ErrorIs(t, err, embedding.ErrEmbeddingFailure)
	assert.Equal(t, before, store.Snapshot())
	assert.Equal(t, 1, store.Len())
}

func TestAddSource_MalformedVectors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		vectors [][]float32
		target  error
	}{
		{"too few", [][]float32{{1, 0}}, embedding.ErrEmbeddingFailure},
		{"empty vector", [][]float32{{1, 0}, {}}, embedding.ErrEmbeddingFailure},
		{"mixed dimensions", [][]float32{{1, 0}, {1, 0, 0}}, ErrDimensionMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewStore(nil)
			_, err := store.AddSource(ctx, "https://a.test", "x y", []string{"x", "y"}, fixedEmbedder{tt.vectors})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.target)
			assert.True(t, store.IsEmpty())
		})
	}
}

func TestAddSource_DimensionMustMatchExisting(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil)

	_, err := store.AddSource(ctx, "https://a.test", "x", []string{"x"}, fixedEmbedder{[][]float32{{1, 0}}})
	require.NoError(t, err)

	_, err = store.AddSource(ctx, "https://b.test", "y", []string{"y"}, fixedEmbedder{[][]float32{{1, 0, 0}}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.ErrorIs(t, err, embedding.ErrEmbeddingFailure)
	assert.Equal(t, 1, store.Len())
}

func TestAddSource_DuplicateRejected(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil)
	emb := &testutil.HashEmbedder{}

	_, err := store.AddSource(ctx, "https://a.test", "first", []string{"first"}, emb)
	require.NoError(t, err)

	_, err = store.AddSource(ctx, "https://a.test", "second", []string{"second"}, emb)
	assert.ErrorIs(t, err, ErrDuplicateSource)
	assert.Equal(t, 1, emb.Calls, "duplicate must be rejected before embedding")

	src, ok := store.Get("https://a.test")
	require.True(t, ok)
	assert.Equal(t, "first", src.FullText)
}

func TestAddSource_PersistFailureRollsBack(t *testing.T) {
	p := &failingPersister{}
	store := NewStore(p)

	_, err := store.AddSource(context.Background(), "https://a.test", "x", []string{"x"}, &testutil.HashEmbedder{})
	require.Error(t, err)
	assert.Equal(t, 1, p.saves)
	assert.True(t, store.IsEmpty())
	_, ok := store.Get("https://a.test")
	assert.False(t, ok)
}

func TestAddSource_RequiresID(t *testing.T) {
	_, err := NewStore(nil).AddSource(context.Background(), "", "x", []string{"x"}, &testutil.HashEmbedder{})
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil)
	emb := &testutil.HashEmbedder{}
	for _, id := range []string{"https://a.test", "https://b.test"} {
		_, err := store.AddSource(ctx, id, id, []string{id}, emb)
		require.NoError(t, err)
	}

	id, err := store.Resolve(2)
	require.NoError(t, err)
	assert.Equal(t, "https://b.test", id)

	for _, h := range []SourceHandle{0, -1, 3} {
		_, err := store.Resolve(h)
		assert.ErrorIs(t, err, ErrInvalidSourceIndex, "handle %d", h)
	}
}

func TestScan_OrderAndFilter(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil)
	emb := &testutil.HashEmbedder{}
	_, err := store.AddSource(ctx, "https://a.test", "a0 a1", []string{"a0", "a1"}, emb)
	require.NoError(t, err)
	_, err = store.AddSource(ctx, "https://b.test", "b0", []string{"b0"}, emb)
	require.NoError(t, err)

	var all []string
	require.NoError(t, store.Scan(AllSources, func(e Entry) {
		all = append(all, e.Text)
	}))
	assert.Equal(t, []string{"a0", "a1", "b0"}, all)

	var second []Entry
	require.NoError(t, store.Scan(2, func(e Entry) {
		second = append(second, e)
	}))
	require.Len(t, second, 1)
	assert.Equal(t, "https://b.test", second[0].SourceID)
	assert.Equal(t, SourceHandle(2), second[0].Handle)
	assert.Equal(t, 0, second[0].ChunkIndex)

	assert.ErrorIs(t, store.Scan(5, func(Entry) {}), ErrInvalidSourceIndex)
}

func TestSources(t *testing.T) {
	store := NewStore(nil)
	_, err := store.AddSource(context.Background(), "https://a.test", "hello world", []string{"hello world"}, &testutil.HashEmbedder{})
	require.NoError(t, err)

	infos := store.Sources()
	require.Len(t, infos, 1)
	assert.Equal(t, SourceHandle(1), infos[0].Handle)
	assert.Equal(t, "https://a.test", infos[0].ID)
	assert.Equal(t, 1, infos[0].Chunks)
	assert.Equal(t, 11, infos[0].Chars)
	assert.False(t, infos[0].AddedAt.IsZero())
}

func TestOpen_MissingFileIsEmpty(t *testing.T) {
	store, err := Open(NewFilePersister(filepath.Join(t.TempDir(), "nope.bin")))
	require.NoError(t, err)
	assert.True(t, store.IsEmpty())
}

package answer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mike-a-ellis/ragtrack/internal/chunker"
	"github.com/mike-a-ellis/ragtrack/internal/embedding"
	"github.com/mike-a-ellis/ragtrack/internal/generation"
	"github.com/mike-a-ellis/ragtrack/internal/search"
	"github.com/mike-a-ellis/ragtrack/internal/storage"
	"github.com/mike-a-ellis/ragtrack/internal/testutil"
)

func newEngine(t *testing.T, sources map[string]string, order []string) (*Engine, *testutil.HashEmbedder, *testutil.ScriptedGenerator) {
	t.Helper()
	store := storage.NewStore(nil)
	emb := &testutil.HashEmbedder{}
	for _, id := range order {
		text := sources[id]
		_, err := store.AddSource(context.Background(), id, text, chunker.Split(text, chunker.DefaultWindow, chunker.DefaultStride), emb)
		require.NoError(t, err)
	}
	gen := &testutil.ScriptedGenerator{Replies: []string{"The deadline is March 1."}}
	return NewEngine(Config{Store: store, Embedder: emb, Generator: gen}), emb, gen
}

func TestAnswer_EmptyStoreReturnsNoData(t *testing.T) {
	emb := &testutil.HashEmbedder{}
	gen := &testutil.ScriptedGenerator{}
	e := NewEngine(Config{Store: storage.NewStore(nil), Embedder: emb, Generator: gen})

	res, err := e.Answer(context.Background(), "What is the deadline?", storage.AllSources)
	require.NoError(t, err)
	assert.Equal(t, StatusNoData, res.Status)
	assert.Equal(t, NoDataText, res.Text)
	assert.Equal(t, 0, emb.Calls, "embedder must not be called")
	assert.Empty(t, gen.Prompts, "generator must not be called")
}

func TestAnswer_GroundedPrompt(t *testing.T) {
	e, _, gen := newEngine(t, map[string]string{
		"https://a.test": "The deadline is March 1. Apply early.",
	}, []string{"https://a.test"})

	res, err := e.Answer(context.Background(), "What is the deadline?", storage.AllSources)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "The deadline is March 1.", res.Text)
	require.Len(t, res.Chunks, 1)

	require.Len(t, gen.Prompts, 1)
	want := "Answer based on this context:\n\n" +
		"[https://a.test]:\nThe deadline is March 1. Apply early." +
		"\n\nQuestion: What is the deadline?\n\nAnswer:"
	assert.Equal(t, want, gen.Prompts[0])
}

func TestAnswer_ReturnsOutputVerbatim(t *testing.T) {
	e, _, gen := newEngine(t, map[string]string{"https://a.test": "text"}, []string{"https://a.test"})
	gen.Replies = []string{"  ```json\n{\"broken\": \n```  "}

	res, err := e.Answer(context.Background(), "q", storage.AllSources)
	require.NoError(t, err)
	assert.Equal(t, "  ```json\n{\"broken\": \n```  ", res.Text)
}

func TestAnswer_UsesTopKAndFilter(t *testing.T) {
	long := strings.Repeat("alpha beta gamma delta ", 300)
	e, _, gen := newEngine(t, map[string]string{
		"https://a.test": long,
		"https://b.test": "only source two talks about zebras",
	}, []string{"https://a.test", "https://b.test"})

	res, err := e.Answer(context.Background(), "alpha", storage.AllSources)
	require.NoError(t, err)
	assert.Len(t, res.Chunks, search.DefaultTopK)
	assert.Equal(t, search.DefaultTopK, strings.Count(gen.Prompts[0], "[https://"))

	res, err = e.Answer(context.Background(), "alpha", 2)
	require.NoError(t, err)
	require.Len(t, res.Chunks, 1)
	assert.Equal(t, "https://b.test", res.Chunks[0].SourceID)
	assert.NotContains(t, gen.Prompts[1], "[https://a.test]")
}

func TestAnswer_Errors(t *testing.T) {
	e, emb, gen := newEngine(t, map[string]string{"https://a.test": "text"}, []string{"https://a.test"})

	_, err := e.Answer(context.Background(), "q", 7)
	assert.ErrorIs(t, err, storage.ErrInvalidSourceIndex)

	gen.Err = generation.ErrGenerationFailure
	_, err = e.Answer(context.Background(), "q", storage.AllSources)
	assert.ErrorIs(t, err, generation.ErrGenerationFailure)

	emb.Err = errors.New("connection refused")
	_, err = e.Answer(context.Background(), "q", storage.AllSources)
	assert.ErrorIs(t, err, embedding.ErrEmbeddingFailure)
}

func TestBuildContext(t *testing.T) {
	ctx := BuildContext([]search.Result{
		{SourceID: "https://a.test", Text: "first", Score: 0.9},
		{SourceID: "https://b.test", Text: "second", Score: 0.4},
	})
	assert.Equal(t, "[https://a.test]:\nfirst\n\n[https://b.test]:\nsecond", ctx)
	assert.Equal(t, "", BuildContext(nil))
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "ok", StatusOK.String())
	assert.Equal(t, "no_data", StatusNoData.String())
}

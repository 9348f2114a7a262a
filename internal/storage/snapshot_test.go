package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSnapshot() *Snapshot {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &Snapshot{
		Sources: map[string]*Source{
			"https://a.test": {ID: "https://a.test", FullText: "alpha beta", Chunks: []string{"alpha", "beta"}, AddedAt: at},
			"https://b.test": {ID: "https://b.test", FullText: "gamma", Chunks: []string{"gamma"}, AddedAt: at.Add(time.Minute)},
			"https://c.test": {ID: "https://c.test", FullText: "", Chunks: []string{}, AddedAt: at.Add(2 * time.Minute)},
		},
		Embeddings: map[string][][]float32{
			"https://a.test": {{0.1, -0.2, 3.5}, {1e-7, 0, -1}},
			"https://b.test": {{42, 0.5, -0.25}},
			"https://c.test": {},
		},
		Order: []string{"https://b.test", "https://a.test", "https://c.test"},
	}
}

func TestSnapshot_RoundTrip(t *testing.T) {
	snap := sampleSnapshot()
	data, err := snap.MarshalBinary()
	require.NoError(t, err)

	decoded, err := DecodeSnapshot(data)
	require.NoError(t, err)
	assert.Equal(t, snap.Order, decoded.Order)
	assert.Equal(t, snap.Embeddings, decoded.Embeddings)
	for id, src := range snap.Sources {
		got := decoded.Sources[id]
		require.NotNil(t, got, id)
		assert.Equal(t, src.ID, got.ID)
		assert.Equal(t, src.FullText, got.FullText)
		assert.Equal(t, src.Chunks, got.Chunks)
		assert.True(t, src.AddedAt.Equal(got.AddedAt), "AddedAt for %s", id)
	}
}

func TestSnapshot_EncodingIsDeterministic(t *testing.T) {
	a, err := sampleSnapshot().MarshalBinary()
	require.NoError(t, err)
	b, err := sampleSnapshot().MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestStore_PersistAndReloadIdentical(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.bin")
	store := NewStore(NewFilePersister(path))

	vectors := map[string][][]float32{
		"https://a.test": {{1, 2, 3}, {4, 5, 6}},
		"https://b.test": {{-1, 0.5, 0.25}},
	}
	_, err := store.AddSource(context.Background(), "https://a.test", "one two", []string{"one", "two"}, fixedEmbedder{vectors["https://a.test"]})
	require.NoError(t, err)
	_, err = store.AddSource(context.Background(), "https://b.test", "three", []string{"three"}, fixedEmbedder{vectors["https://b.test"]})
	require.NoError(t, err)

	reloaded, err := Open(NewFilePersister(path))
	require.NoError(t, err)

	assert.Equal(t, store.Sources(), reloaded.Sources())
	for id, want := range vectors {
		got, ok := reloaded.Vectors(id)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
}

func TestDecodeSnapshot_RejectsInconsistentState(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *Snapshot)
	}{
		{"missing order entry", func(s *Snapshot) { s.Order = s.Order[:2] }},
		{"duplicate order entry", func(s *Snapshot) { s.Order[2] = s.Order[0] }},
		{"missing embeddings", func(s *Snapshot) { delete(s.Embeddings, "https://a.test") }},
		{"vector count mismatch", func(s *Snapshot) {
			s.Embeddings["https://a.test"] = s.Embeddings["https://a.test"][:1]
		}},
		{"mismatched keys", func(s *Snapshot) {
			s.Embeddings["https://z.test"] = s.Embeddings["https://c.test"]
			delete(s.Embeddings, "https://c.test")
		}},
		{"mixed dimensions", func(s *Snapshot) {
			s.Embeddings["https://b.test"] = [][]float32{{1, 2}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := sampleSnapshot()
			tt.mutate(snap)
			data, err := snap.MarshalBinary()
			require.NoError(t, err)

			_, err = DecodeSnapshot(data)
			assert.ErrorIs(t, err, ErrCorruptState)
		})
	}
}

func TestDecodeSnapshot_RejectsMalformedBytes(t *testing.T) {
	good, err := sampleSnapshot().MarshalBinary()
	require.NoError(t, err)

	tests := map[string][]byte{
		"empty":     {},
		"bad magic": append([]byte("NOPE"), good[4:]...),
		"truncated": good[:len(good)-3],
		"trailing":  append(append([]byte{}, good...), 0x01),
		"version":   append(append([]byte{}, good[:4]...), append([]byte{9, 0}, good[6:]...)...),
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeSnapshot(data)
			assert.ErrorIs(t, err, ErrCorruptState)
		})
	}
}

func TestFilePersister_AtomicRewrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "store.bin")
	p := NewFilePersister(path)

	require.NoError(t, p.Save(sampleSnapshot()))
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	snap := sampleSnapshot()
	snap.Sources["https://d.test"] = &Source{ID: "https://d.test", Chunks: []string{}}
	snap.Embeddings["https://d.test"] = [][]float32{}
	snap.Order = append(snap.Order, "https://d.test")
	require.NoError(t, p.Save(snap))

	second, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, bytes.Equal(first, second))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")

	loaded, err := p.Load()
	require.NoError(t, err)
	assert.Len(t, loaded.Order, 4)
}

func TestOpen_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.bin")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))

	_, err := Open(NewFilePersister(path))
	assert.ErrorIs(t, err, ErrCorruptState)
}

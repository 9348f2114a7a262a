package search

import (
	"context"
	"fmt"

	"github.com/mike-a-ellis/ragtrack/internal/storage"
)

// ChunkSearcher is a vector database holding a mirror of the store.
type ChunkSearcher interface {
	SearchChunks(ctx context.Context, query []float32, limit int, sourceID string) ([]*storage.ScoredChunk, error)
}

// Remote answers searches from a mirrored vector database.
// Filters are resolved against the local store so handles mean the same thing for both backends.
type Remote struct {
	store   *storage.Store
	backend ChunkSearcher
}

// NewRemote creates an index backed by a mirrored collection.
func NewRemote(store *storage.Store, backend ChunkSearcher) *Remote {
	return &Remote{store: store, backend: backend}
}

// Search resolves the filter, queries the backend and re-ranks with the local tie-break.
// The backend is asked for twice k hits so that score ties around the k-th result are
// settled by the local tie-break. Fewer hits than the store holds in scope means the
// mirror is stale and is reported as ErrMirrorOutOfSync rather than an empty context.
func (r *Remote) Search(ctx context.Context, query []float32, k int, filter storage.SourceHandle) ([]Result, error) {
	if k <= 0 {
		k = DefaultTopK
	}

	var sourceID string
	if filter != storage.AllSources {
		id, err := r.store.Resolve(filter)
		if err != nil {
			return nil, err
		}
		sourceID = id
	}
	if r.store.IsEmpty() {
		return []Result{}, nil
	}

	inScope := r.chunksInScope(sourceID)
	chunks, err := r.backend.SearchChunks(ctx, query, min(2*k, inScope), sourceID)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(chunks))
	for _, c := range chunks {
		if sourceID != "" && c.SourceID != sourceID {
			continue
		}
		results = append(results, Result{
			Score:      c.Score,
			SourceID:   c.SourceID,
			Handle:     c.Handle,
			ChunkIndex: c.ChunkIndex,
			Text:       c.Content,
		})
	}

	if want := min(k, inScope); len(results) < want {
		return nil, fmt.Errorf("%w: got %d hits, store has %d chunks in scope", storage.ErrMirrorOutOfSync, len(results), inScope)
	}

	return rank(results, k), nil
}

func (r *Remote) chunksInScope(sourceID string) int {
	if sourceID == "" {
		return r.store.ChunkCount()
	}
	vecs, _ := r.store.Vectors(sourceID)
	return len(vecs)
}

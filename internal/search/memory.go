package search

import (
	"context"
	"fmt"
	"math"

	"github.com/mike-a-ellis/ragtrack/internal/storage"
)

// Memory is a brute-force index that scans the store on every query.
// It keeps no state of its own, so it always reflects the latest store contents.
type Memory struct {
	store *storage.Store
}

// NewMemory creates a brute-force index over store.
func NewMemory(store *storage.Store) *Memory {
	return &Memory{store: store}
}

// Search scores every chunk in scope against query.
func (m *Memory) Search(ctx context.Context, query []float32, k int, filter storage.SourceHandle) ([]Result, error) {
	if k <= 0 {
		k = DefaultTopK
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var qnorm float64
	for _, v := range query {
		qnorm += float64(v) * float64(v)
	}
	qnorm = math.Sqrt(qnorm)

	results := []Result{}
	var mismatch error
	err := m.store.Scan(filter, func(e storage.Entry) {
		if len(e.Vector) != len(query) {
			if mismatch == nil {
				mismatch = fmt.Errorf("%w: query has %d dimensions, stored vectors have %d",
					storage.ErrDimensionMismatch, len(query), len(e.Vector))
			}
			return
		}
		results = append(results, Result{
			Score:      cosineWithNorm(query, qnorm, e.Vector),
			SourceID:   e.SourceID,
			Handle:     e.Handle,
			ChunkIndex: e.ChunkIndex,
			Text:       e.Text,
		})
	})
	if err != nil {
		return nil, err
	}
	if mismatch != nil {
		return nil, mismatch
	}

	return rank(results, k), nil
}

// cosineWithNorm is Cosine with the query norm computed once per search.
func cosineWithNorm(q []float32, qnorm float64, e []float32) float64 {
	var dot, enorm float64
	for i := range q {
		y := float64(e[i])
		dot += float64(q[i]) * y
		enorm += y * y
	}
	if qnorm == 0 || enorm == 0 {
		return 0
	}
	return dot / (qnorm * math.Sqrt(enorm))
}

// Package search ranks stored chunks by cosine similarity to a query vector.
package search

import (
	"context"
	"math"
	"sort"

	"github.com/mike-a-ellis/ragtrack/internal/storage"
)

// DefaultTopK is the number of chunks returned when k is not positive.
const DefaultTopK = 8

// Result is one ranked chunk.
type Result struct {
	Score      float64
	SourceID   string
	Handle     storage.SourceHandle
	ChunkIndex int
	Text       string
}

// Index finds the k chunks most similar to query, optionally within one source.
// Results are sorted by score descending; equal scores keep ingestion order.
type Index interface {
	Search(ctx context.Context, query []float32, k int, filter storage.SourceHandle) ([]Result, error)
}

// Cosine returns dot(a, b) / (|a| * |b|). Vectors of different length or zero norm score 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// rank sorts results by score descending, breaking ties by handle then chunk index,
// and keeps the first k.
func rank(results []Result, k int) []Result {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Handle != results[j].Handle {
			return results[i].Handle < results[j].Handle
		}
		return results[i].ChunkIndex < results[j].ChunkIndex
	})
	if k < len(results) {
		results = results[:k]
	}
	return results
}

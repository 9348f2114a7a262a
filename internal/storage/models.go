// Package storage owns the ingested sources, their chunk vectors and the order they were added in.
package storage

import "time"

// SourceHandle is the 1-based position of a source in ingestion order.
// The zero value means "all sources" wherever a filter is accepted.
type SourceHandle int

// AllSources is the SourceHandle that disables source filtering.
const AllSources SourceHandle = 0

// Source is one ingested document. It is immutable once added.
type Source struct {
	ID       string    // Stable key, usually the URL it was scraped from
	FullText string    // Cleaned document text
	Chunks   []string  // Ordered windows of FullText; chunk i pairs with vector i
	AddedAt  time.Time // When the source was added
}

// SourceInfo summarizes a source for listings.
type SourceInfo struct {
	Handle  SourceHandle
	ID      string
	Chunks  int
	Chars   int
	AddedAt time.Time
}

// Entry is one chunk visited by Store.Scan.
// Vector aliases store memory and must not be modified.
type Entry struct {
	Handle     SourceHandle
	SourceID   string
	ChunkIndex int
	Text       string
	Vector     []float32
}

// ScoredChunk is a chunk returned by a remote vector search.
type ScoredChunk struct {
	SourceID   string
	Handle     SourceHandle
	ChunkIndex int
	Content    string
	Score      float64
}

// CollectionName is the Qdrant collection mirroring the store.
const CollectionName = "ragtrack_chunks"

package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mike-a-ellis/ragtrack/internal/embedding"
)

// Embedder turns chunk texts into vectors, one per text, in input order.
type Embedder interface {
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// Persister saves and restores the whole store.
type Persister interface {
	Save(snap *Snapshot) error
	Load() (*Snapshot, error)
}

// Store holds every source, its chunk vectors and the ingestion order.
// Sources are only ever appended; each append is flushed to the Persister before it is visible.
type Store struct {
	writeMu sync.Mutex // serializes AddSource calls
	mu      sync.RWMutex

	sources    map[string]*Source
	embeddings map[string][][]float32
	order      []string

	persister Persister
	now       func() time.Time
}

// NewStore creates an empty store. A nil persister keeps the store in memory only.
func NewStore(persister Persister) *Store {
	return &Store{
		sources:    make(map[string]*Source),
		embeddings: make(map[string][][]float32),
		persister:  persister,
		now:        time.Now,
	}
}

// Open loads the store from persister. A missing file yields an empty store.
func Open(persister Persister) (*Store, error) {
	s := NewStore(persister)
	if persister == nil {
		return s, nil
	}

	snap, err := persister.Load()
	if err != nil {
		if errors.Is(err, ErrSnapshotNotFound) {
			return s, nil
		}
		return nil, err
	}
	return FromSnapshot(snap, persister)
}

// FromSnapshot builds a store from a validated snapshot. Later adds are saved through persister.
func FromSnapshot(snap *Snapshot, persister Persister) (*Store, error) {
	if err := snap.Validate(); err != nil {
		return nil, err
	}

	s := NewStore(persister)
	for id, src := range snap.Sources {
		s.sources[id] = src
	}
	for id, vecs := range snap.Embeddings {
		s.embeddings[id] = vecs
	}
	s.order = append(s.order, snap.Order...)
	return s, nil
}

// AddSource embeds chunks and appends the source to the store, then persists the whole store.
// It is all-or-nothing: on any error the store is left as it was.
// Re-adding an existing id fails with ErrDuplicateSource.
func (s *Store) AddSource(ctx context.Context, id, fullText string, chunks []string, emb Embedder) (SourceHandle, error) {
	if id == "" {
		return 0, fmt.Errorf("source id is required")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	_, exists := s.sources[id]
	dim := s.dimensionLocked()
	s.mu.RUnlock()
	if exists {
		return 0, fmt.Errorf("%w: %s", ErrDuplicateSource, id)
	}

	var vectors [][]float32
	if len(chunks) > 0 {
		var err error
		vectors, err = emb.GenerateEmbeddings(ctx, chunks)
		if err != nil {
			if errors.Is(err, embedding.ErrEmbeddingFailure) {
				return 0, fmt.Errorf("embed %s: %w", id, err)
			}
			return 0, fmt.Errorf("embed %s: %w: %v", id, embedding.ErrEmbeddingFailure, err)
		}
		if err := checkVectors(vectors, len(chunks), dim); err != nil {
			return 0, fmt.Errorf("embed %s: %w", id, err)
		}
	}

	owned := make([]string, len(chunks))
	copy(owned, chunks)
	src := &Source{
		ID:       id,
		FullText: fullText,
		Chunks:   owned,
		AddedAt:  s.now().UTC().Truncate(time.Millisecond),
	}
	if vectors == nil {
		vectors = [][]float32{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sources[id] = src
	s.embeddings[id] = vectors
	s.order = append(s.order, id)

	if s.persister != nil {
		if err := s.persister.Save(s.snapshotLocked()); err != nil {
			delete(s.sources, id)
			delete(s.embeddings, id)
			s.order = s.order[:len(s.order)-1]
			return 0, fmt.Errorf("persist store: %w", err)
		}
	}

	return SourceHandle(len(s.order)), nil
}

// checkVectors verifies one non-empty vector per chunk, all of the store's dimension.
func checkVectors(vectors [][]float32, want, dim int) error {
	if len(vectors) != want {
		return fmt.Errorf("%w: got %d vectors for %d chunks", embedding.ErrEmbeddingFailure, len(vectors), want)
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("%w: empty vector for chunk %d", embedding.ErrEmbeddingFailure, i)
		}
		if dim == 0 {
			dim = len(v)
		}
		if len(v) != dim {
			return fmt.Errorf("%w: %w: chunk %d has %d dimensions, expected %d",
				embedding.ErrEmbeddingFailure, ErrDimensionMismatch, i, len(v), dim)
		}
	}
	return nil
}

// Len returns the number of sources.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// IsEmpty reports whether no source has been added.
func (s *Store) IsEmpty() bool {
	return s.Len() == 0
}

// ChunkCount returns the number of chunks across all sources.
func (s *Store) ChunkCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, id := range s.order {
		n += len(s.embeddings[id])
	}
	return n
}

// Dimension returns the vector dimension of stored embeddings, or 0 when there are none.
func (s *Store) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimensionLocked()
}

func (s *Store) dimensionLocked() int {
	for _, id := range s.order {
		if vecs := s.embeddings[id]; len(vecs) > 0 {
			return len(vecs[0])
		}
	}
	return 0
}

// Resolve maps a 1-based handle to its source id.
func (s *Store) Resolve(h SourceHandle) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolveLocked(h)
}

func (s *Store) resolveLocked(h SourceHandle) (string, error) {
	if h < 1 || int(h) > len(s.order) {
		return "", fmt.Errorf("%w: %d (have %d sources)", ErrInvalidSourceIndex, h, len(s.order))
	}
	return s.order[h-1], nil
}

// Get returns the source with the given id.
func (s *Store) Get(id string) (*Source, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src, ok := s.sources[id]
	return src, ok
}

// Vectors returns the chunk vectors of a source. The slices alias store memory.
func (s *Store) Vectors(id string) ([][]float32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vecs, ok := s.embeddings[id]
	return vecs, ok
}

// Sources lists sources in ingestion order.
func (s *Store) Sources() []SourceInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]SourceInfo, 0, len(s.order))
	for i, id := range s.order {
		src := s.sources[id]
		infos = append(infos, SourceInfo{
			Handle:  SourceHandle(i + 1),
			ID:      id,
			Chunks:  len(src.Chunks),
			Chars:   len(src.FullText),
			AddedAt: src.AddedAt,
		})
	}
	return infos
}

// Scan calls fn for every chunk in scope, in ingestion order then chunk order.
// h == AllSources scans everything; any other handle must resolve.
// fn runs under the read lock and must not call back into the store.
func (s *Store) Scan(h SourceHandle, fn func(Entry)) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	first, last := 0, len(s.order)
	if h != AllSources {
		if _, err := s.resolveLocked(h); err != nil {
			return err
		}
		first, last = int(h)-1, int(h)
	}

	for i := first; i < last; i++ {
		id := s.order[i]
		chunks := s.sources[id].Chunks
		for j, vec := range s.embeddings[id] {
			fn(Entry{
				Handle:     SourceHandle(i + 1),
				SourceID:   id,
				ChunkIndex: j,
				Text:       chunks[j],
				Vector:     vec,
			})
		}
	}
	return nil
}

// Snapshot returns the current state for persistence or export.
// The maps are fresh but share the immutable sources and vectors.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() *Snapshot {
	snap := &Snapshot{
		Sources:    make(map[string]*Source, len(s.sources)),
		Embeddings: make(map[string][][]float32, len(s.embeddings)),
		Order:      append([]string(nil), s.order...),
	}
	for id, src := range s.sources {
		snap.Sources[id] = src
	}
	for id, vecs := range s.embeddings {
		snap.Embeddings[id] = vecs
	}
	return snap
}

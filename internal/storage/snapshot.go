package storage

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Snapshot file layout, all integers little-endian, strings uint32 length-prefixed:
//
//	magic "RTK1" | version uint16
//	sources:    count uint32, then per source: id, addedAt int64 (unix nanos), fullText,
//	            chunk count uint32, chunks
//	embeddings: count uint32, then per source: id, vector count uint32, dimension uint32,
//	            count*dimension float32
//	order:      count uint32, then ids
const (
	snapshotMagic   = "RTK1"
	snapshotVersion = uint16(1)
)

// ErrSnapshotNotFound is returned by FilePersister.Load when no file exists yet.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// Snapshot is the persisted form of a Store.
type Snapshot struct {
	Sources    map[string]*Source
	Embeddings map[string][][]float32
	Order      []string
}

// Validate checks that sources, embeddings and order describe the same set of sources
// with one vector per chunk and a single dimension. Failures wrap ErrCorruptState.
func (s *Snapshot) Validate() error {
	if len(s.Sources) != len(s.Order) || len(s.Embeddings) != len(s.Order) {
		return fmt.Errorf("%w: %d sources, %d embedding sets, %d ordered ids",
			ErrCorruptState, len(s.Sources), len(s.Embeddings), len(s.Order))
	}

	seen := make(map[string]bool, len(s.Order))
	dim := 0
	for _, id := range s.Order {
		if seen[id] {
			return fmt.Errorf("%w: duplicate id %q in ingestion order", ErrCorruptState, id)
		}
		seen[id] = true

		src, ok := s.Sources[id]
		if !ok || src == nil {
			return fmt.Errorf("%w: no source record for %q", ErrCorruptState, id)
		}
		if src.ID != id {
			return fmt.Errorf("%w: source keyed %q has id %q", ErrCorruptState, id, src.ID)
		}
		vecs, ok := s.Embeddings[id]
		if !ok {
			return fmt.Errorf("%w: no embeddings for %q", ErrCorruptState, id)
		}
		if len(vecs) != len(src.Chunks) {
			return fmt.Errorf("%w: %q has %d chunks but %d vectors", ErrCorruptState, id, len(src.Chunks), len(vecs))
		}
		for i, v := range vecs {
			if dim == 0 {
				dim = len(v)
			}
			if len(v) == 0 || len(v) != dim {
				return fmt.Errorf("%w: %q vector %d has %d dimensions, expected %d", ErrCorruptState, id, i, len(v), dim)
			}
		}
	}
	return nil
}

// Encode writes the snapshot in the binary layout above.
func (s *Snapshot) Encode(w io.Writer) error {
	bw := bufio.NewWriter(w)
	e := &encoder{w: bw}

	e.raw([]byte(snapshotMagic))
	e.u16(snapshotVersion)

	sourceIDs := sortedKeys(s.Sources)
	e.u32(uint32(len(sourceIDs)))
	for _, id := range sourceIDs {
		src := s.Sources[id]
		e.str(id)
		e.i64(src.AddedAt.UnixNano())
		e.str(src.FullText)
		e.u32(uint32(len(src.Chunks)))
		for _, c := range src.Chunks {
			e.str(c)
		}
	}

	embeddingIDs := sortedKeys(s.Embeddings)
	e.u32(uint32(len(embeddingIDs)))
	for _, id := range embeddingIDs {
		vecs := s.Embeddings[id]
		dim := 0
		if len(vecs) > 0 {
			dim = len(vecs[0])
		}
		e.str(id)
		e.u32(uint32(len(vecs)))
		e.u32(uint32(dim))
		for _, v := range vecs {
			if len(v) != dim {
				return fmt.Errorf("%w: %q has vectors of different lengths", ErrDimensionMismatch, id)
			}
			for _, f := range v {
				e.u32(math.Float32bits(f))
			}
		}
	}

	e.u32(uint32(len(s.Order)))
	for _, id := range s.Order {
		e.str(id)
	}

	if e.err != nil {
		return fmt.Errorf("encode snapshot: %w", e.err)
	}
	return bw.Flush()
}

// DecodeSnapshot parses a snapshot and validates it.
// Any structural problem is reported as ErrCorruptState.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	d := &decoder{buf: data}

	if magic := d.raw(len(snapshotMagic)); d.err == nil && string(magic) != snapshotMagic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrCorruptState, magic)
	}
	if v := d.u16(); d.err == nil && v != snapshotVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptState, v)
	}

	snap := &Snapshot{
		Sources:    make(map[string]*Source),
		Embeddings: make(map[string][][]float32),
	}

	n := d.count(8)
	for i := 0; i < n && d.err == nil; i++ {
		src := &Source{ID: d.str()}
		src.AddedAt = time.Unix(0, d.i64()).UTC()
		src.FullText = d.str()
		chunks := d.count(4)
		src.Chunks = make([]string, 0, chunks)
		for j := 0; j < chunks && d.err == nil; j++ {
			src.Chunks = append(src.Chunks, d.str())
		}
		if _, dup := snap.Sources[src.ID]; dup && d.err == nil {
			return nil, fmt.Errorf("%w: duplicate source record %q", ErrCorruptState, src.ID)
		}
		snap.Sources[src.ID] = src
	}

	n = d.count(12)
	for i := 0; i < n && d.err == nil; i++ {
		id := d.str()
		count := d.count(0)
		dim := int(d.u32())
		if d.err == nil && count > 0 && dim == 0 {
			d.err = fmt.Errorf("%d vectors of zero dimension for %q", count, id)
		}
		if d.err == nil && uint64(count)*uint64(dim)*4 > uint64(d.remaining()) {
			d.err = io.ErrUnexpectedEOF
		}
		vecs := make([][]float32, 0, count)
		for j := 0; j < count && d.err == nil; j++ {
			v := make([]float32, dim)
			for k := range v {
				v[k] = math.Float32frombits(d.u32())
			}
			vecs = append(vecs, v)
		}
		if _, dup := snap.Embeddings[id]; dup && d.err == nil {
			return nil, fmt.Errorf("%w: duplicate embedding set %q", ErrCorruptState, id)
		}
		snap.Embeddings[id] = vecs
	}

	n = d.count(4)
	for i := 0; i < n && d.err == nil; i++ {
		snap.Order = append(snap.Order, d.str())
	}

	if d.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, d.err)
	}
	if d.remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorruptState, d.remaining())
	}
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	return snap, nil
}

// FilePersister stores snapshots in a single file, rewritten whole on every save.
type FilePersister struct {
	Path string
}

// NewFilePersister creates a persister for path.
func NewFilePersister(path string) *FilePersister {
	return &FilePersister{Path: path}
}

// Save writes the snapshot to a temporary file and renames it over Path,
// so readers never observe a half-written store.
func (p *FilePersister) Save(snap *Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(p.Path), 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p.Path), filepath.Base(p.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if err := snap.Encode(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync store file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close store file: %w", err)
	}
	if err := os.Rename(tmpName, p.Path); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}
	return nil
}

// Load reads and decodes the snapshot at Path.
// Returns ErrSnapshotNotFound if the file does not exist.
func (p *FilePersister) Load() (*Snapshot, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, p.Path)
		}
		return nil, fmt.Errorf("read store file: %w", err)
	}
	return DecodeSnapshot(data)
}

// MarshalBinary encodes the snapshot into a byte slice.
func (s *Snapshot) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := s.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type encoder struct {
	w       io.Writer
	scratch [8]byte
	err     error
}

func (e *encoder) raw(b []byte) {
	if e.err != nil {
		return
	}
	_, e.err = e.w.Write(b)
}

func (e *encoder) u16(v uint16) {
	binary.LittleEndian.PutUint16(e.scratch[:2], v)
	e.raw(e.scratch[:2])
}

func (e *encoder) u32(v uint32) {
	binary.LittleEndian.PutUint32(e.scratch[:4], v)
	e.raw(e.scratch[:4])
}

func (e *encoder) i64(v int64) {
	binary.LittleEndian.PutUint64(e.scratch[:8], uint64(v))
	e.raw(e.scratch[:8])
}

func (e *encoder) str(s string) {
	e.u32(uint32(len(s)))
	if e.err != nil {
		return
	}
	_, e.err = io.WriteString(e.w, s)
}

type decoder struct {
	buf []byte
	off int
	err error
}

func (d *decoder) remaining() int {
	return len(d.buf) - d.off
}

func (d *decoder) raw(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || n > d.remaining() {
		d.err = io.ErrUnexpectedEOF
		return nil
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b
}

func (d *decoder) u16() uint16 {
	b := d.raw(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (d *decoder) u32() uint32 {
	b := d.raw(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (d *decoder) i64() int64 {
	b := d.raw(8)
	if b == nil {
		return 0
	}
	return int64(binary.LittleEndian.Uint64(b))
}

func (d *decoder) str() string {
	n := d.u32()
	return string(d.raw(int(n)))
}

// count reads an element count and rejects counts that cannot fit in the remaining
// bytes when each element takes at least minSize bytes.
func (d *decoder) count(minSize int) int {
	n := int(d.u32())
	if d.err == nil && minSize > 0 && n > d.remaining()/minSize {
		d.err = io.ErrUnexpectedEOF
		return 0
	}
	return n
}

package storage

import "errors"

var (
	ErrInvalidSourceIndex = errors.New("invalid source index")
	ErrDuplicateSource    = errors.New("source already added")
	ErrCorruptState       = errors.New("corrupt persisted state")
	ErrDimensionMismatch  = errors.New("embedding dimension mismatch")
	ErrQdrantUnreachable  = errors.New("qdrant server unreachable")
	ErrMirrorOutOfSync    = errors.New("qdrant mirror out of sync with store")
)

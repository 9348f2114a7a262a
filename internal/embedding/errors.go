package embedding

import "errors"

// ErrEmbeddingFailure reports an embedding call that failed or returned a malformed vector.
var ErrEmbeddingFailure = errors.New("embedding failure")

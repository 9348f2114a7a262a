// Package testutil provides deterministic stand-ins for the embedding and chat models.
package testutil

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"
)

// Dimension is the vector size produced by HashEmbedder.
const Dimension = 64

// HashEmbedder is a bag-of-words embedder: each word adds 1 to the dimension its hash selects.
// Texts sharing words get similar vectors, which is enough to rank small corpora.
type HashEmbedder struct {
	mu     sync.Mutex
	Calls  int      // number of GenerateEmbeddings calls
	Texts  []string // every text embedded, in order
	Err    error    // returned from every call when set
	FailOn string   // fail when a text contains this substring
}

// GenerateEmbeddings implements the embedder interface used by storage and answer.
func (e *HashEmbedder) GenerateEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.Calls++
	if e.Err != nil {
		return nil, e.Err
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if e.FailOn != "" && strings.Contains(text, e.FailOn) {
			return nil, fmt.Errorf("fake embedder refused %q", e.FailOn)
		}
		e.Texts = append(e.Texts, text)
		out[i] = Embed(text)
	}
	return out, nil
}

// Embed returns the HashEmbedder vector of text.
func Embed(text string) []float32 {
	v := make([]float32, Dimension)
	for _, word := range Words(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		v[h.Sum32()%Dimension]++
	}
	return v
}

// Words lowercases text and splits it on anything that is not a letter or digit.
func Words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// ScriptedGenerator returns canned replies and records prompts.
type ScriptedGenerator struct {
	mu      sync.Mutex
	Prompts []string
	Replies []string // consumed in order; the last one repeats
	Reply   func(prompt string) (string, error)
	Err     error
}

// Generate implements the generator interface used by answer.
func (g *ScriptedGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.Prompts = append(g.Prompts, prompt)
	if g.Err != nil {
		return "", g.Err
	}
	if g.Reply != nil {
		return g.Reply(prompt)
	}
	if len(g.Replies) == 0 {
		return "", nil
	}
	idx := min(len(g.Prompts)-1, len(g.Replies)-1)
	return g.Replies[idx], nil
}

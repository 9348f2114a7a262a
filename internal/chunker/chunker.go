// Package chunker splits cleaned document text into fixed-size overlapping windows.
package chunker

import "unicode/utf8"

const (
	// DefaultWindow is the maximum chunk length in bytes.
	DefaultWindow = 800

	// DefaultStride is the distance between consecutive chunk starts.
	// With DefaultWindow this gives 200 bytes of overlap.
	DefaultStride = 600
)

// Chunker splits text into positional windows. It has no notion of sentences or paragraphs.
type Chunker struct {
	window int
	stride int
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithWindow sets the window size.
func WithWindow(window int) Option {
	return func(c *Chunker) {
		if window > 0 {
			c.window = window
		}
	}
}

// WithStride sets the stride between window starts.
func WithStride(stride int) Option {
	return func(c *Chunker) {
		if stride > 0 {
			c.stride = stride
		}
	}
}

// New creates a Chunker. A stride larger than the window would leave gaps,
// so that combination falls back to the defaults.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		window: DefaultWindow,
		stride: DefaultStride,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.stride > c.window {
		c.window = DefaultWindow
		c.stride = DefaultStride
	}
	return c
}

// Window returns the configured window size.
func (c *Chunker) Window() int { return c.window }

// Stride returns the configured stride.
func (c *Chunker) Stride() int { return c.stride }

// Chunk splits text using the configured window and stride.
func (c *Chunker) Chunk(text string) []string {
	return Split(text, c.window, c.stride)
}

// Split returns text[i:i+window] for i = 0, stride, 2*stride, ... while i < len(text).
// The last window may be shorter. Empty text yields nil.
// Window edges are pulled back to the nearest rune boundary so chunks stay valid UTF-8.
// A window narrower than a rune is widened to that rune; chunks are never empty.
func Split(text string, window, stride int) []string {
	if text == "" || window <= 0 || stride <= 0 {
		return nil
	}

	chunks := make([]string, 0, (len(text)+stride-1)/stride)
	prevStart, prevEnd := -1, -1
	for i := 0; i < len(text); i += stride {
		start := i
		for start > 0 && !utf8.RuneStart(text[start]) {
			start--
		}
		end := min(i+window, len(text))
		for end < len(text) && end > start && !utf8.RuneStart(text[end]) {
			end--
		}
		if end == start {
			// window is narrower than the rune at start: take the whole rune
			end++
			for end < len(text) && !utf8.RuneStart(text[end]) {
				end++
			}
		}
		if start == prevStart && end == prevEnd {
			continue
		}
		prevStart, prevEnd = start, end
		chunks = append(chunks, text[start:end])
	}
	return chunks
}

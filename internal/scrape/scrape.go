// Package scrape fetches a URL and reduces it to plain text for ingestion.
package scrape

import (
	"context"
	"errors"
	"strings"
)

// ErrFetchFailure is returned when a page cannot be retrieved.
var ErrFetchFailure = errors.New("fetch failure")

// Page is the text extracted from one URL.
type Page struct {
	URL         string
	Text        string
	ContentType string
}

// Fetcher retrieves the text of a page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Page, error)
}

// collapseWhitespace joins all whitespace runs into single spaces.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Package extract turns each ingested posting into a structured application record.
package extract

import (
	"errors"

	"github.com/mike-a-ellis/ragtrack/internal/storage"
)

// ErrExtractionParse marks a model reply that was not the expected JSON object.
// It is recorded per source and never stops a batch.
var ErrExtractionParse = errors.New("extraction parse error")

// PlaceholderDeadline is the template value the model echoes back when it found no deadline.
const PlaceholderDeadline = "YYYY-MM-DD"

// DefaultNumRefs is used when the model does not report a reference count.
const DefaultNumRefs = 3

// Posting is the JSON object the extraction prompt asks for.
type Posting struct {
	School    string         `json:"school"`
	Position  string         `json:"position"`
	Title     string         `json:"title"`
	Location  string         `json:"location"`
	Deadline  string         `json:"deadline"`
	Link      string         `json:"link"`
	Comments  string         `json:"comments"`
	NumRefs   *int           `json:"numRefs"`
	Materials map[string]any `json:"materials"`
}

// Outcome is the tagged result of extracting one source: exactly one of Posting and Err is set.
type Outcome struct {
	Handle   storage.SourceHandle
	SourceID string
	Posting  *Posting
	Raw      string // model reply, kept for diagnostics
	Err      error
}

// OK reports whether the outcome holds a parsed posting.
func (o Outcome) OK() bool {
	return o.Err == nil && o.Posting != nil
}

// Diagnostic explains why a source is missing from the export.
type Diagnostic struct {
	Handle   storage.SourceHandle `json:"handle"`
	SourceID string               `json:"sourceId"`
	Reason   string               `json:"reason"`
}

// Application is one record of the tracker export.
type Application struct {
	ID                    int            `json:"id"`
	School                string         `json:"school"`
	Position              string         `json:"position"`
	Title                 string         `json:"title"`
	Location              string         `json:"location"`
	Deadline              string         `json:"deadline"`
	Link                  string         `json:"link"`
	Comments              string         `json:"comments"`
	NumRefs               int            `json:"numRefs"`
	Status                string         `json:"status"`
	Contact               string         `json:"contact"`
	Connections           string         `json:"connections"`
	Refs                  map[string]any `json:"refs"`
	Materials             map[string]any `json:"materials"`
	CustomFieldValues     map[string]any `json:"customFieldValues"`
	CustomChecklistValues map[string]any `json:"customChecklistValues"`
}

// TrackerConfig is the tracker's configuration block.
type TrackerConfig struct {
	ReferenceWriters []string `json:"referenceWriters"`
	Materials        []string `json:"materials"`
	StatusOptions    []string `json:"statusOptions"`
	CustomFields     []any    `json:"customFields"`
	CustomChecklists []any    `json:"customChecklists"`
}

// Export is the document consumed by the application tracker.
type Export struct {
	Applications []Application `json:"applications"`
	Config       TrackerConfig `json:"config"`
}

// Materials lists the checklist items the extraction prompt asks about.
var Materials = []string{
	"cover",
	"cv",
	"research",
	"teaching",
	"diversity",
	"publications",
	"course evals",
	"unique research statement",
}

// StatusOptions are the tracker's application states; new records start at the first.
var StatusOptions = []string{"pending", "in-progress", "submitted"}

// DefaultTrackerConfig returns the configuration block written with every export.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		ReferenceWriters: []string{},
		Materials:        append([]string(nil), Materials...),
		StatusOptions:    append([]string(nil), StatusOptions...),
		CustomFields:     []any{},
		CustomChecklists: []any{},
	}
}

package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/mike-a-ellis/ragtrack/internal/answer"
	"github.com/mike-a-ellis/ragtrack/internal/storage"
)

// Prompt asks for the posting details as a bare JSON object.
const Prompt = `Extract job posting details and return ONLY valid JSON:

{
  "school": "",
  "position": "",
  "title": "",
  "location": "",
  "deadline": "YYYY-MM-DD",
  "link": "",
  "comments": "",
  "numRefs": 0,
  "materials": {
    "cover": false,
    "cv": false,
    "research": false,
    "teaching": false,
    "diversity": false,
    "publications": false,
    "course evals": false,
    "unique research statement": false
  }
}

Return ONLY the JSON object with no additional text:`

// Answerer answers a question within one source.
type Answerer interface {
	Answer(ctx context.Context, question string, filter storage.SourceHandle) (answer.Result, error)
}

// SourceLister lists sources in ingestion order.
type SourceLister interface {
	Sources() []storage.SourceInfo
}

// Extractor runs the extraction prompt against every source.
type Extractor struct {
	answerer Answerer
	sources  SourceLister
	logger   *slog.Logger
}

// NewExtractor creates an extractor.
func NewExtractor(answerer Answerer, sources SourceLister, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		answerer: answerer,
		sources:  sources,
		logger:   logger,
	}
}

// ExtractAll asks once per source, in ingestion order, and parses each reply.
// A failure for one source is recorded in its Outcome and the batch moves on; nothing is retried.
func (x *Extractor) ExtractAll(ctx context.Context) []Outcome {
	infos := x.sources.Sources()
	outcomes := make([]Outcome, 0, len(infos))

	for _, info := range infos {
		out := Outcome{Handle: info.Handle, SourceID: info.ID}

		res, err := x.answerer.Answer(ctx, Prompt, info.Handle)
		if err != nil {
			out.Err = fmt.Errorf("answer: %w", err)
			x.logger.Warn("Extraction failed", "source", info.Handle, "url", info.ID, "error", err)
			outcomes = append(outcomes, out)
			continue
		}

		out.Raw = res.Text
		posting, err := ParsePosting(res.Text)
		if err != nil {
			out.Err = err
			x.logger.Warn("Error parsing JSON for source", "source", info.Handle, "url", info.ID, "response", res.Text, "error", err)
			outcomes = append(outcomes, out)
			continue
		}

		out.Posting = posting
		outcomes = append(outcomes, out)
	}

	return outcomes
}

// ParsePosting decodes a model reply. A surrounding markdown code fence is tolerated.
// Only a reply that is not a JSON object is an error; fields of an unexpected type are
// coerced where possible and otherwise left empty.
func ParsePosting(reply string) (*Posting, error) {
	body := stripCodeFence(reply)

	var v any
	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionParse, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: unexpected data after JSON object", ErrExtractionParse)
	}
	fields, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: reply is not a JSON object", ErrExtractionParse)
	}

	p := &Posting{
		School:   stringField(fields["school"]),
		Position: stringField(fields["position"]),
		Title:    stringField(fields["title"]),
		Location: stringField(fields["location"]),
		Deadline: stringField(fields["deadline"]),
		Link:     stringField(fields["link"]),
		Comments: stringField(fields["comments"]),
		NumRefs:  intField(fields["numRefs"]),
	}
	if m, ok := fields["materials"].(map[string]any); ok {
		p.Materials = m
	}
	return p, nil
}

func stringField(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// intField accepts integers, integral floats and numeric strings. Anything else is nil.
func intField(v any) *int {
	var s string
	switch x := v.(type) {
	case json.Number:
		s = x.String()
	case string:
		s = strings.TrimSpace(x)
	default:
		return nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return &n
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
		return nil
	}
	n := int(f)
	return &n
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:] // drop the language tag line
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// BuildExport converts outcomes to tracker records.
// Failed outcomes and postings missing a school or position, or still carrying the placeholder
// deadline, are left out with one diagnostic each. Ids follow the order of parsed postings.
func BuildExport(outcomes []Outcome) (Export, []Diagnostic) {
	export := Export{
		Applications: []Application{},
		Config:       DefaultTrackerConfig(),
	}
	var diags []Diagnostic

	id := 0
	for _, o := range outcomes {
		if !o.OK() {
			reason := "no posting extracted"
			if o.Err != nil {
				reason = o.Err.Error()
			}
			diags = append(diags, Diagnostic{Handle: o.Handle, SourceID: o.SourceID, Reason: reason})
			continue
		}
		id++

		p := o.Posting
		school := strings.TrimSpace(p.School)
		position := strings.TrimSpace(p.Position)
		deadline := strings.TrimSpace(p.Deadline)
		if school == "" || position == "" || deadline == PlaceholderDeadline {
			diags = append(diags, Diagnostic{
				Handle:   o.Handle,
				SourceID: o.SourceID,
				Reason: fmt.Sprintf("incomplete application %d: school=%q, position=%q, deadline=%q",
					id, school, position, deadline),
			})
			continue
		}

		numRefs := DefaultNumRefs
		if p.NumRefs != nil {
			numRefs = *p.NumRefs
		}
		materials := p.Materials
		if materials == nil {
			materials = map[string]any{}
		}

		export.Applications = append(export.Applications, Application{
			ID:                    id,
			School:                school,
			Position:              position,
			Title:                 strings.TrimSpace(p.Title),
			Location:              strings.TrimSpace(p.Location),
			Deadline:              deadline,
			Link:                  strings.TrimSpace(p.Link),
			Comments:              strings.TrimSpace(p.Comments),
			NumRefs:               numRefs,
			Status:                StatusOptions[0],
			Contact:               "",
			Connections:           "",
			Refs:                  map[string]any{},
			Materials:             materials,
			CustomFieldValues:     map[string]any{},
			CustomChecklistValues: map[string]any{},
		})
	}

	return export, diags
}

// WriteJSON writes the export as indented JSON.
func WriteJSON(w io.Writer, export Export) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(export)
}

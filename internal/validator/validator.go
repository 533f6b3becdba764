// Package validator rejects incomplete or malformed metadata extractions before they
// can reach durable storage.
package validator

import (
	"strings"
	"time"

	"github.com/JakeFAU/cityscope-ingest/internal/meeting"
)

// dateLayouts are tried in order. The prompt asks for the first; the rest cover
// answers that echo the document's own formatting.
var dateLayouts = []string{
	meeting.DateLayout,
	"2006/01/02",
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"Monday, January 2, 2006",
	"2 January 2006",
}

// Validator implements meeting.Validator.
type Validator struct{}

// New returns a Validator.
func New() *Validator {
	return &Validator{}
}

// Validate returns the normalized extraction or a *meeting.ValidationError.
func (Validator) Validate(extraction meeting.Extraction) (meeting.ValidatedExtraction, error) {
	title := strings.TrimSpace(extraction.Title)
	if title == "" {
		return meeting.ValidatedExtraction{}, &meeting.ValidationError{Reason: "title is empty"}
	}
	rawDate := strings.TrimSpace(extraction.Date)
	if rawDate == "" {
		return meeting.ValidatedExtraction{}, &meeting.ValidationError{Reason: "date is empty"}
	}
	date, ok := ParseDate(rawDate)
	if !ok {
		return meeting.ValidatedExtraction{}, &meeting.ValidationError{Reason: "date " + quote(rawDate) + " is not a calendar date"}
	}
	summary := strings.TrimSpace(extraction.Summary)
	if summary == "" {
		return meeting.ValidatedExtraction{}, &meeting.ValidationError{Reason: "summary is empty"}
	}
	return meeting.ValidatedExtraction{
		Title:   title,
		Date:    date,
		Summary: summary,
	}, nil
}

// ParseDate parses a calendar date into UTC midnight.
func ParseDate(raw string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

func quote(s string) string {
	const limit = 40
	if len(s) > limit {
		s = s[:limit] + "..."
	}
	return `"` + s + `"`
}

package summarizer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/JakeFAU/cityscope-ingest/internal/meeting"
)

// ParseResult is the outcome of reading a generative response: Parsed or Malformed.
type ParseResult interface {
	isParseResult()
}

// Parsed holds the three fields, each present in the response as a string.
type Parsed struct {
	Title   string
	Date    string
	Summary string
}

// Malformed keeps the raw response and why it could not be read.
type Malformed struct {
	Raw    string
	Reason string
}

func (Parsed) isParseResult()    {}
func (Malformed) isParseResult() {}

// Extraction converts the parsed fields into the pipeline type. Values are not validated.
func (p Parsed) Extraction() meeting.Extraction {
	return meeting.Extraction{Title: p.Title, Date: p.Date, Summary: p.Summary}
}

// MalformedResponseError reports a response that did not carry the expected fields.
type MalformedResponseError struct {
	Result Malformed
}

func (e *MalformedResponseError) Error() string {
	return "malformed response: " + e.Result.Reason
}

// ParseResponse reads a response that should hold a JSON object with title, date and summary.
func ParseResponse(raw string) ParseResult {
	body := stripCodeFences(raw)
	if body == "" {
		return Malformed{Raw: raw, Reason: "empty response"}
	}
	if !strings.HasPrefix(body, "{") {
		start := strings.Index(body, "{")
		end := strings.LastIndex(body, "}")
		if start < 0 || end <= start {
			return Malformed{Raw: raw, Reason: "no JSON object in response"}
		}
		body = body[start : end+1]
	}

	var payload struct {
		Title   *string `json:"title"`
		Date    *string `json:"date"`
		Summary *string `json:"summary"`
	}
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return Malformed{Raw: raw, Reason: fmt.Sprintf("decode json: %v", err)}
	}
	switch {
	case payload.Title == nil:
		return Malformed{Raw: raw, Reason: `missing field "title"`}
	case payload.Date == nil:
		return Malformed{Raw: raw, Reason: `missing field "date"`}
	case payload.Summary == nil:
		return Malformed{Raw: raw, Reason: `missing field "summary"`}
	}
	return Parsed{Title: *payload.Title, Date: *payload.Date, Summary: *payload.Summary}
}

func stripCodeFences(input string) string {
	trimmed := strings.TrimSpace(input)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimPrefix(trimmed, "json")
		trimmed = strings.TrimSpace(trimmed)
		if idx := strings.LastIndex(trimmed, "```"); idx != -1 {
			trimmed = strings.TrimSpace(trimmed[:idx])
		}
	}
	return trimmed
}

// Package meeting defines the core types shared across the ingest pipeline.
package meeting

import "time"

// Candidate is a document discovered on the portal listing, not yet known
// to be new or already ingested.
type Candidate struct {
	DocumentID string
	SourceURL  string
}

// Listing is the completed output of one listing pass.
type Listing struct {
	Candidates  []Candidate
	PagesTotal  int
	PagesFailed int
	// LinksSkipped counts document links whose identifier could not be read.
	LinksSkipped int
}

// ExtractedContent carries the linear text of a fetched document. It is never persisted.
type ExtractedContent struct {
	DocumentID string
	RawText    string
}

// Extraction is the unvalidated metadata returned by the generative service.
type Extraction struct {
	Title   string `json:"title"`
	Date    string `json:"date"`
	Summary string `json:"summary"`
}

// ValidatedExtraction is an Extraction whose date parsed and whose fields are present.
type ValidatedExtraction struct {
	Title   string
	Date    time.Time
	Summary string
}

// Record is the durable unit of persistence. One row per DocumentID, never updated.
type Record struct {
	DocumentID   string    `json:"document_id"`
	MeetingTitle string    `json:"meeting_title"`
	MeetingDate  time.Time `json:"meeting_date"`
	Summary      string    `json:"summary"`
	OriginalURL  string    `json:"original_url"`
	CreatedAt    time.Time `json:"created_at"`
}

// DateLayout is the canonical calendar-date layout used in prompts and storage.
const DateLayout = "2006-01-02"

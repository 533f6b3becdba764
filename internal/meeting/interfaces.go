package meeting

import (
	"context"
	"io"
	"time"
)

// Lister enumerates candidate documents from the publishing portal.
type Lister interface {
	List(ctx context.Context) (Listing, error)
}

// Store is the durable record table: one reader path and one writer path.
type Store interface {
	// ExistingIDs returns the subset of ids already persisted, in a single lookup.
	ExistingIDs(ctx context.Context, ids []string) (map[string]struct{}, error)
	// Save inserts one record. A duplicate id returns ErrConflict.
	Save(ctx context.Context, record Record) error
}

// Fetcher retrieves the raw bytes of a document.
type Fetcher interface {
	Fetch(ctx context.Context, sourceURL string) ([]byte, error)
}

// TextExtractor converts raw document bytes into non-empty linear text.
type TextExtractor interface {
	ExtractText(raw []byte) (string, error)
}

// MetadataExtractor asks the generative service for title, date, and summary.
type MetadataExtractor interface {
	Extract(ctx context.Context, content ExtractedContent) (Extraction, error)
}

// Validator accepts or rejects an extraction.
type Validator interface {
	Validate(extraction Extraction) (ValidatedExtraction, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes persisted-record notifications to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, payload any) (string, error)
}

// Hasher computes content digests for archive paths.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

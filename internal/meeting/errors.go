package meeting

import (
	"errors"
	"fmt"
)

var (
	// ErrConflict reports that a record with the same document id already exists.
	// The orchestrator counts it as a benign outcome.
	ErrConflict = errors.New("meeting record already exists")

	// ErrOracleUnavailable aborts a run: the existence check could not be performed.
	ErrOracleUnavailable = errors.New("existence oracle unavailable")
)

// FetchError wraps a network, status, or empty-body failure for one document.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError reports an unreadable document or one with no text layer.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse document: %v", e.Err) }

func (e *ParseError) Unwrap() error { return e.Err }

// ExtractionError reports a generative-service transport, status, or response-shape failure.
type ExtractionError struct {
	Attempts int
	Err      error
}

func (e *ExtractionError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("extract metadata after %d attempts: %v", e.Attempts, e.Err)
	}
	return fmt.Sprintf("extract metadata: %v", e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ValidationError rejects a structurally complete but semantically invalid extraction.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "validation rejected: " + e.Reason }

// PersistError wraps a storage fault other than a uniqueness conflict.
type PersistError struct {
	Err error
}

func (e *PersistError) Error() string { return fmt.Sprintf("persist record: %v", e.Err) }

func (e *PersistError) Unwrap() error { return e.Err }

// Stage names the pipeline step an error belongs to. The values double as metric labels.
type Stage string

// Pipeline stages used for report counters and metrics.
const (
	StageFetch      Stage = "fetch"
	StageParse      Stage = "parse"
	StageExtraction Stage = "extraction"
	StageValidation Stage = "validation"
	StagePersist    Stage = "persist"
	StageConflict   Stage = "conflict"
	StageUnknown    Stage = "unknown"
)

// StageOf classifies a per-document error into the stage that produced it.
func StageOf(err error) Stage {
	var (
		fetchErr      *FetchError
		parseErr      *ParseError
		extractionErr *ExtractionError
		validationErr *ValidationError
		persistErr    *PersistError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConflict):
		return StageConflict
	case errors.As(err, &fetchErr):
		return StageFetch
	case errors.As(err, &parseErr):
		return StageParse
	case errors.As(err, &extractionErr):
		return StageExtraction
	case errors.As(err, &validationErr):
		return StageValidation
	case errors.As(err, &persistErr):
		return StagePersist
	default:
		return StageUnknown
	}
}

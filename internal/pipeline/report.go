package pipeline

import (
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/cityscope-ingest/internal/meeting"
)

// Report is the terminal state of a run.
type Report struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time

	Listed             int
	ListingPagesFailed int
	AlreadyExisting    int
	Deferred           int
	Attempted          int
	FetchedOK          int
	FetchFailed        int
	ParseFailed        int
	ExtractionFailed   int
	ValidationRejected int
	Persisted          int
	Conflict           int
	PersistFailed      int

	// Interrupted is set when cancellation stopped the run before the batch finished.
	Interrupted bool
	Failures    []Failure
}

// Failure records why one candidate was not persisted.
type Failure struct {
	DocumentID string
	Stage      meeting.Stage
	Cause      string
}

// Duration is the wall time of the run.
func (r Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r *Report) count(documentID string, err error) {
	stage := meeting.StageOf(err)
	switch stage {
	case "":
		r.Persisted++
		return
	case meeting.StageConflict:
		r.Conflict++
		return
	case meeting.StageFetch:
		r.FetchFailed++
	case meeting.StageParse:
		r.ParseFailed++
	case meeting.StageExtraction:
		r.ExtractionFailed++
	case meeting.StageValidation:
		r.ValidationRejected++
	default:
		r.PersistFailed++
	}
	r.Failures = append(r.Failures, Failure{DocumentID: documentID, Stage: stage, Cause: err.Error()})
}

// Fields renders the report counts for structured logging.
func (r Report) Fields() []zap.Field {
	return []zap.Field{
		zap.String("run_id", r.RunID),
		zap.Duration("duration", r.Duration()),
		zap.Int("listed", r.Listed),
		zap.Int("listing_pages_failed", r.ListingPagesFailed),
		zap.Int("already_existing", r.AlreadyExisting),
		zap.Int("deferred", r.Deferred),
		zap.Int("attempted", r.Attempted),
		zap.Int("fetched_ok", r.FetchedOK),
		zap.Int("fetch_failed", r.FetchFailed),
		zap.Int("parse_failed", r.ParseFailed),
		zap.Int("extraction_failed", r.ExtractionFailed),
		zap.Int("validation_rejected", r.ValidationRejected),
		zap.Int("persisted", r.Persisted),
		zap.Int("conflict", r.Conflict),
		zap.Int("persist_failed", r.PersistFailed),
		zap.Bool("interrupted", r.Interrupted),
	}
}

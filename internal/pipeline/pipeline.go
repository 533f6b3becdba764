// Package pipeline runs one ingest batch: list, filter, then process each new document
// sequentially through fetch, text extraction, metadata extraction, validation, and save.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/cityscope-ingest/internal/meeting"
	"github.com/JakeFAU/cityscope-ingest/internal/metrics"
)

// Phase names a step of the run state machine.
type Phase string

// Run phases, in order.
const (
	PhaseListing    Phase = "listing"
	PhaseFiltering  Phase = "filtering"
	PhaseProcessing Phase = "processing"
	PhaseReported   Phase = "reported"
)

// ErrSkipExistenceCheckDisallowed rejects a diagnostic run that was not enabled in configuration.
var ErrSkipExistenceCheckDisallowed = errors.New(
	"skipping the existence check is disabled; set pipeline.allow_skip_existence_check to enable it")

const archiveContentType = "application/pdf"

// Config holds the batch defaults.
type Config struct {
	MaxCandidates           int
	AllowSkipExistenceCheck bool
	// ArchivePrefix is the object path prefix for archived documents.
	ArchivePrefix string
}

// Deps are the collaborators of a run. Archive and Publisher are optional.
type Deps struct {
	Lister        meeting.Lister
	Store         meeting.Store
	Fetcher       meeting.Fetcher
	TextExtractor meeting.TextExtractor
	Extractor     meeting.MetadataExtractor
	Validator     meeting.Validator
	Archive       meeting.BlobStore
	Hasher        meeting.Hasher
	Publisher     meeting.Publisher
	Clock         meeting.Clock
	IDs           meeting.IDGenerator
}

// RunOptions are per-invocation overrides.
type RunOptions struct {
	// MaxCandidates overrides Config.MaxCandidates when positive.
	MaxCandidates int
	// SkipExistenceCheck treats every listed candidate as new. Diagnostic only.
	SkipExistenceCheck bool
}

// Orchestrator drives runs. It is not safe for concurrent runs; runs are serialized externally.
type Orchestrator struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger
}

// New validates collaborators.
func New(cfg Config, deps Deps, logger *zap.Logger) (*Orchestrator, error) {
	switch {
	case deps.Lister == nil:
		return nil, errors.New("pipeline requires a lister")
	case deps.Store == nil:
		return nil, errors.New("pipeline requires a store")
	case deps.Fetcher == nil:
		return nil, errors.New("pipeline requires a fetcher")
	case deps.TextExtractor == nil:
		return nil, errors.New("pipeline requires a text extractor")
	case deps.Extractor == nil:
		return nil, errors.New("pipeline requires a metadata extractor")
	case deps.Validator == nil:
		return nil, errors.New("pipeline requires a validator")
	case deps.Clock == nil || deps.IDs == nil:
		return nil, errors.New("pipeline requires a clock and an id generator")
	case deps.Archive != nil && deps.Hasher == nil:
		return nil, errors.New("archiving requires a hasher")
	}
	if cfg.MaxCandidates <= 0 {
		return nil, errors.New("max candidates must be > 0")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Orchestrator{cfg: cfg, deps: deps, logger: logger}, nil
}

// Run executes one batch. The only errors are a disallowed skip flag, an unavailable
// existence oracle (wrapping meeting.ErrOracleUnavailable), a listing failure, and
// cancellation. Per-document failures are counted in the report instead.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (Report, error) {
	report := Report{StartedAt: o.deps.Clock.Now()}
	runID, err := o.deps.IDs.NewID()
	if err != nil {
		return report, fmt.Errorf("generate run id: %w", err)
	}
	report.RunID = runID
	logger := o.logger.With(zap.String("run_id", runID))

	if opts.SkipExistenceCheck && !o.cfg.AllowSkipExistenceCheck {
		return o.finish(report, false), ErrSkipExistenceCheckDisallowed
	}

	o.enter(logger, PhaseListing)
	listing, err := o.deps.Lister.List(ctx)
	if err != nil {
		return o.finish(report, false), fmt.Errorf("list candidates: %w", err)
	}
	report.Listed = len(listing.Candidates)
	report.ListingPagesFailed = listing.PagesFailed
	metrics.ObserveCandidates(metrics.CandidatesListed, report.Listed)
	metrics.ObserveListingPagesFailed(listing.PagesFailed)
	if listing.PagesFailed > 0 {
		logger.Warn("some listing pages failed",
			zap.Int("pages_failed", listing.PagesFailed),
			zap.Int("pages_total", listing.PagesTotal),
		)
	}

	o.enter(logger, PhaseFiltering)
	fresh, err := o.filter(ctx, logger, listing.Candidates, opts.SkipExistenceCheck)
	if err != nil {
		logger.Error("existence check failed; aborting before any generative call", zap.Error(err))
		return o.finish(report, false), err
	}
	report.AlreadyExisting = len(listing.Candidates) - len(fresh)
	metrics.ObserveCandidates(metrics.CandidatesAlreadyExisting, report.AlreadyExisting)

	bound := o.cfg.MaxCandidates
	if opts.MaxCandidates > 0 {
		bound = opts.MaxCandidates
	}
	if len(fresh) > bound {
		report.Deferred = len(fresh) - bound
		fresh = fresh[:bound]
	}
	metrics.ObserveCandidates(metrics.CandidatesDeferred, report.Deferred)

	o.enter(logger, PhaseProcessing, zap.Int("batch", len(fresh)), zap.Int("deferred", report.Deferred))
	for i, candidate := range fresh {
		if ctx.Err() != nil {
			break
		}
		report.Attempted++
		docLogger := logger.With(zap.String("document_id", candidate.DocumentID), zap.Int("position", i+1))

		err := o.process(ctx, docLogger, runID, candidate, &report)
		if err != nil && ctx.Err() != nil {
			// cancellation mid-document is not a document failure
			report.Attempted--
			break
		}
		report.count(candidate.DocumentID, err)
		o.logOutcome(docLogger, err)
	}

	if ctx.Err() != nil {
		report.Interrupted = true
		report = o.finish(report, false)
		logger.Warn("run interrupted", report.Fields()...)
		return report, fmt.Errorf("run interrupted: %w", ctx.Err())
	}

	report = o.finish(report, true)
	o.enter(logger, PhaseReported, report.Fields()...)
	return report, nil
}

func (o *Orchestrator) enter(logger *zap.Logger, phase Phase, fields ...zap.Field) {
	logger.Info("phase", append([]zap.Field{zap.String("phase", string(phase))}, fields...)...)
}

func (o *Orchestrator) finish(report Report, success bool) Report {
	report.FinishedAt = o.deps.Clock.Now()
	metrics.SetLastRun(report.FinishedAt, success)
	return report
}

func (o *Orchestrator) filter(
	ctx context.Context,
	logger *zap.Logger,
	candidates []meeting.Candidate,
	skip bool,
) ([]meeting.Candidate, error) {
	if skip {
		logger.Warn("existence check skipped; already-ingested documents will be reprocessed and billed again")
		return candidates, nil
	}
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.DocumentID
	}
	existing, err := o.deps.Store.ExistingIDs(ctx, ids)
	if err != nil {
		if !errors.Is(err, meeting.ErrOracleUnavailable) {
			err = fmt.Errorf("%w: %w", meeting.ErrOracleUnavailable, err)
		}
		return nil, err
	}
	return FilterNew(candidates, existing), nil
}

// FilterNew keeps the candidates whose id is not in existing, preserving order.
func FilterNew(candidates []meeting.Candidate, existing map[string]struct{}) []meeting.Candidate {
	fresh := make([]meeting.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := existing[c.DocumentID]; ok {
			continue
		}
		fresh = append(fresh, c)
	}
	return fresh
}

// process runs one candidate through every stage. The first failing stage ends it.
func (o *Orchestrator) process(
	ctx context.Context,
	logger *zap.Logger,
	runID string,
	candidate meeting.Candidate,
	report *Report,
) error {
	raw, err := o.deps.Fetcher.Fetch(ctx, candidate.SourceURL)
	if err != nil {
		return asStage(err, meeting.StageFetch, candidate.SourceURL)
	}
	report.FetchedOK++
	o.archive(ctx, logger, candidate, raw)

	text, err := o.deps.TextExtractor.ExtractText(raw)
	if err != nil {
		return asStage(err, meeting.StageParse, candidate.SourceURL)
	}
	if strings.TrimSpace(text) == "" {
		return &meeting.ParseError{Err: errors.New("extracted text is empty")}
	}

	extraction, err := o.deps.Extractor.Extract(ctx, meeting.ExtractedContent{
		DocumentID: candidate.DocumentID,
		RawText:    text,
	})
	if err != nil {
		return asStage(err, meeting.StageExtraction, candidate.SourceURL)
	}

	validated, err := o.deps.Validator.Validate(extraction)
	if err != nil {
		return asStage(err, meeting.StageValidation, candidate.SourceURL)
	}

	record := meeting.Record{
		DocumentID:   candidate.DocumentID,
		MeetingTitle: validated.Title,
		MeetingDate:  validated.Date,
		Summary:      validated.Summary,
		OriginalURL:  candidate.SourceURL,
		CreatedAt:    o.deps.Clock.Now().UTC(),
	}
	if err := o.deps.Store.Save(ctx, record); err != nil {
		if errors.Is(err, meeting.ErrConflict) {
			return err
		}
		return asStage(err, meeting.StagePersist, candidate.SourceURL)
	}

	o.notify(ctx, logger, runID, record)
	return nil
}

// asStage makes sure err classifies as stage, wrapping untyped errors from collaborators.
func asStage(err error, stage meeting.Stage, sourceURL string) error {
	if meeting.StageOf(err) == stage {
		return err
	}
	switch stage {
	case meeting.StageFetch:
		return &meeting.FetchError{URL: sourceURL, Err: err}
	case meeting.StageParse:
		return &meeting.ParseError{Err: err}
	case meeting.StageExtraction:
		return &meeting.ExtractionError{Attempts: 1, Err: err}
	case meeting.StageValidation:
		return &meeting.ValidationError{Reason: err.Error()}
	default:
		return &meeting.PersistError{Err: err}
	}
}

func (o *Orchestrator) logOutcome(logger *zap.Logger, err error) {
	stage := meeting.StageOf(err)
	switch stage {
	case "":
		metrics.ObserveDocument(metrics.OutcomePersisted)
		logger.Info("document persisted")
	case meeting.StageConflict:
		metrics.ObserveDocument(metrics.OutcomeConflict)
		logger.Info("document already persisted by another writer", zap.Error(err))
	case meeting.StageValidation:
		metrics.ObserveDocument(string(stage))
		logger.Warn("extraction rejected", zap.String("stage", string(stage)), zap.Error(err))
	default:
		metrics.ObserveDocument(string(stage))
		logger.Error("document failed", zap.String("stage", string(stage)), zap.Error(err))
	}
}

// archivePath builds <prefix>/<document_id>/<sha256>.pdf.
func (o *Orchestrator) archivePath(documentID, hash string) string {
	prefix := strings.Trim(o.cfg.ArchivePrefix, "/")
	return path.Join(prefix, documentID, hash+".pdf")
}

func (o *Orchestrator) archive(ctx context.Context, logger *zap.Logger, candidate meeting.Candidate, raw []byte) {
	if o.deps.Archive == nil {
		return
	}
	hash, err := o.deps.Hasher.Hash(raw)
	if err != nil {
		logger.Warn("archive skipped: hash failed", zap.Error(err))
		return
	}
	uri, err := o.deps.Archive.PutObject(ctx, o.archivePath(candidate.DocumentID, hash), archiveContentType, bytes.NewReader(raw))
	if err != nil {
		logger.Warn("archive failed", zap.Error(err))
		return
	}
	logger.Debug("document archived", zap.String("uri", uri), zap.String("sha256", hash))
}

// Notification is published after each successful insert.
type Notification struct {
	DocumentID   string `json:"document_id"`
	MeetingTitle string `json:"meeting_title"`
	MeetingDate  string `json:"meeting_date"`
	OriginalURL  string `json:"original_url"`
	RunID        string `json:"run_id"`
}

// Attributes are attached to the published message.
func (n Notification) Attributes() map[string]string {
	return map[string]string{
		"event":       "meeting.persisted",
		"document_id": n.DocumentID,
	}
}

func (o *Orchestrator) notify(ctx context.Context, logger *zap.Logger, runID string, record meeting.Record) {
	if o.deps.Publisher == nil {
		return
	}
	msg := Notification{
		DocumentID:   record.DocumentID,
		MeetingTitle: record.MeetingTitle,
		MeetingDate:  record.MeetingDate.Format(meeting.DateLayout),
		OriginalURL:  record.OriginalURL,
		RunID:        runID,
	}
	id, err := o.deps.Publisher.Publish(ctx, msg)
	if err != nil {
		logger.Warn("notification failed", zap.Error(err))
		return
	}
	logger.Debug("notification published", zap.String("message_id", id))
}

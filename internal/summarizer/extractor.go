// Package summarizer turns document text into a title, a meeting date, and a
// resident-focused summary using a generative-text service.
package summarizer

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/cityscope-ingest/internal/clock/system"
	"github.com/JakeFAU/cityscope-ingest/internal/meeting"
	"github.com/JakeFAU/cityscope-ingest/internal/pacing"
	"github.com/JakeFAU/cityscope-ingest/internal/policy/retry"
)

// RetryPolicy decides how failed attempts are retried.
type RetryPolicy interface {
	MaxAttempts() int
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// Options wires an Extractor.
type Options struct {
	Generator Generator
	Pacer     *pacing.Pacer
	Retry     RetryPolicy
	Clock     pacing.Clock
	Logger    *zap.Logger
	// ObserveCall receives the latency and result of every generative call.
	ObserveCall func(d time.Duration, err error)
}

// Extractor implements meeting.MetadataExtractor with pacing and bounded retries.
type Extractor struct {
	gen     Generator
	pacer   *pacing.Pacer
	retry   RetryPolicy
	clock   pacing.Clock
	logger  *zap.Logger
	observe func(time.Duration, error)
}

var errEmptyInput = errors.New("document text is empty")

// New validates options and fills defaults.
func New(opts Options) (*Extractor, error) {
	if opts.Generator == nil {
		return nil, errors.New("summarizer requires a generator")
	}
	if opts.Clock == nil {
		opts.Clock = system.New()
	}
	if opts.Pacer == nil {
		opts.Pacer = pacing.New(0, opts.Clock)
	}
	if opts.Retry == nil {
		opts.Retry = retry.NewExponential(retry.Config{})
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Extractor{
		gen:     opts.Generator,
		pacer:   opts.Pacer,
		retry:   opts.Retry,
		clock:   opts.Clock,
		logger:  opts.Logger,
		observe: opts.ObserveCall,
	}, nil
}

// Extract sends one prompt per attempt. Failures after the last allowed attempt come
// back as *meeting.ExtractionError.
func (e *Extractor) Extract(ctx context.Context, content meeting.ExtractedContent) (meeting.Extraction, error) {
	if strings.TrimSpace(content.RawText) == "" {
		return meeting.Extraction{}, &meeting.ExtractionError{Err: errEmptyInput}
	}
	prompt := BuildPrompt(content.RawText)

	attempt := 0
	for {
		attempt++
		extraction, err := e.attempt(ctx, prompt)
		if err == nil {
			return extraction, nil
		}
		if !e.retry.ShouldRetry(err, attempt) {
			return meeting.Extraction{}, &meeting.ExtractionError{Attempts: attempt, Err: err}
		}

		delay := e.retry.Backoff(attempt)
		e.logger.Warn("generative call failed; retrying",
			zap.String("document_id", content.DocumentID),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if sleepErr := e.clock.Sleep(ctx, delay); sleepErr != nil {
			return meeting.Extraction{}, &meeting.ExtractionError{Attempts: attempt, Err: sleepErr}
		}
	}
}

func (e *Extractor) attempt(ctx context.Context, prompt string) (meeting.Extraction, error) {
	if err := e.pacer.Wait(ctx); err != nil {
		return meeting.Extraction{}, err
	}
	start := e.clock.Now()
	raw, err := e.gen.Generate(ctx, prompt)
	e.pacer.Done()
	if e.observe != nil {
		e.observe(e.clock.Now().Sub(start), err)
	}
	if err != nil {
		return meeting.Extraction{}, err
	}

	switch result := ParseResponse(raw).(type) {
	case Parsed:
		return result.Extraction(), nil
	case Malformed:
		return meeting.Extraction{}, &MalformedResponseError{Result: result}
	default:
		return meeting.Extraction{}, errors.New("unexpected parse result")
	}
}

// Package collyfetcher implements document and listing-page retrieval using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/cityscope-ingest/internal/meeting"
	"github.com/JakeFAU/cityscope-ingest/internal/policy/ratelimit"
)

var (
	errUnexpectedStatus = errors.New("unexpected status")
	errEmptyBody        = errors.New("empty body")
	errBodyTooLarge     = errors.New("body reached the size limit")
)

// Config controls collector behavior.
type Config struct {
	UserAgent          string
	Timeout            time.Duration
	MaxBodyBytes       int
	InsecureSkipVerify bool
	// Limiter is optional; nil disables per-host limiting.
	Limiter *ratelimit.Limiter
}

// Fetcher implements meeting.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.ParseHTTPErrorResponse = true
	c.MaxBodySize = cfg.MaxBodyBytes
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	c.SetRequestTimeout(timeout)
	c.WithTransport(newPortalTransport(newHTTPTransport(cfg.InsecureSkipVerify), cfg.Limiter))

	return &Fetcher{cfg: cfg, baseCollector: c}
}

// Fetch executes a single GET, following redirects. Non-2xx responses, transport
// failures, and empty bodies come back as *meeting.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, sourceURL string) ([]byte, error) {
	var (
		body    []byte
		status  int
		respErr error
	)
	collector := f.baseCollector.Clone()
	collector.Context = ctx
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		respErr = err
		if r != nil {
			status = r.StatusCode
		}
	})

	if err := f.runCollector(ctx, collector, sourceURL, &respErr); err != nil {
		if ctx.Err() != nil {
			return nil, &meeting.FetchError{URL: sourceURL, Err: err}
		}
		return nil, &meeting.FetchError{URL: sourceURL, StatusCode: status, Err: err}
	}

	switch {
	case status < 200 || status > 299:
		return nil, &meeting.FetchError{URL: sourceURL, StatusCode: status, Err: errUnexpectedStatus}
	case len(body) == 0:
		return nil, &meeting.FetchError{URL: sourceURL, StatusCode: status, Err: errEmptyBody}
	case f.cfg.MaxBodyBytes > 0 && len(body) >= f.cfg.MaxBodyBytes:
		return nil, &meeting.FetchError{URL: sourceURL, StatusCode: status, Err: errBodyTooLarge}
	}
	return body, nil
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, respErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *respErr != nil {
			return fmt.Errorf("colly response failed: %w", *respErr)
		}
		return nil
	}
}

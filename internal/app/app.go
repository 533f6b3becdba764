// Package app builds the ingest pipeline from configuration and owns the long-lived
// clients it needs.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/cityscope-ingest/internal/clock/system"
	"github.com/JakeFAU/cityscope-ingest/internal/config"
	collyfetcher "github.com/JakeFAU/cityscope-ingest/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/cityscope-ingest/internal/fetcher/headless"
	"github.com/JakeFAU/cityscope-ingest/internal/hash/sha256"
	"github.com/JakeFAU/cityscope-ingest/internal/id/uuid"
	"github.com/JakeFAU/cityscope-ingest/internal/lister"
	"github.com/JakeFAU/cityscope-ingest/internal/meeting"
	"github.com/JakeFAU/cityscope-ingest/internal/metrics"
	"github.com/JakeFAU/cityscope-ingest/internal/pacing"
	"github.com/JakeFAU/cityscope-ingest/internal/pipeline"
	"github.com/JakeFAU/cityscope-ingest/internal/policy/ratelimit"
	"github.com/JakeFAU/cityscope-ingest/internal/policy/retry"
	"github.com/JakeFAU/cityscope-ingest/internal/publisher/pubsub"
	"github.com/JakeFAU/cityscope-ingest/internal/storage/gcs"
	"github.com/JakeFAU/cityscope-ingest/internal/storage/local"
	"github.com/JakeFAU/cityscope-ingest/internal/storage/postgres"
	"github.com/JakeFAU/cityscope-ingest/internal/storage/sqlite"
	"github.com/JakeFAU/cityscope-ingest/internal/summarizer"
	"github.com/JakeFAU/cityscope-ingest/internal/textextract/pdf"
	"github.com/JakeFAU/cityscope-ingest/internal/validator"
)

const metricsPushTimeout = 10 * time.Second

// RecordStore is the durable record table plus its lifecycle.
type RecordStore interface {
	meeting.Store
	EnsureSchema(ctx context.Context) error
	Close()
}

// App holds the shared, long-lived services for one CLI invocation.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	store   RecordStore
	closers []func()
}

// New opens the record store. The rest of the pipeline is built on demand by Ingest so that
// migrations never need generative-service credentials.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}
	store, err := OpenStore(ctx, cfg.DB)
	if err != nil {
		return nil, err
	}
	logger.Info("record store opened", zap.String("driver", cfg.DB.Driver), zap.String("table", cfg.DB.Table))
	return &App{cfg: cfg, logger: logger, store: store}, nil
}

// OpenStore connects to the configured database driver.
func OpenStore(ctx context.Context, db config.DBConfig) (RecordStore, error) {
	switch db.Driver {
	case config.DriverPostgres:
		store, err := postgres.NewMeetingStore(ctx, postgres.Config{
			DSN:             db.DSN,
			Table:           db.Table,
			MaxConns:        db.MaxConns,
			MinConns:        db.MinConns,
			MaxConnLifetime: time.Duration(db.MaxConnLifetimeSeconds) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return store, nil
	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, sqlite.Config{DSN: db.DSN, Table: db.Table})
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown db driver %q", db.Driver)
	}
}

// GetLogger returns the shared logger.
func (a *App) GetLogger() *zap.Logger {
	return a.logger
}

// GetStore exposes the record store.
func (a *App) GetStore() RecordStore {
	return a.store
}

// Migrate creates the record table and its indexes if they are missing.
func (a *App) Migrate(ctx context.Context) error {
	if err := a.store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	a.logger.Info("schema is up to date", zap.String("table", a.cfg.DB.Table))
	return nil
}

// Ingest builds the pipeline, runs one batch, logs the report, and pushes metrics when a
// Pushgateway is configured. The returned error is non-nil only for fatal run conditions.
func (a *App) Ingest(ctx context.Context, opts pipeline.RunOptions) (pipeline.Report, error) {
	if err := a.cfg.RequireRuntimeSecrets(); err != nil {
		return pipeline.Report{}, err
	}
	orchestrator, err := a.buildPipeline(ctx)
	if err != nil {
		return pipeline.Report{}, err
	}

	report, runErr := orchestrator.Run(ctx, opts)
	fields := report.Fields()
	switch {
	case runErr == nil:
		a.logger.Info("ingest run complete", fields...)
	case errors.Is(runErr, context.Canceled):
		a.logger.Warn("ingest run interrupted", fields...)
	default:
		a.logger.Error("ingest run failed", append(fields, zap.Error(runErr))...)
	}
	for _, f := range report.Failures {
		a.logger.Debug("document failure",
			zap.String("document_id", f.DocumentID),
			zap.String("stage", string(f.Stage)),
			zap.String("cause", f.Cause),
		)
	}

	a.pushMetrics(ctx)
	return report, runErr
}

func (a *App) pushMetrics(ctx context.Context) {
	if a.cfg.Metrics.PushgatewayURL == "" {
		return
	}
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metricsPushTimeout)
	defer cancel()
	if err := metrics.Push(pushCtx, a.cfg.Metrics.PushgatewayURL, a.cfg.Metrics.JobName); err != nil {
		a.logger.Warn("metrics push failed", zap.Error(err))
	}
}

func (a *App) buildPipeline(ctx context.Context) (*pipeline.Orchestrator, error) {
	cfg := a.cfg
	clock := system.New()

	limiter := ratelimit.New(ratelimit.Config{
		RPS:     cfg.HTTP.PortalRPS,
		Burst:   cfg.HTTP.PortalBurst,
		Observe: metrics.ObserveRateLimitDelay,
	})
	documents := collyfetcher.New(collyfetcher.Config{
		UserAgent:          cfg.HTTP.UserAgent,
		Timeout:            cfg.HTTPTimeout(),
		MaxBodyBytes:       cfg.HTTP.MaxBodyBytes,
		InsecureSkipVerify: cfg.HTTP.InsecureSkipVerify,
		Limiter:            limiter,
	})

	var pages lister.PageFetcher = documents
	if cfg.Listing.RenderJS {
		renderer, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.HTTP.UserAgent,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("init listing renderer: %w", err)
		}
		a.closers = append(a.closers, renderer.Close)
		pages = renderer
	}
	lst, err := lister.New(lister.Config{
		Pages:       cfg.Listing.Pages,
		LinkPattern: cfg.Listing.LinkPattern,
		IDParam:     cfg.Listing.IDParam,
		Concurrency: cfg.Listing.Concurrency,
		NewestFirst: cfg.Listing.NewestFirst,
	}, pages, a.logger.Named("lister"))
	if err != nil {
		return nil, fmt.Errorf("init lister: %w", err)
	}

	extractor, err := a.buildExtractor(ctx, clock)
	if err != nil {
		return nil, err
	}

	archive, err := a.buildArchive(ctx)
	if err != nil {
		return nil, err
	}
	publisher, err := a.buildPublisher(ctx)
	if err != nil {
		return nil, err
	}

	deps := pipeline.Deps{
		Lister:        lst,
		Store:         a.store,
		Fetcher:       documents,
		TextExtractor: pdf.New(pdf.Config{MaxChars: cfg.Extractor.MaxInputChars}),
		Extractor:     extractor,
		Validator:     validator.New(),
		Archive:       archive,
		Hasher:        sha256.New(),
		Publisher:     publisher,
		Clock:         clock,
		IDs:           uuid.New(),
	}
	return pipeline.New(pipeline.Config{
		MaxCandidates:           cfg.Pipeline.MaxCandidates,
		AllowSkipExistenceCheck: cfg.Pipeline.AllowSkipExistenceCheck,
		ArchivePrefix:           cfg.Archive.Prefix,
	}, deps, a.logger.Named("pipeline"))
}

func (a *App) buildExtractor(ctx context.Context, clock *system.Clock) (*summarizer.Extractor, error) {
	gen := a.cfg.Generative
	gemini, err := summarizer.NewGemini(ctx, summarizer.GeminiConfig{
		APIKey:      gen.APIKey,
		Model:       gen.Model,
		BaseURL:     gen.BaseURL,
		Temperature: float32(gen.Temperature),
		Timeout:     time.Duration(gen.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("init generative client: %w", err)
	}
	extractor, err := summarizer.New(summarizer.Options{
		Generator: gemini,
		Pacer:     pacing.New(a.cfg.MinInterval(), clock, pacing.WithObserver(metrics.ObservePacingWait)),
		Retry: retry.NewExponential(retry.Config{
			MaxAttempts: gen.MaxAttempts,
			BaseDelay:   time.Duration(gen.BackoffInitialMs) * time.Millisecond,
			MaxDelay:    time.Duration(gen.BackoffMaxMs) * time.Millisecond,
		}),
		Clock:       clock,
		Logger:      a.logger.Named("summarizer"),
		ObserveCall: metrics.ObserveGenerativeCall,
	})
	if err != nil {
		return nil, fmt.Errorf("init summarizer: %w", err)
	}
	return extractor, nil
}

func (a *App) buildArchive(ctx context.Context) (meeting.BlobStore, error) {
	archiveCfg := a.cfg.Archive
	switch archiveCfg.Provider {
	case config.ArchiveNone:
		return nil, nil
	case config.ArchiveLocal:
		store, err := local.New(local.Config{BaseDir: archiveCfg.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("init local archive: %w", err)
		}
		a.logger.Info("archiving documents locally", zap.String("dir", archiveCfg.BaseDir))
		return store, nil
	case config.ArchiveGCS:
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		a.closers = append(a.closers, func() {
			if err := client.Close(); err != nil {
				a.logger.Warn("error closing gcs client", zap.Error(err))
			}
		})
		store, err := gcs.New(client, gcs.Config{Bucket: archiveCfg.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("init gcs archive: %w", err)
		}
		a.logger.Info("archiving documents to gcs", zap.String("bucket", archiveCfg.GCSBucket))
		return store, nil
	default:
		return nil, fmt.Errorf("unknown archive provider %q", archiveCfg.Provider)
	}
}

func (a *App) buildPublisher(ctx context.Context) (meeting.Publisher, error) {
	ps := a.cfg.PubSub
	if ps.TopicName == "" {
		return nil, nil
	}
	pub, err := pubsub.Connect(ctx, ps.ProjectID, ps.TopicName)
	if err != nil {
		return nil, fmt.Errorf("init pubsub publisher: %w", err)
	}
	a.closers = append(a.closers, func() {
		if err := pub.Close(); err != nil {
			a.logger.Warn("error closing pubsub client", zap.Error(err))
		}
	})
	a.logger.Info("publishing notifications", zap.String("topic", ps.TopicName))
	return pub, nil
}

// Close shuts down every client in reverse order of creation and flushes the logger.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	if a.store != nil {
		a.store.Close()
	}
	// stderr sync errors are expected on some terminals
	_ = a.logger.Sync()
}

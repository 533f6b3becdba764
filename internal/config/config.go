// Package config loads and validates ingest configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Listing    ListingConfig    `mapstructure:"listing"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Headless   HeadlessConfig   `mapstructure:"headless"`
	Generative GenerativeConfig `mapstructure:"generative"`
	Extractor  ExtractorConfig  `mapstructure:"extractor"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	DB         DBConfig         `mapstructure:"db"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ListingConfig describes where and how candidate documents are discovered.
type ListingConfig struct {
	Pages       []string `mapstructure:"pages"`
	LinkPattern string   `mapstructure:"link_pattern"`
	IDParam     string   `mapstructure:"id_param"`
	RenderJS    bool     `mapstructure:"render_js"`
	Concurrency int      `mapstructure:"concurrency"`
	NewestFirst bool     `mapstructure:"newest_first"`
}

// HTTPConfig configures outbound requests to the portal.
type HTTPConfig struct {
	UserAgent          string  `mapstructure:"user_agent"`
	TimeoutSeconds     int     `mapstructure:"timeout_seconds"`
	MaxBodyBytes       int     `mapstructure:"max_body_bytes"`
	InsecureSkipVerify bool    `mapstructure:"insecure_skip_verify"`
	PortalRPS          float64 `mapstructure:"portal_rps"`
	PortalBurst        int     `mapstructure:"portal_burst"`
}

// HeadlessConfig configures the chromedp listing renderer.
type HeadlessConfig struct {
	MaxParallel   int `mapstructure:"max_parallel"`
	NavTimeoutSec int `mapstructure:"nav_timeout_seconds"`
}

// GenerativeConfig configures the generative-text service and its call policy.
type GenerativeConfig struct {
	APIKey           string  `mapstructure:"api_key"`
	Model            string  `mapstructure:"model"`
	BaseURL          string  `mapstructure:"base_url"`
	Temperature      float64 `mapstructure:"temperature"`
	TimeoutSeconds   int     `mapstructure:"timeout_seconds"`
	MinIntervalMs    int     `mapstructure:"min_interval_ms"`
	MaxAttempts      int     `mapstructure:"max_attempts"`
	BackoffInitialMs int     `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int     `mapstructure:"backoff_max_ms"`
}

// ExtractorConfig tunes text preparation before the generative call.
type ExtractorConfig struct {
	MaxInputChars int `mapstructure:"max_input_chars"`
}

// PipelineConfig bounds a single orchestrator run.
type PipelineConfig struct {
	MaxCandidates           int  `mapstructure:"max_candidates"`
	AllowSkipExistenceCheck bool `mapstructure:"allow_skip_existence_check"`
}

// DBConfig controls access to the durable record table.
type DBConfig struct {
	Driver                 string `mapstructure:"driver"`
	DSN                    string `mapstructure:"dsn"`
	Table                  string `mapstructure:"table"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeSeconds int    `mapstructure:"max_conn_lifetime_seconds"`
}

// ArchiveConfig selects where raw documents are archived, if anywhere.
type ArchiveConfig struct {
	Provider  string `mapstructure:"provider"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for persisted-record notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// MetricsConfig configures the Prometheus Pushgateway used at the end of a run.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	JobName        string `mapstructure:"job_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Supported values for db.driver and archive.provider.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	ArchiveNone  = ""
	ArchiveLocal = "local"
	ArchiveGCS   = "gcs"
)

// Load builds a Config from disk/environment. With an empty path it looks for an optional
// cityscope.yaml in the working directory and in $HOME/.cityscope.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CITYSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("cityscope")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.cityscope")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listing.pages", []string{
		"https://pub-london.escribemeetings.com/?MeetingViewId=1&Expanded=Audit%20Committee",
	})
	v.SetDefault("listing.link_pattern", "FileStream.ashx")
	v.SetDefault("listing.id_param", "DocumentId")
	v.SetDefault("listing.render_js", false)
	v.SetDefault("listing.concurrency", 2)
	v.SetDefault("listing.newest_first", false)
	v.SetDefault("http.user_agent", "cityscope-ingest/0.1")
	v.SetDefault("http.timeout_seconds", 60)
	v.SetDefault("http.max_body_bytes", 50*1024*1024)
	v.SetDefault("http.insecure_skip_verify", false)
	v.SetDefault("http.portal_rps", 2)
	v.SetDefault("http.portal_burst", 1)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 30)
	// Keys without a meaningful default are still registered so AutomaticEnv can fill them.
	v.SetDefault("generative.api_key", "")
	v.SetDefault("generative.base_url", "")
	v.SetDefault("generative.model", "gemini-2.5-flash")
	v.SetDefault("generative.temperature", 0.2)
	v.SetDefault("generative.timeout_seconds", 120)
	v.SetDefault("generative.min_interval_ms", 2000)
	v.SetDefault("generative.max_attempts", 3)
	v.SetDefault("generative.backoff_initial_ms", 1000)
	v.SetDefault("generative.backoff_max_ms", 16000)
	v.SetDefault("extractor.max_input_chars", 400000)
	v.SetDefault("pipeline.max_candidates", 30)
	v.SetDefault("pipeline.allow_skip_existence_check", false)
	v.SetDefault("db.driver", DriverPostgres)
	v.SetDefault("db.table", "meeting_summaries")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime_seconds", 0)
	v.SetDefault("archive.provider", ArchiveNone)
	v.SetDefault("archive.base_dir", "")
	v.SetDefault("archive.gcs_bucket", "")
	v.SetDefault("archive.prefix", "documents")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job_name", "cityscope_ingest")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if len(c.Listing.Pages) == 0 {
		return fmt.Errorf("listing.pages must list at least one page")
	}
	if c.Listing.LinkPattern == "" || c.Listing.IDParam == "" {
		return fmt.Errorf("listing.link_pattern and listing.id_param must be set")
	}
	if c.Listing.Concurrency <= 0 {
		return fmt.Errorf("listing.concurrency must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxBodyBytes < 0 {
		return fmt.Errorf("http.max_body_bytes must be >= 0")
	}
	if c.Listing.RenderJS && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when listing.render_js is enabled")
	}
	if c.Generative.Model == "" {
		return fmt.Errorf("generative.model must be set")
	}
	if c.Generative.MinIntervalMs < 0 {
		return fmt.Errorf("generative.min_interval_ms must be >= 0")
	}
	if c.Generative.MaxAttempts <= 0 {
		return fmt.Errorf("generative.max_attempts must be > 0")
	}
	if c.Pipeline.MaxCandidates <= 0 {
		return fmt.Errorf("pipeline.max_candidates must be > 0")
	}
	switch c.DB.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("db.driver must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.DB.Driver)
	}
	switch c.Archive.Provider {
	case ArchiveNone:
	case ArchiveLocal:
		if c.Archive.BaseDir == "" {
			return fmt.Errorf("archive.base_dir must be set when archive.provider is local")
		}
	case ArchiveGCS:
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set when archive.provider is gcs")
		}
	default:
		return fmt.Errorf("archive.provider must be empty, %q or %q", ArchiveLocal, ArchiveGCS)
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	return nil
}

// RequireRuntimeSecrets checks the values only needed when a run actually talks to the
// generative service and the database. Migration runs skip it.
func (c Config) RequireRuntimeSecrets() error {
	if c.Generative.APIKey == "" {
		return fmt.Errorf("generative.api_key must be set (CITYSCOPE_GENERATIVE_API_KEY)")
	}
	return c.RequireDatabase()
}

// RequireDatabase checks that the database can be located.
func (c Config) RequireDatabase() error {
	if c.DB.DSN == "" {
		return fmt.Errorf("db.dsn must be set (CITYSCOPE_DB_DSN)")
	}
	return nil
}

// HTTPTimeout converts the HTTP timeout into a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// MinInterval is the pacing interval between generative calls.
func (c Config) MinInterval() time.Duration {
	return time.Duration(c.Generative.MinIntervalMs) * time.Millisecond
}

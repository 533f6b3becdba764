package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Pipeline.MaxCandidates != 30 {
		t.Fatalf("expected default max candidates 30, got %d", cfg.Pipeline.MaxCandidates)
	}
	if got := cfg.MinInterval(); got != 2*time.Second {
		t.Fatalf("expected default min interval 2s, got %v", got)
	}
	if cfg.Listing.IDParam != "DocumentId" || cfg.Listing.LinkPattern != "FileStream.ashx" {
		t.Fatalf("unexpected listing defaults: %+v", cfg.Listing)
	}
	if cfg.DB.Driver != DriverPostgres || cfg.DB.Table != "meeting_summaries" {
		t.Fatalf("unexpected db defaults: %+v", cfg.DB)
	}
	if cfg.Pipeline.AllowSkipExistenceCheck {
		t.Fatal("skipping the existence check must be disallowed by default")
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
listing:
  pages:
    - https://portal.example.com/list?page=1
    - https://portal.example.com/list?page=2
  render_js: true
  newest_first: true
http:
  timeout_seconds: 30
  insecure_skip_verify: true
headless:
  max_parallel: 2
generative:
  api_key: secret
  model: gemini-2.5-pro
  min_interval_ms: 4000
  max_attempts: 5
pipeline:
  max_candidates: 10
db:
  driver: sqlite
  dsn: file:meetings.db
archive:
  provider: local
  base_dir: /tmp/archive
pubsub:
  project_id: proj
  topic_name: meetings
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.Listing.Pages) != 2 || !cfg.Listing.RenderJS || !cfg.Listing.NewestFirst {
		t.Fatalf("expected listing overrides to apply: %+v", cfg.Listing)
	}
	if cfg.Generative.APIKey != "secret" || cfg.Generative.MaxAttempts != 5 {
		t.Fatalf("expected generative overrides to apply: %+v", cfg.Generative)
	}
	if got := cfg.MinInterval(); got != 4*time.Second {
		t.Fatalf("expected 4s interval, got %v", got)
	}
	if got := cfg.HTTPTimeout(); got != 30*time.Second {
		t.Fatalf("expected 30s timeout, got %v", got)
	}
	if cfg.DB.Driver != DriverSQLite || cfg.Pipeline.MaxCandidates != 10 {
		t.Fatalf("expected db/pipeline overrides: %+v %+v", cfg.DB, cfg.Pipeline)
	}
	if cfg.Logging.Development {
		t.Fatal("expected development logging to be disabled")
	}
	if err := cfg.RequireRuntimeSecrets(); err != nil {
		t.Fatalf("RequireRuntimeSecrets() error = %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Listing: ListingConfig{
			Pages:       []string{"https://portal.example.com"},
			LinkPattern: "FileStream.ashx",
			IDParam:     "DocumentId",
			Concurrency: 1,
		},
		HTTP:       HTTPConfig{TimeoutSeconds: 10},
		Generative: GenerativeConfig{Model: "gemini-2.5-flash", MaxAttempts: 1},
		Pipeline:   PipelineConfig{MaxCandidates: 5},
		DB:         DBConfig{Driver: DriverPostgres},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should be valid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "no pages", mutate: func(c *Config) { c.Listing.Pages = nil }, want: "listing.pages"},
		{name: "no id param", mutate: func(c *Config) { c.Listing.IDParam = "" }, want: "listing.id_param"},
		{name: "invalid concurrency", mutate: func(c *Config) { c.Listing.Concurrency = 0 }, want: "listing.concurrency"},
		{name: "invalid timeout", mutate: func(c *Config) { c.HTTP.TimeoutSeconds = 0 }, want: "http.timeout_seconds"},
		{
			name: "render without headless slots",
			mutate: func(c *Config) {
				c.Listing.RenderJS = true
				c.Headless.MaxParallel = 0
			},
			want: "headless.max_parallel",
		},
		{name: "negative interval", mutate: func(c *Config) { c.Generative.MinIntervalMs = -1 }, want: "generative.min_interval_ms"},
		{name: "zero attempts", mutate: func(c *Config) { c.Generative.MaxAttempts = 0 }, want: "generative.max_attempts"},
		{name: "zero bound", mutate: func(c *Config) { c.Pipeline.MaxCandidates = 0 }, want: "pipeline.max_candidates"},
		{name: "unknown driver", mutate: func(c *Config) { c.DB.Driver = "mysql" }, want: "db.driver"},
		{name: "local archive without dir", mutate: func(c *Config) { c.Archive.Provider = ArchiveLocal }, want: "archive.base_dir"},
		{name: "gcs archive without bucket", mutate: func(c *Config) { c.Archive.Provider = ArchiveGCS }, want: "archive.gcs_bucket"},
		{name: "unknown archive", mutate: func(c *Config) { c.Archive.Provider = "s3" }, want: "archive.provider"},
		{name: "topic without project", mutate: func(c *Config) { c.PubSub.TopicName = "t" }, want: "pubsub.project_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			cfg.Listing.Pages = append([]string(nil), base.Listing.Pages...)
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestRequireRuntimeSecrets(t *testing.T) {
	t.Parallel()

	cfg := Config{}
	if err := cfg.RequireRuntimeSecrets(); err == nil || !strings.Contains(err.Error(), "generative.api_key") {
		t.Fatalf("expected api key error, got %v", err)
	}
	cfg.Generative.APIKey = "k"
	if err := cfg.RequireRuntimeSecrets(); err == nil || !strings.Contains(err.Error(), "db.dsn") {
		t.Fatalf("expected dsn error, got %v", err)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("CITYSCOPE_GENERATIVE_API_KEY", "from-env")
	t.Setenv("CITYSCOPE_DB_DSN", "postgres://localhost/cityscope")
	t.Setenv("CITYSCOPE_PIPELINE_MAX_CANDIDATES", "7")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Generative.APIKey != "from-env" || cfg.DB.DSN != "postgres://localhost/cityscope" {
		t.Fatalf("expected secrets from environment, got %+v %+v", cfg.Generative, cfg.DB)
	}
	if cfg.Pipeline.MaxCandidates != 7 {
		t.Fatalf("expected max candidates 7, got %d", cfg.Pipeline.MaxCandidates)
	}
}

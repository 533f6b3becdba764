// Package logging provides zap logger helpers.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ServiceName tags every log line emitted by the ingest binary.
const ServiceName = "cityscope-ingest"

// New builds a zap.Logger configured for development or production.
// Development output is a colored console encoder; production output is JSON
// suitable for the job runner's log collector.
func New(development bool) (*zap.Logger, error) {
	var (
		cfg  zap.Config
		kind string
	)
	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		kind = "dev"
	} else {
		cfg = zap.NewProductionConfig()
		cfg.DisableStacktrace = false
		kind = "prod"
	}
	cfg.EncoderConfig.TimeKey = "ts"
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build %s logger: %w", kind, err)
	}
	return logger.With(zap.String("service", ServiceName)), nil
}

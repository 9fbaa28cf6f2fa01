package observability

import (
	"os"

	"go.uber.org/zap"
)

// NewLogger builds the process logger. Production JSON output by
// default; LOG_FORMAT=console switches to the human-readable encoder
// for local development.
func NewLogger() (*zap.Logger, error) {
	if os.Getenv("LOG_FORMAT") == "console" {
		return zap.NewDevelopment()
	}

	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		if parsed, err := zap.ParseAtomicLevel(level); err == nil {
			cfg.Level = parsed
		}
	}
	return cfg.Build()
}

package logging

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceName = "chipledger-api"

// ParseLevel maps a configured level name to a zap level; unknown names mean info.
func ParseLevel(level string) zapcore.Level {
	name := strings.ToLower(strings.TrimSpace(level))
	if name == "warning" {
		name = "warn"
	}
	parsed, err := zapcore.ParseLevel(name)
	if err != nil || parsed < zapcore.DebugLevel || parsed > zapcore.ErrorLevel {
		return zapcore.InfoLevel
	}
	return parsed
}

// NewLogger builds the JSON production logger every component receives.
func NewLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(ParseLevel(level))
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.InitialFields = map[string]interface{}{"service": serviceName}
	return cfg.Build()
}

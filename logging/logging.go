// Package logging builds the zap logger shared by the service, the stores
// and the HTTP layer.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a JSON production logger for "production", a no-op logger for
// "test" and a colored console logger otherwise.
func New(env string) (*zap.Logger, error) {
	var cfg zap.Config
	switch env {
	case "test":
		return zap.NewNop(), nil
	case "production":
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	default:
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return cfg.Build(zap.Fields(zap.String("service", "stay-engine")))
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

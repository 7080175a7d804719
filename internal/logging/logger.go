package logging

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/agenthands/eventgraph/internal/errs"
)

// New builds a logger for the given environment. "production" yields JSON
// output at info level, anything else a colourised development logger.
func New(env string) (*zap.Logger, error) {
	var config zap.Config

	if env == "production" {
		config = zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	} else {
		config = zap.NewDevelopmentConfig()
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return config.Build()
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// Observe logs the outcome of one public operation. It is meant to be
// deferred with the address of the named error result:
//
//	defer logging.Observe(m.log, "events.add", &err, zap.String("event_id", e.ID))()
func Observe(l *zap.Logger, op string, errp *error, fields ...zap.Field) func() {
	start := time.Now()
	return func() {
		fs := append(fields, zap.String("op", op), zap.Duration("elapsed", time.Since(start)))
		if errp == nil || *errp == nil {
			l.Debug("operation completed", fs...)
			return
		}
		err := *errp
		fs = append(fs, zap.Error(err))
		switch errs.KindOf(err) {
		case errs.KindNotFound, errs.KindDuplicateMapping:
			l.Debug("operation returned no result", fs...)
		case errs.KindValidation, errs.KindInvalidArgument:
			l.Warn("operation rejected input", fs...)
		default:
			l.Error("operation failed", fs...)
		}
	}
}

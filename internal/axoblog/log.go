// Package axoblog provides the zap logger construction shared by every
// axob package. All engines, the multiplexer, and the replay CLI log
// through loggers built here so field names stay consistent across
// the repo.
package axoblog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the root logger. debug=true switches to a development
// config (console output, caller info); production otherwise uses
// JSON output suitable for log aggregation.
func New(debug bool) (*zap.Logger, error) {
	if debug {
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		return cfg.Build()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	return cfg.Build()
}

// ForInstrument returns a child logger tagged with the instrument's
// SecurityID and SecurityIDSource, the way every engine-scoped log line
// needs to be attributable to one instrument in a multiplexed run.
func ForInstrument(base *zap.Logger, securityID uint32, source string) *zap.Logger {
	return base.With(
		zap.Uint32("security_id", securityID),
		zap.String("security_source", source),
	)
}

// Nop returns a logger that discards everything, used as the zero value
// default so engines built without an explicit logger don't panic.
func Nop() *zap.Logger {
	return zap.NewNop()
}

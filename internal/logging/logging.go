// Copyright Contributors to the ingestctl project

// Package logging wires a logr.Logger backed by zap, the way the
// upstream controller tooling this project is descended from always
// did, minus the controller-runtime dependency that came with it.
package logging

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls the zap core construction. Development mode favors
// console output and debug-level verbosity; production mode favors JSON
// output at info level, suitable for log aggregation.
type Options struct {
	Development bool
	Level       string // debug|info|warn|error, empty defaults per Development
}

// New builds a logr.Logger. This project threads the logger explicitly,
// passing it down through constructors rather than through a context
// or a package-level global.
func New(opts Options) logr.Logger {
	var cfg zap.Config
	if opts.Development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		cfg = zap.NewProductionConfig()
	}
	if lvl, err := zapcore.ParseLevel(opts.Level); err == nil && opts.Level != "" {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	z, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		// zap.Config.Build only fails on a malformed encoder/sink
		// configuration, which New never produces; fall back rather
		// than propagate an error from a constructor with no error
		// return.
		z = zap.NewNop()
	}
	return zapr.NewLogger(z)
}

// NewNop returns a logger that discards everything, for tests that
// don't want to assert on log output.
func NewNop() logr.Logger {
	return logr.Discard()
}

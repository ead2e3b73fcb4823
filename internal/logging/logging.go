// Package logging builds the zap logger shared by the server and engines.
//
// Everything goes to stderr: stdout carries the MCP wire protocol and a
// single stray log line there corrupts the stream.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a production-configured logger writing to stderr.
// The returned flush func should run on shutdown; its error is safe to
// ignore (stderr does not support Sync on some platforms).
func New(debug bool) (*zap.Logger, func(), error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, nil, err
	}
	flush := func() { _ = logger.Sync() }
	return logger, flush, nil
}

// Nop returns a logger that discards everything. Engines take it as the
// default so tests and library callers never require log wiring.
func Nop() *zap.Logger {
	return zap.NewNop()
}

// Package logging builds the process-wide structured logger. It replaces
// the teacher's scattered stdlib log.Printf calls with a single
// *zap.SugaredLogger, keeping the teacher's one-line-per-event style (see
// cmd/server/main.go and outbox_service.go in the teacher repo) but not its
// emoji tags: messages here are plain text with structured fields.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production-shaped JSON logger, writing to stderr.
// devMode switches to a human-friendly console encoder with color levels,
// matching how a desktop sidecar is actually run (piped to the host's log
// window) rather than a server fleet's JSON aggregator. Stdout is
// deliberately left untouched by the logger: the launcher's port-discovery
// handshake (spec.md §4.3) reads stdout for a single "SIDECAR_PORT=<n>"
// line, and interleaved log output there would corrupt that protocol.
func New(devMode bool) *zap.SugaredLogger {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder

	var encoder zapcore.Encoder
	if devMode {
		encoder = zapcore.NewConsoleEncoder(cfg)
	} else {
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewJSONEncoder(cfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), zapcore.DebugLevel)
	logger := zap.New(core)
	return logger.Sugar()
}

// Nop returns a logger that discards everything, for tests that don't care
// about log output.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

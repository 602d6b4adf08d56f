// Package logging builds the logr.Logger used across the tool.
package logging

import (
	"fmt"
	"io"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls the logger
type Options struct {
	// Verbose enables V(1) debug output
	Verbose bool
	// JSON switches from console to JSON encoding, for service mode
	JSON bool
}

// New returns a logger writing to w
func New(w io.Writer, opts Options) logr.Logger {
	level := zapcore.InfoLevel
	if opts.Verbose {
		level = zapcore.DebugLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if opts.JSON {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(w), level)
	return zapr.NewLogger(zap.New(core))
}

// Sync flushes buffered entries of a logger created by New
func Sync(log logr.Logger) error {
	if u, ok := log.GetSink().(zapr.Underlier); ok {
		if err := u.GetUnderlying().Sync(); err != nil {
			return fmt.Errorf("failed to flush logs: %w", err)
		}
	}
	return nil
}

// Package logging configures the process-wide zap logger.
package logging

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Init configures the global zap logger with the given level and format.
// If w is nil, os.Stderr is used. Format must be "console" or "json".
func Init(level, format string, w io.Writer) error {
	if w == nil {
		w = os.Stderr
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	switch format {
	case "json":
		enc = zapcore.NewJSONEncoder(encCfg)
	case "", "console", "text":
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(w)), zap.NewAtomicLevelAt(lvl))
	zap.ReplaceGlobals(zap.New(core))
	return nil
}

// New returns a logger named after a component for module-scoped logging.
func New(component string) *zap.Logger {
	return zap.L().Named(component)
}

// Sync flushes buffered log entries.
func Sync() {
	_ = zap.L().Sync()
}

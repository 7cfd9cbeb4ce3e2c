// Package logging provides zap logger helpers.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CriticalLevel marks vendor-fatal failures. zap has no critical level, so DPanic is
// repurposed and rendered as CRITICAL. Loggers built here never enable zap's
// development mode, so DPanic entries do not panic.
const CriticalLevel = zapcore.DPanicLevel

const defaultMaxAgeDays = 14

// Options configure New.
type Options struct {
	// Development selects the colored console encoder instead of JSON.
	Development bool
	// Level is the minimum enabled level name; empty means info.
	Level string
	// Dir enables an hourly rotated JSON log file in this directory.
	Dir string
	// MaxAgeDays bounds how long rotated files are kept.
	MaxAgeDays int
	// Output overrides stdout for the console sink.
	Output io.Writer
}

// New builds a zap.Logger configured for development or production.
func New(opts Options) (*zap.Logger, error) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
			return nil, fmt.Errorf("parse log level %q: %w", opts.Level, err)
		}
	}

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	var consoleEnc zapcore.Encoder
	if opts.Development {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.TimeKey = "ts"
		cfg.EncodeLevel = levelEncoder(true)
		consoleEnc = zapcore.NewConsoleEncoder(cfg)
	} else {
		consoleEnc = zapcore.NewJSONEncoder(productionEncoderConfig())
	}
	cores := []zapcore.Core{zapcore.NewCore(consoleEnc, zapcore.AddSync(out), level)}

	if opts.Dir != "" {
		w, err := rotatingWriter(opts.Dir, opts.MaxAgeDays)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(productionEncoderConfig()), zapcore.AddSync(w), level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(CriticalLevel)), nil
}

// Critical logs msg at CriticalLevel.
func Critical(logger *zap.Logger, msg string, fields ...zap.Field) {
	if ce := logger.Check(CriticalLevel, msg); ce != nil {
		ce.Write(fields...)
	}
}

func productionEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = levelEncoder(false)
	return cfg
}

func levelEncoder(color bool) zapcore.LevelEncoder {
	return func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		switch {
		case l == CriticalLevel && color:
			enc.AppendString("\x1b[35mCRITICAL\x1b[0m")
		case l == CriticalLevel:
			enc.AppendString("CRITICAL")
		case color:
			zapcore.CapitalColorLevelEncoder(l, enc)
		default:
			zapcore.CapitalLevelEncoder(l, enc)
		}
	}
}

func rotatingWriter(dir string, maxAgeDays int) (*rotatelogs.RotateLogs, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	if maxAgeDays <= 0 {
		maxAgeDays = defaultMaxAgeDays
	}
	w, err := rotatelogs.New(
		filepath.Join(dir, "plantmonitor-%Y-%m-%d-%H.log"),
		rotatelogs.WithLinkName(filepath.Join(dir, "plantmonitor.log")),
		rotatelogs.WithRotationTime(time.Hour),
		rotatelogs.WithMaxAge(time.Duration(maxAgeDays)*24*time.Hour),
	)
	if err != nil {
		return nil, fmt.Errorf("open rotating log: %w", err)
	}
	return w, nil
}

// Package logging holds the process-wide zap logger and the field helpers
// shared by the pipeline, the API and the CLI.
package logging

import (
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var current atomic.Pointer[zap.Logger]

// Config selects level and output format.
type Config struct {
	Level       string // debug, info, warn, error
	Development bool
	JSON        bool
}

// DefaultConfig logs info and above to the console.
func DefaultConfig() Config {
	return Config{Level: "info"}
}

// Build constructs a logger from cfg without installing it.
// An unknown level is treated as info.
func Build(cfg Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		level = zapcore.InfoLevel
	}

	zc := zap.NewProductionConfig()
	switch {
	case cfg.Development:
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	case !cfg.JSON:
		zc.Encoding = "console"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	return zc.Build(zap.AddCallerSkip(1))
}

// Reconfigure installs a logger built from cfg. The previous logger stays
// in place if cfg cannot be built.
func Reconfigure(cfg Config) error {
	l, err := Build(cfg)
	if err != nil {
		return err
	}
	Replace(l)
	return nil
}

// Replace installs l and returns a function that puts the previous logger back.
func Replace(l *zap.Logger) (restore func()) {
	prev := current.Swap(l)
	return func() { current.Store(prev) }
}

// L returns the installed logger, building the default one on first use.
func L() *zap.Logger {
	if l := current.Load(); l != nil {
		return l
	}
	l, err := Build(DefaultConfig())
	if err != nil {
		l = zap.NewNop()
	}
	current.CompareAndSwap(nil, l)
	return current.Load()
}

// Sync flushes buffered entries.
func Sync() error {
	if l := current.Load(); l != nil {
		return l.Sync()
	}
	return nil
}

func Debug(msg string, fields ...zap.Field) { L().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field) { L().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field) { L().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { L().Error(msg, fields...) }

func String(key, val string) zap.Field { return zap.String(key, val) }
func Int(key string, val int) zap.Field { return zap.Int(key, val) }
func Bool(key string, val bool) zap.Field { return zap.Bool(key, val) }
func Any(key string, val any) zap.Field { return zap.Any(key, val) }
func Duration(key string, val time.Duration) zap.Field { return zap.Duration(key, val) }
func Err(err error) zap.Field { return zap.Error(err) }

// Fingerprint tags an entry with the media fingerprint it concerns.
func Fingerprint(hash string) zap.Field { return zap.String("fingerprint", hash) }

// Media tags an entry with the media reference (path or URI) being processed.
func Media(ref string) zap.Field { return zap.String("media", ref) }

// Provider tags an entry with a notarization or storage provider name.
func Provider(name string) zap.Field { return zap.String("provider", name) }

// StdLogger returns a writer for log.New that forwards each line as an error
// entry. net/http uses it for connection-level failures.
func StdLogger() *LineWriter { return &LineWriter{} }

// LineWriter adapts the standard library logger to zap.
type LineWriter struct{}

func (LineWriter) Write(p []byte) (int, error) {
	Error(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

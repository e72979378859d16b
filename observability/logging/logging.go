package logging

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configure the process logger.
type Options struct {
	Service string
	Env     string
	Level   string
	// File, when set, receives a copy of every line and is rotated by size.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	// Output replaces stdout, for tests.
	Output io.Writer
}

// Setup configures the standard library logger to emit structured JSON and returns
// the underlying slog.Logger for richer logging within the service. All log lines
// include the service name and environment when provided.
func Setup(service, env string) *slog.Logger {
	logger, _ := SetupWithOptions(Options{Service: service, Env: env})
	return logger
}

// SetupWithOptions is Setup with a level and an optional rotating file sink.
// The returned closer flushes and closes the file sink; it is never nil.
func SetupWithOptions(opts Options) (*slog.Logger, io.Closer) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		level = slog.LevelInfo
	}

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	var closer io.Closer = nopCloser{}
	if file := strings.TrimSpace(opts.File); file != "" {
		rotator := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		}
		out = io.MultiWriter(out, rotator)
		closer = rotator
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceAttr,
	})

	attrs := []slog.Attr{
		slog.String("service", strings.TrimSpace(opts.Service)),
	}
	if env := strings.TrimSpace(opts.Env); env != "" {
		attrs = append(attrs, slog.String("env", env))
	}

	withArgs := make([]any, 0, len(attrs))
	for _, attr := range attrs {
		withArgs = append(withArgs, attr)
	}

	base := slog.New(handler).With(withArgs...)
	slog.SetDefault(base)

	// Bridge the standard library logger so existing packages continue to work.
	stdBridge := slog.NewLogLogger(handler.WithAttrs(attrs), slog.LevelInfo)
	stdBridge.SetFlags(0)
	log.SetOutput(stdBridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return base, closer
}

func replaceAttr(_ []string, attr slog.Attr) slog.Attr {
	switch attr.Key {
	case slog.TimeKey:
		return slog.Attr{Key: "timestamp", Value: attr.Value}
	case slog.LevelKey:
		return slog.String("severity", strings.ToUpper(attr.Value.String()))
	case slog.MessageKey:
		return slog.Attr{Key: "message", Value: attr.Value}
	}
	if IsSensitive(attr.Key) && attr.Value.Kind() == slog.KindString {
		return slog.String(attr.Key, MaskValue(attr.Value.String()))
	}
	return attr
}

// ParseLevel maps a configured level name onto slog. Empty means info.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("logging: unknown level %q", name)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

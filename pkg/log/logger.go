package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	providerMu     sync.RWMutex
	globalProvider LoggerProvider = NewZerologProvider(LevelInfo)
)

// Init installs the process-wide provider. format is "json" (zerolog) or "text" (slog).
func Init(level string, format string, w io.Writer) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	if w == nil {
		w = os.Stderr
	}
	switch strings.ToLower(format) {
	case "", "json":
		SetProvider(NewZerologProviderWithWriter(lvl, w))
	case "text":
		SetProvider(NewSlogProvider(lvl, w))
	default:
		return fmt.Errorf("invalid log format: %s", format)
	}
	return nil
}

// SetProvider replaces the process-wide provider.
func SetProvider(p LoggerProvider) {
	providerMu.Lock()
	defer providerMu.Unlock()
	globalProvider = p
}

// GetLogger returns the default logger of the process-wide provider.
func GetLogger() Logger {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return globalProvider.GetLogger()
}

// GetLoggerWithName returns a component logger from the process-wide provider.
func GetLoggerWithName(name string) Logger {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return globalProvider.GetLoggerWithName(name)
}

// ParseLevel converts "debug", "info", "warn" or "error" into a Level.
func ParseLevel(level string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "info", "":
		return LevelInfo, nil
	case "debug":
		return LevelDebug, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("invalid log level: %s", level)
	}
}

// ToLogLevel is ParseLevel for literals known to be valid. It panics otherwise.
func ToLogLevel(level string) Level {
	lvl, err := ParseLevel(level)
	if err != nil {
		panic(err.Error())
	}
	return lvl
}

// SlogProvider implements LoggerProvider with a human-readable slog text handler.
type SlogProvider struct {
	mu      sync.RWMutex
	leveler *slog.LevelVar
	base    *slog.Logger
}

// NewSlogProvider creates a text provider whose records carry stack traces of logged errors.
func NewSlogProvider(level Level, w io.Writer) *SlogProvider {
	lv := new(slog.LevelVar)
	lv.Set(slog.Level(level))
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: lv})
	return &SlogProvider{leveler: lv, base: slog.New(WrapByErrFmtHandler(handler))}
}

func (p *SlogProvider) GetLogger() Logger {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return &slogLogger{l: p.base}
}

func (p *SlogProvider) GetLoggerWithName(name string) Logger {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return &slogLogger{l: p.base.With(ComponentKey, name)}
}

func (p *SlogProvider) SetLevel(level Level) {
	p.leveler.Set(slog.Level(level))
}

type slogLogger struct {
	l *slog.Logger
}

func (s *slogLogger) Debug(msg string, fields ...any) { s.l.Debug(msg, normalize(fields)...) }
func (s *slogLogger) Info(msg string, fields ...any)  { s.l.Info(msg, normalize(fields)...) }
func (s *slogLogger) Warn(msg string, fields ...any)  { s.l.Warn(msg, normalize(fields)...) }
func (s *slogLogger) Error(msg string, fields ...any) { s.l.Error(msg, normalize(fields)...) }

func (s *slogLogger) With(fields ...any) Logger {
	return &slogLogger{l: s.l.With(normalize(fields)...)}
}

func (s *slogLogger) Enabled(ctx context.Context, level Level) bool {
	return s.l.Enabled(ctx, slog.Level(level))
}

// normalize rewrites a leading error into an "error" attribute so ErrFmtHandler sees it.
func normalize(fields []any) []any {
	err, rest := splitLeadingError(fields)
	if err == nil {
		return fields
	}
	out := make([]any, 0, len(rest)+1)
	out = append(out, slog.Any(ErrorKey, err))
	return append(out, rest...)
}

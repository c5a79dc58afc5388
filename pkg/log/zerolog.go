package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ZerologProvider implements LoggerProvider on top of zerolog.
type ZerologProvider struct {
	mu    sync.RWMutex
	base  zerolog.Logger
	level Level
}

// NewZerologProvider creates a provider writing JSON lines to stderr.
func NewZerologProvider(level Level) *ZerologProvider {
	return NewZerologProviderWithWriter(level, os.Stderr)
}

// NewZerologProviderWithWriter creates a provider writing JSON lines to w.
func NewZerologProviderWithWriter(level Level, w io.Writer) *ZerologProvider {
	zerolog.TimeFieldFormat = time.RFC3339
	base := zerolog.New(w).With().Timestamp().Logger().Level(toZerologLevel(level))
	return &ZerologProvider{base: base, level: level}
}

// GetLogger implements LoggerProvider.GetLogger.
func (p *ZerologProvider) GetLogger() Logger {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return &zerologLogger{zl: p.base, level: p.level}
}

// GetLoggerWithName implements LoggerProvider.GetLoggerWithName.
func (p *ZerologProvider) GetLoggerWithName(name string) Logger {
	p.mu.RLock()
	defer p.mu.RUnlock()
	zl := p.base.With().Str(ComponentKey, name).Logger()
	return &zerologLogger{zl: zl, level: p.level}
}

// SetLevel implements LoggerProvider.SetLevel. Loggers handed out earlier keep their level.
func (p *ZerologProvider) SetLevel(level Level) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.level = level
	p.base = p.base.Level(toZerologLevel(level))
}

type zerologLogger struct {
	zl    zerolog.Logger
	level Level
}

func (l *zerologLogger) Debug(msg string, fields ...any) {
	l.emit(l.zl.Debug(), msg, fields)
}

func (l *zerologLogger) Info(msg string, fields ...any) {
	l.emit(l.zl.Info(), msg, fields)
}

func (l *zerologLogger) Warn(msg string, fields ...any) {
	l.emit(l.zl.Warn(), msg, fields)
}

func (l *zerologLogger) Error(msg string, fields ...any) {
	l.emit(l.zl.Error(), msg, fields)
}

func (l *zerologLogger) With(fields ...any) Logger {
	ctx := l.zl.With()
	err, rest := splitLeadingError(fields)
	if err != nil {
		ctx = ctx.Str(ErrorKey, err.Error())
	}
	for i := 0; i+1 < len(rest); i += 2 {
		ctx = ctx.Interface(fmt.Sprint(rest[i]), rest[i+1])
	}
	return &zerologLogger{zl: ctx.Logger(), level: l.level}
}

func (l *zerologLogger) Enabled(_ context.Context, level Level) bool {
	return level >= l.level
}

func (l *zerologLogger) emit(ev *zerolog.Event, msg string, fields []any) {
	if ev == nil {
		return
	}
	err, rest := splitLeadingError(fields)
	if err != nil {
		appendError(ev, err)
	}
	for i := 0; i+1 < len(rest); i += 2 {
		key := fmt.Sprint(rest[i])
		switch v := rest[i+1].(type) {
		case error:
			ev = ev.Str(key, v.Error())
		case zerolog.LogObjectMarshaler:
			ev = ev.Object(key, v)
		default:
			ev = ev.Interface(key, v)
		}
	}
	if len(rest)%2 == 1 {
		ev = ev.Interface("!BADKEY", rest[len(rest)-1])
	}
	ev.Msg(msg)
}

// appendError adds the message, the stack trace and, when the error carries one,
// its structured zerolog representation.
func appendError(ev *zerolog.Event, err error) {
	ev.Str(ErrorKey, err.Error())
	if st := extractStacktrace(err); st != "" {
		ev.Str(StacktraceKey, st)
	}
	if kind := errorKind(err); kind != "" {
		ev.Str(ErrorKindKey, kind)
	}
}

func toZerologLevel(level Level) zerolog.Level {
	switch {
	case level <= LevelDebug:
		return zerolog.DebugLevel
	case level <= LevelInfo:
		return zerolog.InfoLevel
	case level <= LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

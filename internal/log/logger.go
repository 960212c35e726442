// Package log provides structured logging for lilt using zap.
package log

import (
	"strconv"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger with analysis-specific helpers.
type Logger struct {
	*zap.Logger
	onTrace func(addr uint64, category, name, detail string)
}

// New creates a new Logger. Debug loggers print step traces; otherwise only
// warnings and errors are emitted.
func New(debug bool) *Logger {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
		cfg.Encoding = "console"
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		logger = zap.NewNop()
	}
	return &Logger{Logger: logger}
}

// NewNop creates a no-op logger for testing.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// OrNop returns l, or a no-op logger if l is nil.
func OrNop(l *Logger) *Logger {
	if l == nil {
		return NewNop()
	}
	return l
}

// SetOnTrace sets the callback invoked for every traced event.
func (l *Logger) SetOnTrace(fn func(addr uint64, category, name, detail string)) {
	l.onTrace = fn
}

// Trace reports a modelled side effect, such as a procedure stub firing.
func (l *Logger) Trace(addr uint64, category, name, detail string) {
	if l.onTrace != nil {
		l.onTrace(addr, category, name, detail)
	}
	l.Debug("trace",
		zap.String("cat", category),
		zap.String("fn", name),
		zap.String("detail", detail),
		Addr(addr),
	)
}

// Unmodeled logs a construct the engine skipped.
func (l *Logger) Unmodeled(addr uint64, index int, text string) {
	l.Warn("unmodeled construct", Pos(addr, index), zap.String("text", text))
}

// With returns a child logger with fields preset.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...), onTrace: l.onTrace}
}

// Hex formats v as a 0x-prefixed hex string.
func Hex(v uint64) string {
	return "0x" + strconv.FormatUint(v, 16)
}

// Addr creates an address field.
func Addr(addr uint64) zap.Field {
	return zap.String("addr", Hex(addr))
}

// Pos creates an address/index position field.
func Pos(addr uint64, index int) zap.Field {
	return zap.String("pos", Hex(addr)+":"+strconv.Itoa(index))
}

// Fn creates a function name field.
func Fn(name string) zap.Field {
	return zap.String("fn", name)
}

// Reg creates a register field.
func Reg(name string) zap.Field {
	return zap.String("reg", name)
}

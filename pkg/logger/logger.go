// Package logger wraps zap with the settings flightlog uses everywhere:
// JSON for machines, a colored console layout for people, and component
// names attached with Named.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field is a structured log field
type Field = zapcore.Field

// Field constructors, so callers only import this package
var (
	String   = zap.String
	Strings  = zap.Strings
	Int      = zap.Int
	Int64    = zap.Int64
	Bool     = zap.Bool
	Duration = zap.Duration
	Error    = zap.Error
)

// Logger is a named zap logger
type Logger struct {
	*zap.Logger
}

// Config selects level, layout and destination
type Config struct {
	Level  string // debug, info, warn or error; empty is info
	Format string // json or console; empty is json

	// Output is stderr when nil, keeping stdout for command output
	Output io.Writer
}

var levels = map[string]zapcore.Level{
	"":      zapcore.InfoLevel,
	"debug": zapcore.DebugLevel,
	"info":  zapcore.InfoLevel,
	"warn":  zapcore.WarnLevel,
	"error": zapcore.ErrorLevel,
}

// ANSI colors of the console level column
var levelColors = map[zapcore.Level]string{
	zapcore.DebugLevel: "1;37",
	zapcore.InfoLevel:  "1;36",
	zapcore.WarnLevel:  "1;33",
	zapcore.ErrorLevel: "1;31",
}

// nameWidth is the width of the console logger name column
const nameWidth = 12

// New builds a logger from config
func New(config Config) (*Logger, error) {
	level, ok := levels[config.Level]
	if !ok {
		return nil, fmt.Errorf("unsupported log level: %s", config.Level)
	}

	encoder, err := newEncoder(config.Format, level == zapcore.DebugLevel)
	if err != nil {
		return nil, err
	}

	out := config.Output
	if out == nil {
		out = os.Stderr
	}

	opts := []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel)}
	if level == zapcore.DebugLevel {
		opts = append(opts, zap.AddCaller())
	}
	core := zapcore.NewCore(encoder, zapcore.AddSync(out), level)
	return &Logger{Logger: zap.New(core, opts...)}, nil
}

// NewNop returns a logger that writes nothing
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

func newEncoder(format string, withCaller bool) (zapcore.Encoder, error) {
	cfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      zapcore.OmitKey,
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	}
	if withCaller {
		cfg.CallerKey = "caller"
		cfg.EncodeCaller = zapcore.ShortCallerEncoder
	}

	switch format {
	case "json", "":
		return zapcore.NewJSONEncoder(cfg), nil
	case "console":
		cfg.EncodeLevel = colorLevel
		cfg.EncodeName = shortName
		return zapcore.NewConsoleEncoder(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported log format: %s", format)
	}
}

func colorLevel(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	color, ok := levelColors[level]
	if !ok {
		enc.AppendString(level.String())
		return
	}
	enc.AppendString("\033[" + color + "m" + level.String() + "\033[0m")
}

// shortName prints the innermost component of a logger name padded to nameWidth
func shortName(name string, enc zapcore.PrimitiveArrayEncoder) {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	if len(name) > nameWidth {
		name = name[:nameWidth]
	}
	enc.AppendString(fmt.Sprintf("%-*s", nameWidth, name))
}

// With returns a child logger carrying fields
func (l *Logger) With(fields ...Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...)}
}

// Named returns a child logger for a component
func (l *Logger) Named(name string) *Logger {
	return &Logger{Logger: l.Logger.Named(name)}
}

// WithRequestID tags an HTTP request's log lines
func (l *Logger) WithRequestID(requestID string) *Logger {
	return l.With(String("request_id", requestID))
}

// WithSession tags a sync session's log lines
func (l *Logger) WithSession(sessionID string) *Logger {
	return l.With(String("session", sessionID))
}

package log

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Level represents the severity level of a log message.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case FatalLevel:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case DebugLevel:
		return zapcore.DebugLevel
	case InfoLevel:
		return zapcore.InfoLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	case FatalLevel:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// ParseLevel parses a case-insensitive level name, defaulting to InfoLevel.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	case "fatal":
		return FatalLevel
	default:
		return InfoLevel
	}
}

// Format selects the zap encoder used by a Logger.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

// Field is a piece of structured context attached to a log line.
type Field = zap.Field

// F creates an arbitrary structured field, mirroring zap.Any.
func F(key string, value interface{}) Field { return zap.Any(key, value) }

// Str creates a string field.
func Str(key, value string) Field { return zap.String(key, value) }

// Int creates an integer field.
func Int(key string, value int) Field { return zap.Int(key, value) }

// Err creates an error field under the conventional "error" key.
func Err(err error) Field { return zap.Error(err) }

// Component tags a log line with the emitting component's name.
func Component(name string) Field { return zap.String("component", name) }

// Logger defines the core leveled, structured logging interface used across
// Zaku's packages. Call sites depend on this interface, never on zap
// directly.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)

	// With returns a derived Logger that always includes the given fields.
	With(fields ...Field) Logger
}

type zapLogger struct {
	l *zap.Logger
}

// LoggerOption configures a Logger built by NewLogger.
type LoggerOption func(*options)

type options struct {
	level      Level
	format     Format
	output     *os.File
	fileOutput *lumberjack.Logger
}

// WithLevel sets the minimum level emitted by the logger.
func WithLevel(level Level) LoggerOption {
	return func(o *options) { o.level = level }
}

// WithFormat selects the text or JSON encoder.
func WithFormat(format Format) LoggerOption {
	return func(o *options) { o.format = format }
}

// WithFileOutput additionally writes rotated logs to path, using
// lumberjack for size/age-based rotation.
func WithFileOutput(path string, maxSizeMB, maxBackups, maxAgeDays int) LoggerOption {
	return func(o *options) {
		o.fileOutput = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			MaxAge:     maxAgeDays,
			Compress:   true,
		}
	}
}

// NewLogger builds a Logger backed by zap, writing to stderr by default.
func NewLogger(opts ...LoggerOption) Logger {
	o := &options{level: InfoLevel, format: FormatText}
	for _, opt := range opts {
		opt(o)
	}

	var encoder zapcore.Encoder
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if o.format == FormatJSON {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	level := o.level.zapLevel()
	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), level),
	}
	if o.fileOutput != nil {
		fileEncoder := zapcore.NewJSONEncoder(encCfg)
		cores = append(cores, zapcore.NewCore(fileEncoder, zapcore.AddSync(o.fileOutput), level))
	}

	core := zapcore.NewTee(cores...)
	l := zap.New(core, zap.AddCaller())
	return &zapLogger{l: l}
}

func (z *zapLogger) Debug(msg string, fields ...Field) { z.l.Debug(msg, fields...) }
func (z *zapLogger) Info(msg string, fields ...Field)  { z.l.Info(msg, fields...) }
func (z *zapLogger) Warn(msg string, fields ...Field)  { z.l.Warn(msg, fields...) }
func (z *zapLogger) Error(msg string, fields ...Field) { z.l.Error(msg, fields...) }
func (z *zapLogger) Fatal(msg string, fields ...Field) { z.l.Fatal(msg, fields...) }

func (z *zapLogger) With(fields ...Field) Logger {
	return &zapLogger{l: z.l.With(fields...)}
}

// NewNop returns a Logger that discards all output, for tests.
func NewNop() Logger {
	return &zapLogger{l: zap.NewNop()}
}

package logger

import (
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type loggerImpl struct {
	zapLogger *zap.Logger
	level     zap.AtomicLevel
}

// New creates a JSON logger writing to every given writer at the given level.
func New(level Level, writers ...io.Writer) Logger {
	atomicLevel := zap.NewAtomicLevelAt(toZapLevel(level))
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "ts"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encoderConfig)

	if len(writers) == 0 {
		writers = []io.Writer{os.Stdout}
	}

	cores := make([]zapcore.Core, 0, len(writers))
	for _, w := range writers {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(w), atomicLevel))
	}

	return &loggerImpl{
		zapLogger: zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1)),
		level:     atomicLevel,
	}
}

// Initialize sets up the global logger instance. Thread-safe, only the first call wins.
func Initialize(level Level, writers ...io.Writer) {
	initOnce.Do(func() {
		globalLogger = New(level, writers...)
	})
}

// Global returns the global logger instance, initializing it to stdout if not already set.
func Global() Logger {
	Initialize(InfoLevel, os.Stdout)
	return globalLogger
}

// String returns a string field for structured logging.
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int returns an int field for structured logging.
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Int64 returns an int64 field for structured logging.
func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

// Bool returns a bool field for structured logging.
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Duration returns a duration field for structured logging.
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}

// Time returns a timestamp field for structured logging.
func Time(key string, value time.Time) Field {
	return Field{Key: key, Value: value}
}

// Error returns an error field for structured logging.
func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Any returns a generic field for structured logging.
func Any(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

func (l *loggerImpl) Debug(msg string, fields ...Field) {
	l.zapLogger.Debug(msg, convertFields(fields)...)
}

func (l *loggerImpl) Info(msg string, fields ...Field) {
	l.zapLogger.Info(msg, convertFields(fields)...)
}

func (l *loggerImpl) Warn(msg string, fields ...Field) {
	l.zapLogger.Warn(msg, convertFields(fields)...)
}

func (l *loggerImpl) Error(msg string, fields ...Field) {
	l.zapLogger.Error(msg, convertFields(fields)...)
}

// Fatal logs a message at FatalLevel and then calls os.Exit(1).
func (l *loggerImpl) Fatal(msg string, fields ...Field) {
	l.zapLogger.Fatal(msg, convertFields(fields)...)
}

// Panic logs a message at PanicLevel and then panics.
func (l *loggerImpl) Panic(msg string, fields ...Field) {
	l.zapLogger.Panic(msg, convertFields(fields)...)
}

// With returns a child logger sharing the level with its parent.
func (l *loggerImpl) With(fields ...Field) Logger {
	return &loggerImpl{
		zapLogger: l.zapLogger.With(convertFields(fields)...),
		level:     l.level,
	}
}

// Sync flushes any buffered log entries.
func (l *loggerImpl) Sync() error {
	return l.zapLogger.Sync()
}

func (l *loggerImpl) SetLevel(level Level) {
	l.level.SetLevel(toZapLevel(level))
}

func convertFields(fields []Field) []zap.Field {
	zapFields := make([]zap.Field, len(fields))
	for i, f := range fields {
		switch v := f.Value.(type) {
		case string:
			zapFields[i] = zap.String(f.Key, v)
		case int:
			zapFields[i] = zap.Int(f.Key, v)
		case int64:
			zapFields[i] = zap.Int64(f.Key, v)
		case bool:
			zapFields[i] = zap.Bool(f.Key, v)
		case time.Duration:
			zapFields[i] = zap.Duration(f.Key, v)
		case time.Time:
			zapFields[i] = zap.Time(f.Key, v)
		default:
			zapFields[i] = zap.Any(f.Key, v)
		}
	}
	return zapFields
}

func toZapLevel(level Level) zapcore.Level {
	switch level {
	case DebugLevel:
		return zap.DebugLevel
	case InfoLevel:
		return zap.InfoLevel
	case WarnLevel:
		return zap.WarnLevel
	case ErrorLevel:
		return zap.ErrorLevel
	case PanicLevel:
		return zap.PanicLevel
	case FatalLevel:
		return zap.FatalLevel
	default:
		return zap.InfoLevel
	}
}

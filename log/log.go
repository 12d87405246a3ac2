// Package log provides the logging facade used across the flowgraph kernel.
package log

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level names accepted by SetLevel.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
	LevelFatal = "fatal"
)

var atomicLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)

var encoderConfig = zapcore.EncoderConfig{
	TimeKey:        "ts",
	LevelKey:       "level",
	NameKey:        "logger",
	CallerKey:      "caller",
	MessageKey:     "msg",
	LineEnding:     zapcore.DefaultLineEnding,
	EncodeLevel:    zapcore.CapitalLevelEncoder,
	EncodeTime:     zapcore.ISO8601TimeEncoder,
	EncodeDuration: zapcore.StringDurationEncoder,
	EncodeCaller:   zapcore.ShortCallerEncoder,
}

// Logger is the subset of zap's SugaredLogger surface used by this module.
// Replace Default with any implementation of this interface.
type Logger interface {
	Debugf(template string, args ...interface{})
	Infof(template string, args ...interface{})
	Warnf(template string, args ...interface{})
	Errorf(template string, args ...interface{})
}

// Default is the package-level logger. It may be replaced wholesale by a
// caller that wants a different sink, as long as it satisfies Logger.
var Default Logger = zap.New(
	zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(os.Stderr),
		atomicLevel,
	),
	zap.AddCaller(),
	zap.AddCallerSkip(1),
).Sugar()

// SetLevel adjusts the minimum level emitted by Default. Unknown level
// names are ignored.
func SetLevel(level string) {
	switch level {
	case LevelDebug:
		atomicLevel.SetLevel(zapcore.DebugLevel)
	case LevelInfo:
		atomicLevel.SetLevel(zapcore.InfoLevel)
	case LevelWarn:
		atomicLevel.SetLevel(zapcore.WarnLevel)
	case LevelError:
		atomicLevel.SetLevel(zapcore.ErrorLevel)
	case LevelFatal:
		atomicLevel.SetLevel(zapcore.FatalLevel)
	}
}

func Debugf(template string, args ...interface{}) { Default.Debugf(template, args...) }
func Infof(template string, args ...interface{})  { Default.Infof(template, args...) }
func Warnf(template string, args ...interface{})  { Default.Warnf(template, args...) }
func Errorf(template string, args ...interface{}) { Default.Errorf(template, args...) }

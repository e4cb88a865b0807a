package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var base *zap.SugaredLogger

// Init builds the process-wide logger. Debug switches to the development
// encoder with DEBUG level; production uses JSON at INFO.
func Init(debug bool) error {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return err
	}
	base = l.Sugar()
	return nil
}

func Infof(format string, args ...any) {
	logger().Infof(format, args...)
}

func Warnf(format string, args ...any) {
	logger().Warnf(format, args...)
}

func Errorf(format string, args ...any) {
	logger().Errorf(format, args...)
}

func Fatalf(format string, args ...any) {
	logger().Fatalf(format, args...)
}

// Sync flushes buffered entries; call on shutdown.
func Sync() {
	if base != nil {
		_ = base.Sync()
	}
}

func logger() *zap.SugaredLogger {
	if base == nil {
		// Tests and tools that skip Init still get output.
		base = zap.Must(zap.NewDevelopment(zap.AddCallerSkip(1))).Sugar()
	}
	return base
}

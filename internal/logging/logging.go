// Package logging builds seedhook's zap logger: a console core for
// interactive runs and a rotating file core, replacing the teacher's ad hoc
// log.Printf-to-a-file-handle setup with the pack's structured-logging idiom.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	maxSizeMiB = 10
	maxBackups = 3
)

// New builds a zap.Logger writing to both stderr and a rotating file at
// path, at the given level ("DEBUG", "INFO", "WARN", "ERROR"; unrecognized
// values fall back to INFO). The returned func must be called before the
// process exits to flush buffered log entries.
func New(path, level string) (*zap.Logger, func(), error) {
	lvl := parseLevel(level)

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.Lock(os.Stderr),
		lvl,
	)

	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMiB,
		MaxBackups: maxBackups,
	}
	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.AddSync(rotator),
		lvl,
	)

	logger := zap.New(zapcore.NewTee(consoleCore, fileCore))
	cleanup := func() {
		logger.Sync()
		rotator.Close()
	}
	return logger, cleanup, nil
}

func parseLevel(level string) zapcore.Level {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

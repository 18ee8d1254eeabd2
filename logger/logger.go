/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package logger

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/suparena/entitywork/errors"
)

// Config selects level, encoding and destination of the process logger.
type Config struct {
	Level      string `mapstructure:"level" yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format     string `mapstructure:"format" yaml:"format" validate:"omitempty,oneof=json console"`
	Output     string `mapstructure:"output" yaml:"output" validate:"omitempty,oneof=stdout stderr file"`
	FilePath   string `mapstructure:"file_path" yaml:"file_path" validate:"required_if=Output file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
}

// New builds a logger from cfg. A file output rotates through lumberjack.
func New(cfg Config) (*zap.Logger, error) {
	level := zap.NewAtomicLevelAt(ParseLevel(cfg.Level))

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if cfg.Format == "console" {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	var sink zapcore.WriteSyncer
	switch cfg.Output {
	case "file":
		if cfg.FilePath == "" {
			return nil, errors.NewConfigurationError("log", "file_path", "required when output is file")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return nil, errors.Wrap(err, "creating log directory")
		}
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    orDefault(cfg.MaxSizeMB, 10),
			MaxBackups: orDefault(cfg.MaxBackups, 5),
			MaxAge:     orDefault(cfg.MaxAgeDays, 7),
			Compress:   true,
		})
	case "stderr":
		sink = zapcore.Lock(os.Stderr)
	default:
		sink = zapcore.Lock(os.Stdout)
	}

	core := zapcore.NewCore(encoder, sink, level)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// ParseLevel maps a level name to its zap level; unknown names mean info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Timed logs how long a scope took at debug level.
//
//	defer logger.Timed(log, "starting sql provider")()
func Timed(log *zap.Logger, operation string, fields ...zap.Field) func() {
	began := time.Now()
	return func() {
		log.Debug(operation, append(fields, zap.Duration("took", time.Since(began)))...)
	}
}

// Sync flushes log, ignoring the errors terminals report for stdout.
func Sync(log *zap.Logger) error {
	if err := log.Sync(); err != nil {
		msg := err.Error()
		if !strings.Contains(msg, "inappropriate ioctl for device") &&
			!strings.Contains(msg, "invalid argument") &&
			!strings.Contains(msg, "bad file descriptor") {
			return err
		}
	}
	return nil
}

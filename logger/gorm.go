/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package logger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/suparena/entitywork/errors"
)

// GormAdapter routes gorm's logging into zap.
type GormAdapter struct {
	log           *zap.Logger
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

// NewGormAdapter logs through log at the given gorm level. Queries slower than slowThreshold
// are logged as warnings; zero disables that.
func NewGormAdapter(log *zap.Logger, level gormlogger.LogLevel, slowThreshold time.Duration) *GormAdapter {
	if log == nil {
		log = zap.NewNop()
	}
	return &GormAdapter{log: log, level: level, slowThreshold: slowThreshold}
}

// ParseGormLevel maps a level name onto gorm's levels; debug and info log every statement.
func ParseGormLevel(level string) gormlogger.LogLevel {
	switch strings.ToLower(level) {
	case "debug", "info":
		return gormlogger.Info
	case "error":
		return gormlogger.Error
	case "silent":
		return gormlogger.Silent
	default:
		return gormlogger.Warn
	}
}

func (l *GormAdapter) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	return &GormAdapter{log: l.log, level: level, slowThreshold: l.slowThreshold}
}

func (l *GormAdapter) Info(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Info {
		l.log.Info(fmt.Sprintf(msg, args...))
	}
}

func (l *GormAdapter) Warn(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Warn {
		l.log.Warn(fmt.Sprintf(msg, args...))
	}
}

func (l *GormAdapter) Error(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Error {
		l.log.Error(fmt.Sprintf(msg, args...))
	}
}

func (l *GormAdapter) Trace(_ context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	sql, rows := fc()
	elapsed := time.Since(begin)
	fields := []zap.Field{
		zap.String("sql", sql),
		zap.Duration("elapsed", elapsed),
		zap.Int64("rows", rows),
	}

	switch {
	case err != nil && l.level >= gormlogger.Error && !errors.Is(err, gormlogger.ErrRecordNotFound):
		l.log.Error("sql statement failed", append(fields, zap.Error(err))...)
	case l.slowThreshold > 0 && elapsed > l.slowThreshold && l.level >= gormlogger.Warn:
		l.log.Warn("slow sql statement", fields...)
	case l.level >= gormlogger.Info:
		l.log.Debug("sql statement", fields...)
	}
}

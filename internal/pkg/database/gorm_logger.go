package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/CSCfi/fairdata-metax-sub001/internal/pkg/logger"
)

var queryDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "metax",
		Subsystem: "db",
		Name:      "query_duration_seconds",
		Help:      "SQL statement latency by outcome",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
	},
	[]string{"outcome"},
)

// zapGormLogger routes gorm output through zap. Missing rows, unique
// violations and retryable serialization failures are expected outcomes
// of record writes and are logged at debug level only.
type zapGormLogger struct {
	logger        *logger.Logger
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

func newGormLogger(log *logger.Logger, cfg *Config) gormlogger.Interface {
	level := gormlogger.Warn
	switch cfg.LogLevel {
	case "silent":
		level = gormlogger.Silent
	case "error":
		level = gormlogger.Error
	case "info":
		level = gormlogger.Info
	}
	return &zapGormLogger{logger: log, level: level, slowThreshold: cfg.SlowThreshold}
}

func (l *zapGormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *l
	cp.level = level
	return &cp
}

func (l *zapGormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Info {
		l.logger.WithContext(ctx).Info(fmt.Sprintf(msg, data...))
	}
}

func (l *zapGormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Warn {
		l.logger.WithContext(ctx).Warn(fmt.Sprintf(msg, data...))
	}
}

func (l *zapGormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Error {
		l.logger.WithContext(ctx).Error(fmt.Sprintf(msg, data...))
	}
}

func (l *zapGormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	outcome := queryOutcome(err)
	queryDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())

	if l.level <= gormlogger.Silent {
		return
	}

	sql, rows := fc()
	log := l.logger.WithContext(ctx)
	fields := []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.Int64("rows", rows),
		zap.String("sql", sql),
	}

	switch {
	case outcome == "error" && l.level >= gormlogger.Error:
		log.Error("database query error", append(fields, zap.Error(err))...)
	case outcome != "ok":
		log.Debug("database query rejected", append(fields, zap.String("outcome", outcome), zap.Error(err))...)
	case l.slowThreshold != 0 && elapsed > l.slowThreshold && l.level >= gormlogger.Warn:
		log.Warn("slow SQL query", append(fields, zap.Duration("threshold", l.slowThreshold))...)
	case l.level >= gormlogger.Info:
		log.Info("database query", fields...)
	}
}

func queryOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, gorm.ErrRecordNotFound):
		return "not_found"
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return "duplicate"
	case isRetryableError(err):
		return "retryable"
	default:
		return "error"
	}
}

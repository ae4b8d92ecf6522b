package logger

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

type GormLoggerConfig struct {
	Level                gormlogger.LogLevel
	SlowThreshold        time.Duration
	IgnoreRecordNotFound bool
}

// DefaultGormLoggerConfig logs errors and statements slower than a second.
// A full-refresh batch upsert routinely takes a few hundred milliseconds.
func DefaultGormLoggerConfig() GormLoggerConfig {
	return GormLoggerConfig{
		Level:                gormlogger.Warn,
		SlowThreshold:        time.Second,
		IgnoreRecordNotFound: true,
	}
}

// GormLogger routes gorm's statement log through zap with request and run
// correlation fields. Bound parameters are never logged.
type GormLogger struct {
	log *zap.Logger
	cfg GormLoggerConfig
}

func NewGormLogger(base *zap.Logger, cfg GormLoggerConfig) *GormLogger {
	if base == nil {
		base = zap.L()
	}
	return &GormLogger{log: base.Named("gorm"), cfg: cfg}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cfg := l.cfg
	cfg.Level = level
	return &GormLogger{log: l.log, cfg: cfg}
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	l.printf(ctx, gormlogger.Info, msg, data)
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	l.printf(ctx, gormlogger.Warn, msg, data)
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	l.printf(ctx, gormlogger.Error, msg, data)
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	level, slow, ok := l.traceLevel(elapsed, err)
	if !ok {
		return
	}
	ce := WithContext(ctx, l.log).Check(level, "gorm.query")
	if ce == nil {
		return
	}

	sql, rows := fc()
	sql = strings.TrimSpace(sql)
	fields := []zap.Field{
		zap.String("sql", sql),
		zap.String("operation", operationFromSQL(sql)),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows_affected", rows))
	}
	if slow {
		fields = append(fields, zap.Bool("slow", true))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	ce.Write(fields...)
}

// traceLevel picks the zap level for a finished statement: failures first,
// then slow statements, then everything else when gorm runs at Info.
func (l *GormLogger) traceLevel(elapsed time.Duration, err error) (level zapcore.Level, slow bool, ok bool) {
	cfg := l.cfg
	if cfg.Level <= gormlogger.Silent {
		return 0, false, false
	}
	if err != nil && cfg.Level >= gormlogger.Error {
		if !errors.Is(err, gormlogger.ErrRecordNotFound) || !cfg.IgnoreRecordNotFound {
			return zapcore.ErrorLevel, false, true
		}
	}
	if cfg.SlowThreshold > 0 && elapsed > cfg.SlowThreshold && cfg.Level >= gormlogger.Warn {
		return zapcore.WarnLevel, true, true
	}
	if cfg.Level >= gormlogger.Info {
		return zapcore.DebugLevel, false, true
	}
	return 0, false, false
}

func (l *GormLogger) ParamsFilter(_ context.Context, sql string, _ ...interface{}) (string, []interface{}) {
	return sql, nil
}

func (l *GormLogger) printf(ctx context.Context, min gormlogger.LogLevel, msg string, data []interface{}) {
	if l.cfg.Level < min {
		return
	}
	level := map[gormlogger.LogLevel]zapcore.Level{
		gormlogger.Info:  zapcore.InfoLevel,
		gormlogger.Warn:  zapcore.WarnLevel,
		gormlogger.Error: zapcore.ErrorLevel,
	}[min]
	ce := WithContext(ctx, l.log).Check(level, msg)
	if ce == nil {
		return
	}
	if len(data) > 0 {
		ce.Write(zap.Any("data", data))
		return
	}
	ce.Write()
}

// operationFromSQL names the statement kind, looking past a leading CTE.
func operationFromSQL(sql string) string {
	for _, token := range strings.Fields(strings.ToUpper(sql)) {
		token = strings.Trim(token, "();")
		switch token {
		case "SELECT", "INSERT", "UPDATE", "DELETE", "SAVEPOINT", "RELEASE", "ROLLBACK":
			return token
		}
	}
	return "UNKNOWN"
}

var _ gormlogger.Interface = (*GormLogger)(nil)

package telemetry

import (
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig holds configuration for database tracing.
type DBTracingConfig struct {
	Enabled         bool
	LogFullSQL      bool          // include bind variables in spans (development only)
	SlowQueryThresh time.Duration // default: 200ms
	DBName          string
}

const startTimeKey = "kksync:query_start"

// RegisterDBTracing installs the otelgorm plugin and a slow query logger on db.
func RegisterDBTracing(db *gorm.DB, cfg DBTracingConfig, logger *zap.Logger) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.SlowQueryThresh <= 0 {
		cfg.SlowQueryThresh = 200 * time.Millisecond
	}

	opts := []otelgorm.Option{}
	if cfg.DBName != "" {
		opts = append(opts, otelgorm.WithDBName(cfg.DBName))
	}
	if !cfg.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	before := func(tx *gorm.DB) {
		tx.InstanceSet(startTimeKey, time.Now())
	}
	after := func(tx *gorm.DB) {
		v, ok := tx.InstanceGet(startTimeKey)
		if !ok {
			return
		}
		started, ok := v.(time.Time)
		if !ok {
			return
		}
		elapsed := time.Since(started)
		if elapsed < cfg.SlowQueryThresh {
			return
		}
		span := trace.SpanFromContext(tx.Statement.Context)
		AddEvent(span, "slow_query", "db.duration_ms", elapsed.Milliseconds())
		logger.Warn("Slow database query",
			zap.String("table", tx.Statement.Table),
			zap.Duration("elapsed", elapsed),
			zap.Duration("threshold", cfg.SlowQueryThresh),
			zap.String("trace_id", GetTraceID(tx.Statement.Context)),
		)
	}

	cb := db.Callback()
	registrations := []struct {
		name   string
		before func(string, func(*gorm.DB)) error
		after  func(string, func(*gorm.DB)) error
	}{
		{"create", cb.Create().Before("gorm:create").Register, cb.Create().After("gorm:create").Register},
		{"query", cb.Query().Before("gorm:query").Register, cb.Query().After("gorm:query").Register},
		{"update", cb.Update().Before("gorm:update").Register, cb.Update().After("gorm:update").Register},
		{"delete", cb.Delete().Before("gorm:delete").Register, cb.Delete().After("gorm:delete").Register},
		{"row", cb.Row().Before("gorm:row").Register, cb.Row().After("gorm:row").Register},
		{"raw", cb.Raw().Before("gorm:raw").Register, cb.Raw().After("gorm:raw").Register},
	}
	for _, r := range registrations {
		if err := r.before("kksync:timing_before_"+r.name, before); err != nil {
			return err
		}
		if err := r.after("kksync:timing_after_"+r.name, after); err != nil {
			return err
		}
	}

	logger.Info("Database tracing enabled",
		zap.Bool("log_full_sql", cfg.LogFullSQL),
		zap.Duration("slow_query_threshold", cfg.SlowQueryThresh),
	)
	return nil
}

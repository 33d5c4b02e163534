package gormlog

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/utils"

	"github.com/fatflowers/entitlement/pkg/logctx"
)

const (
	defaultSlowThreshold = 500 * time.Millisecond
	// Receipts are stored inline, so upserts of a subscription carry the
	// whole base64 payload.
	defaultMaxSQLLen = 2048
)

type Options struct {
	Level         gormlogger.LogLevel
	SlowThreshold time.Duration
	// MaxSQLLen caps the logged statement; 0 uses the default, <0 disables.
	MaxSQLLen int
}

// ZapLogger implements gorm.io/gorm/logger.Interface on top of zap. The
// statement context supplies trace_id and user_id.
type ZapLogger struct {
	base *zap.SugaredLogger
	opts Options
}

func New(base *zap.SugaredLogger, opts Options) *ZapLogger {
	if opts.SlowThreshold <= 0 {
		opts.SlowThreshold = defaultSlowThreshold
	}
	if opts.MaxSQLLen == 0 {
		opts.MaxSQLLen = defaultMaxSQLLen
	}
	return &ZapLogger{base: base, opts: opts}
}

func (z *ZapLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	opts := z.opts
	opts.Level = level
	return &ZapLogger{base: z.base, opts: opts}
}

func (z *ZapLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if z.opts.Level >= gormlogger.Info {
		logctx.FromCtx(ctx, z.base).Info(fmt.Sprintf(msg, data...))
	}
}

func (z *ZapLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if z.opts.Level >= gormlogger.Warn {
		logctx.FromCtx(ctx, z.base).Warn(fmt.Sprintf(msg, data...))
	}
}

func (z *ZapLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if z.opts.Level >= gormlogger.Error {
		logctx.FromCtx(ctx, z.base).Error(fmt.Sprintf(msg, data...))
	}
}

func (z *ZapLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if z.opts.Level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	notFound := errors.Is(err, gorm.ErrRecordNotFound)
	slow := elapsed > z.opts.SlowThreshold

	var lvl gormlogger.LogLevel
	switch {
	case err != nil && !notFound:
		lvl = gormlogger.Error
	case slow:
		lvl = gormlogger.Warn
	default:
		lvl = gormlogger.Info
	}
	if z.opts.Level < lvl {
		return
	}

	sql, rows := fc()
	lg := logctx.FromCtx(ctx, z.base).With(
		"rows", rows,
		"elapsed_ms", elapsed.Milliseconds(),
		"caller", shortCaller(utils.FileWithLineNum()),
		"sql", truncate(sql, z.opts.MaxSQLLen),
	)
	switch lvl {
	case gormlogger.Error:
		lg.Errorw("gorm_error", "err", err)
	case gormlogger.Warn:
		lg.Warnw("gorm_slow", "threshold_ms", z.opts.SlowThreshold.Milliseconds())
	default:
		lg.Debugw("gorm")
	}
}

func truncate(sql string, max int) string {
	if max < 0 || len(sql) <= max {
		return sql
	}
	return fmt.Sprintf("%s...(%d bytes truncated)", sql[:max], len(sql)-max)
}

// shortCaller trims an absolute build path to the repo-relative part, e.g.
// /home/ci/src/internal/platform/db/db.go:38 -> internal/platform/db/db.go:38.
func shortCaller(s string) string {
	if s == "" {
		return s
	}
	file, line := s, ""
	if i := strings.LastIndex(s, ":"); i >= 0 {
		file, line = s[:i], s[i:]
	}
	file = filepath.ToSlash(file)
	for _, root := range []string{"/internal/", "/pkg/", "/cmd/"} {
		if i := strings.Index(file, root); i >= 0 {
			return file[i+1:] + line
		}
	}
	parts := strings.Split(strings.TrimPrefix(file, "/"), "/")
	if len(parts) > 3 {
		parts = parts[len(parts)-3:]
	}
	return strings.Join(parts, "/") + line
}

package gormlog

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestShortCaller(t *testing.T) {
	require.Equal(t, "internal/platform/db/db.go:38", shortCaller("/home/ci/src/internal/platform/db/db.go:38"))
	require.Equal(t, "pkg/x/y.go:12", shortCaller(`C:/repo/project/pkg/x/y.go:12`))
	require.Equal(t, "b/c/d.go:1", shortCaller("/a/b/c/d.go:1"))
	require.Equal(t, "", shortCaller(""))
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "select 1", truncate("select 1", 100))
	require.Equal(t, "sel...(5 bytes truncated)", truncate("select 1", 3))
	require.Equal(t, "select 1", truncate("select 1", -1))
}

func observed(opts Options) (*ZapLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return New(zap.New(core).Sugar(), opts), logs
}

func TestTrace_Levels(t *testing.T) {
	ctx := context.Background()
	query := func() (string, int64) { return "SELECT * FROM user_subscriptions", 1 }

	z, logs := observed(Options{Level: gormlogger.Warn, SlowThreshold: time.Second})
	z.Trace(ctx, time.Now(), query, nil)
	require.Zero(t, logs.Len())

	z.Trace(ctx, time.Now(), query, gorm.ErrRecordNotFound)
	require.Zero(t, logs.Len())

	z.Trace(ctx, time.Now().Add(-2*time.Second), query, nil)
	require.Equal(t, 1, logs.FilterMessage("gorm_slow").Len())

	z.Trace(ctx, time.Now(), query, errors.New("boom"))
	require.Equal(t, 1, logs.FilterMessage("gorm_error").Len())
}

func TestTrace_TruncatesReceiptPayloads(t *testing.T) {
	z, logs := observed(Options{Level: gormlogger.Info, MaxSQLLen: 16})
	long := "INSERT INTO user_subscriptions (receipt_data) VALUES ('" + strings.Repeat("A", 4096) + "')"
	z.Trace(context.Background(), time.Now(), func() (string, int64) { return long, 1 }, nil)

	entries := logs.FilterMessage("gorm").All()
	require.Len(t, entries, 1)
	sql, _ := entries[0].ContextMap()["sql"].(string)
	require.True(t, strings.HasPrefix(sql, long[:16]))
	require.Contains(t, sql, "bytes truncated")
}

func TestSilentLogsNothing(t *testing.T) {
	z, logs := observed(Options{})
	z.LogMode(gormlogger.Silent).Trace(context.Background(), time.Now(), func() (string, int64) { return "x", 0 }, errors.New("boom"))
	require.Zero(t, logs.Len())
}

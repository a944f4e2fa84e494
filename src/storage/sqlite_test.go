package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deribit-gateway/src/logger"
	"deribit-gateway/src/models"
)

func newSQLite(t *testing.T) *AsyncSQLiteDB {
	t.Helper()

	cfg := &models.MConfig{
		Storage: models.MStorageConfig{
			DBType:        "sqlite",
			DBPath:        filepath.Join(t.TempDir(), "gateway.db"),
			RetentionDays: 30,
		},
	}
	db, err := NewAsyncSQLiteDB(cfg, logger.NewLogger("error", "storage-test"))
	require.NoError(t, err)
	require.NoError(t, db.Initialize())
	t.Cleanup(func() { db.Close() })
	return db
}

func invocation(tool string, ok bool, ts int64) models.MInvocation {
	return models.MInvocation{
		Tool:       tool,
		ArgsJSON:   `{"currency":"BTC"}`,
		OK:         ok,
		ErrorCode:  0,
		DurationMs: 12,
		OutputByte: 512,
		Timestamp:  ts,
		CreatedAt:  time.UnixMilli(ts),
	}
}

func TestSQLiteSaveAndReadInvocations(t *testing.T) {
	db := newSQLite(t)
	now := time.Now().UnixMilli()

	require.NoError(t, db.SaveInvocation(invocation("deribit_status", true, now-2000)))
	require.NoError(t, db.SaveInvocation(invocation("compute_max_pain", false, now-1000)))
	require.NoError(t, db.SaveInvocation(invocation("get_option_chain", true, now)))

	out, err := db.RecentInvocations(2)
	require.NoError(t, err)
	require.Len(t, out, 2)
	// Newest first.
	assert.Equal(t, "get_option_chain", out[0].Tool)
	assert.Equal(t, "compute_max_pain", out[1].Tool)
	assert.True(t, out[0].OK)
	assert.False(t, out[1].OK)
	assert.Equal(t, `{"currency":"BTC"}`, out[0].ArgsJSON)

	// Zero limit falls back to the default window.
	all, err := db.RecentInvocations(0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSQLiteSaveSnapshot(t *testing.T) {
	db := newSQLite(t)

	require.NoError(t, db.SaveSnapshot(models.MSnapshot{
		Tool:      "compute_gamma_exposure",
		Ccy:       "BTC",
		Payload:   `{"net_gex": -1.25}`,
		Timestamp: time.Now().UnixMilli(),
		CreatedAt: time.Now(),
	}))

	var count int
	require.NoError(t, db.DB.QueryRow("SELECT COUNT(*) FROM snapshots").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestSQLiteCleanupOldData(t *testing.T) {
	db := newSQLite(t)
	now := time.Now()
	old := now.AddDate(0, 0, -60).UnixMilli()

	require.NoError(t, db.SaveInvocation(invocation("deribit_status", true, old)))
	require.NoError(t, db.SaveInvocation(invocation("deribit_status", true, now.UnixMilli())))
	require.NoError(t, db.SaveSnapshot(models.MSnapshot{
		Tool: "compute_max_pain", Ccy: "BTC", Payload: "{}", Timestamp: old, CreatedAt: now,
	}))

	require.NoError(t, db.CleanupOldData())

	out, err := db.RecentInvocations(100)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, now.UnixMilli(), out[0].Timestamp)

	var count int
	require.NoError(t, db.DB.QueryRow("SELECT COUNT(*) FROM snapshots").Scan(&count))
	assert.Zero(t, count)
}

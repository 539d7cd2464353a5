package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/liar-bar/internal/config"
	"github.com/wfunc/liar-bar/internal/models"
	"go.uber.org/zap"
)

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open(&config.DatabaseConfig{Driver: "h2"}, zap.NewNop())
	assert.Error(t, err)
}

func TestOpenSQLiteFileAndMigrate(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "nested", "liarbar.db")
	db, err := Open(&config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          dsn,
		MaxIdleConns: 1,
		MaxOpenConns: 4,
		LogLevel:     "silent",
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})

	require.NoError(t, AutoMigrate(db, zap.NewNop()))
	// 第二次迁移应当无副作用
	require.NoError(t, AutoMigrate(db, zap.NewNop()))

	for _, model := range models.All() {
		assert.True(t, db.Migrator().HasTable(model), "%T", model)
	}
	assert.True(t, db.Migrator().HasIndex(&models.PlayerStatistics{}, "idx_stats_score_player"))
	assert.Equal(t, dsn, sqliteFile(db))
	assert.NoError(t, Ping(context.Background(), db))
}

func TestSQLitePath(t *testing.T) {
	assert.Equal(t, "", sqlitePath(":memory:"))
	assert.Equal(t, "", sqlitePath("file::memory:?cache=shared"))
	assert.Equal(t, "", sqlitePath("file:test?mode=memory&cache=shared"))
	assert.Equal(t, "./data/liarbar.db", sqlitePath("./data/liarbar.db"))
	assert.Equal(t, "data/x.db", sqlitePath("file:data/x.db?_busy_timeout=5000"))
}

func TestPingNil(t *testing.T) {
	assert.Error(t, Ping(context.Background(), nil))
}

package migration

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/ordersync/internal/config"
	"github.com/Additional-Code/ordersync/internal/database"
)

func TestMigratorUpAndDown(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "migrate.db")
	cfg := config.Config{Database: config.Database{Driver: "sqlite", WriterDSN: dsn, ReaderDSN: dsn}}

	conns, err := database.Open(cfg.Database)
	require.NoError(t, err)
	defer conns.Close()

	m, err := New(cfg, conns, zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, m.Up(ctx))
	// re-applying is a no-op
	require.NoError(t, m.Up(ctx))

	version, err := m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	var tables int
	err = conns.Writer.NewRaw("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('orders', 'order_items')").Scan(ctx, &tables)
	require.NoError(t, err)
	assert.Equal(t, 2, tables)

	require.NoError(t, m.Down(ctx, 0, true))

	err = conns.Writer.NewRaw("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('orders', 'order_items')").Scan(ctx, &tables)
	require.NoError(t, err)
	assert.Equal(t, 0, tables)
}

func TestMigrationsDir(t *testing.T) {
	assert.Equal(t, "sql/sqlite", migrationsDir("sqlite3"))
	assert.Equal(t, "sql/postgres", migrationsDir("postgres"))
	assert.Equal(t, "sql/mysql", migrationsDir("mysql"))

	for _, dir := range []string{"sql/sqlite", "sql/postgres", "sql/mysql"} {
		entries, err := migrationsFS.ReadDir(dir)
		require.NoError(t, err)
		assert.NotEmpty(t, entries)
	}
}

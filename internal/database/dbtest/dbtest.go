// Package dbtest opens migrated throwaway databases for tests.
package dbtest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/ordersync/internal/config"
	"github.com/Additional-Code/ordersync/internal/database"
	"github.com/Additional-Code/ordersync/internal/migration"
)

// NewSQLite returns connections to a fresh, fully migrated SQLite file under t.TempDir().
func NewSQLite(t *testing.T) *database.Connections {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "ordersync.db")
	cfg := config.Config{Database: config.Database{Driver: "sqlite", WriterDSN: dsn, ReaderDSN: dsn}}

	conns, err := database.Open(cfg.Database)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conns.Close() })

	m, err := migration.New(cfg, conns, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.Up(context.Background()))

	return conns
}

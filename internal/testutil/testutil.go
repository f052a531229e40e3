// Package testutil opens throwaway databases for package tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/boscod/trackwatch/config"
	"github.com/boscod/trackwatch/internal/database"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

// NewDB returns a migrated and seeded SQLite database in a temp dir.
func NewDB(t testing.TB) *bun.DB {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "test.db")
	db, err := database.Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	defaults, err := config.LoadDefaults("")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(context.Background(), db, defaults))
	return db
}

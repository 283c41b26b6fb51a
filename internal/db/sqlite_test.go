package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteStore(t *testing.T) Store {
	t.Helper()
	ctx := context.Background()
	store, err := OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(ctx))
	return store
}

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, newSQLiteStore)
}

func TestSQLiteMigrate_Idempotent(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "nested", "dreams.db"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Migrate(ctx))
}

func TestOpen_SelectsBackend(t *testing.T) {
	ctx := context.Background()

	store, err := Open(ctx, "sqlite://:memory:")
	require.NoError(t, err)
	defer store.Close()
	_, ok := store.(*SQLiteDB)
	assert.True(t, ok)

	_, err = Open(ctx, "")
	assert.Error(t, err)
}

func TestLoadMigrations_Ordered(t *testing.T) {
	for _, backend := range []string{"postgres", "sqlite"} {
		migrations, err := loadMigrations(backend)
		require.NoError(t, err)
		require.NotEmpty(t, migrations)
		for i := 1; i < len(migrations); i++ {
			assert.Less(t, migrations[i-1].Version, migrations[i].Version)
		}
	}
}

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRepos(t *testing.T) *Repositories {
	t.Helper()

	cfg := Config{
		DSN:             ":memory:",
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: 30 * time.Second,
	}

	repos, err := NewRepositories(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, repos.Close())
	})
	return repos
}

func TestNewRepositories(t *testing.T) {
	repos := setupTestRepos(t)

	require.NoError(t, repos.Ping(context.Background()))
	assert.NotNil(t, repos.Item)
	assert.NotNil(t, repos.Run)
}

func TestNewRepositories_Schema(t *testing.T) {
	repos := setupTestRepos(t)

	// all tables including the FTS index must exist
	for _, table := range []string{"items", "runs", "run_items", "items_fts"} {
		var count int
		err := repos.DB.Get(&count, "SELECT COUNT(*) FROM sqlite_master WHERE name = ?", table)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "table %s should exist", table)
	}
}

func TestNewRepositories_SchemaIdempotent(t *testing.T) {
	repos := setupTestRepos(t)

	// re-running the schema against an existing database must be a no-op
	require.NoError(t, initSchema(context.Background(), repos.DB))
}

func TestCheckFTS5(t *testing.T) {
	repos := setupTestRepos(t)

	// probe leaves nothing behind
	require.NoError(t, checkFTS5(context.Background(), repos.DB))
	var count int
	err := repos.DB.Get(&count, "SELECT COUNT(*) FROM sqlite_master WHERE name = 'fts5_probe'")
	require.NoError(t, err)
	assert.Zero(t, count)
}

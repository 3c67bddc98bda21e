package integration

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ersonp/canon-core/internal/infrastructure/config"
	"github.com/ersonp/canon-core/internal/infrastructure/relationaldb/sqlite"
)

// newRepo opens a fresh SQLite repository in a temp dir with the schema applied.
func newRepo(t *testing.T) *sqlite.Repository {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	repo, err := sqlite.NewRepository(config.SQLiteConfig{Path: dbPath})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	require.NoError(t, repo.EnsureSchema(context.Background()))
	return repo
}

package database

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrations(t *testing.T) {
	t.Parallel()

	pool, cleanupFunc := SetupTestDB(t)
	t.Cleanup(cleanupFunc)

	connString := pool.Config().ConnString()

	m, err := GetMigrate(connString)
	require.NoError(t, err)
	defer m.Close()

	// Count the number of logical migrations
	fnames, err := fs.Glob(migrationsFS, "migrations/*.up.sql")
	require.NoError(t, err)

	// SetupTestDB leaves the schema fully migrated; walk it down and back up.
	for i := len(fnames); i >= 1; i-- {
		err = m.Steps(-i)
		assert.NoError(t, err)

		err = m.Steps(i)
		assert.NoError(t, err)
	}

	version, dirty, err := GetVersion(connString)
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(len(fnames)), version)
}

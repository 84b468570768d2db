package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_InMemoryDatabaseMigratesSchema(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)
	defer s.Close()

	var version int
	require.NoError(t, s.db.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version))
	assert.Equal(t, CurrentSchemaVersion, version)
}

func TestOpen_FileBackedCreatesParentDirAndLockFile(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "nested", "julie.db")

	s, err := Open(dbPath)
	require.NoError(t, err)
	defer s.Close()

	require.NotNil(t, s.lock)
}

func TestClose_IsIdempotent(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestOpen_MigrateIsIdempotentAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "julie.db")

	s1, err := Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, s1.BulkStoreFiles(context.Background(), []*File{testFile("a.go")}))
	require.NoError(t, s1.Close())

	s2, err := Open(dbPath)
	require.NoError(t, err)
	defer s2.Close()

	stats, err := s2.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FileCount, "reopening an existing database must not lose rows or fail re-migration")
}

package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, no CGO

	julieerrors "github.com/anortham/julie-go/internal/errors"
)

// Store is the symbol graph's persistence layer: a single embedded SQLite
// database with WAL journaling and two FTS5 mirror tables, guarded by a
// coarse mutex plus a cross-process advisory lock for bulk operations.
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	lock   *writerLock
	closed bool
}

// Open opens (creating if absent) the store at path. An empty path opens an
// in-memory database, used throughout the test suite.
func Open(path string) (*Store, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, julieerrors.New(julieerrors.ErrCodeFilePermission,
				fmt.Sprintf("failed to create store directory %s", dir), err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, julieerrors.New(julieerrors.ErrCodeInternal, "failed to open store", err)
	}

	// Single writer to prevent lock contention (modernc.org/sqlite, like the
	// teacher's BM25 index, is happiest with exactly one open connection).
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, julieerrors.New(julieerrors.ErrCodeInternal, "failed to set pragma: "+p, err)
		}
	}

	s := &Store{db: db, path: path}

	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, julieerrors.New(julieerrors.ErrCodeSchemaUnknown, "failed to migrate schema", err)
	}

	if path != "" {
		dir := filepath.Dir(path)
		id := filepath.Base(path)
		s.lock = newWriterLock(dir, id)
	}

	return s, nil
}

// DB returns the underlying connection, for collaborators (internal/
// telemetry's query-metrics store) that need to share this store's
// single SQLite connection rather than open their own.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close checkpoints the WAL and closes the underlying connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.db == nil {
		return nil
	}
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// checkpoint issues a passive WAL checkpoint, bounding WAL growth after a
// bulk operation. Failures are non-fatal: logged by the caller, never
// propagated (spec §4.2.6).
func (s *Store) checkpoint(mode string) error {
	_, err := s.db.Exec(fmt.Sprintf("PRAGMA wal_checkpoint(%s)", mode))
	return err
}

// withWriterLock acquires the cross-process advisory lock (if this store
// was opened against a file, not :memory:) for the duration of fn.
func (s *Store) withWriterLock(fn func() error) error {
	if s.lock == nil {
		return fn()
	}
	if err := s.lock.Lock(); err != nil {
		return julieerrors.New(julieerrors.ErrCodeLockPoisoned, "failed to acquire store writer lock", err)
	}
	defer func() { _ = s.lock.Unlock() }()
	return fn()
}

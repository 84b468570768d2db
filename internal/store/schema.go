package store

// schema creates every base table, the two FTS5 mirrors and their sync
// triggers, and seeds schema_version. It is idempotent: every statement uses
// IF NOT EXISTS, matching the "migrations apply sequentially and are
// idempotent" invariant.
const schema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS workspaces (
	id         TEXT PRIMARY KEY,
	root       TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS files (
	path         TEXT PRIMARY KEY,
	language     TEXT NOT NULL DEFAULT '',
	content_hash TEXT NOT NULL DEFAULT '',
	size         INTEGER NOT NULL DEFAULT 0,
	mod_time     INTEGER NOT NULL DEFAULT 0,
	last_indexed INTEGER NOT NULL DEFAULT 0,
	content      TEXT,
	symbol_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS symbols (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	kind           TEXT NOT NULL,
	language       TEXT NOT NULL DEFAULT '',
	file_path      TEXT NOT NULL REFERENCES files(path) ON DELETE CASCADE,
	signature      TEXT NOT NULL DEFAULT '',
	start_byte     INTEGER NOT NULL DEFAULT 0,
	end_byte       INTEGER NOT NULL DEFAULT 0,
	start_line     INTEGER NOT NULL DEFAULT 0,
	end_line       INTEGER NOT NULL DEFAULT 0,
	start_col      INTEGER NOT NULL DEFAULT 0,
	end_col        INTEGER NOT NULL DEFAULT 0,
	doc_comment    TEXT NOT NULL DEFAULT '',
	visibility     TEXT NOT NULL DEFAULT 'public',
	parent_id      TEXT REFERENCES symbols(id) ON DELETE SET NULL,
	semantic_group TEXT NOT NULL DEFAULT '',
	confidence     REAL NOT NULL DEFAULT 1.0,
	code_context   TEXT NOT NULL DEFAULT '',
	content_type   TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS identifiers (
	id                   TEXT PRIMARY KEY,
	name                 TEXT NOT NULL,
	kind                 TEXT NOT NULL,
	language             TEXT NOT NULL DEFAULT '',
	file_path            TEXT NOT NULL REFERENCES files(path) ON DELETE CASCADE,
	start_byte           INTEGER NOT NULL DEFAULT 0,
	end_byte             INTEGER NOT NULL DEFAULT 0,
	start_line           INTEGER NOT NULL DEFAULT 0,
	end_line             INTEGER NOT NULL DEFAULT 0,
	start_col            INTEGER NOT NULL DEFAULT 0,
	end_col              INTEGER NOT NULL DEFAULT 0,
	containing_symbol_id TEXT REFERENCES symbols(id) ON DELETE CASCADE,
	target_symbol_id     TEXT REFERENCES symbols(id) ON DELETE SET NULL,
	confidence           REAL NOT NULL DEFAULT 1.0,
	code_context         TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS relationships (
	id             TEXT PRIMARY KEY,
	from_symbol_id TEXT NOT NULL REFERENCES symbols(id) ON DELETE CASCADE,
	to_symbol_id   TEXT NOT NULL REFERENCES symbols(id) ON DELETE CASCADE,
	kind           TEXT NOT NULL,
	file_path      TEXT NOT NULL DEFAULT '',
	line_number    INTEGER NOT NULL DEFAULT 0,
	confidence     REAL NOT NULL DEFAULT 1.0,
	metadata       TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS embeddings (
	symbol_id  TEXT NOT NULL REFERENCES symbols(id) ON DELETE CASCADE,
	model_name TEXT NOT NULL,
	vector_id  INTEGER NOT NULL,
	PRIMARY KEY (symbol_id, model_name)
);

CREATE TABLE IF NOT EXISTS embedding_vectors (
	vector_id  INTEGER PRIMARY KEY,
	dimensions INTEGER NOT NULL,
	bytes      BLOB NOT NULL,
	model_name TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_symbols_file_path ON symbols(file_path);
CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name);
CREATE INDEX IF NOT EXISTS idx_symbols_parent_id ON symbols(parent_id);
CREATE INDEX IF NOT EXISTS idx_identifiers_file_path ON identifiers(file_path);
CREATE INDEX IF NOT EXISTS idx_identifiers_containing ON identifiers(containing_symbol_id);
CREATE INDEX IF NOT EXISTS idx_identifiers_target ON identifiers(target_symbol_id);
CREATE INDEX IF NOT EXISTS idx_identifiers_name ON identifiers(name);
CREATE INDEX IF NOT EXISTS idx_relationships_from ON relationships(from_symbol_id);
CREATE INDEX IF NOT EXISTS idx_relationships_to ON relationships(to_symbol_id);

-- files FTS mirror: external content over files(path, content)
CREATE VIRTUAL TABLE IF NOT EXISTS files_fts USING fts5(
	path UNINDEXED,
	content,
	content='files',
	content_rowid='rowid',
	tokenize='unicode61'
);

CREATE TRIGGER IF NOT EXISTS files_ai AFTER INSERT ON files BEGIN
	INSERT INTO files_fts(rowid, path, content) VALUES (new.rowid, new.path, coalesce(new.content, ''));
END;
CREATE TRIGGER IF NOT EXISTS files_ad AFTER DELETE ON files BEGIN
	INSERT INTO files_fts(files_fts, rowid, path, content) VALUES ('delete', old.rowid, old.path, coalesce(old.content, ''));
END;
CREATE TRIGGER IF NOT EXISTS files_au AFTER UPDATE ON files BEGIN
	INSERT INTO files_fts(files_fts, rowid, path, content) VALUES ('delete', old.rowid, old.path, coalesce(old.content, ''));
	INSERT INTO files_fts(rowid, path, content) VALUES (new.rowid, new.path, coalesce(new.content, ''));
END;

-- symbols FTS mirror: tokenize='unicode61 tokenchars ''_:->.''' so qualified
-- names (pkg.Type::method, foo->bar) split usefully.
CREATE VIRTUAL TABLE IF NOT EXISTS symbols_fts USING fts5(
	symbol_id UNINDEXED,
	name,
	signature,
	doc_comment,
	code_context,
	content='symbols',
	content_rowid='rowid',
	tokenize="unicode61 tokenchars '_:->.'"
);

CREATE TRIGGER IF NOT EXISTS symbols_ai AFTER INSERT ON symbols BEGIN
	INSERT INTO symbols_fts(rowid, symbol_id, name, signature, doc_comment, code_context)
	VALUES (new.rowid, new.id, new.name, new.signature, new.doc_comment, new.code_context);
END;
CREATE TRIGGER IF NOT EXISTS symbols_ad AFTER DELETE ON symbols BEGIN
	INSERT INTO symbols_fts(symbols_fts, rowid, symbol_id, name, signature, doc_comment, code_context)
	VALUES ('delete', old.rowid, old.id, old.name, old.signature, old.doc_comment, old.code_context);
END;
CREATE TRIGGER IF NOT EXISTS symbols_au AFTER UPDATE ON symbols BEGIN
	INSERT INTO symbols_fts(symbols_fts, rowid, symbol_id, name, signature, doc_comment, code_context)
	VALUES ('delete', old.rowid, old.id, old.name, old.signature, old.doc_comment, old.code_context);
	INSERT INTO symbols_fts(rowid, symbol_id, name, signature, doc_comment, code_context)
	VALUES (new.rowid, new.id, new.name, new.signature, new.doc_comment, new.code_context);
END;

INSERT OR IGNORE INTO schema_version (version) VALUES (1);
`

// migrate applies schema to a freshly opened database. Every statement is
// idempotent, so calling migrate on an already-initialised database is safe.
func (s *Store) migrate() error {
	_, err := s.db.Exec(schema)
	return err
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	julieerrors "github.com/anortham/julie-go/internal/errors"
)

// BulkStoreFiles upserts file rows. Called before BulkStoreSymbols so the
// symbols' file_path foreign key is always satisfied.
func (s *Store) BulkStoreFiles(ctx context.Context, files []*File) error {
	if len(files) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return julieerrors.New(julieerrors.ErrCodeInternal, "failed to begin file transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO files(path, language, content_hash, size, mod_time, last_indexed, content, symbol_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			language = excluded.language,
			content_hash = excluded.content_hash,
			size = excluded.size,
			mod_time = excluded.mod_time,
			last_indexed = excluded.last_indexed,
			content = excluded.content,
			symbol_count = excluded.symbol_count`)
	if err != nil {
		return julieerrors.New(julieerrors.ErrCodeInternal, "failed to prepare file upsert", err)
	}
	defer stmt.Close()

	for _, f := range files {
		if _, err := stmt.ExecContext(ctx, f.Path, f.Language, f.ContentHash, f.Size,
			f.ModTime.Unix(), f.LastIndexed.Unix(), f.Content, f.SymbolCount); err != nil {
			return julieerrors.New(julieerrors.ErrCodeInternal, "failed to upsert file "+f.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return julieerrors.New(julieerrors.ErrCodeInternal, "failed to commit file batch", err)
	}
	if err := s.checkpoint("PASSIVE"); err != nil {
		slog.Warn("wal_checkpoint_failed", slog.String("op", "bulk_store_files"), slog.String("error", err.Error()))
	}
	return nil
}

// BulkStoreSymbols is the hot path for initial indexing. It runs at reduced
// durability, with FTS triggers and secondary indexes dropped for the
// duration, and inserts symbols in topological parent-first order so the
// self-referential parent_id foreign key never fails mid-batch.
func (s *Store) BulkStoreSymbols(ctx context.Context, symbols []*Symbol) error {
	if len(symbols) == 0 {
		return nil
	}

	return s.withWriterLock(func() error {
		s.mu.Lock()
		defer s.mu.Unlock()

		var prevSync string
		if err := s.db.QueryRowContext(ctx, "PRAGMA synchronous").Scan(&prevSync); err != nil {
			return julieerrors.New(julieerrors.ErrCodeInternal, "failed to snapshot synchronous pragma", err)
		}
		if _, err := s.db.ExecContext(ctx, "PRAGMA synchronous = OFF"); err != nil {
			return julieerrors.New(julieerrors.ErrCodeInternal, "failed to lower synchronous", err)
		}
		defer func() {
			_, _ = s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA synchronous = %s", prevSync))
		}()

		if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
			return julieerrors.New(julieerrors.ErrCodeInternal, "failed to force WAL", err)
		}

		triggersDropped := false
		if err := s.dropSymbolsFTSTriggers(ctx); err != nil {
			return err
		}
		triggersDropped = true
		defer func() {
			if triggersDropped {
				if err := s.restoreSymbolsFTSTriggers(ctx); err != nil {
					slog.Warn("fts_trigger_restore_failed", slog.String("error", err.Error()))
				}
			}
		}()

		indexesDropped := false
		if err := s.dropSymbolIndexes(ctx); err != nil {
			return err
		}
		indexesDropped = true
		defer func() {
			if indexesDropped {
				if err := s.recreateSymbolIndexes(ctx); err != nil {
					slog.Warn("symbol_index_recreate_failed", slog.String("error", err.Error()))
				}
			}
		}()

		if _, err := s.db.ExecContext(ctx, "PRAGMA cache_size = -131072"); err != nil {
			slog.Warn("cache_size_raise_failed", slog.String("error", err.Error()))
		}

		ordered, orphaned := topoSortParentFirst(symbols)
		if len(orphaned) > 0 {
			slog.Warn("symbol_orphans_nulled", slog.Int("count", len(orphaned)))
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return julieerrors.New(julieerrors.ErrCodeInternal, "failed to begin symbol transaction", err)
		}
		defer func() { _ = tx.Rollback() }()

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO symbols(id, name, kind, language, file_path, signature,
				start_byte, end_byte, start_line, end_line, start_col, end_col,
				doc_comment, visibility, parent_id, semantic_group, confidence,
				code_context, content_type)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name, kind = excluded.kind, language = excluded.language,
				file_path = excluded.file_path, signature = excluded.signature,
				start_byte = excluded.start_byte, end_byte = excluded.end_byte,
				start_line = excluded.start_line, end_line = excluded.end_line,
				start_col = excluded.start_col, end_col = excluded.end_col,
				doc_comment = excluded.doc_comment, visibility = excluded.visibility,
				parent_id = excluded.parent_id, semantic_group = excluded.semantic_group,
				confidence = excluded.confidence, code_context = excluded.code_context,
				content_type = excluded.content_type`)
		if err != nil {
			return julieerrors.New(julieerrors.ErrCodeInternal, "failed to prepare symbol insert", err)
		}
		defer stmt.Close()

		inserted := make(map[string]bool, len(ordered))
		for _, sym := range ordered {
			var parentID any
			if sym.ParentID != "" {
				parentID = sym.ParentID
				if !inserted[sym.ParentID] {
					// Parent is not in this batch; keep it only if already stored.
					var one int
					if tx.QueryRowContext(ctx, "SELECT 1 FROM symbols WHERE id = ?", sym.ParentID).Scan(&one) != nil {
						parentID = nil
						slog.Warn("symbol_orphan_nulled", slog.String("id", sym.ID))
					}
				}
			}
			inserted[sym.ID] = true
			if _, err := stmt.ExecContext(ctx, sym.ID, sym.Name, string(sym.Kind), sym.Language, sym.FilePath,
				sym.Signature, sym.Span.StartByte, sym.Span.EndByte, sym.Span.StartLine, sym.Span.EndLine,
				sym.Span.StartCol, sym.Span.EndCol, sym.DocComment, string(sym.Visibility), parentID,
				sym.SemanticGroup, sym.Confidence, sym.CodeContext, string(sym.ContentType)); err != nil {
				return julieerrors.New(julieerrors.ErrCodeInternal, "failed to insert symbol "+sym.ID, err)
			}
		}

		if err := tx.Commit(); err != nil {
			return julieerrors.New(julieerrors.ErrCodeInternal, "failed to commit symbol batch", err)
		}

		if err := s.rebuildSymbolsFTS(ctx); err != nil {
			return err
		}

		if err := s.recreateSymbolIndexes(ctx); err != nil {
			return err
		}
		indexesDropped = false

		if err := s.restoreSymbolsFTSTriggers(ctx); err != nil {
			return err
		}
		triggersDropped = false

		if err := s.checkpoint("PASSIVE"); err != nil {
			slog.Warn("wal_checkpoint_failed", slog.String("op", "bulk_store_symbols"), slog.String("error", err.Error()))
		}
		return nil
	})
}

// topoSortParentFirst orders symbols so that a parent always precedes its
// children. A symbol whose parent is not in this batch is kept as is
// (BulkStoreSymbols nulls that parent at insert time if it is not already
// stored). Symbols left after the fixpoint pass form a cycle within the
// batch; they have their parent_id nulled and are returned separately for
// logging.
func topoSortParentFirst(symbols []*Symbol) (ordered []*Symbol, orphaned []*Symbol) {
	byID := make(map[string]*Symbol, len(symbols))
	for _, sym := range symbols {
		byID[sym.ID] = sym
	}

	resolved := make(map[string]bool, len(symbols))
	remaining := make([]*Symbol, len(symbols))
	copy(remaining, symbols)

	for len(remaining) > 0 {
		progressed := false
		var next []*Symbol
		for _, sym := range remaining {
			_, parentInBatch := byID[sym.ParentID]
			if sym.ParentID == "" || resolved[sym.ParentID] || !parentInBatch {
				ordered = append(ordered, sym)
				resolved[sym.ID] = true
				progressed = true
			} else {
				next = append(next, sym)
			}
		}
		remaining = next
		if !progressed {
			break
		}
	}

	// Whatever is left forms a cycle within the batch — null and append.
	for _, sym := range remaining {
		clone := *sym
		clone.ParentID = ""
		ordered = append(ordered, &clone)
		orphaned = append(orphaned, &clone)
	}
	return ordered, orphaned
}

func (s *Store) dropSymbolsFTSTriggers(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		DROP TRIGGER IF EXISTS symbols_ai;
		DROP TRIGGER IF EXISTS symbols_ad;
		DROP TRIGGER IF EXISTS symbols_au;`)
	if err != nil {
		return julieerrors.New(julieerrors.ErrCodeInternal, "failed to drop symbols FTS triggers", err)
	}
	return nil
}

func (s *Store) restoreSymbolsFTSTriggers(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
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
		END;`)
	if err != nil {
		return julieerrors.New(julieerrors.ErrCodeInternal, "failed to restore symbols FTS triggers", err)
	}
	return nil
}

func (s *Store) dropSymbolIndexes(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		DROP INDEX IF EXISTS idx_symbols_file_path;
		DROP INDEX IF EXISTS idx_symbols_name;
		DROP INDEX IF EXISTS idx_symbols_parent_id;`)
	if err != nil {
		return julieerrors.New(julieerrors.ErrCodeInternal, "failed to drop symbol indexes", err)
	}
	return nil
}

func (s *Store) recreateSymbolIndexes(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_symbols_file_path ON symbols(file_path);
		CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name);
		CREATE INDEX IF NOT EXISTS idx_symbols_parent_id ON symbols(parent_id);`)
	if err != nil {
		return julieerrors.New(julieerrors.ErrCodeInternal, "failed to recreate symbol indexes", err)
	}
	return nil
}

// rebuildSymbolsFTS repopulates the symbols_fts shadow tables from the base
// table in a single pass. External-content FTS5 tables must be rebuilt this
// way rather than row-patched after a bulk DELETE+INSERT cycle, or their
// shadow rowids desync from the content table (spec §4.2.3's corruption
// note applies equally here).
func (s *Store) rebuildSymbolsFTS(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO symbols_fts(symbols_fts) VALUES ('rebuild')`)
	if err != nil {
		return julieerrors.New(julieerrors.ErrCodeFTSSyntax, "failed to rebuild symbols FTS", err)
	}
	return nil
}

func (s *Store) rebuildFilesFTS(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO files_fts(files_fts) VALUES ('rebuild')`)
	if err != nil {
		return julieerrors.New(julieerrors.ErrCodeFTSSyntax, "failed to rebuild files FTS", err)
	}
	return nil
}

// BulkStoreIdentifiers inserts usage-site rows for a batch of files.
func (s *Store) BulkStoreIdentifiers(ctx context.Context, identifiers []*Identifier) error {
	if len(identifiers) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return julieerrors.New(julieerrors.ErrCodeInternal, "failed to begin identifier transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO identifiers(id, name, kind, language, file_path, start_byte, end_byte,
			start_line, end_line, start_col, end_col, containing_symbol_id, target_symbol_id,
			confidence, code_context)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, kind = excluded.kind, target_symbol_id = excluded.target_symbol_id,
			confidence = excluded.confidence, code_context = excluded.code_context`)
	if err != nil {
		return julieerrors.New(julieerrors.ErrCodeInternal, "failed to prepare identifier insert", err)
	}
	defer stmt.Close()

	for _, id := range identifiers {
		var containing, target any
		if id.ContainingSymbolID != "" {
			containing = id.ContainingSymbolID
		}
		if id.TargetSymbolID != "" {
			target = id.TargetSymbolID
		}
		if _, err := stmt.ExecContext(ctx, id.ID, id.Name, string(id.Kind), id.Language, id.FilePath,
			id.Span.StartByte, id.Span.EndByte, id.Span.StartLine, id.Span.EndLine, id.Span.StartCol,
			id.Span.EndCol, containing, target, id.Confidence, id.CodeContext); err != nil {
			return julieerrors.New(julieerrors.ErrCodeInternal, "failed to insert identifier "+id.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return julieerrors.New(julieerrors.ErrCodeInternal, "failed to commit identifier batch", err)
	}
	if err := s.checkpoint("PASSIVE"); err != nil {
		slog.Warn("wal_checkpoint_failed", slog.String("op", "bulk_store_identifiers"), slog.String("error", err.Error()))
	}
	return nil
}

// BulkStoreRelationships wraps the whole operation in one transaction. No
// savepoints are used: each row's endpoints are checked against the stored
// symbol ids before insert, and rows whose endpoint is missing (a symbol
// defined in a file outside this workspace) are counted and skipped rather
// than aborting the batch. Any other insert error aborts the whole batch.
func (s *Store) BulkStoreRelationships(ctx context.Context, relationships []*Relationship) (skippedFK int, err error) {
	if len(relationships) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, julieerrors.New(julieerrors.ErrCodeInternal, "failed to begin relationship transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := symbolIDSet(ctx, tx)
	if err != nil {
		return 0, err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO relationships(id, from_symbol_id, to_symbol_id, kind, file_path, line_number, confidence, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET confidence = excluded.confidence, metadata = excluded.metadata`)
	if err != nil {
		return 0, julieerrors.New(julieerrors.ErrCodeInternal, "failed to prepare relationship insert", err)
	}
	defer stmt.Close()

	for _, r := range relationships {
		if !existing[r.FromSymbolID] || !existing[r.ToSymbolID] {
			skippedFK++
			continue
		}
		if _, err := stmt.ExecContext(ctx, r.ID, r.FromSymbolID, r.ToSymbolID, string(r.Kind),
			r.FilePath, r.LineNumber, r.Confidence, r.Metadata); err != nil {
			return skippedFK, julieerrors.New(julieerrors.ErrCodeInternal, "failed to insert relationship "+r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return skippedFK, julieerrors.New(julieerrors.ErrCodeInternal, "failed to commit relationship batch", err)
	}
	if err := s.checkpoint("PASSIVE"); err != nil {
		slog.Warn("wal_checkpoint_failed", slog.String("op", "bulk_store_relationships"), slog.String("error", err.Error()))
	}
	return skippedFK, nil
}

func symbolIDSet(ctx context.Context, tx *sql.Tx) (map[string]bool, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM symbols`)
	if err != nil {
		return nil, julieerrors.New(julieerrors.ErrCodeInternal, "failed to load symbol ids", err)
	}
	defer rows.Close()

	set := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, julieerrors.New(julieerrors.ErrCodeInternal, "failed to scan symbol id", err)
		}
		set[id] = true
	}
	return set, rows.Err()
}

// BulkStoreEmbeddings persists vectors for a batch of symbols against a
// single model. Every bulk operation issues a passive WAL checkpoint on
// success to bound WAL growth.
func (s *Store) BulkStoreEmbeddings(ctx context.Context, symbolIDs []string, vectors [][]float32, dimensions int, model string) error {
	if len(symbolIDs) != len(vectors) {
		return julieerrors.New(julieerrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("symbol id count %d does not match vector count %d", len(symbolIDs), len(vectors)), nil)
	}
	if len(symbolIDs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return julieerrors.New(julieerrors.ErrCodeInternal, "failed to begin embedding transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	vecStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO embedding_vectors(dimensions, bytes, model_name, created_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return julieerrors.New(julieerrors.ErrCodeInternal, "failed to prepare vector insert", err)
	}
	defer vecStmt.Close()

	metaStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO embeddings(symbol_id, model_name, vector_id) VALUES (?, ?, ?)
		ON CONFLICT(symbol_id, model_name) DO UPDATE SET vector_id = excluded.vector_id`)
	if err != nil {
		return julieerrors.New(julieerrors.ErrCodeInternal, "failed to prepare embedding metadata insert", err)
	}
	defer metaStmt.Close()

	now := time.Now().Unix()
	for i, symbolID := range symbolIDs {
		vec := vectors[i]
		if dimensions != 0 && len(vec) != dimensions {
			return julieerrors.New(julieerrors.ErrCodeDimensionMismatch,
				fmt.Sprintf("vector for symbol %s has %d dims, expected %d", symbolID, len(vec), dimensions), nil)
		}
		b := encodeVector(vec)
		res, err := vecStmt.ExecContext(ctx, len(vec), b, model, now)
		if err != nil {
			return julieerrors.New(julieerrors.ErrCodeInternal, "failed to insert vector for "+symbolID, err)
		}
		vectorID, err := res.LastInsertId()
		if err != nil {
			return julieerrors.New(julieerrors.ErrCodeInternal, "failed to read vector id for "+symbolID, err)
		}
		if _, err := metaStmt.ExecContext(ctx, symbolID, model, vectorID); err != nil {
			return julieerrors.New(julieerrors.ErrCodeInternal, "failed to insert embedding metadata for "+symbolID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return julieerrors.New(julieerrors.ErrCodeInternal, "failed to commit embedding batch", err)
	}
	if err := s.checkpoint("PASSIVE"); err != nil {
		slog.Warn("wal_checkpoint_failed", slog.String("op", "bulk_store_embeddings"), slog.String("error", err.Error()))
	}
	return nil
}

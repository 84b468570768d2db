package store

import (
	"context"
	"log/slog"

	julieerrors "github.com/anortham/julie-go/internal/errors"
)

// IncrementalUpdate is the payload for a single reconciliation: stale rows
// to remove followed by fresh rows to insert, all visible together on
// commit or not at all.
type IncrementalUpdate struct {
	StalePaths    []string
	Files         []*File
	Symbols       []*Symbol
	Identifiers   []*Identifier
	Relationships []*Relationship
}

// IncrementalUpdateAtomic is the watcher's single-transaction reconciliation
// primitive (spec §4.2.3). Foreign-key enforcement is disabled for the
// duration — parent_id has no cascade and self-referential insertion order
// is painful — so FK integrity is instead guaranteed by the caller supplying
// consistent data. After commit, both FTS indexes are rebuilt rather than
// row-patched, because DELETE against an external-content FTS5 table leaves
// orphaned rowids in the shadow tables otherwise.
func (s *Store) IncrementalUpdateAtomic(ctx context.Context, u IncrementalUpdate) error {
	return s.withWriterLock(func() error {
		s.mu.Lock()
		defer s.mu.Unlock()

		if _, err := s.db.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
			return julieerrors.New(julieerrors.ErrCodeInternal, "failed to disable foreign keys", err)
		}
		defer func() {
			if _, err := s.db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
				slog.Warn("foreign_keys_restore_failed", slog.String("error", err.Error()))
			}
		}()

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return julieerrors.New(julieerrors.ErrCodeInternal, "failed to begin incremental transaction", err)
		}
		defer func() { _ = tx.Rollback() }()

		for _, path := range u.StalePaths {
			if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE path = ?`, path); err != nil {
				return julieerrors.New(julieerrors.ErrCodeInternal, "failed to delete stale file "+path, err)
			}
		}

		for _, f := range u.Files {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO files(path, language, content_hash, size, mod_time, last_indexed, content, symbol_count)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(path) DO UPDATE SET
					language = excluded.language, content_hash = excluded.content_hash,
					size = excluded.size, mod_time = excluded.mod_time,
					last_indexed = excluded.last_indexed, content = excluded.content,
					symbol_count = excluded.symbol_count`,
				f.Path, f.Language, f.ContentHash, f.Size, f.ModTime.Unix(), f.LastIndexed.Unix(),
				f.Content, f.SymbolCount); err != nil {
				return julieerrors.New(julieerrors.ErrCodeInternal, "failed to upsert file "+f.Path, err)
			}
		}

		ordered, orphaned := topoSortParentFirst(u.Symbols)
		if len(orphaned) > 0 {
			slog.Warn("symbol_orphans_nulled", slog.Int("count", len(orphaned)), slog.String("op", "incremental"))
		}
		for _, sym := range ordered {
			var parentID any
			if sym.ParentID != "" {
				parentID = sym.ParentID
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO symbols(id, name, kind, language, file_path, signature,
					start_byte, end_byte, start_line, end_line, start_col, end_col,
					doc_comment, visibility, parent_id, semantic_group, confidence,
					code_context, content_type)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					name = excluded.name, kind = excluded.kind, file_path = excluded.file_path,
					signature = excluded.signature, parent_id = excluded.parent_id,
					doc_comment = excluded.doc_comment, code_context = excluded.code_context`,
				sym.ID, sym.Name, string(sym.Kind), sym.Language, sym.FilePath, sym.Signature,
				sym.Span.StartByte, sym.Span.EndByte, sym.Span.StartLine, sym.Span.EndLine,
				sym.Span.StartCol, sym.Span.EndCol, sym.DocComment, string(sym.Visibility), parentID,
				sym.SemanticGroup, sym.Confidence, sym.CodeContext, string(sym.ContentType)); err != nil {
				return julieerrors.New(julieerrors.ErrCodeInternal, "failed to upsert symbol "+sym.ID, err)
			}
		}

		for _, id := range u.Identifiers {
			var containing, target any
			if id.ContainingSymbolID != "" {
				containing = id.ContainingSymbolID
			}
			if id.TargetSymbolID != "" {
				target = id.TargetSymbolID
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO identifiers(id, name, kind, language, file_path, start_byte, end_byte,
					start_line, end_line, start_col, end_col, containing_symbol_id, target_symbol_id,
					confidence, code_context)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET target_symbol_id = excluded.target_symbol_id,
					confidence = excluded.confidence`,
				id.ID, id.Name, string(id.Kind), id.Language, id.FilePath, id.Span.StartByte, id.Span.EndByte,
				id.Span.StartLine, id.Span.EndLine, id.Span.StartCol, id.Span.EndCol, containing, target,
				id.Confidence, id.CodeContext); err != nil {
				return julieerrors.New(julieerrors.ErrCodeInternal, "failed to upsert identifier "+id.ID, err)
			}
		}

		for _, r := range u.Relationships {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO relationships(id, from_symbol_id, to_symbol_id, kind, file_path, line_number, confidence, metadata)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET confidence = excluded.confidence, metadata = excluded.metadata`,
				r.ID, r.FromSymbolID, r.ToSymbolID, string(r.Kind), r.FilePath, r.LineNumber,
				r.Confidence, r.Metadata); err != nil {
				return julieerrors.New(julieerrors.ErrCodeInternal, "failed to upsert relationship "+r.ID, err)
			}
		}

		if err := tx.Commit(); err != nil {
			return julieerrors.New(julieerrors.ErrCodeInternal, "failed to commit incremental update", err)
		}

		if err := s.rebuildSymbolsFTS(ctx); err != nil {
			return err
		}
		if err := s.rebuildFilesFTS(ctx); err != nil {
			return err
		}
		if err := s.checkpoint("PASSIVE"); err != nil {
			slog.Warn("wal_checkpoint_failed", slog.String("op", "incremental_update"), slog.String("error", err.Error()))
		}
		return nil
	})
}

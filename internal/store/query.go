package store

import (
	"context"
	"database/sql"
	"strings"

	julieerrors "github.com/anortham/julie-go/internal/errors"
)

// GetSymbolsForFile returns every symbol declared in path.
func (s *Store) GetSymbolsForFile(ctx context.Context, path string) ([]*Symbol, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, symbolSelectCols+` FROM symbols WHERE file_path = ? ORDER BY start_line`, path)
	if err != nil {
		return nil, julieerrors.New(julieerrors.ErrCodeInternal, "failed to query symbols for file "+path, err)
	}
	defer rows.Close()
	return scanSymbols(rows)
}

// FindSymbolsByName returns symbols matching name exactly, most-confident first.
func (s *Store) FindSymbolsByName(ctx context.Context, name string, limit int) ([]*Symbol, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, symbolSelectCols+` FROM symbols WHERE name = ? ORDER BY confidence DESC LIMIT ?`, name, limit)
	if err != nil {
		return nil, julieerrors.New(julieerrors.ErrCodeInternal, "failed to find symbols by name "+name, err)
	}
	defer rows.Close()
	return scanSymbols(rows)
}

// GetSymbolByID returns a single symbol, or nil if not found.
func (s *Store) GetSymbolByID(ctx context.Context, id string) (*Symbol, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, symbolSelectCols+` FROM symbols WHERE id = ?`, id)
	if err != nil {
		return nil, julieerrors.New(julieerrors.ErrCodeInternal, "failed to get symbol "+id, err)
	}
	defer rows.Close()
	syms, err := scanSymbols(rows)
	if err != nil || len(syms) == 0 {
		return nil, err
	}
	return syms[0], nil
}

// GetRelationshipsForSymbol returns relationships whose from_symbol_id is id.
func (s *Store) GetRelationshipsForSymbol(ctx context.Context, id string) ([]*Relationship, error) {
	return s.queryRelationships(ctx, `from_symbol_id = ?`, id)
}

// GetRelationshipsToSymbol returns relationships whose to_symbol_id is id —
// i.e. the symbol's callers, for the call-path tracer's reverse direction.
func (s *Store) GetRelationshipsToSymbol(ctx context.Context, id string) ([]*Relationship, error) {
	return s.queryRelationships(ctx, `to_symbol_id = ?`, id)
}

// identifierSelectCols is shared by the unresolved-call lookups the call
// tracer uses to supplement relationship edges the extractor couldn't
// resolve at index time (spec §4.6).
const identifierSelectCols = `
	SELECT id, name, kind, language, file_path, start_byte, end_byte,
		start_line, end_line, start_col, end_col, containing_symbol_id,
		target_symbol_id, confidence, code_context
	FROM identifiers`

func scanIdentifiers(rows *sql.Rows) ([]*Identifier, error) {
	var out []*Identifier
	for rows.Next() {
		id := &Identifier{}
		var kind string
		var containing, target sql.NullString
		if err := rows.Scan(&id.ID, &id.Name, &kind, &id.Language, &id.FilePath,
			&id.Span.StartByte, &id.Span.EndByte, &id.Span.StartLine, &id.Span.EndLine,
			&id.Span.StartCol, &id.Span.EndCol, &containing, &target,
			&id.Confidence, &id.CodeContext); err != nil {
			return nil, julieerrors.New(julieerrors.ErrCodeInternal, "failed to scan identifier", err)
		}
		id.Kind = IdentifierKind(kind)
		if containing.Valid {
			id.ContainingSymbolID = containing.String
		}
		if target.Valid {
			id.TargetSymbolID = target.String
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// GetUnresolvedCallsFrom returns call-kind identifiers recorded inside
// containingSymbolID whose target could not be resolved within its own
// file at extraction time (go_extractor.go's recordCall records these
// with an empty TargetSymbolID rather than dropping them). The tracer
// resolves their Name against the whole store to catch callees the
// relationship extractor missed.
func (s *Store) GetUnresolvedCallsFrom(ctx context.Context, containingSymbolID string) ([]*Identifier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, identifierSelectCols+`
		WHERE containing_symbol_id = ? AND target_symbol_id IS NULL AND kind = ?`,
		containingSymbolID, string(IdentifierCall))
	if err != nil {
		return nil, julieerrors.New(julieerrors.ErrCodeInternal, "failed to query unresolved calls from "+containingSymbolID, err)
	}
	defer rows.Close()
	return scanIdentifiers(rows)
}

// FindUnresolvedCallsByName returns call-kind identifiers anywhere in the
// store named name whose target was never resolved; each one's
// ContainingSymbolID is a candidate caller of a symbol named name,
// discovered the same way GetUnresolvedCallsFrom discovers candidate
// callees.
func (s *Store) FindUnresolvedCallsByName(ctx context.Context, name string) ([]*Identifier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, identifierSelectCols+`
		WHERE name = ? AND target_symbol_id IS NULL AND kind = ?`,
		name, string(IdentifierCall))
	if err != nil {
		return nil, julieerrors.New(julieerrors.ErrCodeInternal, "failed to find unresolved calls named "+name, err)
	}
	defer rows.Close()
	return scanIdentifiers(rows)
}

func (s *Store) queryRelationships(ctx context.Context, where string, arg string) ([]*Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, from_symbol_id, to_symbol_id, kind, file_path, line_number, confidence, metadata
		FROM relationships WHERE `+where, arg)
	if err != nil {
		return nil, julieerrors.New(julieerrors.ErrCodeInternal, "failed to query relationships", err)
	}
	defer rows.Close()

	var out []*Relationship
	for rows.Next() {
		r := &Relationship{}
		var kind string
		if err := rows.Scan(&r.ID, &r.FromSymbolID, &r.ToSymbolID, &kind, &r.FilePath, &r.LineNumber, &r.Confidence, &r.Metadata); err != nil {
			return nil, julieerrors.New(julieerrors.ErrCodeInternal, "failed to scan relationship", err)
		}
		r.Kind = RelationshipKind(kind)
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetSymbolsWithoutEmbeddings returns symbols with no embedding row for
// model, excluding symbols the embedding engine cannot usefully embed
// (markdown headings with no doc_comment; anything that isn't a real
// code/documentation symbol) so they do not churn the backfill queue
// indefinitely (spec §4.3).
func (s *Store) GetSymbolsWithoutEmbeddings(ctx context.Context, model string, limit int) ([]*Symbol, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, symbolSelectCols+`
		FROM symbols sym
		WHERE NOT EXISTS (
			SELECT 1 FROM embeddings e WHERE e.symbol_id = sym.id AND e.model_name = ?
		)
		AND NOT (sym.content_type = 'documentation' AND sym.doc_comment = '')
		ORDER BY sym.file_path, sym.start_line
		LIMIT ?`, model, limit)
	if err != nil {
		return nil, julieerrors.New(julieerrors.ErrCodeInternal, "failed to query un-embedded symbols", err)
	}
	defer rows.Close()
	return scanSymbols(rows)
}

// GetFileHash returns the stored content hash for path, and false if the
// file has never been indexed. The watcher's hash-gate (P1) calls this
// before doing any work: an unchanged hash means zero extractor
// invocations and zero further writes.
func (s *Store) GetFileHash(ctx context.Context, path string) (hash string, found bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.db.QueryRowContext(ctx, `SELECT content_hash FROM files WHERE path = ?`, path).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, julieerrors.New(julieerrors.ErrCodeInternal, "failed to get file hash for "+path, err)
	}
	return hash, true, nil
}

// CountSymbolsForFile returns how many symbols the store currently holds
// for path, used by the extraction-empty safeguard (§4.5): a fresh
// extraction that returns zero symbols is refused rather than applied
// when the store already has non-zero symbols on record for that file.
func (s *Store) CountSymbolsForFile(ctx context.Context, path string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM symbols WHERE file_path = ?`, path).Scan(&n); err != nil {
		return 0, julieerrors.New(julieerrors.ErrCodeInternal, "failed to count symbols for "+path, err)
	}
	return n, nil
}

// ListFilePaths returns every indexed file path, for orphan-cleanup scans
// that diff the store against what's actually on disk.
func (s *Store) ListFilePaths(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT path FROM files`)
	if err != nil {
		return nil, julieerrors.New(julieerrors.ErrCodeInternal, "failed to list file paths", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, julieerrors.New(julieerrors.ErrCodeInternal, "failed to scan file path", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// DeleteOrphanFiles removes every row in paths (files and their cascaded
// symbols/identifiers) in a single transaction, then rebuilds both FTS
// mirrors once. Per §4.5 and §9's design note, this must never be a
// per-file delete-then-rebuild loop: doing so desynchronises an
// external-content FTS5 table's shadow rowids.
func (s *Store) DeleteOrphanFiles(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	return s.withWriterLock(func() error {
		s.mu.Lock()
		defer s.mu.Unlock()

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return julieerrors.New(julieerrors.ErrCodeInternal, "failed to begin orphan cleanup transaction", err)
		}
		defer func() { _ = tx.Rollback() }()

		for _, p := range paths {
			if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE path = ?`, p); err != nil {
				return julieerrors.New(julieerrors.ErrCodeInternal, "failed to delete orphan file "+p, err)
			}
		}
		if err := tx.Commit(); err != nil {
			return julieerrors.New(julieerrors.ErrCodeInternal, "failed to commit orphan cleanup", err)
		}

		if err := s.rebuildSymbolsFTS(ctx); err != nil {
			return err
		}
		return s.rebuildFilesFTS(ctx)
	})
}

// LoadAllEmbeddings returns every stored vector for model, keyed by symbol id.
func (s *Store) LoadAllEmbeddings(ctx context.Context, model string) (map[string][]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT e.symbol_id, v.bytes
		FROM embeddings e JOIN embedding_vectors v ON v.vector_id = e.vector_id
		WHERE e.model_name = ?`, model)
	if err != nil {
		return nil, julieerrors.New(julieerrors.ErrCodeInternal, "failed to load embeddings", err)
	}
	defer rows.Close()

	out := make(map[string][]float32)
	for rows.Next() {
		var symbolID string
		var b []byte
		if err := rows.Scan(&symbolID, &b); err != nil {
			return nil, julieerrors.New(julieerrors.ErrCodeInternal, "failed to scan embedding", err)
		}
		out[symbolID] = decodeVector(b)
	}
	return out, rows.Err()
}

// GetEmbeddingVector fetches a single symbol's vector for exact re-ranking
// against an approximate HNSW neighbour (spec §4.4: "the graph is
// approximate"; C2 is the source of truth C4 re-ranks against).
func (s *Store) GetEmbeddingVector(ctx context.Context, symbolID, model string) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT v.bytes FROM embeddings e JOIN embedding_vectors v ON v.vector_id = e.vector_id
		WHERE e.symbol_id = ? AND e.model_name = ?`, symbolID, model).Scan(&b)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, julieerrors.New(julieerrors.ErrCodeInternal, "failed to fetch embedding vector for "+symbolID, err)
	}
	return decodeVector(b), nil
}

// FileSearchResult is a single ranked file-content FTS hit.
type FileSearchResult struct {
	Path  string
	Score float64
}

// SearchFileContentFTS runs a sanitised FTS5 MATCH against files_fts and
// applies the source/test/generated ranking adjustments (spec §4.2.5).
func (s *Store) SearchFileContentFTS(ctx context.Context, query string, limit int, weights RankWeights) ([]FileSearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sanitized := sanitizeFTSQuery(query)
	if sanitized == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT f.path, bm25(files_fts) AS score, f.symbol_count
		FROM files_fts
		JOIN files f ON f.path = files_fts.path
		WHERE files_fts MATCH ?
		ORDER BY score`, sanitized)
	if err != nil {
		if strings.Contains(err.Error(), "fts5:") || strings.Contains(err.Error(), "syntax error") {
			return nil, julieerrors.New(julieerrors.ErrCodeFTSSyntax, "invalid FTS query: "+query, err)
		}
		return nil, julieerrors.New(julieerrors.ErrCodeInternal, "file content search failed", err)
	}
	defer rows.Close()

	var results []FileSearchResult
	for rows.Next() {
		var path string
		var bm25 float64
		var symbolCount int
		if err := rows.Scan(&path, &bm25, &symbolCount); err != nil {
			return nil, julieerrors.New(julieerrors.ErrCodeInternal, "failed to scan file search result", err)
		}
		results = append(results, FileSearchResult{Path: path, Score: weights.scoreFileMatch(path, bm25, symbolCount)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortFileResultsDescending(results)
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// SearchSymbolsFTS runs a sanitised FTS5 MATCH against symbols_fts.
func (s *Store) SearchSymbolsFTS(ctx context.Context, query string, limit int) ([]*Symbol, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sanitized := sanitizeFTSQuery(query)
	if sanitized == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, symbolSelectCols+`
		FROM symbols sym
		JOIN symbols_fts ON symbols_fts.symbol_id = sym.id
		WHERE symbols_fts MATCH ?
		ORDER BY bm25(symbols_fts)
		LIMIT ?`, sanitized, limit)
	if err != nil {
		if strings.Contains(err.Error(), "fts5:") || strings.Contains(err.Error(), "syntax error") {
			return nil, julieerrors.New(julieerrors.ErrCodeFTSSyntax, "invalid FTS query: "+query, err)
		}
		return nil, julieerrors.New(julieerrors.ErrCodeInternal, "symbol search failed", err)
	}
	defer rows.Close()
	return scanSymbols(rows)
}

// Stats returns aggregate counts for `julie stats`.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := &Stats{}
	queries := []struct {
		dst *int
		sql string
	}{
		{&st.FileCount, `SELECT COUNT(*) FROM files`},
		{&st.SymbolCount, `SELECT COUNT(*) FROM symbols`},
		{&st.IdentifierCount, `SELECT COUNT(*) FROM identifiers`},
		{&st.RelationshipCount, `SELECT COUNT(*) FROM relationships`},
		{&st.EmbeddingCount, `SELECT COUNT(*) FROM embeddings`},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.sql).Scan(q.dst); err != nil {
			return nil, julieerrors.New(julieerrors.ErrCodeInternal, "failed to compute stats", err)
		}
	}
	return st, nil
}

const symbolSelectCols = `
	SELECT sym.id, sym.name, sym.kind, sym.language, sym.file_path, sym.signature,
		sym.start_byte, sym.end_byte, sym.start_line, sym.end_line, sym.start_col, sym.end_col,
		sym.doc_comment, sym.visibility, sym.parent_id, sym.semantic_group, sym.confidence,
		sym.code_context, sym.content_type`

func scanSymbols(rows *sql.Rows) ([]*Symbol, error) {
	var out []*Symbol
	for rows.Next() {
		sym := &Symbol{}
		var kind, visibility, contentType string
		var parentID sql.NullString
		if err := rows.Scan(&sym.ID, &sym.Name, &kind, &sym.Language, &sym.FilePath, &sym.Signature,
			&sym.Span.StartByte, &sym.Span.EndByte, &sym.Span.StartLine, &sym.Span.EndLine,
			&sym.Span.StartCol, &sym.Span.EndCol, &sym.DocComment, &visibility, &parentID,
			&sym.SemanticGroup, &sym.Confidence, &sym.CodeContext, &contentType); err != nil {
			return nil, julieerrors.New(julieerrors.ErrCodeInternal, "failed to scan symbol", err)
		}
		sym.Kind = SymbolKind(kind)
		sym.Visibility = Visibility(visibility)
		sym.ContentType = ContentType(contentType)
		if parentID.Valid {
			sym.ParentID = parentID.String
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}

func sortFileResultsDescending(results []FileSearchResult) {
	// simple insertion sort: result sets are small (post-FTS, pre-limit)
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].Score > results[j-1].Score; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}

// Package incindex is the glue between file-system change (a watcher
// event or a full workspace scan) and the store's single-transaction
// reconciliation primitive: hash-gate a file, run it through the right
// extractor, and commit the result atomically.
package incindex

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/anortham/julie-go/internal/extractor"
	julieerrors "github.com/anortham/julie-go/internal/errors"
	"github.com/anortham/julie-go/internal/hashpath"
	"github.com/anortham/julie-go/internal/scanner"
	"github.com/anortham/julie-go/internal/store"
	"github.com/anortham/julie-go/internal/telemetry"
	"github.com/anortham/julie-go/internal/watcher"
)

// Indexer reconciles a workspace's on-disk state into the symbol store.
type Indexer struct {
	store         *store.Store
	registry      *extractor.Registry
	scanner       *scanner.Scanner
	workspaceRoot string
}

// New builds an Indexer rooted at workspaceRoot. scn may be nil if the
// caller never calls FullIndex (watcher-event-only use).
func New(s *store.Store, registry *extractor.Registry, scn *scanner.Scanner, workspaceRoot string) *Indexer {
	return &Indexer{store: s, registry: registry, scanner: scn, workspaceRoot: workspaceRoot}
}

// IndexFile reads relPath from disk, hash-gates it against what's already
// stored (property P1: re-indexing identical bytes is a no-op), extracts
// symbols for languages with a registered Extractor, and commits the
// result as a single incremental update. Files with no registered
// extractor for their extension are still tracked (for FTS search over
// their content) but contribute no symbols.
func (idx *Indexer) IndexFile(ctx context.Context, relPath string) error {
	absPath := filepath.Join(idx.workspaceRoot, relPath)
	content, err := os.ReadFile(absPath)
	if err != nil {
		return julieerrors.Wrap(julieerrors.ErrCodeFileNotFound, err)
	}

	hash := hashpath.HashBytes(content)
	existingHash, found, err := idx.store.GetFileHash(ctx, relPath)
	if err != nil {
		return err
	}
	if found && existingHash == hash {
		return nil
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return julieerrors.Wrap(julieerrors.ErrCodeFileNotFound, err)
	}

	update := store.IncrementalUpdate{
		StalePaths: []string{relPath},
		Files: []*store.File{{
			Path:        relPath,
			Language:    scanner.DetectLanguage(relPath),
			ContentHash: hash,
			Size:        info.Size(),
			ModTime:     info.ModTime(),
			LastIndexed: indexTime(),
			Content:     string(content),
		}},
	}

	ext := filepath.Ext(relPath)
	if ex, ok := idx.registry.For(ext); ok {
		result, err := ex.Extract(ctx, relPath, content, idx.workspaceRoot)
		if err != nil {
			return julieerrors.New(julieerrors.ErrCodeIndexFailed, "extraction failed for "+relPath, err)
		}

		if found {
			existingCount, err := idx.store.CountSymbolsForFile(ctx, relPath)
			if err != nil {
				return err
			}
			if existingCount > 0 && len(result.Symbols) == 0 {
				return julieerrors.New(julieerrors.ErrCodeExtractionEmpty,
					fmt.Sprintf("extractor returned zero symbols for %s which previously had %d; refusing to wipe existing data", relPath, existingCount), nil)
			}
		}

		update.Symbols = result.Symbols
		update.Identifiers = result.Identifiers
		update.Relationships = result.Relationships
		update.Files[0].SymbolCount = len(result.Symbols)
	}

	start := time.Now()
	if err := idx.store.IncrementalUpdateAtomic(ctx, update); err != nil {
		return err
	}
	telemetry.ObserveBulkStoreDuration(time.Since(start))
	telemetry.IncFilesIndexed(1)
	return nil
}

// DeleteFile removes relPath and cascades its symbols/identifiers/
// relationships/embeddings via the store's foreign keys.
func (idx *Indexer) DeleteFile(ctx context.Context, relPath string) error {
	return idx.store.DeleteOrphanFiles(ctx, []string{relPath})
}

// HandleEvent turns a watcher.FileEvent into the matching store mutation.
// Gitignore and config changes are not reconciled here — they require a
// fresh directory scan, which FullIndex performs; the caller is expected
// to invoke FullIndex on those operations rather than route them through
// HandleEvent.
func (idx *Indexer) HandleEvent(ctx context.Context, ev watcher.FileEvent) error {
	if ev.IsDir {
		return nil
	}
	switch ev.Operation {
	case watcher.OpCreate, watcher.OpModify:
		return idx.IndexFile(ctx, ev.Path)
	case watcher.OpDelete:
		return idx.DeleteFile(ctx, ev.Path)
	case watcher.OpRename:
		if ev.OldPath != "" {
			if err := idx.DeleteFile(ctx, ev.OldPath); err != nil {
				return err
			}
		}
		return idx.IndexFile(ctx, ev.Path)
	default:
		slog.Warn("incindex: unhandled event, skipping", slog.String("op", ev.Operation.String()), slog.String("path", ev.Path))
		return nil
	}
}

// FullIndex walks the workspace with the scanner, indexes every
// discovered file, and deletes any stored file path no longer present on
// disk (a single DeleteOrphanFiles call over the whole diff, not a
// per-path loop).
func (idx *Indexer) FullIndex(ctx context.Context, opts *scanner.ScanOptions) error {
	results, err := idx.scanner.Scan(ctx, opts)
	if err != nil {
		return err
	}

	live := make(map[string]struct{})
	for res := range results {
		if res.Error != nil {
			slog.Warn("incindex: scan error, skipping file", slog.String("error", res.Error.Error()))
			continue
		}
		live[res.File.Path] = struct{}{}
		if err := idx.IndexFile(ctx, res.File.Path); err != nil {
			slog.Warn("incindex: failed to index file", slog.String("path", res.File.Path), slog.String("error", err.Error()))
		}
	}

	stored, err := idx.store.ListFilePaths(ctx)
	if err != nil {
		return err
	}
	var orphans []string
	for _, path := range stored {
		if _, ok := live[path]; !ok {
			orphans = append(orphans, path)
		}
	}
	if len(orphans) == 0 {
		return nil
	}
	return idx.store.DeleteOrphanFiles(ctx, orphans)
}

// indexTime is a seam so tests can't depend on wall-clock time drifting
// between writes within the same run; production always uses time.Now.
var indexTime = time.Now

package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/anortham/julie-go/internal/config"
	"github.com/anortham/julie-go/internal/embedengine"
	"github.com/anortham/julie-go/internal/embedgen"
	"github.com/anortham/julie-go/internal/extractor"
	"github.com/anortham/julie-go/internal/extractor/treesitter"
	"github.com/anortham/julie-go/internal/incindex"
	"github.com/anortham/julie-go/internal/scanner"
	"github.com/anortham/julie-go/internal/store"
	"github.com/anortham/julie-go/internal/telemetry"
	"github.com/anortham/julie-go/internal/vectorindex"
)

// dataDirName is the project-local directory holding the store, HNSW
// index, and logs, mirroring the teacher's ".amanmcp" convention.
const dataDirName = ".julie"

// app bundles the components every subcommand needs, built once from the
// resolved project root.
type app struct {
	root     string
	dataDir  string
	dbPath   string
	hnswPath string
	cfg      *config.Config
}

// newApp resolves the project root (defaulting to cwd) and loads config.
func newApp(path string) (*app, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}
	root, err := config.FindProjectRoot(abs)
	if err != nil {
		root = abs
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	dataDir := filepath.Join(root, dataDirName)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	return &app{
		root:     root,
		dataDir:  dataDir,
		dbPath:   filepath.Join(dataDir, "index.db"),
		hnswPath: filepath.Join(dataDir, "vectors.hnsw"),
		cfg:      cfg,
	}, nil
}

// openStore opens (creating if absent) this app's symbol store.
func (a *app) openStore() (*store.Store, error) {
	return store.Open(a.dbPath)
}

// newQueryMetrics opens (creating tables on first use) this app's query
// telemetry, sharing s's connection rather than opening a second one
// (grounded on the teacher's stats.go, which does the same via its own
// metadata.DB() accessor before constructing a SQLiteMetricsStore).
func (a *app) newQueryMetrics(s *store.Store) (*telemetry.QueryMetrics, error) {
	if err := telemetry.InitTelemetrySchema(s.DB()); err != nil {
		return nil, fmt.Errorf("init telemetry schema: %w", err)
	}
	metricsStore, err := telemetry.NewSQLiteMetricsStore(s.DB())
	if err != nil {
		return nil, fmt.Errorf("open metrics store: %w", err)
	}
	return telemetry.NewQueryMetrics(metricsStore), nil
}

// newScanner builds the directory scanner; scanOptions points it at this
// app's root.
func (a *app) newScanner() (*scanner.Scanner, error) {
	return scanner.New()
}

// scanOptions builds the ScanOptions the CLI drives FullIndex with.
func (a *app) scanOptions() *scanner.ScanOptions {
	return &scanner.ScanOptions{
		RootDir:          a.root,
		RespectGitignore: true,
		Submodules:       &a.cfg.Submodules,
	}
}

// newExtractorRegistry registers every language extractor this build ships.
// Only Go has a grounded treesitter extractor so far; other languages
// route through no extractor and are still tracked for FTS (see
// internal/incindex's no-extractor fallback).
func (a *app) newExtractorRegistry() *extractor.Registry {
	reg := extractor.NewRegistry()
	reg.Register(treesitter.NewGoExtractor())
	return reg
}

// newIndexer builds the C5 incremental indexer for this app.
func (a *app) newIndexer(s *store.Store) (*incindex.Indexer, error) {
	scn, err := a.newScanner()
	if err != nil {
		return nil, err
	}
	return incindex.New(s, a.newExtractorRegistry(), scn, a.root), nil
}

// defaultONNXModel is the bge-small model tag this build's embedengine
// is grounded on (internal/embedengine's CLS-pooling/384-dim contract);
// config.Embeddings.Model defaults to a remote Ollama tag left over from
// the teacher's multi-provider config, which doesn't name a local ONNX
// directory, so the CLI substitutes this tag whenever that default is
// still in effect.
const defaultONNXModel = "bge-small-en-v1.5"

// embeddingModel returns the model tag to resolve on disk and tag
// embeddings with.
func (a *app) embeddingModel() string {
	if a.cfg.Embeddings.Model == "" || a.cfg.Embeddings.Model == "qwen3-embedding:8b" {
		return defaultONNXModel
	}
	return a.cfg.Embeddings.Model
}

// modelDir resolves where the ONNX model + tokenizer are expected to
// live, following the teacher's ~/.<product>/models/<model> convention
// (internal/embed/model.go's DefaultModelsDir, adapted to julie).
func (a *app) modelDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".julie", "models", a.embeddingModel())
}

// newEmbedderFactory returns the lazy C3 construction closure embedgen
// needs; the ONNX session is not opened until the first pending symbol
// is actually found.
func (a *app) newEmbedderFactory() embedgen.EmbedderFactory {
	return func() (embedengine.Embedder, error) {
		return embedengine.NewEngine(embedengine.EngineConfig{
			ModelDir:  a.modelDir(),
			ModelName: a.embeddingModel(),
		})
	}
}

// embeddingDimensions returns the configured vector width, falling back
// to the ONNX engine's own fixed output width when config leaves it at
// its auto-detect zero value.
func (a *app) embeddingDimensions() int {
	if a.cfg.Embeddings.Dimensions > 0 {
		return a.cfg.Embeddings.Dimensions
	}
	return embedengine.Dimensions
}

// newVectorStore builds (and, if present on disk, loads) this app's HNSW
// index.
func (a *app) newVectorStore() (*vectorindex.HNSWStore, error) {
	vs, err := vectorindex.NewHNSWStore(vectorindex.DefaultVectorStoreConfig(a.embeddingDimensions()))
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(a.hnswPath); err == nil {
		if err := vs.Load(a.hnswPath); err != nil {
			return nil, fmt.Errorf("load hnsw index: %w", err)
		}
	}
	return vs, nil
}

// newGenerator builds the C7 background embedding generator.
func (a *app) newGenerator(s *store.Store, vs *vectorindex.HNSWStore) *embedgen.Generator {
	return embedgen.New(s, vs, a.newEmbedderFactory(), embedgen.Config{
		ModelName: a.embeddingModel(),
		BatchSize: a.cfg.Embeddings.BatchSize,
		HNSWPath:  a.hnswPath,
	})
}

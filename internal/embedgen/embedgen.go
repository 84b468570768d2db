// Package embedgen is C7: the background embedding generation pipeline.
// It scans the store for symbols with no vector yet, embeds them in
// bounded-concurrency batches, persists each batch immediately, trips a
// circuit breaker under sustained failure, and finishes by rebuilding the
// HNSW index from every stored vector.
package embedgen

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/anortham/julie-go/internal/embedengine"
	julieerrors "github.com/anortham/julie-go/internal/errors"
	"github.com/anortham/julie-go/internal/store"
	"github.com/anortham/julie-go/internal/telemetry"
	"github.com/anortham/julie-go/internal/vectorindex"
)

// DefaultWarmupBatches is how many batches run before the failure-rate
// rule kicks in (spec's addition over the teacher's plain consecutive-
// failure breaker — a single bad batch at startup shouldn't trip it).
const DefaultWarmupBatches = 10

const (
	defaultBatchSize   = 50
	defaultConcurrency = 4
)

// EmbedderFactory lazily constructs the C3 embedder. It's a factory
// rather than a value because loading the ONNX model is expensive and
// the generator may never run if there's nothing pending.
type EmbedderFactory func() (embedengine.Embedder, error)

// Config configures a Generator.
type Config struct {
	ModelName     string
	BatchSize     int // 0 -> defaultBatchSize
	Concurrency   int // 0 -> defaultConcurrency
	HNSWPath      string
	WarmupBatches int // 0 -> DefaultWarmupBatches
}

// Generator runs the backfill embedding pipeline for one store/model pair.
type Generator struct {
	store       *store.Store
	vectors     *vectorindex.HNSWStore
	newEmbedder EmbedderFactory

	modelName   string
	batchSize   int
	concurrency int
	hnswPath    string

	embedderMu sync.RWMutex
	embedder   embedengine.Embedder

	breaker       *julieerrors.CircuitBreaker
	warmupBatches int
	totalBatches  int
	failedBatches int

	semanticReady atomic.Bool
}

// New builds a Generator. newEmbedder is invoked at most once, the first
// time a pending symbol is actually found, under a double-checked lock.
func New(s *store.Store, vectors *vectorindex.HNSWStore, newEmbedder EmbedderFactory, cfg Config) *Generator {
	warmup := cfg.WarmupBatches
	if warmup <= 0 {
		warmup = DefaultWarmupBatches
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	vectors.WireEmbeddingSource(s, cfg.ModelName)

	return &Generator{
		store:         s,
		vectors:       vectors,
		newEmbedder:   newEmbedder,
		modelName:     cfg.ModelName,
		batchSize:     batchSize,
		concurrency:   concurrency,
		hnswPath:      cfg.HNSWPath,
		breaker:       julieerrors.NewCircuitBreaker("embedgen"),
		warmupBatches: warmup,
	}
}

// IsSemanticReady reports whether the HNSW index has been built at least
// once since this Generator was created.
func (g *Generator) IsSemanticReady() bool {
	return g.semanticReady.Load()
}

// Run drains every symbol without a stored embedding, in bounded-
// concurrency batches, persisting each batch as soon as it completes.
// It stops early and returns ErrCodeCircuitOpen if the failure rate trips
// the breaker; otherwise it finishes by rebuilding the HNSW index from
// everything now stored.
func (g *Generator) Run(ctx context.Context) error {
	for {
		pending, err := g.store.GetSymbolsWithoutEmbeddings(ctx, g.modelName, g.batchSize*g.concurrency)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			break
		}

		batches := chunkSymbols(pending, g.batchSize)
		results := make([]error, len(batches))

		grp, gctx := errgroup.WithContext(ctx)
		grp.SetLimit(g.concurrency)
		for i, batch := range batches {
			i, batch := i, batch
			grp.Go(func() error {
				// Each batch records its own outcome; a failure here must
				// not cancel its siblings via gctx, so this always
				// returns nil to errgroup itself.
				results[i] = g.processBatch(gctx, batch)
				return nil
			})
		}
		_ = grp.Wait()

		for _, batchErr := range results {
			tripped := g.recordBatch(batchErr)
			slog.Info("embedgen_batch",
				slog.Bool("failed", batchErr != nil),
				slog.Int("total_batches", g.totalBatches),
				slog.Int("failed_batches", g.failedBatches))
			if tripped {
				return julieerrors.New(julieerrors.ErrCodeCircuitOpen,
					"embedding circuit breaker tripped", batchErr)
			}
		}
	}

	return g.buildIndex(ctx)
}

func (g *Generator) processBatch(ctx context.Context, batch []*store.Symbol) error {
	embedder, err := g.getEmbedder()
	if err != nil {
		return err
	}

	vectors, err := embedder.EmbedSymbols(ctx, batch)
	if err != nil {
		return err
	}

	ids := make([]string, len(batch))
	for i, sym := range batch {
		ids[i] = sym.ID
	}
	return g.store.BulkStoreEmbeddings(ctx, ids, vectors, embedder.Dimensions(), g.modelName)
}

// recordBatch updates both the consecutive-failure breaker and the
// warm-up failure-rate counters, and reports whether either rule trips
// (spec.md §4.7.4: ≥5 consecutive failures OR >50% failure rate after a
// 10-batch warm-up).
func (g *Generator) recordBatch(err error) bool {
	g.totalBatches++
	if err != nil {
		g.failedBatches++
		g.breaker.RecordFailure()
	} else {
		g.breaker.RecordSuccess()
	}

	telemetry.IncEmbeddingBatch(err == nil)

	tripped := !g.breaker.Allow()
	if !tripped && g.totalBatches >= g.warmupBatches {
		rate := float64(g.failedBatches) / float64(g.totalBatches)
		tripped = rate > 0.5
	}
	telemetry.SetCircuitBreakerOpen(tripped)
	return tripped
}

// buildIndex is spec.md §4.7.5-6's finishing sequence: load every stored
// vector, rebuild the HNSW graph deterministically, save it to disk, drop
// the transient in-memory vector map, then flip semantic search on.
func (g *Generator) buildIndex(ctx context.Context) error {
	vectors, err := g.store.LoadAllEmbeddings(ctx, g.modelName)
	if err != nil {
		return err
	}
	start := time.Now()
	if err := g.vectors.BuildDeterministic(ctx, vectors); err != nil {
		return err
	}
	telemetry.ObserveHNSWBuildDuration(time.Since(start))
	if g.hnswPath != "" {
		if err := g.vectors.Save(g.hnswPath); err != nil {
			return err
		}
	}
	g.semanticReady.Store(true)
	return nil
}

func (g *Generator) getEmbedder() (embedengine.Embedder, error) {
	g.embedderMu.RLock()
	if g.embedder != nil {
		e := g.embedder
		g.embedderMu.RUnlock()
		return e, nil
	}
	g.embedderMu.RUnlock()

	g.embedderMu.Lock()
	defer g.embedderMu.Unlock()
	if g.embedder != nil {
		return g.embedder, nil
	}
	e, err := g.newEmbedder()
	if err != nil {
		return nil, err
	}
	g.embedder = e
	return e, nil
}

func chunkSymbols(symbols []*store.Symbol, size int) [][]*store.Symbol {
	var chunks [][]*store.Symbol
	for i := 0; i < len(symbols); i += size {
		end := i + size
		if end > len(symbols) {
			end = len(symbols)
		}
		chunks = append(chunks, symbols[i:end])
	}
	return chunks
}

// Package embedengine is C3: the transformer embedding engine. It loads a
// BGE-small-style ONNX model and tokenizer, builds deterministic text
// representations for symbols, and runs batched inference with a
// once-computed, cached batch size and CPU self-healing on GPU device
// failure (§4.3).
package embedengine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/daulet/tokenizers"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/anortham/julie-go/internal/errors"
	"github.com/anortham/julie-go/internal/store"
)

// Dimensions is the output width of the bge-small-en-v1.5 CLS embedding.
const Dimensions = 384

const maxSeqLen = 512

// QueryPrefix is prepended to queries (never to documents) for asymmetric
// retrieval, per the BGE-small-en-v1.5 model card.
const QueryPrefix = "Represent this sentence for searching relevant passages: "

// Embedder is the collaborator contract C7 and the query path depend on.
// CachedEmbedder and Engine both satisfy it.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	EmbedSymbols(ctx context.Context, symbols []*store.Symbol) ([][]float32, error)
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
	Dimensions() int
	ModelName() string
	CachedBatchSize() int
	IsUsingGPU() bool
	Close() error
}

// Engine is the ONNX-backed Embedder implementation.
type Engine struct {
	modelName string

	sessionMu sync.RWMutex // guards session/tokenizer swap during CPU reinit
	session   *ort.DynamicAdvancedSession
	tokenizer *tokenizers.Tokenizer
	modelPath string

	noGPU     bool // cached once at construction; never re-read from env
	backend   Backend
	batchSize int // computed once, see computeBatchSize; read via CachedBatchSize
}

// EngineConfig locates the model collaborator on disk.
type EngineConfig struct {
	ModelDir   string   // must contain model.onnx and tokenizer.json
	ModelName  string   // model tag, e.g. "bge-small"
	ORTLibPath string   // path to the onnxruntime shared library; "" = system default
	NumThreads int      // 0 = min(4, NumCPU)
	VRAMProbe  gpuProbe // overridable for tests; nil uses the platform default
}

// NewEngine loads the ONNX model and tokenizer and selects an execution
// backend. FORCE_CPU is read exactly once here (§4.3.1, §9 design note):
// the resulting capability is cached on noGPU and never re-read, so a
// later mutation of the process environment cannot change an already
// running engine's behaviour.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	modelPath := filepath.Join(cfg.ModelDir, "model.onnx")
	tokenPath := filepath.Join(cfg.ModelDir, "tokenizer.json")

	if _, err := os.Stat(modelPath); err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, fmt.Errorf("embedding model not found at %s: %w", modelPath, err))
	}
	if _, err := os.Stat(tokenPath); err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, fmt.Errorf("tokenizer not found at %s: %w", tokenPath, err))
	}

	noGPU := isTruthy(os.Getenv("FORCE_CPU"))
	backend, vramGB := selectBackend(noGPU, cfg.VRAMProbe)

	e := &Engine{
		modelName: cfg.ModelName,
		modelPath: modelPath,
		noGPU:     noGPU,
		backend:   backend,
		batchSize: computeBatchSize(backend, vramGB),
	}

	if err := e.loadSession(cfg.ORTLibPath, tokenPath, cfg.NumThreads); err != nil {
		return nil, err
	}
	return e, nil
}

func isTruthy(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func (e *Engine) loadSession(ortLibPath, tokenPath string, numThreads int) error {
	if ortLibPath != "" {
		ort.SetSharedLibraryPath(ortLibPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, fmt.Errorf("initialize onnxruntime: %w", err))
	}

	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
		if numThreads > 4 {
			numThreads = 4
		}
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, fmt.Errorf("session options: %w", err))
	}
	defer opts.Destroy()
	if err := opts.SetIntraOpNumThreads(numThreads); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, fmt.Errorf("set intra-op threads: %w", err))
	}
	if err := opts.SetInterOpNumThreads(1); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, fmt.Errorf("set inter-op threads: %w", err))
	}

	inputNames := []string{"input_ids", "attention_mask", "token_type_ids"}
	outputNames := []string{"last_hidden_state"}
	session, err := ort.NewDynamicAdvancedSession(e.modelPath, inputNames, outputNames, opts)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, fmt.Errorf("create onnx session: %w", err))
	}

	tk, err := tokenizers.FromFile(tokenPath)
	if err != nil {
		session.Destroy()
		return errors.Wrap(errors.ErrCodeInternal, fmt.Errorf("load tokenizer: %w", err))
	}

	e.sessionMu.Lock()
	if e.session != nil {
		e.session.Destroy()
	}
	if e.tokenizer != nil {
		e.tokenizer.Close()
	}
	e.session = session
	e.tokenizer = tk
	e.sessionMu.Unlock()
	return nil
}

// Dimensions returns the model's output width.
func (e *Engine) Dimensions() int { return Dimensions }

// ModelName returns the collaborator's model tag.
func (e *Engine) ModelName() string { return e.modelName }

// CachedBatchSize is a pure getter (property P6): it never recomputes,
// regardless of how many times it is called.
func (e *Engine) CachedBatchSize() int {
	e.sessionMu.RLock()
	defer e.sessionMu.RUnlock()
	return e.batchSize
}

// IsUsingGPU reports whether the cached batch size came from the VRAM
// rule rather than the CPU default (property P7).
func (e *Engine) IsUsingGPU() bool {
	e.sessionMu.RLock()
	defer e.sessionMu.RUnlock()
	return e.backend != BackendCPU
}

// Close releases the ONNX session and tokenizer.
func (e *Engine) Close() error {
	e.sessionMu.Lock()
	defer e.sessionMu.Unlock()
	if e.session != nil {
		e.session.Destroy()
		e.session = nil
	}
	if e.tokenizer != nil {
		e.tokenizer.Close()
		e.tokenizer = nil
	}
	return nil
}

// EmbedQuery embeds a single query string with the asymmetric-retrieval
// instruction prefix. Never use this for document/symbol text.
func (e *Engine) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{QueryPrefix + query})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedSymbols builds deterministic text per §4.3 and embeds the batch.
func (e *Engine) EmbedSymbols(ctx context.Context, symbols []*store.Symbol) ([][]float32, error) {
	texts := make([]string, len(symbols))
	for i, sym := range symbols {
		texts[i] = symbolText(sym)
	}
	return e.EmbedBatch(ctx, texts)
}

// symbolText builds the deterministic embedding input for a symbol.
// Documentation symbols use name + doc comment only; code symbols
// concatenate name, kind, signature, doc comment and code context,
// skipping empty fields, joined by " | ".
func symbolText(sym *store.Symbol) string {
	if sym.ContentType == store.ContentTypeDocumentation {
		parts := make([]string, 0, 2)
		if sym.Name != "" {
			parts = append(parts, sym.Name)
		}
		if sym.DocComment != "" {
			parts = append(parts, sym.DocComment)
		}
		return strings.Join(parts, " | ")
	}

	fields := []string{sym.Name, string(sym.Kind), sym.Signature, sym.DocComment, sym.CodeContext}
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, " | ")
}

// EmbedBatch runs inference for texts in sub-batches of the cached batch
// size, falling through to CPU reinit + retry on a detected GPU device
// failure, and finally to per-symbol encoding if the batch still fails.
func (e *Engine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	batchSize := e.CachedBatchSize()
	results := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := e.embedSubBatch(ctx, texts[i:end])
		if err != nil {
			return nil, err
		}
		results = append(results, vecs...)
	}
	return results, nil
}

func (e *Engine) embedSubBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var vecs [][]float32
	runErr := runWithSoftTimeout(ctx, "embed-batch", func() error {
		var err error
		vecs, err = e.runInference(texts)
		return err
	})

	if runErr == nil {
		return vecs, nil
	}

	if isDeviceFailureSignature(runErr) {
		slog.Warn("onnx device failure detected, reinitialising in CPU mode", "error", runErr)
		if err := e.reinitCPU(); err != nil {
			return nil, errors.Wrap(errors.ErrCodeModelDeviceFailure, fmt.Errorf("reinit cpu after device failure: %w", err))
		}
		vecs, retryErr := e.runInference(texts)
		if retryErr == nil {
			return vecs, nil
		}
		runErr = retryErr
	}

	// A single poisoned input must not poison the whole batch: fall
	// through to per-text encoding so the rest still succeeds.
	out := make([][]float32, len(texts))
	var lastErr error
	for i, t := range texts {
		v, err := e.runInference([]string{t})
		if err != nil {
			lastErr = err
			continue
		}
		out[i] = v[0]
	}
	if lastErr != nil {
		return nil, errors.Wrap(errors.ErrCodeEmbeddingFailed, fmt.Errorf("batch failed (%v), per-symbol fallback also failed: %w", runErr, lastErr))
	}
	return out, nil
}

// reinitCPU rebuilds the ONNX session in CPU-only mode without mutating
// process environment (§9 design note), caching the new backend and
// batch size for all subsequent batches.
func (e *Engine) reinitCPU() error {
	e.sessionMu.Lock()
	e.noGPU = true
	e.backend = BackendCPU
	e.batchSize = computeBatchSize(BackendCPU, 0)
	modelPath := e.modelPath
	e.sessionMu.Unlock()

	tokenPath := filepath.Join(filepath.Dir(modelPath), "tokenizer.json")
	return e.loadSession("", tokenPath, 0)
}

// isDeviceFailureSignature recognises vendor-specific "device
// suspended/removed" error text without depending on a specific execution
// provider's Go bindings (none are grounded beyond CPU in this engine).
func isDeviceFailureSignature(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	signatures := []string{
		"device removed", "device lost", "device suspended",
		"dxgi_error_device", "cuda_error", "out of memory",
	}
	for _, sig := range signatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

type tokenized struct {
	ids  []int64
	mask []int64
}

func (e *Engine) runInference(texts []string) ([][]float32, error) {
	e.sessionMu.RLock()
	session, tok := e.session, e.tokenizer
	e.sessionMu.RUnlock()
	if session == nil || tok == nil {
		return nil, errors.New(errors.ErrCodeInternal, "embedding engine closed", nil)
	}

	batchSize := len(texts)
	all := make([]tokenized, batchSize)
	maxLen := 0
	for i, text := range texts {
		enc := tok.EncodeWithOptions(text, true, tokenizers.WithReturnAttentionMask())
		ids := enc.IDs
		if len(ids) > maxSeqLen {
			ids = ids[:maxSeqLen]
		}
		ids64 := make([]int64, len(ids))
		mask64 := make([]int64, len(ids))
		for j, v := range ids {
			ids64[j] = int64(v)
			mask64[j] = 1
		}
		if len(enc.AttentionMask) >= len(ids) {
			for j := range ids64 {
				mask64[j] = int64(enc.AttentionMask[j])
			}
		}
		all[i] = tokenized{ids: ids64, mask: mask64}
		if len(ids64) > maxLen {
			maxLen = len(ids64)
		}
	}
	if maxLen == 0 {
		return nil, errors.New(errors.ErrCodeEmbeddingFailed, "all texts tokenized to zero length", nil)
	}

	flatIDs := make([]int64, batchSize*maxLen)
	flatMask := make([]int64, batchSize*maxLen)
	flatType := make([]int64, batchSize*maxLen)
	for i, t := range all {
		copy(flatIDs[i*maxLen:], t.ids)
		copy(flatMask[i*maxLen:], t.mask)
	}
	shape := ort.NewShape(int64(batchSize), int64(maxLen))

	inputIDs, err := ort.NewTensor(shape, flatIDs)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, fmt.Errorf("input_ids tensor: %w", err))
	}
	defer inputIDs.Destroy()

	attnMask, err := ort.NewTensor(shape, flatMask)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, fmt.Errorf("attention_mask tensor: %w", err))
	}
	defer attnMask.Destroy()

	typeIDs, err := ort.NewTensor(shape, flatType)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, fmt.Errorf("token_type_ids tensor: %w", err))
	}
	defer typeIDs.Destroy()

	e.sessionMu.RLock()
	session = e.session
	e.sessionMu.RUnlock()
	if session == nil {
		return nil, errors.New(errors.ErrCodeInternal, "embedding engine closed mid-inference", nil)
	}

	inputs := []ort.Value{inputIDs, attnMask, typeIDs}
	outputs := []ort.Value{nil}
	if err := session.Run(inputs, outputs); err != nil {
		return nil, errors.Wrap(errors.ErrCodeEmbeddingFailed, fmt.Errorf("onnx run: %w", err))
	}
	defer func() {
		if outputs[0] != nil {
			outputs[0].Destroy()
		}
	}()

	hiddenTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, errors.New(errors.ErrCodeEmbeddingFailed, "unexpected onnx output type", nil)
	}
	hidden := hiddenTensor.GetData()
	seqLen := int(hiddenTensor.GetShape()[1])

	embeddings := make([][]float32, batchSize)
	for i := 0; i < batchSize; i++ {
		vec := make([]float32, Dimensions)
		base := i * seqLen * Dimensions // CLS token: first position, t=0
		copy(vec, hidden[base:base+Dimensions])
		l2Normalize(vec)
		embeddings[i] = vec
	}
	return embeddings, nil
}

func l2Normalize(v []float32) {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)
	if norm < 1e-10 {
		return
	}
	inv := float32(1.0 / norm)
	for i := range v {
		v[i] *= inv
	}
}

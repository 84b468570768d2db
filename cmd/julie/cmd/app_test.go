package cmd

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anortham/julie-go/internal/config"
	"github.com/anortham/julie-go/internal/embedengine"
	"github.com/anortham/julie-go/internal/store"
	"github.com/anortham/julie-go/internal/telemetry"
)

func TestApp_EmbeddingModel_SubstitutesStaleDefault(t *testing.T) {
	a := &app{cfg: &config.Config{}}
	assert.Equal(t, defaultONNXModel, a.embeddingModel(), "empty config model should fall back to the ONNX default")

	a.cfg.Embeddings.Model = "qwen3-embedding:8b"
	assert.Equal(t, defaultONNXModel, a.embeddingModel(), "stale teacher default should fall back to the ONNX default")

	a.cfg.Embeddings.Model = "custom-model"
	assert.Equal(t, "custom-model", a.embeddingModel(), "an explicit model should be kept as-is")
}

func TestApp_EmbeddingDimensions_FallsBackToEngineDefault(t *testing.T) {
	a := &app{cfg: &config.Config{}}
	assert.Equal(t, embedengine.Dimensions, a.embeddingDimensions())

	a.cfg.Embeddings.Dimensions = 512
	assert.Equal(t, 512, a.embeddingDimensions())
}

func TestApp_NewQueryMetrics_SharesStoreConnection(t *testing.T) {
	s, err := store.Open("")
	require.NoError(t, err)
	defer s.Close()

	a := &app{}
	qm, err := a.newQueryMetrics(s)
	require.NoError(t, err)
	defer qm.Close()

	qm.Record(telemetry.QueryEvent{
		Query: "handleRequest", QueryType: telemetry.QueryTypeLexical,
		ResultCount: 3, Latency: 5 * time.Millisecond, Timestamp: time.Now(),
	})
	snap := qm.Snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, int64(1), snap.QueryTypeCounts[telemetry.QueryTypeLexical])

	// Recording must not have closed s's shared connection out from under it.
	_, err = s.GetSymbolByID(context.Background(), "does-not-exist")
	require.NoError(t, err)
}

func TestNewApp_CreatesDataDir(t *testing.T) {
	tmpDir := t.TempDir()
	oldDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(tmpDir))
	defer func() { _ = os.Chdir(oldDir) }()

	a, err := newApp(".")
	require.NoError(t, err)

	info, err := os.Stat(a.dataDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CryptoPulse/internal/domain/models"
	"CryptoPulse/internal/service/cache"
	"CryptoPulse/internal/services/ml"
)

func trainedArtifact(t *testing.T, key models.ArtifactKey) *models.Artifact {
	t.Helper()
	x := [][]float64{{1, 2}, {2, 3}, {3, 5}, {4, 4}, {5, 7}, {6, 8}, {7, 7}, {8, 9}}
	y := [][]float64{{2, 3}, {3, 4}, {5, 6}, {4, 5}, {7, 8}, {8, 9}, {7, 8}, {9, 10}}
	p := ml.DefaultBoostingParams()
	p.NEstimators = 5
	model, err := ml.FitMultiOutput(x, y, p)
	require.NoError(t, err)
	sx, err := ml.FitStandard(x)
	require.NoError(t, err)
	sy, err := ml.FitStandard(y)
	require.NoError(t, err)
	return &models.Artifact{
		Key:     key,
		Model:   model,
		ScalerX: sx,
		ScalerY: sy,
		Meta: &models.TrainingMetadata{
			Timestamp:     time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
			DataShape:     1776,
			Algorithm:     "GradientBoostingRegressor",
			ForecastSteps: 2,
			FeatureCols:   []string{"Open", "Close"},
		},
	}
}

func TestFileModelStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	key := models.ArtifactKey{Coin: "BTCUSDT", Class: models.ClassDaily, Family: models.FamilyEnsemble}
	store, err := NewFileModelStore(dir, cache.NewArtifactCache(0), nil)
	require.NoError(t, err)

	_, found, err := store.Load(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, found)

	a := trainedArtifact(t, key)
	require.NoError(t, store.Save(context.Background(), a))
	for _, part := range []string{"model", "scaler_X", "scaler_y", "metadata"} {
		assert.FileExists(t, filepath.Join(dir, "bitcoin_gbr_30d_"+part+".json"))
	}

	// A fresh store with an empty cache must decode from disk.
	fresh, err := NewFileModelStore(dir, cache.NewArtifactCache(0), nil)
	require.NoError(t, err)
	loaded, found, err := fresh.Load(context.Background(), key)
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, loaded.Complete())
	assert.Equal(t, 1776, loaded.Meta.DataShape)

	in := [][]float64{{3, 5}}
	want, err := a.Model.Predict(in)
	require.NoError(t, err)
	got, err := loaded.Model.Predict(in)
	require.NoError(t, err)
	assert.InDeltaSlice(t, want[0], got[0], 1e-12)

	meta, ok, err := fresh.LoadMetadata(context.Background(), key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"Open", "Close"}, meta.FeatureCols)
}

func TestFileModelStoreSaveReplacesCachedArtifact(t *testing.T) {
	c := cache.NewArtifactCache(0)
	store, err := NewFileModelStore(t.TempDir(), c, nil)
	require.NoError(t, err)
	key := models.ArtifactKey{Coin: "ETHUSDT", Class: models.ClassHourly, Family: models.FamilyEnsemble}

	first := trainedArtifact(t, key)
	require.NoError(t, store.Save(context.Background(), first))
	second := trainedArtifact(t, key)
	require.NoError(t, store.Save(context.Background(), second))

	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Same(t, second, got)

	store.InvalidateCache()
	assert.Equal(t, 0, c.Len())
}

func TestFileModelStoreLoadNeverMixesSaves(t *testing.T) {
	store, err := NewFileModelStore(t.TempDir(), cache.NewArtifactCache(0), nil)
	require.NoError(t, err)
	key := models.ArtifactKey{Coin: "BNBUSDT", Class: models.ClassDaily, Family: models.FamilyEnsemble}

	a := trainedArtifact(t, key)
	b := trainedArtifact(t, key)
	b.ScalerX = &ml.StandardScaler{Mean: []float64{100, 200}, Scale: []float64{1, 1}}
	b.Meta.DataShape = 42
	require.NoError(t, store.Save(context.Background(), a))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			next := a
			if i%2 == 0 {
				next = b
			}
			assert.NoError(t, store.Save(context.Background(), next))
		}
	}()
	for i := 0; i < 50; i++ {
		store.InvalidateCache()
		got, found, err := store.Load(context.Background(), key)
		require.NoError(t, err)
		require.True(t, found)
		sx := got.ScalerX.(*ml.StandardScaler)
		if got.Meta.DataShape == 42 {
			assert.Equal(t, []float64{100, 200}, sx.Mean)
		} else {
			assert.NotEqual(t, []float64{100, 200}, sx.Mean)
		}
	}
	wg.Wait()
}

func TestFileModelStoreCorruptModel(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileModelStore(dir, cache.NewArtifactCache(0), nil)
	require.NoError(t, err)
	key := models.ArtifactKey{Coin: "SOLUSDT", Class: models.ClassDaily, Family: models.FamilyEnsemble}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "solana_gbr_30d_model.json"), []byte("{broken"), 0o644))

	_, found, err := store.Load(context.Background(), key)
	assert.Error(t, err)
	assert.False(t, found)
}

func TestFileModelStorePrefersBestRecurrentCheckpoint(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileModelStore(dir, cache.NewArtifactCache(0), nil)
	require.NoError(t, err)
	key := models.ArtifactKey{Coin: "BTCUSDT", Class: models.ClassHourly, Family: models.FamilyRecurrent}

	net := `{"input_size":1,"timesteps":1,"lstm":[{"units":1,"kernel":[[0,0,0,0]],"recurrent_kernel":[[0,0,0,0]],"bias":[0,0,0,0]}],"dense":[{"weights":[[1]],"bias":[%s]}]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bitcoin_lstm_48h_model.json"), []byte(fmt.Sprintf(net, "1")), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bitcoin_lstm_48h_model_best.json"), []byte(fmt.Sprintf(net, "2")), 0o644))

	a, found, err := store.Load(context.Background(), key)
	require.NoError(t, err)
	require.True(t, found)
	assert.Nil(t, a.ScalerX)
	out, err := a.Model.Predict([][]float64{{0}})
	require.NoError(t, err)
	assert.InDelta(t, 2.0, out[0][0], 1e-12)
}

func TestCompatibility(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	fresh := &models.TrainingMetadata{Timestamp: now.Add(-24 * time.Hour), DataShape: 1000}

	assert.False(t, DefaultCompatibility.Check(nil, 1000, now))
	assert.True(t, DefaultCompatibility.Check(fresh, 1000, now))
	assert.True(t, DefaultCompatibility.Check(fresh, 1100, now), "10% drift is still compatible")
	assert.False(t, DefaultCompatibility.Check(fresh, 1110, now), "11% drift")
	assert.False(t, DefaultCompatibility.Check(fresh, 890, now))

	old := &models.TrainingMetadata{Timestamp: now.Add(-8 * 24 * time.Hour), DataShape: 1000}
	assert.False(t, DefaultCompatibility.Check(old, 1000, now), "8 days old")
	sevenish := &models.TrainingMetadata{Timestamp: now.Add(-(7*24 + 20) * time.Hour), DataShape: 1000}
	assert.True(t, DefaultCompatibility.Check(sevenish, 1000, now), "7.8 days counts as 7")
}

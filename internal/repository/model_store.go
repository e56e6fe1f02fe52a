package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"CryptoPulse/internal/domain/models"
	domrepo "CryptoPulse/internal/domain/repository"
	"CryptoPulse/internal/service/cache"
	"CryptoPulse/internal/services/ml"
	applogger "CryptoPulse/pkg/logger"
)

// Compatibility decides whether a stored ensemble still fits the current data.
type Compatibility struct {
	MaxAge   time.Duration
	MaxDrift float64
}

// DefaultCompatibility allows 7 days of age and 10% drift in candle count.
var DefaultCompatibility = Compatibility{MaxAge: 7 * 24 * time.Hour, MaxDrift: 0.1}

// Check reports whether meta is usable for a series of currentLen candles.
// Age is compared in whole days.
func (c Compatibility) Check(meta *models.TrainingMetadata, currentLen int, now time.Time) bool {
	if meta == nil {
		return false
	}
	if !meta.Timestamp.IsZero() {
		ageDays := int(now.Sub(meta.Timestamp).Hours() / 24)
		if ageDays > int(c.MaxAge.Hours()/24) {
			return false
		}
	}
	if meta.DataShape > 0 {
		drift := math.Abs(float64(currentLen-meta.DataShape)) / float64(meta.DataShape)
		if drift > c.MaxDrift {
			return false
		}
	}
	return true
}

// FileModelStore keeps artifacts as JSON files under one directory:
// {coin_key}_{tag}_model.json, _scaler_X.json, _scaler_y.json, _metadata.json.
type FileModelStore struct {
	dir   string
	cache *cache.ArtifactCache
	l     *applogger.Logger
	// mu keeps the blob set of one save from being read half-written.
	mu sync.RWMutex
}

var _ domrepo.ModelStore = (*FileModelStore)(nil)

func NewFileModelStore(dir string, c *cache.ArtifactCache, l *applogger.Logger) (*FileModelStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("model dir: %w", err)
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &FileModelStore{dir: dir, cache: c, l: l}, nil
}

func (s *FileModelStore) path(key models.ArtifactKey, part string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_%s_%s.json", models.CoinKey(key.Coin), key.Tag(), part))
}

// modelPath prefers the "_best" checkpoint of the recurrent net when present.
func (s *FileModelStore) modelPath(key models.ArtifactKey) string {
	if key.Family == models.FamilyRecurrent {
		best := s.path(key, "model_best")
		if _, err := os.Stat(best); err == nil {
			return best
		}
	}
	return s.path(key, "model")
}

func (s *FileModelStore) Load(ctx context.Context, key models.ArtifactKey) (*models.Artifact, bool, error) {
	if a, ok := s.cache.Get(key); ok {
		return a, true, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if a, ok := s.cache.Get(key); ok {
		return a, true, nil
	}
	return s.loadFiles(key)
}

func (s *FileModelStore) loadFiles(key models.ArtifactKey) (*models.Artifact, bool, error) {
	raw, ok, err := readOptional(s.modelPath(key))
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	a := &models.Artifact{Key: key}
	switch key.Family {
	case models.FamilyEnsemble:
		var m ml.MultiOutputBoosting
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, false, fmt.Errorf("decode %s model: %w", key, err)
		}
		if err := m.Validate(); err != nil {
			return nil, false, fmt.Errorf("decode %s model: %w", key, err)
		}
		a.Model = &m
	case models.FamilyRecurrent:
		net, err := ml.DecodeRecurrentNet(raw)
		if err != nil {
			return nil, false, fmt.Errorf("%s: %w", key, err)
		}
		a.Model = net
	default:
		return nil, false, fmt.Errorf("family %q has no persisted model", key.Family)
	}

	if a.ScalerX, err = s.loadScaler(key, "scaler_X"); err != nil {
		return nil, false, err
	}
	if a.ScalerY, err = s.loadScaler(key, "scaler_y"); err != nil {
		return nil, false, err
	}
	if a.Meta, _, err = s.readMetadata(key); err != nil {
		// Metadata only drives reuse decisions; a broken file means "retrain".
		s.l.Warn("model metadata unreadable",
			applogger.String("artifact", key.String()),
			applogger.Error(err),
		)
		a.Meta = nil
	}

	s.cache.Put(a)
	s.l.Info("model artifact loaded",
		applogger.String("artifact", key.String()),
		applogger.Bool("scaler_x", a.ScalerX != nil),
		applogger.Bool("scaler_y", a.ScalerY != nil),
		applogger.Bool("metadata", a.Meta != nil),
	)
	return a, true, nil
}

func (s *FileModelStore) loadScaler(key models.ArtifactKey, part string) (models.Scaler, error) {
	raw, ok, err := readOptional(s.path(key, part))
	if err != nil || !ok {
		return nil, err
	}
	sc, err := ml.DecodeScaler(raw)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", key, part, err)
	}
	return sc, nil
}

func (s *FileModelStore) readMetadata(key models.ArtifactKey) (*models.TrainingMetadata, bool, error) {
	raw, ok, err := readOptional(s.path(key, "metadata"))
	if err != nil || !ok {
		return nil, false, err
	}
	var meta models.TrainingMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, false, fmt.Errorf("decode %s metadata: %w", key, err)
	}
	return &meta, true, nil
}

func (s *FileModelStore) LoadMetadata(_ context.Context, key models.ArtifactKey) (*models.TrainingMetadata, bool, error) {
	if a, ok := s.cache.Get(key); ok && a.Meta != nil {
		return a.Meta, true, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readMetadata(key)
}

// Save writes every blob through a temp file and rename, then swaps the cached
// artifact.
func (s *FileModelStore) Save(ctx context.Context, a *models.Artifact) error {
	if !a.Complete() {
		return fmt.Errorf("save %s: artifact is incomplete", a.Key)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	model, err := json.Marshal(a.Model)
	if err != nil {
		return fmt.Errorf("encode %s model: %w", a.Key, err)
	}
	scalerX, err := ml.EncodeScaler(a.ScalerX)
	if err != nil {
		return fmt.Errorf("%s scaler_X: %w", a.Key, err)
	}
	scalerY, err := ml.EncodeScaler(a.ScalerY)
	if err != nil {
		return fmt.Errorf("%s scaler_y: %w", a.Key, err)
	}
	blobs := []struct {
		path string
		data []byte
	}{
		{s.path(a.Key, "model"), model},
		{s.path(a.Key, "scaler_X"), scalerX},
		{s.path(a.Key, "scaler_y"), scalerY},
	}
	if a.Meta != nil {
		meta, err := json.MarshalIndent(a.Meta, "", "  ")
		if err != nil {
			return fmt.Errorf("encode %s metadata: %w", a.Key, err)
		}
		blobs = append(blobs, struct {
			path string
			data []byte
		}{s.path(a.Key, "metadata"), meta})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range blobs {
		if err := writeAtomic(b.path, b.data); err != nil {
			return fmt.Errorf("save %s: %w", a.Key, err)
		}
	}
	s.cache.Put(a)
	s.l.Info("model artifact saved",
		applogger.String("artifact", a.Key.String()),
		applogger.String("dir", s.dir),
	)
	return nil
}

func (s *FileModelStore) InvalidateCache() {
	n := s.cache.Clear()
	s.l.Info("model cache cleared", applogger.Int("entries", n))
}

func readOptional(path string) ([]byte, bool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return raw, true, nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	return os.Rename(name, path)
}

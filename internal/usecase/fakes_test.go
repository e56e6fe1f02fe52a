package usecase

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"CryptoPulse/internal/domain/models"
	drepo "CryptoPulse/internal/domain/repository"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// linear builds n candles whose close rises by one per step.
func linear(n int, step time.Duration) []models.Candle {
	out := make([]models.Candle, n)
	for i := range out {
		c := 100 + float64(i)
		out[i] = models.Candle{
			Time:   epoch.Add(time.Duration(i) * step),
			Open:   c - 0.5,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 500 + float64(i),
		}
	}
	return out
}

// wave builds n candles spaced by step with an upward drift and a slow cycle.
func wave(n int, step time.Duration) []models.Candle {
	out := make([]models.Candle, n)
	for i := range out {
		base := 100 + 0.3*float64(i) + 5*math.Sin(float64(i)/6)
		out[i] = models.Candle{
			Time:   epoch.Add(time.Duration(i) * step),
			Open:   base - 0.4,
			High:   base + 1.5,
			Low:    base - 1.5,
			Close:  base,
			Volume: 1000 + 10*math.Cos(float64(i)/4),
		}
	}
	return out
}

type fakeSource struct {
	name    string
	candles []models.Candle
	err     error

	mu    sync.Mutex
	calls []string
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Fetch(_ context.Context, symbol string, iv drepo.Interval, count int) ([]models.Candle, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fmt.Sprintf("%s/%s/%d", symbol, iv, count))
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.candles, nil
}

type fakeArchive struct {
	fakeSource
	stored [][]models.Candle
}

func (f *fakeArchive) StoreCandles(_ context.Context, _ string, _ drepo.Interval, c []models.Candle) error {
	f.stored = append(f.stored, c)
	return nil
}

type memStore struct {
	mu          sync.Mutex
	artifacts   map[models.ArtifactKey]*models.Artifact
	loadErr     error
	saves       int
	invalidated int
}

func newMemStore() *memStore {
	return &memStore{artifacts: map[models.ArtifactKey]*models.Artifact{}}
}

func (s *memStore) Load(_ context.Context, key models.ArtifactKey) (*models.Artifact, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, false, s.loadErr
	}
	a, ok := s.artifacts[key]
	return a, ok, nil
}

func (s *memStore) LoadMetadata(ctx context.Context, key models.ArtifactKey) (*models.TrainingMetadata, bool, error) {
	a, ok, err := s.Load(ctx, key)
	if err != nil || !ok || a.Meta == nil {
		return nil, false, err
	}
	return a.Meta, true, nil
}

func (s *memStore) Save(_ context.Context, a *models.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	s.artifacts[a.Key] = a
	return nil
}

func (s *memStore) InvalidateCache() {
	s.mu.Lock()
	s.invalidated++
	s.mu.Unlock()
}

// constModel predicts the same row for every input.
type constModel struct{ out []float64 }

func (m constModel) Outputs() int { return len(m.out) }

func (m constModel) Predict(x [][]float64) ([][]float64, error) {
	rows := make([][]float64, len(x))
	for i := range rows {
		rows[i] = append([]float64(nil), m.out...)
	}
	return rows, nil
}

// identity scaler
type identity struct{}

func (identity) Transform(x [][]float64) ([][]float64, error) { return x, nil }
func (identity) InverseTransform(x [][]float64) ([][]float64, error) { return x, nil }

type heldLock struct{ held bool }

func (l *heldLock) TryLock(context.Context, string, time.Duration) (bool, error) { return !l.held, nil }
func (l *heldLock) Unlock(context.Context, string) error { return nil }

type recMetrics struct {
	mu        sync.Mutex
	forecasts []string
	fallbacks []string
	fetches   []string
}

func (m *recMetrics) RecordForecast(f models.Family, outcome string) {
	m.mu.Lock()
	m.forecasts = append(m.forecasts, string(f)+":"+outcome)
	m.mu.Unlock()
}

func (m *recMetrics) RecordFallback(reason string) {
	m.mu.Lock()
	m.fallbacks = append(m.fallbacks, reason)
	m.mu.Unlock()
}

func (m *recMetrics) RecordFetch(source, outcome string) {
	m.mu.Lock()
	m.fetches = append(m.fetches, source+":"+outcome)
	m.mu.Unlock()
}

func (m *recMetrics) RecordTraining(models.ArtifactKey, float64) {}
func (m *recMetrics) RecordArtifactCache(bool) {}
func (m *recMetrics) RecordPredictedPrice(string, float64) {}

type memHistory struct {
	mu      sync.Mutex
	entries map[string]*models.HistoryEntry
	order   []string
}

func newMemHistory() *memHistory {
	return &memHistory{entries: map[string]*models.HistoryEntry{}}
}

func (h *memHistory) Init(context.Context) error { return nil }

func (h *memHistory) Store(_ context.Context, e *models.HistoryEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.entries[e.ID]; !ok {
		h.order = append(h.order, e.ID)
	}
	cp := *e
	h.entries[e.ID] = &cp
	return nil
}

func (h *memHistory) List(_ context.Context, coin string, limit int) ([]*models.HistoryEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []*models.HistoryEntry
	for _, id := range h.order {
		if e := h.entries[id]; coin == "" || e.Coin == coin {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (h *memHistory) Due(_ context.Context, now time.Time, limit int) ([]*models.HistoryEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []*models.HistoryEntry
	for _, id := range h.order {
		e := h.entries[id]
		if !e.IsVerified && !e.HorizonEnd.After(now) {
			cp := *e
			out = append(out, &cp)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (h *memHistory) Health(context.Context) error { return nil }
func (h *memHistory) Close() error { return nil }

func (h *memHistory) get(id string) *models.HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.entries[id]
}

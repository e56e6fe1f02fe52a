package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CryptoPulse/internal/domain/models"
)

type stubRetrainer struct {
	calls []RetrainPayload
	err   error
}

func (s *stubRetrainer) Retrain(_ context.Context, coin string, class models.HorizonClass) (*models.TrainingMetadata, error) {
	s.calls = append(s.calls, RetrainPayload{Coin: coin, Class: class})
	if s.err != nil {
		return nil, s.err
	}
	return &models.TrainingMetadata{R2Testing: 0.9}, nil
}

func TestRetrainJob(t *testing.T) {
	r := &stubRetrainer{}
	job := NewRetrainJob(r, nil)
	assert.Equal(t, RetrainJobType, job.Type())

	payload, _ := json.Marshal(RetrainPayload{Coin: "BTCUSDT", Class: models.ClassDaily})
	require.NoError(t, job.Handle(context.Background(), payload))
	assert.Equal(t, []RetrainPayload{{Coin: "BTCUSDT", Class: models.ClassDaily}}, r.calls)

	assert.Error(t, job.Handle(context.Background(), nil))
}

func TestRetrainJobErrors(t *testing.T) {
	payload, _ := json.Marshal(RetrainPayload{Coin: "BTCUSDT", Class: models.ClassHourly})

	busy := NewRetrainJob(&stubRetrainer{err: models.ErrTrainingInProgress}, nil)
	assert.NoError(t, busy.Handle(context.Background(), payload))

	failing := NewRetrainJob(&stubRetrainer{err: models.ErrDataUnavailable}, nil)
	assert.ErrorIs(t, failing.Handle(context.Background(), payload), models.ErrDataUnavailable)
}

type fakeEnqueuer struct {
	types    []string
	payloads []interface{}
	err      error
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, msgType string, payload interface{}) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.types = append(f.types, msgType)
	f.payloads = append(f.payloads, payload)
	return "job-" + string(rune('a'+len(f.types)-1)), nil
}

func TestTrainingScheduler(t *testing.T) {
	var disabled *TrainingScheduler
	_, err := disabled.Schedule(context.Background(), "BTCUSDT")
	assert.ErrorIs(t, err, models.ErrQueueDisabled)
	_, err = NewTrainingScheduler(nil).Schedule(context.Background(), "BTCUSDT")
	assert.ErrorIs(t, err, models.ErrQueueDisabled)

	q := &fakeEnqueuer{}
	s := NewTrainingScheduler(q)
	ids, err := s.Schedule(context.Background(), "ethusdt")
	require.NoError(t, err)
	assert.Equal(t, []string{"job-a", "job-b"}, ids)
	assert.Equal(t, []interface{}{
		RetrainPayload{Coin: "ETHUSDT", Class: models.ClassDaily},
		RetrainPayload{Coin: "ETHUSDT", Class: models.ClassHourly},
	}, q.payloads)

	_, err = s.Schedule(context.Background(), "NOPE")
	assert.ErrorIs(t, err, models.ErrUnsupportedCoin)

	_, err = NewTrainingScheduler(&fakeEnqueuer{err: errors.New("redis down")}).Schedule(context.Background(), "BTCUSDT")
	assert.Error(t, err)
}

func TestHistoryHandler(t *testing.T) {
	store := newMemHistory()
	h := NewHistoryHandler("forecast.history", NewHistory(store, nil, nil))
	assert.Equal(t, "forecast.history", h.Topic())

	entry := BuildHistoryEntry(sampleResult(), models.ClassDaily, epoch)
	raw, err := json.Marshal(entry)
	require.NoError(t, err)
	require.NoError(t, h.Handle(context.Background(), raw))

	got := store.get(entry.ID)
	require.NotNil(t, got)
	assert.Equal(t, entry.PredictedPrice, got.PredictedPrice)
	assert.True(t, entry.HorizonEnd.Equal(got.HorizonEnd))

	assert.Error(t, h.Handle(context.Background(), []byte("{")))
	assert.Error(t, h.Handle(context.Background(), []byte(`{"coin":"BTCUSDT"}`)))
}

package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"CryptoPulse/internal/domain/models"
	"CryptoPulse/internal/domain/service"
	"CryptoPulse/pkg/logger"
	"CryptoPulse/pkg/queue"
)

const RetrainJobType = "model.retrain"

type RetrainPayload struct {
	Coin  string              `json:"coin"`
	Class models.HorizonClass `json:"class"`
}

// RetrainJob runs queued ensemble retrains.
type RetrainJob struct {
	r service.Retrainer
	l *logger.Logger
}

var _ queue.Job = (*RetrainJob)(nil)

func NewRetrainJob(r service.Retrainer, l *logger.Logger) *RetrainJob {
	if l == nil {
		l = logger.Nop()
	}
	return &RetrainJob{r: r, l: l}
}

func (j *RetrainJob) Name() string { return "retrain" }
func (j *RetrainJob) Type() string { return RetrainJobType }

func (j *RetrainJob) Handle(ctx context.Context, payload json.RawMessage) error {
	p, err := queue.ParsePayload[RetrainPayload](payload)
	if err != nil {
		return err
	}
	meta, err := j.r.Retrain(ctx, p.Coin, p.Class)
	switch {
	case errors.Is(err, models.ErrTrainingInProgress):
		// Another worker owns this artifact.
		j.l.Info("retrain skipped", logger.String("coin", p.Coin), logger.String("class", string(p.Class)))
		return nil
	case errors.Is(err, models.ErrUnsupportedCoin), errors.Is(err, models.ErrInvalidHorizon):
		j.l.Warn("retrain rejected", logger.String("coin", p.Coin), logger.Error(err))
		return nil
	case err != nil:
		return fmt.Errorf("retrain %s %s: %w", p.Coin, p.Class, err)
	}
	j.l.Info("retrain finished",
		logger.String("coin", p.Coin),
		logger.String("class", string(p.Class)),
		logger.Float64("r2", meta.R2Testing),
		logger.Float64("avg_rmse", meta.AvgRMSE),
	)
	return nil
}

// Enqueuer is the part of the training queue the scheduler uses.
type Enqueuer interface {
	Enqueue(ctx context.Context, msgType string, payload interface{}) (string, error)
}

// TrainingScheduler turns train requests into queued jobs, one per ensemble class.
type TrainingScheduler struct {
	q Enqueuer
}

func NewTrainingScheduler(q Enqueuer) *TrainingScheduler {
	return &TrainingScheduler{q: q}
}

// Schedule returns the queued job ids.
func (s *TrainingScheduler) Schedule(ctx context.Context, coin string) ([]string, error) {
	if s == nil || s.q == nil {
		return nil, models.ErrQueueDisabled
	}
	coin, err := models.ValidateCoin(coin)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, class := range []models.HorizonClass{models.ClassDaily, models.ClassHourly} {
		id, err := s.q.Enqueue(ctx, RetrainJobType, RetrainPayload{Coin: coin, Class: class})
		if err != nil {
			return ids, fmt.Errorf("enqueue %s retrain: %w", class, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// HistoryHandler stores history entries consumed from Kafka.
type HistoryHandler struct {
	topic   string
	history *History
}

func NewHistoryHandler(topic string, h *History) *HistoryHandler {
	return &HistoryHandler{topic: topic, history: h}
}

func (h *HistoryHandler) Topic() string { return h.topic }

func (h *HistoryHandler) Handle(ctx context.Context, data []byte) error {
	var e models.HistoryEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return fmt.Errorf("decode history entry: %w", err)
	}
	if e.ID == "" || e.Coin == "" {
		return fmt.Errorf("history entry missing id or coin")
	}
	return h.history.Record(ctx, &e)
}

package usecase

import (
	"context"
	"fmt"
	"time"

	"CryptoPulse/internal/domain/models"
	"CryptoPulse/internal/services/features"
	"CryptoPulse/internal/services/ml"
	"CryptoPulse/pkg/logger"
)

const trainSplit = 0.8

func trainingLockKey(key models.ArtifactKey) string {
	return "train:" + key.String()
}

// train fits a fresh ensemble artifact for plan and saves it. The saved
// artifact replaces whatever the store had cached.
func (e *Engine) train(ctx context.Context, plan Plan, candles []models.Candle) (*models.Artifact, error) {
	if e.lock != nil {
		lk := trainingLockKey(plan.Key)
		ok, err := e.lock.TryLock(ctx, lk, e.lockTTL)
		if err != nil {
			e.l.Warn("training lock unavailable, training without it",
				logger.String("artifact", plan.Key.String()),
				logger.Error(err),
			)
		} else if !ok {
			return nil, fmt.Errorf("%w: %s", models.ErrTrainingInProgress, plan.Key)
		} else {
			defer func() {
				if err := e.lock.Unlock(context.WithoutCancel(ctx), lk); err != nil {
					e.l.Warn("release training lock", logger.String("artifact", plan.Key.String()), logger.Error(err))
				}
			}()
		}
	}

	start := time.Now()
	t, err := features.Build(candles, plan.Schema)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInsufficientHistory, err)
	}
	if t.Len() < plan.MinRows {
		return nil, fmt.Errorf("%w: %d feature rows, need %d to train", models.ErrInsufficientHistory, t.Len(), plan.MinRows)
	}
	sup, err := features.Targets(t, plan.Steps)
	if err != nil {
		return nil, err
	}
	train, test := sup.Split(trainSplit)
	if train.Len() == 0 {
		return nil, fmt.Errorf("%w: empty training split", models.ErrInsufficientHistory)
	}

	sx, err := ml.FitStandard(train.X)
	if err != nil {
		return nil, err
	}
	sy, err := ml.FitStandard(train.Y)
	if err != nil {
		return nil, err
	}
	xs, err := sx.Transform(train.X)
	if err != nil {
		return nil, err
	}
	ys, err := sy.Transform(train.Y)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	model, err := ml.FitMultiOutput(xs, ys, e.params)
	if err != nil {
		return nil, fmt.Errorf("fit %s: %w", plan.Key, err)
	}

	meta := &models.TrainingMetadata{
		Timestamp:     e.now(),
		DataShape:     len(candles),
		Algorithm:     "GradientBoostingRegressor",
		ForecastSteps: plan.Steps,
		NEstimators:   e.params.NEstimators,
		MaxDepth:      e.params.MaxDepth,
		LearningRate:  e.params.LearningRate,
		FeatureCols:   append([]string(nil), t.Columns...),
	}
	if test.Len() > 0 {
		if rmse, r2, err := evaluateEnsemble(model, sx, sy, test); err != nil {
			e.l.Warn("ensemble evaluation failed", logger.String("artifact", plan.Key.String()), logger.Error(err))
		} else {
			meta.RMSE, meta.AvgRMSE, meta.R2Testing = rmse, ml.Mean(rmse), r2
		}
	}

	a := &models.Artifact{Key: plan.Key, Model: model, ScalerX: sx, ScalerY: sy, Meta: meta}
	if err := e.store.Save(ctx, a); err != nil {
		// The artifact still serves this request.
		e.l.Error("save artifact", logger.String("artifact", plan.Key.String()), logger.Error(err))
	}

	elapsed := time.Since(start)
	e.metrics.RecordTraining(plan.Key, elapsed.Seconds())
	e.l.Info("ensemble trained",
		logger.String("artifact", plan.Key.String()),
		logger.Int("rows", sup.Len()),
		logger.Float64("r2", meta.R2Testing),
		logger.Float64("avg_rmse", meta.AvgRMSE),
		logger.Duration("took", elapsed),
	)
	return a, nil
}

func evaluateEnsemble(m *ml.MultiOutputBoosting, sx, sy models.Scaler, test *features.Supervised) ([]float64, float64, error) {
	xs, err := sx.Transform(test.X)
	if err != nil {
		return nil, 0, err
	}
	ps, err := m.Predict(xs)
	if err != nil {
		return nil, 0, err
	}
	pred, err := sy.InverseTransform(ps)
	if err != nil {
		return nil, 0, err
	}
	rmse, err := ml.StepRMSE(test.Y, pred)
	if err != nil {
		return nil, 0, err
	}
	return rmse, ml.R2(test.Y, pred), nil
}

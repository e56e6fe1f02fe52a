package models

import (
	"fmt"
	"time"
)

// ArtifactKey identifies one persisted model set.
type ArtifactKey struct {
	Coin   string       `json:"coin"`
	Class  HorizonClass `json:"class"`
	Family Family       `json:"family"`
}

// Tag is the file-name tag of the artifact set: gbr_30d, gbr_24h or lstm_48h.
func (k ArtifactKey) Tag() string {
	switch {
	case k.Family == FamilyEnsemble && k.Class == ClassDaily:
		return "gbr_30d"
	case k.Family == FamilyEnsemble && k.Class == ClassHourly:
		return "gbr_24h"
	case k.Family == FamilyRecurrent:
		return "lstm_48h"
	}
	return fmt.Sprintf("%s_%s", k.Family, k.Class)
}

func (k ArtifactKey) String() string {
	return fmt.Sprintf("%s/%s/%s", CoinKey(k.Coin), k.Class, k.Family)
}

// Predictor maps a batch of scaled input rows to scaled multi-step outputs.
type Predictor interface {
	Predict(x [][]float64) ([][]float64, error)
	Outputs() int
}

// Scaler transforms rows to and from the model's input/output space.
type Scaler interface {
	Transform(x [][]float64) ([][]float64, error)
	InverseTransform(x [][]float64) ([][]float64, error)
}

// TrainingMetadata describes how an artifact was produced.
type TrainingMetadata struct {
	Timestamp     time.Time `json:"timestamp"`
	DataShape     int       `json:"data_shape"`
	Algorithm     string    `json:"algorithm"`
	ForecastSteps int       `json:"forecast_steps"`
	NEstimators   int       `json:"n_estimators,omitempty"`
	MaxDepth      int       `json:"max_depth,omitempty"`
	LearningRate  float64   `json:"learning_rate,omitempty"`
	R2Testing     float64   `json:"r2_testing"`
	AvgRMSE       float64   `json:"avg_rmse"`
	RMSE          []float64 `json:"rmse,omitempty"`
	FeatureCols   []string  `json:"feature_cols"`
}

// Info renders the metadata as display model info.
func (m *TrainingMetadata) Info() ModelInfo {
	if m == nil {
		return ModelInfo{}
	}
	return ModelInfo{
		"timestamp":      m.Timestamp,
		"data_shape":     m.DataShape,
		"algorithm":      m.Algorithm,
		"forecast_steps": m.ForecastSteps,
		"n_estimators":   m.NEstimators,
		"max_depth":      m.MaxDepth,
		"learning_rate":  m.LearningRate,
		"r2_testing":     m.R2Testing,
		"avg_rmse":       m.AvgRMSE,
		"feature_cols":   m.FeatureCols,
	}
}

// Artifact is a fitted model with its scalers and optional metadata.
type Artifact struct {
	Key     ArtifactKey
	Model   Predictor
	ScalerX Scaler
	ScalerY Scaler
	Meta    *TrainingMetadata
}

// Complete reports whether the artifact can serve inference.
func (a *Artifact) Complete() bool {
	return a != nil && a.Model != nil && a.ScalerX != nil && a.ScalerY != nil
}

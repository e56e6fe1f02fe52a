package models

import "errors"

var (
	// ErrDataUnavailable means no candle source produced data. It is the only
	// failure that aborts a forecast request.
	ErrDataUnavailable = errors.New("market data unavailable")
	// ErrSourceUnavailable marks a single source failing; the next one is tried.
	ErrSourceUnavailable = errors.New("candle source unavailable")

	ErrModelUnavailable    = errors.New("model unavailable")
	ErrInferenceFailure    = errors.New("inference failure")
	ErrInsufficientHistory = errors.New("insufficient history")

	ErrUnsupportedCoin = errors.New("unsupported coin")
	ErrInvalidHorizon  = errors.New("invalid horizon")

	ErrTrainingInProgress = errors.New("training already in progress")
	ErrHistoryDisabled    = errors.New("forecast history is not configured")
	ErrQueueDisabled      = errors.New("training queue is not configured")
)

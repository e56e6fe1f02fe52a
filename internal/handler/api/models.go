package api

import (
	"CryptoPulse/internal/domain/models"
	xhttp "CryptoPulse/pkg/http"
	xlogger "CryptoPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

var metadataKeys = []struct {
	class  models.HorizonClass
	family models.Family
}{
	{models.ClassDaily, models.FamilyEnsemble},
	{models.ClassHourly, models.FamilyEnsemble},
	{models.ClassHourly, models.FamilyRecurrent},
}

type artifactMetadata struct {
	Class    models.HorizonClass      `json:"forecast_type"`
	Family   models.Family            `json:"family"`
	Tag      string                   `json:"tag"`
	Trained  bool                     `json:"trained"`
	Metadata *models.TrainingMetadata `json:"metadata,omitempty"`
}

// Metadata serves GET /api/models/:coin/metadata, one entry per artifact set.
func (h *Handler) Metadata(c echo.Context) error {
	coin, err := models.ValidateCoin(c.Param("coin"))
	if err != nil {
		return h.fail(c, "model metadata", err)
	}
	ctx := c.Request().Context()
	out := make([]artifactMetadata, 0, len(metadataKeys))
	for _, k := range metadataKeys {
		key := models.ArtifactKey{Coin: coin, Class: k.class, Family: k.family}
		meta, ok, err := h.store.LoadMetadata(ctx, key)
		if err != nil {
			return h.fail(c, "model metadata", err)
		}
		out = append(out, artifactMetadata{
			Class:    k.class,
			Family:   k.family,
			Tag:      key.Tag(),
			Trained:  ok,
			Metadata: meta,
		})
	}
	return xhttp.SuccessResponse(c, out)
}

// ClearCache serves POST /api/models/cache/clear. It drops cached artifacts
// and, when a candle cache is configured, cached candles.
func (h *Handler) ClearCache(c echo.Context) error {
	h.store.InvalidateCache()
	cleared := []string{"models"}
	if h.candles != nil {
		if err := h.candles.ClearCandles(c.Request().Context()); err != nil {
			return h.fail(c, "clear candle cache", err)
		}
		cleared = append(cleared, "candles")
	}
	h.logger.Info("caches cleared", xlogger.Strings("cleared", cleared))
	return xhttp.SuccessResponse(c, map[string]interface{}{"cleared": cleared})
}

// Train serves POST /api/models/:coin/train by queueing one retrain job per
// ensemble class.
func (h *Handler) Train(c echo.Context) error {
	if h.scheduler == nil {
		return h.fail(c, "train", models.ErrQueueDisabled)
	}
	ids, err := h.scheduler.Schedule(c.Request().Context(), c.Param("coin"))
	if err != nil {
		return h.fail(c, "train", err)
	}
	return xhttp.AcceptedResponse(c, map[string]interface{}{
		"coin": models.NormalizeCoin(c.Param("coin")),
		"jobs": ids,
	})
}

package api

import (
	"time"

	"CryptoPulse/internal/domain/models"
	xhttp "CryptoPulse/pkg/http"
	xlogger "CryptoPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Forecast serves POST /api/forecast.
func (h *Handler) Forecast(c echo.Context) error {
	req := &models.ForecastRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	start := time.Now()
	rep, err := h.reporter.Forecast(c.Request().Context(), *req)
	if err != nil {
		return h.fail(c, "forecast", err)
	}
	h.logger.Info("forecast served",
		xlogger.String("coin", rep.Coin),
		xlogger.Int("horizon", rep.Horizon),
		xlogger.String("family", string(rep.Family)),
		xlogger.Duration("took", time.Since(start)),
	)
	return xhttp.SuccessResponse(c, rep)
}

// ForecastHourly serves POST /api/forecast/hourly.
func (h *Handler) ForecastHourly(c echo.Context) error {
	req := &models.HourlyForecastRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rep, err := h.reporter.ForecastHourly(c.Request().Context(), req.Coin, req.ForceRetrain)
	if err != nil {
		return h.fail(c, "hourly forecast", err)
	}
	return xhttp.SuccessResponse(c, rep)
}

type coinsResponse struct {
	Coins      []string `json:"coins"`
	MinHorizon int      `json:"min_horizon_days"`
	MaxHorizon int      `json:"max_horizon_days"`
	HourlyStep int      `json:"hourly_steps"`
}

// Coins serves GET /api/forecast/coins.
func (h *Handler) Coins(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderCacheControl, "public, max-age=300")
	return xhttp.SuccessResponse(c, coinsResponse{
		Coins:      models.SupportedCoins(),
		MinHorizon: models.MinHorizonDays,
		MaxHorizon: models.MaxHorizonDays,
		HourlyStep: models.HourlySteps,
	})
}

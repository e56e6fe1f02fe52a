package api

import (
	"CryptoPulse/internal/domain/models"
	xhttp "CryptoPulse/pkg/http"

	"github.com/labstack/echo/v4"
)

// ListHistory serves GET /api/history?coin=.
func (h *Handler) ListHistory(c echo.Context) error {
	if h.history == nil {
		return h.fail(c, "history list", models.ErrHistoryDisabled)
	}
	rows, err := h.history.List(c.Request().Context(), c.QueryParam("coin"))
	if err != nil {
		return h.fail(c, "history list", err)
	}
	if rows == nil {
		rows = []*models.HistoryEntry{}
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *Handler) HistoryStats(c echo.Context) error {
	if h.history == nil {
		return h.fail(c, "history stats", models.ErrHistoryDisabled)
	}
	st, err := h.history.Stats(c.Request().Context())
	if err != nil {
		return h.fail(c, "history stats", err)
	}
	return xhttp.SuccessResponse(c, st)
}

// VerifyHistory serves POST /api/history/verify.
func (h *Handler) VerifyHistory(c echo.Context) error {
	if h.history == nil {
		return h.fail(c, "history verify", models.ErrHistoryDisabled)
	}
	rep, err := h.history.Verify(c.Request().Context())
	if err != nil {
		return h.fail(c, "history verify", err)
	}
	return xhttp.SuccessResponse(c, rep)
}

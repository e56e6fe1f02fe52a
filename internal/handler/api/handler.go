package api

import (
	"context"
	"errors"
	"net/http"

	"CryptoPulse/internal/domain/models"
	domrepo "CryptoPulse/internal/domain/repository"
	"CryptoPulse/internal/usecase"
	xhttp "CryptoPulse/pkg/http"
	"CryptoPulse/pkg/http/middleware"
	xlogger "CryptoPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

func init() {
	_ = xhttp.RegisterValidation("coin", func(v string) bool {
		_, err := models.ValidateCoin(v)
		return err == nil
	})
}

type reporter interface {
	Forecast(ctx context.Context, req models.ForecastRequest) (*usecase.ForecastReport, error)
	ForecastHourly(ctx context.Context, coin string, forceRetrain bool) (*usecase.ForecastReport, error)
}

type historyService interface {
	List(ctx context.Context, coin string) ([]*models.HistoryEntry, error)
	Stats(ctx context.Context) (*usecase.Stats, error)
	Verify(ctx context.Context) (*models.VerifyReport, error)
}

type scheduler interface {
	Schedule(ctx context.Context, coin string) ([]string, error)
}

type candleCache interface {
	ClearCandles(ctx context.Context) error
}

// TickerStream is the live mini-ticker feed relayed over /ws/ticker.
type TickerStream interface {
	Subscribe(ctx context.Context, symbol string) (<-chan *models.Ticker, <-chan error, error)
}

// Deps collects the collaborators of the API. History, Scheduler, Candles and
// Ticker are optional; the matching routes answer 503 without them.
type Deps struct {
	Reporter  reporter
	History   historyService
	Scheduler scheduler
	Store     domrepo.ModelStore
	Candles   candleCache
	Ticker    TickerStream
	Limiter   middleware.Allower
	Logger    *xlogger.Logger

	// TickerMaxRPS caps relayed frames per second per client; 0 relays all.
	TickerMaxRPS int
}

// Handler serves the forecast API.
type Handler struct {
	logger    *xlogger.Logger
	reporter  reporter
	history   historyService
	scheduler scheduler
	store     domrepo.ModelStore
	candles   candleCache
	ticker    TickerStream
	tickerRPS int
	limiter   middleware.Allower
}

func NewHandler(d Deps) *Handler {
	l := d.Logger
	if l == nil {
		l = xlogger.Nop()
	}
	return &Handler{
		logger:    l,
		reporter:  d.Reporter,
		history:   d.History,
		scheduler: d.Scheduler,
		store:     d.Store,
		candles:   d.Candles,
		ticker:    d.Ticker,
		tickerRPS: d.TickerMaxRPS,
		limiter:   d.Limiter,
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")

	fc := g.Group("/forecast")
	fc.POST("", h.Forecast, middleware.RateLimit(h.limiter, 1))
	fc.POST("/hourly", h.ForecastHourly, middleware.RateLimit(h.limiter, 1))
	fc.GET("/coins", h.Coins)

	g.GET("/models/:coin/metadata", h.Metadata)
	g.POST("/models/cache/clear", h.ClearCache)
	g.POST("/models/:coin/train", h.Train)

	g.GET("/history", h.ListHistory)
	g.GET("/history/stats", h.HistoryStats)
	g.POST("/history/verify", h.VerifyHistory)

	g.GET("/ws/ticker/:coin", h.Ticker)
}

// mapError converts domain failures into API errors. Anything unknown is a 500.
func mapError(err error) *xhttp.AppError {
	var appErr *xhttp.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, models.ErrUnsupportedCoin), errors.Is(err, models.ErrInvalidHorizon):
		return xhttp.BadRequestError(err.Error()).WithError(err)
	case errors.Is(err, models.ErrInsufficientHistory):
		return xhttp.UnprocessableError(err.Error()).WithError(err)
	case errors.Is(err, models.ErrTrainingInProgress):
		return xhttp.ConflictError(err.Error()).WithError(err)
	case errors.Is(err, models.ErrDataUnavailable),
		errors.Is(err, models.ErrHistoryDisabled),
		errors.Is(err, models.ErrQueueDisabled):
		return xhttp.ServiceUnavailableError(err.Error()).WithError(err)
	case errors.Is(err, context.DeadlineExceeded):
		return xhttp.NewAppError("ERR_TIMEOUT", "", "request timed out", http.StatusGatewayTimeout).WithError(err)
	}
	return xhttp.InternalError("Something went wrong").WithError(err)
}

func (h *Handler) fail(c echo.Context, op string, err error) error {
	appErr := mapError(err)
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.Error(op+" failed", xlogger.Error(err), xlogger.Int("status", appErr.Status))
	} else {
		h.logger.Warn(op+" rejected", xlogger.Error(err), xlogger.Int("status", appErr.Status))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"CryptoPulse/internal/domain/models"
	imw "CryptoPulse/internal/middleware"
	xhttp "CryptoPulse/pkg/http"
	xlogger "CryptoPulse/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const tickerWriteWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type tickerFrame struct {
	Type   string         `json:"type"`
	Ticker *models.Ticker `json:"data,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// Ticker serves GET /api/ws/ticker/:coin, relaying exchange mini-ticker frames
// until either side goes away.
func (h *Handler) Ticker(c echo.Context) error {
	coin, err := models.ValidateCoin(c.Param("coin"))
	if err != nil {
		return h.fail(c, "ticker", err)
	}
	if h.ticker == nil {
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("live ticker is not configured"))
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Warn("ticker upgrade failed", xlogger.Error(err))
		return nil
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	// Client frames are discarded; a read error means the client left.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	tickers, errs, err := h.ticker.Subscribe(ctx, coin)
	if err != nil {
		h.logger.Error("ticker subscribe failed", xlogger.String("coin", coin), xlogger.Error(err))
		h.closeTicker(conn, websocket.CloseTryAgainLater, err)
		return nil
	}
	h.logger.Info("ticker relay started", xlogger.String("coin", coin))

	pipe := imw.NewTickerPipeline(imw.WithMaxRPS(h.tickerRPS))
	defer func() {
		accepted, throttled, invalid := pipe.Stats()
		h.logger.Info("ticker relay stopped",
			xlogger.String("coin", coin),
			xlogger.Int("accepted", accepted),
			xlogger.Int("throttled", throttled),
			xlogger.Int("invalid", invalid),
		)
	}()

	for {
		select {
		case <-ctx.Done():
			h.closeTicker(conn, websocket.CloseNormalClosure, nil)
			return nil
		case t, ok := <-tickers:
			if !ok {
				h.closeTicker(conn, websocket.CloseGoingAway, upstreamErr(errs))
				return nil
			}
			if t, ok = pipe.Accept(t); !ok {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(tickerWriteWait))
			if err := conn.WriteJSON(tickerFrame{Type: "ticker", Ticker: t}); err != nil {
				h.logger.Debug("ticker client write failed", xlogger.Error(err))
				return nil
			}
		}
	}
}

func upstreamErr(errs <-chan error) error {
	if err, ok := <-errs; ok && err != nil {
		return err
	}
	return errors.New("upstream stream closed")
}

func (h *Handler) closeTicker(conn *websocket.Conn, code int, cause error) {
	deadline := time.Now().Add(tickerWriteWait)
	if cause != nil {
		_ = conn.SetWriteDeadline(deadline)
		_ = conn.WriteJSON(tickerFrame{Type: "error", Error: cause.Error()})
	}
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, ""), deadline)
}

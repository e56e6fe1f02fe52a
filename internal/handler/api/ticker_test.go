package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CryptoPulse/internal/domain/models"
)

type fakeStream struct {
	frames []*models.Ticker
	err    error
}

func (f *fakeStream) Subscribe(context.Context, string) (<-chan *models.Ticker, <-chan error, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	tickers := make(chan *models.Ticker, len(f.frames))
	errs := make(chan error, 1)
	for _, t := range f.frames {
		tickers <- t
	}
	errs <- errors.New("upstream gone")
	close(tickers)
	close(errs)
	return tickers, errs, nil
}

func dialTicker(t *testing.T, stream TickerStream, coin string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(newTestEcho(Deps{Store: &fakeStore{}, Ticker: stream}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/ticker/" + coin
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestTickerRelay(t *testing.T) {
	at := time.Unix(1700000000, 0).UTC()
	stream := &fakeStream{frames: []*models.Ticker{
		{Symbol: "BTCUSDT", Close: 42000, Open: 41000, High: 42500, Low: 40900, Volume: 12, EventTime: at},
		{Symbol: "BTCUSDT", Close: -1, EventTime: at},
		{Symbol: "BTCUSDT", Close: 42100, Open: 41000, High: 42500, Low: 40900, Volume: 13, EventTime: at.Add(time.Second)},
	}}
	conn := dialTicker(t, stream, "btcusdt")

	var frames []tickerFrame
	for {
		var f tickerFrame
		if err := conn.ReadJSON(&f); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), err.Error())
			break
		}
		frames = append(frames, f)
	}

	require.Len(t, frames, 3, "invalid frame is dropped, upstream error is reported")
	assert.Equal(t, 42000.0, frames[0].Ticker.Close)
	assert.Equal(t, 42100.0, frames[1].Ticker.Close)
	assert.Equal(t, "error", frames[2].Type)
	assert.Equal(t, "upstream gone", frames[2].Error)
}

func TestTickerSubscribeFailure(t *testing.T) {
	conn := dialTicker(t, &fakeStream{err: errors.New("dial refused")}, "ETHUSDT")

	var f tickerFrame
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, "error", f.Type)
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseTryAgainLater))
}

func TestTickerRejectsBeforeUpgrade(t *testing.T) {
	e := newTestEcho(Deps{Store: &fakeStore{}, Ticker: &fakeStream{}})
	rec, _ := do(t, e, http.MethodGet, "/api/ws/ticker/NOTACOIN", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	e = newTestEcho(Deps{Store: &fakeStore{}})
	rec, _ = do(t, e, http.MethodGet, "/api/ws/ticker/BTCUSDT", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

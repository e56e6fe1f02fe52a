package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"CryptoPulse/internal/domain/models"
	applogger "CryptoPulse/pkg/logger"

	"github.com/gorilla/websocket"
)

// StreamConfig holds the websocket settings.
type StreamConfig struct {
	URL          string
	PingInterval time.Duration
}

// Stream subscribes to the <symbol>@miniTicker websocket channel.
// Every Subscribe call owns its own connection.
type Stream struct {
	cfg    StreamConfig
	dialer *websocket.Dialer
	l      *applogger.Logger
}

// NewStream creates a mini-ticker stream; it does not connect until Subscribe.
func NewStream(cfg StreamConfig, l *applogger.Logger) *Stream {
	if cfg.URL == "" {
		cfg.URL = "wss://stream.binance.com:9443/ws"
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &Stream{cfg: cfg, dialer: websocket.DefaultDialer, l: l}
}

type miniTicker struct {
	Event     string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Close     string `json:"c"`
	Open      string `json:"o"`
	High      string `json:"h"`
	Low       string `json:"l"`
	Volume    string `json:"v"`
}

func (m miniTicker) toTicker() (*models.Ticker, error) {
	var vals [5]float64
	for i, s := range []string{m.Close, m.Open, m.High, m.Low, m.Volume} {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return &models.Ticker{
		Symbol:    m.Symbol,
		Close:     vals[0],
		Open:      vals[1],
		High:      vals[2],
		Low:       vals[3],
		Volume:    vals[4],
		EventTime: time.UnixMilli(m.EventTime).UTC(),
	}, nil
}

// Subscribe connects and streams tickers until ctx ends or the connection drops.
// Both channels are closed when the read loop exits.
func (s *Stream) Subscribe(ctx context.Context, symbol string) (<-chan *models.Ticker, <-chan error, error) {
	u := fmt.Sprintf("%s/%s@miniTicker", strings.TrimRight(s.cfg.URL, "/"), strings.ToLower(symbol))
	conn, _, err := s.dialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("binance stream connect: %w", err)
	}
	s.l.Info("binance stream connected", applogger.String("symbol", symbol))

	tickers := make(chan *models.Ticker, 64)
	errs := make(chan error, 1)
	done := make(chan struct{})

	go func() {
		ticker := time.NewTicker(s.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = conn.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			}
		}
	}()

	go func() {
		defer close(tickers)
		defer close(errs)
		defer close(done)
		defer conn.Close()
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					errs <- fmt.Errorf("binance stream read: %w", err)
				}
				return
			}
			var m miniTicker
			if err := json.Unmarshal(b, &m); err != nil || m.Event != "24hrMiniTicker" {
				continue
			}
			t, err := m.toTicker()
			if err != nil {
				continue
			}
			select {
			case tickers <- t:
			case <-ctx.Done():
				return
			default:
				// slow consumer: drop the frame, the next one supersedes it
			}
		}
	}()

	return tickers, errs, nil
}

package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"CryptoPulse/internal/domain/models"
	drepo "CryptoPulse/internal/domain/repository"
	xhttp "CryptoPulse/pkg/http"
	applogger "CryptoPulse/pkg/logger"

	"github.com/sethvargo/go-retry"
)

const (
	klinesPath   = "/api/v3/klines"
	maxPageLimit = 1000
)

// Config holds the REST client settings.
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	PageLimit      int
	RequestsPerSec float64
	// Retries applies to 429 and 5xx responses only.
	Retries    uint64
	RetryDelay time.Duration
}

// Client fetches klines from the Binance public REST API.
type Client struct {
	baseURL    string
	pageLimit  int
	retries    uint64
	retryDelay time.Duration
	http       *xhttp.Client
	l          *applogger.Logger
}

var (
	_ drepo.CandleSource = (*Client)(nil)
	_ drepo.RangeSource  = (*Client)(nil)
)

// New creates a Binance kline client.
func New(cfg Config, l *applogger.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.binance.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.PageLimit <= 0 || cfg.PageLimit > maxPageLimit {
		cfg.PageLimit = maxPageLimit
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 250 * time.Millisecond
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		pageLimit:  cfg.PageLimit,
		retries:    cfg.Retries,
		retryDelay: cfg.RetryDelay,
		http: xhttp.NewClient(
			xhttp.WithTimeout(cfg.Timeout),
			xhttp.WithRateLimit(cfg.RequestsPerSec, 1),
		),
		l: l,
	}
}

func (c *Client) Name() string { return "binance" }

// Fetch pages backwards from the latest kline until count candles are held
// or the exchange returns an empty page. Any failure discards partial data.
func (c *Client) Fetch(ctx context.Context, symbol string, interval drepo.Interval, count int) ([]models.Candle, error) {
	if !drepo.IsValidInterval(interval) {
		return nil, fmt.Errorf("%w: binance: unsupported interval %q", models.ErrSourceUnavailable, interval)
	}
	if count <= 0 {
		return nil, fmt.Errorf("%w: binance: count must be positive", models.ErrSourceUnavailable)
	}

	var all []models.Candle
	pages := count/c.pageLimit + 1
	for i := 0; i < pages; i++ {
		limit := count - len(all)
		if limit <= 0 {
			break
		}
		if limit > c.pageLimit {
			limit = c.pageLimit
		}

		params := map[string][]string{
			"symbol":   {strings.ToUpper(symbol)},
			"interval": {string(interval)},
			"limit":    {strconv.Itoa(limit)},
		}
		if len(all) > 0 {
			params["endTime"] = []string{strconv.FormatInt(all[0].Time.UnixMilli()-1, 10)}
		}

		page, err := c.klines(ctx, params)
		if err != nil {
			c.l.Warn("binance fetch failed",
				applogger.String("symbol", symbol),
				applogger.String("interval", string(interval)),
				applogger.Int("page", i),
				applogger.Error(err),
			)
			return nil, fmt.Errorf("%w: binance %s %s: %v", models.ErrSourceUnavailable, symbol, interval, err)
		}
		if len(page) == 0 {
			break
		}
		all = append(page, all...)
	}

	if len(all) == 0 {
		return nil, fmt.Errorf("%w: binance %s %s: no klines", models.ErrSourceUnavailable, symbol, interval)
	}
	return all, nil
}

// FetchRange returns klines whose open time lies in [start, end].
func (c *Client) FetchRange(ctx context.Context, symbol string, interval drepo.Interval, start, end time.Time, limit int) ([]models.Candle, error) {
	if limit <= 0 || limit > c.pageLimit {
		limit = c.pageLimit
	}
	params := map[string][]string{
		"symbol":    {strings.ToUpper(symbol)},
		"interval":  {string(interval)},
		"startTime": {strconv.FormatInt(start.UnixMilli(), 10)},
		"endTime":   {strconv.FormatInt(end.UnixMilli(), 10)},
		"limit":     {strconv.Itoa(limit)},
	}
	candles, err := c.klines(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: binance range %s: %v", models.ErrSourceUnavailable, symbol, err)
	}
	return candles, nil
}

func (c *Client) klines(ctx context.Context, params map[string][]string) ([]models.Candle, error) {
	var raw []byte
	backoff := retry.WithMaxRetries(c.retries, retry.NewExponential(c.retryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
			Method:      xhttp.MethodGet,
			URL:         c.baseURL + klinesPath,
			QueryParams: params,
		}, &raw)
		var se *xhttp.StatusError
		if errors.As(err, &se) && (se.Code == http.StatusTooManyRequests || se.Code >= http.StatusInternalServerError) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return parseKlines(raw)
}

// parseKlines decodes [open_time, open, high, low, close, volume, close_time, ...] rows.
func parseKlines(raw []byte) ([]models.Candle, error) {
	var rows [][]interface{}
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("parse klines: %w", err)
	}

	out := make([]models.Candle, 0, len(rows))
	for i, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("kline %d: expected at least 6 fields, got %d", i, len(row))
		}
		openTime, ok := row[0].(float64)
		if !ok {
			return nil, fmt.Errorf("kline %d: invalid open time type %T", i, row[0])
		}
		var vals [5]float64
		for j := range vals {
			v, err := numberField(row[j+1])
			if err != nil {
				return nil, fmt.Errorf("kline %d field %d: %w", i, j+1, err)
			}
			vals[j] = v
		}
		out = append(out, models.Candle{
			Time:   time.UnixMilli(int64(openTime)).UTC(),
			Open:   vals[0],
			High:   vals[1],
			Low:    vals[2],
			Close:  vals[3],
			Volume: vals[4],
		})
	}
	return out, nil
}

func numberField(v interface{}) (float64, error) {
	switch t := v.(type) {
	case string:
		return strconv.ParseFloat(t, 64)
	case float64:
		return t, nil
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

package models

// Sentiment labels.
const (
	SentimentBullish = "Bullish"
	SentimentBearish = "Bearish"
	SentimentNeutral = "Neutral"
)

type Indicators struct {
	RSI        float64 `json:"rsi"`
	MACD       float64 `json:"macd"`
	MACDSignal float64 `json:"macd_signal"`
	EMAShort   float64 `json:"ema_short"`
	EMALong    float64 `json:"ema_long"`
	Volatility float64 `json:"volatility"`
	Momentum   float64 `json:"momentum"`
}

// Sentiment is the technical-indicator view of historical plus forecast prices.
type Sentiment struct {
	Horizon    int        `json:"horizon"`
	Label      string     `json:"label"`
	Score      float64    `json:"score"`
	Indicators Indicators `json:"indicators"`
}

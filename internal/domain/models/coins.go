package models

import (
	"fmt"
	"strings"
)

// CoinNameMap maps exchange symbols to the key used in artifact file names.
var CoinNameMap = map[string]string{
	"BTCUSDT":  "bitcoin",
	"ETHUSDT":  "ethereum",
	"BNBUSDT":  "binance",
	"SOLUSDT":  "solana",
	"XRPUSDT":  "ripple",
	"DOGEUSDT": "doge",
	"ADAUSDT":  "ada",
	"BCHUSDT":  "bitcoin_cash",
}

var supportedCoins = []string{"BTCUSDT", "ETHUSDT", "BNBUSDT", "SOLUSDT", "XRPUSDT", "DOGEUSDT", "ADAUSDT", "BCHUSDT"}

// SupportedCoins returns the tradable symbols in display order.
func SupportedCoins() []string {
	out := make([]string, len(supportedCoins))
	copy(out, supportedCoins)
	return out
}

// NormalizeCoin upper-cases and trims a symbol.
func NormalizeCoin(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// CoinKey returns the artifact key for a symbol. Unknown symbols fall back to
// the lower-cased symbol so ad-hoc artifacts can still be located.
func CoinKey(symbol string) string {
	symbol = NormalizeCoin(symbol)
	if key, ok := CoinNameMap[symbol]; ok {
		return key
	}
	return strings.ToLower(symbol)
}

// ValidateCoin rejects symbols outside the supported set.
func ValidateCoin(symbol string) (string, error) {
	symbol = NormalizeCoin(symbol)
	if _, ok := CoinNameMap[symbol]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedCoin, symbol)
	}
	return symbol, nil
}

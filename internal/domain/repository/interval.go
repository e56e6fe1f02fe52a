package repository

import "time"

// Interval is a kline resolution understood by the candle sources.
type Interval string

const (
	Interval1h Interval = "1h"
	Interval1d Interval = "1d"
)

// IsValidInterval returns true if iv is a supported interval.
func IsValidInterval(iv Interval) bool {
	switch iv {
	case Interval1h, Interval1d:
		return true
	default:
		return false
	}
}

// Step is the spacing between consecutive candles of the interval.
func (iv Interval) Step() time.Duration {
	if iv == Interval1d {
		return 24 * time.Hour
	}
	return time.Hour
}

// DatasetSuffix is the suffix used by the offline dataset files.
func (iv Interval) DatasetSuffix() string {
	if iv == Interval1d {
		return "daily"
	}
	return "hourly"
}

package util

import (
	"strconv"
	"strings"
)

// ParseFloat parses a decimal string as sent by exchanges ("43125.10000000").
func ParseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

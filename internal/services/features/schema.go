package features

import "fmt"

// Schema describes which derived columns are computed and which are emitted.
// Every computed column takes part in the undefined-row filter even when it is
// not emitted.
type Schema struct {
	Name             string
	CloseMA          []int
	VolatilityWindow int
	VolumeMA         []int
	HighLowRatio     bool
	Columns          []string
}

var (
	// HourlyRecurrent feeds the 48-step recurrent net.
	HourlyRecurrent = Schema{
		Name:             "hourly_recurrent",
		CloseMA:          []int{12, 24, 168},
		VolatilityWindow: 12,
		Columns: []string{
			"Open", "High", "Low", "Close", "Volume",
			"MA_12", "MA_24", "MA_168",
			"Returns", "Volatility",
			"Price_Range", "Price_Change",
		},
	}

	Daily = Schema{
		Name:             "daily",
		CloseMA:          []int{7, 14, 30, 50},
		VolatilityWindow: 7,
		VolumeMA:         []int{7},
		HighLowRatio:     true,
		Columns: []string{
			"Open", "High", "Low", "Close", "Volume",
			"MA_7", "MA_14", "MA_30", "MA_50",
			"Returns", "Volatility",
			"Price_Range", "Price_Change",
			"Volume_MA_7", "High_Low_Ratio",
		},
	}

	// DailyEnsemble computes the full daily set but feeds the model without
	// MA_50; warm-up is still driven by the 50 window.
	DailyEnsemble = Daily.WithName("daily_ensemble").WithColumns([]string{
		"Open", "High", "Low", "Close", "Volume",
		"MA_7", "MA_14", "MA_30",
		"Returns", "Volatility",
		"Price_Range", "Price_Change",
		"Volume_MA_7", "High_Low_Ratio",
	})

	HourlyEnsemble = Schema{
		Name:             "hourly_ensemble",
		CloseMA:          []int{12, 24},
		VolatilityWindow: 12,
		VolumeMA:         []int{12},
		HighLowRatio:     true,
		Columns: []string{
			"Open", "High", "Low", "Close", "Volume",
			"MA_12", "MA_24",
			"Returns", "Volatility",
			"Price_Range", "Price_Change",
			"Volume_MA_12", "High_Low_Ratio",
		},
	}
)

// WithColumns returns a copy emitting cols instead of the default column list.
// Used when a stored artifact records the columns it was trained on.
func (s Schema) WithColumns(cols []string) Schema {
	out := s
	out.Columns = append([]string(nil), cols...)
	return out
}

func (s Schema) WithName(name string) Schema {
	out := s
	out.Name = name
	return out
}

// Warmup is the number of leading candles that cannot form a complete row.
func (s Schema) Warmup() int {
	w := 1 // Returns is undefined at the first candle.
	for _, p := range s.CloseMA {
		w = max(w, p-1)
	}
	for _, p := range s.VolumeMA {
		w = max(w, p-1)
	}
	if s.VolatilityWindow > 1 {
		// Returns are undefined at 0, so the first full window ends at index VolatilityWindow.
		w = max(w, s.VolatilityWindow)
	}
	return w
}

func (s Schema) computed() []string {
	cols := []string{"Open", "High", "Low", "Close", "Volume"}
	for _, p := range s.CloseMA {
		cols = append(cols, fmt.Sprintf("MA_%d", p))
	}
	cols = append(cols, "Returns")
	if s.VolatilityWindow > 1 {
		cols = append(cols, "Volatility")
	}
	cols = append(cols, "Price_Range", "Price_Change")
	for _, p := range s.VolumeMA {
		cols = append(cols, fmt.Sprintf("Volume_MA_%d", p))
	}
	if s.HighLowRatio {
		cols = append(cols, "High_Low_Ratio")
	}
	return cols
}

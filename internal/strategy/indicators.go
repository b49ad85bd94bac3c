package strategy

import "quantflow/internal/domain"

// Technical indicators over plain price slices. Each function returns a
// slice the same length as its input; entries inside the warm-up period are
// zero and callers must skip them.

// SMA returns the simple moving average of data with the given window. The
// first window-1 entries are zero and should be ignored.
func SMA(data []float64, window int) []float64 {
	out := make([]float64, len(data))
	if window <= 0 || len(data) < window {
		return out
	}
	var sum float64
	for i, v := range data {
		sum += v
		if i >= window {
			sum -= data[i-window]
		}
		if i >= window-1 {
			out[i] = sum / float64(window)
		}
	}
	return out
}

// LastSMA returns the simple moving average of the final window entries, and
// false if there is not enough data.
func LastSMA(data []float64, window int) (float64, bool) {
	if window <= 0 || len(data) < window {
		return 0, false
	}
	var sum float64
	for _, v := range data[len(data)-window:] {
		sum += v
	}
	return sum / float64(window), true
}

// EMA returns the exponential moving average of data with the given window,
// seeded with the first value.
func EMA(data []float64, window int) []float64 {
	out := make([]float64, len(data))
	if window <= 0 || len(data) == 0 {
		return out
	}
	alpha := 2.0 / (float64(window) + 1.0)
	out[0] = data[0]
	for i := 1; i < len(data); i++ {
		out[i] = alpha*data[i] + (1-alpha)*out[i-1]
	}
	return out
}

// RSI returns the relative strength index (0-100) of data with the given
// window, using simple moving averages of gains and losses. Entries before
// index window are zero and should be ignored.
func RSI(data []float64, window int) []float64 {
	out := make([]float64, len(data))
	if window <= 0 || len(data) <= window {
		return out
	}

	gains := make([]float64, len(data))
	losses := make([]float64, len(data))
	for i := 1; i < len(data); i++ {
		delta := data[i] - data[i-1]
		if delta > 0 {
			gains[i] = delta
		} else {
			losses[i] = -delta
		}
	}

	avgGain := SMA(gains, window)
	avgLoss := SMA(losses, window)
	for i := window; i < len(data); i++ {
		if avgLoss[i] == 0 {
			out[i] = 100
			continue
		}
		rs := avgGain[i] / avgLoss[i]
		out[i] = 100 - 100/(1+rs)
	}
	return out
}

// Closes extracts the closing prices from a bar slice.
func Closes(bars []domain.Bar) []float64 {
	out := make([]float64, len(bars))
	for i := range bars {
		out[i] = bars[i].Close
	}
	return out
}

// Package indicators implements the close-series math behind market
// snapshots: simple and exponential moving averages, MACD and Wilder's RSI.
// Every function returns a series aligned with its input; positions without
// enough history hold NaN so callers can tell "no value yet" from zero.
package indicators

import "math"

// Conventional MACD periods.
const (
	macdFast       = 12
	macdSlow       = 26
	macdSignalSpan = 9
)

// SMA produces the simple moving average over a sliding window of period
// closes.
func SMA(closes []float64, period int) []float64 {
	if period <= 0 || len(closes) == 0 {
		return []float64{}
	}
	out := nans(len(closes))
	if len(closes) < period {
		return out
	}
	var sum float64
	for i, c := range closes {
		sum += c
		if i >= period {
			sum -= closes[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA produces the exponential moving average, seeded with the mean of the
// first full window. NaN inputs are tolerated so the MACD signal line can
// smooth a series with a NaN head: the seed window is the first run of
// period consecutive numbers, and a NaN close after it carries the previous
// average forward.
func EMA(closes []float64, period int) []float64 {
	if period <= 0 || len(closes) == 0 {
		return []float64{}
	}
	out := nans(len(closes))
	seedAt := firstWindow(closes, period)
	if seedAt < 0 {
		return out
	}
	seed := mean(closes[seedAt+1-period : seedAt+1])
	out[seedAt] = seed

	alpha := 2.0 / float64(period+1)
	for i := seedAt + 1; i < len(closes); i++ {
		if math.IsNaN(closes[i]) {
			out[i] = out[i-1]
			continue
		}
		prev := out[i-1]
		if math.IsNaN(prev) {
			prev = seed
		}
		out[i] = (closes[i]-prev)*alpha + prev
	}
	return out
}

// MACD returns the MACD line (EMA12 minus EMA26), its 9-period signal line
// and the histogram (line minus signal).
func MACD(closes []float64) (line, signal, hist []float64) {
	if len(closes) == 0 {
		return []float64{}, []float64{}, []float64{}
	}
	line = subtract(EMA(closes, macdFast), EMA(closes, macdSlow))
	signal = EMA(line, macdSignalSpan)
	hist = subtract(line, signal)
	return line, signal, hist
}

// RSI computes the Relative Strength Index with Wilder smoothing. The first
// value appears once period+1 closes exist. A flat series reads 50, an
// all-gain run 100 and an all-loss run 0.
func RSI(closes []float64, period int) []float64 {
	if period <= 0 || len(closes) == 0 {
		return []float64{}
	}
	out := nans(len(closes))
	if len(closes) <= period {
		return out
	}

	var gain, loss float64
	for i := 1; i < len(closes); i++ {
		var up, down float64
		if d := closes[i] - closes[i-1]; d > 0 {
			up = d
		} else {
			down = -d
		}
		switch {
		case i < period:
			gain += up
			loss += down
		case i == period:
			// First average is the plain mean of the seed window.
			gain = (gain + up) / float64(period)
			loss = (loss + down) / float64(period)
			out[i] = rsiValue(gain, loss)
		default:
			gain = (gain*float64(period-1) + up) / float64(period)
			loss = (loss*float64(period-1) + down) / float64(period)
			out[i] = rsiValue(gain, loss)
		}
	}
	return out
}

// Latest returns the last non-NaN value of a series, or ok=false when the
// series carries no usable value yet.
func Latest(series []float64) (float64, bool) {
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) {
			return series[i], true
		}
	}
	return 0, false
}

func nans(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}

// firstWindow returns the index closing the first run of period consecutive
// non-NaN values, or -1 when no such run exists.
func firstWindow(closes []float64, period int) int {
	run := 0
	for i, c := range closes {
		if math.IsNaN(c) {
			run = 0
			continue
		}
		if run++; run == period {
			return i
		}
	}
	return -1
}

func mean(window []float64) float64 {
	var sum float64
	for _, v := range window {
		sum += v
	}
	return sum / float64(len(window))
}

// subtract computes a-b elementwise; NaN in either operand propagates.
func subtract(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] - b[i]
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	switch {
	case avgGain == 0 && avgLoss == 0:
		return 50
	case avgLoss == 0:
		return 100
	case avgGain == 0:
		return 0
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

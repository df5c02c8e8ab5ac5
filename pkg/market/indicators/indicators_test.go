package indicators

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// trendCloses is a 60-bar drifting series, long enough to warm up every
// indicator in the set.
var trendCloses = []float64{
	100, 101, 102, 103, 105, 107, 106, 108, 110, 111,
	112, 115, 117, 119, 118, 120, 121, 123, 125, 124,
	126, 127, 129, 130, 132, 133, 134, 135, 136, 138,
	139, 141, 140, 142, 144, 143, 145, 147, 149, 148,
	150, 151, 149, 148, 150, 152, 151, 153, 154, 156,
	155, 157, 158, 160, 161, 159, 158, 157, 159, 160,
}

func TestSMAWindow(t *testing.T) {
	got := SMA([]float64{1, 2, 3, 4, 5, 6}, 3)
	require.Len(t, got, 6)
	assert.True(t, math.IsNaN(got[0]))
	assert.True(t, math.IsNaN(got[1]))
	for i, want := range []float64{2, 3, 4, 5} {
		assert.InDelta(t, want, got[i+2], 1e-9)
	}
}

func TestSMADegenerateInputs(t *testing.T) {
	assert.Empty(t, SMA(nil, 3))
	assert.Empty(t, SMA([]float64{1, 2, 3}, 0))

	short := SMA([]float64{1, 2}, 20)
	require.Len(t, short, 2)
	assert.True(t, math.IsNaN(short[0]))
	assert.True(t, math.IsNaN(short[1]))
}

func TestEMASeedIsWindowMean(t *testing.T) {
	// On a linear ramp the seeded EMA reproduces the SMA exactly.
	got := EMA([]float64{1, 2, 3, 4, 5, 6}, 3)
	require.Len(t, got, 6)
	assert.True(t, math.IsNaN(got[0]))
	assert.True(t, math.IsNaN(got[1]))
	for i, want := range []float64{2, 3, 4, 5} {
		assert.InDelta(t, want, got[i+2], 1e-9)
	}
}

func TestEMASeedsPastNaNHead(t *testing.T) {
	closes := []float64{math.NaN(), math.NaN(), 1, 2, 3, 4}
	got := EMA(closes, 2)
	require.Len(t, got, len(closes))
	for i := 0; i < 3; i++ {
		assert.True(t, math.IsNaN(got[i]), "index %d should still be warming up", i)
	}
	assert.InDelta(t, 1.5, got[3], 1e-9)
	assert.InDelta(t, 2.5, got[4], 1e-9)
	assert.InDelta(t, 3.5, got[5], 1e-9)
}

func TestEMACarriesThroughInteriorNaN(t *testing.T) {
	closes := []float64{1, 2, 3, math.NaN(), 5}
	got := EMA(closes, 2)
	assert.InDelta(t, 2.5, got[2], 1e-9)
	assert.InDelta(t, 2.5, got[3], 1e-9, "NaN close carries the previous average")
	assert.InDelta(t, 2.5+5.0/3.0, got[4], 1e-9)
}

func TestMACDAgainstFixture(t *testing.T) {
	line, signal, hist := MACD(trendCloses)
	require.Len(t, line, len(trendCloses))
	require.Len(t, signal, len(trendCloses))
	require.Len(t, hist, len(trendCloses))

	last := len(trendCloses) - 1
	assert.InDelta(t, 5.582947, line[last], 1e-6)
	assert.InDelta(t, 6.307087, signal[last], 1e-6)
	assert.InDelta(t, -0.724141, hist[last], 1e-6)
}

func TestMACDWarmupIsNaN(t *testing.T) {
	line, signal, hist := MACD(trendCloses[:10])
	for i := range line {
		assert.True(t, math.IsNaN(line[i]), "line[%d]", i)
		assert.True(t, math.IsNaN(signal[i]), "signal[%d]", i)
		assert.True(t, math.IsNaN(hist[i]), "hist[%d]", i)
	}
}

func TestRSIAgainstFixture(t *testing.T) {
	rsi := RSI(trendCloses, 14)
	require.Len(t, rsi, len(trendCloses))
	for i := 0; i < 14; i++ {
		assert.True(t, math.IsNaN(rsi[i]), "rsi[%d] should precede the warmup", i)
	}
	assert.InDelta(t, 73.084185, rsi[len(rsi)-1], 1e-6)
}

func TestRSIExtremes(t *testing.T) {
	flat := RSI([]float64{100, 100, 100, 100, 100}, 3)
	assert.InDelta(t, 50, flat[len(flat)-1], 1e-9, "flat series has no directional strength")

	rising := RSI([]float64{1, 2, 3, 4, 5, 6}, 3)
	assert.InDelta(t, 100, rising[len(rising)-1], 1e-9)

	falling := RSI([]float64{6, 5, 4, 3, 2, 1}, 3)
	assert.InDelta(t, 0, falling[len(falling)-1], 1e-9)
}

func TestRSIWarmup(t *testing.T) {
	rsi := RSI([]float64{100, 101, 102}, 14)
	require.Len(t, rsi, 3)
	for i, v := range rsi {
		assert.True(t, math.IsNaN(v), "rsi[%d] needs period+1 closes", i)
	}
}

func TestLatest(t *testing.T) {
	v, ok := Latest([]float64{math.NaN(), 1.5, math.NaN()})
	require.True(t, ok)
	assert.InDelta(t, 1.5, v, 1e-9)

	_, ok = Latest([]float64{math.NaN(), math.NaN()})
	assert.False(t, ok)

	_, ok = Latest(nil)
	assert.False(t, ok)
}

func TestFirstWindow(t *testing.T) {
	nan := math.NaN()
	cases := []struct {
		name   string
		series []float64
		period int
		want   int
	}{
		{"clean head", []float64{1, 2, 3}, 2, 1},
		{"nan head", []float64{nan, nan, 1, 2}, 2, 3},
		{"run broken by nan", []float64{1, nan, 2, 3, 4}, 3, 4},
		{"never enough", []float64{1, nan, 2, nan}, 2, -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, firstWindow(tc.series, tc.period))
		})
	}
}

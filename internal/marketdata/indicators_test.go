package marketdata

import (
	"testing"

	"btcfutures-agent/internal/exchange"
)

func makeKlines(closes []float64) []exchange.Kline {
	out := make([]exchange.Kline, len(closes))
	for i, c := range closes {
		out[i] = exchange.Kline{
			OpenTime: int64(i),
			Open:     c,
			High:     c + 1,
			Low:      c - 1,
			Close:    c,
			Volume:   100,
		}
	}
	return out
}

func TestSMA(t *testing.T) {
	klines := makeKlines([]float64{10, 20, 30, 40, 50})

	sma := SMA(klines, 3)
	want := (30.0 + 40.0 + 50.0) / 3

	if sma != want {
		t.Errorf("expected SMA %f, got %f", want, sma)
	}
}

func TestSMAInsufficientData(t *testing.T) {
	klines := makeKlines([]float64{10, 20})

	if sma := SMA(klines, 5); sma != 0 {
		t.Errorf("expected 0 for insufficient data, got %f", sma)
	}
}

func TestRSIAllGains(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = float64(i + 1)
	}
	klines := makeKlines(closes)

	rsi := RSI(klines, 14)
	if rsi != 100.0 {
		t.Errorf("expected RSI 100 for all-gain series, got %f", rsi)
	}
}

func TestRSINeutralOnShortWindow(t *testing.T) {
	klines := makeKlines([]float64{10, 20})

	if rsi := RSI(klines, 14); rsi != 50.0 {
		t.Errorf("expected neutral RSI 50 on short window, got %f", rsi)
	}
}

func TestDetectTrendSideways(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100
	}
	klines := makeKlines(closes)

	if trend := DetectTrend(klines, 12, 26); trend != TrendSideways {
		t.Errorf("expected SIDEWAYS for flat series, got %s", trend)
	}
}

func TestDetectTrendUp(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = float64(i) * 10
	}
	klines := makeKlines(closes)

	if trend := DetectTrend(klines, 12, 26); trend != TrendUp {
		t.Errorf("expected UPTREND for rising series, got %s", trend)
	}
}

func TestVWAPWeightsByVolume(t *testing.T) {
	klines := []exchange.Kline{
		{High: 110, Low: 90, Close: 100, Volume: 1},
		{High: 210, Low: 190, Close: 200, Volume: 9},
	}

	vwap := VWAP(klines, 2)
	// typical prices are 100 and 200; weighted heavily toward 200
	if vwap < 180 || vwap > 200 {
		t.Errorf("expected VWAP close to the high-volume bar, got %f", vwap)
	}
}

func TestIsVolumeSpike(t *testing.T) {
	klines := makeKlines([]float64{10, 10, 10, 10, 10, 10})
	klines[len(klines)-1].Volume = 1000

	if !IsVolumeSpike(klines, 5, 1.5) {
		t.Error("expected volume spike to be detected")
	}
}

func TestBuildIndicatorTableDoesNotPanicOnShortWindow(t *testing.T) {
	klines := makeKlines([]float64{10, 20, 30})

	table := BuildIndicatorTable(klines)
	if table == nil {
		t.Fatal("expected a non-nil table even for a short window")
	}
	if table.LastClose != 30 {
		t.Errorf("expected last close 30, got %f", table.LastClose)
	}
}

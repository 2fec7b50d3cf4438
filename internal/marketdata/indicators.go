package marketdata

import (
	"math"

	"btcfutures-agent/internal/exchange"
)

// ============================================================================
// MOVING AVERAGES
// ============================================================================

// SMA calculates the Simple Moving Average over the last period bars.
func SMA(klines []exchange.Kline, period int) float64 {
	if len(klines) < period {
		return 0
	}

	sum := 0.0
	startIdx := len(klines) - period

	for i := startIdx; i < len(klines); i++ {
		sum += klines[i].Close
	}

	return sum / float64(period)
}

// EMA calculates the Exponential Moving Average, seeded with the SMA of the
// first period bars and smoothed over every later bar.
func EMA(klines []exchange.Kline, period int) float64 {
	if len(klines) < period {
		return 0
	}

	sma := SMA(klines[:period], period)
	multiplier := 2.0 / float64(period+1)

	ema := sma
	for i := period; i < len(klines); i++ {
		ema = (klines[i].Close * multiplier) + (ema * (1 - multiplier))
	}

	return ema
}

// ============================================================================
// RSI
// ============================================================================

// RSI calculates the Relative Strength Index.
func RSI(klines []exchange.Kline, period int) float64 {
	if len(klines) < period+1 {
		return 50.0
	}

	gains := 0.0
	losses := 0.0

	for i := len(klines) - period; i < len(klines); i++ {
		change := klines[i].Close - klines[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses += -change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	if avgLoss == 0 {
		return 100.0
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// ============================================================================
// MACD
// ============================================================================

// MACDResult holds MACD line, signal line, and histogram values.
type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

// MACD calculates the MACD line, its signal line, and the histogram.
// The signal line is an EMA of the MACD line itself, built by walking the
// fast/slow EMA crossover bar by bar rather than a single point estimate.
func MACD(klines []exchange.Kline, fastPeriod, slowPeriod, signalPeriod int) *MACDResult {
	if len(klines) < slowPeriod+signalPeriod {
		return &MACDResult{}
	}

	macdSeries := make([]float64, 0, len(klines)-slowPeriod+1)
	for end := slowPeriod; end <= len(klines); end++ {
		window := klines[:end]
		macdSeries = append(macdSeries, EMA(window, fastPeriod)-EMA(window, slowPeriod))
	}

	signalMultiplier := 2.0 / float64(signalPeriod+1)
	signal := macdSeries[0]
	for _, v := range macdSeries[1:] {
		signal = (v * signalMultiplier) + (signal * (1 - signalMultiplier))
	}

	macdLine := macdSeries[len(macdSeries)-1]
	return &MACDResult{
		MACD:      macdLine,
		Signal:    signal,
		Histogram: macdLine - signal,
	}
}

// ============================================================================
// BOLLINGER BANDS
// ============================================================================

// BollingerBandsResult holds the upper, middle, and lower band values.
type BollingerBandsResult struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// BollingerBands calculates Bollinger Bands for the given period.
func BollingerBands(klines []exchange.Kline, period int, stdDevMultiplier float64) *BollingerBandsResult {
	if len(klines) < period {
		return &BollingerBandsResult{}
	}

	middle := SMA(klines, period)

	variance := 0.0
	startIdx := len(klines) - period
	for i := startIdx; i < len(klines); i++ {
		diff := klines[i].Close - middle
		variance += diff * diff
	}

	stdDev := math.Sqrt(variance / float64(period))

	return &BollingerBandsResult{
		Upper:  middle + (stdDev * stdDevMultiplier),
		Middle: middle,
		Lower:  middle - (stdDev * stdDevMultiplier),
	}
}

// ============================================================================
// ATR
// ============================================================================

// ATR calculates the Average True Range.
func ATR(klines []exchange.Kline, period int) float64 {
	if len(klines) < period+1 {
		return 0
	}

	trSum := 0.0
	startIdx := len(klines) - period

	for i := startIdx; i < len(klines); i++ {
		high := klines[i].High
		low := klines[i].Low
		prevClose := klines[i-1].Close

		tr := math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
		trSum += tr
	}

	return trSum / float64(period)
}

// ============================================================================
// STOCHASTIC OSCILLATOR
// ============================================================================

// StochasticResult holds %K and %D values.
type StochasticResult struct {
	K float64
	D float64
}

// Stochastic calculates the Stochastic Oscillator. %D is the SMA of the
// trailing dPeriod %K values, not a fixed fraction of the current %K.
func Stochastic(klines []exchange.Kline, kPeriod, dPeriod int) *StochasticResult {
	if len(klines) < kPeriod+dPeriod-1 {
		return &StochasticResult{K: 50, D: 50}
	}

	percentK := func(window []exchange.Kline) float64 {
		highestHigh := window[0].High
		lowestLow := window[0].Low
		for _, k := range window {
			if k.High > highestHigh {
				highestHigh = k.High
			}
			if k.Low < lowestLow {
				lowestLow = k.Low
			}
		}
		if highestHigh == lowestLow {
			return 0
		}
		current := window[len(window)-1].Close
		return ((current - lowestLow) / (highestHigh - lowestLow)) * 100
	}

	kValues := make([]float64, 0, dPeriod)
	for i := 0; i < dPeriod; i++ {
		end := len(klines) - i
		kValues = append(kValues, percentK(klines[end-kPeriod:end]))
	}

	dSum := 0.0
	for _, v := range kValues {
		dSum += v
	}

	return &StochasticResult{K: kValues[0], D: dSum / float64(len(kValues))}
}

// ============================================================================
// ADX
// ============================================================================

// ADX returns the directional movement index (DX) computed from +DM, -DM
// and true range summed over the last period bars. It is a single DX
// value; no Wilder smoothing or averaging of DX across bars is applied.
func ADX(klines []exchange.Kline, period int) float64 {
	if len(klines) < period+1 {
		return 0
	}

	startIdx := len(klines) - period
	plusDMSum, minusDMSum, trSum := 0.0, 0.0, 0.0

	for i := startIdx; i < len(klines); i++ {
		upMove := klines[i].High - klines[i-1].High
		downMove := klines[i-1].Low - klines[i].Low

		plusDM := 0.0
		if upMove > downMove && upMove > 0 {
			plusDM = upMove
		}
		minusDM := 0.0
		if downMove > upMove && downMove > 0 {
			minusDM = downMove
		}

		tr := math.Max(klines[i].High-klines[i].Low, math.Max(
			math.Abs(klines[i].High-klines[i-1].Close),
			math.Abs(klines[i].Low-klines[i-1].Close),
		))

		plusDMSum += plusDM
		minusDMSum += minusDM
		trSum += tr
	}

	if trSum == 0 {
		return 0
	}

	plusDI := (plusDMSum / trSum) * 100
	minusDI := (minusDMSum / trSum) * 100

	if plusDI+minusDI == 0 {
		return 0
	}

	dx := math.Abs(plusDI-minusDI) / (plusDI + minusDI) * 100
	return dx
}

// ============================================================================
// VOLUME ANALYSIS
// ============================================================================

// AverageVolume calculates average volume over a period.
func AverageVolume(klines []exchange.Kline, period int) float64 {
	if len(klines) < period {
		period = len(klines)
	}
	if period == 0 {
		return 0
	}

	sum := 0.0
	startIdx := len(klines) - period
	for i := startIdx; i < len(klines); i++ {
		sum += klines[i].Volume
	}

	return sum / float64(period)
}

// IsVolumeSpike reports whether the most recent bar's volume is
// significantly above the average of the preceding period bars.
func IsVolumeSpike(klines []exchange.Kline, period int, multiplier float64) bool {
	if len(klines) < period+1 {
		return false
	}

	avgVolume := AverageVolume(klines[:len(klines)-1], period)
	currentVolume := klines[len(klines)-1].Volume

	return currentVolume >= avgVolume*multiplier
}

// VWAP calculates the Volume Weighted Average Price over the given window.
func VWAP(klines []exchange.Kline, period int) float64 {
	if len(klines) < period {
		period = len(klines)
	}
	if period == 0 {
		return 0
	}

	startIdx := len(klines) - period
	var pvSum, volSum float64
	for i := startIdx; i < len(klines); i++ {
		typicalPrice := (klines[i].High + klines[i].Low + klines[i].Close) / 3
		pvSum += typicalPrice * klines[i].Volume
		volSum += klines[i].Volume
	}
	if volSum == 0 {
		return 0
	}
	return pvSum / volSum
}

// ============================================================================
// MOMENTUM
// ============================================================================

// Momentum calculates the percentage price change over period bars.
func Momentum(klines []exchange.Kline, period int) float64 {
	if len(klines) < period+1 {
		return 0
	}

	currentPrice := klines[len(klines)-1].Close
	pastPrice := klines[len(klines)-period-1].Close
	if pastPrice == 0 {
		return 0
	}

	return ((currentPrice - pastPrice) / pastPrice) * 100
}

// ROC is an alias for Momentum under its more common indicator name.
func ROC(klines []exchange.Kline, period int) float64 {
	return Momentum(klines, period)
}

// ============================================================================
// FIBONACCI RETRACEMENT
// ============================================================================

// FibonacciLevels holds Fibonacci retracement levels over a swing.
type FibonacciLevels struct {
	Level0   float64
	Level236 float64
	Level382 float64
	Level50  float64
	Level618 float64
	Level100 float64
}

// CalculateFibonacciLevels computes retracement levels over the last period bars.
func CalculateFibonacciLevels(klines []exchange.Kline, period int) *FibonacciLevels {
	if len(klines) < period {
		return &FibonacciLevels{}
	}

	startIdx := len(klines) - period
	high := klines[startIdx].High
	low := klines[startIdx].Low

	for i := startIdx; i < len(klines); i++ {
		if klines[i].High > high {
			high = klines[i].High
		}
		if klines[i].Low < low {
			low = klines[i].Low
		}
	}

	diff := high - low

	return &FibonacciLevels{
		Level0:   high,
		Level236: high - (diff * 0.236),
		Level382: high - (diff * 0.382),
		Level50:  high - (diff * 0.50),
		Level618: high - (diff * 0.618),
		Level100: low,
	}
}

// ============================================================================
// TREND
// ============================================================================

// TrendDirection represents a coarse trend classification.
type TrendDirection string

const (
	TrendUp       TrendDirection = "UPTREND"
	TrendDown     TrendDirection = "DOWNTREND"
	TrendSideways TrendDirection = "SIDEWAYS"
)

// DetectTrend classifies the trend by comparing a fast and slow EMA.
func DetectTrend(klines []exchange.Kline, fastPeriod, slowPeriod int) TrendDirection {
	if len(klines) < slowPeriod {
		return TrendSideways
	}

	fastEMA := EMA(klines, fastPeriod)
	slowEMA := EMA(klines, slowPeriod)
	if slowEMA == 0 {
		return TrendSideways
	}

	difference := math.Abs(fastEMA-slowEMA) / slowEMA * 100
	if difference < 0.5 {
		return TrendSideways
	}
	if fastEMA > slowEMA {
		return TrendUp
	}
	return TrendDown
}

// ============================================================================
// PIVOT POINTS
// ============================================================================

// PivotPoints holds standard pivot and support/resistance levels.
type PivotPoints struct {
	PP float64
	R1 float64
	R2 float64
	R3 float64
	S1 float64
	S2 float64
	S3 float64
}

// CalculateStandardPivotPoints computes pivot levels off the most recent bar.
func CalculateStandardPivotPoints(klines []exchange.Kline) *PivotPoints {
	if len(klines) == 0 {
		return &PivotPoints{}
	}

	last := klines[len(klines)-1]
	pp := (last.High + last.Low + last.Close) / 3

	return &PivotPoints{
		PP: pp,
		R1: (2 * pp) - last.Low,
		S1: (2 * pp) - last.High,
		R2: pp + (last.High - last.Low),
		S2: pp - (last.High - last.Low),
		R3: last.High + 2*(pp-last.Low),
		S3: last.Low - 2*(last.High-pp),
	}
}

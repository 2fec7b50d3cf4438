package marketdata

import "btcfutures-agent/internal/exchange"

// IndicatorTable is the dense indicator readout the advisor gateway
// compresses into its prompt: RSI(14), MACD, VWAP, Bollinger, Ichimoku,
// ADX, SMA(20/50/200), and per-bar volume metrics, enriched with the
// swing/support-resistance structure that the advisor prompt reads.
type IndicatorTable struct {
	LastClose   float64
	LastVolume  float64
	RSI14       float64
	MACD        *MACDResult
	VWAP20      float64
	Bollinger20 *BollingerBandsResult
	Ichimoku    *Ichimoku
	ADX14       float64
	SMA20       float64
	SMA50       float64
	SMA200      float64
	AvgVolume20 float64
	VolumeSpike bool
	Structure   *MarketStructure
}

// BuildIndicatorTable computes the full indicator set for a window. Moving
// averages and structure that need more bars than are present degrade to
// their zero value rather than erroring, so the whole pull does not fail;
// the advisor prompt prints such values as plain zeros and omits the
// structure line when Structure is nil.
func BuildIndicatorTable(klines []exchange.Kline) *IndicatorTable {
	last := klines[len(klines)-1]

	return &IndicatorTable{
		LastClose:   last.Close,
		LastVolume:  last.Volume,
		RSI14:       RSI(klines, 14),
		MACD:        MACD(klines, 12, 26, 9),
		VWAP20:      VWAP(klines, 20),
		Bollinger20: BollingerBands(klines, 20, 2.0),
		Ichimoku:    CalculateIchimoku(klines),
		ADX14:       ADX(klines, 14),
		SMA20:       SMA(klines, 20),
		SMA50:       SMA(klines, 50),
		SMA200:      SMA(klines, 200),
		AvgVolume20: AverageVolume(klines, 20),
		VolumeSpike: IsVolumeSpike(klines, 20, 1.5),
		Structure:   newStructureAnalyzer(5).AnalyzeStructure(klines),
	}
}

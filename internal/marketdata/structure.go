package marketdata

import (
	"math"

	"btcfutures-agent/internal/exchange"
)

// SwingPoint is a confirmed local high or low in the price series.
type SwingPoint struct {
	Price       float64
	CandleIndex int
	Kind        string // "high" or "low"
}

// MarketStructure is the swing/support-resistance enrichment layered onto
// the indicator table — it gives the advisor prompt support/resistance
// context beyond raw numbers.
type MarketStructure struct {
	Trend            TrendDirection
	TrendStrength    float64 // 0..1
	HigherHighs      int
	HigherLows       int
	LowerHighs       int
	LowerLows        int
	SwingHighs       []SwingPoint
	SwingLows        []SwingPoint
	SupportLevels    []float64
	ResistanceLevels []float64
}

// structureAnalyzer finds swing points over a fixed lookback window.
type structureAnalyzer struct {
	swingLookback int
}

func newStructureAnalyzer(swingLookback int) *structureAnalyzer {
	if swingLookback <= 0 {
		swingLookback = 5
	}
	return &structureAnalyzer{swingLookback: swingLookback}
}

// AnalyzeStructure derives swing points, trend direction/strength, and
// clustered support/resistance from a bar series. Returns nil if the
// series is too short to establish any confirmed swing.
func (a *structureAnalyzer) AnalyzeStructure(candles []exchange.Kline) *MarketStructure {
	if len(candles) < a.swingLookback*2+1 {
		return nil
	}

	s := &MarketStructure{
		SwingHighs: a.findSwingHighs(candles),
		SwingLows:  a.findSwingLows(candles),
	}

	s.HigherHighs = countDirectional(s.SwingHighs, func(a, b float64) bool { return a > b })
	s.HigherLows = countDirectional(s.SwingLows, func(a, b float64) bool { return a > b })
	s.LowerHighs = countDirectional(s.SwingHighs, func(a, b float64) bool { return a < b })
	s.LowerLows = countDirectional(s.SwingLows, func(a, b float64) bool { return a < b })

	s.Trend = a.determineTrend(s)
	s.TrendStrength = a.trendStrength(s)
	s.SupportLevels = clusterLevels(s.SwingLows)
	s.ResistanceLevels = clusterLevels(s.SwingHighs)

	return s
}

func (a *structureAnalyzer) findSwingHighs(candles []exchange.Kline) []SwingPoint {
	var out []SwingPoint
	for i := a.swingLookback; i < len(candles)-a.swingLookback; i++ {
		high := candles[i].High
		isSwing := true
		for j := i - a.swingLookback; j <= i+a.swingLookback; j++ {
			if j != i && candles[j].High >= high {
				isSwing = false
				break
			}
		}
		if isSwing {
			out = append(out, SwingPoint{Price: high, CandleIndex: i, Kind: "high"})
		}
	}
	return out
}

func (a *structureAnalyzer) findSwingLows(candles []exchange.Kline) []SwingPoint {
	var out []SwingPoint
	for i := a.swingLookback; i < len(candles)-a.swingLookback; i++ {
		low := candles[i].Low
		isSwing := true
		for j := i - a.swingLookback; j <= i+a.swingLookback; j++ {
			if j != i && candles[j].Low <= low {
				isSwing = false
				break
			}
		}
		if isSwing {
			out = append(out, SwingPoint{Price: low, CandleIndex: i, Kind: "low"})
		}
	}
	return out
}

func countDirectional(points []SwingPoint, cmp func(a, b float64) bool) int {
	if len(points) < 2 {
		return 0
	}
	count := 0
	for i := 1; i < len(points); i++ {
		if cmp(points[i].Price, points[i-1].Price) {
			count++
		}
	}
	return count
}

func (a *structureAnalyzer) determineTrend(s *MarketStructure) TrendDirection {
	if s.HigherHighs > 0 && s.HigherLows > 0 && s.HigherHighs >= s.LowerHighs && s.HigherLows >= s.LowerLows {
		return TrendUp
	}
	if s.LowerHighs > 0 && s.LowerLows > 0 && s.LowerHighs >= s.HigherHighs && s.LowerLows >= s.HigherLows {
		return TrendDown
	}
	return TrendSideways
}

func (a *structureAnalyzer) trendStrength(s *MarketStructure) float64 {
	total := s.HigherHighs + s.HigherLows + s.LowerHighs + s.LowerLows
	if total == 0 {
		return 0
	}
	switch s.Trend {
	case TrendUp:
		return float64(s.HigherHighs+s.HigherLows) / float64(total)
	case TrendDown:
		return float64(s.LowerHighs+s.LowerLows) / float64(total)
	default:
		return 0.3
	}
}

// clusterLevels merges swing points within 1% of each other into a single
// averaged level.
func clusterLevels(points []SwingPoint) []float64 {
	if len(points) < 2 {
		return nil
	}
	const tolerance = 0.01
	var levels []float64
	for _, p := range points {
		merged := false
		for i, lvl := range levels {
			if lvl != 0 && math.Abs(p.Price-lvl)/lvl < tolerance {
				levels[i] = (lvl + p.Price) / 2
				merged = true
				break
			}
		}
		if !merged {
			levels = append(levels, p.Price)
		}
	}
	return levels
}

package marketdata

import "btcfutures-agent/internal/exchange"

// Ichimoku holds the Ichimoku Kinko Hyo component lines. SenkouSpanA/B are
// the cloud boundaries projected displacement bars into the future; since
// this adapter only reports the current reading (not a plotted series),
// they describe the cloud as it stands right now rather than its forward
// projection.
type Ichimoku struct {
	TenkanSen   float64 // conversion line: (9-period high+low)/2
	KijunSen    float64 // base line: (26-period high+low)/2
	SenkouSpanA float64 // leading span A: (tenkan+kijun)/2
	SenkouSpanB float64 // leading span B: (52-period high+low)/2
	ChikouSpan  float64 // lagging span: current close
}

func highLowMidpoint(klines []exchange.Kline, period int) float64 {
	if len(klines) < period {
		period = len(klines)
	}
	if period == 0 {
		return 0
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
	return (high + low) / 2
}

// CalculateIchimoku computes the standard 9/26/52 Ichimoku lines.
func CalculateIchimoku(klines []exchange.Kline) *Ichimoku {
	if len(klines) == 0 {
		return &Ichimoku{}
	}

	tenkan := highLowMidpoint(klines, 9)
	kijun := highLowMidpoint(klines, 26)
	spanB := highLowMidpoint(klines, 52)

	return &Ichimoku{
		TenkanSen:   tenkan,
		KijunSen:    kijun,
		SenkouSpanA: (tenkan + kijun) / 2,
		SenkouSpanB: spanB,
		ChikouSpan:  klines[len(klines)-1].Close,
	}
}

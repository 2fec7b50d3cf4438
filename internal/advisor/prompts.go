package advisor

import (
	"fmt"
	"strings"
	"time"

	"btcfutures-agent/internal/domain"
	"btcfutures-agent/internal/exchange"
	"btcfutures-agent/internal/marketdata"
)

// systemPrompt is the fixed schema contract every completion call
// carries: the reply must be a single JSON object matching the Analysis
// shape, nothing else.
const systemPrompt = `You are an expert cryptocurrency derivatives trading analyst advising an autonomous BTC/USDT futures agent.

Your response must be a single valid JSON object, with no surrounding prose or markdown fences, matching exactly this shape:
{
  "market_phase": "up" | "down" | "accumulate" | "distribute",
  "overall_sentiment": "positive" | "negative" | "neutral",
  "risk_level": "high" | "medium" | "low",
  "confidence": number (0-100),
  "trend_strength": number (0-100),
  "trading_signals": {
    "position_suggestion": "BUY" | "SELL" | "HOLD",
    "entry_price": number,
    "stop_loss": number,
    "take_profit1": number,
    "take_profit2": number,
    "take_profit3": number,
    "leverage": integer (1-10),
    "position_size_pct": number (0-100, percent of account equity, never an absolute quantity),
    "auto_trading_enabled": boolean
  }
}

Invariants you must satisfy: if position_suggestion is SELL, stop_loss > entry_price > take_profit1 > take_profit2 > take_profit3. If BUY, the reverse (stop_loss < entry_price < take_profit1 < take_profit2 < take_profit3). If HOLD, entry_price/stop_loss/take_profit fields may be 0.
Be conservative: only set confidence above 70 when multiple indicators agree, and never set auto_trading_enabled true on a HOLD.`

// BuildTimeframePrompt assembles the per-timeframe user prompt: the
// instrument, the timeframe, and the indicator table compressed to the
// last few bars.
func BuildTimeframePrompt(symbol string, tf marketdata.Timeframe, snap *marketdata.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Instrument: %s\nTimeframe: %s\n\n", symbol, tf)
	writeIndicatorTable(&b, snap.Table)
	writeRecentBars(&b, snap.Window, 8)
	return b.String()
}

// writeRecentBars appends up to the last n bars of a window as a compact
// OHLCV table so the model can see short-term shape beyond the indicator
// summary.
func writeRecentBars(b *strings.Builder, window []exchange.Kline, n int) {
	if len(window) == 0 {
		return
	}
	start := 0
	if len(window) > n {
		start = len(window) - n
	}
	b.WriteString("Recent bars (time, open, high, low, close, volume):\n")
	for _, k := range window[start:] {
		ts := time.UnixMilli(k.OpenTime).UTC().Format("01-02 15:04")
		fmt.Fprintf(b, "%s  %.2f %.2f %.2f %.2f %.2f\n", ts, k.Open, k.High, k.Low, k.Close, k.Volume)
	}
	b.WriteString("\n")
}

// BuildFinalPrompt assembles the "final" pass prompt from the four
// latest per-timeframe analyses, in 15m/1h/4h/1d order.
func BuildFinalPrompt(symbol string, snapshots []*domain.Analysis) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Instrument: %s\nTimeframe: final (combined view across 15m/1h/4h/1d)\n\n", symbol)

	labels := []string{"15m", "1h", "4h", "1d"}
	for i, a := range snapshots {
		if a == nil {
			continue
		}
		fmt.Fprintf(&b, "--- %s analysis ---\n", labels[i])
		fmt.Fprintf(&b, "market_phase=%s sentiment=%s risk=%s confidence=%.0f trend_strength=%.0f\n",
			a.MarketPhase, a.OverallSentiment, a.RiskLevel, a.Confidence, a.TrendStrength)
		fmt.Fprintf(&b, "signal: %s entry=%.2f sl=%.2f tp1=%.2f leverage=%d size_pct=%.0f auto=%v\n\n",
			a.TradingSignals.PositionSuggestion, a.TradingSignals.EntryPrice, a.TradingSignals.StopLoss,
			a.TradingSignals.TakeProfit1, a.TradingSignals.Leverage, a.TradingSignals.PositionSizePct,
			a.TradingSignals.AutoTradingEnabled)
	}

	b.WriteString("Synthesize these four views into one combined Analysis for the next actionable decision.\n")
	return b.String()
}

func writeIndicatorTable(b *strings.Builder, t *marketdata.IndicatorTable) {
	if t == nil {
		b.WriteString("Indicator table unavailable.\n\n")
		return
	}
	fmt.Fprintf(b, "Last close: %.2f  Last volume: %.2f\n", t.LastClose, t.LastVolume)
	fmt.Fprintf(b, "RSI(14): %.2f\n", t.RSI14)
	if t.MACD != nil {
		fmt.Fprintf(b, "MACD: macd=%.4f signal=%.4f histogram=%.4f\n", t.MACD.MACD, t.MACD.Signal, t.MACD.Histogram)
	}
	fmt.Fprintf(b, "VWAP(20): %.2f\n", t.VWAP20)
	if t.Bollinger20 != nil {
		fmt.Fprintf(b, "Bollinger(20,2): upper=%.2f mid=%.2f lower=%.2f\n", t.Bollinger20.Upper, t.Bollinger20.Middle, t.Bollinger20.Lower)
	}
	if t.Ichimoku != nil {
		fmt.Fprintf(b, "Ichimoku: tenkan=%.2f kijun=%.2f spanA=%.2f spanB=%.2f chikou=%.2f\n",
			t.Ichimoku.TenkanSen, t.Ichimoku.KijunSen, t.Ichimoku.SenkouSpanA, t.Ichimoku.SenkouSpanB, t.Ichimoku.ChikouSpan)
	}
	fmt.Fprintf(b, "ADX(14): %.2f\n", t.ADX14)
	fmt.Fprintf(b, "SMA: 20=%.2f 50=%.2f 200=%.2f\n", t.SMA20, t.SMA50, t.SMA200)
	fmt.Fprintf(b, "Volume: avg20=%.2f spike=%v\n", t.AvgVolume20, t.VolumeSpike)
	if t.Structure != nil {
		fmt.Fprintf(b, "Structure: trend=%s strength=%.2f support=%v resistance=%v\n",
			t.Structure.Trend, t.Structure.TrendStrength, t.Structure.SupportLevels, t.Structure.ResistanceLevels)
	}
	b.WriteString("\n")
}

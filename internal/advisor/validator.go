package advisor

import (
	"fmt"
	"strings"

	"btcfutures-agent/internal/domain"
)

// rawAnalysis mirrors the JSON schema handed to the model (systemPrompt)
// field for field, so a value of the wrong type fails at unmarshal.
// Unmarshal zero-fills absent keys, so parseAndValidate checks that the
// required keys are present before decoding into this struct.
type rawAnalysis struct {
	MarketPhase      string  `json:"market_phase"`
	OverallSentiment string  `json:"overall_sentiment"`
	RiskLevel        string  `json:"risk_level"`
	Confidence       float64 `json:"confidence"`
	TrendStrength    float64 `json:"trend_strength"`
	TradingSignals   struct {
		PositionSuggestion string  `json:"position_suggestion"`
		EntryPrice         float64 `json:"entry_price"`
		StopLoss           float64 `json:"stop_loss"`
		TakeProfit1        float64 `json:"take_profit1"`
		TakeProfit2        float64 `json:"take_profit2"`
		TakeProfit3        float64 `json:"take_profit3"`
		Leverage           int     `json:"leverage"`
		PositionSizePct    float64 `json:"position_size_pct"`
		AutoTradingEnabled bool    `json:"auto_trading_enabled"`
	} `json:"trading_signals"`
}

// validate checks enum membership, numeric ranges, and the SL/TP/entry
// cross-field ordering invariant. It returns a single error describing
// every violation found, joined, so a re-prompt can carry all of them
// at once instead of looping one at a time.
func validate(r *rawAnalysis) error {
	var problems []string

	switch domain.MarketPhase(r.MarketPhase) {
	case domain.PhaseUp, domain.PhaseDown, domain.PhaseAccumulate, domain.PhaseDistribute:
	default:
		problems = append(problems, fmt.Sprintf("market_phase %q is not one of up/down/accumulate/distribute", r.MarketPhase))
	}

	switch domain.Sentiment(r.OverallSentiment) {
	case domain.SentimentPositive, domain.SentimentNegative, domain.SentimentNeutral:
	default:
		problems = append(problems, fmt.Sprintf("overall_sentiment %q is not one of positive/negative/neutral", r.OverallSentiment))
	}

	switch domain.RiskLevel(r.RiskLevel) {
	case domain.RiskHigh, domain.RiskMedium, domain.RiskLow:
	default:
		problems = append(problems, fmt.Sprintf("risk_level %q is not one of high/medium/low", r.RiskLevel))
	}

	suggestion := domain.PositionSuggestion(r.TradingSignals.PositionSuggestion)
	switch suggestion {
	case domain.SuggestBuy, domain.SuggestSell, domain.SuggestHold:
	default:
		problems = append(problems, fmt.Sprintf("position_suggestion %q is not one of BUY/SELL/HOLD", r.TradingSignals.PositionSuggestion))
	}

	if r.Confidence < 0 || r.Confidence > 100 {
		problems = append(problems, fmt.Sprintf("confidence %.2f out of range [0,100]", r.Confidence))
	}
	if r.TrendStrength < 0 || r.TrendStrength > 100 {
		problems = append(problems, fmt.Sprintf("trend_strength %.2f out of range [0,100]", r.TrendStrength))
	}
	if r.TradingSignals.PositionSizePct < 0 || r.TradingSignals.PositionSizePct > 100 {
		problems = append(problems, fmt.Sprintf("position_size_pct %.2f out of range [0,100]", r.TradingSignals.PositionSizePct))
	}
	if r.TradingSignals.Leverage < 1 || r.TradingSignals.Leverage > 10 {
		problems = append(problems, fmt.Sprintf("leverage %d out of range [1,10]", r.TradingSignals.Leverage))
	}

	if suggestion == domain.SuggestHold && r.TradingSignals.AutoTradingEnabled {
		problems = append(problems, "auto_trading_enabled must be false when position_suggestion is HOLD")
	}

	// TP2/TP3 are informational and may be absent (zero); only TP1
	// participates in the directional ordering invariant.
	ts := r.TradingSignals
	switch suggestion {
	case domain.SuggestSell:
		if !(ts.StopLoss > ts.EntryPrice && ts.EntryPrice > ts.TakeProfit1) {
			problems = append(problems, "SELL requires stop_loss > entry_price > take_profit1")
		}
	case domain.SuggestBuy:
		if !(ts.StopLoss < ts.EntryPrice && ts.EntryPrice < ts.TakeProfit1) {
			problems = append(problems, "BUY requires stop_loss < entry_price < take_profit1")
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("advisor: reply failed validation: %s", strings.Join(problems, "; "))
	}
	return nil
}

func toDomainAnalysis(r *rawAnalysis, sourceTimeframe string, generatedAt int64) *domain.Analysis {
	return &domain.Analysis{
		MarketPhase:      domain.MarketPhase(r.MarketPhase),
		OverallSentiment: domain.Sentiment(r.OverallSentiment),
		RiskLevel:        domain.RiskLevel(r.RiskLevel),
		Confidence:       r.Confidence,
		TrendStrength:    r.TrendStrength,
		TradingSignals: domain.TradingSignal{
			PositionSuggestion: domain.PositionSuggestion(r.TradingSignals.PositionSuggestion),
			EntryPrice:         r.TradingSignals.EntryPrice,
			StopLoss:           r.TradingSignals.StopLoss,
			TakeProfit1:        r.TradingSignals.TakeProfit1,
			TakeProfit2:        r.TradingSignals.TakeProfit2,
			TakeProfit3:        r.TradingSignals.TakeProfit3,
			Leverage:           r.TradingSignals.Leverage,
			PositionSizePct:    r.TradingSignals.PositionSizePct,
			AutoTradingEnabled: r.TradingSignals.AutoTradingEnabled,
		},
		GeneratedAt:     generatedAt,
		SourceTimeframe: sourceTimeframe,
	}
}

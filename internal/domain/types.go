// Package domain holds the shared data model that flows between the
// advisor, policy, reconciler, executor, and store components: the
// advisor's structured Analysis/TradingSignal output, the reconciler's
// Plan/PlanAction primitives, and the permanent TradeRecord history.
package domain

import "time"

// MarketPhase is the advisor's read on the broader market cycle.
type MarketPhase string

const (
	PhaseUp         MarketPhase = "up"
	PhaseDown       MarketPhase = "down"
	PhaseAccumulate MarketPhase = "accumulate"
	PhaseDistribute MarketPhase = "distribute"
)

// Sentiment is the advisor's overall directional read.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// RiskLevel gates leverage and position-size caps in the signal policy.
type RiskLevel string

const (
	RiskHigh   RiskLevel = "high"
	RiskMedium RiskLevel = "medium"
	RiskLow    RiskLevel = "low"
)

// PositionSuggestion is the actionable direction a TradingSignal carries.
type PositionSuggestion string

const (
	SuggestBuy  PositionSuggestion = "BUY"
	SuggestSell PositionSuggestion = "SELL"
	SuggestHold PositionSuggestion = "HOLD"
)

// TradingSignal is the actionable subset of an Analysis.
type TradingSignal struct {
	PositionSuggestion PositionSuggestion `json:"position_suggestion"`
	EntryPrice         float64            `json:"entry_price"`
	StopLoss           float64            `json:"stop_loss"`
	TakeProfit1        float64            `json:"take_profit1"`
	TakeProfit2        float64            `json:"take_profit2"`
	TakeProfit3        float64            `json:"take_profit3"`
	Leverage           int                `json:"leverage"`
	PositionSizePct    float64            `json:"position_size_pct"`
	AutoTradingEnabled bool               `json:"auto_trading_enabled"`
}

// Analysis is the advisor's structured verdict for one timeframe, or for
// the synthetic "final" pass over all four.
type Analysis struct {
	MarketPhase      MarketPhase   `json:"market_phase"`
	OverallSentiment Sentiment     `json:"overall_sentiment"`
	RiskLevel        RiskLevel     `json:"risk_level"`
	Confidence       float64       `json:"confidence"`       // 0..100
	TrendStrength    float64       `json:"trend_strength"`   // 0..100
	TradingSignals   TradingSignal `json:"trading_signals"`
	GeneratedAt      int64         `json:"generated_at"` // unix millis
	SourceTimeframe  string        `json:"source_timeframe"`
}

// PlanActionKind tags the primitive exchange action a PlanAction carries.
type PlanActionKind string

const (
	ActionSetLeverage    PlanActionKind = "SET_LEVERAGE"
	ActionClosePosition  PlanActionKind = "CLOSE_POSITION"
	ActionOpenPosition   PlanActionKind = "OPEN_POSITION"
	ActionResizePosition PlanActionKind = "RESIZE_POSITION"
)

// PlanAction is one primitive step of a Plan. Only the fields relevant to
// Kind are populated; the reconciler never mixes fields across kinds.
type PlanAction struct {
	Kind       PlanActionKind
	Leverage   int                // ActionSetLeverage
	Side       PositionSuggestion // ActionOpenPosition (BUY/SELL only)
	QtyBase    float64            // ActionOpenPosition, absolute qty
	EntryLimit float64            // ActionOpenPosition
	StopLoss   float64            // ActionOpenPosition
	TakeProfit float64            // ActionOpenPosition
	DeltaBase  float64            // ActionResizePosition, signed
}

// Plan is an ordered, finite list of primitive exchange actions. The
// reconciler guarantees at most one direction change per plan.
type Plan []PlanAction

// ActionOutcome records what happened when the executor realized one
// PlanAction.
type ActionOutcome struct {
	Action    PlanAction
	Succeeded bool
	Error     string
	OrderID   int64
}

// TriggerKind distinguishes a scheduled fire from an operator-initiated one.
type TriggerKind string

const (
	TriggerAuto   TriggerKind = "auto"
	TriggerManual TriggerKind = "manual"
)

// TradeRecord is the permanent, append-only history entry for one
// reconciled signal whose plan was executed, whatever each action's
// outcome; signals the policy rejects are not recorded.
type TradeRecord struct {
	Timestamp time.Time       `json:"timestamp"`
	Trigger   TriggerKind     `json:"trigger"`
	Signal    TradingSignal   `json:"signal"`
	Plan      Plan            `json:"plan"`
	Outcomes  []ActionOutcome `json:"outcomes"`
}

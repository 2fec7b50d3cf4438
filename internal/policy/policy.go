// Package policy gates the "final" Analysis against a fixed rule chain
// before the reconciler ever sees it. None of the checks here touch the
// exchange; they only look at the signal and the policy's own
// bookkeeping of trades executed so far.
package policy

import (
	"fmt"
	"sync"
	"time"

	"btcfutures-agent/internal/domain"
)

// Config holds the rule-gate thresholds. A zero-value Config is never
// used directly — callers should start from DefaultConfig().
type Config struct {
	MinConfidence    float64
	MinTrendStrength float64
	MaxDailyTrades   int
	Cooldown         time.Duration
	MaxLossPct       float64
	Location         *time.Location

	// Per-risk-level caps (leverage, position_size_pct). Index by
	// domain.RiskLevel.
	LeverageCap map[domain.RiskLevel]int
	SizePctCap  map[domain.RiskLevel]float64
}

// DefaultConfig returns the standard production thresholds.
func DefaultConfig() Config {
	return Config{
		MinConfidence:    70,
		MinTrendStrength: 60,
		MaxDailyTrades:   3,
		Cooldown:         60 * time.Minute,
		MaxLossPct:       2,
		Location:         time.UTC,
		LeverageCap: map[domain.RiskLevel]int{
			domain.RiskHigh:   10,
			domain.RiskMedium: 5,
			domain.RiskLow:    3,
		},
		SizePctCap: map[domain.RiskLevel]float64{
			domain.RiskHigh:   30,
			domain.RiskMedium: 20,
			domain.RiskLow:    15,
		},
	}
}

// Gate applies the rule chain and tracks the state the chain depends on:
// how many trades have executed today and when the last one executed.
type Gate struct {
	cfg Config

	mu             sync.Mutex
	tradesToday    int
	tradesDay      time.Time // calendar day, in cfg.Location
	lastExecutedAt time.Time
}

// NewGate builds a Gate with no trade history yet recorded.
func NewGate(cfg Config) *Gate {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Gate{cfg: cfg}
}

// Decision is the outcome of Evaluate: either the signal is admissible as
// given, or it's rejected with a reason, or it's admissible once the
// leverage/position_size_pct have been clamped to the risk_level's cap.
type Decision struct {
	Admissible bool
	Reason     string
	// Signal is the (possibly clamped) signal to hand to the reconciler.
	// Only meaningful when Admissible is true.
	Signal domain.TradingSignal
}

// Evaluate runs the ordered rule chain against the final Analysis. The
// first failing rule's reason is returned; callers log and broadcast it.
func (g *Gate) Evaluate(a *domain.Analysis, now time.Time) Decision {
	sig := a.TradingSignals

	if !sig.AutoTradingEnabled {
		return reject("auto_trading_enabled is false")
	}
	if a.Confidence < g.cfg.MinConfidence {
		return reject(fmt.Sprintf("confidence %.1f below minimum %.1f", a.Confidence, g.cfg.MinConfidence))
	}
	if a.TrendStrength < g.cfg.MinTrendStrength {
		return reject(fmt.Sprintf("trend_strength %.1f below minimum %.1f", a.TrendStrength, g.cfg.MinTrendStrength))
	}

	g.mu.Lock()
	g.resetIfNewDay(now)
	tradesToday := g.tradesToday
	lastExecutedAt := g.lastExecutedAt
	g.mu.Unlock()

	if tradesToday >= g.cfg.MaxDailyTrades {
		return reject(fmt.Sprintf("daily trade cap reached (%d/%d)", tradesToday, g.cfg.MaxDailyTrades))
	}
	if !lastExecutedAt.IsZero() && now.Sub(lastExecutedAt) < g.cfg.Cooldown {
		remaining := g.cfg.Cooldown - now.Sub(lastExecutedAt)
		return reject(fmt.Sprintf("cooldown active, %s remaining", remaining.Round(time.Second)))
	}

	if sig.PositionSuggestion != domain.SuggestHold {
		if sig.EntryPrice <= 0 {
			return reject("entry_price must be positive for a BUY/SELL signal")
		}
		lossPct := absFloat(sig.StopLoss-sig.EntryPrice) / sig.EntryPrice * 100
		if lossPct > g.cfg.MaxLossPct {
			return reject(fmt.Sprintf("stop-loss distance %.2f%% exceeds max %.2f%%", lossPct, g.cfg.MaxLossPct))
		}
	}

	leverageCap, ok := g.cfg.LeverageCap[a.RiskLevel]
	if !ok {
		return reject(fmt.Sprintf("no leverage cap configured for risk_level %q", a.RiskLevel))
	}
	sizeCap, ok := g.cfg.SizePctCap[a.RiskLevel]
	if !ok {
		return reject(fmt.Sprintf("no position size cap configured for risk_level %q", a.RiskLevel))
	}
	if sig.Leverage > leverageCap {
		sig.Leverage = leverageCap
	}
	if sig.PositionSizePct > sizeCap {
		sig.PositionSizePct = sizeCap
	}

	return Decision{Admissible: true, Signal: sig}
}

// RecordExecution marks a trade as having executed now, advancing the
// daily counter and the cooldown clock. Callers call this only after the
// reconciler/executor have actually produced and run a non-empty plan —
// a HOLD or an empty plan never counts against the daily cap.
func (g *Gate) RecordExecution(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resetIfNewDay(now)
	g.tradesToday++
	g.lastExecutedAt = now
}

func (g *Gate) resetIfNewDay(now time.Time) {
	local := now.In(g.cfg.Location)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, g.cfg.Location)
	if g.tradesDay.IsZero() || day.After(g.tradesDay) {
		g.tradesToday = 0
		g.tradesDay = day
	}
}

func reject(reason string) Decision {
	return Decision{Admissible: false, Reason: reason}
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

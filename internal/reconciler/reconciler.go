// Package reconciler compares an admissible TradingSignal to the live
// exchange position and produces an ordered Plan of primitive actions:
// open from flat, resize in place, or close-then-reopen on a leverage
// change or direction flip. It never talks to the exchange itself — the
// executor does.
package reconciler

import (
	"math"

	"btcfutures-agent/internal/domain"
	"btcfutures-agent/internal/exchange"
)

// Config holds the instrument filters the quantity formula is rounded
// and validated against.
type Config struct {
	StepSize    float64 // default 0.001 base units
	MinNotional float64 // default 1 quote unit
}

// DefaultConfig matches the BTCUSDT perpetual's filters.
func DefaultConfig() Config {
	return Config{StepSize: 0.001, MinNotional: 1}
}

// Reconciler builds Plans from signals and live positions.
type Reconciler struct {
	cfg Config
}

// New builds a Reconciler with the given instrument filters.
func New(cfg Config) *Reconciler {
	if cfg.StepSize <= 0 {
		cfg.StepSize = 0.001
	}
	if cfg.MinNotional <= 0 {
		cfg.MinNotional = 1
	}
	return &Reconciler{cfg: cfg}
}

// Reconcile applies the decision table from an admissible signal and the
// freshly fetched live position and equity.
func (r *Reconciler) Reconcile(sig domain.TradingSignal, pos exchange.Position, equity float64) domain.Plan {
	if pos.IsFlat() {
		if sig.PositionSuggestion == domain.SuggestHold {
			return domain.Plan{}
		}
		return r.openFresh(sig, equity)
	}

	liveSide := sideFromPosition(pos.Side)

	if sig.PositionSuggestion == domain.SuggestHold {
		return domain.Plan{}
	}

	if sig.PositionSuggestion != liveSide {
		// opposite side: close, re-leverage, reopen. The close stands even
		// if the reopen fails the notional gate — the signal says the
		// current direction is wrong either way.
		return append(domain.Plan{{Kind: domain.ActionClosePosition}}, r.openFresh(sig, equity)...)
	}

	// same side
	if pos.Leverage != sig.Leverage {
		return append(domain.Plan{{Kind: domain.ActionClosePosition}}, r.openFresh(sig, equity)...)
	}

	target := r.targetQty(sig, equity)
	delta := target - pos.SizeBase
	if math.Abs(delta)*sig.EntryPrice < r.cfg.MinNotional || math.Abs(delta) < r.cfg.StepSize {
		return domain.Plan{}
	}
	return domain.Plan{{Kind: domain.ActionResizePosition, DeltaBase: delta}}
}

func (r *Reconciler) openFresh(sig domain.TradingSignal, equity float64) domain.Plan {
	qty := r.targetQty(sig, equity)
	if qty <= 0 || qty*sig.EntryPrice < r.cfg.MinNotional {
		return domain.Plan{}
	}
	return domain.Plan{
		{Kind: domain.ActionSetLeverage, Leverage: sig.Leverage},
		{
			Kind:       domain.ActionOpenPosition,
			Side:       sig.PositionSuggestion,
			QtyBase:    qty,
			EntryLimit: sig.EntryPrice,
			StopLoss:   sig.StopLoss,
			TakeProfit: sig.TakeProfit1,
		},
	}
}

// targetQty computes (equity * position_size_pct/100 * leverage) /
// entry_price, rounded down to the configured step size.
func (r *Reconciler) targetQty(sig domain.TradingSignal, equity float64) float64 {
	if sig.EntryPrice <= 0 {
		return 0
	}
	raw := equity * (sig.PositionSizePct / 100) * float64(sig.Leverage) / sig.EntryPrice
	steps := math.Floor(raw / r.cfg.StepSize)
	return steps * r.cfg.StepSize
}

func sideFromPosition(s exchange.PositionSide) domain.PositionSuggestion {
	switch s {
	case exchange.PositionLong:
		return domain.SuggestBuy
	case exchange.PositionShort:
		return domain.SuggestSell
	default:
		return domain.SuggestHold
	}
}

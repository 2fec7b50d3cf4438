package reconciler

import (
	"testing"

	"btcfutures-agent/internal/domain"
	"btcfutures-agent/internal/exchange"
)

func TestReconcileFlatHoldProducesEmptyPlan(t *testing.T) {
	r := New(DefaultConfig())
	sig := domain.TradingSignal{PositionSuggestion: domain.SuggestHold}
	plan := r.Reconcile(sig, exchange.Position{Side: exchange.PositionFlat}, 10000)
	if len(plan) != 0 {
		t.Fatalf("expected empty plan, got %v", plan)
	}
}

func TestReconcileFlatBuyOpensPosition(t *testing.T) {
	r := New(DefaultConfig())
	sig := domain.TradingSignal{
		PositionSuggestion: domain.SuggestBuy,
		EntryPrice:         60000,
		StopLoss:           59000,
		TakeProfit1:        62000,
		Leverage:           5,
		PositionSizePct:    20,
	}
	plan := r.Reconcile(sig, exchange.Position{Side: exchange.PositionFlat}, 10000)
	if len(plan) != 2 {
		t.Fatalf("expected 2-step plan, got %d: %v", len(plan), plan)
	}
	if plan[0].Kind != domain.ActionSetLeverage || plan[0].Leverage != 5 {
		t.Errorf("expected SetLeverage(5) first, got %+v", plan[0])
	}
	if plan[1].Kind != domain.ActionOpenPosition || plan[1].Side != domain.SuggestBuy {
		t.Errorf("expected OpenPosition(BUY) second, got %+v", plan[1])
	}
	wantQty := 10000 * 0.20 * 5 / 60000.0
	if diff := plan[1].QtyBase - wantQty; diff > 1e-9 || diff < -1e-9 {
		// step-rounded, so compare within one step
		if diff > 0.001 || diff < -0.001 {
			t.Errorf("expected qty near %.6f, got %.6f", wantQty, plan[1].QtyBase)
		}
	}
}

func TestReconcileSameSideSameLeverageResizes(t *testing.T) {
	r := New(DefaultConfig())
	sig := domain.TradingSignal{
		PositionSuggestion: domain.SuggestBuy,
		EntryPrice:         60000,
		Leverage:           5,
		PositionSizePct:    40,
	}
	pos := exchange.Position{Side: exchange.PositionLong, SizeBase: 0.05, Leverage: 5}
	plan := r.Reconcile(sig, pos, 10000)
	if len(plan) != 1 || plan[0].Kind != domain.ActionResizePosition {
		t.Fatalf("expected single ResizePosition action, got %v", plan)
	}
	if plan[0].DeltaBase <= 0 {
		t.Errorf("expected a positive delta (target > current), got %.6f", plan[0].DeltaBase)
	}
}

func TestReconcileSameSideSameLeverageNoOpBelowStep(t *testing.T) {
	r := New(DefaultConfig())
	sig := domain.TradingSignal{
		PositionSuggestion: domain.SuggestBuy,
		EntryPrice:         60000,
		Leverage:           5,
		PositionSizePct:    20,
	}
	// current size is the unfloored target (0.1666..); the floored target
	// is 0.166, so the delta is smaller than one step -> no-op
	target := 10000 * 0.20 * 5 / 60000.0
	pos := exchange.Position{Side: exchange.PositionLong, SizeBase: target, Leverage: 5}
	plan := r.Reconcile(sig, pos, 10000)
	if len(plan) != 0 {
		t.Fatalf("expected no-op plan for unchanged target size, got %v", plan)
	}
}

func TestReconcileSameSideDifferentLeverageClosesAndReopens(t *testing.T) {
	r := New(DefaultConfig())
	sig := domain.TradingSignal{
		PositionSuggestion: domain.SuggestBuy,
		EntryPrice:         60000,
		StopLoss:           59000,
		TakeProfit1:        62000,
		Leverage:           8,
		PositionSizePct:    20,
	}
	pos := exchange.Position{Side: exchange.PositionLong, SizeBase: 0.05, Leverage: 5}
	plan := r.Reconcile(sig, pos, 10000)
	if len(plan) != 3 {
		t.Fatalf("expected close+setLeverage+open, got %d: %v", len(plan), plan)
	}
	if plan[0].Kind != domain.ActionClosePosition {
		t.Errorf("expected ClosePosition first, got %+v", plan[0])
	}
	if plan[1].Kind != domain.ActionSetLeverage || plan[1].Leverage != 8 {
		t.Errorf("expected SetLeverage(8) second, got %+v", plan[1])
	}
	if plan[2].Kind != domain.ActionOpenPosition {
		t.Errorf("expected OpenPosition third, got %+v", plan[2])
	}
}

func TestReconcileOppositeSideClosesAndReopens(t *testing.T) {
	r := New(DefaultConfig())
	sig := domain.TradingSignal{
		PositionSuggestion: domain.SuggestSell,
		EntryPrice:         60000,
		StopLoss:           61000,
		TakeProfit1:        58000,
		Leverage:           5,
		PositionSizePct:    20,
	}
	pos := exchange.Position{Side: exchange.PositionLong, SizeBase: 0.05, Leverage: 5}
	plan := r.Reconcile(sig, pos, 10000)
	if len(plan) != 3 || plan[0].Kind != domain.ActionClosePosition || plan[2].Side != domain.SuggestSell {
		t.Fatalf("expected close+releverage+open(SELL), got %v", plan)
	}
}

func TestReconcileQuantityFloorsToStepSize(t *testing.T) {
	r := New(DefaultConfig())
	sig := domain.TradingSignal{
		PositionSuggestion: domain.SuggestBuy,
		EntryPrice:         60000,
		StopLoss:           59400,
		TakeProfit1:        61200,
		Leverage:           5,
		PositionSizePct:    20,
	}
	// 1000 * 0.20 * 5 / 60000 = 0.01666... -> floored to 0.016
	plan := r.Reconcile(sig, exchange.Position{Side: exchange.PositionFlat}, 1000)
	if len(plan) != 2 {
		t.Fatalf("expected 2-step plan, got %v", plan)
	}
	if diff := plan[1].QtyBase - 0.016; diff > 1e-12 || diff < -1e-12 {
		t.Errorf("expected qty floored to 0.016, got %.6f", plan[1].QtyBase)
	}
}

func TestReconcileFlatBuyBelowMinNotionalProducesEmptyPlan(t *testing.T) {
	r := New(DefaultConfig())
	sig := domain.TradingSignal{
		PositionSuggestion: domain.SuggestBuy,
		EntryPrice:         60000,
		StopLoss:           59000,
		TakeProfit1:        62000,
		Leverage:           1,
		PositionSizePct:    1,
	}
	// 1 USDT equity at 1% and 1x rounds to zero steps of 0.001 BTC
	plan := r.Reconcile(sig, exchange.Position{Side: exchange.PositionFlat}, 1)
	if len(plan) != 0 {
		t.Fatalf("expected empty plan when sized quantity fails the notional gate, got %v", plan)
	}
}

func TestReconcileLiveHoldIsNoOp(t *testing.T) {
	r := New(DefaultConfig())
	sig := domain.TradingSignal{PositionSuggestion: domain.SuggestHold}
	pos := exchange.Position{Side: exchange.PositionLong, SizeBase: 0.05, Leverage: 5}
	plan := r.Reconcile(sig, pos, 10000)
	if len(plan) != 0 {
		t.Fatalf("expected empty plan on HOLD with a live position, got %v", plan)
	}
}

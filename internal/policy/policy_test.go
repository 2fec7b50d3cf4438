package policy

import (
	"testing"
	"time"

	"btcfutures-agent/internal/domain"
)

func baseAnalysis() *domain.Analysis {
	return &domain.Analysis{
		RiskLevel:     domain.RiskMedium,
		Confidence:    80,
		TrendStrength: 75,
		TradingSignals: domain.TradingSignal{
			PositionSuggestion: domain.SuggestBuy,
			EntryPrice:         60000,
			StopLoss:           59400, // 1% away
			TakeProfit1:        61000,
			Leverage:           8,
			PositionSizePct:    25,
			AutoTradingEnabled: true,
		},
	}
}

func TestEvaluateAdmitsAndClampsToRiskCaps(t *testing.T) {
	g := NewGate(DefaultConfig())
	d := g.Evaluate(baseAnalysis(), time.Now())
	if !d.Admissible {
		t.Fatalf("expected admissible, got rejected: %s", d.Reason)
	}
	if d.Signal.Leverage != 5 {
		t.Errorf("expected leverage clamped to medium cap 5, got %d", d.Signal.Leverage)
	}
	if d.Signal.PositionSizePct != 20 {
		t.Errorf("expected position_size_pct clamped to medium cap 20, got %.1f", d.Signal.PositionSizePct)
	}
}

func TestEvaluateRejectsAutoTradingDisabled(t *testing.T) {
	g := NewGate(DefaultConfig())
	a := baseAnalysis()
	a.TradingSignals.AutoTradingEnabled = false
	d := g.Evaluate(a, time.Now())
	if d.Admissible {
		t.Fatal("expected rejection when auto_trading_enabled is false")
	}
}

func TestEvaluateRejectsLowConfidence(t *testing.T) {
	g := NewGate(DefaultConfig())
	a := baseAnalysis()
	a.Confidence = 50
	d := g.Evaluate(a, time.Now())
	if d.Admissible {
		t.Fatal("expected rejection for confidence below threshold")
	}
}

func TestEvaluateRejectsExcessiveStopDistance(t *testing.T) {
	g := NewGate(DefaultConfig())
	a := baseAnalysis()
	a.TradingSignals.StopLoss = 55000 // ~8.3% away, exceeds 2% cap
	d := g.Evaluate(a, time.Now())
	if d.Admissible {
		t.Fatal("expected rejection for stop-loss distance exceeding max_loss_pct")
	}
}

func TestEvaluateRejectsDuringCooldown(t *testing.T) {
	g := NewGate(DefaultConfig())
	now := time.Now()
	g.RecordExecution(now)
	d := g.Evaluate(baseAnalysis(), now.Add(10*time.Minute))
	if d.Admissible {
		t.Fatal("expected rejection within the 60 minute cooldown window")
	}
}

func TestEvaluateRejectsAtDailyTradeCap(t *testing.T) {
	g := NewGate(DefaultConfig())
	now := time.Date(2026, 7, 31, 3, 0, 0, 0, time.UTC)
	// space executions far enough apart to clear cooldown each time,
	// all within one calendar day
	g.RecordExecution(now)
	g.RecordExecution(now.Add(2 * time.Hour))
	g.RecordExecution(now.Add(4 * time.Hour))
	d := g.Evaluate(baseAnalysis(), now.Add(6*time.Hour))
	if d.Admissible {
		t.Fatal("expected rejection once trades_today reaches max_daily_trades")
	}
}

func TestEvaluateResetsDailyCapOnNewDay(t *testing.T) {
	g := NewGate(DefaultConfig())
	now := time.Date(2026, 7, 31, 3, 0, 0, 0, time.UTC)
	g.RecordExecution(now)
	g.RecordExecution(now.Add(2 * time.Hour))
	g.RecordExecution(now.Add(4 * time.Hour))

	nextDay := now.Add(26 * time.Hour)
	d := g.Evaluate(baseAnalysis(), nextDay)
	if !d.Admissible {
		t.Fatalf("expected admissible on a new calendar day, got rejected: %s", d.Reason)
	}
}

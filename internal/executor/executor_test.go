package executor

import (
	"context"
	"testing"
	"time"

	"btcfutures-agent/internal/domain"
	"btcfutures-agent/internal/events"
	"btcfutures-agent/internal/exchange"
)

func newTestExecutor() (*Executor, *exchange.MockClient) {
	client := exchange.NewMockClient(10000, func() float64 { return 60000 })
	bus := events.NewBus()
	return New(client, "BTCUSDT", bus, nil), client
}

func TestExecuteOpenPositionPlanSucceeds(t *testing.T) {
	e, client := newTestExecutor()
	plan := domain.Plan{
		{Kind: domain.ActionSetLeverage, Leverage: 5},
		{
			Kind:       domain.ActionOpenPosition,
			Side:       domain.SuggestBuy,
			QtyBase:    0.1,
			EntryLimit: 60000,
			StopLoss:   59000,
			TakeProfit: 61000,
		},
	}

	outcomes := e.Execute(context.Background(), "t1", plan)
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	for _, o := range outcomes {
		if !o.Succeeded {
			t.Fatalf("expected all actions to succeed, got failure: %s", o.Error)
		}
	}

	pos, err := client.GetPosition(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("GetPosition: %v", err)
	}
	if pos.IsFlat() {
		t.Fatal("expected a live long position after OpenPosition")
	}
	if pos.SizeBase != 0.1 {
		t.Errorf("expected size 0.1, got %f", pos.SizeBase)
	}
}

func TestExecuteClosePositionBringsPositionFlat(t *testing.T) {
	e, client := newTestExecutor()

	openPlan := domain.Plan{
		{Kind: domain.ActionSetLeverage, Leverage: 3},
		{Kind: domain.ActionOpenPosition, Side: domain.SuggestBuy, QtyBase: 0.2, EntryLimit: 60000, StopLoss: 59000, TakeProfit: 61000},
	}
	if outs := e.Execute(context.Background(), "t1", openPlan); !outs[len(outs)-1].Succeeded {
		t.Fatalf("setup open failed: %+v", outs)
	}

	closePlan := domain.Plan{{Kind: domain.ActionClosePosition}}
	outs := e.Execute(context.Background(), "t2", closePlan)
	if len(outs) != 1 || !outs[0].Succeeded {
		t.Fatalf("expected close to succeed, got %+v", outs)
	}

	pos, _ := client.GetPosition(context.Background(), "BTCUSDT")
	if !pos.IsFlat() {
		t.Fatal("expected flat position after ClosePosition")
	}
}

func TestExecuteOpenPositionRejectsBadDirection(t *testing.T) {
	e, _ := newTestExecutor()
	plan := domain.Plan{
		{Kind: domain.ActionOpenPosition, Side: domain.SuggestBuy, QtyBase: 0.1, EntryLimit: 60000, StopLoss: 61000, TakeProfit: 59000},
	}
	outs := e.Execute(context.Background(), "t3", plan)
	if len(outs) != 1 || outs[0].Succeeded {
		t.Fatal("expected the pre-check to reject a BUY with inverted stop/target")
	}
}

func TestExecuteAbortsRemainderAfterFailure(t *testing.T) {
	e, _ := newTestExecutor()
	plan := domain.Plan{
		{Kind: domain.ActionOpenPosition, Side: domain.SuggestBuy, QtyBase: 0, EntryLimit: 60000, StopLoss: 59000, TakeProfit: 61000},
		{Kind: domain.ActionSetLeverage, Leverage: 5},
	}
	outs := e.Execute(context.Background(), "t4", plan)
	if len(outs) != 1 {
		t.Fatalf("expected plan to abort after first failure, got %d outcomes", len(outs))
	}
}

func TestExecuteIsSerializedAcrossConcurrentCalls(t *testing.T) {
	e, _ := newTestExecutor()
	plan := domain.Plan{{Kind: domain.ActionSetLeverage, Leverage: 4}}

	done := make(chan struct{}, 2)
	for i := 0; i < 2; i++ {
		go func() {
			e.Execute(context.Background(), "concurrent", plan)
			done <- struct{}{}
		}()
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for first concurrent Execute to finish")
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for second concurrent Execute to finish")
	}
}

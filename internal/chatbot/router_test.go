package chatbot

import (
	"os"
	"testing"
	"time"

	"btcfutures-agent/internal/exchange"
	"btcfutures-agent/internal/marketdata"
	"btcfutures-agent/internal/store"
)

func seedKlines(n int, base float64) []exchange.Kline {
	out := make([]exchange.Kline, 0, n)
	t := time.Now().Add(-time.Duration(n) * time.Hour).UnixMilli()
	for i := 0; i < n; i++ {
		price := base + float64(i)
		out = append(out, exchange.Kline{
			OpenTime: t + int64(i)*3600000,
			Open:     price,
			High:     price + 1,
			Low:      price - 1,
			Close:    price,
			Volume:   10,
		})
	}
	return out
}

func newTestRouter(t *testing.T) (*Router, *exchange.MockClient, *store.Store) {
	t.Helper()
	dir, err := os.MkdirTemp("", "chatbot_test")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	st, err := store.New(dir, nil)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}

	client := exchange.NewMockClient(10000, func() float64 { return 50000 })
	client.SeedKlines(seedKlines(250, 49000))
	adapter := marketdata.NewAdapter(client, nil)

	r := NewRouter("BTCUSDT", nil, st, client, adapter, nil, nil)
	return r, client, st
}

func TestDispatchUnknownCommand(t *testing.T) {
	r, _, _ := newTestRouter(t)
	_, isErr := r.Dispatch("/bogus", "")
	if !isErr {
		t.Fatal("expected unknown command to report an error")
	}
}

func TestDispatchBalanceAndPrice(t *testing.T) {
	r, _, _ := newTestRouter(t)

	reply, isErr := r.Dispatch("/balance", "")
	if isErr {
		t.Fatalf("unexpected error reply: %s", reply)
	}

	reply, isErr = r.Dispatch("/price", "")
	if isErr {
		t.Fatalf("unexpected error reply: %s", reply)
	}
	if reply == "" {
		t.Fatal("expected a non-empty price reply")
	}
}

func TestDispatchPositionFlat(t *testing.T) {
	r, _, _ := newTestRouter(t)
	reply, isErr := r.Dispatch("/position", "")
	if isErr {
		t.Fatalf("unexpected error reply: %s", reply)
	}
	if reply != "no open position" {
		t.Fatalf("expected flat position reply, got %q", reply)
	}
}

func TestDispatchLastWithNoHistory(t *testing.T) {
	r, _, _ := newTestRouter(t)
	reply, isErr := r.Dispatch("/last", "1h")
	if isErr {
		t.Fatalf("unexpected error reply: %s", reply)
	}
	if reply == "" {
		t.Fatal("expected a not-yet-recorded message")
	}
}

func TestDispatchTradeWithoutWiring(t *testing.T) {
	r, _, _ := newTestRouter(t)
	_, isErr := r.Dispatch("/trade", "")
	if !isErr {
		t.Fatal("expected /trade to fail when onTrade is not wired")
	}
}

func TestDispatchStopInvokesCallback(t *testing.T) {
	r, _, _ := newTestRouter(t)
	called := make(chan struct{}, 1)
	r.onStop = func() { called <- struct{}{} }

	reply, isErr := r.Dispatch("/stop", "")
	if isErr {
		t.Fatalf("unexpected error reply: %s", reply)
	}
	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("expected onStop to be invoked")
	}
}

func TestDispatchAnalyzeWithoutScheduler(t *testing.T) {
	r, _, _ := newTestRouter(t)
	_, isErr := r.Dispatch("/analyze", "1h")
	if !isErr {
		t.Fatal("expected /analyze to fail without a wired scheduler")
	}
}

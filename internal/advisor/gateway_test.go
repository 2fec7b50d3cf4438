package advisor

import (
	"context"
	"sync"
	"testing"

	"btcfutures-agent/internal/events"
)

type fakeCompleter struct {
	mu        sync.Mutex
	replies   []string
	callCount int
	err       error
}

func (f *fakeCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	idx := f.callCount
	f.callCount++
	if idx >= len(f.replies) {
		idx = len(f.replies) - 1
	}
	return f.replies[idx], nil
}

const validBuyReply = `{
  "market_phase": "up",
  "overall_sentiment": "positive",
  "risk_level": "medium",
  "confidence": 75,
  "trend_strength": 65,
  "trading_signals": {
    "position_suggestion": "BUY",
    "entry_price": 60000,
    "stop_loss": 59000,
    "take_profit1": 61000,
    "take_profit2": 62000,
    "take_profit3": 63000,
    "leverage": 5,
    "position_size_pct": 20,
    "auto_trading_enabled": true
  }
}`

func TestGatewayAcceptsValidReplyOnFirstTry(t *testing.T) {
	fc := &fakeCompleter{replies: []string{"```json\n" + validBuyReply + "\n```"}}
	gw := NewGateway(fc, events.NewBus(), nil, 0)

	a, err := gw.run(context.Background(), "trace1", "1h", "irrelevant user prompt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.TradingSignals.PositionSuggestion != "BUY" {
		t.Errorf("expected BUY, got %s", a.TradingSignals.PositionSuggestion)
	}
	if a.SourceTimeframe != "1h" {
		t.Errorf("expected source_timeframe 1h, got %s", a.SourceTimeframe)
	}
}

const invalidOrderingReply = `{
  "market_phase": "up",
  "overall_sentiment": "positive",
  "risk_level": "medium",
  "confidence": 75,
  "trend_strength": 65,
  "trading_signals": {
    "position_suggestion": "BUY",
    "entry_price": 60000,
    "stop_loss": 61000,
    "take_profit1": 59000,
    "take_profit2": 58000,
    "take_profit3": 57000,
    "leverage": 5,
    "position_size_pct": 20,
    "auto_trading_enabled": true
  }
}`

func TestGatewayRepromptsOnceThenAccepts(t *testing.T) {
	fc := &fakeCompleter{replies: []string{invalidOrderingReply, validBuyReply}}
	gw := NewGateway(fc, events.NewBus(), nil, 0)

	a, err := gw.run(context.Background(), "trace2", "1h", "irrelevant user prompt")
	if err != nil {
		t.Fatalf("unexpected error after re-prompt: %v", err)
	}
	if a.TradingSignals.PositionSuggestion != "BUY" {
		t.Errorf("expected BUY after correction, got %s", a.TradingSignals.PositionSuggestion)
	}
	if fc.callCount != 2 {
		t.Errorf("expected exactly 2 completion calls, got %d", fc.callCount)
	}
}

func TestGatewayRejectsAfterSecondFailure(t *testing.T) {
	fc := &fakeCompleter{replies: []string{invalidOrderingReply, invalidOrderingReply}}
	gw := NewGateway(fc, events.NewBus(), nil, 0)

	_, err := gw.run(context.Background(), "trace3", "1h", "irrelevant user prompt")
	if err == nil {
		t.Fatal("expected rejection error, got nil")
	}
}

func TestStripMarkdownCodeBlock(t *testing.T) {
	in := "```json\n{\"a\":1}\n```"
	out := stripMarkdownCodeBlock(in)
	if out != `{"a":1}` {
		t.Errorf("expected stripped fence, got %q", out)
	}
}

func TestStripMarkdownCodeBlockNoFence(t *testing.T) {
	in := `{"a":1}`
	if out := stripMarkdownCodeBlock(in); out != in {
		t.Errorf("expected unchanged input, got %q", out)
	}
}

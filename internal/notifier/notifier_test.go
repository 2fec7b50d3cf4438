package notifier

import (
	"context"
	"sync"
	"testing"
	"time"

	"btcfutures-agent/internal/events"
)

type fakeTransport struct {
	mu   sync.Mutex
	msgs []Message
}

func (f *fakeTransport) Name() string    { return "fake" }
func (f *fakeTransport) IsEnabled() bool { return true }
func (f *fakeTransport) Send(msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	return nil
}
func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

func TestChannelDeliversWithinRateBudget(t *testing.T) {
	bus := events.NewBus()
	transport := &fakeTransport{}
	ch := NewChannel("admin", RoleAdmin, transport, 6000, bus, nil) // generous budget for the test

	ctx, cancel := context.WithCancel(context.Background())
	go ch.Run(ctx)
	defer cancel()

	ch.Enqueue(events.Event{Type: events.EventAnalysisStarted, Data: map[string]interface{}{"timeframe": "1h"}})

	deadline := time.Now().Add(2 * time.Second)
	for transport.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if transport.count() != 1 {
		t.Fatalf("expected 1 delivered message, got %d", transport.count())
	}
}

func TestChannelDropsOldestOnOverflow(t *testing.T) {
	bus := events.NewBus()
	transport := &fakeTransport{}
	ch := NewChannel("admin", RoleAdmin, transport, 0.001, bus, nil) // effectively no budget

	var overflowed int
	var mu sync.Mutex
	bus.Subscribe(events.EventNotifierOverflow, func(e events.Event) {
		mu.Lock()
		overflowed++
		mu.Unlock()
	})

	for i := 0; i < defaultQueueDepth+5; i++ {
		ch.Enqueue(events.Event{Type: events.EventPlanProduced})
	}

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if overflowed == 0 {
		t.Error("expected at least one NotifierOverflow event once the queue exceeded its depth")
	}
}

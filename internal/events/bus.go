// Package events is the in-process publish/subscribe bus. The advisor
// gateway and the executor publish typed events here, and cmd/agent
// publishes pull failures and the policy and reconciler outcomes on
// their behalf, instead of holding a direct handle to the notifier —
// that keeps the executor from importing the chat-transport package at
// all.
package events

import (
	"sync"
	"time"
)

// EventType names one occurrence in the pipeline's publish surface,
// plus NotifierOverflow for the notifier's own backpressure.
type EventType string

const (
	EventAnalysisStarted   EventType = "ANALYSIS_STARTED"
	EventAnalysisCompleted EventType = "ANALYSIS_COMPLETED"
	EventAnalysisFailed    EventType = "ANALYSIS_FAILED"
	EventSignalRejected    EventType = "SIGNAL_REJECTED"
	EventPlanProduced      EventType = "PLAN_PRODUCED"
	EventOrderSubmitted    EventType = "ORDER_SUBMITTED"
	EventOrderFilled       EventType = "ORDER_FILLED"
	EventOrderFailed       EventType = "ORDER_FAILED"
	EventNotifierOverflow  EventType = "NOTIFIER_OVERFLOW"
)

// Event is one published occurrence. Data is a loosely-typed payload
// bag; the notifier, its subscriber, prints every key it carries.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	TraceID   string                 `json:"trace_id,omitempty"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber handles one published event. It must not block long —
// Publish fans out to every subscriber in its own goroutine, but a
// subscriber that never returns will leak goroutines on every publish.
type Subscriber func(Event)

// Bus manages event publishing and subscriptions.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[EventType][]Subscriber),
	}
}

// Subscribe registers a subscriber for one event type.
func (b *Bus) Subscribe(eventType EventType, subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for every event type.
func (b *Bus) SubscribeAll(subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allSubs = append(b.allSubs, subscriber)
}

// Publish fans an event out to its type-specific subscribers and the
// all-event subscribers, each in its own goroutine so one slow
// subscriber can't block another or the publisher.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if subs, ok := b.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event)
		}
	}
	for _, sub := range b.allSubs {
		go sub(event)
	}
}

// PublishAnalysisStarted publishes an ANALYSIS_STARTED event.
func (b *Bus) PublishAnalysisStarted(traceID, timeframe string) {
	b.Publish(Event{Type: EventAnalysisStarted, TraceID: traceID, Data: map[string]interface{}{
		"timeframe": timeframe,
	}})
}

// PublishAnalysisCompleted publishes an ANALYSIS_COMPLETED event.
func (b *Bus) PublishAnalysisCompleted(traceID, timeframe string, confidence, trendStrength float64) {
	b.Publish(Event{Type: EventAnalysisCompleted, TraceID: traceID, Data: map[string]interface{}{
		"timeframe":      timeframe,
		"confidence":     confidence,
		"trend_strength": trendStrength,
	}})
}

// PublishAnalysisFailed publishes an ANALYSIS_FAILED event.
func (b *Bus) PublishAnalysisFailed(traceID, timeframe, reason string) {
	b.Publish(Event{Type: EventAnalysisFailed, TraceID: traceID, Data: map[string]interface{}{
		"timeframe": timeframe,
		"reason":    reason,
	}})
}

// PublishSignalRejected publishes a SIGNAL_REJECTED event naming the
// failing rule-gate.
func (b *Bus) PublishSignalRejected(traceID, reason string) {
	b.Publish(Event{Type: EventSignalRejected, TraceID: traceID, Data: map[string]interface{}{
		"reason": reason,
	}})
}

// PublishPlanProduced publishes a PLAN_PRODUCED event with the action count.
func (b *Bus) PublishPlanProduced(traceID string, actionCount int) {
	b.Publish(Event{Type: EventPlanProduced, TraceID: traceID, Data: map[string]interface{}{
		"action_count": actionCount,
	}})
}

// PublishOrderSubmitted publishes an ORDER_SUBMITTED event.
func (b *Bus) PublishOrderSubmitted(traceID, symbol, side string, qty float64) {
	b.Publish(Event{Type: EventOrderSubmitted, TraceID: traceID, Data: map[string]interface{}{
		"symbol":   symbol,
		"side":     side,
		"quantity": qty,
	}})
}

// PublishOrderFilled publishes an ORDER_FILLED event.
func (b *Bus) PublishOrderFilled(traceID string, orderID int64, symbol string) {
	b.Publish(Event{Type: EventOrderFilled, TraceID: traceID, Data: map[string]interface{}{
		"order_id": orderID,
		"symbol":   symbol,
	}})
}

// PublishOrderFailed publishes an ORDER_FAILED event.
func (b *Bus) PublishOrderFailed(traceID, symbol, reason string) {
	b.Publish(Event{Type: EventOrderFailed, TraceID: traceID, Data: map[string]interface{}{
		"symbol": symbol,
		"reason": reason,
	}})
}

// PublishNotifierOverflow publishes a NOTIFIER_OVERFLOW event naming the
// channel that dropped a message.
func (b *Bus) PublishNotifierOverflow(channel string, dropped int) {
	b.Publish(Event{Type: EventNotifierOverflow, Data: map[string]interface{}{
		"channel": channel,
		"dropped": dropped,
	}})
}

// Package notifier delivers pipeline events to operator chat channels.
// Each channel has its own bounded FIFO and
// token-bucket rate limit so a slow or throttled channel can never block
// another, and delivery within one channel is strictly serial.
package notifier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"btcfutures-agent/internal/events"
	"btcfutures-agent/internal/logging"
)

// Role distinguishes the single admin channel from notify-only ones.
type Role string

const (
	// RoleAdmin receives every event and is the only sink for command
	// acknowledgements. Exactly one admin channel should exist per
	// Manager; nothing in this package enforces that — the wiring in
	// cmd/agent does.
	RoleAdmin Role = "admin"
	// RoleNotifyOnly receives trade and analysis events but never
	// acknowledgements.
	RoleNotifyOnly Role = "notify_only"
)

const (
	defaultQueueDepth = 256
	defaultRatePerMin = 20
	coalesceAfter     = 5 * time.Second
)

// Channel is one operator chat surface: a bounded queue, a rate limiter,
// and the transport that actually sends formatted messages.
type Channel struct {
	name      string
	role      Role
	transport Transport
	limiter   *rate.Limiter
	queue     chan events.Event
	bus       *events.Bus
	log       *logging.Logger

	mu     sync.Mutex
	closed bool
}

// NewChannel builds a channel with the default 256-deep FIFO and a
// ratePerMin token bucket; 0 selects the 20/min default.
func NewChannel(name string, role Role, transport Transport, ratePerMin float64, bus *events.Bus, log *logging.Logger) *Channel {
	if ratePerMin <= 0 {
		ratePerMin = defaultRatePerMin
	}
	if log == nil {
		log = logging.Default()
	}
	return &Channel{
		name:      name,
		role:      role,
		transport: transport,
		limiter:   rate.NewLimiter(rate.Limit(ratePerMin/60.0), 1),
		queue:     make(chan events.Event, defaultQueueDepth),
		bus:       bus,
		log:       log.WithComponent("notifier").WithField("channel", name),
	}
}

// Enqueue adds an event to the channel's FIFO. If the queue is full the
// oldest queued event is dropped and a NotifierOverflow event is
// published — the newest event is never silently discarded.
func (c *Channel) Enqueue(e events.Event) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}

	select {
	case c.queue <- e:
		return
	default:
	}

	select {
	case <-c.queue:
	default:
	}
	select {
	case c.queue <- e:
	default:
	}
	if c.bus != nil {
		c.bus.PublishNotifierOverflow(c.name, 1)
	}
}

// Run drains the channel's queue until ctx is cancelled. An event is
// delivered at once when the rate limiter allows it; otherwise it is
// held, and a later event of the same type replaces the held one, so
// coalescing by type starts as soon as the bucket refuses an event. All
// held events are flushed together, without further rate limiting, when
// a tick finds a token available or coalesceAfter has passed since the
// first of them was held, and on cancellation.
func (c *Channel) Run(ctx context.Context) {
	pending := make(map[events.EventType]events.Event)
	var pendingSince time.Time

	flush := func() {
		for t, e := range pending {
			if err := c.deliver(e); err != nil {
				c.log.Error("delivery failed", "event_type", t, "error", err.Error())
			}
			delete(pending, t)
		}
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case e := <-c.queue:
			if c.limiter.Allow() {
				if err := c.deliver(e); err != nil {
					c.log.Error("delivery failed", "event_type", e.Type, "error", err.Error())
				}
				continue
			}
			if len(pending) == 0 {
				pendingSince = time.Now()
			}
			pending[e.Type] = e
		case <-ticker.C:
			if len(pending) == 0 {
				continue
			}
			if time.Since(pendingSince) < coalesceAfter && !c.limiter.Allow() {
				continue
			}
			flush()
		}
	}
}

func (c *Channel) deliver(e events.Event) error {
	if c.role == RoleNotifyOnly && e.Type == events.EventNotifierOverflow {
		return nil
	}
	return c.transport.Send(formatMessage(e))
}

func formatMessage(e events.Event) Message {
	title := string(e.Type)
	isError := e.Type == events.EventAnalysisFailed || e.Type == events.EventOrderFailed
	return Message{
		Title:     title,
		Body:      formatBody(e),
		IsError:   isError,
		Timestamp: e.Timestamp,
	}
}

func formatBody(e events.Event) string {
	if len(e.Data) == 0 {
		return string(e.Type)
	}
	body := ""
	for k, v := range e.Data {
		body += fmt.Sprintf("%s: %v\n", k, v)
	}
	return body
}

// Manager fans Bus events out to every registered Channel according to
// its role.
type Manager struct {
	bus      *events.Bus
	channels []*Channel
}

// NewManager wires a Manager to the shared event bus; Start subscribes
// every registered channel.
func NewManager(bus *events.Bus) *Manager {
	return &Manager{bus: bus}
}

// Register adds a channel. Admin channels receive every event;
// notify-only channels receive everything except acknowledgements,
// which never flow over the event bus in the first place (the chatbot
// replies to those directly).
func (m *Manager) Register(c *Channel) {
	m.channels = append(m.channels, c)
}

// Start subscribes all registered channels to the bus and launches
// their delivery loops; it returns once ctx is cancelled and every
// channel has flushed.
func (m *Manager) Start(ctx context.Context) {
	m.bus.SubscribeAll(func(e events.Event) {
		for _, c := range m.channels {
			c.Enqueue(e)
		}
	})

	var wg sync.WaitGroup
	for _, c := range m.channels {
		wg.Add(1)
		go func(ch *Channel) {
			defer wg.Done()
			ch.Run(ctx)
		}(c)
	}
	wg.Wait()
}

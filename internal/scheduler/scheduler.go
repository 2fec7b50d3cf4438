// Package scheduler fires periodic analysis passes at wall-clock
// boundaries per timeframe, guards each timeframe with a single-flight
// in-flight flag, and owns the process lifecycle state machine.
//
// Firing instants come from a truncate-then-sleep loop rather than a
// cron library: truncating down to the period and adding one period
// sidesteps external schedulers and their timezone quirks.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"btcfutures-agent/internal/events"
	"btcfutures-agent/internal/logging"
	"btcfutures-agent/internal/marketdata"
)

// State is one position in the Stopped -> Running -> Draining -> Stopped
// lifecycle.
type State int32

const (
	StateStopped State = iota
	StateRunning
	StateDraining
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	default:
		return "stopped"
	}
}

// GraceWindow is how long Run waits, after Stop(), for in-flight analyses
// to finish before returning.
const GraceWindow = 30 * time.Second

// Handler runs one analysis pass for a timeframe at the given scheduled
// instant (not wall-clock receipt time, so catch-ups after a process
// pause still align). traceID correlates this pass's events and logs
// across the pipeline.
type Handler func(ctx context.Context, traceID string, tf marketdata.Timeframe, scheduledAt time.Time) error

// FinalHandler runs the combined "final" pass. It is invoked after every
// successful scheduled 4h pass completes; a manual Trigger does not
// invoke it.
type FinalHandler func(ctx context.Context, traceID string)

// timeframeJob is the per-timeframe scheduling state: whether it's
// enabled, its period function, and its single-flight/catch-up bookkeeping.
type timeframeJob struct {
	tf       marketdata.Timeframe
	enabled  bool
	inFlight atomic.Bool

	mu          sync.Mutex
	lastFiredAt time.Time // the scheduled instant, not wall-clock receipt
}

// Scheduler runs one wall-clock-aligned goroutine per enabled
// timeframe, plus manual-trigger support for the chat command surface.
type Scheduler struct {
	loc     *time.Location
	handler Handler
	final   FinalHandler
	bus     *events.Bus
	log     *logging.Logger

	jobs map[marketdata.Timeframe]*timeframeJob

	state atomic.Int32
	wg    sync.WaitGroup
	stop  chan struct{}
}

// Config selects the scheduler's timezone and which optional timeframes
// to drive. 15m is disabled by default.
type Config struct {
	Location  *time.Location
	Enable15m bool
}

// DefaultConfig returns Asia/Seoul with 15m disabled.
func DefaultConfig() Config {
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		loc = time.UTC
	}
	return Config{Location: loc, Enable15m: false}
}

// New builds a Scheduler. handler runs a single-timeframe pass; final
// runs the combined pass after each successful 4h fire.
func New(cfg Config, handler Handler, final FinalHandler, bus *events.Bus, log *logging.Logger) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if log == nil {
		log = logging.Default()
	}
	s := &Scheduler{
		loc:     cfg.Location,
		handler: handler,
		final:   final,
		bus:     bus,
		log:     log.WithComponent("scheduler"),
		jobs:    make(map[marketdata.Timeframe]*timeframeJob),
		stop:    make(chan struct{}),
	}
	s.jobs[marketdata.TF1h] = &timeframeJob{tf: marketdata.TF1h, enabled: true}
	s.jobs[marketdata.TF4h] = &timeframeJob{tf: marketdata.TF4h, enabled: true}
	s.jobs[marketdata.TF1d] = &timeframeJob{tf: marketdata.TF1d, enabled: true}
	s.jobs[marketdata.TF15m] = &timeframeJob{tf: marketdata.TF15m, enabled: cfg.Enable15m}
	s.state.Store(int32(StateStopped))
	return s
}

// State reports the current lifecycle state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Run starts one goroutine per enabled timeframe and blocks until ctx is
// cancelled or Stop is called; it then waits up to GraceWindow for
// in-flight passes before returning.
func (s *Scheduler) Run(ctx context.Context) {
	if !s.state.CompareAndSwap(int32(StateStopped), int32(StateRunning)) {
		return
	}
	s.log.Info("scheduler starting", "timezone", s.loc.String())

	runCtx, cancel := context.WithCancel(ctx)
	for _, job := range s.jobs {
		if !job.enabled {
			continue
		}
		s.wg.Add(1)
		go s.runTimeframe(runCtx, job)
	}

	select {
	case <-ctx.Done():
	case <-s.stop:
	}

	s.state.Store(int32(StateDraining))
	s.log.Info("scheduler draining, waiting for in-flight passes", "grace_window", GraceWindow.String())
	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(GraceWindow):
		s.log.Warn("grace window elapsed with passes still in flight")
	}

	s.state.Store(int32(StateStopped))
	s.log.Info("scheduler stopped")
}

// Stop requests a graceful shutdown; Run returns once in-flight passes
// finish or GraceWindow elapses.
func (s *Scheduler) Stop() {
	if s.state.Load() != int32(StateRunning) {
		return
	}
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
}

func (s *Scheduler) runTimeframe(ctx context.Context, job *timeframeJob) {
	defer s.wg.Done()
	for {
		next := nextFire(job.tf, time.Now().In(s.loc), s.loc)
		wait := time.Until(next)
		if wait < 0 {
			wait = 0
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
		if ctx.Err() != nil {
			return
		}
		s.fire(ctx, job, next)
	}
}

// fire attempts one timeframe pass at the scheduled instant. If the
// previous pass for this timeframe is still in flight, the new trigger
// is dropped with a warning rather than queued.
func (s *Scheduler) fire(ctx context.Context, job *timeframeJob, scheduledAt time.Time) {
	if !job.inFlight.CompareAndSwap(false, true) {
		s.log.Warn("dropping trigger, previous pass still in flight", "timeframe", job.tf)
		return
	}
	defer job.inFlight.Store(false)

	traceID := logging.GenerateTraceID()
	log := s.log.WithTraceID(traceID).WithField("timeframe", job.tf)
	log.Info("firing scheduled analysis", "scheduled_at", scheduledAt.Format(time.RFC3339))

	if err := s.handler(ctx, traceID, job.tf, scheduledAt); err != nil {
		log.Error("scheduled analysis failed", "error", err.Error())
		return
	}

	job.mu.Lock()
	job.lastFiredAt = scheduledAt
	job.mu.Unlock()

	if job.tf == marketdata.TF4h && s.final != nil {
		s.final(ctx, traceID)
	}
}

// Trigger runs tf immediately, outside the wall-clock schedule, while
// still honoring the in-flight flag for that timeframe. It blocks until the
// pass completes.
func (s *Scheduler) Trigger(ctx context.Context, tf marketdata.Timeframe) error {
	job, ok := s.jobs[tf]
	if !ok {
		return fmt.Errorf("scheduler: unknown timeframe %q", tf)
	}
	if !job.inFlight.CompareAndSwap(false, true) {
		return fmt.Errorf("scheduler: %s analysis already in flight", tf)
	}
	defer job.inFlight.Store(false)

	traceID := logging.GenerateTraceID()
	now := time.Now()
	if err := s.handler(ctx, traceID, tf, now); err != nil {
		return err
	}
	job.mu.Lock()
	job.lastFiredAt = now
	job.mu.Unlock()
	return nil
}

// LastFired returns the scheduled instant of the most recent completed
// pass for tf, or the zero time if none has run yet.
func (s *Scheduler) LastFired(tf marketdata.Timeframe) time.Time {
	job, ok := s.jobs[tf]
	if !ok {
		return time.Time{}
	}
	job.mu.Lock()
	defer job.mu.Unlock()
	return job.lastFiredAt
}

// fourHourHours are the local wall-clock hours the 4h timeframe fires at.
var fourHourHours = []int{1, 5, 9, 13, 17, 21}

// nextFire computes the next firing instant for tf strictly after now, by
// truncating down to the period and adding one period — so a process
// that wakes after missing a firing catches up by firing once, rather
// than replaying every missed instant.
func nextFire(tf marketdata.Timeframe, now time.Time, loc *time.Location) time.Time {
	switch tf {
	case marketdata.TF15m:
		floor := now.Truncate(15 * time.Minute)
		next := floor.Add(15 * time.Minute)
		if next.Before(now) || next.Equal(now) {
			next = next.Add(15 * time.Minute)
		}
		return next
	case marketdata.TF1h:
		floor := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, loc)
		next := floor.Add(time.Hour)
		if !next.After(now) {
			next = next.Add(time.Hour)
		}
		return next
	case marketdata.TF4h:
		day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
		for _, h := range fourHourHours {
			candidate := day.Add(time.Duration(h) * time.Hour)
			if candidate.After(now) {
				return candidate
			}
		}
		// all of today's slots have passed; first slot tomorrow
		return day.AddDate(0, 0, 1).Add(time.Duration(fourHourHours[0]) * time.Hour)
	case marketdata.TF1d:
		day := time.Date(now.Year(), now.Month(), now.Day(), 1, 0, 0, 0, loc)
		if !day.After(now) {
			day = day.AddDate(0, 0, 1)
		}
		return day
	default:
		// unreachable for the four scheduled timeframes; parked one
		// minute out so a caller passing "final" doesn't spin.
		return now.Add(time.Minute)
	}
}

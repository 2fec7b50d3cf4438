package scheduler

import (
	"context"
	"testing"
	"time"

	"btcfutures-agent/internal/marketdata"
)

func TestNextFireHourlyAlignsToTopOfHour(t *testing.T) {
	now := time.Date(2026, 7, 31, 14, 23, 10, 0, time.UTC)
	next := nextFire(marketdata.TF1h, now, time.UTC)
	want := time.Date(2026, 7, 31, 15, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}
}

func TestNextFireHourlyOnTheBoundaryAdvancesOneFullPeriod(t *testing.T) {
	now := time.Date(2026, 7, 31, 15, 0, 0, 0, time.UTC)
	next := nextFire(marketdata.TF1h, now, time.UTC)
	want := time.Date(2026, 7, 31, 16, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}
}

func TestNextFire4hPicksNextConfiguredHour(t *testing.T) {
	now := time.Date(2026, 7, 31, 2, 0, 0, 0, time.UTC)
	next := nextFire(marketdata.TF4h, now, time.UTC)
	want := time.Date(2026, 7, 31, 5, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}
}

func TestNextFire4hWrapsToNextDay(t *testing.T) {
	now := time.Date(2026, 7, 31, 22, 0, 0, 0, time.UTC)
	next := nextFire(marketdata.TF4h, now, time.UTC)
	want := time.Date(2026, 8, 1, 1, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}
}

func TestNextFireDailyAt0100(t *testing.T) {
	now := time.Date(2026, 7, 31, 0, 30, 0, 0, time.UTC)
	next := nextFire(marketdata.TF1d, now, time.UTC)
	want := time.Date(2026, 7, 31, 1, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}
}

func TestNextFireDailyAfterBoundaryRollsToTomorrow(t *testing.T) {
	now := time.Date(2026, 7, 31, 1, 0, 1, 0, time.UTC)
	next := nextFire(marketdata.TF1d, now, time.UTC)
	want := time.Date(2026, 8, 1, 1, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}
}

func TestScheduleAlignmentProperty(t *testing.T) {
	periods := map[marketdata.Timeframe]time.Duration{
		marketdata.TF15m: 15 * time.Minute,
		marketdata.TF1h:  time.Hour,
	}
	for tf, period := range periods {
		now := time.Date(2026, 7, 31, 11, 47, 33, 0, time.UTC)
		next := nextFire(tf, now, time.UTC)
		if next.Unix()%int64(period.Seconds()) != 0 {
			t.Errorf("%s: fire instant %v is not aligned to period %s", tf, next, period)
		}
	}
}

func TestTriggerRejectsWhileAnalysisInFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	handler := func(ctx context.Context, traceID string, tf marketdata.Timeframe, scheduledAt time.Time) error {
		close(started)
		<-release
		return nil
	}

	s := New(Config{Location: time.UTC}, handler, nil, nil, nil)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Trigger(context.Background(), marketdata.TF1h) }()
	<-started

	if err := s.Trigger(context.Background(), marketdata.TF1h); err == nil {
		t.Fatal("expected second Trigger to be rejected while the first is in flight")
	}

	close(release)
	if err := <-errCh; err != nil {
		t.Fatalf("expected first Trigger to succeed, got %v", err)
	}
}

func TestSingleFlightBlocksDuplicateTrigger(t *testing.T) {
	job := &timeframeJob{tf: marketdata.TF1h, enabled: true}
	if !job.inFlight.CompareAndSwap(false, true) {
		t.Fatal("expected first acquire to succeed")
	}
	if job.inFlight.CompareAndSwap(false, true) {
		t.Fatal("expected second acquire to fail while in flight")
	}
	job.inFlight.Store(false)
	if !job.inFlight.CompareAndSwap(false, true) {
		t.Fatal("expected acquire to succeed again after release")
	}
}

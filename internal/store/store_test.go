package store

import (
	"os"
	"testing"

	"btcfutures-agent/internal/domain"
	"btcfutures-agent/internal/marketdata"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir, err := os.MkdirTemp("", "store_test")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	s, err := New(dir, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := newTestStore(t)

	analysis := domain.Analysis{
		MarketPhase:     domain.PhaseUp,
		Confidence:      80,
		TrendStrength:   70,
		GeneratedAt:     1000,
		SourceTimeframe: "1h",
	}

	if err := s.Put(marketdata.TF1h, analysis); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get(marketdata.TF1h)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatal("expected a snapshot, got nil")
	}
	if got.Confidence != 80 || got.GeneratedAt != 1000 {
		t.Errorf("unexpected round-tripped analysis: %+v", got)
	}
}

func TestGetMissingReturnsNilNoError(t *testing.T) {
	s := newTestStore(t)

	got, err := s.Get(marketdata.TF4h)
	if err != nil {
		t.Fatalf("expected no error for missing snapshot, got %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing snapshot, got %+v", got)
	}
}

func TestGetQuarantinesCorruptFile(t *testing.T) {
	s := newTestStore(t)

	path := s.path(marketdata.TF1d)
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}

	got, err := s.Get(marketdata.TF1d)
	if err != nil {
		t.Fatalf("expected corrupt file to be treated as missing, got error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for corrupt file, got %+v", got)
	}

	if _, err := os.Stat(path + ".bad"); err != nil {
		t.Errorf("expected corrupt file to be quarantined with .bad suffix: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected original corrupt path to be gone after quarantine")
	}
}

func TestPutFinalSkippedWithoutAllFour(t *testing.T) {
	s := newTestStore(t)

	s.Put(marketdata.TF15m, domain.Analysis{GeneratedAt: 1})
	s.Put(marketdata.TF1h, domain.Analysis{GeneratedAt: 1})
	// 4h and 1d missing.

	ok, err := s.PutFinal(domain.Analysis{GeneratedAt: 5})
	if err != nil {
		t.Fatalf("PutFinal: %v", err)
	}
	if ok {
		t.Error("expected PutFinal to be skipped when not all four snapshots exist")
	}

	got, err := s.Get(marketdata.TFFinal)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Error("expected no final snapshot to have been written")
	}
}

func TestPutFinalSucceedsWithAllFourFresh(t *testing.T) {
	s := newTestStore(t)

	for _, tf := range sourceTimeframes {
		s.Put(tf, domain.Analysis{GeneratedAt: 10})
	}

	ok, err := s.PutFinal(domain.Analysis{GeneratedAt: 20, MarketPhase: domain.PhaseUp})
	if err != nil {
		t.Fatalf("PutFinal: %v", err)
	}
	if !ok {
		t.Fatal("expected PutFinal to succeed with all four fresh snapshots")
	}

	got, err := s.Get(marketdata.TFFinal)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || got.GeneratedAt != 20 {
		t.Errorf("unexpected final snapshot: %+v", got)
	}
}

func TestAppendTradeIsAppendOnly(t *testing.T) {
	s := newTestStore(t)

	rec := domain.TradeRecord{Trigger: domain.TriggerAuto}
	if err := s.AppendTrade(rec); err != nil {
		t.Fatalf("AppendTrade: %v", err)
	}
	if err := s.AppendTrade(rec); err != nil {
		t.Fatalf("AppendTrade: %v", err)
	}

	data, err := os.ReadFile(s.historyPath())
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := 0
	for _, b := range data {
		if b == '\n' {
			lines++
		}
	}
	if lines != 2 {
		t.Errorf("expected 2 appended lines, got %d", lines)
	}
}

func TestRecentTradesReturnsNewestLast(t *testing.T) {
	s := newTestStore(t)

	for _, trig := range []domain.TriggerKind{domain.TriggerAuto, domain.TriggerManual, domain.TriggerAuto} {
		if err := s.AppendTrade(domain.TradeRecord{Trigger: trig}); err != nil {
			t.Fatalf("AppendTrade: %v", err)
		}
	}

	recent, err := s.RecentTrades(2)
	if err != nil {
		t.Fatalf("RecentTrades: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recent))
	}
	if recent[0].Trigger != domain.TriggerManual || recent[1].Trigger != domain.TriggerAuto {
		t.Errorf("expected the last two records in append order, got %+v", recent)
	}
}

func TestRecentTradesMissingFileReturnsNil(t *testing.T) {
	s := newTestStore(t)
	recent, err := s.RecentTrades(5)
	if err != nil {
		t.Fatalf("RecentTrades: %v", err)
	}
	if recent != nil {
		t.Errorf("expected nil for missing history file, got %+v", recent)
	}
}

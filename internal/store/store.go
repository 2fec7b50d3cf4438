// Package store is the per-timeframe latest-analysis snapshot store and
// the append-only trade history log. Writes go via atomic rename; a
// corrupt snapshot is quarantined rather than crashing the reader.
package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"btcfutures-agent/internal/domain"
	"btcfutures-agent/internal/logging"
	"btcfutures-agent/internal/marketdata"
)

// sourceTimeframes are the four per-timeframe snapshots a "final" pass is
// built from, in the order the combined prompt bundles them.
var sourceTimeframes = []marketdata.Timeframe{
	marketdata.TF15m, marketdata.TF1h, marketdata.TF4h, marketdata.TF1d,
}

// Store persists the latest Analysis per timeframe and the trade history.
type Store struct {
	dir string
	log *logging.Logger
	mu  map[marketdata.Timeframe]*sync.Mutex
	gMu sync.Mutex // guards mu map creation

	historyMu sync.Mutex

	lastFinalAt int64 // generated_at of the previous successful final put
}

// New creates a Store rooted at dir, with analysis/ and trades/ beneath it.
func New(dir string, log *logging.Logger) (*Store, error) {
	if log == nil {
		log = logging.Default()
	}
	if err := os.MkdirAll(filepath.Join(dir, "analysis"), 0755); err != nil {
		return nil, fmt.Errorf("store: create analysis dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "trades"), 0755); err != nil {
		return nil, fmt.Errorf("store: create trades dir: %w", err)
	}
	return &Store{
		dir: dir,
		log: log.WithComponent("store"),
		mu:  make(map[marketdata.Timeframe]*sync.Mutex),
	}, nil
}

func (s *Store) lockFor(tf marketdata.Timeframe) *sync.Mutex {
	s.gMu.Lock()
	defer s.gMu.Unlock()
	if m, ok := s.mu[tf]; ok {
		return m
	}
	m := &sync.Mutex{}
	s.mu[tf] = m
	return m
}

func (s *Store) path(tf marketdata.Timeframe) string {
	return filepath.Join(s.dir, "analysis", fmt.Sprintf("analysis_%s.json", tf))
}

// Put replaces the latest snapshot for tf. Writes are atomic: the new
// snapshot is written to a temp file in the same directory and renamed
// over the final path, so a crash mid-write leaves either the old
// snapshot intact or the new one fully written, never a partial file.
func (s *Store) Put(tf marketdata.Timeframe, analysis domain.Analysis) error {
	lock := s.lockFor(tf)
	lock.Lock()
	defer lock.Unlock()

	data, err := json.MarshalIndent(analysis, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal %s analysis: %w", tf, err)
	}

	final := s.path(tf)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("store: write temp %s: %w", tf, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("store: rename %s into place: %w", tf, err)
	}

	if tf == marketdata.TFFinal {
		s.lastFinalAt = analysis.GeneratedAt
	}
	return nil
}

// Get returns the latest snapshot for tf, or (nil, nil) if none exists or
// the file on disk is corrupt (quarantined with a .bad suffix and logged).
func (s *Store) Get(tf marketdata.Timeframe) (*domain.Analysis, error) {
	lock := s.lockFor(tf)
	lock.Lock()
	defer lock.Unlock()

	path := s.path(tf)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: read %s: %w", tf, err)
	}

	var analysis domain.Analysis
	if err := json.Unmarshal(data, &analysis); err != nil {
		s.log.Warn("quarantining corrupt snapshot", "timeframe", tf, "error", err.Error())
		quarantined := path + ".bad"
		if rErr := os.Rename(path, quarantined); rErr != nil {
			s.log.Error("failed to quarantine corrupt snapshot", "timeframe", tf, "error", rErr.Error())
		}
		return nil, nil
	}
	return &analysis, nil
}

// PutFinal stores a "final" Analysis only if all four source timeframes
// carry a non-null snapshot newer than the previous final. If the
// precondition fails, the put is skipped and ok is false — the caller
// logs a warning rather than treating this as an error.
func (s *Store) PutFinal(analysis domain.Analysis) (ok bool, err error) {
	for _, tf := range sourceTimeframes {
		snap, gErr := s.Get(tf)
		if gErr != nil {
			return false, gErr
		}
		if snap == nil {
			return false, nil
		}
		if snap.GeneratedAt <= s.lastFinalAt {
			return false, nil
		}
	}
	if err := s.Put(marketdata.TFFinal, analysis); err != nil {
		return false, err
	}
	return true, nil
}

// LatestFour returns the four per-timeframe snapshots the "final" prompt
// is assembled from, in 15m/1h/4h/1d order. Any missing snapshot yields a
// nil entry at that index — the caller decides whether that's fatal.
func (s *Store) LatestFour() ([]*domain.Analysis, error) {
	out := make([]*domain.Analysis, len(sourceTimeframes))
	for i, tf := range sourceTimeframes {
		snap, err := s.Get(tf)
		if err != nil {
			return nil, err
		}
		out[i] = snap
	}
	return out, nil
}

// historyPath is the single rolling JSON-lines trade history file.
// Rotation is the operator's concern.
func (s *Store) historyPath() string {
	return filepath.Join(s.dir, "trades", "history.jsonl")
}

// AppendTrade appends one TradeRecord to the history log. Never mutated,
// never truncated — each call opens for append and writes one JSON line.
func (s *Store) AppendTrade(record domain.TradeRecord) error {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	f, err := os.OpenFile(s.historyPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("store: open trade history: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("store: marshal trade record: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("store: append trade record: %w", err)
	}
	return nil
}

// RecentTrades returns up to n most-recent history records, newest last.
// A line that fails to parse is skipped rather than failing the whole
// read — the history file is operator-rotated and may be truncated
// mid-line at a rotation boundary.
func (s *Store) RecentTrades(n int) ([]domain.TradeRecord, error) {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	f, err := os.Open(s.historyPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: open trade history: %w", err)
	}
	defer f.Close()

	var records []domain.TradeRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var rec domain.TradeRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			s.log.Warn("skipping unparseable trade history line", "error", err.Error())
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("store: scan trade history: %w", err)
	}
	if len(records) > n {
		records = records[len(records)-n:]
	}
	return records, nil
}

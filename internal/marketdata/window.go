// Package marketdata pulls OHLCV windows per timeframe and folds them into
// the indicator table the advisor prompt is built from. It owns no state
// across triggers — every Pull re-reads the exchange from scratch.
package marketdata

import (
	"context"
	"fmt"
	"time"

	"btcfutures-agent/internal/exchange"
	"btcfutures-agent/internal/logging"
)

// Timeframe enumerates the sampled periods plus the synthetic "final" pass.
type Timeframe string

const (
	TF15m   Timeframe = "15m"
	TF1h    Timeframe = "1h"
	TF4h    Timeframe = "4h"
	TF1d    Timeframe = "1d"
	TFFinal Timeframe = "final"
)

// WindowLength is the fixed bar count pulled per timeframe.
var WindowLength = map[Timeframe]int{
	TF15m: 64,
	TF1h:  48,
	TF4h:  90,
	TF1d:  45,
}

const retryBackoff = 1 * time.Second

// Adapter pulls OHLCV windows from the exchange and computes the
// indicator table handed to the advisor gateway.
type Adapter struct {
	client exchange.Client
	log    *logging.Logger
}

// NewAdapter wraps an exchange client. symbol is not stored here — callers
// pass it per pull since the adapter itself is symbol-agnostic.
func NewAdapter(client exchange.Client, log *logging.Logger) *Adapter {
	if log == nil {
		log = logging.Default()
	}
	return &Adapter{client: client, log: log.WithComponent("marketdata")}
}

// Snapshot is the OHLCV window plus its derived indicator table for one
// timeframe pull.
type Snapshot struct {
	Timeframe Timeframe
	Window    []exchange.Kline
	Table     *IndicatorTable
	PulledAt  time.Time
}

// Pull fetches the fixed-length window for tf and computes its indicator
// table. Transient exchange errors are retried up to 3 times with 1s, 2s,
// 4s backoff; a short or empty result is never retried — it is reported
// immediately as exchange.ErrMarketDataUnavailable.
func (a *Adapter) Pull(ctx context.Context, symbol string, tf Timeframe) (*Snapshot, error) {
	limit, ok := WindowLength[tf]
	if !ok {
		return nil, fmt.Errorf("marketdata: no window length configured for timeframe %q", tf)
	}

	var klines []exchange.Kline
	var err error

	for attempt := 0; attempt <= 3; attempt++ {
		klines, err = a.client.GetOHLCV(ctx, symbol, string(tf), limit)
		if err == nil {
			break
		}
		if !exchange.IsTransient(err) {
			return nil, err
		}
		if attempt == 3 {
			break
		}
		a.log.Warn("transient OHLCV pull failure, retrying", "timeframe", tf, "attempt", attempt+1, "error", err.Error())
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryBackoff << attempt):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("marketdata: pull %s after retries: %w", tf, err)
	}

	if len(klines) < limit {
		return nil, fmt.Errorf("marketdata: %s window short (%d/%d bars): %w", tf, len(klines), limit, exchange.ErrMarketDataUnavailable)
	}

	return &Snapshot{
		Timeframe: tf,
		Window:    klines,
		Table:     BuildIndicatorTable(klines),
		PulledAt:  time.Now(),
	}, nil
}

// Package executor realizes a Plan's primitive actions against the
// exchange facade, sequentially and strictly serialized behind a single
// lock so no two Plans ever run against the same instrument at once.
package executor

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"btcfutures-agent/internal/domain"
	"btcfutures-agent/internal/events"
	"btcfutures-agent/internal/exchange"
	"btcfutures-agent/internal/logging"
)

const (
	closePollInterval = 100 * time.Millisecond
	closeTimeout      = 5 * time.Second
	retryBackoff      = 1 * time.Second
	maxRetries        = 3
)

// Executor realizes Plans against a live exchange.Client. One Executor
// should be shared per instrument; Execute serializes internally so two
// Plans for the same instrument never run concurrently.
type Executor struct {
	client exchange.Client
	bus    *events.Bus
	log    *logging.Logger
	lock   chan struct{} // exec_lock, buffered 1
	symbol string
}

// New builds an Executor bound to one instrument symbol.
func New(client exchange.Client, symbol string, bus *events.Bus, log *logging.Logger) *Executor {
	if log == nil {
		log = logging.Default()
	}
	e := &Executor{
		client: client,
		bus:    bus,
		log:    log.WithComponent("executor").WithField("symbol", symbol),
		lock:   make(chan struct{}, 1),
		symbol: symbol,
	}
	e.lock <- struct{}{}
	return e
}

// Execute runs plan as a linear sequence, stopping at the first permanent
// failure. It returns one ActionOutcome per attempted action (actions
// after a failure are not attempted and do not appear in the result).
func (e *Executor) Execute(ctx context.Context, traceID string, plan domain.Plan) []domain.ActionOutcome {
	select {
	case <-e.lock:
		defer func() { e.lock <- struct{}{} }()
	case <-ctx.Done():
		return nil
	}

	log := e.log.WithTraceID(traceID)
	var outcomes []domain.ActionOutcome

	for _, action := range plan {
		outcome := e.execOne(ctx, log, traceID, action)
		outcomes = append(outcomes, outcome)
		if !outcome.Succeeded {
			log.Error("plan aborted after action failure", "kind", action.Kind, "error", outcome.Error)
			break
		}
	}
	return outcomes
}

func (e *Executor) execOne(ctx context.Context, log *logging.Logger, traceID string, action domain.PlanAction) domain.ActionOutcome {
	switch action.Kind {
	case domain.ActionSetLeverage:
		return e.setLeverage(ctx, log, traceID, action)
	case domain.ActionClosePosition:
		return e.closePosition(ctx, log, traceID, action)
	case domain.ActionOpenPosition:
		return e.openPosition(ctx, log, traceID, action)
	case domain.ActionResizePosition:
		return e.resizePosition(ctx, log, traceID, action)
	default:
		return domain.ActionOutcome{Action: action, Succeeded: false, Error: fmt.Sprintf("unknown plan action kind %q", action.Kind)}
	}
}

func (e *Executor) setLeverage(ctx context.Context, log *logging.Logger, traceID string, action domain.PlanAction) domain.ActionOutcome {
	pos, err := e.client.GetPosition(ctx, e.symbol)
	if err == nil && pos.Leverage == action.Leverage {
		log.Debug("leverage already set, skipping exchange call", "leverage", action.Leverage)
		return domain.ActionOutcome{Action: action, Succeeded: true}
	}

	var result exchange.LeverageResult
	err = e.withRetry(ctx, "set_leverage", func() error {
		var rerr error
		result, rerr = e.client.SetLeverage(ctx, e.symbol, action.Leverage)
		return rerr
	})
	if err != nil {
		e.bus.PublishOrderFailed(traceID, e.symbol, err.Error())
		return domain.ActionOutcome{Action: action, Succeeded: false, Error: err.Error()}
	}
	_ = result
	return domain.ActionOutcome{Action: action, Succeeded: true}
}

func (e *Executor) closePosition(ctx context.Context, log *logging.Logger, traceID string, action domain.PlanAction) domain.ActionOutcome {
	pos, err := e.client.GetPosition(ctx, e.symbol)
	if err != nil {
		return domain.ActionOutcome{Action: action, Succeeded: false, Error: err.Error()}
	}
	if pos.IsFlat() {
		return domain.ActionOutcome{Action: action, Succeeded: true}
	}

	closeSide := exchange.SideSell
	if pos.Side == exchange.PositionShort {
		closeSide = exchange.SideBuy
	}

	var result exchange.OrderResult
	err = e.withRetry(ctx, "close_position", func() error {
		var rerr error
		result, rerr = e.client.CreateOrder(ctx, exchange.OrderParams{
			Symbol:     e.symbol,
			Side:       closeSide,
			Type:       exchange.OrderTypeMarket,
			Quantity:   pos.SizeBase,
			ReduceOnly: true,
		})
		return rerr
	})
	if err != nil {
		e.bus.PublishOrderFailed(traceID, e.symbol, err.Error())
		return domain.ActionOutcome{Action: action, Succeeded: false, Error: err.Error()}
	}
	e.bus.PublishOrderSubmitted(traceID, e.symbol, string(closeSide), pos.SizeBase)

	deadline := time.Now().Add(closeTimeout)
	for time.Now().Before(deadline) {
		p, err := e.client.GetPosition(ctx, e.symbol)
		if err == nil && p.IsFlat() {
			e.bus.PublishOrderFilled(traceID, result.OrderID, e.symbol)
			return domain.ActionOutcome{Action: action, Succeeded: true, OrderID: result.OrderID}
		}
		select {
		case <-ctx.Done():
			return domain.ActionOutcome{Action: action, Succeeded: false, Error: ctx.Err().Error()}
		case <-time.After(closePollInterval):
		}
	}
	return domain.ActionOutcome{Action: action, Succeeded: false, Error: "close position: timed out waiting for flat position", OrderID: result.OrderID}
}

func (e *Executor) openPosition(ctx context.Context, log *logging.Logger, traceID string, action domain.PlanAction) domain.ActionOutcome {
	pos, err := e.client.GetPosition(ctx, e.symbol)
	if err == nil && !pos.IsFlat() {
		return domain.ActionOutcome{Action: action, Succeeded: false, Error: "open position pre-check failed: a live position still exists"}
	}
	if action.QtyBase <= 0 {
		return domain.ActionOutcome{Action: action, Succeeded: false, Error: "open position pre-check failed: computed quantity is zero"}
	}
	if err := validateDirection(action); err != nil {
		return domain.ActionOutcome{Action: action, Succeeded: false, Error: err.Error()}
	}

	side := exchange.SideBuy
	if action.Side == domain.SuggestSell {
		side = exchange.SideSell
	}

	var result exchange.OrderResult
	err = e.withRetry(ctx, "open_position", func() error {
		var rerr error
		result, rerr = e.client.CreateOrder(ctx, exchange.OrderParams{
			Symbol:     e.symbol,
			Side:       side,
			Type:       exchange.OrderTypeLimit,
			Quantity:   action.QtyBase,
			Price:      action.EntryLimit,
			StopLoss:   action.StopLoss,
			TakeProfit: action.TakeProfit,
		})
		return rerr
	})
	if err != nil {
		e.bus.PublishOrderFailed(traceID, e.symbol, err.Error())
		return domain.ActionOutcome{Action: action, Succeeded: false, Error: err.Error()}
	}
	e.bus.PublishOrderSubmitted(traceID, e.symbol, string(side), action.QtyBase)
	e.bus.PublishOrderFilled(traceID, result.OrderID, e.symbol)
	return domain.ActionOutcome{Action: action, Succeeded: true, OrderID: result.OrderID}
}

func (e *Executor) resizePosition(ctx context.Context, log *logging.Logger, traceID string, action domain.PlanAction) domain.ActionOutcome {
	pos, err := e.client.GetPosition(ctx, e.symbol)
	if err != nil {
		return domain.ActionOutcome{Action: action, Succeeded: false, Error: err.Error()}
	}
	if pos.IsFlat() {
		return domain.ActionOutcome{Action: action, Succeeded: false, Error: "resize position: no live position to resize"}
	}

	longSide, reduceSide := exchange.SideBuy, exchange.SideSell
	if pos.Side == exchange.PositionShort {
		longSide, reduceSide = exchange.SideSell, exchange.SideBuy
	}

	side := longSide
	reduceOnly := false
	qty := action.DeltaBase
	if action.DeltaBase < 0 {
		side = reduceSide
		reduceOnly = true
		qty = -action.DeltaBase
	}

	var result exchange.OrderResult
	err = e.withRetry(ctx, "resize_position", func() error {
		var rerr error
		result, rerr = e.client.CreateOrder(ctx, exchange.OrderParams{
			Symbol:     e.symbol,
			Side:       side,
			Type:       exchange.OrderTypeMarket,
			Quantity:   qty,
			ReduceOnly: reduceOnly,
		})
		return rerr
	})
	if err != nil {
		e.bus.PublishOrderFailed(traceID, e.symbol, err.Error())
		return domain.ActionOutcome{Action: action, Succeeded: false, Error: err.Error()}
	}
	e.bus.PublishOrderSubmitted(traceID, e.symbol, string(side), qty)
	e.bus.PublishOrderFilled(traceID, result.OrderID, e.symbol)
	return domain.ActionOutcome{Action: action, Succeeded: true, OrderID: result.OrderID}
}

// validateDirection re-checks the SL/TP/entry ordering invariant right
// before submission, independent of the advisor/policy checks upstream.
func validateDirection(action domain.PlanAction) error {
	switch action.Side {
	case domain.SuggestBuy:
		if !(action.StopLoss < action.EntryLimit && action.EntryLimit < action.TakeProfit) {
			return fmt.Errorf("open position pre-check failed: BUY requires stop_loss < entry < take_profit")
		}
	case domain.SuggestSell:
		if !(action.StopLoss > action.EntryLimit && action.EntryLimit > action.TakeProfit) {
			return fmt.Errorf("open position pre-check failed: SELL requires stop_loss > entry > take_profit")
		}
	default:
		return fmt.Errorf("open position pre-check failed: unexpected side %q", action.Side)
	}
	return nil
}

// withRetry retries transient exchange errors up to maxRetries times with
// exponential backoff plus jitter; a permanent error returns immediately.
func (e *Executor) withRetry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !exchange.IsTransient(err) {
			return err
		}
		if attempt == maxRetries {
			break
		}
		wait := retryBackoff << attempt
		jitter := time.Duration(rand.Int63n(int64(wait) / 4))
		e.log.Warn("transient exchange error, retrying", "op", op, "attempt", attempt+1, "error", err.Error())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait + jitter):
		}
	}
	return lastErr
}

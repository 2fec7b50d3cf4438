package chatbot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"btcfutures-agent/internal/domain"
	"btcfutures-agent/internal/exchange"
	"btcfutures-agent/internal/marketdata"
	"btcfutures-agent/internal/scheduler"
	"btcfutures-agent/internal/store"
)

// TradeFunc runs the manual "final" pipeline (gate -> reconcile ->
// execute) and reports what happened.
type TradeFunc func(ctx context.Context) (string, error)

// StopFunc initiates graceful shutdown.
type StopFunc func()

// Router dispatches the eight operator commands into the core pipeline.
// It is a thin adapter, not a UI: every handler returns a short
// plain-text reply.
type Router struct {
	symbol     string
	scheduler  *scheduler.Scheduler
	store      *store.Store
	exchange   exchange.Client
	marketdata *marketdata.Adapter
	onTrade    TradeFunc
	onStop     StopFunc
}

// NewRouter wires a Router to the core components it dispatches into.
func NewRouter(symbol string, sched *scheduler.Scheduler, st *store.Store, client exchange.Client, adapter *marketdata.Adapter, onTrade TradeFunc, onStop StopFunc) *Router {
	return &Router{
		symbol:     symbol,
		scheduler:  sched,
		store:      st,
		exchange:   client,
		marketdata: adapter,
		onTrade:    onTrade,
		onStop:     onStop,
	}
}

// Dispatch runs one command and returns its reply plus whether the
// reply represents a failure (so callers can flag it as an error in the
// envelope).
func (r *Router) Dispatch(command, args string) (reply string, isError bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch strings.ToLower(strings.TrimSpace(command)) {
	case "/status":
		return r.status(ctx)
	case "/balance":
		return r.balance(ctx)
	case "/position":
		return r.position(ctx)
	case "/price":
		return r.price(ctx)
	case "/analyze":
		return r.analyze(ctx, args)
	case "/last":
		return r.last(args)
	case "/trade":
		return r.trade(ctx)
	case "/stop":
		return r.stop()
	default:
		return fmt.Sprintf("unknown command %q", command), true
	}
}

func (r *Router) status(ctx context.Context) (string, bool) {
	snap, err := r.marketdata.Pull(ctx, r.symbol, marketdata.TF1h)
	if err != nil {
		return fmt.Sprintf("status unavailable: %s", err.Error()), true
	}
	t := snap.Table
	trend := "neutral"
	if t.SMA20 > t.SMA50 && t.SMA50 > t.SMA200 {
		trend = "uptrend"
	} else if t.SMA20 < t.SMA50 && t.SMA50 < t.SMA200 {
		trend = "downtrend"
	}
	line := fmt.Sprintf("price=%.2f rsi14=%.1f macd=%.2f signal=%.2f trend=%s adx14=%.1f",
		t.LastClose, t.RSI14, t.MACD.MACD, t.MACD.Signal, trend, t.ADX14)
	if recent, err := r.store.RecentTrades(5); err == nil && len(recent) > 0 {
		line += fmt.Sprintf(" recent_trades=%d last_trade=%s", len(recent), recent[len(recent)-1].Timestamp.Format("01-02 15:04"))
	}
	return line, false
}

func (r *Router) balance(ctx context.Context) (string, bool) {
	bal, err := r.exchange.GetBalance(ctx)
	if err != nil {
		return fmt.Sprintf("balance unavailable: %s", err.Error()), true
	}
	return fmt.Sprintf("equity=%.2f USDT", bal), false
}

func (r *Router) position(ctx context.Context) (string, bool) {
	pos, err := r.exchange.GetPosition(ctx, r.symbol)
	if err != nil {
		return fmt.Sprintf("position unavailable: %s", err.Error()), true
	}
	if pos.IsFlat() {
		return "no open position", false
	}
	return fmt.Sprintf("%s %.4f @ %.2f lev=%dx mark=%.2f pnl=%.2f liq=%.2f",
		pos.Side, pos.SizeBase, pos.EntryPrice, pos.Leverage, pos.MarkPrice, pos.UnrealizedPnL, pos.LiqPrice), false
}

func (r *Router) price(ctx context.Context) (string, bool) {
	snap, err := r.marketdata.Pull(ctx, r.symbol, marketdata.TF1h)
	if err != nil {
		return fmt.Sprintf("price unavailable: %s", err.Error()), true
	}
	return fmt.Sprintf("%.2f", snap.Table.LastClose), false
}

// analyze runs a manual trigger, outside the wall-clock schedule, for one
// timeframe. It only runs the pull/advise/store stage — never policy,
// reconciler, or executor.
func (r *Router) analyze(ctx context.Context, args string) (string, bool) {
	if r.scheduler == nil {
		return "analyze not wired", true
	}
	tf := marketdata.Timeframe(strings.TrimSpace(args))
	if tf == "" {
		return "usage: /analyze <15m|1h|4h|1d>", true
	}
	if err := r.scheduler.Trigger(ctx, tf); err != nil {
		return fmt.Sprintf("analyze %s failed: %s", tf, err.Error()), true
	}
	return fmt.Sprintf("%s analysis complete", tf), false
}

// last reads the analysis store; an empty arg defaults to the combined
// "final" snapshot.
func (r *Router) last(args string) (string, bool) {
	tf := marketdata.Timeframe(strings.TrimSpace(args))
	if tf == "" {
		tf = marketdata.TFFinal
	}
	a, err := r.store.Get(tf)
	if err != nil {
		return fmt.Sprintf("read %s failed: %s", tf, err.Error()), true
	}
	if a == nil {
		return fmt.Sprintf("no %s analysis recorded yet", tf), false
	}
	return formatAnalysis(tf, a), false
}

// trade manually runs the final pipeline and executes it if admissible.
// The gate/reconcile/execute sequence itself lives in cmd/agent —
// Router only relays the outcome string.
func (r *Router) trade(ctx context.Context) (string, bool) {
	if r.onTrade == nil {
		return "manual trade pipeline not wired", true
	}
	reply, err := r.onTrade(ctx)
	if err != nil {
		return fmt.Sprintf("trade failed: %s", err.Error()), true
	}
	return reply, false
}

// stop initiates graceful shutdown.
func (r *Router) stop() (string, bool) {
	if r.onStop == nil {
		return "stop not wired", true
	}
	r.onStop()
	return "shutdown initiated", false
}

func formatAnalysis(tf marketdata.Timeframe, a *domain.Analysis) string {
	sig := a.TradingSignals
	return fmt.Sprintf("%s: phase=%s sentiment=%s risk=%s confidence=%.1f trend_strength=%.1f signal=%s entry=%.2f sl=%.2f tp1=%.2f lev=%d size_pct=%.1f auto=%v",
		tf, a.MarketPhase, a.OverallSentiment, a.RiskLevel, a.Confidence, a.TrendStrength,
		sig.PositionSuggestion, sig.EntryPrice, sig.StopLoss, sig.TakeProfit1, sig.Leverage, sig.PositionSizePct, sig.AutoTradingEnabled)
}

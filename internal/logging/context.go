package logging

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	loggerKey  contextKey = "logger"
	traceIDKey contextKey = "trace_id"
)

// GenerateTraceID generates a new trace ID that threads one analysis or
// execution pass's logs across the pipeline (advisor, reconciler,
// executor, notifier).
func GenerateTraceID() string {
	return uuid.New().String()
}

// FromContext retrieves the logger from context.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	return Default()
}

// NewContext creates a new context with the logger.
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// WithTraceContext adds a trace ID to the context and returns a logger with it.
func WithTraceContext(ctx context.Context) (context.Context, *Logger) {
	traceID := GenerateTraceID()
	l := Default().WithTraceID(traceID)
	newCtx := context.WithValue(ctx, traceIDKey, traceID)
	newCtx = context.WithValue(newCtx, loggerKey, l)
	return newCtx, l
}

// TimeframeContext creates a logger context for one timeframe's
// analysis pass (pull -> prompt -> validate -> store).
func TimeframeContext(timeframe, symbol string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"timeframe": timeframe,
		"symbol":    symbol,
	}).WithComponent("analysis")
}

// SignalContext creates a logger context for a trading signal the policy
// gate is about to evaluate.
func SignalContext(symbol, side string, confidence float64) *Logger {
	return Default().WithFields(map[string]interface{}{
		"symbol":     symbol,
		"side":       side,
		"confidence": confidence,
	}).WithComponent("signal")
}

// PlanContext creates a logger context for one reconciler Plan as it
// moves through the executor.
func PlanContext(symbol string, actionCount int) *Logger {
	return Default().WithFields(map[string]interface{}{
		"symbol":       symbol,
		"action_count": actionCount,
	}).WithComponent("plan")
}

// OrderContext creates a logger context for a single order action.
func OrderContext(orderID int64, symbol, side, orderType string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"order_id":   orderID,
		"symbol":     symbol,
		"side":       side,
		"order_type": orderType,
	}).WithComponent("order")
}

// PositionContext creates a logger context for position reconciliation.
func PositionContext(symbol, side string, entryPrice, quantity float64) *Logger {
	return Default().WithFields(map[string]interface{}{
		"symbol":      symbol,
		"side":        side,
		"entry_price": entryPrice,
		"quantity":    quantity,
	}).WithComponent("position")
}

// NotificationContext creates a logger context for an outbound chat
// channel delivery.
func NotificationContext(channel, role string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"channel": channel,
		"role":    role,
	}).WithComponent("notifier")
}

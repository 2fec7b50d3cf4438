package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"btcfutures-agent/internal/domain"
	"btcfutures-agent/internal/events"
	"btcfutures-agent/internal/logging"
	"btcfutures-agent/internal/marketdata"
)

// ErrAdvisorRejected is returned when the model's reply still fails
// validation after one re-prompt. The trigger is rejected rather than
// looping on re-prompts indefinitely.
var ErrAdvisorRejected = errors.New("advisor: reply rejected after re-prompt")

// TransientAdvisorError wraps a call that timed out or failed to reach
// the provider; the Gateway itself retries once before surfacing this.
type TransientAdvisorError struct {
	Err error
}

func (e *TransientAdvisorError) Error() string { return "transient advisor error: " + e.Err.Error() }
func (e *TransientAdvisorError) Unwrap() error  { return e.Err }

var codeBlockPattern = regexp.MustCompile("(?s)^```(?:json)?\\s*\\n?(.*?)\\n?```$")

// stripMarkdownCodeBlock removes a wrapping ```json ... ``` fence, which
// providers sometimes add even when told not to.
func stripMarkdownCodeBlock(response string) string {
	response = strings.TrimSpace(response)
	if matches := codeBlockPattern.FindStringSubmatch(response); len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}
	return response
}

// completer is the subset of Transport the Gateway calls; it exists so
// tests can substitute a fake without making HTTP calls.
type completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Gateway owns the Transport, assembles
// prompts, and turns a raw completion into a validated domain.Analysis.
type Gateway struct {
	transport completer
	bus       *events.Bus
	log       *logging.Logger
	deadline  time.Duration
}

// NewGateway wires a Transport to the event bus. deadline is the
// per-call budget; 0 selects the 60s default.
func NewGateway(transport completer, bus *events.Bus, log *logging.Logger, deadline time.Duration) *Gateway {
	if deadline <= 0 {
		deadline = 60 * time.Second
	}
	if log == nil {
		log = logging.Default()
	}
	return &Gateway{transport: transport, bus: bus, log: log.WithComponent("advisor"), deadline: deadline}
}

// AnalyzeTimeframe runs one pull->prompt->complete->validate pass for a
// single timeframe snapshot.
func (g *Gateway) AnalyzeTimeframe(ctx context.Context, traceID, symbol string, tf marketdata.Timeframe, snap *marketdata.Snapshot) (*domain.Analysis, error) {
	prompt := BuildTimeframePrompt(symbol, tf, snap)
	return g.run(ctx, traceID, string(tf), prompt)
}

// AnalyzeFinal runs the combined pass over the four latest per-timeframe
// analyses. Callers check that all four snapshots are present before
// calling this; the freshness gate (internal/store.PutFinal) is applied
// to the result afterwards.
func (g *Gateway) AnalyzeFinal(ctx context.Context, traceID, symbol string, snapshots []*domain.Analysis) (*domain.Analysis, error) {
	prompt := BuildFinalPrompt(symbol, snapshots)
	return g.run(ctx, traceID, string(marketdata.TFFinal), prompt)
}

// run executes the complete/parse/validate sequence, re-prompting once on
// a validation failure and retrying once on a transient transport error.
func (g *Gateway) run(ctx context.Context, traceID, timeframe, userPrompt string) (*domain.Analysis, error) {
	log := g.log.WithTraceID(traceID).WithField("timeframe", timeframe)
	g.bus.PublishAnalysisStarted(traceID, timeframe)

	raw, callErr := g.completeWithRetry(ctx, systemPrompt, userPrompt)
	if callErr != nil {
		g.bus.PublishAnalysisFailed(traceID, timeframe, callErr.Error())
		return nil, callErr
	}

	analysis, verr := g.parseAndValidate(raw)
	if verr == nil {
		g.bus.PublishAnalysisCompleted(traceID, timeframe, analysis.Confidence, analysis.TrendStrength)
		analysis.SourceTimeframe = timeframe
		analysis.GeneratedAt = time.Now().UnixMilli()
		return analysis, nil
	}

	log.Warn("advisor reply failed validation, re-prompting once", "error", verr.Error())
	retryPrompt := userPrompt + "\n\nYour previous reply was rejected: " + verr.Error() + "\nReturn a corrected JSON object only."
	raw2, callErr2 := g.completeWithRetry(ctx, systemPrompt, retryPrompt)
	if callErr2 != nil {
		g.bus.PublishAnalysisFailed(traceID, timeframe, callErr2.Error())
		return nil, callErr2
	}

	analysis2, verr2 := g.parseAndValidate(raw2)
	if verr2 != nil {
		g.bus.PublishAnalysisFailed(traceID, timeframe, ErrAdvisorRejected.Error())
		return nil, fmt.Errorf("%w: %s", ErrAdvisorRejected, verr2.Error())
	}

	g.bus.PublishAnalysisCompleted(traceID, timeframe, analysis2.Confidence, analysis2.TrendStrength)
	analysis2.SourceTimeframe = timeframe
	analysis2.GeneratedAt = time.Now().UnixMilli()
	return analysis2, nil
}

// completeWithRetry calls Transport.Complete under g.deadline, retrying
// once on a context deadline/transport failure before giving up.
func (g *Gateway) completeWithRetry(ctx context.Context, sys, user string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, g.deadline)
		reply, err := g.transport.Complete(callCtx, sys, user)
		cancel()
		if err == nil {
			return reply, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		g.log.Warn("advisor call failed, retrying once", "attempt", attempt+1, "error", err.Error())
	}
	return "", &TransientAdvisorError{Err: lastErr}
}

func (g *Gateway) parseAndValidate(reply string) (*domain.Analysis, error) {
	stripped := stripMarkdownCodeBlock(reply)
	var top, sig map[string]json.RawMessage
	if err := json.Unmarshal([]byte(stripped), &top); err != nil {
		return nil, fmt.Errorf("reply is not valid JSON: %w", err)
	}
	_ = json.Unmarshal(top["trading_signals"], &sig)
	for _, k := range []string{"market_phase", "overall_sentiment", "risk_level", "confidence", "trend_strength", "trading_signals"} {
		if _, ok := top[k]; !ok {
			return nil, fmt.Errorf("reply is missing required field %q", k)
		}
	}
	for _, k := range []string{"position_suggestion", "leverage", "position_size_pct", "auto_trading_enabled"} {
		if _, ok := sig[k]; !ok {
			return nil, fmt.Errorf("reply is missing required field trading_signals.%s", k)
		}
	}
	var raw rawAnalysis
	if err := json.Unmarshal([]byte(stripped), &raw); err != nil {
		return nil, fmt.Errorf("reply is not valid JSON: %w", err)
	}
	if err := validate(&raw); err != nil {
		return nil, err
	}
	return toDomainAnalysis(&raw, "", 0), nil
}

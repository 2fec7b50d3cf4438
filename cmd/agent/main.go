package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"btcfutures-agent/config"
	"btcfutures-agent/internal/advisor"
	"btcfutures-agent/internal/chatbot"
	"btcfutures-agent/internal/domain"
	"btcfutures-agent/internal/events"
	"btcfutures-agent/internal/exchange"
	"btcfutures-agent/internal/executor"
	"btcfutures-agent/internal/logging"
	"btcfutures-agent/internal/marketdata"
	"btcfutures-agent/internal/notifier"
	"btcfutures-agent/internal/policy"
	"btcfutures-agent/internal/reconciler"
	"btcfutures-agent/internal/scheduler"
	"btcfutures-agent/internal/store"
)

const exitConfigFailure = 1
const exitExchangeAuthFailure = 2

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("config load failed: %v", err)
		os.Exit(exitConfigFailure)
	}

	logger := logging.New(&logging.Config{
		Level:       cfg.Logging.Level,
		Output:      cfg.Logging.Output,
		JSONFormat:  cfg.Logging.JSONFormat,
		IncludeFile: cfg.Logging.IncludeFile,
		Component:   "main",
	})
	logging.SetDefault(logger)
	logger.Info("starting btcfutures-agent", "symbol", cfg.Symbol, "timezone", cfg.Timezone)

	bus := events.NewBus()

	var client exchange.Client
	if cfg.Exchange.MockMode {
		price := 50000.0
		client = exchange.NewMockClient(10000, func() float64 { return price })
		logger.Info("exchange client: mock mode")
	} else {
		client = exchange.NewRESTClient(cfg.Exchange.APIKey, cfg.Exchange.SecretKey, cfg.Exchange.Testnet)
		if _, err := client.GetBalance(context.Background()); err != nil {
			logger.Error("exchange auth check failed", "error", err.Error())
			os.Exit(exitExchangeAuthFailure)
		}
		logger.Info("exchange client: REST", "testnet", cfg.Exchange.Testnet)
	}

	st, err := store.New(cfg.DataDir, logger)
	if err != nil {
		logger.Error("store init failed", "error", err.Error())
		os.Exit(exitConfigFailure)
	}

	adapter := marketdata.NewAdapter(client, logger)

	transport := advisor.NewTransport(advisor.TransportConfig{
		Provider:    advisor.Provider(cfg.Advisor.Provider),
		APIKey:      cfg.Advisor.APIKey,
		Model:       cfg.Advisor.Model,
		MaxTokens:   cfg.Advisor.MaxTokens,
		Temperature: cfg.Advisor.Temperature,
	})
	gateway := advisor.NewGateway(transport, bus, logger, 60*time.Second)

	gate := policy.NewGate(policy.Config{
		MinConfidence:    cfg.Policy.MinConfidence,
		MinTrendStrength: cfg.Policy.MinTrendStrength,
		MaxDailyTrades:   cfg.Policy.MaxDailyTrades,
		Cooldown:         time.Duration(cfg.Policy.CooldownMinutes) * time.Minute,
		MaxLossPct:       cfg.Policy.MaxLossPct,
		Location:         cfg.Location(),
		LeverageCap: map[domain.RiskLevel]int{
			domain.RiskHigh:   cfg.Policy.LeverageCapHigh,
			domain.RiskMedium: cfg.Policy.LeverageCapMedium,
			domain.RiskLow:    cfg.Policy.LeverageCapLow,
		},
		SizePctCap: map[domain.RiskLevel]float64{
			domain.RiskHigh:   cfg.Policy.SizeCapHigh,
			domain.RiskMedium: cfg.Policy.SizeCapMedium,
			domain.RiskLow:    cfg.Policy.SizeCapLow,
		},
	})

	recon := reconciler.New(reconciler.Config{
		StepSize:    cfg.Instrument.StepSize,
		MinNotional: cfg.Instrument.MinNotional,
	})

	exec := executor.New(client, cfg.Symbol, bus, logger)

	notifyManager := notifier.NewManager(bus)
	if cfg.Notifier.TelegramEnabled {
		t := notifier.NewTelegramTransport(notifier.TelegramConfig{
			BotToken: cfg.Notifier.TelegramBotToken,
			ChatID:   cfg.Notifier.TelegramChatID,
			Enabled:  cfg.Notifier.TelegramEnabled,
		})
		notifyManager.Register(notifier.NewChannel("telegram", notifier.RoleNotifyOnly, t, cfg.Notifier.RateLimitPerMinute, bus, logger))
		logger.Info("telegram channel registered")
	}
	if cfg.Notifier.DiscordEnabled {
		d := notifier.NewDiscordTransport(notifier.DiscordConfig{
			WebhookURL: cfg.Notifier.DiscordWebhookURL,
			Enabled:    cfg.Notifier.DiscordEnabled,
		})
		notifyManager.Register(notifier.NewChannel("discord", notifier.RoleNotifyOnly, d, cfg.Notifier.RateLimitPerMinute, bus, logger))
		logger.Info("discord channel registered")
	}

	// runFinal runs the gate -> reconcile -> execute stage once a "final"
	// Analysis exists; both the 4h scheduler tick and the manual /trade
	// command drive it. Every reconciled-and-executed signal is appended
	// to the permanent trade history regardless of outcome.
	runFinal := func(ctx context.Context, trigger domain.TriggerKind) (string, error) {
		final, err := st.Get(marketdata.TFFinal)
		if err != nil {
			return "", fmt.Errorf("read final analysis: %w", err)
		}
		if final == nil {
			return "no final analysis recorded yet", nil
		}

		traceID := logging.GenerateTraceID()
		tlog := logger.WithTraceID(traceID)

		decision := gate.Evaluate(final, time.Now())
		if !decision.Admissible {
			bus.PublishSignalRejected(traceID, decision.Reason)
			tlog.Info("signal rejected by policy", "reason", decision.Reason)
			return fmt.Sprintf("rejected: %s", decision.Reason), nil
		}

		pos, err := client.GetPosition(ctx, cfg.Symbol)
		if err != nil {
			return "", fmt.Errorf("fetch position: %w", err)
		}
		equity, err := client.GetBalance(ctx)
		if err != nil {
			return "", fmt.Errorf("fetch balance: %w", err)
		}

		plan := recon.Reconcile(decision.Signal, pos, equity)
		if len(plan) == 0 {
			return "no action: plan empty", nil
		}
		bus.PublishPlanProduced(traceID, len(plan))

		outcomes := exec.Execute(ctx, traceID, plan)
		gate.RecordExecution(time.Now())

		if err := st.AppendTrade(domain.TradeRecord{
			Timestamp: time.Now(),
			Trigger:   trigger,
			Signal:    decision.Signal,
			Plan:      plan,
			Outcomes:  outcomes,
		}); err != nil {
			tlog.Error("trade history append failed", "error", err.Error())
		}

		ok := 0
		for _, o := range outcomes {
			if o.Succeeded {
				ok++
			}
		}
		return fmt.Sprintf("executed %d/%d actions", ok, len(outcomes)), nil
	}

	handler := func(ctx context.Context, traceID string, tf marketdata.Timeframe, scheduledAt time.Time) error {
		hlog := logger.WithTraceID(traceID)
		snap, err := adapter.Pull(ctx, cfg.Symbol, tf)
		if err != nil {
			bus.PublishAnalysisFailed(traceID, string(tf), err.Error())
			hlog.Error("pull failed", "timeframe", tf, "error", err.Error())
			return err
		}
		// the gateway publishes the started/completed/failed events itself
		a, err := gateway.AnalyzeTimeframe(ctx, traceID, cfg.Symbol, tf, snap)
		if err != nil {
			hlog.Error("analysis failed", "timeframe", tf, "error", err.Error())
			return err
		}
		if err := st.Put(tf, *a); err != nil {
			hlog.Error("store put failed", "timeframe", tf, "error", err.Error())
			return err
		}
		return nil
	}

	final := func(ctx context.Context, traceID string) {
		flog := logger.WithTraceID(traceID)
		snaps, err := st.LatestFour()
		if err != nil {
			flog.Error("latest four read failed", "error", err.Error())
			return
		}
		for _, s := range snaps {
			if s == nil {
				flog.Warn("combined pass skipped, not all four timeframe snapshots present")
				return
			}
		}
		a, err := gateway.AnalyzeFinal(ctx, traceID, cfg.Symbol, snaps)
		if err != nil {
			flog.Error("final analysis failed", "error", err.Error())
			return
		}
		ok, err := st.PutFinal(*a)
		if err != nil {
			flog.Error("final store put failed", "error", err.Error())
			return
		}
		if !ok {
			flog.Warn("final snapshot stale, not superseding previous final")
			return
		}
		if reply, err := runFinal(ctx, domain.TriggerAuto); err != nil {
			flog.Error("final trading pipeline failed", "error", err.Error())
		} else {
			flog.Info("final trading pipeline complete", "result", reply)
		}
	}

	sched := scheduler.New(scheduler.Config{
		Location:  cfg.Location(),
		Enable15m: false,
	}, handler, final, bus, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	router := chatbot.NewRouter(cfg.Symbol, sched, st, client, adapter,
		func(ctx context.Context) (string, error) { return runFinal(ctx, domain.TriggerManual) },
		func() {
			select {
			case sigCh <- syscall.SIGTERM:
			default:
			}
		},
	)
	hub := chatbot.NewHub(router, logger)
	notifyManager.Register(notifier.NewChannel("chatbot", notifier.RoleAdmin, hub, cfg.Notifier.RateLimitPerMinute, bus, logger))

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeHTTP)
	httpServer := &http.Server{Addr: ":8089", Handler: mux}
	go func() {
		logger.Info("chat-bot websocket listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "error", err.Error())
		}
	}()

	ctx, cancelRun := context.WithCancel(context.Background())
	go sched.Run(ctx)

	notifyCtx, cancelNotify := context.WithCancel(context.Background())
	go notifyManager.Start(notifyCtx)

	<-sigCh

	logger.Info("shutdown signal received, draining")
	sched.Stop()
	cancelRun()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown error", "error", err.Error())
	}
	cancelNotify()

	logger.Info("shutdown complete")
}

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"quantdinger/internal/broker"
	"quantdinger/internal/config"
	"quantdinger/internal/engine"
	"quantdinger/internal/httpapi"
	"quantdinger/internal/notify"
	"quantdinger/internal/store"
	"quantdinger/internal/util"
)

func main() {
	// A .env file is optional; environment wins over config either way.
	_ = godotenv.Load()

	cfgPath := "config/quantdinger.yaml"
	if p := os.Getenv("QUANTDINGER_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	st, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("opening order store: %v", err)
	}
	defer st.Close()

	gw, err := buildGateway(cfg)
	if err != nil {
		log.Fatalf("building gateway: %v", err)
	}
	session := broker.NewSession(gw, logger)

	hub := httpapi.NewHub(logger)
	notifier := notify.Multi{
		hub,
		notify.NewWebhookNotifier(cfg.Notify.WebhookURL, logger),
	}

	maxDailyLoss := decimal.Zero
	if cfg.Trading.MaxDailyLoss != "" {
		maxDailyLoss, err = decimal.NewFromString(cfg.Trading.MaxDailyLoss)
		if err != nil {
			log.Fatalf("parsing trading.max_daily_loss: %v", err)
		}
	}

	worker := engine.NewExecutionWorker(st, session, notifier, engine.WorkerConfig{
		PollInterval:    cfg.Trading.PollInterval.Std(),
		MaxAttempts:     cfg.Trading.MaxAttempts,
		BackoffBase:     cfg.Trading.BackoffBase.Std(),
		BackoffCap:      cfg.Trading.BackoffCap.Std(),
		MarketHoursOnly: cfg.Trading.MarketHoursOnly,
	}, logger)
	risk := engine.NewRiskManager(cfg.Trading.MaxOrderQty, maxDailyLoss, st)
	eng := engine.NewEngine(st, session, worker, risk, logger)

	var archive *store.TradeArchive
	if cfg.Storage.DataDir != "" {
		archive = store.NewTradeArchive(cfg.Storage.DataDir)
	}

	api := httpapi.NewServer(eng, archive, hub, logger)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: api.Handler(),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	if cfg.Gateway.AutoReconnect {
		if err := eng.ResumeConnection(ctx); err != nil {
			logger.Warn("resuming broker connection", "error", err)
		}
	}

	if archive != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			archiveLoop(ctx, st, archive, logger)
		}()
	}

	go func() {
		logger.Info("trader API listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down trader")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	hub.Close()
	wg.Wait()
}

// buildGateway constructs the broker gateway selected by configuration.
func buildGateway(cfg *config.Config) (broker.Gateway, error) {
	switch cfg.Gateway.Kind {
	case "", "simulator":
		return broker.NewSimulatorGateway(), nil
	case "alpaca":
		if cfg.Alpaca.APIKey == "" || cfg.Alpaca.APISecret == "" {
			return nil, fmt.Errorf("alpaca gateway requires api_key and api_secret")
		}
		return broker.NewAlpacaGateway(
			cfg.Alpaca.APIKey,
			cfg.Alpaca.APISecret,
			cfg.Alpaca.BaseURL,
			cfg.Alpaca.DataURL,
		), nil
	default:
		return nil, fmt.Errorf("unknown gateway kind %q", cfg.Gateway.Kind)
	}
}

// archiveLoop writes the previous day's trades to the parquet archive
// shortly after each UTC midnight.
func archiveLoop(ctx context.Context, st *store.SQLiteStore, archive *store.TradeArchive, logger *slog.Logger) {
	for {
		now := time.Now().UTC()
		next := time.Date(now.Year(), now.Month(), now.Day(), 0, 10, 0, 0, time.UTC).AddDate(0, 0, 1)
		select {
		case <-ctx.Done():
			return
		case <-time.After(next.Sub(now)):
		}

		date := time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
		trades, err := st.ListTradesForDay(ctx, date)
		if err != nil {
			logger.Error("listing trades for archive", "date", date, "error", err)
			continue
		}
		if len(trades) == 0 {
			continue
		}
		path, err := archive.Archive(ctx, date, trades)
		if err != nil {
			logger.Error("archiving trades", "date", date, "error", err)
			continue
		}
		logger.Info("trades archived", "date", date, "count", len(trades), "path", path)
	}
}

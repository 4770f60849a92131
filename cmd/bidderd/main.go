package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/adxyz/bidder/pkg/api"
	"github.com/adxyz/bidder/pkg/bidding"
	"github.com/adxyz/bidder/pkg/budget"
	"github.com/adxyz/bidder/pkg/config"
	"github.com/adxyz/bidder/pkg/log"
	"github.com/adxyz/bidder/pkg/metric"
	"github.com/adxyz/bidder/pkg/store"
	"github.com/adxyz/bidder/pkg/strategy"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML config file")
		port       = flag.Int("port", 0, "API listen port (overrides config)")
		opsPort    = flag.Int("ops-port", 0, "metrics/health listen port (overrides config)")
		dataDir    = flag.String("data-dir", "", "badger data directory (overrides config)")
		logLevel   = flag.String("log-level", "", "log level: debug, info, warn, error")
	)
	flag.Parse()

	// Local overrides from .env, ignored when absent
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *opsPort != 0 {
		cfg.Server.OpsPort = *opsPort
	}
	if *dataDir != "" {
		cfg.Store.Path = *dataDir
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	logger := log.NewWithLevel(cfg.Environment, cfg.Log.Level)
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("bidder daemon failed", "error", err)
	}
}

func run(cfg *config.Config, logger log.Logger) error {
	metrics := metric.NewMetrics()

	st, err := openStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	strategies := strategy.NewController(st, logger, metrics)
	budgets := budget.NewManager(st, logger)
	decisions := bidding.NewDecisionLog(st, cfg.Bidding.DecisionBuffer, logger, metrics)
	cache := bidding.NewRefresher(st, cfg.CacheTTL(), logger, metrics)

	engine := bidding.NewEngine(st, cache, budgets, strategies, decisions, logger, metrics, bidding.Params{
		Platforms:     cfg.Bidding.Platforms,
		MaxFloorPrice: decimal.NewFromFloat(cfg.Bidding.MaxFloorPrice),
		SLAWarn:       cfg.SLAWarn(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cache.Refresh(ctx); err != nil {
		logger.Warn("initial campaign cache refresh failed, serving empty snapshot",
			"error", err)
	}
	go cache.Run(ctx)

	hub := api.NewHub(logger, metrics)
	decisions.OnDecision(hub.Broadcast)

	server := api.NewServer(engine, hub, cfg.Environment, logger)
	apiSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	opsSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.OpsPort),
		Handler:           opsHandler(metrics),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("bid API listening", "addr", apiSrv.Addr)
		if err := apiSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()
	go func() {
		logger.Info("ops server listening", "addr", opsSrv.Addr)
		if err := opsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("ops server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api server shutdown", "error", err)
	}
	if err := opsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("ops server shutdown", "error", err)
	}

	hub.Close()
	engine.Close()
	logger.Info("bidder daemon stopped")
	return nil
}

func openStore(cfg *config.Config, logger log.Logger) (store.Store, error) {
	switch cfg.Store.Backend {
	case "badger":
		logger.Info("using badger store", "path", cfg.Store.Path)
		return store.NewBadgerStore(cfg.Store.Path)
	default:
		logger.Info("using in-memory store")
		return store.NewMemStore(), nil
	}
}

func opsHandler(metrics *metric.Metrics) http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Gatherer(), promhttp.HandlerOpts{}))
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	return r
}

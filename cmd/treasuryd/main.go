// treasuryd runs the treasury's permissionless maintenance loop against a
// host ledger node: on a cron schedule it rebalances each configured
// (project, pairing) position and collects its fees, exposing Prometheus
// metrics while it does. The trusted accept-transfer path stays on the
// ledger side; this daemon is merely one of the arbitrary callers the
// maintenance entry points are designed for.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"github.com/defistate/liquidity-treasury-go/external/jsonrpc"
	"github.com/defistate/liquidity-treasury-go/hook"
	"github.com/defistate/liquidity-treasury-go/position"
	"github.com/defistate/liquidity-treasury-go/store"
)

func main() {
	cfgPath := "configs/treasuryd.yaml"
	if v := os.Getenv("TREASURYD_CONFIG"); v != "" {
		cfgPath = v
	}
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.validate(); err != nil {
		slog.Error("config validation", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.slogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := jsonrpc.Dial(ctx, jsonrpc.Config{URL: cfg.Ledger.URL, Logger: logger})
	if err != nil {
		logger.Error("connect to host ledger", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	var st store.Store
	if cfg.Database.SQLitePath != "" {
		sq, err := store.NewSQLite(cfg.Database.SQLitePath)
		if err != nil {
			logger.Error("open sqlite store", "path", cfg.Database.SQLitePath, "error", err)
			os.Exit(1)
		}
		defer sq.Close()
		st = sq
		logger.Info("using sqlite store", "path", cfg.Database.SQLitePath)
	} else {
		st = store.NewMemory()
		logger.Warn("no sqlite path configured, state will not survive a restart")
	}

	registry := prometheus.NewRegistry()
	h, err := hook.New(hook.Config{
		Registry:          client,
		Ledger:            client,
		Operators:         client,
		Venue:             client,
		Store:             st,
		FeeProject:        cfg.Fee.Project,
		FeeBps:            cfg.Fee.Bps,
		FeeTier:           cfg.Fee.Tier,
		FallbackBandWidth: cfg.Position.FallbackBandWidth,
		Logger:            logger,
		Metrics:           registry,
	})
	if err != nil {
		logger.Error("assemble treasury hook", "error", err)
		os.Exit(1)
	}

	d := &daemon{cfg: cfg, client: client, hook: h, log: logger}

	sched := cron.New(cron.WithSeconds())
	if _, err := sched.AddFunc(cfg.Schedule.RebalanceCron, func() { d.rebalanceAll(ctx) }); err != nil {
		logger.Error("register rebalance schedule", "error", err)
		os.Exit(1)
	}
	if _, err := sched.AddFunc(cfg.Schedule.CollectCron, func() { d.collectAll(ctx) }); err != nil {
		logger.Error("register collect schedule", "error", err)
		os.Exit(1)
	}
	sched.Start()
	defer sched.Stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{Addr: cfg.Metrics.Listen, Handler: mux}
	go func() {
		logger.Info("metrics server listening", "addr", cfg.Metrics.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
			stop()
		}
	}()

	logger.Info("treasuryd running",
		"projects", len(cfg.Projects),
		"rebalance", cfg.Schedule.RebalanceCron,
		"collect", cfg.Schedule.CollectCron)
	<-ctx.Done()

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown", "error", err)
	}
}

type daemon struct {
	cfg    *config
	client *jsonrpc.Client
	hook   *hook.Hook
	log    *slog.Logger
}

// pairingFor resolves a project entry's pairing token, defaulting to the
// project's primary pairing token from the registry.
func (d *daemon) pairingFor(ctx context.Context, entry projectEntry) (common.Address, error) {
	if entry.Pairing != "" {
		return common.HexToAddress(entry.Pairing), nil
	}
	tokens, err := d.client.PairingTokensOf(ctx, entry.ID)
	if err != nil {
		return common.Address{}, err
	}
	if len(tokens) == 0 {
		return common.Address{}, hook.ErrNoPairingToken
	}
	return tokens[0], nil
}

// rebalanceAll walks the configured pairs. A pair that has not deployed yet
// or is still accumulating is skipped quietly; real failures are logged and
// left for the next tick, nothing is retried in between.
func (d *daemon) rebalanceAll(ctx context.Context) {
	for _, entry := range d.cfg.Projects {
		pairing, err := d.pairingFor(ctx, entry)
		if err != nil {
			d.log.Warn("resolve pairing token", "project", entry.ID, "error", err)
			continue
		}
		if _, err := d.hook.Rebalance(ctx, entry.ID, pairing); err != nil {
			if errors.Is(err, position.ErrNoPool) || errors.Is(err, position.ErrNoPosition) {
				d.log.Debug("nothing to rebalance", "project", entry.ID)
				continue
			}
			d.log.Warn("rebalance failed", "project", entry.ID, "error", err)
		}
	}
}

func (d *daemon) collectAll(ctx context.Context) {
	for _, entry := range d.cfg.Projects {
		pairing, err := d.pairingFor(ctx, entry)
		if err != nil {
			d.log.Warn("resolve pairing token", "project", entry.ID, "error", err)
			continue
		}
		if _, err := d.hook.CollectFees(ctx, entry.ID, pairing); err != nil {
			if errors.Is(err, position.ErrNoPool) ||
				errors.Is(err, position.ErrNoPosition) ||
				errors.Is(err, position.ErrStillAccumulating) {
				d.log.Debug("nothing to collect", "project", entry.ID)
				continue
			}
			d.log.Warn("collect failed", "project", entry.ID, "error", err)
		}
	}
}

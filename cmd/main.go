package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/proxyforge/proxy-rotator/config"
	"github.com/proxyforge/proxy-rotator/internal/circuitbreaker"
	"github.com/proxyforge/proxy-rotator/internal/forwarder"
	"github.com/proxyforge/proxy-rotator/internal/healthcheck"
	"github.com/proxyforge/proxy-rotator/internal/httpserver"
	"github.com/proxyforge/proxy-rotator/internal/registry"
	"github.com/proxyforge/proxy-rotator/internal/retry"
	"github.com/proxyforge/proxy-rotator/internal/rotation"
	"github.com/proxyforge/proxy-rotator/internal/stats"
	"github.com/proxyforge/proxy-rotator/internal/strategy"
	"github.com/proxyforge/proxy-rotator/pkg/logger"
)

const statsBufferSize = 1000

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := registry.New(cfg.State.File, cfg.State.BackupOnWrite, log)
	reg.Load()

	recoveryTimeout, err := time.ParseDuration(cfg.Breaker.RecoveryTimeout)
	if err != nil {
		log.Error("Invalid breaker recovery timeout", slog.Any("err", err))
		os.Exit(1)
	}
	breakers := circuitbreaker.NewRegistry(cfg.Breaker.FailureThreshold, recoveryTimeout)

	collector := stats.NewCollector(statsBufferSize, log)
	collector.Start(ctx)

	strat := createStrategy(log, cfg.Strategy.Type, collector)
	selector := rotation.NewSelector(strat, reg, breakers)

	opts, err := forwarderOptions(cfg)
	if err != nil {
		log.Error("Invalid forwarder configuration", slog.Any("err", err))
		os.Exit(1)
	}

	fwd := forwarder.NewHandler(log, selector, breakers, collector, opts)

	if cfg.State.Watch {
		watcher, err := registry.NewWatcher(reg, log)
		if err != nil {
			log.Error("Failed to create registry watcher", slog.Any("err", err))
			os.Exit(1)
		}
		go func() {
			if err := watcher.Start(ctx); err != nil {
				log.Error("Registry watcher exited", slog.Any("err", err))
			}
		}()
	}

	if cfg.HealthCheck.Enabled {
		interval, err := time.ParseDuration(cfg.HealthCheck.Interval)
		if err != nil {
			log.Error("Invalid health check interval", slog.Any("err", err))
			os.Exit(1)
		}
		go healthcheck.Probe(ctx, reg, breakers, interval, log)
	}

	srv, err := httpserver.New(cfg.Server.Address, fwd)
	if err != nil {
		log.Error("Failed to create server", slog.Any("err", err))
		os.Exit(1)
	}

	log.Info("Proxy rotator listening",
		slog.String("address", cfg.Server.Address),
		slog.String("strategy", cfg.Strategy.Type),
		slog.Int("endpoints", reg.Len()))

	srvErrCh := make(chan error, 1)

	go func() {
		srvErrCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("Error during shutdown", slog.Any("err", err))
		}
	case err := <-srvErrCh:
		if err != nil {
			log.Error("Error starting proxy rotator", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

func createStrategy(log *slog.Logger, strategyType string, rates strategy.RateSource) strategy.Strategy {
	switch strategyType {
	case "round-robin":
		return strategy.NewRoundRobinStrategy()
	case "random":
		return strategy.NewRandomStrategy()
	case "weighted":
		return strategy.NewWeightedStrategy(rates)
	default:
		log.Warn("Unknown strategy, defaulting to round-robin", slog.String("requested", strategyType))
		return strategy.NewRoundRobinStrategy()
	}
}

func forwarderOptions(cfg *config.Config) (forwarder.Options, error) {
	timeout, err := time.ParseDuration(cfg.Proxy.RequestTimeout)
	if err != nil {
		return forwarder.Options{}, err
	}

	opts := forwarder.Options{
		Timeout:      timeout,
		PoolSize:     cfg.Proxy.PoolSize,
		RetryEnabled: cfg.Proxy.Retry.Enabled,
	}

	if cfg.Proxy.Retry.Enabled {
		baseDelay, err := time.ParseDuration(cfg.Proxy.Retry.BaseDelay)
		if err != nil {
			return forwarder.Options{}, err
		}
		maxDelay, err := time.ParseDuration(cfg.Proxy.Retry.MaxDelay)
		if err != nil {
			return forwarder.Options{}, err
		}
		opts.RetryPolicy = retry.Policy{
			MaxAttempts: cfg.Proxy.Retry.MaxAttempts,
			BaseDelay:   baseDelay,
			MaxDelay:    maxDelay,
			Jitter:      cfg.Proxy.Retry.Jitter,
		}
	}

	return opts, nil
}

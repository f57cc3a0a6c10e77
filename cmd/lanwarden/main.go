package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/HerbHall/lanwarden/internal/config"
	"github.com/HerbHall/lanwarden/internal/fleet"
	"github.com/HerbHall/lanwarden/internal/probe"
	"github.com/HerbHall/lanwarden/internal/server"
	"github.com/HerbHall/lanwarden/internal/version"
	"github.com/HerbHall/lanwarden/internal/wol"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Info())
		return
	}

	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("LanWarden starting", zap.String("version", version.Short()))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	devices, err := config.LoadDevices(cfg.DevicesFile)
	if err != nil {
		logger.Fatal("failed to load device inventory", zap.Error(err))
	}
	if len(devices) == 0 {
		logger.Warn("device inventory is empty, nothing to monitor",
			zap.String("file", cfg.DevicesFile))
	}

	registry := prometheus.NewRegistry()
	metrics := fleet.NewMetrics(registry)

	prober := fleet.NewDeviceProber(
		probe.NewICMPPinger(cfg.PingTimeout, 1),
		probe.NewChainResolver(logger),
		probe.DNSResolver{},
		probe.NewSSHCollector(cfg.SSHTimeout, logger),
		probe.NewGNS3Prober(cfg.GNS3Timeout, logger),
		fleet.ProbeTimeouts{
			Ping:     cfg.PingTimeout,
			Neighbor: cfg.PingTimeout,
			SSH:      cfg.SSHTimeout,
			GNS3:     cfg.GNS3Timeout,
		},
		metrics,
		logger,
	)

	store := fleet.NewStateStore(fleet.SeedSnapshot(devices, cfg.ScanInterval, time.Now()))
	orchestrator := fleet.NewOrchestrator(devices, prober, store, fleet.Options{
		Interval:      cfg.ScanInterval,
		CycleTimeout:  cfg.CycleTimeout,
		MaxConcurrent: cfg.MaxConcurrent,
	}, metrics, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go orchestrator.Run(ctx)

	srv := server.New(cfg.ListenAddr, store, orchestrator, wol.NewSender(2*time.Second), registry, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	logger.Info("LanWarden ready",
		zap.String("addr", cfg.ListenAddr),
		zap.Int("devices", len(devices)),
		zap.Duration("scan_interval", cfg.ScanInterval),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}

	logger.Info("LanWarden stopped")
}

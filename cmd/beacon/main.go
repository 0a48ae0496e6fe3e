package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/crimson-sun/beacon/internal/collector"
	"github.com/crimson-sun/beacon/internal/config"
	"github.com/crimson-sun/beacon/internal/exporter"
	"github.com/crimson-sun/beacon/internal/exporter/async"
	"github.com/crimson-sun/beacon/internal/logging"
	"github.com/crimson-sun/beacon/internal/model"
	"github.com/crimson-sun/beacon/internal/monitor"
	"github.com/crimson-sun/beacon/internal/server"

	// Register exporter implementations.
	_ "github.com/crimson-sun/beacon/internal/exporter/fileexp"
	_ "github.com/crimson-sun/beacon/internal/exporter/httpexp"
	_ "github.com/crimson-sun/beacon/internal/exporter/local"
)

func main() {
	cfgPath := os.Getenv("BEACON_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logging.Init(cfg.Logging.Level, cfg.StdoutIsSink())

	clusterUUID := cfg.Cluster.UUID
	if clusterUUID == "" {
		clusterUUID = uuid.NewString()
		slog.Warn("cluster.uuid not configured, generated one for this run", "cluster", clusterUUID)
	}

	hostname, _ := os.Hostname()
	nodeName := cfg.Node.Name
	if nodeName == "" {
		nodeName = hostname
	}
	node := model.Node{UUID: uuid.NewString(), Name: nodeName, Host: hostname}

	col := collector.New(clusterUUID, node)

	exps, err := exporter.Build(cfg.ExporterConfigs())
	if err != nil {
		log.Fatalf("failed to build exporters: %v", err)
	}
	set := exporter.NewExporters(exps...)
	defer set.Close()

	sub := async.New(set, async.WithDropOnFull())
	defer sub.Close()

	srv := server.New(col, set)
	mon := monitor.New(col, collector.NewStatsSource(), sub,
		cfg.Collection.Interval.Std(),
		cfg.Collection.BufferWindow.Std(),
		cfg.Collection.BufferSize)

	// Set up graceful shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(os.Stderr, "\nreceived %v, shutting down...\n", sig)
		cancel()
	}()

	// Rebuild the exporter set when the config file changes.
	if cfgPath != "" {
		w, err := config.NewWatcher(cfgPath, func(next config.Config) {
			rebuilt, err := exporter.Build(next.ExporterConfigs())
			if err != nil {
				slog.Warn("exporter rebuild failed, keeping previous set", "error", err)
				return
			}
			set.Reload(rebuilt)
			slog.Info("exporters reloaded", "exporters", set.Names())
		})
		if err != nil {
			log.Fatalf("failed to watch config: %v", err)
		}
		defer w.Close()
	}

	slog.Info("beacon starting",
		"cluster", clusterUUID, "node", node.Name, "exporters", set.Names())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(ctx, cfg.Server.Addr,
			cfg.Server.ReadTimeout.Std(),
			cfg.Server.WriteTimeout.Std(),
			cfg.Server.ShutdownTimeout.Std())
	})
	g.Go(func() error {
		return mon.Run(ctx)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Fatalf("beacon: %v", err)
	}
}

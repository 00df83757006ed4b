// feedwatch runs one resilient connection per configured disaster feed
// and logs every routed message to the console.
// Usage: go run ./cmd/feedwatch --config configs/feedwatch.example.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Epic-SX/Disaster-info-System-sub000/internal/config"
	"github.com/Epic-SX/Disaster-info-System-sub000/internal/feed"
	"github.com/Epic-SX/Disaster-info-System-sub000/internal/metrics"
	"github.com/Epic-SX/Disaster-info-System-sub000/internal/router"
	"github.com/Epic-SX/Disaster-info-System-sub000/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/feedwatch.example.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "print message payloads")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	met := metrics.New()

	managers := make([]*feed.Manager, 0, len(cfg.Feeds))
	for _, fc := range cfg.Feeds {
		if fc.Disabled {
			logger.Info("feed disabled in config, skipping", "feed", fc.Name)
			continue
		}

		mgr, err := feed.NewManager(feed.Options{
			Name:             fc.Name,
			Endpoints:        fc.Endpoints,
			PollURL:          fc.PollURL,
			ConnectTimeout:   cfg.Connection.ConnectTimeout,
			EndpointDelay:    cfg.Connection.EndpointDelay,
			CycleDelay:       cfg.Connection.CycleDelay,
			PollInterval:     cfg.Connection.PollInterval,
			PollTimeout:      cfg.Connection.PollTimeout,
			BreakerThreshold: cfg.Connection.BreakerThreshold,
			Logger:           logger,
			Metrics:          met,
		})
		if err != nil {
			logger.Error("failed to create feed manager", "feed", fc.Name, "error", err)
			os.Exit(1)
		}

		name := fc.Name
		mgr.OnMessage(func(msg router.Message) {
			if *verbose {
				logger.Info("message",
					"feed", name,
					"type", msg.Type,
					"timestamp", msg.Timestamp,
					"payload", string(msg.Data),
				)
				return
			}
			logger.Info("message", "feed", name, "type", msg.Type)
		})

		managers = append(managers, mgr)
	}

	logger.Info("feedwatch starting",
		"version", version.String(),
		"instance", cfg.Instance.ID,
		"feeds", len(managers),
	)

	for _, mgr := range managers {
		mgr.Connect()
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, metrics.Handler())
	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: mux,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("metrics server listening",
			"port", cfg.Metrics.Port,
			"path", cfg.Metrics.Path,
		)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		metricsSrv.Shutdown(shutdownCtx)

		for _, mgr := range managers {
			mgr.Disconnect()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("feedwatch exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("feedwatch stopped")
}

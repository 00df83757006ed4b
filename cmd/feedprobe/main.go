// feedprobe attempts every configured endpoint once and reports
// per-endpoint reachability. Diagnostics only; it runs independently of
// any live feedwatch process.
// Usage: go run ./cmd/feedprobe --config configs/feedwatch.example.yaml [--feed earthquake]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Epic-SX/Disaster-info-System-sub000/internal/config"
	"github.com/Epic-SX/Disaster-info-System-sub000/internal/probe"
)

func main() {
	configPath := flag.String("config", "configs/feedwatch.example.yaml", "path to config file")
	feedName := flag.String("feed", "", "probe only the named feed")
	timeout := flag.Duration("timeout", probe.DefaultTimeout, "per-endpoint timeout")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	p := probe.New(logger, probe.WithTimeout(*timeout))
	ctx := context.Background()

	anySuccess := false
	probed := 0

	for _, fc := range cfg.Feeds {
		if *feedName != "" && fc.Name != *feedName {
			continue
		}
		probed++

		fmt.Printf("feed %s:\n", fc.Name)
		for _, res := range p.TestAll(ctx, fc.Endpoints) {
			if res.Success {
				anySuccess = true
				fmt.Printf("  ok    %-60s %s\n", res.Endpoint, res.Latency.Round(time.Millisecond))
				continue
			}
			fmt.Printf("  FAIL  %-60s %v\n", res.Endpoint, res.Err)
		}
	}

	if probed == 0 {
		fmt.Fprintf(os.Stderr, "no feed named %q in config\n", *feedName)
		os.Exit(1)
	}
	if !anySuccess {
		os.Exit(1)
	}
}

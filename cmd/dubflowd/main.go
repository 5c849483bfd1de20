package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"dubflow/internal/config"
	"dubflow/internal/daemon"
	"dubflow/internal/logging"
	"dubflow/internal/preflight"
	"dubflow/internal/queue"
	"dubflow/internal/workflow"
)

func main() {
	configPath := flag.String("config", "", "configuration file path")
	skipPreflight := flag.Bool("skip-preflight", false, "start even when environment checks fail")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, path, exists, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	if exists {
		logger.Info("configuration loaded", logging.String("path", path))
	} else {
		logger.Warn("configuration file missing, using defaults", logging.String("path", path))
	}

	results := preflight.RunAll(ctx, cfg)
	for _, res := range results {
		if res.Passed {
			logger.Debug("preflight check passed", logging.String("check", res.Name))
			continue
		}
		logger.Error("preflight check failed",
			logging.String("check", res.Name),
			logging.String("detail", res.Detail))
	}
	if preflight.Failed(results) && !*skipPreflight {
		fmt.Fprintln(os.Stderr, "environment checks failed; fix the issues above or pass --skip-preflight")
		os.Exit(1)
	}

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		os.Exit(1)
	}
	defer store.Close()

	d, err := daemon.New(cfg, store, logger, workflow.NewManager(cfg, store, logger))
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		os.Exit(1)
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("start daemon", logging.Error(err))
		os.Exit(1)
	}
	if addr := d.APIAddr(); addr != "" {
		logger.Info("api listening", logging.String("addr", addr))
	}

	<-ctx.Done()
	logger.Info("dubflowd shutting down")
}

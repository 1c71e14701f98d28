package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"bussola/internal/config"
	"bussola/internal/logging"
	"bussola/internal/web"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./bussola.yaml", "Path to YAML config")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	logs := web.NewLogBuffer(2000)
	logger, err := logging.New(cfg.Log, logs)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt, err := newRuntime(cfg, logger, logs)
	if err != nil {
		logger.Errorw("startup failed", "error", err)
		os.Exit(1)
	}

	logger.Infow("bussola starting", "config", configPath, "backend", cfg.Sensor.Backend)
	runErr := rt.Run(ctx)
	if err := rt.Close(); err != nil {
		logger.Warnw("shutdown", "error", err)
	}
	if runErr != nil {
		logger.Errorw("bussola stopped", "error", runErr)
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Infow("bussola stopped")
}

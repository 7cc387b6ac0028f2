package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"

	"aiframe/config"
	"aiframe/internal/mediator"
)

func main() {

	cfg, err := config.Load("config/config.yaml", ".env")
	if err != nil {
		log.Fatal("config not loaded", "err", err)
	}

	setupLogging(cfg.Log)

	app, err := mediator.NewApp(cfg)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Start(ctx); err != nil {
		log.Fatal("frame stopped", "err", err)
	}
}

func setupLogging(cfg config.LogConfig) {
	if cfg.Level != "" {
		level, err := log.ParseLevel(cfg.Level)
		if err != nil {
			log.Warn("unknown log level, keeping info", "level", cfg.Level)
		} else {
			log.SetLevel(level)
		}
	}
	switch strings.ToLower(cfg.Formatter) {
	case "json":
		log.SetFormatter(log.JSONFormatter)
	case "logfmt":
		log.SetFormatter(log.LogfmtFormatter)
	}
	log.SetReportTimestamp(true)
}

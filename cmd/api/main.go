package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/TagLab-io/taglab/internal/api"
	"github.com/TagLab-io/taglab/internal/config"
	"github.com/TagLab-io/taglab/internal/database"
	"github.com/TagLab-io/taglab/internal/logutil"
	"github.com/TagLab-io/taglab/internal/store"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "app.yml", "Path to configuration file")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	logger := logutil.Setup("taglab-api", *logLevel)
	logger.Info().Str("version", version).Str("config", *configPath).Msg("starting taglab API")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	db, err := database.Open(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	st := store.New(db, cfg.Database.Driver, cfg.Events.MaxPerUser)

	server, err := api.New(cfg, st)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build API")
	}

	ctx, stop := signal.NotifyContext(logutil.WithLogger(context.Background(), logger), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Serve(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
}

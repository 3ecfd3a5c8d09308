package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/keshon/interactions/internal/config"
	"github.com/keshon/interactions/internal/discord"
	"github.com/keshon/interactions/internal/logging"
	"github.com/keshon/interactions/internal/modules"
	"github.com/keshon/interactions/internal/storage"
	"github.com/keshon/interactions/internal/tracing"
	"github.com/keshon/interactions/pkg/interactions"
)

const appName = "interactions-bot"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger, closeLog := logging.NewWithFile(appName, cfg.Level(), cfg.LogPretty, logging.File{
		Path:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		Compress:   true,
	})
	defer closeLog()
	logger.Info().Msg("starting discord bot")

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("discord bot error")
	}
	logger.Info().Msg("discord bot exited cleanly")
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	if err := cfg.RequireToken(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, appName, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn().Err(err).Msg("failed to flush spans")
		}
	}()

	store, err := storage.New(cfg.StoragePath, logger)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close storage")
		}
	}()

	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	transport := discord.NewTransport(session, cfg.ApplicationID, logger)

	icfg := cfg.Interactions()
	icfg.Logger = &logger
	icfg.Transport = transport
	icfg.Cache = store
	svc := interactions.New(icfg)
	if err := modules.Register(svc, cfg.OwnerID, store); err != nil {
		return fmt.Errorf("register modules: %w", err)
	}
	defer discord.RecordHistory(svc, store, logger)()

	return discord.NewBot(session, svc, transport, store, cfg, logger).Run(ctx)
}

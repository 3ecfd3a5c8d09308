package discord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/keshon/interactions/internal/config"
	"github.com/keshon/interactions/internal/storage"
	"github.com/keshon/interactions/pkg/interactions"
	"github.com/keshon/interactions/pkg/jobmgr"
	"github.com/keshon/interactions/pkg/result"
)

const shutdownTimeout = 10 * time.Second

// Bot connects a gateway session to the interaction service.
type Bot struct {
	session   *discordgo.Session
	replies   Responder
	service   *interactions.Service
	transport *Transport
	services  *Services
	cfg       *config.Config
	log       zerolog.Logger

	ctx context.Context
}

func NewBot(session *discordgo.Session, svc *interactions.Service, transport *Transport, store *storage.Storage, cfg *config.Config, logger zerolog.Logger) *Bot {
	logger = logger.With().Str("component", "bot").Logger()
	return &Bot{
		session:   session,
		replies:   session,
		service:   svc,
		transport: transport,
		services: &Services{
			Replies:  session,
			Guilds:   session,
			Storage:  store,
			Commands: svc,
			Log:      logger,
		},
		cfg: cfg,
		log: logger,
		ctx: context.Background(),
	}
}

// Run opens the gateway and serves interactions until ctx is done. Detached
// handlers get a grace period to finish.
func (b *Bot) Run(ctx context.Context) error {
	b.ctx = ctx
	b.session.Identify.Intents = discordgo.IntentsGuilds

	removeReady := b.session.AddHandler(b.onReady)
	removeInteraction := b.session.AddHandler(b.onInteractionCreate)
	defer removeReady()
	defer removeInteraction()
	stopReports := b.reportFailures()
	defer stopReports()

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	defer b.session.Close()

	<-ctx.Done()
	b.log.Info().Msg("shutdown signal received, cleaning up")

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := b.service.Jobs().Close(closeCtx); err != nil {
		b.log.Warn().Err(err).Msg("handlers still running at shutdown")
	}
	return nil
}

func (b *Bot) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	b.transport.SetApplicationID(r.User.ID)
	b.log.Info().
		Str("user", r.User.Username).
		Int("guilds", len(r.Guilds)).
		Msg("discord bot is running")

	if b.cfg.SyncOnReady {
		b.SyncCommands()
	} else {
		b.log.Info().Msg("command sync on ready is disabled")
	}
}

func (b *Bot) onInteractionCreate(_ *discordgo.Session, ic *discordgo.InteractionCreate) {
	b.service.Execute(b.ctx, ic.Interaction, b.services)
}

// SyncCommands uploads the declared commands in the background. A sync
// already in flight for the same scope is left alone.
func (b *Bot) SyncCommands() {
	scope := b.cfg.GuildID
	if scope == "" {
		scope = interactions.GlobalScope
	}
	err := b.service.Jobs().StartAsync(b.ctx, "sync:"+scope, func(ctx context.Context) error {
		report, err := b.service.SyncCommands(ctx, b.cfg.GuildID, b.cfg.DeleteMissing)
		if err != nil {
			return err
		}
		b.log.Debug().Str("scope", report.Scope).Bool("skipped", report.Skipped).Str("hash", report.Hash).Msg("sync finished")
		return nil
	})
	switch {
	case errors.Is(err, jobmgr.ErrRunning):
		b.log.Debug().Str("scope", scope).Msg("command sync already running")
	case err != nil:
		b.log.Error().Err(err).Msg("failed to start command sync")
	}
}

// reportFailures answers failed executions with an ephemeral embed.
func (b *Bot) reportFailures() (stop func()) {
	report := func(e interactions.Executed) {
		if e.Result.IsSuccess() || e.Context == nil {
			return
		}
		embed := failureEmbed(e)
		i := e.Context.Interaction
		if err := RespondEmbedEphemeral(b.ctx, b.replies, i, embed); err != nil {
			// already acknowledged by the handler
			if err := FollowupEmbedEphemeral(b.ctx, b.replies, i, embed); err != nil {
				b.log.Warn().Err(err).Str("execution", e.Context.ID.String()).Msg("failed to report command failure")
			}
		}
	}
	stops := []func(){
		b.service.SlashCommandExecuted.Subscribe(report),
		b.service.ContextCommandExecuted.Subscribe(report),
		b.service.ComponentExecuted.Subscribe(report),
	}
	return func() {
		for _, s := range stops {
			s()
		}
	}
}

func failureEmbed(e interactions.Executed) *discordgo.MessageEmbed {
	switch e.Result.Kind() {
	case result.ParseFailed, result.BadArgs:
		return &discordgo.MessageEmbed{Title: "Invalid input", Description: e.Result.Reason()}
	case result.Unsuccessful:
		return &discordgo.MessageEmbed{Title: "Not available", Description: e.Result.Reason()}
	default:
		return &discordgo.MessageEmbed{
			Title:       "Something went wrong",
			Description: fmt.Sprintf("Reference: `%s`", e.Context.ID),
		}
	}
}

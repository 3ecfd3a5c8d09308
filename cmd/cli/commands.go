package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/keshon/interactions/internal/config"
	"github.com/keshon/interactions/internal/discord"
	"github.com/keshon/interactions/internal/logging"
	"github.com/keshon/interactions/internal/modules"
	"github.com/keshon/interactions/internal/storage"
	"github.com/keshon/interactions/pkg/cmdsync"
	"github.com/keshon/interactions/pkg/interactions"
)

// app carries what the commands share. Tests replace the factories.
type app struct {
	envFiles []string
	guild    string
	logErr   io.Writer

	loadConfig   func(files ...string) (*config.Config, error)
	newTransport func(cfg *config.Config, logger zerolog.Logger) (interactions.Transport, error)
}

func newApp() *app {
	return &app{
		logErr:       os.Stderr,
		loadConfig:   config.Load,
		newTransport: sessionTransport,
	}
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "interactions",
		Short:         "Inspect and synchronize the bot's application commands",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringSliceVar(&a.envFiles, "env", nil, "Env files to load (default .env)")
	root.PersistentFlags().StringVarP(&a.guild, "guild", "g", "", "Guild to target instead of DISCORD_GUILD_ID")

	root.AddCommand(
		newPlanCommand(a),
		newSyncCommand(a),
		newRemoteCommand(a),
		newHistoryCommand(a),
	)
	return root
}

func newPlanCommand(a *app) *cobra.Command {
	var keepMissing bool
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the payload a sync would upload",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := a.setup()
			if err != nil {
				return err
			}
			var tr interactions.Transport
			if keepMissing {
				if tr, err = a.newTransport(cfg, logger); err != nil {
					return err
				}
			}
			svc, err := newService(cfg, logger, tr, nil)
			if err != nil {
				return err
			}
			payload, err := svc.DesiredCommands(cmd.Context(), a.scope(cfg), !keepMissing)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"scope":    scopeName(a.scope(cfg)),
				"hash":     cmdsync.Hash(payload),
				"commands": payload,
			})
		},
	}
	cmd.Flags().BoolVar(&keepMissing, "keep-missing", false, "Keep remote commands that are not declared")
	return cmd
}

func newSyncCommand(a *app) *cobra.Command {
	var keepMissing, force bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Overwrite the registered commands with the declared ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := a.setup()
			if err != nil {
				return err
			}
			tr, err := a.newTransport(cfg, logger)
			if err != nil {
				return err
			}
			store, err := storage.New(cfg.StoragePath, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			svc, err := newService(cfg, logger, tr, store)
			if err != nil {
				return err
			}
			var opts []interactions.SyncOption
			if force {
				opts = append(opts, interactions.Force())
			}
			report, err := svc.SyncCommands(cmd.Context(), a.scope(cfg), !keepMissing, opts...)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"scope":      report.Scope,
				"hash":       report.Hash,
				"skipped":    report.Skipped,
				"registered": len(report.Registered),
			})
		},
	}
	cmd.Flags().BoolVar(&keepMissing, "keep-missing", false, "Keep remote commands that are not declared")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Upload even if the payload did not change")
	return cmd
}

func newRemoteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remote",
		Short: "List the commands registered remotely",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := a.setup()
			if err != nil {
				return err
			}
			tr, err := a.newTransport(cfg, logger)
			if err != nil {
				return err
			}
			cmds, err := tr.ApplicationCommands(cmd.Context(), a.scope(cfg))
			if err != nil {
				return err
			}
			type row struct {
				ID   string                           `json:"id"`
				Name string                           `json:"name"`
				Type discordgo.ApplicationCommandType `json:"type"`
			}
			rows := make([]row, len(cmds))
			for i, c := range cmds {
				rows[i] = row{ID: c.ID, Name: c.Name, Type: c.Type}
			}
			return writeJSON(cmd.OutOrStdout(), rows)
		},
	}
}

func newHistoryCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Print the commands recently executed in a guild",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := a.setup()
			if err != nil {
				return err
			}
			guild := a.scope(cfg)
			if guild == "" {
				return errors.New("history needs a guild, use --guild or DISCORD_GUILD_ID")
			}
			store, err := storage.New(cfg.StoragePath, logger)
			if err != nil {
				return err
			}
			defer store.Close()
			records, err := store.CommandHistory(guild)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), records)
		},
	}
}

func (a *app) setup() (*config.Config, zerolog.Logger, error) {
	cfg, err := a.loadConfig(a.envFiles...)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, logging.NewWriter(a.logErr, "interactions-cli", cfg.Level(), cfg.LogPretty), nil
}

func (a *app) scope(cfg *config.Config) string {
	if a.guild != "" {
		return a.guild
	}
	return cfg.GuildID
}

func scopeName(guildID string) string {
	if guildID == "" {
		return interactions.GlobalScope
	}
	return guildID
}

func newService(cfg *config.Config, logger zerolog.Logger, tr interactions.Transport, cache interactions.CommandCache) (*interactions.Service, error) {
	icfg := cfg.Interactions()
	icfg.Logger = &logger
	icfg.Transport = tr
	icfg.Cache = cache
	svc := interactions.New(icfg)
	if err := modules.Register(svc, cfg.OwnerID, nil); err != nil {
		return nil, fmt.Errorf("register modules: %w", err)
	}
	return svc, nil
}

// sessionTransport talks to the REST API without opening a gateway.
func sessionTransport(cfg *config.Config, logger zerolog.Logger) (interactions.Transport, error) {
	if err := cfg.RequireToken(); err != nil {
		return nil, err
	}
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	appID := cfg.ApplicationID
	if appID == "" {
		me, err := session.User("@me", discordgo.WithContext(context.Background()))
		if err != nil {
			return nil, fmt.Errorf("resolve application id: %w", err)
		}
		appID = me.ID
	}
	return discord.NewTransport(session, appID, logger), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

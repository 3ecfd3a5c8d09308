package discord

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/interactions/internal/storage"
	"github.com/keshon/interactions/pkg/interactions"
	"github.com/keshon/interactions/pkg/result"
)

func adminService(t *testing.T, cfg interactions.Config) *interactions.Service {
	t.Helper()
	svc := interactions.New(cfg)
	_, err := svc.AddModule(testModule{build: func() (*interactions.Module, error) {
		mod, err := interactions.NewModule("mod", interactions.AsGroup("mod", "Moderation"),
			interactions.WithCommands(
				interactions.NewSlashCommand("warn", "Warn someone", noop),
				interactions.NewSlashCommand("fail", "Always fails", func(context.Context, *interactions.Context, []any) error {
					return result.NewError(result.Unsuccessful, "not today")
				}),
				interactions.NewSlashCommand("boom", "Panics", func(context.Context, *interactions.Context, []any) error {
					panic("boom")
				}),
			))
		if err != nil {
			return nil, err
		}
		return interactions.NewModule("admin", interactions.AsGroup("admin", "Administration"),
			interactions.WithSubModules(mod))
	}})
	require.NoError(t, err)
	return svc
}

func TestRecordHistory(t *testing.T) {
	store, err := storage.New(filepath.Join(t.TempDir(), "db.json"), zerolog.Nop())
	require.NoError(t, err)
	defer store.Close()

	svc := adminService(t, interactions.Config{})
	stop := RecordHistory(svc, store, zerolog.New(zerolog.NewTestWriter(t)))

	svc.Execute(context.Background(), slash("g1", "admin", &discordgo.ApplicationCommandInteractionDataOption{
		Name: "mod", Type: discordgo.ApplicationCommandOptionSubCommandGroup,
		Options: []*discordgo.ApplicationCommandInteractionDataOption{{Name: "warn", Type: discordgo.ApplicationCommandOptionSubCommand}},
	}), nil)
	svc.Execute(context.Background(), slash("", "admin", &discordgo.ApplicationCommandInteractionDataOption{
		Name: "mod", Type: discordgo.ApplicationCommandOptionSubCommandGroup,
		Options: []*discordgo.ApplicationCommandInteractionDataOption{{Name: "warn", Type: discordgo.ApplicationCommandOptionSubCommand}},
	}), nil)

	h, err := store.CommandHistory("g1")
	require.NoError(t, err)
	require.Len(t, h, 1)
	assert.Equal(t, "/admin mod warn", h[0].Command)
	assert.Equal(t, "slash", h[0].Kind)
	assert.Equal(t, "Success", h[0].Result)
	assert.Equal(t, "ada", h[0].Username)
	assert.Equal(t, "c1", h[0].ChannelID)
	assert.NotEmpty(t, h[0].ExecutionID)

	stop()
	assert.Zero(t, svc.SlashCommandExecuted.Len())
}

type failingHistory struct{ calls int }

func (f *failingHistory) AppendCommandHistory(string, storage.CommandHistoryRecord) error {
	f.calls++
	return errors.New("disk full")
}

func TestRecordHistory_StoreErrorDoesNotFailCommand(t *testing.T) {
	svc := adminService(t, interactions.Config{})
	store := &failingHistory{}
	defer RecordHistory(svc, store, zerolog.Nop())()

	res := svc.Execute(context.Background(), slash("g1", "admin", &discordgo.ApplicationCommandInteractionDataOption{
		Name: "mod", Type: discordgo.ApplicationCommandOptionSubCommandGroup,
		Options: []*discordgo.ApplicationCommandInteractionDataOption{{Name: "warn", Type: discordgo.ApplicationCommandOptionSubCommand}},
	}), nil)
	assert.True(t, res.IsSuccess())
	assert.Equal(t, 1, store.calls)
}

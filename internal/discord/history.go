package discord

import (
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/keshon/interactions/internal/storage"
	"github.com/keshon/interactions/pkg/interactions"
)

// HistoryStore keeps executed commands per guild.
type HistoryStore interface {
	AppendCommandHistory(guildID string, rec storage.CommandHistoryRecord) error
}

// RecordHistory stores every guild command execution reported by svc. The
// returned func stops recording.
func RecordHistory(svc *interactions.Service, store HistoryStore, logger zerolog.Logger) (stop func()) {
	record := func(e interactions.Executed) {
		c := e.Context
		if c == nil || c.GuildID() == "" {
			return
		}
		rec := storage.CommandHistoryRecord{
			ExecutionID: c.ID.String(),
			ChannelID:   c.Interaction.ChannelID,
			GuildID:     c.GuildID(),
			Command:     invokedAs(e.Command, c.Interaction),
			Kind:        e.Command.Kind().String(),
			Result:      e.Result.String(),
			Datetime:    time.Now().UTC(),
		}
		if u := c.User(); u != nil {
			rec.UserID, rec.Username = u.ID, u.Username
		}
		if err := store.AppendCommandHistory(rec.GuildID, rec); err != nil {
			logger.Warn().Err(err).Str("command", rec.Command).Msg("failed to record command")
		}
	}

	stops := []func(){
		svc.SlashCommandExecuted.Subscribe(record),
		svc.ContextCommandExecuted.Subscribe(record),
		svc.ComponentExecuted.Subscribe(record),
	}
	return func() {
		for _, s := range stops {
			s()
		}
	}
}

// invokedAs renders a command the way users typed or clicked it.
func invokedAs(cmd *interactions.Command, i *discordgo.Interaction) string {
	switch cmd.Kind() {
	case interactions.KindSlash:
		if cmd.IgnoreGroupNames() {
			return "/" + cmd.Name()
		}
		return "/" + strings.Join(append(cmd.Groups(), cmd.Name()), " ")
	case interactions.KindComponent:
		if data, ok := i.Data.(discordgo.MessageComponentInteractionData); ok {
			return data.CustomID
		}
	}
	return cmd.Name()
}

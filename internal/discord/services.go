package discord

import (
	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/keshon/interactions/internal/storage"
	"github.com/keshon/interactions/pkg/interactions"
)

// Moderator is the part of *discordgo.Session used by moderation commands.
type Moderator interface {
	GuildBanCreateWithReason(guildID, userID, reason string, days int, options ...discordgo.RequestOption) error
}

// Services is handed to every handler through interactions.Context.Services.
type Services struct {
	Replies Responder
	Guilds  Moderator
	Storage *storage.Storage
	// Commands is the service dispatching the handler.
	Commands *interactions.Service
	Log      zerolog.Logger
}

// ServicesOf returns the bag the bot passed to Execute.
func ServicesOf(c *interactions.Context) (*Services, bool) {
	s, ok := c.Services.(*Services)
	return s, ok && s != nil
}

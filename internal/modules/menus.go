package modules

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/interactions/internal/discord"
	"github.com/keshon/interactions/internal/middleware"
	"github.com/keshon/interactions/pkg/interactions"
	"github.com/keshon/interactions/pkg/result"
)

// Menus declares the right-click context commands.
type Menus struct {
	Toggles middleware.ModuleToggles
}

func (m Menus) DeclareModule() (*interactions.Module, error) {
	return interactions.NewModule("menus",
		interactions.WithMiddleware(middleware.ModuleEnabled(m.Toggles)),
		interactions.WithCommands(
			interactions.NewContextCommand(interactions.KindMessage, "Quote", quote),
			interactions.NewContextCommand(interactions.KindUser, "Avatar", avatar),
		))
}

func quote(ctx context.Context, c *interactions.Context, args []any) error {
	svcs, err := services(c)
	if err != nil {
		return err
	}
	msg := args[0].(*discordgo.Message)
	if msg.Content == "" {
		return result.NewError(result.Unsuccessful, "that message has no text to quote")
	}

	embed := &discordgo.MessageEmbed{
		Description: msg.Content,
		Timestamp:   msg.Timestamp.Format(time.RFC3339),
	}
	if msg.Author != nil {
		embed.Author = &discordgo.MessageEmbedAuthor{Name: msg.Author.Username, IconURL: msg.Author.AvatarURL("64")}
	}
	return discord.RespondEmbed(ctx, svcs.Replies, c.Interaction, embed)
}

func avatar(ctx context.Context, c *interactions.Context, args []any) error {
	svcs, err := services(c)
	if err != nil {
		return err
	}
	u := args[0].(*discordgo.User)
	return discord.RespondEmbedEphemeral(ctx, svcs.Replies, c.Interaction, &discordgo.MessageEmbed{
		Title: u.Username,
		Image: &discordgo.MessageEmbedImage{URL: u.AvatarURL("1024")},
	})
}

package modules

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/interactions/internal/discord"
	"github.com/keshon/interactions/internal/middleware"
	"github.com/keshon/interactions/pkg/interactions"
	"github.com/keshon/interactions/pkg/result"
)

const historyShown = 10

// toggleable lists the modules server admins may switch off.
var toggleable = []string{"core", "menus"}

// Admin groups server administration under /admin.
type Admin struct {
	OwnerID string
}

func (m Admin) DeclareModule() (*interactions.Module, error) {
	mod, err := interactions.NewModule("moderation",
		interactions.AsGroup("mod", "Moderation tools"),
		interactions.WithAttributes(middleware.Permissions(discordgo.PermissionBanMembers)),
		interactions.WithCommands(
			interactions.NewSlashCommand("ban", "Ban a member from the server", ban,
				interactions.WithParameters(
					interactions.Param[*discordgo.User]("user", "Who to ban", interactions.Required()),
					interactions.Param[string]("reason", "Shown in the audit log"),
					interactions.Param[int]("delete_days", "Days of their messages to delete, 0 to 7",
						interactions.Validate(deleteDays)),
				)),
		))
	if err != nil {
		return nil, err
	}

	choices := make([]*discordgo.ApplicationCommandOptionChoice, len(toggleable))
	for i, name := range toggleable {
		choices[i] = &discordgo.ApplicationCommandOptionChoice{Name: name, Value: name}
	}
	return interactions.NewModule("admin",
		interactions.AsGroup("admin", "Server administration"),
		interactions.WithMemberPermissions(discordgo.PermissionManageGuild),
		interactions.WithAttributes(middleware.Permissions(discordgo.PermissionManageGuild)),
		interactions.WithMiddleware(middleware.GuildOnly(), middleware.RequirePermissions(m.OwnerID)),
		interactions.WithSubModules(mod),
		interactions.WithCommands(
			interactions.NewSlashCommand("whoami", "Show what the bot knows about you", whoami,
				interactions.IgnoreGroupNames()),
			interactions.NewSlashCommand("history", "Show the latest commands used here", history),
			interactions.NewSlashCommand("toggle", "Enable or disable a module on this server", toggle,
				interactions.WithParameters(
					interactions.Param[string]("module", "Module to switch",
						interactions.Required(), interactions.Choices(choices...),
						interactions.Validate(func(v any) error {
							if !slices.Contains(toggleable, v.(string)) {
								return fmt.Errorf("unknown module %q", v)
							}
							return nil
						})),
					interactions.Param[bool]("enabled", "Whether the module answers", interactions.Required()),
				)),
		))
}

func deleteDays(v any) error {
	if d := v.(int); d < 0 || d > 7 {
		return errors.New("delete_days must be between 0 and 7")
	}
	return nil
}

func ban(ctx context.Context, c *interactions.Context, args []any) error {
	svcs, err := services(c)
	if err != nil {
		return err
	}
	user, reason, days := args[0].(*discordgo.User), args[1].(string), args[2].(int)
	if u := c.User(); u != nil && u.ID == user.ID {
		return result.NewError(result.Unsuccessful, "you can't ban yourself")
	}
	if reason == "" {
		reason = "no reason given"
	}
	if err := svcs.Guilds.GuildBanCreateWithReason(c.GuildID(), user.ID, reason, days, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("ban %s: %w", user.ID, err)
	}
	return discord.RespondEmbed(ctx, svcs.Replies, c.Interaction, &discordgo.MessageEmbed{
		Title:       "Member banned",
		Description: fmt.Sprintf("%s was banned: %s", user.Mention(), reason),
	})
}

func whoami(ctx context.Context, c *interactions.Context, _ []any) error {
	svcs, err := services(c)
	if err != nil {
		return err
	}
	u := c.User()
	if u == nil {
		return result.NewError(result.Unsuccessful, "no user on this interaction")
	}

	fields := []*discordgo.MessageEmbedField{
		{Name: "ID", Value: u.ID, Inline: true},
		{Name: "Username", Value: u.Username, Inline: true},
	}
	if m := c.Interaction.Member; m != nil {
		var perms []string
		for bit, name := range middleware.PermissionNames {
			if m.Permissions&bit != 0 {
				perms = append(perms, name)
			}
		}
		slices.Sort(perms)
		if len(perms) == 0 {
			perms = []string{"none"}
		}
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Permissions", Value: strings.Join(perms, ", ")})
	}
	return discord.RespondEmbedEphemeral(ctx, svcs.Replies, c.Interaction, &discordgo.MessageEmbed{
		Title:     "Who am I",
		Thumbnail: &discordgo.MessageEmbedThumbnail{URL: u.AvatarURL("128")},
		Fields:    fields,
	})
}

func history(ctx context.Context, c *interactions.Context, _ []any) error {
	svcs, err := services(c)
	if err != nil {
		return err
	}
	if svcs.Storage == nil {
		return result.NewError(result.Unsuccessful, "history is not recorded")
	}
	records, err := svcs.Storage.CommandHistory(c.GuildID())
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return discord.RespondEmbedEphemeral(ctx, svcs.Replies, c.Interaction, &discordgo.MessageEmbed{
			Title:       "Command history",
			Description: "No commands recorded yet.",
		})
	}

	var b strings.Builder
	for _, r := range slices.Backward(records[max(0, len(records)-historyShown):]) {
		fmt.Fprintf(&b, "<t:%d:R> `%s` by %s · %s\n", r.Datetime.Unix(), r.Command, r.Username, r.Result)
	}
	return discord.RespondEmbedEphemeral(ctx, svcs.Replies, c.Interaction, &discordgo.MessageEmbed{
		Title:       "Command history",
		Description: b.String(),
	})
}

func toggle(ctx context.Context, c *interactions.Context, args []any) error {
	svcs, err := services(c)
	if err != nil {
		return err
	}
	if svcs.Storage == nil {
		return result.NewError(result.Unsuccessful, "module toggles are not stored")
	}
	name, enabled := args[0].(string), args[1].(bool)
	state := "enabled"
	if enabled {
		err = svcs.Storage.EnableModule(c.GuildID(), name)
	} else {
		state = "disabled"
		err = svcs.Storage.DisableModule(c.GuildID(), name)
	}
	if err != nil {
		return err
	}
	return discord.RespondEmbedEphemeral(ctx, svcs.Replies, c.Interaction, &discordgo.MessageEmbed{
		Description: fmt.Sprintf("Module `%s` is now %s.", name, state),
	})
}

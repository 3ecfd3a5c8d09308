// Package middleware holds the checks the bot wraps its interaction handlers
// with. A check that refuses returns an Unsuccessful result error so the
// handler never runs.
package middleware

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/interactions/pkg/interactions"
	"github.com/keshon/interactions/pkg/result"
)

// PermissionNames labels permission bits in refusal messages.
var PermissionNames = map[int64]string{
	discordgo.PermissionCreateInstantInvite:    "Create Instant Invite",
	discordgo.PermissionKickMembers:            "Kick Members",
	discordgo.PermissionBanMembers:             "Ban Members",
	discordgo.PermissionAdministrator:          "Administrator",
	discordgo.PermissionManageChannels:         "Manage Channels",
	discordgo.PermissionManageGuild:            "Manage Server",
	discordgo.PermissionAddReactions:           "Add Reactions",
	discordgo.PermissionViewAuditLogs:          "View Audit Logs",
	discordgo.PermissionViewChannel:            "View Channel",
	discordgo.PermissionSendMessages:           "Send Messages",
	discordgo.PermissionSendTTSMessages:        "Send TTS Messages",
	discordgo.PermissionManageMessages:         "Manage Messages",
	discordgo.PermissionEmbedLinks:             "Embed Links",
	discordgo.PermissionAttachFiles:            "Attach Files",
	discordgo.PermissionReadMessageHistory:     "Read Message History",
	discordgo.PermissionMentionEveryone:        "Mention Everyone",
	discordgo.PermissionUseExternalEmojis:      "Use External Emojis",
	discordgo.PermissionUseApplicationCommands: "Use Application Commands",
	discordgo.PermissionManageThreads:          "Manage Threads",
	discordgo.PermissionCreatePublicThreads:    "Create Public Threads",
	discordgo.PermissionCreatePrivateThreads:   "Create Private Threads",
	discordgo.PermissionUseExternalStickers:    "Use External Stickers",
	discordgo.PermissionSendMessagesInThreads:  "Send Messages in Threads",
	discordgo.PermissionVoicePrioritySpeaker:   "Priority Speaker",
	discordgo.PermissionVoiceStreamVideo:       "Stream Video",
	discordgo.PermissionVoiceConnect:           "Connect to Voice Channel",
	discordgo.PermissionVoiceSpeak:             "Speak",
	discordgo.PermissionVoiceMuteMembers:       "Mute Members",
	discordgo.PermissionVoiceDeafenMembers:     "Deafen Members",
	discordgo.PermissionVoiceMoveMembers:       "Move Members",
	discordgo.PermissionVoiceUseVAD:            "Use Voice Activity Detection",
	discordgo.PermissionVoiceRequestToSpeak:    "Request to Speak",
	discordgo.PermissionChangeNickname:         "Change Nickname",
	discordgo.PermissionManageNicknames:        "Manage Nicknames",
	discordgo.PermissionManageRoles:            "Manage Roles",
	discordgo.PermissionManageWebhooks:         "Manage Webhooks",
	discordgo.PermissionManageEvents:           "Manage Events",
	discordgo.PermissionViewGuildInsights:      "View Guild Insights",
	discordgo.PermissionModerateMembers:        "Moderate Members",
}

// GuildOnly refuses interactions sent outside a guild.
func GuildOnly() interactions.Middleware {
	return func(next interactions.HandlerFunc) interactions.HandlerFunc {
		return func(ctx context.Context, c *interactions.Context, args []any) error {
			if c.GuildID() == "" {
				return result.NewError(result.Unsuccessful, "this command can only be used in a server")
			}
			return next(ctx, c, args)
		}
	}
}

// Permissions is a module attribute naming the member permissions required to
// run the module's commands. Any one of the bits is enough. A sub-module's
// attribute replaces the one it inherits.
type Permissions int64

// RequirePermissions checks the invoking member against the nearest
// Permissions attribute of the command's module. Administrators and the owner
// pass.
func RequirePermissions(ownerID string) interactions.Middleware {
	return func(next interactions.HandlerFunc) interactions.HandlerFunc {
		return func(ctx context.Context, c *interactions.Context, args []any) error {
			var required int64
			for _, a := range c.Command.Module().Attributes() {
				if p, ok := a.(Permissions); ok {
					required = int64(p)
				}
			}
			if required == 0 {
				return next(ctx, c, args)
			}
			if u := c.User(); u != nil && ownerID != "" && u.ID == ownerID {
				return next(ctx, c, args)
			}

			member := c.Interaction.Member
			if member == nil {
				return result.NewError(result.Unsuccessful, "this command can only be used in a server")
			}
			if member.Permissions&discordgo.PermissionAdministrator != 0 || member.Permissions&required != 0 {
				return next(ctx, c, args)
			}
			return result.NewError(result.Unsuccessful,
				fmt.Sprintf("you need one of these permissions: %s", strings.Join(permissionList(required), ", ")))
		}
	}
}

func permissionList(bits int64) []string {
	var out []string
	for bit, name := range PermissionNames {
		if bits&bit != 0 {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}

// ModuleToggles reports modules switched off per guild.
type ModuleToggles interface {
	IsModuleDisabled(guildID, module string) (bool, error)
}

// ModuleEnabled refuses commands whose top-level module was disabled in the
// guild. Lookup errors let the command through.
func ModuleEnabled(toggles ModuleToggles) interactions.Middleware {
	return func(next interactions.HandlerFunc) interactions.HandlerFunc {
		return func(ctx context.Context, c *interactions.Context, args []any) error {
			guildID := c.GuildID()
			if guildID == "" || toggles == nil {
				return next(ctx, c, args)
			}
			m := c.Command.Module()
			for m.Parent() != nil {
				m = m.Parent()
			}
			off, err := toggles.IsModuleDisabled(guildID, m.Name())
			if err != nil {
				c.Logger.Warn().Err(err).Str("module", m.Name()).Msg("failed to read module toggle")
				return next(ctx, c, args)
			}
			if off {
				return result.NewError(result.Unsuccessful, fmt.Sprintf("commands of %q are disabled on this server", m.Name()))
			}
			return next(ctx, c, args)
		}
	}
}

package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"
)

const EmbedColor = 0xb01e66

// Responder is the part of *discordgo.Session used to answer interactions.
type Responder interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Respond sends a public message response to an interaction.
func Respond(ctx context.Context, r Responder, i *discordgo.Interaction, content string) error {
	return r.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content},
	}, discordgo.WithContext(ctx))
}

// RespondEmbed sends a public embed response to an interaction.
func RespondEmbed(ctx context.Context, r Responder, i *discordgo.Interaction, embed *discordgo.MessageEmbed) error {
	return r.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{withColor(embed)}},
	}, discordgo.WithContext(ctx))
}

// RespondEmbedEphemeral sends an embed only the invoking user sees.
func RespondEmbedEphemeral(ctx context.Context, r Responder, i *discordgo.Interaction, embed *discordgo.MessageEmbed) error {
	return r.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags:  discordgo.MessageFlagsEphemeral,
			Embeds: []*discordgo.MessageEmbed{withColor(embed)},
		},
	}, discordgo.WithContext(ctx))
}

// RespondWithComponents sends a public embed with message components below it.
func RespondWithComponents(ctx context.Context, r Responder, i *discordgo.Interaction, embed *discordgo.MessageEmbed, rows ...discordgo.MessageComponent) error {
	return r.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds:     []*discordgo.MessageEmbed{withColor(embed)},
			Components: rows,
		},
	}, discordgo.WithContext(ctx))
}

// UpdateMessage replaces the message a component belongs to.
func UpdateMessage(ctx context.Context, r Responder, i *discordgo.Interaction, embed *discordgo.MessageEmbed, rows ...discordgo.MessageComponent) error {
	return r.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Embeds:     []*discordgo.MessageEmbed{withColor(embed)},
			Components: rows,
		},
	}, discordgo.WithContext(ctx))
}

// RespondDeferredEphemeral acknowledges an interaction ephemerally without an immediate reply.
func RespondDeferredEphemeral(ctx context.Context, r Responder, i *discordgo.Interaction) error {
	return r.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	}, discordgo.WithContext(ctx))
}

// EditResponse edits an existing interaction response.
func EditResponse(ctx context.Context, r Responder, i *discordgo.Interaction, content string) error {
	_, err := r.InteractionResponseEdit(i, &discordgo.WebhookEdit{Content: &content}, discordgo.WithContext(ctx))
	return err
}

// FollowupEmbedEphemeral sends an ephemeral embed followup message.
func FollowupEmbedEphemeral(ctx context.Context, r Responder, i *discordgo.Interaction, embed *discordgo.MessageEmbed) error {
	_, err := r.FollowupMessageCreate(i, true, &discordgo.WebhookParams{
		Flags:  discordgo.MessageFlagsEphemeral,
		Embeds: []*discordgo.MessageEmbed{withColor(embed)},
	}, discordgo.WithContext(ctx))
	return err
}

func withColor(e *discordgo.MessageEmbed) *discordgo.MessageEmbed {
	if e.Color == 0 {
		e.Color = EmbedColor
	}
	return e
}

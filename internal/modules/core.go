package modules

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/interactions/internal/discord"
	"github.com/keshon/interactions/internal/middleware"
	"github.com/keshon/interactions/pkg/interactions"
	"github.com/keshon/interactions/pkg/result"
)

// Core holds everyday commands.
type Core struct {
	Toggles middleware.ModuleToggles
	// NewRand overrides the dice source.
	NewRand func() *rand.Rand
}

func (m Core) DeclareModule() (*interactions.Module, error) {
	formula := func(description string) interactions.Parameter {
		return interactions.Param[string]("formula", description,
			interactions.Required(), interactions.Validate(validFormula))
	}
	return interactions.NewModule("core",
		interactions.WithMiddleware(middleware.ModuleEnabled(m.Toggles)),
		interactions.WithCommands(
			interactions.NewSlashCommand("ping", "Check that the bot answers", ping),
			interactions.NewSlashCommand("roll", "Roll dice like `2d20+1d6-2`", m.roll,
				interactions.WithParameters(formula("Supports `2d6+1d4*2-3` and similar math"))),
			interactions.NewComponentCommand("roll:*", m.reroll,
				interactions.WithParameters(formula("Formula to roll again"))),
		))
}

func (m Core) rng() *rand.Rand {
	if m.NewRand != nil {
		return m.NewRand()
	}
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

func ping(ctx context.Context, c *interactions.Context, _ []any) error {
	svcs, err := services(c)
	if err != nil {
		return err
	}
	return discord.RespondEmbedEphemeral(ctx, svcs.Replies, c.Interaction, &discordgo.MessageEmbed{
		Title:       "Pong!",
		Description: fmt.Sprintf("Execution `%s`", c.ID),
	})
}

func (m Core) roll(ctx context.Context, c *interactions.Context, args []any) error {
	svcs, err := services(c)
	if err != nil {
		return err
	}
	r, err := rollFormula(args[0].(string), m.rng())
	if err != nil {
		return result.Wrap(result.BadArgs, err.Error(), err)
	}
	return discord.RespondWithComponents(ctx, svcs.Replies, c.Interaction, rollEmbed(c, r), rerollRow(r.Formula))
}

func (m Core) reroll(ctx context.Context, c *interactions.Context, args []any) error {
	svcs, err := services(c)
	if err != nil {
		return err
	}
	r, err := rollFormula(args[0].(string), m.rng())
	if err != nil {
		return result.Wrap(result.BadArgs, err.Error(), err)
	}
	return discord.UpdateMessage(ctx, svcs.Replies, c.Interaction, rollEmbed(c, r), rerollRow(r.Formula))
}

func rollEmbed(c *interactions.Context, r Roll) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("🎲 %s", r.Formula),
		Description: fmt.Sprintf("%s\n**Total: %d**", r.Detail, r.Total),
	}
	if u := c.User(); u != nil {
		e.Footer = &discordgo.MessageEmbedFooter{Text: "Rolled by " + u.Username}
	}
	return e
}

func rerollRow(formula string) discordgo.MessageComponent {
	return discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		discordgo.Button{Label: "Reroll", Style: discordgo.SecondaryButton, CustomID: "roll:" + formula},
	}}
}

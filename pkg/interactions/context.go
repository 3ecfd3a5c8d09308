package interactions

import (
	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Context is what a handler sees of the interaction it runs for.
type Context struct {
	// ID identifies this execution in logs and job names.
	ID          uuid.UUID
	Interaction *discordgo.Interaction
	// Services is the value the host passed to Execute.
	Services any
	Command  *Command
	// Captures holds the tokens matched by wildcard segments of a component custom id.
	Captures []string
	Logger   zerolog.Logger
}

// GuildID returns the guild the interaction came from, empty in direct messages.
func (c *Context) GuildID() string {
	if c.Interaction == nil {
		return ""
	}
	return c.Interaction.GuildID
}

// User returns the invoking user, from the member in guilds.
func (c *Context) User() *discordgo.User {
	i := c.Interaction
	switch {
	case i == nil:
		return nil
	case i.Member != nil && i.Member.User != nil:
		return i.Member.User
	default:
		return i.User
	}
}

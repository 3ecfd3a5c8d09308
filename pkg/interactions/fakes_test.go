package interactions

import (
	"context"
	"sync"

	"github.com/bwmarrin/discordgo"
)

type fakeTransport struct {
	mu        sync.Mutex
	remote    map[string][]*discordgo.ApplicationCommand
	uploads   [][]*discordgo.ApplicationCommand
	fetches   int
	deleted   []*discordgo.Interaction
	fetchErr  error
	uploadErr error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{remote: make(map[string][]*discordgo.ApplicationCommand)}
}

func (f *fakeTransport) ApplicationCommands(_ context.Context, guildID string) ([]*discordgo.ApplicationCommand, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.remote[guildID], nil
}

func (f *fakeTransport) BulkOverwrite(_ context.Context, guildID string, cmds []*discordgo.ApplicationCommand) ([]*discordgo.ApplicationCommand, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	f.uploads = append(f.uploads, cmds)
	f.remote[guildID] = cmds
	return cmds, nil
}

func (f *fakeTransport) DeleteResponse(_ context.Context, i *discordgo.Interaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, i)
	return nil
}

func (f *fakeTransport) deleteCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.deleted)
}

type memCache struct {
	mu     sync.Mutex
	hashes map[string]string
}

func (c *memCache) LoadHash(scope string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.hashes[scope]
	return h, ok
}

func (c *memCache) SaveHash(scope, hash string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hashes == nil {
		c.hashes = make(map[string]string)
	}
	c.hashes[scope] = hash
	return nil
}

func chatInteraction(name string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.Interaction {
	return &discordgo.Interaction{
		ID:      "i-" + name,
		Type:    discordgo.InteractionApplicationCommand,
		GuildID: "g1",
		Data: discordgo.ApplicationCommandInteractionData{
			Name:        name,
			CommandType: discordgo.ChatApplicationCommand,
			Options:     opts,
		},
	}
}

func withResolved(i *discordgo.Interaction, res *discordgo.ApplicationCommandInteractionDataResolved) *discordgo.Interaction {
	data := i.Data.(discordgo.ApplicationCommandInteractionData)
	data.Resolved = res
	i.Data = data
	return i
}

func componentInteraction(customID string) *discordgo.Interaction {
	return &discordgo.Interaction{
		ID:   "i-" + customID,
		Type: discordgo.InteractionMessageComponent,
		Data: discordgo.MessageComponentInteractionData{CustomID: customID},
	}
}

func sub(name string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionSubCommand, Options: opts}
}

func group(name string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionSubCommandGroup, Options: opts}
}

func opt(name string, typ discordgo.ApplicationCommandOptionType, v any) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: typ, Value: v}
}

// moduleFunc declares a module from a closure. Each named type below is a
// distinct declaring type.
type moduleFunc func() (*Module, error)

type adminModule struct{ build moduleFunc }

func (m adminModule) DeclareModule() (*Module, error) { return m.build() }

type toolsModule struct{ build moduleFunc }

func (m toolsModule) DeclareModule() (*Module, error) { return m.build() }

type otherModule struct{ build moduleFunc }

func (m otherModule) DeclareModule() (*Module, error) { return m.build() }

func noop(context.Context, *Context, []any) error { return nil }

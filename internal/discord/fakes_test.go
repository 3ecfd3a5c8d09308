package discord

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/interactions/pkg/interactions"
)

type fakeRest struct {
	mu       sync.Mutex
	calls    int
	errs     []error
	appIDs   []string
	uploaded []*discordgo.ApplicationCommand
	deleted  int
}

func (f *fakeRest) next() error {
	f.calls++
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

func (f *fakeRest) ApplicationCommands(appID, guildID string, _ ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appIDs = append(f.appIDs, appID)
	if err := f.next(); err != nil {
		return nil, err
	}
	return f.uploaded, nil
}

func (f *fakeRest) ApplicationCommandBulkOverwrite(appID string, guildID string, cmds []*discordgo.ApplicationCommand, _ ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appIDs = append(f.appIDs, appID)
	if err := f.next(); err != nil {
		return nil, err
	}
	f.uploaded = cmds
	return cmds, nil
}

func (f *fakeRest) InteractionResponseDelete(*discordgo.Interaction, ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted++
	return f.next()
}

func restErr(code int) error {
	return &discordgo.RESTError{Response: &http.Response{StatusCode: code, Status: http.StatusText(code)}}
}

type fakeResponder struct {
	mu         sync.Mutex
	respondErr error
	responses  []*discordgo.InteractionResponse
	followups  []*discordgo.WebhookParams
}

func (f *fakeResponder) InteractionRespond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.respondErr != nil {
		return f.respondErr
	}
	f.responses = append(f.responses, resp)
	return nil
}

func (f *fakeResponder) InteractionResponseEdit(*discordgo.Interaction, *discordgo.WebhookEdit, ...discordgo.RequestOption) (*discordgo.Message, error) {
	return &discordgo.Message{}, nil
}

func (f *fakeResponder) FollowupMessageCreate(_ *discordgo.Interaction, _ bool, data *discordgo.WebhookParams, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.followups = append(f.followups, data)
	return &discordgo.Message{}, nil
}

var errAcked = errors.New("interaction has already been acknowledged")

type testModule struct {
	build func() (*interactions.Module, error)
}

func (m testModule) DeclareModule() (*interactions.Module, error) { return m.build() }

func slash(guildID, name string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.Interaction {
	return &discordgo.Interaction{
		ID:        "i1",
		Type:      discordgo.InteractionApplicationCommand,
		GuildID:   guildID,
		ChannelID: "c1",
		Member:    &discordgo.Member{User: &discordgo.User{ID: "u1", Username: "ada"}},
		Data: discordgo.ApplicationCommandInteractionData{
			Name:        name,
			CommandType: discordgo.ChatApplicationCommand,
			Options:     opts,
		},
	}
}

func noop(context.Context, *interactions.Context, []any) error { return nil }

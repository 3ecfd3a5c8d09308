package discord

import (
	"context"
	"errors"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/keshon/interactions/pkg/retrylimit"
)

// ErrNoApplication is returned by command calls made before the application
// id is known.
var ErrNoApplication = errors.New("discord: application id not known yet")

// RESTClient is the part of *discordgo.Session the transport calls.
type RESTClient interface {
	ApplicationCommands(appID, guildID string, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
	ApplicationCommandBulkOverwrite(appID string, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
	InteractionResponseDelete(interaction *discordgo.Interaction, options ...discordgo.RequestOption) error
}

// Transport carries command synchronization and response cleanup over the
// REST API, paced by an adaptive limiter and retried on transient failures.
type Transport struct {
	rest    RESTClient
	limiter *retrylimit.AdaptiveLimiter
	retry   retrylimit.Config

	mu    sync.RWMutex
	appID string
}

func NewTransport(rest RESTClient, appID string, logger zerolog.Logger) *Transport {
	logger = logger.With().Str("component", "transport").Logger()
	return &Transport{
		rest:    rest,
		limiter: retrylimit.NewAdaptiveLimiter(5, 1, 20, 1, 0.5),
		retry:   retrylimit.DefaultConfig(logger),
		appID:   appID,
	}
}

// SetApplicationID sets the application commands are registered for, unless
// one was configured.
func (t *Transport) SetApplicationID(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.appID == "" {
		t.appID = id
	}
}

func (t *Transport) ApplicationID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.appID
}

// Limit returns the current request rate.
func (t *Transport) Limit() rate.Limit { return t.limiter.Limit() }

func (t *Transport) ApplicationCommands(ctx context.Context, guildID string) ([]*discordgo.ApplicationCommand, error) {
	appID := t.ApplicationID()
	if appID == "" {
		return nil, ErrNoApplication
	}
	return retrylimit.Do(ctx, t.limiter, t.retry, func(ctx context.Context) ([]*discordgo.ApplicationCommand, error) {
		cmds, err := t.rest.ApplicationCommands(appID, guildID, discordgo.WithContext(ctx))
		return cmds, restError(err)
	})
}

func (t *Transport) BulkOverwrite(ctx context.Context, guildID string, cmds []*discordgo.ApplicationCommand) ([]*discordgo.ApplicationCommand, error) {
	appID := t.ApplicationID()
	if appID == "" {
		return nil, ErrNoApplication
	}
	return retrylimit.Do(ctx, t.limiter, t.retry, func(ctx context.Context) ([]*discordgo.ApplicationCommand, error) {
		out, err := t.rest.ApplicationCommandBulkOverwrite(appID, guildID, cmds, discordgo.WithContext(ctx))
		return out, restError(err)
	})
}

// DeleteResponse is tried once. The interaction token expires too soon for
// retries to matter.
func (t *Transport) DeleteResponse(ctx context.Context, i *discordgo.Interaction) error {
	return restError(t.rest.InteractionResponseDelete(i, discordgo.WithContext(ctx)))
}

// statusError exposes the HTTP status of a REST error to the retry policy.
type statusError struct {
	*discordgo.RESTError
}

func (e statusError) StatusCode() int {
	if e.Response == nil {
		return 0
	}
	return e.Response.StatusCode
}

func (e statusError) Unwrap() error { return e.RESTError }

func restError(err error) error {
	var re *discordgo.RESTError
	if errors.As(err, &re) {
		return statusError{re}
	}
	return err
}

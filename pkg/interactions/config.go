package interactions

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/keshon/interactions/pkg/convert"
	"github.com/keshon/interactions/pkg/jobmgr"
)

// RunMode selects how handlers are executed.
type RunMode int

const (
	// RunSync runs the handler inline; Execute returns its result.
	RunSync RunMode = iota
	// RunAsync detaches the handler; Execute returns success once it is
	// accepted, and the executed events report the final result.
	RunAsync
)

func (m RunMode) String() string {
	if m == RunAsync {
		return "async"
	}
	return "sync"
}

// Transport is the REST surface the service needs. An empty guildID
// addresses the global scope.
type Transport interface {
	ApplicationCommands(ctx context.Context, guildID string) ([]*discordgo.ApplicationCommand, error)
	BulkOverwrite(ctx context.Context, guildID string, cmds []*discordgo.ApplicationCommand) ([]*discordgo.ApplicationCommand, error)
	DeleteResponse(ctx context.Context, i *discordgo.Interaction) error
}

// CommandCache remembers the hash of the last payload uploaded per scope.
type CommandCache interface {
	LoadHash(scope string) (string, bool)
	SaveHash(scope, hash string) error
}

// Config configures a Service. The zero value runs handlers synchronously,
// keeps faults contained and never deletes responses.
type Config struct {
	RunMode RunMode
	// ThrowOnError re-panics handler panics after observers ran. Only honored in RunSync.
	ThrowOnError bool
	// DeleteUnknownCommandAck deletes the deferred response of interactions
	// that match no command.
	DeleteUnknownCommandAck bool
	// ComponentSeparators are added to the default separators when splitting
	// component custom ids.
	ComponentSeparators []rune

	// Logger defaults to a logger discarding output at info level. Lines still
	// reach the Log event.
	Logger     *zerolog.Logger
	Transport  Transport
	Cache      CommandCache
	Converters *convert.Registry
	Jobs       *jobmgr.Manager
	Tracer     trace.Tracer
}

package interactions

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/keshon/interactions/pkg/cmdsync"
	"github.com/keshon/interactions/pkg/result"
)

// ErrNoTransport is returned by operations that need the REST transport
// when none is configured.
var ErrNoTransport = errors.New("interactions: no transport configured")

// GlobalScope is the cache key used for the global command set.
const GlobalScope = "global"

func scopeKey(guildID string) string {
	if guildID == "" {
		return GlobalScope
	}
	return guildID
}

// Commands returns the creation payload of every declared slash and context
// command. Components are not part of it.
func (s *Service) Commands() ([]*discordgo.ApplicationCommand, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buildCommands(s.orderedModules())
}

// DesiredCommands returns what SyncCommands would upload for guildID without
// uploading it. Remote commands are fetched only when deleteMissing is false.
func (s *Service) DesiredCommands(ctx context.Context, guildID string, deleteMissing bool) ([]*discordgo.ApplicationCommand, error) {
	desired, err := s.Commands()
	if err != nil {
		return nil, err
	}
	if deleteMissing {
		return cmdsync.Diff(desired, nil, true), nil
	}
	if s.transport == nil {
		return nil, ErrNoTransport
	}
	existing, err := s.transport.ApplicationCommands(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("fetch commands of %s: %w", scopeKey(guildID), err)
	}
	return cmdsync.Diff(desired, existing, false), nil
}

// SyncOption tweaks SyncCommands.
type SyncOption func(*syncOptions)

type syncOptions struct {
	force bool
}

// Force uploads even when the payload matches the cached hash.
func Force() SyncOption { return func(o *syncOptions) { o.force = true } }

// SyncReport describes one synchronization.
type SyncReport struct {
	Scope      string
	Hash       string
	Payload    []*discordgo.ApplicationCommand
	Registered []*discordgo.ApplicationCommand
	// Skipped is set when the payload matched the last uploaded one.
	Skipped bool
}

// SyncCommands overwrites the commands registered for guildID, or the global
// ones when guildID is empty. With deleteMissing remote commands that are not
// declared are deleted; without it they are kept.
func (s *Service) SyncCommands(ctx context.Context, guildID string, deleteMissing bool, opts ...SyncOption) (SyncReport, error) {
	var o syncOptions
	for _, fn := range opts {
		fn(&o)
	}
	scope := scopeKey(guildID)
	report := SyncReport{Scope: scope}

	ctx, span := s.tracer.Start(ctx, "interactions.SyncCommands")
	defer span.End()
	span.SetAttributes(
		attribute.String("sync.scope", scope),
		attribute.Bool("sync.delete_missing", deleteMissing),
	)
	fail := func(err error) (SyncReport, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.log.Error().Err(err).Str("scope", scope).Msg("command sync failed")
		return report, err
	}

	if s.transport == nil {
		return fail(ErrNoTransport)
	}
	payload, err := s.DesiredCommands(ctx, guildID, deleteMissing)
	if err != nil {
		return fail(err)
	}
	report.Payload = payload
	report.Hash = cmdsync.Hash(payload)

	if s.cache != nil && !o.force {
		if prev, ok := s.cache.LoadHash(scope); ok && prev == report.Hash {
			report.Skipped = true
			span.SetAttributes(attribute.Bool("sync.skipped", true))
			s.log.Info().Str("scope", scope).Int("commands", len(payload)).Msg("commands unchanged, skipping upload")
			return report, nil
		}
	}

	registered, err := s.transport.BulkOverwrite(ctx, guildID, payload)
	if err != nil {
		return fail(fmt.Errorf("overwrite commands of %s: %w", scope, err))
	}
	report.Registered = registered

	if s.cache != nil {
		if err := s.cache.SaveHash(scope, report.Hash); err != nil {
			s.log.Warn().Err(err).Str("scope", scope).Msg("failed to save command hash")
		}
	}
	s.log.Info().Str("scope", scope).Int("commands", len(registered)).Msg("commands synchronized")
	return report, nil
}

// ResolveRemote finds the registered command cmd is routed through in the
// given scope. A command whose declared path is not registered yields
// ParseFailed.
func (s *Service) ResolveRemote(ctx context.Context, cmd *Command, guildID string) (*discordgo.ApplicationCommand, result.Result) {
	if s.transport == nil {
		return nil, result.From(ErrNoTransport)
	}
	if cmd == nil || cmd.kind == KindComponent {
		return nil, result.Fail(result.ParseFailed, "only slash and context commands are registered remotely")
	}
	remote, err := s.transport.ApplicationCommands(ctx, guildID)
	if err != nil {
		return nil, result.From(fmt.Errorf("fetch commands of %s: %w", scopeKey(guildID), err))
	}

	want := discordgo.ChatApplicationCommand
	path := []string{cmd.name}
	switch cmd.kind {
	case KindUser:
		want = discordgo.UserApplicationCommand
	case KindMessage:
		want = discordgo.MessageApplicationCommand
	default:
		path = s.slash.KeyOf(cmd)
	}

	for _, rc := range remote {
		if rc.Name != path[0] || (rc.Type != want && !(rc.Type == 0 && want == discordgo.ChatApplicationCommand)) {
			continue
		}
		if hasOptionPath(rc.Options, path[1:]) {
			return rc, result.Success()
		}
	}
	return nil, result.Fail(result.ParseFailed, fmt.Sprintf("%s command %q is not registered in %s", cmd.kind, cmd.name, scopeKey(guildID)))
}

func hasOptionPath(opts []*discordgo.ApplicationCommandOption, path []string) bool {
	if len(path) == 0 {
		return true
	}
	for _, o := range opts {
		if o.Name == path[0] && (o.Type == discordgo.ApplicationCommandOptionSubCommand || o.Type == discordgo.ApplicationCommandOptionSubCommandGroup) {
			return hasOptionPath(o.Options, path[1:])
		}
	}
	return false
}

// buildCommands turns modules into creation payloads. Slash commands routed
// under groups become subcommands and subcommand groups of the outermost
// group's command.
func (s *Service) buildCommands(mods []*Module) ([]*discordgo.ApplicationCommand, error) {
	var out []*discordgo.ApplicationCommand
	chat := make(map[string]*discordgo.ApplicationCommand)
	groups := make(map[string]bool)
	contextNames := make(map[string]bool)

	for _, m := range mods {
		for _, c := range m.allCommands() {
			switch c.kind {
			case KindSlash:
				opts, err := s.options(c)
				if err != nil {
					return nil, err
				}
				chain := c.groupChainIfRouted()
				if len(chain) == 0 {
					if _, dup := chat[c.name]; dup {
						return nil, fmt.Errorf("%w: command %q is declared twice", ErrInvalidModule, c.name)
					}
					ac := &discordgo.ApplicationCommand{
						Type:                     discordgo.ChatApplicationCommand,
						Name:                     c.name,
						Description:              c.description,
						Options:                  opts,
						DefaultMemberPermissions: c.module.memberPerms(),
					}
					chat[c.name] = ac
					out = append(out, ac)
					continue
				}

				root := chain[0]
				ac, ok := chat[root.groupName]
				if ok && !groups[root.groupName] {
					return nil, fmt.Errorf("%w: group %q clashes with a command of the same name", ErrInvalidModule, root.groupName)
				}
				if !ok {
					ac = &discordgo.ApplicationCommand{
						Type:                     discordgo.ChatApplicationCommand,
						Name:                     root.groupName,
						Description:              root.description,
						DefaultMemberPermissions: root.memberPerms(),
					}
					chat[root.groupName] = ac
					groups[root.groupName] = true
					out = append(out, ac)
				}

				parent := &ac.Options
				if len(chain) == 2 {
					g, err := subOption(parent, chain[1].groupName, chain[1].description, discordgo.ApplicationCommandOptionSubCommandGroup)
					if err != nil {
						return nil, err
					}
					parent = &g.Options
				}
				sub, err := subOption(parent, c.name, c.description, discordgo.ApplicationCommandOptionSubCommand)
				if err != nil {
					return nil, err
				}
				sub.Options = opts

			case KindUser, KindMessage:
				typ := discordgo.UserApplicationCommand
				if c.kind == KindMessage {
					typ = discordgo.MessageApplicationCommand
				}
				key := c.kind.String() + ":" + c.name
				if contextNames[key] {
					return nil, fmt.Errorf("%w: %s command %q is declared twice", ErrInvalidModule, c.kind, c.name)
				}
				contextNames[key] = true
				out = append(out, &discordgo.ApplicationCommand{
					Type:                     typ,
					Name:                     c.name,
					DefaultMemberPermissions: c.module.memberPerms(),
				})
			}
		}
	}
	return out, nil
}

// subOption returns the option named name under parent, creating it with
// type typ. An existing option of another type is a clash.
func subOption(parent *[]*discordgo.ApplicationCommandOption, name, description string, typ discordgo.ApplicationCommandOptionType) (*discordgo.ApplicationCommandOption, error) {
	for _, o := range *parent {
		if o.Name != name {
			continue
		}
		if o.Type != typ || typ == discordgo.ApplicationCommandOptionSubCommand {
			return nil, fmt.Errorf("%w: %q is declared twice under the same group", ErrInvalidModule, name)
		}
		return o, nil
	}
	o := &discordgo.ApplicationCommandOption{Type: typ, Name: name, Description: description}
	*parent = append(*parent, o)
	return o, nil
}

func (s *Service) options(c *Command) ([]*discordgo.ApplicationCommandOption, error) {
	var out []*discordgo.ApplicationCommandOption
	for _, p := range c.params {
		conv, err := s.converters.Get(p.Type)
		if err != nil {
			return nil, fmt.Errorf("%w: command %q parameter %q: %w", ErrInvalidModule, c.name, p.Name, err)
		}
		out = append(out, &discordgo.ApplicationCommandOption{
			Type:        conv.OptionType(),
			Name:        p.Name,
			Description: p.Description,
			Required:    p.Required,
			Choices:     p.Choices,
		})
	}
	return out, nil
}

package interactions

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/keshon/interactions/pkg/cmdmap"
	"github.com/keshon/interactions/pkg/convert"
	"github.com/keshon/interactions/pkg/result"
)

// Execute routes i to its handler and reports the outcome. It never panics
// unless ThrowOnError is set and the handler panicked. services is handed to
// the handler through Context.Services.
func (s *Service) Execute(ctx context.Context, i *discordgo.Interaction, services any) result.Result {
	ctx, span := s.tracer.Start(ctx, "interactions.Execute")
	defer span.End()

	res := s.execute(ctx, span, i, services)
	if res.IsSuccess() {
		span.SetAttributes(attribute.String("interaction.result", "Success"))
		return res
	}
	span.SetAttributes(attribute.String("interaction.result", res.Kind().String()))
	span.SetStatus(codes.Error, res.Reason())
	if err := res.Err(); err != nil {
		span.RecordError(err)
	}
	return res
}

func (s *Service) execute(ctx context.Context, span trace.Span, i *discordgo.Interaction, services any) result.Result {
	if i == nil {
		return result.Fail(result.UnknownCommand, "nil interaction")
	}
	span.SetAttributes(attribute.String("interaction.type", i.Type.String()))

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		data := i.ApplicationCommandData()
		span.SetAttributes(attribute.String("interaction.command", data.Name))
		switch data.CommandType {
		case discordgo.ChatApplicationCommand, 0:
			path, options := commandPath(data)
			search := s.slash.LookupPath(path)
			if !search.IsSuccess() {
				return s.miss(ctx, i, search)
			}
			return s.run(ctx, i, services, search.Value, nil, slashInputs(search.Value, options, data.Resolved, i.GuildID))
		case discordgo.UserApplicationCommand, discordgo.MessageApplicationCommand:
			search := s.context.Lookup(data.Name)
			if search.IsSuccess() && search.Value.kind != contextKind(data.CommandType) {
				search.Result = result.Fail(result.UnknownCommand, fmt.Sprintf("%q is not a %s command", data.Name, contextKind(data.CommandType)))
			}
			if !search.IsSuccess() {
				return s.miss(ctx, i, search)
			}
			return s.run(ctx, i, services, search.Value, nil, contextInputs(data))
		}
		return result.Fail(result.UnknownCommand, fmt.Sprintf("unsupported command type %d", data.CommandType))

	case discordgo.InteractionMessageComponent:
		data := i.MessageComponentData()
		span.SetAttributes(attribute.String("interaction.custom_id", data.CustomID))
		search := s.components.Lookup(data.CustomID)
		if !search.IsSuccess() {
			return s.miss(ctx, i, search)
		}
		return s.run(ctx, i, services, search.Value, search.Captures, captureInputs(search.Value, search.Captures, i.GuildID))
	}
	return result.Fail(result.UnknownCommand, fmt.Sprintf("unsupported interaction type %s", i.Type))
}

// commandPath returns the name path of a chat input command and the options
// of its leaf subcommand.
func commandPath(data discordgo.ApplicationCommandInteractionData) ([]string, []*discordgo.ApplicationCommandInteractionDataOption) {
	path := []string{data.Name}
	opts := data.Options
	for len(opts) == 1 {
		o := opts[0]
		if o.Type != discordgo.ApplicationCommandOptionSubCommand && o.Type != discordgo.ApplicationCommandOptionSubCommandGroup {
			break
		}
		path = append(path, o.Name)
		opts = o.Options
	}
	return path, opts
}

func contextKind(t discordgo.ApplicationCommandType) CommandKind {
	if t == discordgo.UserApplicationCommand {
		return KindUser
	}
	return KindMessage
}

func (s *Service) miss(ctx context.Context, i *discordgo.Interaction, search cmdmap.Search[*Command]) result.Result {
	s.log.Debug().
		Str("input", search.Text).
		Strs("residual", search.Residual).
		Msg("unknown command")

	if s.deleteUnknownAck && s.transport != nil {
		if err := s.transport.DeleteResponse(ctx, i); err != nil {
			s.log.Warn().Err(err).Str("input", search.Text).Msg("failed to delete response of unknown command")
		}
	}
	return search.Result
}

// inputs resolves the raw arguments of a command, or a failed Result.
type inputs func(ctx context.Context, s *Service) ([]any, result.Result)

func (s *Service) run(ctx context.Context, i *discordgo.Interaction, services any, cmd *Command, captures []string, in inputs) result.Result {
	id := uuid.New()
	c := &Context{
		ID:          id,
		Interaction: i,
		Services:    services,
		Command:     cmd,
		Captures:    captures,
		Logger: s.log.With().
			Str("execution", id.String()).
			Str("command", cmd.name).
			Str("kind", cmd.kind.String()).
			Logger(),
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("interaction.execution", id.String()))

	args, res := in(ctx, s)
	if !res.IsSuccess() {
		s.executed(cmd, c, res)
		return res
	}

	h := cmd.run()
	if s.runMode == RunAsync {
		err := s.jobs.StartAsync(ctx, "interaction:"+id.String(), func(ctx context.Context) error {
			res, _ := invoke(ctx, h, c, args)
			s.executed(cmd, c, res)
			return res.AsError()
		})
		if err != nil {
			res := result.From(fmt.Errorf("start handler: %w", err))
			s.executed(cmd, c, res)
			return res
		}
		return result.Success()
	}

	res, recovered := invoke(ctx, h, c, args)
	s.executed(cmd, c, res)
	if recovered != nil && s.throwOnError {
		panic(recovered)
	}
	return res
}

// invoke runs h inside a fault boundary. recovered is the panic value, if any.
func invoke(ctx context.Context, h HandlerFunc, c *Context, args []any) (res result.Result, recovered any) {
	defer func() {
		if r := recover(); r != nil {
			res, recovered = result.FromPanic(r), r
		}
	}()
	return result.From(h(ctx, c, args)), nil
}

func (s *Service) executed(cmd *Command, c *Context, res result.Result) {
	ev := c.Logger.Debug()
	switch {
	case res.IsSuccess():
	case res.Kind() == result.Exception:
		ev = c.Logger.Error().Err(res.Err())
	default:
		ev = c.Logger.Info().Str("result", res.Kind().String()).Str("reason", res.Reason())
	}
	ev.Msg("command executed")

	e := Executed{Command: cmd, Context: c, Result: res}
	switch cmd.kind {
	case KindSlash:
		s.SlashCommandExecuted.fire(e)
	case KindUser, KindMessage:
		s.ContextCommandExecuted.fire(e)
	case KindComponent:
		s.ComponentExecuted.fire(e)
	}
}

// slashInputs converts options by parameter name.
func slashInputs(cmd *Command, options []*discordgo.ApplicationCommandInteractionDataOption, resolved *discordgo.ApplicationCommandInteractionDataResolved, guildID string) inputs {
	return func(ctx context.Context, s *Service) ([]any, result.Result) {
		byName := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(options))
		for _, o := range options {
			byName[o.Name] = o
		}
		return s.convertAll(ctx, cmd, func(idx int, p Parameter) (convert.Input, bool) {
			o, ok := byName[p.Name]
			return convert.Input{Option: o, Resolved: resolved, GuildID: guildID}, ok
		})
	}
}

// captureInputs converts wildcard captures positionally.
func captureInputs(cmd *Command, captures []string, guildID string) inputs {
	return func(ctx context.Context, s *Service) ([]any, result.Result) {
		return s.convertAll(ctx, cmd, func(idx int, p Parameter) (convert.Input, bool) {
			if idx >= len(captures) {
				return convert.Input{GuildID: guildID}, false
			}
			o := &discordgo.ApplicationCommandInteractionDataOption{
				Name:  p.Name,
				Type:  discordgo.ApplicationCommandOptionString,
				Value: captures[idx],
			}
			return convert.Input{Option: o, GuildID: guildID}, true
		})
	}
}

// contextInputs hands the target user or message to the handler.
func contextInputs(data discordgo.ApplicationCommandInteractionData) inputs {
	return func(context.Context, *Service) ([]any, result.Result) {
		var target any
		if res := data.Resolved; res != nil {
			if data.CommandType == discordgo.UserApplicationCommand {
				if u, ok := res.Users[data.TargetID]; ok {
					if m, ok := res.Members[data.TargetID]; ok && m != nil {
						m.User = u
					}
					target = u
				}
			} else if m, ok := res.Messages[data.TargetID]; ok {
				target = m
			}
		}
		if target == nil || reflect.ValueOf(target).IsNil() {
			return nil, result.Fail(result.ParseFailed, fmt.Sprintf("target %q was not resolved", data.TargetID))
		}
		return []any{target}, result.Success()
	}
}

// convertAll converts every parameter before returning, so a handler never
// sees a partial argument list.
func (s *Service) convertAll(ctx context.Context, cmd *Command, input func(int, Parameter) (convert.Input, bool)) ([]any, result.Result) {
	args := make([]any, len(cmd.params))
	for idx, p := range cmd.params {
		in, ok := input(idx, p)
		if !ok || in.Option == nil {
			if p.Required {
				return nil, result.Fail(result.ParseFailed, fmt.Sprintf("missing required parameter %q", p.Name))
			}
			args[idx] = reflect.Zero(p.Type).Interface()
			continue
		}

		conv, err := s.converters.Get(p.Type)
		if err != nil {
			return nil, result.From(result.Wrap(result.ParseFailed, fmt.Sprintf("parameter %q", p.Name), err))
		}
		v, res := read(ctx, conv, in)
		if !res.IsSuccess() {
			return nil, res
		}
		if p.Validate != nil {
			if err := p.Validate(v); err != nil {
				var re *result.Error
				if errors.As(err, &re) {
					return nil, result.From(err)
				}
				return nil, result.From(result.Wrap(result.BadArgs, fmt.Sprintf("parameter %q: %v", p.Name, err), err))
			}
		}
		args[idx] = v
	}
	return args, result.Success()
}

// read runs a converter inside a fault boundary. Plain errors are parse failures.
func read(ctx context.Context, conv convert.Converter, in convert.Input) (v any, res result.Result) {
	defer func() {
		if r := recover(); r != nil {
			v, res = nil, result.FromPanic(r)
		}
	}()
	v, err := conv.Read(ctx, in)
	if err == nil {
		return v, result.Success()
	}
	var re *result.Error
	if errors.As(err, &re) {
		return nil, result.From(err)
	}
	return nil, result.From(result.Wrap(result.ParseFailed, err.Error(), err))
}

package convert

import (
	"context"
	"encoding"
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/interactions/pkg/result"
)

// Mentionable is anything that renders as a mention: users, members, roles, channels.
type Mentionable interface {
	Mention() string
}

// UserLike narrows Mentionable to users and members.
type UserLike interface {
	Mentionable
	AvatarURL(size string) string
}

// ChannelLike narrows Mentionable to channels and threads.
type ChannelLike interface {
	Mentionable
	IsThread() bool
}

// NewDefaultRegistry returns a registry holding the built-in converters.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	if err := RegisterDefaults(r); err != nil {
		// built-ins are static; a failure here is a programming error
		panic(err)
	}
	return r
}

// RegisterDefaults adds the primitive converters and the entity and text
// templates to r.
func RegisterDefaults(r *Registry) error {
	values := []*valueConverter{
		{typ: TypeOf[string](), opt: discordgo.ApplicationCommandOptionString, parse: parseString},
		{typ: TypeOf[int64](), opt: discordgo.ApplicationCommandOptionInteger, parse: parseInt64},
		{typ: TypeOf[int](), opt: discordgo.ApplicationCommandOptionInteger, parse: parseInt},
		{typ: TypeOf[float64](), opt: discordgo.ApplicationCommandOptionNumber, parse: parseFloat},
		{typ: TypeOf[bool](), opt: discordgo.ApplicationCommandOptionBoolean, parse: parseBool},
		{typ: TypeOf[time.Duration](), opt: discordgo.ApplicationCommandOptionString, parse: parseDuration},
	}
	for _, v := range values {
		if err := r.Register(v.typ, v); err != nil {
			return err
		}
	}

	attachment := TypeOf[*discordgo.MessageAttachment]()
	if err := r.Register(attachment, &entityConverter{target: attachment, opt: discordgo.ApplicationCommandOptionAttachment}); err != nil {
		return err
	}

	entities := []struct {
		capability reflect.Type
		opt        discordgo.ApplicationCommandOptionType
	}{
		{TypeOf[Mentionable](), discordgo.ApplicationCommandOptionMentionable},
		{TypeOf[UserLike](), discordgo.ApplicationCommandOptionUser},
		{TypeOf[ChannelLike](), discordgo.ApplicationCommandOptionChannel},
		{TypeOf[*discordgo.Role](), discordgo.ApplicationCommandOptionRole},
	}
	for _, e := range entities {
		if err := r.RegisterTemplate(e.capability, EntityTemplate(e.capability, e.opt)); err != nil {
			return err
		}
	}

	text := TypeOf[encoding.TextUnmarshaler]()
	return r.RegisterTemplate(text, Template{
		Name:   "text",
		Params: []reflect.Type{text},
		New: func(target reflect.Type) Converter {
			return &textConverter{target: target}
		},
	})
}

// EntityTemplate returns a template resolving platform entities by id from
// the interaction's resolved data.
func EntityTemplate(capability reflect.Type, opt discordgo.ApplicationCommandOptionType) Template {
	return Template{
		Name:   "entity:" + capability.String(),
		Params: []reflect.Type{capability},
		New: func(target reflect.Type) Converter {
			return &entityConverter{target: target, opt: opt}
		},
	}
}

type valueConverter struct {
	typ   reflect.Type
	opt   discordgo.ApplicationCommandOptionType
	parse func(any) (any, error)
}

func (c *valueConverter) CanConvertTo(t reflect.Type) bool                   { return t == c.typ }
func (c *valueConverter) OptionType() discordgo.ApplicationCommandOptionType { return c.opt }

func (c *valueConverter) Read(_ context.Context, in Input) (any, error) {
	raw := in.Value()
	if raw == nil {
		return nil, result.NewError(result.ParseFailed, fmt.Sprintf("no value provided for %s", c.typ))
	}
	v, err := c.parse(raw)
	if err != nil {
		return nil, result.Wrap(result.ParseFailed, fmt.Sprintf("%v cannot be read as %s", raw, c.typ), err)
	}
	return v, nil
}

func parseString(raw any) (any, error) {
	if s, ok := raw.(string); ok {
		return s, nil
	}
	return fmt.Sprint(raw), nil
}

func parseInt64(raw any) (any, error) {
	switch v := raw.(type) {
	case float64:
		if v != float64(int64(v)) {
			return nil, fmt.Errorf("%v is not a whole number", v)
		}
		return int64(v), nil
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	}
	return nil, fmt.Errorf("unsupported value %T", raw)
}

func parseInt(raw any) (any, error) {
	v, err := parseInt64(raw)
	if err != nil {
		return nil, err
	}
	return int(v.(int64)), nil
}

func parseFloat(raw any) (any, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	case int:
		return float64(v), nil
	case string:
		return strconv.ParseFloat(v, 64)
	}
	return nil, fmt.Errorf("unsupported value %T", raw)
}

func parseBool(raw any) (any, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		return strconv.ParseBool(v)
	}
	return nil, fmt.Errorf("unsupported value %T", raw)
}

func parseDuration(raw any) (any, error) {
	s, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("unsupported value %T", raw)
	}
	return time.ParseDuration(s)
}

type entityConverter struct {
	target reflect.Type
	opt    discordgo.ApplicationCommandOptionType
}

func (c *entityConverter) CanConvertTo(t reflect.Type) bool {
	return t.AssignableTo(c.target) && c.target.AssignableTo(t)
}

func (c *entityConverter) OptionType() discordgo.ApplicationCommandOptionType { return c.opt }

func (c *entityConverter) Read(_ context.Context, in Input) (any, error) {
	id, ok := in.Value().(string)
	if !ok || id == "" {
		return nil, result.NewError(result.ParseFailed, fmt.Sprintf("provided input cannot be read as %s", c.target))
	}
	for _, candidate := range resolvedByID(in.Resolved, id) {
		if reflect.TypeOf(candidate).AssignableTo(c.target) {
			return candidate, nil
		}
	}
	return nil, result.NewError(result.ParseFailed, fmt.Sprintf("%s was not resolved as %s", id, c.target))
}

// resolvedByID lists every resolved entity stored under id, most specific first.
func resolvedByID(res *discordgo.ApplicationCommandInteractionDataResolved, id string) []any {
	if res == nil {
		return nil
	}
	var out []any
	if m, ok := res.Members[id]; ok && m != nil {
		if m.User == nil {
			m.User = res.Users[id]
		}
		out = append(out, m)
	}
	if u, ok := res.Users[id]; ok && u != nil {
		out = append(out, u)
	}
	if r, ok := res.Roles[id]; ok && r != nil {
		out = append(out, r)
	}
	if ch, ok := res.Channels[id]; ok && ch != nil {
		out = append(out, ch)
	}
	if a, ok := res.Attachments[id]; ok && a != nil {
		out = append(out, a)
	}
	return out
}

type textConverter struct {
	target reflect.Type
}

func (c *textConverter) CanConvertTo(t reflect.Type) bool { return t == c.target }

func (c *textConverter) OptionType() discordgo.ApplicationCommandOptionType {
	return discordgo.ApplicationCommandOptionString
}

func (c *textConverter) Read(_ context.Context, in Input) (any, error) {
	s, ok := in.Value().(string)
	if !ok {
		return nil, result.NewError(result.ParseFailed, fmt.Sprintf("provided input cannot be read as %s", c.target))
	}

	ptr := c.target
	if ptr.Kind() != reflect.Pointer {
		ptr = reflect.PointerTo(ptr)
	}
	v := reflect.New(ptr.Elem())
	u, ok := v.Interface().(encoding.TextUnmarshaler)
	if !ok {
		return nil, result.NewError(result.ParseFailed, fmt.Sprintf("%s does not unmarshal text", c.target))
	}
	if err := u.UnmarshalText([]byte(s)); err != nil {
		return nil, result.Wrap(result.ParseFailed, fmt.Sprintf("%q is not a valid %s", s, c.target), err)
	}
	if c.target.Kind() == reflect.Pointer {
		return v.Interface(), nil
	}
	return v.Elem().Interface(), nil
}

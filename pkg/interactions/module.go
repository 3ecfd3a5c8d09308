package interactions

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"slices"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/interactions/pkg/convert"
)

var (
	// ErrInvalidModule is returned when a module or one of its commands is malformed.
	ErrInvalidModule = errors.New("interactions: invalid module")
	// ErrModuleExists is returned when a module is added twice for the same declaring type.
	ErrModuleExists = errors.New("interactions: module already registered")
)

var nameRe = regexp.MustCompile(`^[\p{Ll}\p{Lo}\p{N}_-]{1,32}$`)

// CommandKind tells which map a command is routed through.
type CommandKind int

const (
	KindSlash CommandKind = iota + 1
	KindUser
	KindMessage
	KindComponent
)

func (k CommandKind) String() string {
	switch k {
	case KindSlash:
		return "slash"
	case KindUser:
		return "user"
	case KindMessage:
		return "message"
	case KindComponent:
		return "component"
	}
	return fmt.Sprintf("CommandKind(%d)", int(k))
}

// HandlerFunc runs a command. args holds one converted value per declared
// parameter, in declaration order. Return a *result.Error to pick the
// reported kind; any other error is reported as an Exception.
type HandlerFunc func(ctx context.Context, c *Context, args []any) error

// Middleware wraps a handler.
type Middleware func(HandlerFunc) HandlerFunc

// Apply wraps h so that the first middleware is the outermost.
func Apply(h HandlerFunc, mws ...Middleware) HandlerFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Parameter declares one typed argument of a command.
type Parameter struct {
	Name        string
	Description string
	Type        reflect.Type
	Required    bool
	Choices     []*discordgo.ApplicationCommandOptionChoice
	// Validate checks a converted value. A failure is reported as BadArgs.
	Validate func(v any) error
}

// ParamOption tweaks a Parameter.
type ParamOption func(*Parameter)

// Required marks the parameter as mandatory.
func Required() ParamOption { return func(p *Parameter) { p.Required = true } }

// Choices restricts the parameter to fixed values.
func Choices(choices ...*discordgo.ApplicationCommandOptionChoice) ParamOption {
	return func(p *Parameter) { p.Choices = choices }
}

// Validate attaches a constraint checked after conversion.
func Validate(fn func(v any) error) ParamOption {
	return func(p *Parameter) { p.Validate = fn }
}

// Param declares a parameter of type T.
func Param[T any](name, description string, opts ...ParamOption) Parameter {
	p := Parameter{Name: name, Description: description, Type: convert.TypeOf[T]()}
	for _, o := range opts {
		o(&p)
	}
	return p
}

// Command describes one routable handler. It belongs to exactly one module.
type Command struct {
	kind             CommandKind
	name             string
	description      string
	handler          HandlerFunc
	params           []Parameter
	ignoreGroupNames bool
	middleware       []Middleware
	module           *Module
}

// CommandOption tweaks a Command.
type CommandOption func(*Command)

// WithParameters declares the command's parameters.
func WithParameters(params ...Parameter) CommandOption {
	return func(c *Command) { c.params = append(c.params, params...) }
}

// IgnoreGroupNames registers the command under its bare name, outside the
// groups of its module.
func IgnoreGroupNames() CommandOption {
	return func(c *Command) { c.ignoreGroupNames = true }
}

// Use wraps the command handler with middleware.
func Use(mws ...Middleware) CommandOption {
	return func(c *Command) { c.middleware = append(c.middleware, mws...) }
}

// NewSlashCommand declares a chat input command.
func NewSlashCommand(name, description string, h HandlerFunc, opts ...CommandOption) *Command {
	return newCommand(KindSlash, name, description, h, opts)
}

// NewContextCommand declares a user or message context menu command. The
// handler receives the target *discordgo.User or *discordgo.Message as its
// only argument.
func NewContextCommand(kind CommandKind, name string, h HandlerFunc, opts ...CommandOption) *Command {
	return newCommand(kind, name, "", h, opts)
}

// NewComponentCommand declares a message component handler. Segments of
// customID equal to "*" capture one token each; captures are converted into
// the declared parameters in order.
func NewComponentCommand(customID string, h HandlerFunc, opts ...CommandOption) *Command {
	return newCommand(KindComponent, customID, "", h, opts)
}

func newCommand(kind CommandKind, name, description string, h HandlerFunc, opts []CommandOption) *Command {
	c := &Command{kind: kind, name: name, description: description, handler: h}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Command) Kind() CommandKind { return c.kind }
func (c *Command) Name() string { return c.name }
func (c *Command) Description() string { return c.description }
func (c *Command) Parameters() []Parameter { return slices.Clone(c.params) }
func (c *Command) Module() *Module { return c.module }
func (c *Command) IgnoreGroupNames() bool { return c.ignoreGroupNames || c.kind == KindUser || c.kind == KindMessage }

// Groups lists the group names of the modules enclosing the command,
// outermost first.
func (c *Command) Groups() []string {
	var out []string
	for _, m := range c.module.groupChain() {
		out = append(out, m.groupName)
	}
	return out
}

// run returns the handler wrapped with module and command middleware.
func (c *Command) run() HandlerFunc {
	var mws []Middleware
	for _, m := range c.module.lineage() {
		mws = append(mws, m.middleware...)
	}
	mws = append(mws, c.middleware...)
	return Apply(c.handler, mws...)
}

// Module is a named set of commands, optionally exposed as a command group.
// It is immutable once added to a Service.
type Module struct {
	name              string
	groupName         string
	description       string
	defaultPermission *bool
	memberPermissions *int64
	attributes        []any
	middleware        []Middleware
	commands          []*Command
	subModules        []*Module
	parent            *Module
	declarer          reflect.Type
}

// ModuleOption configures a Module.
type ModuleOption func(*Module)

// AsGroup exposes the module as a command group.
func AsGroup(name, description string) ModuleOption {
	return func(m *Module) {
		m.groupName = name
		m.description = description
	}
}

// WithDefaultPermission sets whether members can use the module's commands
// without an explicit override.
func WithDefaultPermission(allowed bool) ModuleOption {
	return func(m *Module) { m.defaultPermission = &allowed }
}

// WithMemberPermissions restricts the module's commands to members holding perms.
func WithMemberPermissions(perms int64) ModuleOption {
	return func(m *Module) { m.memberPermissions = &perms }
}

// WithAttributes attaches arbitrary metadata, inherited by sub-modules.
func WithAttributes(attrs ...any) ModuleOption {
	return func(m *Module) { m.attributes = append(m.attributes, attrs...) }
}

// WithMiddleware wraps every command of the module and its sub-modules.
func WithMiddleware(mws ...Middleware) ModuleOption {
	return func(m *Module) { m.middleware = append(m.middleware, mws...) }
}

// WithCommands adds commands to the module.
func WithCommands(cmds ...*Command) ModuleOption {
	return func(m *Module) { m.commands = append(m.commands, cmds...) }
}

// WithSubModules nests modules.
func WithSubModules(subs ...*Module) ModuleOption {
	return func(m *Module) { m.subModules = append(m.subModules, subs...) }
}

// NewModule builds and validates a module tree.
func NewModule(name string, opts ...ModuleOption) (*Module, error) {
	m := &Module{name: name}
	for _, o := range opts {
		o(m)
	}
	if err := m.link(nil); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Module) link(parent *Module) error {
	if m.parent != nil && m.parent != parent {
		return fmt.Errorf("%w: module %q already has a parent", ErrInvalidModule, m.name)
	}
	m.parent = parent
	if m.groupName != "" {
		if err := checkName(m.groupName); err != nil {
			return fmt.Errorf("%w: group of %q: %v", ErrInvalidModule, m.name, err)
		}
		if err := checkDescription(m.description); err != nil {
			return fmt.Errorf("%w: group %q: %v", ErrInvalidModule, m.groupName, err)
		}
	}
	for _, c := range m.commands {
		if c == nil || c.handler == nil {
			return fmt.Errorf("%w: module %q has a command without handler", ErrInvalidModule, m.name)
		}
		if c.module != nil && c.module != m {
			return fmt.Errorf("%w: command %q already belongs to module %q", ErrInvalidModule, c.name, c.module.name)
		}
		c.module = m
		if err := c.validate(); err != nil {
			return fmt.Errorf("%w: module %q: %v", ErrInvalidModule, m.name, err)
		}
	}
	for _, sub := range m.subModules {
		if sub == nil {
			return fmt.Errorf("%w: module %q has a nil sub-module", ErrInvalidModule, m.name)
		}
		if err := sub.link(m); err != nil {
			return err
		}
	}
	return nil
}

func (c *Command) validate() error {
	switch c.kind {
	case KindSlash:
		if err := checkName(c.name); err != nil {
			return fmt.Errorf("command %q: %v", c.name, err)
		}
		if err := checkDescription(c.description); err != nil {
			return fmt.Errorf("command %q: %v", c.name, err)
		}
		if n := len(c.groupChainIfRouted()); n > 2 {
			return fmt.Errorf("command %q is nested %d groups deep, at most 2 are allowed", c.name, n)
		}
	case KindUser, KindMessage:
		if n := utf8.RuneCountInString(c.name); n < 1 || n > 32 {
			return fmt.Errorf("context command %q: name must be 1-32 characters", c.name)
		}
		if len(c.params) > 0 {
			return fmt.Errorf("context command %q: the target is its only argument", c.name)
		}
	case KindComponent:
		if n := len(c.name); n < 1 || n > 100 {
			return fmt.Errorf("component %q: custom id must be 1-100 characters", c.name)
		}
	default:
		return fmt.Errorf("command %q has unknown kind %d", c.name, c.kind)
	}

	seen := make(map[string]struct{}, len(c.params))
	optional := false
	for _, p := range c.params {
		if p.Type == nil {
			return fmt.Errorf("command %q: parameter %q has no type", c.name, p.Name)
		}
		if c.kind == KindSlash {
			if err := checkName(p.Name); err != nil {
				return fmt.Errorf("command %q: parameter: %v", c.name, err)
			}
			if err := checkDescription(p.Description); err != nil {
				return fmt.Errorf("command %q: parameter %q: %v", c.name, p.Name, err)
			}
			if p.Required && optional {
				return fmt.Errorf("command %q: required parameter %q follows an optional one", c.name, p.Name)
			}
			optional = optional || !p.Required
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("command %q: duplicate parameter %q", c.name, p.Name)
		}
		seen[p.Name] = struct{}{}
	}
	return nil
}

func (c *Command) groupChainIfRouted() []*Module {
	if c.IgnoreGroupNames() {
		return nil
	}
	return c.module.groupChain()
}

func checkName(name string) error {
	if !nameRe.MatchString(name) {
		return fmt.Errorf("name %q must be 1-32 lowercase letters, digits, '-' or '_'", name)
	}
	return nil
}

func checkDescription(d string) error {
	if n := utf8.RuneCountInString(d); n < 1 || n > 100 {
		return fmt.Errorf("description must be 1-100 characters, got %d", n)
	}
	return nil
}

func (m *Module) Name() string { return m.name }
func (m *Module) GroupName() string { return m.groupName }
func (m *Module) Description() string { return m.description }
func (m *Module) IsGroup() bool { return m.groupName != "" }
func (m *Module) Parent() *Module { return m.parent }
func (m *Module) Commands() []*Command { return slices.Clone(m.commands) }
func (m *Module) SubModules() []*Module { return slices.Clone(m.subModules) }

// DeclaringType is the type of the Declarer the module was added from.
func (m *Module) DeclaringType() reflect.Type { return m.root().declarer }

// Attributes returns inherited attributes followed by the module's own.
func (m *Module) Attributes() []any {
	var out []any
	for _, a := range m.lineage() {
		out = append(out, a.attributes...)
	}
	return out
}

// DefaultPermission reports the nearest explicit default permission flag.
func (m *Module) DefaultPermission() (allowed, ok bool) {
	for a := m; a != nil; a = a.parent {
		if a.defaultPermission != nil {
			return *a.defaultPermission, true
		}
	}
	return false, false
}

func (m *Module) memberPerms() *int64 {
	for a := m; a != nil; a = a.parent {
		if a.memberPermissions != nil {
			return a.memberPermissions
		}
	}
	if allowed, ok := m.DefaultPermission(); ok && !allowed {
		var none int64
		return &none
	}
	return nil
}

func (m *Module) root() *Module {
	for m.parent != nil {
		m = m.parent
	}
	return m
}

// lineage lists the modules from the root down to m.
func (m *Module) lineage() []*Module {
	var out []*Module
	for a := m; a != nil; a = a.parent {
		out = append(out, a)
	}
	slices.Reverse(out)
	return out
}

// groupChain lists the enclosing modules exposed as groups, outermost first.
func (m *Module) groupChain() []*Module {
	var out []*Module
	for _, a := range m.lineage() {
		if a.groupName != "" {
			out = append(out, a)
		}
	}
	return out
}

// allCommands lists the commands of m and its sub-modules, depth first.
func (m *Module) allCommands() []*Command {
	out := slices.Clone(m.commands)
	for _, sub := range m.subModules {
		out = append(out, sub.allCommands()...)
	}
	return out
}

// Declarer produces the module a type contributes.
type Declarer interface {
	DeclareModule() (*Module, error)
}

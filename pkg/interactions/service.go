// Package interactions routes Discord interactions to the handlers declared
// by modules, converts their options into typed arguments, and keeps the
// platform's registered commands in line with the declared ones.
package interactions

import (
	"fmt"
	"io"
	"reflect"
	"slices"
	"sync"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/keshon/interactions/pkg/cmdmap"
	"github.com/keshon/interactions/pkg/convert"
	"github.com/keshon/interactions/pkg/jobmgr"
)

const tracerName = "github.com/keshon/interactions"

// Service owns the command maps, the converter registry and the module set.
type Service struct {
	// mu serializes module registration and removal.
	mu      sync.Mutex
	modules map[reflect.Type]*Module
	order   []reflect.Type

	slash      *cmdmap.Map[*Command]
	context    *cmdmap.Map[*Command]
	components *cmdmap.Map[*Command]

	converters *convert.Registry
	jobs       *jobmgr.Manager
	tracer     trace.Tracer
	transport  Transport
	cache      CommandCache
	log        zerolog.Logger

	runMode          RunMode
	throwOnError     bool
	deleteUnknownAck bool

	Log                    Event[LogEntry]
	SlashCommandExecuted   Event[Executed]
	ContextCommandExecuted Event[Executed]
	ComponentExecuted      Event[Executed]
}

// New returns a Service configured by cfg.
func New(cfg Config) *Service {
	s := &Service{
		modules:          make(map[reflect.Type]*Module),
		slash:            cmdmap.New[*Command](),
		context:          cmdmap.New[*Command](),
		components:       cmdmap.New[*Command](cfg.ComponentSeparators...),
		converters:       cfg.Converters,
		jobs:             cfg.Jobs,
		tracer:           cfg.Tracer,
		transport:        cfg.Transport,
		cache:            cfg.Cache,
		runMode:          cfg.RunMode,
		throwOnError:     cfg.ThrowOnError,
		deleteUnknownAck: cfg.DeleteUnknownCommandAck,
	}
	if s.converters == nil {
		s.converters = convert.NewDefaultRegistry()
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}

	base := zerolog.New(io.Discard).Level(zerolog.InfoLevel)
	if cfg.Logger != nil {
		base = *cfg.Logger
	}
	s.log = base.With().Str("component", "interactions").Logger().Hook(logHook{event: &s.Log})

	if s.jobs == nil {
		s.jobs = jobmgr.NewManager(func(e jobmgr.Event) {
			if e.Err != nil {
				s.log.Debug().Str("job", e.Job).Err(e.Err).Msg("async handler " + e.State)
			}
		})
	}
	return s
}

// Converters returns the registry used to convert parameters.
func (s *Service) Converters() *convert.Registry { return s.converters }

// Jobs returns the manager tracking handlers started in RunAsync mode.
func (s *Service) Jobs() *jobmgr.Manager { return s.jobs }

// RegisterConverter binds a converter to exactly t.
func (s *Service) RegisterConverter(t reflect.Type, c convert.Converter) error {
	return s.converters.Register(t, c)
}

// RegisterTemplate binds a parametric converter to a capability.
func (s *Service) RegisterTemplate(capability reflect.Type, tpl convert.Template) error {
	return s.converters.RegisterTemplate(capability, tpl)
}

// RemoveConverter drops the converter bound to exactly t.
func (s *Service) RemoveConverter(t reflect.Type) bool { return s.converters.Remove(t) }

// RemoveTemplate drops the template bound to capability.
func (s *Service) RemoveTemplate(capability reflect.Type) bool {
	return s.converters.RemoveTemplate(capability)
}

// AddModule registers the module d declares. A declaring type can be added
// once; every command of the module tree is routed, or none is.
func (s *Service) AddModule(d Declarer) (*Module, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addModule(d)
}

// AddModules registers several modules. When one fails, the modules added
// by this call are removed again.
func (s *Service) AddModules(ds ...Declarer) ([]*Module, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := make([]*Module, 0, len(ds))
	for _, d := range ds {
		m, err := s.addModule(d)
		if err != nil {
			for _, a := range added {
				s.removeModule(a.declarer)
			}
			return nil, err
		}
		added = append(added, m)
	}
	return added, nil
}

func (s *Service) addModule(d Declarer) (*Module, error) {
	if d == nil {
		return nil, fmt.Errorf("%w: nil declarer", ErrInvalidModule)
	}
	t := reflect.TypeOf(d)
	if _, ok := s.modules[t]; ok {
		return nil, fmt.Errorf("%w: %s", ErrModuleExists, t)
	}

	m, err := d.DeclareModule()
	if err != nil {
		return nil, fmt.Errorf("declare %s: %w", t, err)
	}
	if m == nil || m.parent != nil {
		return nil, fmt.Errorf("%w: %s must declare a root module", ErrInvalidModule, t)
	}
	if m.declarer != nil {
		return nil, fmt.Errorf("%w: module %q is already registered by %s", ErrInvalidModule, m.name, m.declarer)
	}

	var routed []*Command
	rollback := func() {
		for _, c := range routed {
			s.mapFor(c.kind).RemoveEntry(c)
		}
	}
	for _, c := range m.allCommands() {
		if c.kind != KindComponent {
			if err := s.checkParameters(c); err != nil {
				rollback()
				return nil, err
			}
		}
		if err := s.mapFor(c.kind).Add(c); err != nil {
			rollback()
			return nil, fmt.Errorf("module %q: %s command %q: %w", m.name, c.kind, c.name, err)
		}
		routed = append(routed, c)
	}

	mods := append(s.orderedModules(), m)
	if _, err := s.buildCommands(mods); err != nil {
		rollback()
		return nil, fmt.Errorf("module %q: %w", m.name, err)
	}

	m.declarer = t
	s.modules[t] = m
	s.order = append(s.order, t)
	s.log.Info().Str("module", m.name).Str("type", t.String()).Int("commands", len(routed)).Msg("module added")
	return m, nil
}

func (s *Service) checkParameters(c *Command) error {
	for _, p := range c.params {
		if _, err := s.converters.Get(p.Type); err != nil {
			return fmt.Errorf("%w: command %q parameter %q: %w", ErrInvalidModule, c.name, p.Name, err)
		}
	}
	return nil
}

// RemoveModule unregisters the module added for the declaring type t and
// every command of its tree. It reports whether anything was removed.
func (s *Service) RemoveModule(t reflect.Type) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeModule(t)
}

// RemoveModuleOf is RemoveModule for the type of d.
func (s *Service) RemoveModuleOf(d Declarer) bool {
	return s.RemoveModule(reflect.TypeOf(d))
}

func (s *Service) removeModule(t reflect.Type) bool {
	m, ok := s.modules[t]
	if !ok {
		return false
	}
	for _, c := range m.allCommands() {
		s.mapFor(c.kind).RemoveEntry(c)
	}
	delete(s.modules, t)
	s.order = slices.DeleteFunc(s.order, func(k reflect.Type) bool { return k == t })
	m.declarer = nil
	s.log.Info().Str("module", m.name).Str("type", t.String()).Msg("module removed")
	return true
}

// Modules returns the registered modules in registration order.
func (s *Service) Modules() []*Module {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orderedModules()
}

func (s *Service) orderedModules() []*Module {
	out := make([]*Module, 0, len(s.order))
	for _, t := range s.order {
		out = append(out, s.modules[t])
	}
	return out
}

func (s *Service) mapFor(k CommandKind) *cmdmap.Map[*Command] {
	switch k {
	case KindUser, KindMessage:
		return s.context
	case KindComponent:
		return s.components
	default:
		return s.slash
	}
}

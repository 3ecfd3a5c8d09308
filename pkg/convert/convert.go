// Package convert turns interaction option values into typed Go values.
//
// A Registry resolves a requested reflect.Type to a Converter in three steps:
// an exact registration, then the first registered converter that declares it
// can convert to the type, then the most specific parametric Template whose
// capability the type satisfies. Template instances are built on first use
// and cached per concrete type.
package convert

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sync"

	"github.com/bwmarrin/discordgo"
)

var (
	// ErrNoConverter is returned when no rule matches the requested type.
	ErrNoConverter = errors.New("convert: no converter")
	// ErrNotConvertible rejects a converter that cannot produce the target type.
	ErrNotConvertible = errors.New("convert: converter cannot convert to type")
	// ErrTemplateArity rejects a template without exactly one type parameter.
	ErrTemplateArity = errors.New("convert: template must have exactly one type parameter")
	// ErrConstraint rejects a template whose constraint does not accept the capability.
	ErrConstraint = errors.New("convert: template constraint does not accept capability")
	// ErrInvalidTemplate rejects a template without a factory or capability.
	ErrInvalidTemplate = errors.New("convert: invalid template")
)

// Input is what a converter reads from.
type Input struct {
	Option   *discordgo.ApplicationCommandInteractionDataOption
	Resolved *discordgo.ApplicationCommandInteractionDataResolved
	GuildID  string
}

// Value returns the raw option value, nil when there is no option.
func (in Input) Value() any {
	if in.Option == nil {
		return nil
	}
	return in.Option.Value
}

// Converter reads one option into a value of the type it was resolved for.
type Converter interface {
	// CanConvertTo reports whether Read can produce values assignable to t.
	CanConvertTo(t reflect.Type) bool
	// OptionType is the option type announced to the platform.
	OptionType() discordgo.ApplicationCommandOptionType
	// Read converts the input. Returning a *result.Error picks the reported kind.
	Read(ctx context.Context, in Input) (any, error)
}

// Template is a parametric converter bound to a capability. Params holds the
// constraint of each type parameter; New materializes a converter for a
// concrete type satisfying the capability.
type Template struct {
	Name   string
	Params []reflect.Type
	New    func(target reflect.Type) Converter
}

type instance struct {
	conv Converter
	from reflect.Type
}

// Registry maps types to converters. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	exact     map[reflect.Type]Converter
	order     []reflect.Type
	templates map[reflect.Type]Template
	tplOrder  []reflect.Type
	instances map[reflect.Type]instance
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		exact:     make(map[reflect.Type]Converter),
		templates: make(map[reflect.Type]Template),
		instances: make(map[reflect.Type]instance),
	}
}

// Register binds c to exactly t.
func (r *Registry) Register(t reflect.Type, c Converter) error {
	if t == nil || c == nil {
		return fmt.Errorf("%w: nil type or converter", ErrNotConvertible)
	}
	if !c.CanConvertTo(t) {
		return fmt.Errorf("%w: %s", ErrNotConvertible, t)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.exact[t]; !ok {
		r.order = append(r.order, t)
	}
	r.exact[t] = c
	return nil
}

// Remove drops the exact registration for t.
func (r *Registry) Remove(t reflect.Type) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.exact[t]; !ok {
		return false
	}
	delete(r.exact, t)
	r.order = slices.DeleteFunc(r.order, func(k reflect.Type) bool { return k == t })
	return true
}

// RegisterTemplate binds a parametric template to a capability type.
func (r *Registry) RegisterTemplate(capability reflect.Type, tpl Template) error {
	if capability == nil || tpl.New == nil {
		return fmt.Errorf("%w: %q needs a capability and a factory", ErrInvalidTemplate, tpl.Name)
	}
	if len(tpl.Params) != 1 {
		return fmt.Errorf("%w: %q has %d", ErrTemplateArity, tpl.Name, len(tpl.Params))
	}
	if tpl.Params[0] == nil || !capability.AssignableTo(tpl.Params[0]) {
		return fmt.Errorf("%w: %q does not accept %s", ErrConstraint, tpl.Name, capability)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.templates[capability]; !ok {
		r.tplOrder = append(r.tplOrder, capability)
	}
	r.templates[capability] = tpl
	r.dropInstancesFrom(capability)
	return nil
}

// RemoveTemplate drops the template bound to capability along with every
// instance it produced.
func (r *Registry) RemoveTemplate(capability reflect.Type) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.templates[capability]; !ok {
		return false
	}
	delete(r.templates, capability)
	r.tplOrder = slices.DeleteFunc(r.tplOrder, func(k reflect.Type) bool { return k == capability })
	r.dropInstancesFrom(capability)
	return true
}

func (r *Registry) dropInstancesFrom(capability reflect.Type) {
	for t, inst := range r.instances {
		if inst.from == capability {
			delete(r.instances, t)
		}
	}
}

// Get resolves the converter for t.
func (r *Registry) Get(t reflect.Type) (Converter, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil type", ErrNoConverter)
	}

	r.mu.RLock()
	if c, ok := r.exact[t]; ok {
		r.mu.RUnlock()
		return c, nil
	}
	for _, k := range r.order {
		if c := r.exact[k]; c.CanConvertTo(t) {
			r.mu.RUnlock()
			return c, nil
		}
	}
	if inst, ok := r.instances[t]; ok {
		r.mu.RUnlock()
		return inst.conv, nil
	}
	capability, tpl, ok := r.mostSpecific(t)
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoConverter, t)
	}

	// Concurrent first use may build twice; instances for the same type are
	// interchangeable so the last store wins.
	conv := tpl.New(t)
	if conv == nil {
		return nil, fmt.Errorf("%w: template %q built nothing for %s", ErrNoConverter, tpl.Name, t)
	}
	r.mu.Lock()
	r.instances[t] = instance{conv: conv, from: capability}
	r.mu.Unlock()
	return conv, nil
}

// mostSpecific picks, among templates whose capability t satisfies, the one
// whose capability has the fewest applicable capabilities assignable to it.
// Ties keep registration order. Callers hold r.mu.
func (r *Registry) mostSpecific(t reflect.Type) (reflect.Type, Template, bool) {
	var applicable []reflect.Type
	for _, c := range r.tplOrder {
		if t.AssignableTo(c) {
			applicable = append(applicable, c)
		}
	}
	if len(applicable) == 0 {
		return nil, Template{}, false
	}

	best, bestScore := applicable[0], -1
	for _, c := range applicable {
		score := 0
		for _, o := range applicable {
			if o.AssignableTo(c) {
				score++
			}
		}
		if bestScore < 0 || score < bestScore {
			best, bestScore = c, score
		}
	}
	return best, r.templates[best], true
}

// TypeOf is shorthand for reflect.TypeFor.
func TypeOf[T any]() reflect.Type {
	return reflect.TypeFor[T]()
}

// Package cmdmap provides the prefix tree that maps command paths to handlers.
// A path is the ordered list of group names from the outermost module down to
// the command name; raw input is tokenized with a configurable separator set
// before walking the tree one token per level.
package cmdmap

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/keshon/interactions/pkg/result"
)

// Wildcard is a key segment that matches any single token. Matched tokens are
// returned as captures in the search result.
const Wildcard = "*"

var (
	// ErrConflict is returned when a key already holds a handler.
	ErrConflict = errors.New("cmdmap: conflicting registration")
	// ErrEmptyKey is returned when a key has no segments.
	ErrEmptyKey = errors.New("cmdmap: empty key")
)

// DefaultSeparators split raw input into path tokens.
var DefaultSeparators = []rune{' ', ',', '\n', '\r'}

// Entry is anything that can be keyed into a Map.
type Entry interface {
	// Name is the last path segment.
	Name() string
	// IgnoreGroupNames collapses the key to the bare name.
	IgnoreGroupNames() bool
	// Groups lists ancestor group names, outermost first. Empty names are
	// skipped by the map.
	Groups() []string
}

type node[T any] struct {
	children map[string]*node[T]
	value    T
	set      bool
}

func newNode[T any]() *node[T] {
	return &node[T]{children: make(map[string]*node[T])}
}

// Map is a command prefix tree. Structural writes and reads are serialized by
// an internal RWMutex, so lookups never observe a half-written node.
type Map[T Entry] struct {
	mu         sync.RWMutex
	root       *node[T]
	separators []rune
}

// New returns an empty Map splitting on DefaultSeparators plus extra.
func New[T Entry](extra ...rune) *Map[T] {
	seps := slices.Clone(DefaultSeparators)
	for _, r := range extra {
		if !slices.Contains(seps, r) {
			seps = append(seps, r)
		}
	}
	return &Map[T]{root: newNode[T](), separators: seps}
}

// Separators returns the runes used to tokenize input.
func (m *Map[T]) Separators() []rune {
	return slices.Clone(m.separators)
}

// Split tokenizes input, dropping empty tokens.
func (m *Map[T]) Split(input string) []string {
	return strings.FieldsFunc(input, func(r rune) bool {
		return slices.Contains(m.separators, r)
	})
}

// KeyOf builds the path of v: its group names followed by its name, or the
// bare name when v ignores group names.
func (m *Map[T]) KeyOf(v T) []string {
	var segments []string
	if !v.IgnoreGroupNames() {
		for _, g := range v.Groups() {
			if g != "" {
				segments = append(segments, g)
			}
		}
	}
	segments = append(segments, v.Name())

	key := make([]string, 0, len(segments))
	for _, s := range segments {
		key = append(key, m.Split(s)...)
	}
	return key
}

// Add inserts v under its own key.
func (m *Map[T]) Add(v T) error {
	return m.Insert(m.KeyOf(v), v)
}

// RemoveEntry clears the handler stored under v's key.
func (m *Map[T]) RemoveEntry(v T) bool {
	return m.Remove(m.KeyOf(v))
}

// Insert stores v under key, creating intermediate nodes as needed.
func (m *Map[T]) Insert(key []string, v T) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.root
	for _, seg := range key {
		child, ok := n.children[seg]
		if !ok {
			child = newNode[T]()
			n.children[seg] = child
		}
		n = child
	}
	if n.set {
		return fmt.Errorf("%w: %s", ErrConflict, strings.Join(key, " "))
	}
	n.value = v
	n.set = true
	return nil
}

// Remove clears the handler at key. Intermediate nodes are kept.
func (m *Map[T]) Remove(key []string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.root
	for _, seg := range key {
		child, ok := n.children[seg]
		if !ok {
			return false
		}
		n = child
	}
	if !n.set {
		return false
	}
	var zero T
	n.value = zero
	n.set = false
	return true
}

// Lookup tokenizes input and resolves it to a handler.
func (m *Map[T]) Lookup(input string) Search[T] {
	s := m.LookupPath(m.Split(input))
	s.Text = input
	return s
}

// LookupPath resolves already tokenized input. Exact segments win over the
// wildcard at every level.
func (m *Map[T]) LookupPath(tokens []string) Search[T] {
	text := strings.Join(tokens, " ")
	if len(tokens) == 0 {
		return Search[T]{Result: result.Fail(result.UnknownCommand, "empty command input"), Text: text}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var captures []string
	n := m.root
	for i, tok := range tokens {
		if child, ok := n.children[tok]; ok {
			n = child
			continue
		}
		if child, ok := n.children[Wildcard]; ok {
			captures = append(captures, tok)
			n = child
			continue
		}
		return Search[T]{
			Result:   result.Fail(result.UnknownCommand, fmt.Sprintf("no command matches %q", text)),
			Text:     text,
			Residual: slices.Clone(tokens[i:]),
		}
	}
	if !n.set {
		return Search[T]{
			Result: result.Fail(result.UnknownCommand, fmt.Sprintf("%q is not a command", text)),
			Text:   text,
		}
	}
	return Search[T]{
		Result:   result.Success(),
		Text:     text,
		Value:    n.value,
		Captures: captures,
	}
}

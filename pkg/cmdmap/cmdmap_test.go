package cmdmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/interactions/pkg/result"
)

type testEntry struct {
	name   string
	groups []string
	ignore bool
}

func (e *testEntry) Name() string           { return e.name }
func (e *testEntry) IgnoreGroupNames() bool { return e.ignore }
func (e *testEntry) Groups() []string       { return e.groups }

func TestMap_RoundTrip(t *testing.T) {
	m := New[*testEntry]()
	h := &testEntry{name: "ban", groups: []string{"admin", "mod"}}
	require.NoError(t, m.Add(h))

	s := m.Lookup("admin mod ban")
	require.True(t, s.IsSuccess(), s.String())
	assert.Same(t, h, s.Value)

	assert.True(t, m.RemoveEntry(h))
	s = m.Lookup("admin mod ban")
	assert.False(t, s.IsSuccess())
	assert.Equal(t, result.UnknownCommand, s.Kind())
	assert.False(t, m.RemoveEntry(h), "second removal is a no-op")
}

func TestMap_KeyOfGroupPath(t *testing.T) {
	m := New[*testEntry]()

	nested := &testEntry{name: "ban", groups: []string{"admin", "", "mod"}}
	assert.Equal(t, []string{"admin", "mod", "ban"}, m.KeyOf(nested))

	standalone := &testEntry{name: "ban", groups: []string{"admin", "mod"}, ignore: true}
	assert.Equal(t, []string{"ban"}, m.KeyOf(standalone))
}

func TestMap_TokenizationVariants(t *testing.T) {
	m := New[*testEntry]()
	h := &testEntry{name: "ban", groups: []string{"mod"}}
	require.NoError(t, m.Add(h))

	for _, input := range []string{"mod ban", "mod,ban", "mod\nban", "mod\r\nban", "  mod ,, ban "} {
		s := m.Lookup(input)
		if assert.True(t, s.IsSuccess(), "input %q", input) {
			assert.Same(t, h, s.Value)
		}
	}
}

func TestMap_DuplicateKeyConflicts(t *testing.T) {
	m := New[*testEntry]()
	first := &testEntry{name: "ping"}
	require.NoError(t, m.Add(first))

	err := m.Add(&testEntry{name: "ping"})
	assert.ErrorIs(t, err, ErrConflict)

	s := m.Lookup("ping")
	assert.Same(t, first, s.Value, "existing handler must not be overwritten")
}

func TestMap_EmptyKeyRejected(t *testing.T) {
	m := New[*testEntry]()
	assert.ErrorIs(t, m.Insert(nil, &testEntry{}), ErrEmptyKey)
}

func TestMap_PartialMatchIsMissWithResidual(t *testing.T) {
	m := New[*testEntry]()
	require.NoError(t, m.Add(&testEntry{name: "ban", groups: []string{"mod"}}))

	s := m.Lookup("mod kick now")
	assert.Equal(t, result.UnknownCommand, s.Kind())
	assert.Equal(t, []string{"kick", "now"}, s.Residual)

	s = m.Lookup("mod")
	assert.Equal(t, result.UnknownCommand, s.Kind(), "group node without handler")
	assert.Empty(t, s.Residual)

	s = m.Lookup("   ")
	assert.Equal(t, result.UnknownCommand, s.Kind())
}

func TestMap_GroupNodeCanHoldHandler(t *testing.T) {
	m := New[*testEntry]()
	group := &testEntry{name: "mod"}
	sub := &testEntry{name: "ban", groups: []string{"mod"}}
	require.NoError(t, m.Add(sub))
	require.NoError(t, m.Add(group))

	assert.Same(t, group, m.Lookup("mod").Value)
	assert.Same(t, sub, m.Lookup("mod ban").Value)
}

func TestMap_RemoveKeepsSiblings(t *testing.T) {
	m := New[*testEntry]()
	ban := &testEntry{name: "ban", groups: []string{"mod"}}
	kick := &testEntry{name: "kick", groups: []string{"mod"}}
	require.NoError(t, m.Add(ban))
	require.NoError(t, m.Add(kick))

	require.True(t, m.RemoveEntry(ban))
	assert.True(t, m.Lookup("mod kick").IsSuccess())
	assert.False(t, m.Lookup("mod ban").IsSuccess())

	// the cleared slot can be reused
	require.NoError(t, m.Add(ban))
	assert.True(t, m.Lookup("mod ban").IsSuccess())
}

func TestMap_WildcardCaptures(t *testing.T) {
	m := New[*testEntry](':')
	reroll := &testEntry{name: "roll:*"}
	exact := &testEntry{name: "roll:reset"}
	require.NoError(t, m.Add(reroll))
	require.NoError(t, m.Add(exact))

	s := m.Lookup("roll:20")
	require.True(t, s.IsSuccess())
	assert.Same(t, reroll, s.Value)
	assert.Equal(t, []string{"20"}, s.Captures)

	s = m.Lookup("roll:reset")
	assert.Same(t, exact, s.Value)
	assert.Empty(t, s.Captures)
}

func TestMap_ExtraSeparators(t *testing.T) {
	m := New[*testEntry](':', ',')
	assert.Equal(t, []rune{' ', ',', '\n', '\r', ':'}, m.Separators())
	assert.Equal(t, []string{"a", "b", "c"}, m.Split("a:b c"))
}

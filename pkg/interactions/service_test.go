package interactions

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/interactions/pkg/cmdmap"
	"github.com/keshon/interactions/pkg/result"
)

// adminTree declares admin > mod > ban plus a standalone whoami.
func adminTree(ban, whoami HandlerFunc) adminModule {
	return adminModule{build: func() (*Module, error) {
		mod, err := NewModule("moderation",
			AsGroup("mod", "Moderation"),
			WithCommands(
				NewSlashCommand("ban", "Ban a member", ban,
					WithParameters(
						Param[*discordgo.User]("target", "Who to ban", Required()),
						Param[string]("reason", "Why"),
					)),
			),
		)
		if err != nil {
			return nil, err
		}
		return NewModule("admin",
			AsGroup("admin", "Administration"),
			WithCommands(NewSlashCommand("whoami", "Show who you are", whoami, IgnoreGroupNames())),
			WithSubModules(mod),
		)
	}}
}

func TestService_GroupPathDispatch(t *testing.T) {
	s := New(Config{})
	var got []any
	_, err := s.AddModule(adminTree(func(_ context.Context, c *Context, args []any) error {
		got = args
		return nil
	}, noop))
	require.NoError(t, err)

	user := &discordgo.User{ID: "42", Username: "ren"}
	i := withResolved(
		chatInteraction("admin", group("mod", sub("ban", opt("target", discordgo.ApplicationCommandOptionUser, "42")))),
		&discordgo.ApplicationCommandInteractionDataResolved{Users: map[string]*discordgo.User{"42": user}},
	)

	res := s.Execute(context.Background(), i, nil)
	require.True(t, res.IsSuccess(), res.String())
	require.Len(t, got, 2)
	assert.Same(t, user, got[0])
	assert.Equal(t, "", got[1], "optional parameter defaults to zero")

	res = s.Execute(context.Background(), chatInteraction("whoami"), nil)
	assert.True(t, res.IsSuccess(), "standalone command ignores group names")

	res = s.Execute(context.Background(), chatInteraction("admin", sub("whoami")), nil)
	assert.Equal(t, result.UnknownCommand, res.Kind())
}

func TestService_ConversionShortCircuits(t *testing.T) {
	s := New(Config{})
	called := false
	validated := false
	var executed []Executed
	s.SlashCommandExecuted.Subscribe(func(e Executed) { executed = append(executed, e) })

	_, err := s.AddModule(toolsModule{build: func() (*Module, error) {
		return NewModule("tools", WithCommands(
			NewSlashCommand("add", "Add two numbers", func(context.Context, *Context, []any) error {
				called = true
				return nil
			}, WithParameters(
				Param[int]("a", "First", Required()),
				Param[int]("b", "Second", Required(), Validate(func(any) error {
					validated = true
					return errors.New("too big")
				})),
			)),
		))
	}})
	require.NoError(t, err)

	res := s.Execute(context.Background(), chatInteraction("add",
		opt("a", discordgo.ApplicationCommandOptionString, "abc"),
		opt("b", discordgo.ApplicationCommandOptionInteger, float64(2)),
	), nil)
	assert.Equal(t, result.ParseFailed, res.Kind())
	assert.False(t, called)
	assert.False(t, validated, "later parameters are not converted after a failure")
	require.Len(t, executed, 1)
	assert.Equal(t, result.ParseFailed, executed[0].Result.Kind())

	res = s.Execute(context.Background(), chatInteraction("add",
		opt("a", discordgo.ApplicationCommandOptionInteger, float64(1)),
		opt("b", discordgo.ApplicationCommandOptionInteger, float64(2)),
	), nil)
	assert.Equal(t, result.BadArgs, res.Kind())
	assert.False(t, called)

	res = s.Execute(context.Background(), chatInteraction("add",
		opt("b", discordgo.ApplicationCommandOptionInteger, float64(2)),
	), nil)
	assert.Equal(t, result.ParseFailed, res.Kind(), "missing required parameter")
}

func TestService_FaultIsolation(t *testing.T) {
	s := New(Config{})
	_, err := s.AddModule(toolsModule{build: func() (*Module, error) {
		return NewModule("tools", WithCommands(
			NewSlashCommand("explode", "Panics", func(context.Context, *Context, []any) error {
				var m map[string]int
				m["boom"]++
				return nil
			}),
			NewSlashCommand("fail", "Returns an error", func(context.Context, *Context, []any) error {
				return errors.New("disk full")
			}),
			NewSlashCommand("refuse", "Declines", func(context.Context, *Context, []any) error {
				return result.NewError(result.Unsuccessful, "not today")
			}),
			NewSlashCommand("ok", "Works", noop),
		))
	}})
	require.NoError(t, err)

	res := s.Execute(context.Background(), chatInteraction("explode"), nil)
	assert.Equal(t, result.Exception, res.Kind())
	assert.Error(t, res.Err())

	res = s.Execute(context.Background(), chatInteraction("fail"), nil)
	assert.Equal(t, result.Exception, res.Kind())
	assert.EqualError(t, res.Err(), "disk full")

	res = s.Execute(context.Background(), chatInteraction("refuse"), nil)
	assert.Equal(t, result.Unsuccessful, res.Kind())
	assert.Equal(t, "not today", res.Reason())

	assert.True(t, s.Execute(context.Background(), chatInteraction("ok"), nil).IsSuccess())
}

func TestService_ThrowOnErrorRepanicsAfterObservers(t *testing.T) {
	s := New(Config{ThrowOnError: true})
	_, err := s.AddModule(toolsModule{build: func() (*Module, error) {
		return NewModule("tools", WithCommands(
			NewSlashCommand("explode", "Panics", func(context.Context, *Context, []any) error { panic("kaboom") }),
		))
	}})
	require.NoError(t, err)

	notified := false
	s.SlashCommandExecuted.Subscribe(func(e Executed) {
		notified = true
		assert.Equal(t, result.Exception, e.Result.Kind())
	})
	assert.PanicsWithValue(t, "kaboom", func() {
		s.Execute(context.Background(), chatInteraction("explode"), nil)
	})
	assert.True(t, notified)
}

func TestService_UnknownCommandDeletesAckOnce(t *testing.T) {
	tr := newFakeTransport()
	s := New(Config{Transport: tr, DeleteUnknownCommandAck: true})
	executed := 0
	s.SlashCommandExecuted.Subscribe(func(Executed) { executed++ })

	res := s.Execute(context.Background(), chatInteraction("nope"), nil)
	assert.Equal(t, result.UnknownCommand, res.Kind())
	assert.Equal(t, 1, tr.deleteCalls())
	assert.Zero(t, executed, "misses fire no executed event")

	quiet := newFakeTransport()
	s = New(Config{Transport: quiet})
	res = s.Execute(context.Background(), chatInteraction("nope"), nil)
	assert.Equal(t, result.UnknownCommand, res.Kind())
	assert.Zero(t, quiet.deleteCalls())
}

func TestService_UnsupportedInteraction(t *testing.T) {
	tr := newFakeTransport()
	s := New(Config{Transport: tr, DeleteUnknownCommandAck: true})

	res := s.Execute(context.Background(), &discordgo.Interaction{Type: discordgo.InteractionPing}, nil)
	assert.Equal(t, result.UnknownCommand, res.Kind())
	assert.Zero(t, tr.deleteCalls(), "no lookup, no cleanup")

	res = s.Execute(context.Background(), nil, nil)
	assert.Equal(t, result.UnknownCommand, res.Kind())
}

func TestService_ComponentCaptures(t *testing.T) {
	s := New(Config{ComponentSeparators: []rune{':'}})
	var sides int
	var captures []string
	_, err := s.AddModule(toolsModule{build: func() (*Module, error) {
		return NewModule("dice", WithCommands(
			NewComponentCommand("roll:*", func(_ context.Context, c *Context, args []any) error {
				sides = args[0].(int)
				captures = c.Captures
				return nil
			}, WithParameters(Param[int]("sides", "Die size", Required()))),
		))
	}})
	require.NoError(t, err)

	var executed []Executed
	s.ComponentExecuted.Subscribe(func(e Executed) { executed = append(executed, e) })

	res := s.Execute(context.Background(), componentInteraction("roll:20"), nil)
	require.True(t, res.IsSuccess(), res.String())
	assert.Equal(t, 20, sides)
	assert.Equal(t, []string{"20"}, captures)
	require.Len(t, executed, 1)

	res = s.Execute(context.Background(), componentInteraction("roll:many"), nil)
	assert.Equal(t, result.ParseFailed, res.Kind())
}

func TestService_ContextCommand(t *testing.T) {
	s := New(Config{})
	var target any
	_, err := s.AddModule(toolsModule{build: func() (*Module, error) {
		return NewModule("menus", AsGroup("menus", "Menus"), WithCommands(
			NewContextCommand(KindUser, "Avatar", func(_ context.Context, _ *Context, args []any) error {
				target = args[0]
				return nil
			}),
		))
	}})
	require.NoError(t, err)

	user := &discordgo.User{ID: "7"}
	i := &discordgo.Interaction{
		Type: discordgo.InteractionApplicationCommand,
		Data: discordgo.ApplicationCommandInteractionData{
			Name:        "Avatar",
			CommandType: discordgo.UserApplicationCommand,
			TargetID:    "7",
			Resolved:    &discordgo.ApplicationCommandInteractionDataResolved{Users: map[string]*discordgo.User{"7": user}},
		},
	}
	res := s.Execute(context.Background(), i, nil)
	require.True(t, res.IsSuccess(), res.String())
	assert.Same(t, user, target)

	data := i.Data.(discordgo.ApplicationCommandInteractionData)
	data.CommandType = discordgo.MessageApplicationCommand
	i.Data = data
	res = s.Execute(context.Background(), i, nil)
	assert.Equal(t, result.UnknownCommand, res.Kind(), "a user command does not answer message menus")
}

func TestService_RemoveModuleClearsEveryMap(t *testing.T) {
	s := New(Config{ComponentSeparators: []rune{':'}})
	decl := toolsModule{build: func() (*Module, error) {
		nested, err := NewModule("nested", AsGroup("inner", "Inner"),
			WithCommands(NewSlashCommand("deep", "Deep", noop)))
		if err != nil {
			return nil, err
		}
		return NewModule("all", AsGroup("all", "Everything"),
			WithCommands(
				NewSlashCommand("top", "Top", noop),
				NewContextCommand(KindMessage, "Quote", noop),
				NewComponentCommand("btn:*", noop),
			),
			WithSubModules(nested),
		)
	}}
	_, err := s.AddModule(decl)
	require.NoError(t, err)

	assert.True(t, s.slash.LookupPath([]string{"all", "top"}).IsSuccess())
	assert.True(t, s.slash.LookupPath([]string{"all", "inner", "deep"}).IsSuccess())
	assert.True(t, s.context.Lookup("Quote").IsSuccess())
	assert.True(t, s.components.Lookup("all btn:1").IsSuccess())

	require.True(t, s.RemoveModuleOf(decl))
	assert.False(t, s.slash.LookupPath([]string{"all", "top"}).IsSuccess())
	assert.False(t, s.slash.LookupPath([]string{"all", "inner", "deep"}).IsSuccess())
	assert.False(t, s.context.Lookup("Quote").IsSuccess())
	assert.False(t, s.components.Lookup("all btn:1").IsSuccess())
	assert.Empty(t, s.Modules())

	assert.False(t, s.RemoveModule(reflect.TypeOf(decl)), "second removal is a no-op")

	_, err = s.AddModule(decl)
	assert.NoError(t, err, "module can be added again after removal")
}

func TestService_DuplicateModule(t *testing.T) {
	s := New(Config{})
	decl := adminTree(noop, noop)
	_, err := s.AddModule(decl)
	require.NoError(t, err)

	_, err = s.AddModule(decl)
	assert.ErrorIs(t, err, ErrModuleExists)
}

func TestService_ConflictRollsBack(t *testing.T) {
	s := New(Config{})
	_, err := s.AddModule(toolsModule{build: func() (*Module, error) {
		return NewModule("a", WithCommands(NewSlashCommand("ping", "Ping", noop)))
	}})
	require.NoError(t, err)

	_, err = s.AddModule(otherModule{build: func() (*Module, error) {
		return NewModule("b", WithCommands(
			NewSlashCommand("pong", "Pong", noop),
			NewSlashCommand("ping", "Ping again", noop),
		))
	}})
	assert.ErrorIs(t, err, cmdmap.ErrConflict)
	assert.False(t, s.slash.Lookup("pong").IsSuccess(), "commands of the failed module are not left behind")
	assert.Len(t, s.Modules(), 1)
}

func TestService_AddModulesIsAllOrNothing(t *testing.T) {
	s := New(Config{})
	_, err := s.AddModules(
		toolsModule{build: func() (*Module, error) {
			return NewModule("a", WithCommands(NewSlashCommand("ping", "Ping", noop)))
		}},
		otherModule{build: func() (*Module, error) {
			return nil, errors.New("broken")
		}},
	)
	require.Error(t, err)
	assert.Empty(t, s.Modules())
	assert.False(t, s.slash.Lookup("ping").IsSuccess())
}

func TestService_AsyncReportsThroughEvent(t *testing.T) {
	s := New(Config{RunMode: RunAsync})
	release := make(chan struct{})
	_, err := s.AddModule(toolsModule{build: func() (*Module, error) {
		return NewModule("slow", WithCommands(
			NewSlashCommand("slow", "Slow", func(context.Context, *Context, []any) error {
				<-release
				return errors.New("late failure")
			}),
		))
	}})
	require.NoError(t, err)

	done := make(chan Executed, 1)
	s.SlashCommandExecuted.Subscribe(func(e Executed) { done <- e })

	res := s.Execute(context.Background(), chatInteraction("slow"), nil)
	assert.True(t, res.IsSuccess(), "accepted before the handler finishes")
	close(release)

	select {
	case e := <-done:
		assert.Equal(t, result.Exception, e.Result.Kind())
		assert.EqualError(t, e.Result.Err(), "late failure")
	case <-time.After(2 * time.Second):
		t.Fatal("executed event not fired")
	}
}

func TestService_MiddlewareOrder(t *testing.T) {
	s := New(Config{})
	var trail []string
	mark := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, c *Context, args []any) error {
				trail = append(trail, name)
				return next(ctx, c, args)
			}
		}
	}
	_, err := s.AddModule(toolsModule{build: func() (*Module, error) {
		inner, err := NewModule("inner", WithMiddleware(mark("inner")),
			WithCommands(NewSlashCommand("go", "Go", func(context.Context, *Context, []any) error {
				trail = append(trail, "handler")
				return nil
			}, Use(mark("command")))))
		if err != nil {
			return nil, err
		}
		return NewModule("outer", WithMiddleware(mark("outer")), WithSubModules(inner))
	}})
	require.NoError(t, err)

	require.True(t, s.Execute(context.Background(), chatInteraction("go"), nil).IsSuccess())
	assert.Equal(t, []string{"outer", "inner", "command", "handler"}, trail)
}

func TestService_LogEvent(t *testing.T) {
	logger := zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.DebugLevel)
	s := New(Config{Logger: &logger})

	var mu sync.Mutex
	var lines []string
	unsubscribe := s.Log.Subscribe(func(e LogEntry) {
		mu.Lock()
		lines = append(lines, fmt.Sprintf("%s %s", e.Level, e.Message))
		mu.Unlock()
	})

	_, err := s.AddModule(adminTree(noop, noop))
	require.NoError(t, err)
	s.Execute(context.Background(), chatInteraction("missing"), nil)
	unsubscribe()
	s.RemoveModuleOf(adminTree(noop, noop))

	mu.Lock()
	defer mu.Unlock()
	joined := strings.Join(lines, "\n")
	assert.Contains(t, joined, "info module added")
	assert.Contains(t, joined, "debug unknown command")
	assert.NotContains(t, joined, "module removed", "unsubscribed observers are not called")
	assert.Zero(t, s.Log.Len())
}

func TestModule_Validation(t *testing.T) {
	_, err := NewModule("bad", WithCommands(NewSlashCommand("Bad Name", "x", noop)))
	assert.ErrorIs(t, err, ErrInvalidModule)

	_, err = NewModule("bad", WithCommands(NewSlashCommand("ok", "", noop)))
	assert.ErrorIs(t, err, ErrInvalidModule, "description is required")

	_, err = NewModule("bad", WithCommands(NewSlashCommand("ok", "desc", noop,
		WithParameters(Param[int]("a", "A"), Param[int]("b", "B", Required())))))
	assert.ErrorIs(t, err, ErrInvalidModule, "required after optional")

	deep := func() (*Module, error) {
		c, err := NewModule("c", AsGroup("c", "C"), WithCommands(NewSlashCommand("leaf", "Leaf", noop)))
		if err != nil {
			return nil, err
		}
		b, err := NewModule("b", AsGroup("b", "B"), WithSubModules(c))
		if err != nil {
			return nil, err
		}
		return NewModule("a", AsGroup("a", "A"), WithSubModules(b))
	}
	_, err = deep()
	assert.ErrorIs(t, err, ErrInvalidModule, "three groups are too deep")

	_, err = NewModule("menus", WithCommands(NewContextCommand(KindUser, "Avatar", noop,
		WithParameters(Param[string]("x", "X")))))
	assert.ErrorIs(t, err, ErrInvalidModule)
}

func TestService_UnconvertibleParameterRejected(t *testing.T) {
	type opaque struct{}
	s := New(Config{})
	_, err := s.AddModule(toolsModule{build: func() (*Module, error) {
		return NewModule("x", WithCommands(NewSlashCommand("x", "X", noop,
			WithParameters(Param[opaque]("o", "Opaque")))))
	}})
	assert.ErrorIs(t, err, ErrInvalidModule)
	assert.False(t, s.slash.Lookup("x").IsSuccess())
}

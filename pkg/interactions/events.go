package interactions

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/keshon/interactions/pkg/result"
)

// Event is an ordered list of subscribers notified synchronously.
type Event[T any] struct {
	mu     sync.Mutex
	nextID int
	subs   []subscriber[T]
}

type subscriber[T any] struct {
	id int
	fn func(T)
}

// Subscribe adds fn and returns a func removing it.
func (e *Event[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	e.subs = append(e.subs, subscriber[T]{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			for i, s := range e.subs {
				if s.id == id {
					e.subs = append(e.subs[:i:i], e.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Len returns the number of subscribers.
func (e *Event[T]) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}

// fire calls every subscriber in subscription order. Subscribers added or
// removed while firing take effect on the next call.
func (e *Event[T]) fire(v T) {
	e.mu.Lock()
	subs := e.subs
	e.mu.Unlock()
	for _, s := range subs {
		s.fn(v)
	}
}

// Executed is the payload of the executed events.
type Executed struct {
	Command *Command
	Context *Context
	Result  result.Result
}

// LogEntry is the payload of the Log event.
type LogEntry struct {
	Level   zerolog.Level
	Message string
}

// logHook forwards every log line of the service logger to an event.
type logHook struct {
	event *Event[LogEntry]
}

func (h logHook) Run(_ *zerolog.Event, level zerolog.Level, msg string) {
	if msg == "" {
		return
	}
	h.event.fire(LogEntry{Level: level, Message: msg})
}

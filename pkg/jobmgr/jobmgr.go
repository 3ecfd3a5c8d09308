// Package jobmgr runs named background jobs with cancellation and keeps
// track of the ones still running.
//
//	jm := jobmgr.NewManager(func(e jobmgr.Event) { log.Info().Str("job", e.Job).Msg(e.State) })
//	err := jm.StartAsync(ctx, "sync-guild", func(ctx context.Context) error {
//	    return doWork(ctx)
//	})
//	_ = jm.Stop("sync-guild")
//
// Jobs are removed from the manager when they return.
package jobmgr

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

var (
	// ErrRunning is returned when a job with the same name is active.
	ErrRunning = errors.New("jobmgr: job already running")
	// ErrNotRunning is returned by Stop for unknown names.
	ErrNotRunning = errors.New("jobmgr: job not running")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("jobmgr: manager closed")
)

// Job lifecycle states reported to the reporter.
const (
	StateRunning = "running"
	StateDone    = "done"
	StateError   = "error"
)

// Event describes one lifecycle transition of a job.
type Event struct {
	Job   string
	State string
	Err   error
}

// Reporter receives lifecycle events. It is called from the job goroutine.
type Reporter func(Event)

type job struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager starts, stops and tracks jobs. It is safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	jobs     map[string]*job
	closed   bool
	reporter Reporter
}

// NewManager creates a Manager. reporter may be nil.
func NewManager(reporter Reporter) *Manager {
	return &Manager{
		jobs:     make(map[string]*job),
		reporter: reporter,
	}
}

// StartAsync runs runner in its own goroutine and returns at once. The job
// context inherits values from parent but not its cancellation, so the job
// outlives the caller until it returns or is stopped.
func (m *Manager) StartAsync(parent context.Context, name string, runner func(ctx context.Context) error) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if _, exists := m.jobs[name]; exists {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrRunning, name)
	}
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	j := &job{cancel: cancel, done: make(chan struct{})}
	m.jobs[name] = j
	m.mu.Unlock()

	go func() {
		defer close(j.done)
		defer cancel()

		m.report(Event{Job: name, State: StateRunning})
		if err := runner(ctx); err != nil {
			m.report(Event{Job: name, State: StateError, Err: err})
		} else {
			m.report(Event{Job: name, State: StateDone})
		}

		m.mu.Lock()
		if m.jobs[name] == j {
			delete(m.jobs, name)
		}
		m.mu.Unlock()
	}()
	return nil
}

// Stop cancels a running job. It does not wait for the job to return.
func (m *Manager) Stop(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRunning, name)
	}
	j.cancel()
	delete(m.jobs, name)
	return nil
}

// Wait blocks until the named job returns or ctx is done. Unknown names
// return immediately.
func (m *Manager) Wait(ctx context.Context, name string) error {
	m.mu.Lock()
	j, ok := m.jobs[name]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels every job, refuses new ones, and waits for running jobs to
// return or ctx to be done.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	pending := make([]*job, 0, len(m.jobs))
	for name, j := range m.jobs {
		j.cancel()
		pending = append(pending, j)
		delete(m.jobs, name)
	}
	m.mu.Unlock()

	for _, j := range pending {
		select {
		case <-j.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// List returns the names of active jobs, sorted.
func (m *Manager) List() []string {
	m.mu.Lock()
	out := make([]string, 0, len(m.jobs))
	for k := range m.jobs {
		out = append(out, k)
	}
	m.mu.Unlock()
	slices.Sort(out)
	return out
}

// Status returns a one-line summary of active jobs.
func (m *Manager) Status() string {
	active := m.List()
	if len(active) == 0 {
		return "No jobs are running."
	}
	return fmt.Sprintf("Running jobs: %s", strings.Join(active, ", "))
}

func (m *Manager) report(e Event) {
	if m.reporter != nil {
		m.reporter(e)
	}
}

package toast

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultDuration is used when Push is called with duration 0 semantics
	// left to the convenience helpers. A duration <= 0 passed to Push means
	// the toast never auto-dismisses.
	DefaultDuration = 4 * time.Second
	// DefaultExitDuration is how long a toast stays in its exiting state
	// before it is removed, so the exit transition can play.
	DefaultExitDuration = 300 * time.Millisecond
)

// Kind classifies a toast.
type Kind int

const (
	Info Kind = iota
	Success
	Warning
	Error
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "info"
	}
}

// Toast is the renderable snapshot of one queued message.
type Toast struct {
	ID       string
	Message  string
	Kind     Kind
	Duration time.Duration
	Exiting  bool
}

// entry is the queue's internal record. The countdown is a single timer armed
// for the remaining duration, so a resume after a pause continues where the
// countdown left off instead of restarting.
type entry struct {
	Toast
	timer     *time.Timer
	startedAt time.Time
	remaining time.Duration
	paused    bool
}

// Queue holds an ordered collection of transient messages, each independently
// timed, pausable and dismissible. The queue exclusively owns its toasts;
// producers get back only the id.
type Queue struct {
	// Overridable before first use.
	ExitDuration time.Duration

	mu      sync.Mutex
	order   []string
	entries map[string]*entry
	updates chan struct{}
	closed  bool
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{
		ExitDuration: DefaultExitDuration,
		entries:      make(map[string]*entry),
		updates:      make(chan struct{}, 1),
	}
}

// Updates signals whenever the visible set changes. Signals coalesce; read
// Toasts for the current state.
func (q *Queue) Updates() <-chan struct{} {
	return q.updates
}

// Push enqueues a toast and returns its id. A duration <= 0 makes the toast
// persistent: it never auto-dismisses and ignores pause/resume.
func (q *Queue) Push(message string, kind Kind, duration time.Duration) string {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ""
	}

	e := &entry{
		Toast: Toast{
			ID:       uuid.NewString(),
			Message:  message,
			Kind:     kind,
			Duration: duration,
		},
		startedAt: time.Now(),
		remaining: duration,
	}
	q.order = append(q.order, e.ID)
	q.entries[e.ID] = e

	if duration > 0 {
		id := e.ID
		e.timer = time.AfterFunc(duration, func() { q.Dismiss(id) })
	}
	q.notifyLocked()
	return e.ID
}

// Success enqueues a success toast with the default duration.
func (q *Queue) Success(message string) string {
	return q.Push(message, Success, DefaultDuration)
}

// Error enqueues an error toast with the default duration.
func (q *Queue) Error(message string) string {
	return q.Push(message, Error, DefaultDuration)
}

// Warning enqueues a warning toast with the default duration.
func (q *Queue) Warning(message string) string {
	return q.Push(message, Warning, DefaultDuration)
}

// Info enqueues an info toast with the default duration.
func (q *Queue) Info(message string) string {
	return q.Push(message, Info, DefaultDuration)
}

// Dismiss begins the two-phase removal of a toast: it is marked exiting so
// the exit transition plays, then removed after ExitDuration. Idempotent:
// unknown or already-exiting ids are a no-op. Natural expiry takes the same
// path.
func (q *Queue) Dismiss(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[id]
	if !ok || e.Exiting {
		return
	}
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.Exiting = true
	e.timer = time.AfterFunc(q.ExitDuration, func() { q.remove(id) })
	q.notifyLocked()
}

// Pause suspends a toast's countdown, banking the time already elapsed.
// Persistent, paused and exiting toasts are unaffected.
func (q *Queue) Pause(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[id]
	if !ok || e.Duration <= 0 || e.paused || e.Exiting {
		return
	}
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.remaining -= time.Since(e.startedAt)
	if e.remaining < 0 {
		e.remaining = 0
	}
	e.paused = true
}

// Resume restarts a paused toast's countdown for exactly the remaining
// duration.
func (q *Queue) Resume(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[id]
	if !ok || !e.paused || e.Exiting {
		return
	}
	e.paused = false
	e.startedAt = time.Now()
	e.timer = time.AfterFunc(e.remaining, func() { q.Dismiss(id) })
}

// Toasts returns the visible toasts in insertion order, oldest first.
func (q *Queue) Toasts() []Toast {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Toast, 0, len(q.order))
	for _, id := range q.order {
		if e, ok := q.entries[id]; ok {
			out = append(out, e.Toast)
		}
	}
	return out
}

// Close stops every timer. Further pushes are ignored.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	for _, e := range q.entries {
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
	}
}

func (q *Queue) remove(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.entries[id]; !ok {
		return
	}
	delete(q.entries, id)
	for i, oid := range q.order {
		if oid == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	q.notifyLocked()
}

func (q *Queue) notifyLocked() {
	select {
	case q.updates <- struct{}{}:
	default:
	}
}

package failover

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"gpuconsole/api"
)

const (
	// DefaultCompletionGrace keeps the completed view visible after the
	// episode disappears from the active list.
	DefaultCompletionGrace = 5 * time.Second
	// DefaultTerminalHide auto-dismisses a completed episode even while the
	// server retention window still reports it.
	DefaultTerminalHide = 10 * time.Second
)

// State is the watcher's view of the watched instance's failover episode.
// The zero value is idle and hidden.
type State struct {
	Visible        bool
	Phase          Phase
	RawPhase       string
	FailoverID     string
	NewGPUID       string
	PhaseTimingsMs map[string]int64
}

// EventType classifies watcher events.
type EventType string

const (
	// EventStarted fires once per failover id, when a new episode appears.
	EventStarted EventType = "started"
	// EventPhase fires when a known episode's phase changes.
	EventPhase EventType = "phase"
	// EventHidden fires when the notification resets to idle.
	EventHidden EventType = "hidden"
)

// Event carries a state snapshot to subscribers.
type Event struct {
	Type  EventType
	State State
}

// Watcher polls the active-failover list for one instance and drives the
// notification state machine. All transitions originate server-side; the
// watcher only maps, debounces and times out what the server reports.
type Watcher struct {
	client       *api.Client
	instanceID   string
	pollInterval time.Duration

	// Overridable before Start.
	CompletionGrace time.Duration
	TerminalHide    time.Duration
	Stats           *api.PollStats

	mu          sync.Mutex
	state       State
	lastSeenID  string
	subscribers []chan Event
	graceTimer  *time.Timer
	hideTimer   *time.Timer
}

// NewWatcher creates a watcher for the given instance.
func NewWatcher(client *api.Client, instanceID string, pollInterval time.Duration) *Watcher {
	return &Watcher{
		client:          client,
		instanceID:      instanceID,
		pollInterval:    pollInterval,
		CompletionGrace: DefaultCompletionGrace,
		TerminalHide:    DefaultTerminalHide,
	}
}

// Subscribe returns a new channel that receives a copy of every event.
// Each subscriber gets its own independent channel. Call before Start.
func (w *Watcher) Subscribe() <-chan Event {
	ch := make(chan Event, 64)
	w.subscribers = append(w.subscribers, ch)
	return ch
}

// State returns a snapshot of the current notification state.
func (w *Watcher) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Start begins polling in the foreground. Call in a goroutine. Polls are
// issued synchronously within the loop, so ticks never overlap even when the
// network is slow.
func (w *Watcher) Start(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	defer w.stopTimers()

	// Immediate first poll.
	w.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

// Dismiss hides the notification immediately. Purely local: the server-side
// episode continues regardless, and the dismissed episode will not re-show
// until a different failover id appears.
func (w *Watcher) Dismiss() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopTimersLocked()
	w.state.Visible = false
	w.state.Phase = PhaseIdle
	w.state.RawPhase = ""
	w.emitLocked(Event{Type: EventHidden, State: w.state})
}

func (w *Watcher) poll(ctx context.Context) {
	events, err := w.client.ListActiveFailovers(ctx)
	if w.Stats != nil {
		w.Stats.Record(err == nil)
	}
	if err != nil {
		// Transient failures recover on the next tick.
		log.Warn().Err(err).Msg("failover watcher: poll failed")
		return
	}

	var current *api.FailoverEvent
	for i := range events {
		if events[i].GPUInstanceID == w.instanceID {
			current = &events[i]
			break
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if current == nil {
		w.handleDisappearedLocked()
		return
	}

	phase := ParsePhase(current.Phase)

	if current.FailoverID != w.lastSeenID {
		// New episode: entrance side effects happen exactly once per id.
		w.lastSeenID = current.FailoverID
		w.stopTimersLocked()
		w.state = State{
			Visible:        true,
			Phase:          phase,
			RawPhase:       current.Phase,
			FailoverID:     current.FailoverID,
			NewGPUID:       current.NewGPUID,
			PhaseTimingsMs: current.PhaseTimingsMs,
		}
		log.Info().Str("failover_id", current.FailoverID).Stringer("phase", phase).Msg("failover watcher: episode started")
		w.emitLocked(Event{Type: EventStarted, State: w.state})
	} else {
		w.state.NewGPUID = current.NewGPUID
		w.state.PhaseTimingsMs = current.PhaseTimingsMs
		if w.state.RawPhase != current.Phase {
			w.state.Phase = phase
			w.state.RawPhase = current.Phase
			log.Debug().Str("failover_id", current.FailoverID).Stringer("phase", phase).Msg("failover watcher: phase changed")
			w.emitLocked(Event{Type: EventPhase, State: w.state})
		}
	}

	// Once complete, the terminal timer is authoritative: the notification
	// goes away after TerminalHide no matter how long the server keeps
	// reporting the episode.
	if phase == PhaseComplete && w.hideTimer == nil {
		w.hideTimer = time.AfterFunc(w.TerminalHide, w.resetToIdle)
	}
}

// handleDisappearedLocked handles a poll where the watched instance has no
// active episode but one was being shown.
func (w *Watcher) handleDisappearedLocked() {
	if w.state.Phase == PhaseIdle {
		return
	}
	if w.hideTimer != nil {
		// Terminal timer already pending; it wins.
		return
	}
	if w.graceTimer != nil {
		return
	}
	// Episode finished server-side. Keep a completed view for the grace
	// window, then reset exactly once.
	if !w.state.Phase.Terminal() {
		w.state.Phase = PhaseComplete
		w.state.RawPhase = "complete"
		w.emitLocked(Event{Type: EventPhase, State: w.state})
	}
	w.graceTimer = time.AfterFunc(w.CompletionGrace, w.resetToIdle)
}

func (w *Watcher) resetToIdle() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopTimersLocked()
	w.state = State{}
	w.emitLocked(Event{Type: EventHidden, State: w.state})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopTimersLocked()
}

func (w *Watcher) stopTimersLocked() {
	if w.graceTimer != nil {
		w.graceTimer.Stop()
		w.graceTimer = nil
	}
	if w.hideTimer != nil {
		w.hideTimer.Stop()
		w.hideTimer = nil
	}
}

func (w *Watcher) emitLocked(evt Event) {
	for _, ch := range w.subscribers {
		select {
		case ch <- evt:
		default:
			// Drop if channel full; subscriber will catch up via State().
		}
	}
}

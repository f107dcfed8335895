package reserve

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/rs/zerolog/log"

	"gpuconsole/api"
)

const (
	// DefaultDebounce is how long parameter changes are collapsed before the
	// availability and pricing checks fire.
	DefaultDebounce = 500 * time.Millisecond
	// EndTimeOffset is applied when a start-time change would make the window
	// degenerate: end becomes start + EndTimeOffset.
	EndTimeOffset = 4 * time.Hour

	// MinDuration and MaxDuration bound a reservable window, inclusive.
	MinDuration = time.Hour
	MaxDuration = 720 * time.Hour
)

// Validation errors returned by Validate and Submit.
var (
	ErrNoGPUType      = errors.New("no GPU type selected")
	ErrNoGPUs         = errors.New("at least one GPU is required")
	ErrNoWindow       = errors.New("start and end times are required")
	ErrWindowInverted = errors.New("start time must be before end time")
	ErrTooShort       = errors.New("reservation must be at least 1 hour")
	ErrTooLong        = errors.New("reservation cannot exceed 30 days")
	ErrUnavailable    = errors.New("requested window is unavailable")
	ErrSubmitting     = errors.New("a submission is already in flight")
)

// Params is the reservation tuple the negotiator keeps refreshed.
type Params struct {
	GPUType  string
	GPUCount int
	Start    time.Time
	End      time.Time
}

func (p Params) request() api.ReservationRequest {
	return api.ReservationRequest{
		GPUType:   p.GPUType,
		GPUCount:  p.GPUCount,
		StartTime: p.Start,
		EndTime:   p.End,
	}
}

// complete reports whether the tuple is worth sending to the server at all.
func (p Params) complete() bool {
	return p.GPUType != "" && p.GPUCount > 0 && !p.Start.IsZero() && !p.End.IsZero() && p.Start.Before(p.End)
}

// Snapshot is a consistent view of the negotiator for rendering.
type Snapshot struct {
	Params       Params
	Availability *api.AvailabilityResult
	Pricing      *api.PricingEstimate
	Submitting   bool
}

// Negotiator turns a reservation tuple into a continuously refreshed
// availability/pricing pair. Every parameter change re-arms a single debounce
// timer; when it fires, the two checks run as independent concurrent requests.
// Responses are applied only if no newer tuple has been entered since the
// request was issued.
type Negotiator struct {
	client   *api.Client
	debounce time.Duration
	ctx      context.Context
	cancel   context.CancelFunc

	mu           sync.Mutex
	params       Params
	seq          uint64
	timer        *time.Timer
	availability *api.AvailabilityResult
	pricing      *api.PricingEstimate
	submitting   bool
	updates      chan struct{}
}

// NewNegotiator creates a negotiator. Call Close when the owning view goes
// away so no timer or in-flight fetch outlives it.
func NewNegotiator(client *api.Client, debounce time.Duration) *Negotiator {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Negotiator{
		client:   client,
		debounce: debounce,
		ctx:      ctx,
		cancel:   cancel,
		updates:  make(chan struct{}, 1),
	}
}

// Updates signals whenever results or parameters change. Signals coalesce;
// read Snapshot for the current state.
func (n *Negotiator) Updates() <-chan struct{} {
	return n.updates
}

// Snapshot returns a consistent view of the current state.
func (n *Negotiator) Snapshot() Snapshot {
	n.mu.Lock()
	defer n.mu.Unlock()
	return Snapshot{
		Params:       n.params,
		Availability: n.availability,
		Pricing:      n.pricing,
		Submitting:   n.submitting,
	}
}

// SetGPUType selects the GPU type and schedules a refresh.
func (n *Negotiator) SetGPUType(gpuType string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.params.GPUType = gpuType
	n.scheduleLocked()
}

// SetGPUCount sets the GPU count and schedules a refresh.
func (n *Negotiator) SetGPUCount(count int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.params.GPUCount = count
	n.scheduleLocked()
}

// SetStart sets the window start and schedules a refresh. Moving the start to
// or past the current end auto-advances the end to start + EndTimeOffset so
// the window never becomes degenerate.
func (n *Negotiator) SetStart(start time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.params.Start = start
	if n.params.End.IsZero() || !start.Before(n.params.End) {
		n.params.End = start.Add(EndTimeOffset)
	}
	n.scheduleLocked()
}

// SetEnd sets the window end and schedules a refresh.
func (n *Negotiator) SetEnd(end time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.params.End = end
	n.scheduleLocked()
}

// scheduleLocked bumps the sequence and re-arms the debounce timer. Earlier
// pending refreshes are cancelled, so only the latest tuple is ever sent.
func (n *Negotiator) scheduleLocked() {
	n.seq++
	if n.timer != nil {
		n.timer.Stop()
	}
	n.timer = time.AfterFunc(n.debounce, n.refresh)
	n.notifyLocked()
}

func (n *Negotiator) refresh() {
	n.mu.Lock()
	params := n.params
	seq := n.seq
	if !params.complete() {
		n.availability = nil
		n.pricing = nil
		n.notifyLocked()
		n.mu.Unlock()
		return
	}
	n.mu.Unlock()

	req := params.request()

	go func() {
		res, err := n.client.CheckAvailability(n.ctx, req)
		n.apply(seq, func() {
			if err != nil {
				log.Debug().Err(err).Msg("reserve: availability check failed")
				n.availability = nil
				return
			}
			n.availability = res
		})
	}()

	go func() {
		res, err := n.client.GetPricing(n.ctx, req)
		n.apply(seq, func() {
			if err != nil {
				log.Debug().Err(err).Msg("reserve: pricing check failed")
				n.pricing = nil
				return
			}
			n.pricing = res
		})
	}()
}

// apply runs fn under the lock unless the tuple has advanced past the
// sequence the request was issued for, in which case the response is stale
// and dropped.
func (n *Negotiator) apply(seq uint64, fn func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if seq != n.seq {
		return
	}
	fn()
	n.notifyLocked()
}

// Validate checks the local validity predicate plus the last server-reported
// availability. A nil availability result does not block submission.
func (n *Negotiator) Validate() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.validateLocked()
}

func (n *Negotiator) validateLocked() error {
	p := n.params
	switch {
	case p.GPUType == "":
		return ErrNoGPUType
	case p.GPUCount < 1:
		return ErrNoGPUs
	case p.Start.IsZero() || p.End.IsZero():
		return ErrNoWindow
	case !p.Start.Before(p.End):
		return ErrWindowInverted
	}
	d := p.End.Sub(p.Start)
	if d < MinDuration {
		return ErrTooShort
	}
	if d > MaxDuration {
		return ErrTooLong
	}
	if n.availability != nil && !n.availability.Available {
		return ErrUnavailable
	}
	return nil
}

// Submit creates the reservation after validating. A failed submission
// clears the in-flight flag so the caller can retry.
func (n *Negotiator) Submit(ctx context.Context) (*api.Reservation, error) {
	n.mu.Lock()
	if n.submitting {
		n.mu.Unlock()
		return nil, ErrSubmitting
	}
	if err := n.validateLocked(); err != nil {
		n.mu.Unlock()
		return nil, err
	}
	req := n.params.request()
	n.submitting = true
	n.notifyLocked()
	n.mu.Unlock()

	res, err := n.client.CreateReservation(ctx, req)

	n.mu.Lock()
	n.submitting = false
	n.notifyLocked()
	n.mu.Unlock()

	if err != nil {
		return nil, errors.Wrap(err, "create reservation")
	}
	return res, nil
}

// Close cancels any pending refresh and in-flight fetches.
func (n *Negotiator) Close() {
	n.mu.Lock()
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	n.mu.Unlock()
	n.cancel()
}

func (n *Negotiator) notifyLocked() {
	select {
	case n.updates <- struct{}{}:
	default:
	}
}

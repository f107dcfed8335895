package tui

import (
	"time"

	"gpuconsole/api"
	"gpuconsole/failover"
)

// FailoverEventMsg is sent when the failover watcher emits an event.
type FailoverEventMsg struct {
	Event failover.Event
}

// QuoteUpdatedMsg is sent when the reservation negotiator's results change.
type QuoteUpdatedMsg struct{}

// ToastsChangedMsg is sent when the toast queue's visible set changes.
type ToastsChangedMsg struct{}

// OffersLoadedMsg delivers the GPU offer catalog fetched at startup.
type OffersLoadedMsg struct {
	Offers []api.GPUOffer
	Err    error
}

// SubmitResultMsg delivers the outcome of a reservation submission.
type SubmitResultMsg struct {
	Reservation *api.Reservation
	Err         error
}

// TickMsg is sent periodically to refresh spinners and durations in the view.
type TickMsg time.Time

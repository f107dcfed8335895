package api

import "time"

// FailoverEvent is one active failover episode reported by the control plane.
// FailoverID is stable for the lifetime of a single episode; the event
// disappears from the active list once the server-side retention window
// elapses after a terminal phase.
type FailoverEvent struct {
	FailoverID     string           `json:"failover_id"`
	GPUInstanceID  string           `json:"gpu_instance_id"`
	Phase          string           `json:"phase"`
	NewGPUID       string           `json:"new_gpu_id,omitempty"`
	PhaseTimingsMs map[string]int64 `json:"phase_timings_ms,omitempty"`
}

// FailoversResponse is the top-level response from the active-failover list.
type FailoversResponse struct {
	Failovers []FailoverEvent `json:"failovers"`
}

// AvailabilityResult reports whether a reservation window can be satisfied.
// Message carries the human-readable reason when Available is false.
type AvailabilityResult struct {
	Available bool   `json:"available"`
	Message   string `json:"message,omitempty"`
}

// PricingEstimate is a server-computed quote for a reservation window.
type PricingEstimate struct {
	TotalSpotCost     float64 `json:"total_spot_cost"`
	TotalReservedCost float64 `json:"total_reserved_cost"`
	DiscountRate      float64 `json:"discount_rate"`
	Savings           float64 `json:"savings"`
	CreditsRequired   float64 `json:"credits_required"`
}

// ReservationRequest is the parameter tuple for availability, pricing and
// reservation creation.
type ReservationRequest struct {
	GPUType   string
	GPUCount  int
	StartTime time.Time
	EndTime   time.Time
}

// Duration returns the length of the requested window.
func (r ReservationRequest) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// Reservation is the creation echo returned by the server.
type Reservation struct {
	ID        string    `json:"id"`
	GPUType   string    `json:"gpu_type"`
	GPUCount  int       `json:"gpu_count"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Status    string    `json:"status"`
}

// GPUOffer is one entry of the reservable GPU catalog.
type GPUOffer struct {
	GPUType      string  `json:"gpu_type"`
	PricePerHour float64 `json:"price_per_hour"`
	Available    int     `json:"available"`
}

// OffersResponse is the top-level response from the offer catalog endpoint.
type OffersResponse struct {
	Offers []GPUOffer `json:"offers"`
}

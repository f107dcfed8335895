package reserve

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"

	"gpuconsole/api"
)

func mustStart(t *testing.T) time.Time {
	t.Helper()
	return time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
}

// idleNegotiator returns a negotiator whose debounce never fires, for tests
// that only exercise local state.
func idleNegotiator() *Negotiator {
	return NewNegotiator(nil, time.Hour)
}

func TestEndTimeAutoCorrection(t *testing.T) {
	n := idleNegotiator()
	defer n.Close()
	start := mustStart(t)

	n.SetStart(start)
	if got := n.Snapshot().Params.End; !got.Equal(start.Add(EndTimeOffset)) {
		t.Errorf("End = %v, want start+%v", got, EndTimeOffset)
	}

	// Explicit end further out survives an earlier start.
	n.SetEnd(start.Add(10 * time.Hour))
	n.SetStart(start.Add(time.Hour))
	if got := n.Snapshot().Params.End; !got.Equal(start.Add(10 * time.Hour)) {
		t.Errorf("End = %v, want untouched", got)
	}

	// Start moved to the end exactly: window must not become degenerate.
	n.SetStart(start.Add(10 * time.Hour))
	if got := n.Snapshot().Params.End; !got.Equal(start.Add(14 * time.Hour)) {
		t.Errorf("End = %v, want start+4h after auto-correction", got)
	}

	// Start moved past the end.
	n.SetStart(start.Add(20 * time.Hour))
	if got := n.Snapshot().Params.End; !got.Equal(start.Add(24 * time.Hour)) {
		t.Errorf("End = %v, want start+4h after auto-correction", got)
	}
}

func TestValidateDurationBoundaries(t *testing.T) {
	start := mustStart(t)
	cases := []struct {
		name    string
		d       time.Duration
		wantErr error
	}{
		{"exactly 1h", time.Hour, nil},
		{"just under 1h", time.Hour - time.Minute, ErrTooShort},
		{"exactly 720h", 720 * time.Hour, nil},
		{"just over 720h", 720*time.Hour + time.Minute, ErrTooLong},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			n := idleNegotiator()
			defer n.Close()
			n.SetGPUType("RTX 4090")
			n.SetGPUCount(1)
			n.SetStart(start)
			n.SetEnd(start.Add(c.d))

			err := n.Validate()
			if c.wantErr == nil && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
			if c.wantErr != nil && !errors.Is(err, c.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, c.wantErr)
			}
		})
	}
}

func TestValidateLocalPredicate(t *testing.T) {
	start := mustStart(t)

	n := idleNegotiator()
	defer n.Close()
	if err := n.Validate(); !errors.Is(err, ErrNoGPUType) {
		t.Errorf("empty form: Validate() = %v, want ErrNoGPUType", err)
	}

	n.SetGPUType("H100")
	if err := n.Validate(); !errors.Is(err, ErrNoGPUs) {
		t.Errorf("no count: Validate() = %v, want ErrNoGPUs", err)
	}

	n.SetGPUCount(2)
	if err := n.Validate(); !errors.Is(err, ErrNoWindow) {
		t.Errorf("no window: Validate() = %v, want ErrNoWindow", err)
	}

	n.SetStart(start)
	n.SetEnd(start.Add(2 * time.Hour))
	if err := n.Validate(); err != nil {
		t.Errorf("valid form: Validate() = %v, want nil", err)
	}
}

func TestDebounceCollapsing(t *testing.T) {
	var availCalls, priceCalls atomic.Int64
	var lastCount atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/reservations/availability":
			availCalls.Add(1)
			lastCount.Store(r.URL.Query().Get("gpu_count"))
			json.NewEncoder(w).Encode(api.AvailabilityResult{Available: true})
		case "/api/v1/reservations/pricing":
			priceCalls.Add(1)
			json.NewEncoder(w).Encode(api.PricingEstimate{TotalReservedCost: 1})
		}
	}))
	defer srv.Close()

	n := NewNegotiator(api.NewClient(srv.URL, "key"), 60*time.Millisecond)
	defer n.Close()
	start := mustStart(t)

	// All changes land within the debounce window.
	n.SetGPUType("RTX 4090")
	n.SetStart(start)
	n.SetGPUCount(1)
	n.SetGPUCount(2)
	n.SetGPUCount(3)

	time.Sleep(250 * time.Millisecond)

	if got := availCalls.Load(); got != 1 {
		t.Errorf("availability calls = %d, want 1", got)
	}
	if got := priceCalls.Load(); got != 1 {
		t.Errorf("pricing calls = %d, want 1", got)
	}
	if got, _ := lastCount.Load().(string); got != "3" {
		t.Errorf("gpu_count sent = %q, want 3 (final value only)", got)
	}
}

func TestPartialFailureTolerance(t *testing.T) {
	var failPricing atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/reservations/availability":
			json.NewEncoder(w).Encode(api.AvailabilityResult{Available: true})
		case "/api/v1/reservations/pricing":
			if failPricing.Load() {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			json.NewEncoder(w).Encode(api.PricingEstimate{TotalReservedCost: 2.4})
		}
	}))
	defer srv.Close()

	n := NewNegotiator(api.NewClient(srv.URL, "key"), 20*time.Millisecond)
	defer n.Close()
	start := mustStart(t)

	n.SetGPUType("RTX 4090")
	n.SetGPUCount(1)
	n.SetStart(start)
	time.Sleep(150 * time.Millisecond)

	snap := n.Snapshot()
	if snap.Availability == nil || snap.Pricing == nil {
		t.Fatalf("initial refresh incomplete: %+v", snap)
	}

	// Pricing starts failing; a later refresh must keep the availability
	// result while the pricing result degrades to no-result.
	failPricing.Store(true)
	n.SetGPUCount(2)
	time.Sleep(150 * time.Millisecond)

	snap = n.Snapshot()
	if snap.Availability == nil || !snap.Availability.Available {
		t.Error("availability result lost after pricing failure")
	}
	if snap.Pricing != nil {
		t.Error("pricing result should degrade to nil on failure")
	}
}

func TestStaleResponseDiscarded(t *testing.T) {
	// The response for an older tuple arrives after a fresher one and must
	// not overwrite it.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count := r.URL.Query().Get("gpu_count")
		switch r.URL.Path {
		case "/api/v1/reservations/availability":
			if count == "1" {
				time.Sleep(250 * time.Millisecond)
			}
			json.NewEncoder(w).Encode(api.AvailabilityResult{
				Available: true,
				Message:   fmt.Sprintf("count=%s", count),
			})
		case "/api/v1/reservations/pricing":
			json.NewEncoder(w).Encode(api.PricingEstimate{})
		}
	}))
	defer srv.Close()

	n := NewNegotiator(api.NewClient(srv.URL, "key"), 20*time.Millisecond)
	defer n.Close()
	start := mustStart(t)

	n.SetGPUType("RTX 4090")
	n.SetStart(start)
	n.SetGPUCount(1)
	time.Sleep(60 * time.Millisecond) // slow count=1 request now in flight

	n.SetGPUCount(2)
	time.Sleep(100 * time.Millisecond) // fast count=2 response applied

	snap := n.Snapshot()
	if snap.Availability == nil || snap.Availability.Message != "count=2" {
		t.Fatalf("availability = %+v, want count=2", snap.Availability)
	}

	// Late count=1 response lands; it must be dropped as stale.
	time.Sleep(250 * time.Millisecond)
	snap = n.Snapshot()
	if snap.Availability == nil || snap.Availability.Message != "count=2" {
		t.Errorf("availability = %+v, stale response overwrote fresher state", snap.Availability)
	}
}

func TestSubmitBlockedWhenUnavailable(t *testing.T) {
	var posts atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/reservations/availability":
			json.NewEncoder(w).Encode(api.AvailabilityResult{Available: false, Message: "sold out"})
		case "/api/v1/reservations/pricing":
			json.NewEncoder(w).Encode(api.PricingEstimate{})
		case "/api/v1/reservations":
			posts.Add(1)
		}
	}))
	defer srv.Close()

	n := NewNegotiator(api.NewClient(srv.URL, "key"), 20*time.Millisecond)
	defer n.Close()
	start := mustStart(t)

	n.SetGPUType("RTX 4090")
	n.SetGPUCount(1)
	n.SetStart(start)
	time.Sleep(150 * time.Millisecond)

	_, err := n.Submit(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Submit() = %v, want ErrUnavailable", err)
	}
	if posts.Load() != 0 {
		t.Error("blocked submission must not reach the server")
	}
}

func TestSubmitFailureClearsInFlightFlag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/reservations/availability":
			json.NewEncoder(w).Encode(api.AvailabilityResult{Available: true})
		case "/api/v1/reservations/pricing":
			json.NewEncoder(w).Encode(api.PricingEstimate{})
		case "/api/v1/reservations":
			w.WriteHeader(http.StatusConflict)
		}
	}))
	defer srv.Close()

	n := NewNegotiator(api.NewClient(srv.URL, "key"), 20*time.Millisecond)
	defer n.Close()
	start := mustStart(t)

	n.SetGPUType("RTX 4090")
	n.SetGPUCount(1)
	n.SetStart(start)
	time.Sleep(150 * time.Millisecond)

	_, err := n.Submit(context.Background())
	if err == nil {
		t.Fatal("expected submission error")
	}
	if n.Snapshot().Submitting {
		t.Error("submitting flag not cleared after failure")
	}

	// The form is usable again: a second attempt reaches the server.
	if _, err := n.Submit(context.Background()); err == nil {
		t.Fatal("expected second submission error")
	}
}

func TestSubmitSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/reservations/availability":
			json.NewEncoder(w).Encode(api.AvailabilityResult{Available: true})
		case "/api/v1/reservations/pricing":
			json.NewEncoder(w).Encode(api.PricingEstimate{})
		case "/api/v1/reservations":
			json.NewEncoder(w).Encode(api.Reservation{ID: "res-42", Status: "confirmed"})
		}
	}))
	defer srv.Close()

	n := NewNegotiator(api.NewClient(srv.URL, "key"), 20*time.Millisecond)
	defer n.Close()
	start := mustStart(t)

	n.SetGPUType("RTX 4090")
	n.SetGPUCount(1)
	n.SetStart(start)
	time.Sleep(150 * time.Millisecond)

	res, err := n.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if res.ID != "res-42" {
		t.Errorf("ID = %q, want res-42", res.ID)
	}
	if n.Snapshot().Submitting {
		t.Error("submitting flag not cleared after success")
	}
}

func TestIncompleteTupleSkipsFetch(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	n := NewNegotiator(api.NewClient(srv.URL, "key"), 20*time.Millisecond)
	defer n.Close()

	// No GPU type yet: the debounce fires but nothing is sent.
	n.SetGPUCount(3)
	time.Sleep(100 * time.Millisecond)

	if calls.Load() != 0 {
		t.Errorf("server called %d times for incomplete tuple, want 0", calls.Load())
	}
}

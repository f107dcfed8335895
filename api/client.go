package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Client talks to the GPU cloud control plane.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	tracer     trace.Tracer
	requests   metric.Int64Counter
}

// NewClient creates a control-plane API client.
func NewClient(baseURL, apiKey string) *Client {
	meter := otel.Meter("gpuconsole/api")
	requests, _ := meter.Int64Counter("api.client.requests")
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		tracer:   otel.Tracer("gpuconsole/api"),
		requests: requests,
	}
}

// ListActiveFailovers fetches all currently active failover episodes.
func (c *Client) ListActiveFailovers(ctx context.Context) ([]FailoverEvent, error) {
	var result FailoversResponse
	if err := c.getJSON(ctx, "/api/v1/standby/failover/active", nil, &result); err != nil {
		return nil, err
	}
	return result.Failovers, nil
}

// CheckAvailability asks whether the requested window can be satisfied.
func (c *Client) CheckAvailability(ctx context.Context, req ReservationRequest) (*AvailabilityResult, error) {
	var result AvailabilityResult
	if err := c.getJSON(ctx, "/api/v1/reservations/availability", windowQuery(req), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetPricing fetches a quote for the requested window.
func (c *Client) GetPricing(ctx context.Context, req ReservationRequest) (*PricingEstimate, error) {
	var result PricingEstimate
	if err := c.getJSON(ctx, "/api/v1/reservations/pricing", windowQuery(req), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateReservation submits a reservation for the requested window.
func (c *Client) CreateReservation(ctx context.Context, req ReservationRequest) (*Reservation, error) {
	body, err := json.Marshal(map[string]any{
		"gpu_type":   req.GPUType,
		"gpu_count":  req.GPUCount,
		"start_time": req.StartTime.UTC().Format(time.RFC3339),
		"end_time":   req.EndTime.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, errors.Wrap(err, "encode request")
	}

	ctx, span := c.tracer.Start(ctx, "CreateReservation")
	defer span.End()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/reservations", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	c.count(ctx, "/api/v1/reservations", err == nil)
	if err != nil {
		return nil, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, errors.Errorf("create reservation returned HTTP %d", resp.StatusCode)
	}

	var result Reservation
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.Wrap(err, "decode response")
	}
	return &result, nil
}

// ListOffers fetches the reservable GPU catalog. The catalog is loaded once at
// startup, so transient failures are retried here rather than on a next tick.
func (c *Client) ListOffers(ctx context.Context) ([]GPUOffer, error) {
	var result OffersResponse
	err := retry.Do(
		func() error {
			return c.getJSON(ctx, "/api/v1/offers", nil, &result)
		},
		retry.Attempts(3),
		retry.Context(ctx),
	)
	if err != nil {
		return nil, err
	}
	return result.Offers, nil
}

// getJSON performs an authenticated GET and decodes the JSON response.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	ctx, span := c.tracer.Start(ctx, "GET "+path)
	defer span.End()

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	c.count(ctx, path, err == nil)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("%s returned HTTP %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}

func (c *Client) count(ctx context.Context, path string, ok bool) {
	c.requests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("path", path),
			attribute.Bool("ok", ok),
		))
}

// windowQuery encodes the reservation tuple as GET query parameters.
func windowQuery(req ReservationRequest) url.Values {
	return url.Values{
		"gpu_type":  {req.GPUType},
		"gpu_count": {strconv.Itoa(req.GPUCount)},
		"start":     {req.StartTime.UTC().Format(time.RFC3339)},
		"end":       {req.EndTime.UTC().Format(time.RFC3339)},
	}
}

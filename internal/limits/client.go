// Package limits implements the plan-limit core: the authority client that
// fetches a tenant's subscription limits, the per-tenant TTL cache, and the
// Manager that orchestrates them with a fail-closed emergency fallback.
package limits

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"planguard/internal/types"
)

// FailureReason classifies why a limits fetch failed.
type FailureReason string

const (
	// ReasonUnreachable covers network errors, timeouts, and an open
	// circuit breaker.
	ReasonUnreachable FailureReason = "unreachable"

	// ReasonBadStatus covers non-2xx HTTP responses and success=false
	// payloads.
	ReasonBadStatus FailureReason = "bad_status"

	// ReasonParse covers malformed bodies and missing or invalid limit
	// fields.
	ReasonParse FailureReason = "parse_error"
)

// FetchError is the typed failure returned by Client.Fetch. All client
// failures are values of this type; nothing escapes the fetch boundary as a
// panic or untyped error.
type FetchError struct {
	Reason FailureReason
	Err    error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("limits fetch failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("limits fetch failed (%s)", e.Reason)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// FailureReasonOf extracts the FailureReason from an error chain, or
// ReasonUnreachable if the error is not a FetchError.
func FailureReasonOf(err error) FailureReason {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Reason
	}
	return ReasonUnreachable
}

// Fetcher retrieves the current plan limits for a tenant from the authority.
// Implementations must not touch the cache; caching is the Manager's job.
type Fetcher interface {
	Fetch(ctx context.Context, tenantID string) (types.Snapshot, error)
}

// maxResponseBody bounds the authority response read (1 MB).
const maxResponseBody = 1 << 20

// authorityRequest is the wire request body.
type authorityRequest struct {
	DBName string `json:"db_name"`
}

// authorityResponse is the wire response. Limit fields are pointers so a
// missing field is distinguishable from a zero limit.
type authorityResponse struct {
	Success          bool            `json:"success"`
	SubscriptionCode string          `json:"subscription_code"`
	PlanName         string          `json:"plan_name"`
	Limits           *limitsPayload  `json:"limits"`
	Error            json.RawMessage `json:"error,omitempty"`
}

type limitsPayload struct {
	MaxUsers                *int     `json:"max_users"`
	MaxExternalEmailsPerDay *int     `json:"max_external_emails_per_day"`
	BlockedModules          []string `json:"blocked_modules"`
}

// ClientConfig holds the construction parameters for a Client.
type ClientConfig struct {
	URL       string
	Timeout   time.Duration
	UserAgent string
	Logger    *slog.Logger

	// Clock overrides the FetchedAt timestamp source. Defaults to time.Now.
	Clock func() time.Time
}

// Client fetches plan limits from the remote authority over HTTP. A single
// fetch either completes within the configured timeout or fails; there are
// no retries -- retry behavior is implicit in the next cache miss. Calls are
// routed through a circuit breaker so a down authority is not hammered by
// every expired cache entry.
type Client struct {
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*http.Response]
	url        string
	userAgent  string
	logger     *slog.Logger
	now        func() time.Time
}

// NewClient creates an authority Client. The timeout applies per fetch.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "plan-authority",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		breaker:    cb,
		url:        cfg.URL,
		userAgent:  cfg.UserAgent,
		logger:     logger,
		now:        now,
	}
}

// Fetch posts {"db_name": tenantID} to the authority and parses the limits
// payload into an immutable Snapshot. All failures are returned as
// *FetchError tagged with a FailureReason; Fetch never panics past this
// boundary.
func (c *Client) Fetch(ctx context.Context, tenantID string) (types.Snapshot, error) {
	body, err := json.Marshal(authorityRequest{DBName: tenantID})
	if err != nil {
		return types.Snapshot{}, &FetchError{Reason: ReasonParse, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return types.Snapshot{}, &FetchError{Reason: ReasonUnreachable, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		r, doErr := c.httpClient.Do(req)
		if doErr != nil {
			return nil, doErr
		}
		// 5xx counts as a breaker failure; the authority is unhealthy.
		if r.StatusCode >= 500 {
			r.Body.Close()
			return nil, &statusError{code: r.StatusCode}
		}
		return r, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.logger.Warn("authority circuit breaker open", "tenant", tenantID)
			return types.Snapshot{}, &FetchError{Reason: ReasonUnreachable, Err: err}
		}
		return types.Snapshot{}, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return types.Snapshot{}, &FetchError{
			Reason: ReasonBadStatus,
			Err:    fmt.Errorf("authority returned status %d", resp.StatusCode),
		}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return types.Snapshot{}, &FetchError{Reason: ReasonUnreachable, Err: err}
	}

	var payload authorityResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return types.Snapshot{}, &FetchError{Reason: ReasonParse, Err: err}
	}

	if !payload.Success {
		return types.Snapshot{}, &FetchError{
			Reason: ReasonBadStatus,
			Err:    fmt.Errorf("authority reported failure: %s", string(payload.Error)),
		}
	}

	snap, err := snapshotFromPayload(payload, c.now())
	if err != nil {
		return types.Snapshot{}, &FetchError{Reason: ReasonParse, Err: err}
	}

	c.logger.Debug("plan limits fetched",
		"tenant", tenantID,
		"plan", snap.PlanName,
		"subscription", snap.SubscriptionCode,
	)
	return snap, nil
}

// statusError marks a breaker failure caused by an unhealthy HTTP status
// rather than a transport fault.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("authority returned status %d", e.code)
}

// classifyTransportError maps a breaker-level error to a FetchError. A 5xx
// surfaces as bad_status; everything else -- DNS failure, refused
// connection, timeout, context cancellation -- means the authority was
// unreachable.
func classifyTransportError(err error) *FetchError {
	var se *statusError
	if errors.As(err, &se) {
		return &FetchError{Reason: ReasonBadStatus, Err: err}
	}
	return &FetchError{Reason: ReasonUnreachable, Err: err}
}

// snapshotFromPayload validates the wire payload and builds a Snapshot.
// Limit fields must be present and either non-negative or the Unlimited
// sentinel (-1).
func snapshotFromPayload(payload authorityResponse, fetchedAt time.Time) (types.Snapshot, error) {
	if payload.Limits == nil {
		return types.Snapshot{}, errors.New("response missing limits object")
	}
	maxUsers, err := validLimit("max_users", payload.Limits.MaxUsers)
	if err != nil {
		return types.Snapshot{}, err
	}
	maxEmails, err := validLimit("max_external_emails_per_day", payload.Limits.MaxExternalEmailsPerDay)
	if err != nil {
		return types.Snapshot{}, err
	}

	return types.Snapshot{
		SubscriptionCode:        payload.SubscriptionCode,
		PlanName:                payload.PlanName,
		MaxUsers:                maxUsers,
		MaxExternalEmailsPerDay: maxEmails,
		BlockedModulePatterns:   types.NormalizePatterns(payload.Limits.BlockedModules),
		FetchedAt:               fetchedAt,
	}, nil
}

func validLimit(field string, v *int) (int, error) {
	if v == nil {
		return 0, fmt.Errorf("response missing limit field %q", field)
	}
	if *v < types.Unlimited {
		return 0, fmt.Errorf("limit field %q has invalid value %d", field, *v)
	}
	return *v, nil
}

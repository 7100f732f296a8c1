package limits

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planguard/internal/types"
)

const professionalPlanBody = `{
	"success": true,
	"subscription_code": "SUB-00123",
	"plan_name": "Professional Plan",
	"limits": {
		"max_users": 10,
		"max_external_emails_per_day": 100,
		"blocked_modules": ["stock*", "mrp*", "hr_payroll"]
	}
}`

func newAuthorityClient(t *testing.T, url string) *Client {
	t.Helper()
	return NewClient(ClientConfig{
		URL:       url,
		Timeout:   2 * time.Second,
		UserAgent: "planguard-test/1.0",
		Clock: func() time.Time {
			return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		},
	})
}

func TestClientFetch_Success(t *testing.T) {
	var gotBody map[string]any
	var gotContentType string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		gotContentType = r.Header.Get("Content-Type")
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &gotBody))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(professionalPlanBody))
	}))
	defer srv.Close()

	client := newAuthorityClient(t, srv.URL)

	snap, err := client.Fetch(context.Background(), "acme-prod")
	require.NoError(t, err)

	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, map[string]any{"db_name": "acme-prod"}, gotBody)

	assert.Equal(t, "SUB-00123", snap.SubscriptionCode)
	assert.Equal(t, "Professional Plan", snap.PlanName)
	assert.Equal(t, 10, snap.MaxUsers)
	assert.Equal(t, 100, snap.MaxExternalEmailsPerDay)
	assert.Equal(t, []string{"hr_payroll", "mrp*", "stock*"}, snap.BlockedModulePatterns)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), snap.FetchedAt)
	assert.False(t, snap.IsEmergency)
}

func TestClientFetch_UnlimitedSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{
			"success": true,
			"subscription_code": "SUB-00999",
			"plan_name": "Enterprise Plan",
			"limits": {"max_users": -1, "max_external_emails_per_day": -1, "blocked_modules": []}
		}`))
	}))
	defer srv.Close()

	client := newAuthorityClient(t, srv.URL)

	snap, err := client.Fetch(context.Background(), "acme-prod")
	require.NoError(t, err)
	assert.Equal(t, types.Unlimited, snap.MaxUsers)
	assert.Equal(t, types.Unlimited, snap.MaxExternalEmailsPerDay)
	assert.Empty(t, snap.BlockedModulePatterns)
}

func TestClientFetch_BadStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{name: "forbidden", status: http.StatusForbidden},
		{name: "not found", status: http.StatusNotFound},
		{name: "server error", status: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			client := newAuthorityClient(t, srv.URL)

			_, err := client.Fetch(context.Background(), "acme-prod")
			require.Error(t, err)
			assert.Equal(t, ReasonBadStatus, FailureReasonOf(err))
		})
	}
}

func TestClientFetch_AuthorityReportedFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"success": false, "error": "unknown database"}`))
	}))
	defer srv.Close()

	client := newAuthorityClient(t, srv.URL)

	_, err := client.Fetch(context.Background(), "acme-prod")
	require.Error(t, err)
	assert.Equal(t, ReasonBadStatus, FailureReasonOf(err))
}

func TestClientFetch_ParseErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"success": true, "limits":`},
		{name: "missing limits object", body: `{"success": true, "plan_name": "Basic Plan"}`},
		{name: "missing max_users", body: `{"success": true, "limits": {"max_external_emails_per_day": 5}}`},
		{name: "missing max emails", body: `{"success": true, "limits": {"max_users": 5}}`},
		{name: "non-numeric limit", body: `{"success": true, "limits": {"max_users": "ten", "max_external_emails_per_day": 5}}`},
		{name: "limit below sentinel", body: `{"success": true, "limits": {"max_users": -2, "max_external_emails_per_day": 5}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := newAuthorityClient(t, srv.URL)

			_, err := client.Fetch(context.Background(), "acme-prod")
			require.Error(t, err)
			assert.Equal(t, ReasonParse, FailureReasonOf(err))
		})
	}
}

func TestClientFetch_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // connection refused from here on

	client := newAuthorityClient(t, srv.URL)

	_, err := client.Fetch(context.Background(), "acme-prod")
	require.Error(t, err)

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, ReasonUnreachable, fe.Reason)
}

func TestClientFetch_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	client := NewClient(ClientConfig{URL: srv.URL, Timeout: 50 * time.Millisecond})

	_, err := client.Fetch(context.Background(), "acme-prod")
	require.Error(t, err)
	assert.Equal(t, ReasonUnreachable, FailureReasonOf(err))
}

func TestClientFetch_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newAuthorityClient(t, srv.URL)

	// Trip the breaker with consecutive 5xx responses.
	for i := 0; i < 6; i++ {
		_, err := client.Fetch(context.Background(), "acme-prod")
		require.Error(t, err)
	}
	tripped := requests

	// With the breaker open, fetches fail fast without reaching the server.
	_, err := client.Fetch(context.Background(), "acme-prod")
	require.Error(t, err)
	assert.Equal(t, ReasonUnreachable, FailureReasonOf(err))
	assert.Equal(t, tripped, requests)
}

func TestFailureReasonOf_UntypedError(t *testing.T) {
	assert.Equal(t, ReasonUnreachable, FailureReasonOf(io.ErrUnexpectedEOF))
}

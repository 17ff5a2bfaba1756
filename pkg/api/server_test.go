package api

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/rowguard/pkg/httputil"
	"github.com/platinummonkey/rowguard/pkg/observability"
)

type denyAll struct{}

func (denyAll) Allow(context.Context, string) (bool, error) { return false, nil }

func TestServer_UnknownRoute(t *testing.T) {
	server, _ := newTestServer(t)

	w := do(t, server, "GET", "/api/nope", "", "")
	assertError(t, w, http.StatusNotFound, "not_found")
}

func TestServer_MethodNotAllowed(t *testing.T) {
	server, _ := newTestServer(t)

	for _, tc := range []struct{ method, path string }{
		{"PUT", "/api/organizations"},
		{"POST", "/api/session"},
		{"PUT", "/api/tables/notes/records/batch"},
		{"DELETE", "/api/invitations/inv-1/accept"},
	} {
		w := do(t, server, tc.method, tc.path, testToken, `{}`)
		assertError(t, w, http.StatusMethodNotAllowed, "method_not_allowed")
	}
}

func TestServer_SessionRoutesRejectAnonymous(t *testing.T) {
	server, deps := newTestServer(t)

	for _, tc := range []struct{ method, path string }{
		{"GET", "/api/session"},
		{"DELETE", "/api/session"},
		{"GET", "/api/organizations"},
		{"GET", "/api/organizations/org-1/members"},
		{"POST", "/api/invitations/inv-1/accept"},
	} {
		w := do(t, server, tc.method, tc.path, "", `{}`)
		assertError(t, w, http.StatusUnauthorized, "unauthenticated")
	}

	// Record routes leave the decision to the table rules
	w := do(t, server, "GET", "/api/tables/announcements/records", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, deps.records.lastSession)
}

func TestServer_RequestIDHeader(t *testing.T) {
	server, _ := newTestServer(t)

	w := do(t, server, "GET", "/api/tables/notes/records", "", "")
	assert.NotEmpty(t, w.Header().Get(httputil.RequestIDHeader))
}

func TestServer_InvalidBearerToken(t *testing.T) {
	server, deps := newTestServer(t)

	w := do(t, server, "GET", "/api/tables/notes/records", "rg_unknown", "")
	assertError(t, w, http.StatusUnauthorized, "unauthenticated")
	assert.Empty(t, deps.records.lastTable, "handler must not run")
}

func TestServer_RateLimited(t *testing.T) {
	server := NewServer(Dependencies{
		Sessions: &mockSessions{},
		Records:  &mockRecords{},
		Limiter:  denyAll{},
		Logger:   observability.NewLogger(observability.ErrorLevel, io.Discard),
	})

	w := do(t, server, "GET", "/api/tables/notes/records", testToken, "")
	assertError(t, w, http.StatusTooManyRequests, "rate_limited")
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestServer_BodyLimit(t *testing.T) {
	server := NewServer(Dependencies{
		Sessions:     &mockSessions{},
		Records:      &mockRecords{},
		Logger:       observability.NewLogger(observability.ErrorLevel, io.Discard),
		MaxBodyBytes: 16,
	})

	w := do(t, server, "POST", "/api/tables/notes/records", testToken, `{"title":"far too long for the limit"}`)
	assertError(t, w, http.StatusBadRequest, "validation_error")
}

func TestServer_Metrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	server := NewServer(Dependencies{
		Sessions: &mockSessions{},
		Records:  &mockRecords{},
		Metrics:  metrics,
		Logger:   observability.NewLogger(observability.ErrorLevel, io.Discard),
	})

	w := do(t, server, "GET", "/api/tables/notes/records", testToken, "")
	require.Equal(t, http.StatusOK, w.Code)

	count := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/api/tables/{table}/records", "200"))
	assert.Equal(t, float64(1), count)
}

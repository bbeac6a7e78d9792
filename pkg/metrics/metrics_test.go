package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.RateLimitDecisions.WithLabelValues("admit").Inc()
	m.RateLimitDecisions.WithLabelValues("reject").Add(2)
	m.Signups.WithLabelValues("success").Inc()
	m.OutboundDuration.Observe(0.25)
	m.TrackedAddresses.Set(3)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.RateLimitDecisions.WithLabelValues("admit")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.RateLimitDecisions.WithLabelValues("reject")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.TrackedAddresses))

	names := map[string]bool{}
	families, err := registry.Gather()
	require.NoError(t, err)
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, name := range []string{
		"mail_gateway_ratelimit_decisions_total",
		"mail_gateway_signups_total",
		"mail_gateway_outbound_duration_seconds",
		"mail_gateway_tracked_addresses",
		"go_goroutines",
	} {
		assert.True(t, names[name], "missing metric %s", name)
	}
}

func TestNewPanicsOnDoubleRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	New(registry)
	assert.Panics(t, func() { New(registry) })
}

func TestHandler(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)
	m.Signups.WithLabelValues("failure").Inc()

	rec := httptest.NewRecorder()
	Handler(registry).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `mail_gateway_signups_total{result="failure"} 1`)
}

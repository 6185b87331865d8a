package metricsserver

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DefaultNamespace(t *testing.T) {
	m := New("")
	require.NotNil(t, m)
	assert.NotNil(t, m.Registry)
}

func TestNew_MultipleInstancesDoNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		New("scanner_a")
		New("scanner_b")
	})
}

func TestServer_MetricsEndpoint(t *testing.T) {
	m := New("scanner_metrics_endpoint")
	m.ScansTotal.WithLabelValues("completed").Inc()

	srv := NewServer(m, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)
}

func TestServer_HealthOK(t *testing.T) {
	m := New("scanner_health_ok")
	srv := NewServer(m, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)
}

func TestServer_HealthUnhealthy(t *testing.T) {
	m := New("scanner_health_bad")
	srv := NewServer(m, func() error { return errors.New("mongo unreachable") })
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 503, resp.StatusCode)
}

package metrics

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveCheck(t *testing.T) {
	m := New()
	m.ObserveCheck("category", true, 12*time.Second)
	m.ObserveCheck("category", false, 3*time.Second)
	m.ObserveCheck("category", false, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.checksTotal.WithLabelValues("category", OutcomeSuccess)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.checksTotal.WithLabelValues("category", OutcomeFailure)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.checkDuration))
}

func TestObserveRunAndServers(t *testing.T) {
	m := New()
	finished := time.Unix(1700000000, 0)
	m.ObserveRun(90*time.Second, finished, 2)
	m.SetServerUp("web1", true)
	m.SetServerUp("web2", false)
	m.AddBeacons(2, 3)
	m.AddBeacons(3, 0)

	assert.Equal(t, 1700000000.0, testutil.ToFloat64(m.lastRun))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.lastRunFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.serverUp.WithLabelValues("web1")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.serverUp.WithLabelValues("web2")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.beaconsTotal.WithLabelValues("2")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.beaconsTotal), "zero additions create no series")
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveCheck("main", true, time.Second)
		m.ObserveRun(time.Second, time.Now(), 0)
		m.SetServerUp("web1", true)
		m.AddBeacons(2, 1)
	})
	assert.Nil(t, m.Registry())
}

func TestRouter_Metrics(t *testing.T) {
	m := New()
	m.ObserveCheck("search", true, time.Second)
	srv := httptest.NewServer(Router(m, nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `newssmoke_checks_total{kind="search",outcome="success"} 1`)
}

func TestRouter_Status(t *testing.T) {
	status := func() any { return map[string]int{"errors": 2} }
	srv := httptest.NewServer(Router(New(), status))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var got map[string]int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, 2, got["errors"])
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json"))
}

func TestRouter_StatusBeforeFirstRun(t *testing.T) {
	srv := httptest.NewServer(Router(nil, func() any { return nil }))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "no run yet")

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRouter_Health(t *testing.T) {
	srv := httptest.NewServer(Router(nil, nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

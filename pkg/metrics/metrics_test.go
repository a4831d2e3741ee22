package metrics

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	m := New()
	m.Observe("start", nil)
	m.Observe("start", nil)
	m.Observe("start", errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("start", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("start", "error")))
}

func TestObserveNilReceiver(t *testing.T) {
	var m *Metrics
	m.Observe("start", nil) // must not panic
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.ServersRunning.Set(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "awgman_servers_running 3")
}

// TestIndependentRegistries checks two instances never collide, so tests and
// multiple constructions stay isolated.
func TestIndependentRegistries(t *testing.T) {
	a := New()
	b := New()
	a.ServersRunning.Set(1)
	b.ServersRunning.Set(2)
	assert.Equal(t, 1.0, testutil.ToFloat64(a.ServersRunning))
	assert.Equal(t, 2.0, testutil.ToFloat64(b.ServersRunning))
}

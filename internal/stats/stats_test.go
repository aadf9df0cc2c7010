package stats

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStatsUpdater(t *testing.T) {
	mux := http.NewServeMux()
	su := NewStatsUpdater(mux)
	assert.NotNil(t, su, "expected StatsUpdater to be non-nil")
	assert.NotNil(t, su.updateChan, "expected updateChan to be initialized")
	handler, pattern := mux.Handler(&http.Request{URL: &url.URL{Path: "/debug/vars"}, Method: http.MethodGet})
	assert.NotNil(t, handler, "expected handler for /debug/vars to be set")
	assert.Equal(t, "GET /debug/vars", pattern, "expected handler to be registered for GET method on /debug/vars")
}

func TestStatsUpdater_IncrDecr(t *testing.T) {
	mux := http.NewServeMux()
	su := NewStatsUpdater(mux)
	for _, m := range DefaultMetrics {
		su.RegisterMetric(m)
	}
	su.Run()
	defer su.Stop()

	su.Incr(NumSubscribers)
	su.Incr(NumSubscribers)
	su.Decr(NumSubscribers)
	su.Incr(NumTransitions)

	assert.Eventually(t, func() bool {
		return su.Value(NumSubscribers) == 1 && su.Value(NumTransitions) == 1
	}, time.Second, 10*time.Millisecond)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/debug/vars", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, float64(1), body[NumSubscribers])
	assert.Equal(t, float64(0), body[NumDroppedEvents])
	assert.Contains(t, body, "Uptime")
}

func TestStatsUpdater_StopTwice(t *testing.T) {
	su := NewStatsUpdater(http.NewServeMux())
	su.Run()
	su.Stop()
	assert.NotPanics(t, su.Stop)
}

func TestStatsUpdater_UpdatesAfterStop(t *testing.T) {
	su := NewStatsUpdater(http.NewServeMux())
	su.RegisterMetric(NumTransitions)
	su.Run()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			su.Incr(NumTransitions)
		}
	}()

	su.Stop()
	<-done

	assert.NotPanics(t, func() {
		su.Incr(NumTransitions)
		su.Decr(NumTransitions)
	}, "expected late updates to be dropped")
	assert.LessOrEqual(t, su.Value(NumTransitions), int64(1000))
}

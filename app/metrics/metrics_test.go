package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAccumulate(t *testing.T) {
	m := New()

	m.FlowEvent("add", "started")
	m.FlowEvent("add", "started")
	m.FlowEvent("delete", "completed")
	m.SessionsSwept(0)
	m.SessionsSwept(3)
	m.ObserveStore("write", 2*time.Millisecond, nil)
	m.ObserveStore("write", time.Millisecond, errors.New("disk full"))
	m.ObserveUpdate("message", "ok")
	m.ObserveReplies(2, true)
	m.ObserveReplies(0, false)
	m.ObserveNotification(nil)

	assert.InDelta(t, 2, testutil.ToFloat64(m.flowEvents.WithLabelValues("add", "started")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.flowEvents.WithLabelValues("delete", "completed")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.sessionsSwept), 0)
	assert.Equal(t, 2, testutil.CollectAndCount(m.storeOps))
	assert.InDelta(t, 1, testutil.ToFloat64(m.updates.WithLabelValues("message", "ok")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.replies.WithLabelValues("true")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.notifications.WithLabelValues("ok")), 0)
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.FlowEvent("rename", "completed")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `markerbot_flow_events_total{event="completed",flow="rename"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

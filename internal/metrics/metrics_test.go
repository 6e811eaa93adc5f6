package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCountersAndHandler(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.SessionOpened("chat")
	m.SessionOpened("chat")
	m.SessionClosed("chat")
	m.Pushed("chat", 3)
	m.Pushed("chat", 0)
	m.Dropped("posts")
	m.NotificationPersisted()
	m.NotificationFailed()
	m.Suppressed()
	m.Command("chat", "SendMessage", "ok")
	m.ObserveHTTP(http.MethodGet, "/api/posts/feed", 200, 15*time.Millisecond)

	require.Equal(t, 1.0, testutil.ToFloat64(m.sessions.WithLabelValues("chat")))
	require.Equal(t, 3.0, testutil.ToFloat64(m.pushes.WithLabelValues("chat")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.dropped.WithLabelValues("posts")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.suppressed))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "socialhub_router_pushes_total"))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.SessionOpened("chat")
	m.Pushed("chat", 2)
	m.NotificationFailed()
	m.Command("posts", "LikePost", "ok")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

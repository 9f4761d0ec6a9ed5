package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordConnectionPhase("connected")
	m.RecordReconnectScheduled(time.Second)
	m.RecordEventRouted("todo")
	m.RecordEventDropped("x", "unknown_kind")
	m.RecordOptimisticOutcome("delete", "committed")
}

func TestMetrics_ConnectionPhaseIsExclusive(t *testing.T) {
	m := New()
	m.RecordConnectionPhase("connecting")
	m.RecordConnectionPhase("connected")

	if v := testutil.ToFloat64(m.ConnectionPhase.WithLabelValues("connected")); v != 1 {
		t.Errorf("connected = %v, want 1", v)
	}
	if v := testutil.ToFloat64(m.ConnectionPhase.WithLabelValues("connecting")); v != 0 {
		t.Errorf("connecting = %v, want 0", v)
	}
}

func TestMetrics_Counters(t *testing.T) {
	m := New()
	m.RecordReconnectScheduled(2 * time.Second)
	m.RecordEventRouted("user_task")
	m.RecordEventRouted("user_task")
	m.RecordOptimisticOutcome("delete", "rolled_back")

	if v := testutil.ToFloat64(m.ReconnectsTotal); v != 1 {
		t.Errorf("reconnects = %v", v)
	}
	if v := testutil.ToFloat64(m.EventsRouted.WithLabelValues("user_task")); v != 2 {
		t.Errorf("routed = %v", v)
	}
	if v := testutil.ToFloat64(m.TaskActions.WithLabelValues("delete", "rolled_back")); v != 1 {
		t.Errorf("task actions = %v", v)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.RecordEventDropped("calendar", "unknown_kind")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `flora_sync_events_dropped_total{kind="calendar",reason="unknown_kind"} 1`) {
		t.Fatalf("metric missing from output:\n%s", body)
	}
}

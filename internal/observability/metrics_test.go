package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordRun("completed")
	m.RecordIteration()
	m.RecordRequest("openai", "success", time.Second)
	m.RecordRetry("openai")
	m.RecordDispatch("click", "executed", time.Millisecond)
	m.RecordObservation(1024)
	if m.Registry() != nil {
		t.Error("Registry() on nil metrics is not nil")
	}
}

func TestRecordRun(t *testing.T) {
	m := NewMetrics()
	m.RecordRun("completed")
	m.RecordRun("completed")
	m.RecordRun("safety_abort")

	expected := `
# HELP deskpilot_runs_total Finished runs by termination reason
# TYPE deskpilot_runs_total counter
deskpilot_runs_total{reason="completed"} 2
deskpilot_runs_total{reason="safety_abort"} 1
`
	if err := testutil.CollectAndCompare(m.RunsTotal, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metric value: %v", err)
	}
}

func TestRecordRequestAndDispatch(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("openai", "success", 2*time.Second)
	m.RecordRequest("openai", "retryable", time.Second)
	m.RecordRetry("openai")
	m.RecordDispatch("click", "executed", 500*time.Millisecond)
	m.RecordDispatch("click", "denied", time.Millisecond)
	m.RecordDispatch("zoom", "unknown", time.Millisecond)
	m.RecordIteration()

	if got := testutil.CollectAndCount(m.TransportRequests); got != 2 {
		t.Errorf("transport label sets = %d, want 2", got)
	}
	if got := testutil.ToFloat64(m.TransportRetries.WithLabelValues("openai")); got != 1 {
		t.Errorf("retries = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.ToolDispatches); got != 3 {
		t.Errorf("dispatch label sets = %d, want 3", got)
	}
	if got := testutil.ToFloat64(m.Iterations); got != 1 {
		t.Errorf("iterations = %v, want 1", got)
	}
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()
	m.RecordObservation(40 << 10)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "deskpilot_observation_bytes_count 1") {
		t.Errorf("metrics body missing observation count:\n%s", body)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	m := NewMetrics()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Serve(ctx, "127.0.0.1:0", nil) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}
}

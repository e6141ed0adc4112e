package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"careAlert/internal/metrics"
)

func TestMetrics_Exposed(t *testing.T) {
	t.Parallel()

	m := metrics.New()
	m.ObserveDelivery(metrics.OutcomeDelivered)
	m.ObserveDelivery(metrics.OutcomePermanent)
	m.ObservePruned()
	m.ObserveDispatch(metrics.ResultSent, 120*time.Millisecond)
	m.ClientConnected()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		`carealert_push_deliveries_total{outcome="delivered"} 1`,
		`carealert_push_deliveries_total{outcome="permanent"} 1`,
		`carealert_push_pruned_subscriptions_total 1`,
		`carealert_dispatches_total{result="sent"} 1`,
		`carealert_realtime_clients 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("missing %q in metrics output", want)
		}
	}
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	t.Parallel()

	a, b := metrics.New(), metrics.New()
	a.ObservePruned()

	n, err := testutil.GatherAndCount(b.Registry(), "carealert_push_pruned_subscriptions_total")
	if err != nil {
		t.Fatalf("GatherAndCount: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one series, got %d", n)
	}
	if err := testutil.GatherAndCompare(b.Registry(), strings.NewReader(`
# HELP carealert_push_pruned_subscriptions_total Subscriptions removed after a permanent delivery failure.
# TYPE carealert_push_pruned_subscriptions_total counter
carealert_push_pruned_subscriptions_total 0
`), "carealert_push_pruned_subscriptions_total"); err != nil {
		t.Fatalf("unexpected value: %v", err)
	}
}

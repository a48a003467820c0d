package observability_test

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/abo-bahr-alqershi/BOOKn2-sub002/internal/adapters/observability"
)

func TestMetricsRegistryAndHandler(t *testing.T) {
	reg := observability.InitRegistry()

	// record one sample per family so the exposition is non-empty
	observability.ObserveHTTP("/test", "GET", 200, 12*time.Millisecond)
	observability.ObserveOperation("index_property", nil, 3*time.Millisecond)
	observability.ObserveOperation("search", errors.New("boom"), time.Millisecond)
	observability.ObserveRejected("search")
	observability.ObserveCache("local", "hit")
	observability.SetBreakerState("search", 2)
	observability.ObserveSearch(42)

	mh := observability.MetricsHandler(reg)
	req := httptest.NewRequest("GET", "/metrics", nil)
	rr := httptest.NewRecorder()
	mh.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status: %d", rr.Code)
	}
	body, _ := io.ReadAll(rr.Body)
	out := string(body)
	for _, want := range []string{
		"bookn_http_requests_total",
		"bookn_index_operations_total",
		"bookn_cache_events_total",
		"bookn_circuit_breaker_state",
		"bookn_search_result_count",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in output", want)
		}
	}
}

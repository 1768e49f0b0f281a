package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func TestRegistry(t *testing.T) {
	if Registry == nil {
		t.Error("Registry should not be nil")
	}

	if Registry != prometheus.DefaultRegisterer {
		t.Error("Registry should be the default Prometheus registerer")
	}
}

var testCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "pagefeed_metrics_test_total",
	Help: "Counter registered by the metrics package tests",
})

func TestServeMux(t *testing.T) {
	testCounter.Inc()

	server := httptest.NewServer(NewServeMux())
	defer server.Close()

	resp, err := http.Get(server.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("/metrics status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "pagefeed_metrics_test_total 1") {
		t.Errorf("/metrics missing test counter:\n%s", body)
	}

	resp, err = http.Get(server.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK || string(body) != "OK" {
		t.Errorf("/health = %d %q", resp.StatusCode, body)
	}
}

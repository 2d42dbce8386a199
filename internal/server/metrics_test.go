package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

// gatherNames collects the fully qualified names of all metric families
// registered in reg.
func gatherNames(t *testing.T, reg *prometheus.Registry) map[string]bool {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	return names
}

func TestServerMetrics_RegisterAndGather(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := newServerMetrics(reg)

	m.agentQueriesTotal.WithLabelValues("ok").Inc()
	m.searchRequestsTotal.WithLabelValues("ok").Inc()
	m.httpRequestsTotal.WithLabelValues(http.MethodPost, "agent_query", "200").Inc()
	m.httpDurationSeconds.WithLabelValues(http.MethodPost, "agent_query").Observe(0.2)
	m.agentQueryDurationSeconds.WithLabelValues("ok").Observe(1.5)

	names := gatherNames(t, reg)
	for _, want := range []string{
		"ragmm_agent_queries_total",
		"ragmm_agent_query_duration_seconds",
		"ragmm_retrieval_search_requests_total",
		"ragmm_http_requests_total",
		"ragmm_http_duration_seconds",
	} {
		if !names[want] {
			t.Errorf("metric %s not found in gathered families", want)
		}
	}
}

func TestInstrument_RecordsStatus(t *testing.T) {
	t.Parallel()

	s := newTestServer(nil, nil)
	handler := s.instrument("agent_query", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/agent/query", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	families, err := s.registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	found := false
	for _, mf := range families {
		if mf.GetName() != "ragmm_http_requests_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			labels := make(map[string]string)
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["method"] == http.MethodPost &&
				labels[labelHandler] == "agent_query" &&
				labels["code"] == "400" {
				found = true
			}
		}
	}
	if !found {
		t.Error(`ragmm_http_requests_total{method="POST",handler="agent_query",code="400"} not recorded`)
	}
}

func TestMetricsEndpoint_Exposition(t *testing.T) {
	t.Parallel()

	s, err := New(&fakeAgent{}, &fakeRetriever{}, &Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.stopRL()

	s.metrics.agentQueriesTotal.WithLabelValues("ok").Inc()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("GET /metrics: %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `ragmm_agent_queries_total{outcome="ok"} 1`) {
		t.Errorf("exposition missing counter, body:\n%s", w.Body.String())
	}
}

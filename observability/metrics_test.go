package observability

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandlerExposesRegisteredCounters(t *testing.T) {
	m := New(
		func(ctx context.Context) (int, error) { return 7, nil },
		func() string { return "open" },
	)
	m.PostsIngested.Add(3)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, "plume_ingest_posts_ingested_total 3") {
		t.Fatalf("expected posts_ingested_total in output, got:\n%s", body)
	}
	if !strings.Contains(body, "plume_queue_depth 7") {
		t.Fatalf("expected queue_depth gauge in output, got:\n%s", body)
	}
	if !strings.Contains(body, "plume_llm_circuit_open 1") {
		t.Fatalf("expected circuit_open gauge = 1 when state is open, got:\n%s", body)
	}
}

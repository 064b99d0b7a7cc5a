package integration

import (
	"net/http"
	"strings"
	"testing"
)

func TestHealthEndpointNoAuth(t *testing.T) {
	resp := doJSON(t, http.MethodGet, "/healthz", "", nil)
	body := readBody(t, resp)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 without auth, got %d", resp.StatusCode)
	}
	if !strings.Contains(body, "ok") {
		t.Errorf("body = %q, want to contain 'ok'", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	// Generate at least one routed request.
	readBody(t, doJSON(t, http.MethodGet, "/v1/surveys", adminKey, nil))

	resp := doJSON(t, http.MethodGet, "/metrics", "", nil)
	body := readBody(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	for _, name := range []string{"umfrage_requests_total", "umfrage_store_operations_total"} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output lacks %s", name)
		}
	}
}

func TestAuthenticationRequired(t *testing.T) {
	resp := doJSON(t, http.MethodGet, "/v1/surveys", "", nil)
	readBody(t, resp)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no key: expected 401, got %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, "/v1/surveys", "not-a-key", nil)
	readBody(t, resp)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong key: expected 401, got %d", resp.StatusCode)
	}
}

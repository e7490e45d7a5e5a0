package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/handlers"
)

func TestAccessLogRedactsToken(t *testing.T) {
	var buf bytes.Buffer
	h := handlers.CustomLoggingHandler(&buf, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "secret.jwt" {
			t.Errorf("handler saw token %q", r.URL.Query().Get("token"))
		}
		w.WriteHeader(http.StatusNoContent)
	}), accessLog)

	req := httptest.NewRequest(http.MethodGet, "/lots/1/dashboard?token=secret.jwt&from=2026-03-01", nil)
	req.RemoteAddr = "10.0.0.5:51234"
	h.ServeHTTP(httptest.NewRecorder(), req)

	line := buf.String()
	if strings.Contains(line, "secret.jwt") {
		t.Fatalf("token leaked into access log: %s", line)
	}
	for _, want := range []string{"10.0.0.5 - -", `"GET /lots/1/dashboard?from=2026-03-01&token=REDACTED HTTP/1.1" 204`} {
		if !strings.Contains(line, want) {
			t.Errorf("log line %q missing %q", line, want)
		}
	}
}

func TestRedactedURIKeepsPlainQueries(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/lots?q=norte", nil)
	if got := redactedURI(*req.URL); got != "/api/lots?q=norte" {
		t.Errorf("got %q", got)
	}
}

package httputil

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMiddlewareRequestID(t *testing.T) {
	var seen string
	h := MiddlewareRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || rec.Header().Get(HeaderRequestID) != seen {
		t.Fatalf("generated id %q, header %q", seen, rec.Header().Get(HeaderRequestID))
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "abc")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "abc" {
		t.Fatalf("incoming id not kept: %q", seen)
	}
}

func TestMiddlewareLogging(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	h := MiddlewareRequestID(MiddlewareLogging(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short"))
	})))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/rooms/a", nil))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line %q: %v", buf.String(), err)
	}
	if line["status"] != float64(http.StatusTeapot) || line["bytes"] != float64(5) || line["path"] != "/rooms/a" {
		t.Fatalf("log line = %v", line)
	}
	if line["req_id"] == "" {
		t.Fatalf("missing req_id: %v", line)
	}
}

func TestLogResponseWriter_HijackUnsupported(t *testing.T) {
	w := &logResponseWriter{ResponseWriter: httptest.NewRecorder()}
	if _, _, err := w.Hijack(); err == nil {
		t.Fatalf("recorder cannot be hijacked")
	}
}

func TestError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	MiddlewareRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		Error(r.Context(), w, http.StatusConflict, "round_locked", "round is locked", map[string]any{"status": "countdown"})
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("code = %d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Content-Type"), "application/json") {
		t.Fatalf("content type = %q", rec.Header().Get("Content-Type"))
	}
	var body struct {
		Error struct {
			Code      string         `json:"code"`
			Message   string         `json:"message"`
			Meta      map[string]any `json:"meta"`
			RequestID string         `json:"requestId"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Error.Code != "round_locked" || body.Error.Meta["status"] != "countdown" || body.Error.RequestID == "" {
		t.Fatalf("body = %+v", body)
	}
}

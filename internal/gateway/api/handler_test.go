package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/scadable/replfleet/internal/gateway/ratelimit"
	"github.com/scadable/replfleet/internal/model"
)

func newTestRouter(cfg Config) http.Handler {
	limiter := ratelimit.New(60, 10, time.Minute)
	return NewRouter(cfg, nil, limiter, zerolog.Nop())
}

func TestHandleLanguagesListsAll(t *testing.T) {
	t.Parallel()

	router := newTestRouter(Config{})
	req := httptest.NewRequest(http.MethodGet, "/api/repl/languages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp model.LanguagesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(resp.Languages) != 5 {
		t.Fatalf("Languages = %v, want 5 entries", resp.Languages)
	}
}

func TestHandleExecuteBlocksUnsafeCode(t *testing.T) {
	t.Parallel()

	router := newTestRouter(Config{})
	body, _ := json.Marshal(model.ExecutionRequest{Language: "python", Code: "rm -rf /"})
	req := httptest.NewRequest(http.MethodPost, "/api/repl/execute", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestHandleExecuteRejectsUnsupportedLanguage(t *testing.T) {
	t.Parallel()

	router := newTestRouter(Config{})
	body, _ := json.Marshal(model.ExecutionRequest{Language: "cobol", Code: "DISPLAY 'HI'."})
	req := httptest.NewRequest(http.MethodPost, "/api/repl/execute", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestHandleExecuteReturnsServiceUnavailableWithNoOrchestrator(t *testing.T) {
	t.Parallel()

	router := newTestRouter(Config{})
	body, _ := json.Marshal(model.ExecutionRequest{Language: "python", Code: `print("hi")`})
	req := httptest.NewRequest(http.MethodPost, "/api/repl/execute", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestHandleExecuteRejectsInvalidBody(t *testing.T) {
	t.Parallel()

	router := newTestRouter(Config{})
	req := httptest.NewRequest(http.MethodPost, "/api/repl/execute", bytes.NewReader([]byte("{bad")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestRateLimitReturns429AndRetryAfter(t *testing.T) {
	t.Parallel()

	limiter := ratelimit.New(60, 1, time.Minute)
	router := NewRouter(Config{OrchestratorURL: "http://example.invalid"}, nil, limiter, zerolog.Nop())

	body, _ := json.Marshal(model.ExecutionRequest{Language: "python", Code: `print("hi")`})

	req1 := httptest.NewRequest(http.MethodPost, "/api/repl/execute", bytes.NewReader(body))
	req1.RemoteAddr = "9.9.9.9:1234"
	rec1 := httptest.NewRecorder()
	router.ServeHTTP(rec1, req1)

	req2 := httptest.NewRequest(http.MethodPost, "/api/repl/execute", bytes.NewReader(body))
	req2.RemoteAddr = "9.9.9.9:1234"
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req2)

	if rec2.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want %d", rec2.Code, http.StatusTooManyRequests)
	}
	if rec2.Header().Get("Retry-After") == "" {
		t.Fatal("Retry-After header missing on 429 response")
	}
}

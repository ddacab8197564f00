package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/zynqcloud/filegate/internal/middleware"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestBearerAuthAcceptsValidToken(t *testing.T) {
	h := middleware.BearerAuth("secret")(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/files/info", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestBearerAuthRejectsWrongToken(t *testing.T) {
	h := middleware.BearerAuth("secret")(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/files/info", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestBearerAuthRejectsMissingHeader(t *testing.T) {
	h := middleware.BearerAuth("secret")(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/files/info", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestBearerAuthRejectsMissingBearerPrefix(t *testing.T) {
	h := middleware.BearerAuth("secret")(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/files/info", nil)
	req.Header.Set("Authorization", "secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestBearerAuthBodyIsErrorJSON(t *testing.T) {
	h := middleware.BearerAuth("secret")(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/files/info", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Body.String(); got != `{"error":"unauthorized"}` {
		t.Errorf("body = %q", got)
	}
}

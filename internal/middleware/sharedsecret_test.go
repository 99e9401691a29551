package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func secretProtected(secret string) http.Handler {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return CallbackSecret(secret)(next)
}

func TestCallbackSecretMatch(t *testing.T) {
	h := secretProtected("s3cret")

	req := httptest.NewRequest(http.MethodPost, "/callbacks/error", nil)
	req.Header.Set(CallbackSecretHeader, "s3cret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
}

func TestCallbackSecretMismatch(t *testing.T) {
	h := secretProtected("s3cret")
	for _, presented := range []string{"", "wrong", "s3cret "} {
		req := httptest.NewRequest(http.MethodPost, "/callbacks/error", nil)
		if presented != "" {
			req.Header.Set(CallbackSecretHeader, presented)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("secret %q: status = %d, want 401", presented, rec.Code)
		}
	}
}

func TestCallbackSecretDisabledWhenEmpty(t *testing.T) {
	h := secretProtected("")
	req := httptest.NewRequest(http.MethodPost, "/callbacks/error", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
}

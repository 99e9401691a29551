package middleware

import (
	"crypto/subtle"
	"net/http"
)

// CallbackSecretHeader carries the shared secret the external worker sends
// with every callback.
const CallbackSecretHeader = "X-Callback-Secret"

// CallbackSecret rejects callback requests that do not present the shared
// secret. An empty configured secret disables the check, which keeps local
// setups working while staging/production always configure one.
func CallbackSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret != "" {
				presented := r.Header.Get(CallbackSecretHeader)
				if subtle.ConstantTimeCompare([]byte(presented), []byte(secret)) != 1 {
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusUnauthorized)
					_, _ = w.Write([]byte(`{"error":"unauthorized","message":"invalid callback secret"}`))
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

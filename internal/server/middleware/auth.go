package middleware

import (
	"bytes"
	"crypto/subtle"
	"io"
	"net/http"

	"github.com/promptwars/warsd/internal/crypto"
)

// maxSignedBodySize caps how much of a request body is buffered for
// signature verification.
const maxSignedBodySize = 1 << 20

// HMACAuth returns middleware that authenticates operator requests signed
// with the X-Wars-Account, X-Wars-Timestamp, and X-Wars-Signature headers.
// If auth is nil, authentication is disabled.
func HMACAuth(auth *crypto.HMACAuth) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth == nil {
				next.ServeHTTP(w, r)
				return
			}

			account := r.Header.Get(crypto.HeaderAccount)
			timestamp := r.Header.Get(crypto.HeaderTimestamp)
			signature := r.Header.Get(crypto.HeaderSignature)
			if account == "" || timestamp == "" || signature == "" {
				writeUnauthorized(w, "missing signature headers")
				return
			}

			if subtle.ConstantTimeCompare([]byte(account), []byte(auth.Account)) != 1 {
				writeUnauthorized(w, "unknown account")
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBodySize))
			if err != nil {
				writeUnauthorized(w, "unreadable request body")
				return
			}
			r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))

			if err := auth.Verify(r.Method, r.URL.Path, string(body), timestamp, signature); err != nil {
				writeUnauthorized(w, "invalid signature")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// writeUnauthorized sends a 401 response with a JSON error body.
func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}

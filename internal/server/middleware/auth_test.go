package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptwars/warsd/internal/crypto"
)

func TestHMACAuthMiddleware(t *testing.T) {
	auth := &crypto.HMACAuth{Account: "dao.promptwars.eth", Secret: "topsecret"}

	var gotBody string
	protected := HMACAuth(auth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b := make([]byte, 64)
		n, _ := r.Body.Read(b)
		gotBody = string(b[:n])
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("signed request passes and body survives", func(t *testing.T) {
		body := `{"player_id":"bob.near"}`
		req := httptest.NewRequest(http.MethodPost, "/api/markets/m1/resolve", strings.NewReader(body))
		for k, v := range auth.Headers(http.MethodPost, "/api/markets/m1/resolve", body) {
			req.Header.Set(k, v)
		}

		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)

		require.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, body, gotBody)
	})

	t.Run("missing headers rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/markets/m1/resolve", nil)

		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong account rejected", func(t *testing.T) {
		body := `{}`
		req := httptest.NewRequest(http.MethodPost, "/api/markets/m1/resolve", strings.NewReader(body))
		for k, v := range auth.Headers(http.MethodPost, "/api/markets/m1/resolve", body) {
			req.Header.Set(k, v)
		}
		req.Header.Set(crypto.HeaderAccount, "mallory.near")

		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("tampered body rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/markets/m1/resolve", strings.NewReader(`{"player_id":"mallory.near"}`))
		for k, v := range auth.Headers(http.MethodPost, "/api/markets/m1/resolve", `{"player_id":"bob.near"}`) {
			req.Header.Set(k, v)
		}

		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("nil auth disables verification", func(t *testing.T) {
		open := HMACAuth(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))

		req := httptest.NewRequest(http.MethodPost, "/api/markets/m1/resolve", nil)
		rec := httptest.NewRecorder()
		open.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

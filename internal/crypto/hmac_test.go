package crypto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHMACRoundTrip(t *testing.T) {
	auth := &HMACAuth{Account: "dao.promptwars.eth", Secret: "topsecret"}

	now := time.Unix(1_700_000_000, 0)
	headers := auth.HeadersAt("POST", "/api/markets/mkt-1/resolve", `{"player_id":"p1"}`, now.Unix())

	require.Equal(t, "dao.promptwars.eth", headers[HeaderAccount])

	err := auth.VerifyAt("POST", "/api/markets/mkt-1/resolve", `{"player_id":"p1"}`,
		headers[HeaderTimestamp], headers[HeaderSignature], now)
	assert.NoError(t, err)
}

func TestHMACVerifyRejections(t *testing.T) {
	auth := &HMACAuth{Account: "dao.promptwars.eth", Secret: "topsecret"}
	now := time.Unix(1_700_000_000, 0)
	headers := auth.HeadersAt("POST", "/api/markets/mkt-1/resolve", "{}", now.Unix())

	t.Run("tampered body", func(t *testing.T) {
		err := auth.VerifyAt("POST", "/api/markets/mkt-1/resolve", `{"x":1}`,
			headers[HeaderTimestamp], headers[HeaderSignature], now)
		assert.Error(t, err)
	})

	t.Run("wrong path", func(t *testing.T) {
		err := auth.VerifyAt("POST", "/api/markets/mkt-2/resolve", "{}",
			headers[HeaderTimestamp], headers[HeaderSignature], now)
		assert.Error(t, err)
	})

	t.Run("stale timestamp", func(t *testing.T) {
		err := auth.VerifyAt("POST", "/api/markets/mkt-1/resolve", "{}",
			headers[HeaderTimestamp], headers[HeaderSignature], now.Add(2*time.Minute))
		assert.Error(t, err)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := &HMACAuth{Account: auth.Account, Secret: "different"}
		err := other.VerifyAt("POST", "/api/markets/mkt-1/resolve", "{}",
			headers[HeaderTimestamp], headers[HeaderSignature], now)
		assert.Error(t, err)
	})
}

func TestEncryptDecryptKey(t *testing.T) {
	const keyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

	blob, err := EncryptKey("0x"+keyHex, "hunter2")
	require.NoError(t, err)

	got, err := DecryptKey(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, keyHex, got)

	_, err = DecryptKey(blob, "wrong")
	assert.Error(t, err)
}

package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSigner(t *testing.T) {
	// Well-known test vector: key 0x01 derives the address below.
	const keyHex = "0000000000000000000000000000000000000000000000000000000000000001"

	t.Run("derives address from key", func(t *testing.T) {
		signer, err := NewSigner(keyHex, 137)
		require.NoError(t, err)

		assert.Equal(t, "0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf", signer.Address().Hex())
		assert.Equal(t, int64(137), signer.ChainID())
		assert.NotNil(t, signer.PrivateKey())
	})

	t.Run("accepts 0x prefix", func(t *testing.T) {
		signer, err := NewSigner("0x"+keyHex, 137)
		require.NoError(t, err)
		assert.Equal(t, "0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf", signer.Address().Hex())
	})

	t.Run("rejects malformed key", func(t *testing.T) {
		_, err := NewSigner("not-a-key", 137)
		assert.Error(t, err)
	})
}

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptwars/warsd/internal/domain"
)

func TestAmountMintable(t *testing.T) {
	fees := domain.Fees{Price: 10_000, FeeRatio: 20_000_000} // 2%

	t.Run("splits amount into mintable and fee", func(t *testing.T) {
		mintable, fee := AmountMintable(10_000, fees)
		assert.Equal(t, domain.Amount(200), fee)
		assert.Equal(t, domain.Amount(9_800), mintable)
	})

	t.Run("zero amount yields zero fee", func(t *testing.T) {
		mintable, fee := AmountMintable(0, fees)
		assert.Zero(t, fee)
		assert.Zero(t, mintable)
	})

	t.Run("fee plus mintable conserves the amount", func(t *testing.T) {
		amounts := []domain.Amount{1, 7, 49, 100, 9_999, 10_000, 123_456_789}
		for _, amount := range amounts {
			mintable, fee := AmountMintable(amount, fees)
			assert.Equal(t, amount, mintable+fee, "amount %d", amount)
			assert.GreaterOrEqual(t, fee, domain.Amount(0))
			assert.GreaterOrEqual(t, mintable, domain.Amount(0))
		}
	})

	t.Run("monotonic in amount", func(t *testing.T) {
		var prev domain.Amount
		for amount := domain.Amount(0); amount <= 50_000; amount += 1_000 {
			mintable, _ := AmountMintable(amount, fees)
			assert.GreaterOrEqual(t, mintable, prev)
			prev = mintable
		}
	})

	t.Run("large amounts do not overflow", func(t *testing.T) {
		mintable, fee := AmountMintable(1_000_000_000_000, fees)
		assert.Equal(t, domain.Amount(20_000_000_000), fee)
		assert.Equal(t, domain.Amount(980_000_000_000), mintable)

		huge := domain.Amount(5_000_000_000_000_000)
		mintable, fee = AmountMintable(huge, fees)
		assert.Equal(t, domain.Amount(100_000_000_000_000), fee)
		assert.Equal(t, huge, mintable+fee)
	})

	t.Run("zero ratio charges no fee", func(t *testing.T) {
		mintable, fee := AmountMintable(10_000, domain.Fees{FeeRatio: 0})
		assert.Zero(t, fee)
		assert.Equal(t, domain.Amount(10_000), mintable)
	})
}

func TestClosestToZero(t *testing.T) {
	t.Run("picks the smallest absolute score", func(t *testing.T) {
		players := []domain.Player{
			{ID: "p1", Result: "12.5", OutputImgURI: "ipfs://a"},
			{ID: "p2", Result: "-3", OutputImgURI: "ipfs://b"},
			{ID: "p3", Result: "7", OutputImgURI: "ipfs://c"},
		}
		winner, ok := ClosestToZero(players)
		require.True(t, ok)
		assert.Equal(t, "p2", winner)
	})

	t.Run("skips unrevealed and unparseable results", func(t *testing.T) {
		players := []domain.Player{
			{ID: "p1"}, // never revealed
			{ID: "p2", Result: "not-a-number", OutputImgURI: "ipfs://b"},
			{ID: "p3", Result: "42", OutputImgURI: "ipfs://c"},
		}
		winner, ok := ClosestToZero(players)
		require.True(t, ok)
		assert.Equal(t, "p3", winner)
	})

	t.Run("tie keeps the earlier entry", func(t *testing.T) {
		players := []domain.Player{
			{ID: "p1", Result: "5", OutputImgURI: "ipfs://a"},
			{ID: "p2", Result: "-5", OutputImgURI: "ipfs://b"},
		}
		winner, ok := ClosestToZero(players)
		require.True(t, ok)
		assert.Equal(t, "p1", winner)
	})

	t.Run("no eligible players", func(t *testing.T) {
		_, ok := ClosestToZero(nil)
		assert.False(t, ok)
	})
}

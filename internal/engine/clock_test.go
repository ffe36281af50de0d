package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/promptwars/warsd/internal/domain"
)

func TestWindowPredicates(t *testing.T) {
	data := domain.MarketData{StartsAt: 100, EndsAt: 200}
	mgmt := domain.Management{SelfDestructWindow: 300}
	res := domain.Resolution{RevealWindow: 260, Window: 320}

	t.Run("open uses half-open interval", func(t *testing.T) {
		assert.False(t, isOpen(99, data))
		assert.True(t, isOpen(100, data))
		assert.True(t, isOpen(199, data))
		assert.False(t, isOpen(200, data)) // strict: end instant is not open
	})

	t.Run("window expiry is strict", func(t *testing.T) {
		assert.False(t, isRevealWindowExpired(260, res))
		assert.True(t, isRevealWindowExpired(261, res))
		assert.False(t, isResolutionWindowExpired(320, res))
		assert.True(t, isResolutionWindowExpired(321, res))
	})

	t.Run("self destruct measured from market end", func(t *testing.T) {
		assert.False(t, isSelfDestructWindowExpired(500, data, mgmt))
		assert.True(t, isSelfDestructWindowExpired(501, data, mgmt))
	})

	t.Run("expired unresolved requires all three conditions", func(t *testing.T) {
		assert.False(t, isExpiredUnresolved(150, data, res), "still open")
		assert.False(t, isExpiredUnresolved(250, data, res), "resolution window still running")
		assert.True(t, isExpiredUnresolved(321, data, res))

		resolved := res
		resolved.ResolvedAt = 310
		assert.False(t, isExpiredUnresolved(321, data, resolved))
	})
}

func TestEvaluateFlagsSingleInstant(t *testing.T) {
	data := domain.MarketData{StartsAt: 100, EndsAt: 200}
	mgmt := domain.Management{SelfDestructWindow: 300}
	res := domain.Resolution{RevealWindow: 260, Window: 320}

	f := EvaluateFlags(321, data, mgmt, res)
	assert.False(t, f.IsBeforeMarketEnds)
	assert.False(t, f.IsResolved)
	assert.True(t, f.IsRevealWindowExpired)
	assert.True(t, f.IsResolutionWindowExpired)
	assert.True(t, f.IsExpiredUnresolved)
	assert.False(t, f.IsSelfDestructWindowExpired)
	assert.False(t, domain.Inconsistent(f))
}

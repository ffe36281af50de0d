package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// allFlagCombos enumerates every combination of the six window flags.
func allFlagCombos() []Flags {
	out := make([]Flags, 0, 64)
	for i := 0; i < 64; i++ {
		out = append(out, Flags{
			IsBeforeMarketEnds:          i&1 != 0,
			IsResolved:                  i&2 != 0,
			IsRevealWindowExpired:       i&4 != 0,
			IsResolutionWindowExpired:   i&8 != 0,
			IsExpiredUnresolved:         i&16 != 0,
			IsSelfDestructWindowExpired: i&32 != 0,
		})
	}
	return out
}

func TestPhaseFromFlagsTotal(t *testing.T) {
	known := map[Phase]bool{
		PhaseOpen:       true,
		PhaseRevealing:  true,
		PhaseResolving:  true,
		PhaseResolved:   true,
		PhaseUnresolved: true,
		PhaseClosed:     true,
	}
	for _, f := range allFlagCombos() {
		p := PhaseFromFlags(f)
		assert.True(t, known[p], "flags %+v produced unknown phase %q", f, p)
		// Deterministic: same flags, same phase.
		assert.Equal(t, p, PhaseFromFlags(f))
	}
}

func TestPhaseFromFlagsPrecedence(t *testing.T) {
	t.Run("market end dominates everything", func(t *testing.T) {
		f := Flags{
			IsBeforeMarketEnds:        true,
			IsResolved:                true,
			IsRevealWindowExpired:     true,
			IsResolutionWindowExpired: true,
			IsExpiredUnresolved:       true,
		}
		assert.Equal(t, PhaseOpen, PhaseFromFlags(f))
		assert.True(t, Inconsistent(f))
	})

	t.Run("resolved beats window expiries", func(t *testing.T) {
		f := Flags{
			IsResolved:                true,
			IsRevealWindowExpired:     true,
			IsResolutionWindowExpired: true,
		}
		assert.Equal(t, PhaseResolved, PhaseFromFlags(f))
		assert.False(t, Inconsistent(f))
	})

	t.Run("reveal window open means revealing", func(t *testing.T) {
		assert.Equal(t, PhaseRevealing, PhaseFromFlags(Flags{}))
	})

	t.Run("resolution window open means resolving", func(t *testing.T) {
		f := Flags{IsRevealWindowExpired: true}
		assert.Equal(t, PhaseResolving, PhaseFromFlags(f))
	})

	t.Run("expired without resolution is unresolved until teardown", func(t *testing.T) {
		f := Flags{
			IsRevealWindowExpired:     true,
			IsResolutionWindowExpired: true,
			IsExpiredUnresolved:       true,
		}
		assert.Equal(t, PhaseUnresolved, PhaseFromFlags(f))

		f.IsSelfDestructWindowExpired = true
		assert.Equal(t, PhaseClosed, PhaseFromFlags(f))
	})
}

func TestTerminal(t *testing.T) {
	assert.True(t, PhaseResolved.Terminal())
	assert.True(t, PhaseClosed.Terminal())
	for _, p := range []Phase{PhaseLoading, PhaseOpen, PhaseRevealing, PhaseResolving, PhaseUnresolved} {
		assert.False(t, p.Terminal(), "phase %q", p)
	}
}

func TestInconsistent(t *testing.T) {
	assert.False(t, Inconsistent(Flags{}))
	assert.False(t, Inconsistent(Flags{IsBeforeMarketEnds: true}))
	assert.True(t, Inconsistent(Flags{IsResolved: true, IsBeforeMarketEnds: true}))
	assert.True(t, Inconsistent(Flags{IsResolved: true, IsExpiredUnresolved: true}))
	assert.True(t, Inconsistent(Flags{IsResolutionWindowExpired: true}))
	assert.False(t, Inconsistent(Flags{IsRevealWindowExpired: true, IsResolutionWindowExpired: true}))
}

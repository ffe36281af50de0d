package domain

// Phase is the single user-facing lifecycle status of a market, derived from
// the raw window flags. PhaseLoading exists only client-side, before the
// first successful fetch.
type Phase string

const (
	PhaseLoading    Phase = "loading"
	PhaseOpen       Phase = "open"
	PhaseRevealing  Phase = "revealing"
	PhaseResolving  Phase = "resolving"
	PhaseResolved   Phase = "resolved"
	PhaseUnresolved Phase = "unresolved"
	PhaseClosed     Phase = "closed"
)

// Terminal reports whether no further lifecycle transition is possible.
func (p Phase) Terminal() bool {
	return p == PhaseResolved || p == PhaseClosed
}

// Flags are the window booleans fetched from the engine, all evaluated
// against the same instant.
type Flags struct {
	IsBeforeMarketEnds          bool `json:"is_before_market_ends"`
	IsResolved                  bool `json:"is_resolved"`
	IsRevealWindowExpired       bool `json:"is_reveal_window_expired"`
	IsResolutionWindowExpired   bool `json:"is_resolution_window_expired"`
	IsExpiredUnresolved         bool `json:"is_expired_unresolved"`
	IsSelfDestructWindowExpired bool `json:"is_self_destruct_window_expired"`
}

// PhaseFromFlags projects the raw flags onto exactly one phase. It is total:
// every flag combination maps to a phase, in this precedence order. Market
// end dominates, so a contradictory fetch (resolved while still open) still
// yields PhaseOpen; use Inconsistent to detect and log such combinations.
func PhaseFromFlags(f Flags) Phase {
	switch {
	case f.IsBeforeMarketEnds:
		return PhaseOpen
	case f.IsResolved:
		return PhaseResolved
	case !f.IsRevealWindowExpired:
		return PhaseRevealing
	case !f.IsResolutionWindowExpired:
		return PhaseResolving
	case f.IsExpiredUnresolved && !f.IsSelfDestructWindowExpired:
		return PhaseUnresolved
	default:
		return PhaseClosed
	}
}

// Inconsistent reports whether the flag combination cannot be produced by a
// well-behaved engine: a resolved market that is still open, or an
// expired-unresolved marker contradicting the resolved flag. PhaseFromFlags
// still resolves these deterministically; callers should log them.
func Inconsistent(f Flags) bool {
	if f.IsResolved && f.IsBeforeMarketEnds {
		return true
	}
	if f.IsResolved && f.IsExpiredUnresolved {
		return true
	}
	// The reveal window closes no later than the resolution window, so an
	// expired resolution window implies an expired reveal window.
	if f.IsResolutionWindowExpired && !f.IsRevealWindowExpired {
		return true
	}
	return false
}

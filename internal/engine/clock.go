// Package engine implements the authoritative market lifecycle state
// machine: entry registration, reveal, resolution, and settlement. Every
// write operation on a Market is serialized and all-or-nothing; all window
// checks within one call use a single canonical "now".
package engine

import (
	"time"

	"github.com/promptwars/warsd/internal/domain"
)

// Clock supplies the canonical time source for an aggregate. Tests inject a
// fixed or stepped clock; production uses time.Now.
type Clock func() time.Time

// SystemClock is the default wall-clock source.
func SystemClock() time.Time { return time.Now().UTC() }

// Window predicates. All comparisons follow one convention: strict "<" for
// "before end", strict ">" for "window expired", so no boundary instant is
// counted twice.

// isOpen reports whether entries are accepted at now: the market has started
// and has not yet ended.
func isOpen(now domain.Timestamp, data domain.MarketData) bool {
	return now >= data.StartsAt && now < data.EndsAt
}

// isBeforeMarketEnds reports whether the market end time has not passed.
func isBeforeMarketEnds(now domain.Timestamp, data domain.MarketData) bool {
	return now < data.EndsAt
}

// isRevealWindowExpired reports whether the reveal deadline has passed.
func isRevealWindowExpired(now domain.Timestamp, r domain.Resolution) bool {
	return now > r.RevealWindow
}

// isResolutionWindowExpired reports whether the resolution deadline has passed.
func isResolutionWindowExpired(now domain.Timestamp, r domain.Resolution) bool {
	return now > r.Window
}

// isSelfDestructWindowExpired reports whether the market is old enough to be
// torn down. The self-destruct window is measured from the market end time.
func isSelfDestructWindowExpired(now domain.Timestamp, data domain.MarketData, mgmt domain.Management) bool {
	return now > data.EndsAt+mgmt.SelfDestructWindow
}

// isExpiredUnresolved reports whether the market ran out its resolution
// window without ever being resolved.
func isExpiredUnresolved(now domain.Timestamp, data domain.MarketData, r domain.Resolution) bool {
	return !isBeforeMarketEnds(now, data) && isResolutionWindowExpired(now, r) && r.ResolvedAt == 0
}

// EvaluateFlags computes every window flag against the single instant now.
func EvaluateFlags(now domain.Timestamp, data domain.MarketData, mgmt domain.Management, r domain.Resolution) domain.Flags {
	return domain.Flags{
		IsBeforeMarketEnds:          isBeforeMarketEnds(now, data),
		IsResolved:                  r.ResolvedAt != 0,
		IsRevealWindowExpired:       isRevealWindowExpired(now, r),
		IsResolutionWindowExpired:   isResolutionWindowExpired(now, r),
		IsExpiredUnresolved:         isExpiredUnresolved(now, data, r),
		IsSelfDestructWindowExpired: isSelfDestructWindowExpired(now, data, mgmt),
	}
}

package engine

import (
	"strconv"
	"strings"

	"github.com/promptwars/warsd/internal/domain"
)

// AmountMintable splits a gross entry amount into the net claim minted for
// the player and the protocol fee, using the fixed-point fee ratio over
// domain.FeeBase. fee + mintable == amount for every non-negative amount,
// and a zero amount yields a zero fee.
func AmountMintable(amount domain.Amount, fees domain.Fees) (mintable, fee domain.Amount) {
	if amount <= 0 {
		return 0, 0
	}
	// Split the multiplication so amount*FeeRatio never materializes; the
	// naive product overflows int64 around 4.6e11 minimal units.
	fee = amount / domain.FeeBase * fees.FeeRatio
	fee += amount % domain.FeeBase * fees.FeeRatio / domain.FeeBase
	return amount - fee, fee
}

// ClosestToZero returns the ID of the revealed player whose numeric result
// is closest to zero, the domain's winner-selection rule. Players without a
// parseable result are skipped. Ties keep the earlier entry. The second
// return value is false when no eligible player exists.
func ClosestToZero(players []domain.Player) (string, bool) {
	var (
		winner string
		best   float64
		found  bool
	)
	for _, p := range players {
		if !p.Revealed() {
			continue
		}
		score, err := strconv.ParseFloat(strings.TrimSpace(p.Result), 64)
		if err != nil {
			continue
		}
		if score < 0 {
			score = -score
		}
		if !found || score < best {
			winner = p.ID
			best = score
			found = true
		}
	}
	return winner, found
}

// Package stake implements wire-format stake arithmetic.
//
// Nominal stakes (what the operator types) scale to wire integers by
// STAKE_UNIT, a venue constant. The remaining-taker-space formula lives
// here so every component computes it identically, with arbitrary
// precision and a single final integer divide.
package stake

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Scale converts between nominal stakes and wire-scale integers.
type Scale struct {
	unit *big.Int
}

// NewScale builds a stake scale from the venue's STAKE_UNIT.
func NewScale(unit *big.Int) (*Scale, error) {
	if unit == nil || unit.Sign() <= 0 {
		return nil, fmt.Errorf("stake unit must be positive")
	}
	return &Scale{unit: new(big.Int).Set(unit)}, nil
}

// Unit returns a copy of the stake unit.
func (s *Scale) Unit() *big.Int { return new(big.Int).Set(s.unit) }

// ToWire converts a nominal stake to wire units, truncating any fraction
// finer than the wire scale.
func (s *Scale) ToWire(nominal decimal.Decimal) *big.Int {
	return nominal.Mul(decimal.NewFromBigInt(s.unit, 0)).BigInt()
}

// FromWire converts a wire stake back to its nominal value. Lossy at the
// display precision; never fed back into order submission.
func (s *Scale) FromWire(wire *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(wire, 0).DivRound(decimal.NewFromBigInt(s.unit, 0), 18)
}

// TakerSpace returns the taker capacity left on a maker order:
//
//	remainingMakerStake × (ODDS_UNIT − makerOdds) / makerOdds
//
// i.e. how much stake a taker can still put against the order. The
// multiply happens before the single integer divide so no intermediate
// truncation occurs.
func TakerSpace(remainingMakerStake, makerOdds, oddsUnit *big.Int) *big.Int {
	if makerOdds == nil || makerOdds.Sign() <= 0 {
		return big.NewInt(0)
	}
	if remainingMakerStake == nil || remainingMakerStake.Sign() <= 0 {
		return big.NewInt(0)
	}
	space := new(big.Int).Sub(oddsUnit, makerOdds)
	space.Mul(space, remainingMakerStake)
	return space.Div(space, makerOdds)
}

// Package odds implements wire-format odds arithmetic.
//
// The venue expresses implied probability as a fixed-point integer:
// probability × ODDS_UNIT, where ODDS_UNIT is a large power of ten.
// Postable odds must additionally sit on the venue's ladder — multiples
// of LADDER_STEP strictly inside (0, ODDS_UNIT). Both constants come from
// venue configuration, so everything here hangs off a Ladder value.
//
// All wire math uses math/big; decimal conversions exist for display only
// and are never fed back into order submission.
package odds

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ErrInvalidOdds marks an odds value that is off the ladder or outside
// the open interval (0, ODDS_UNIT).
var ErrInvalidOdds = errors.New("invalid odds")

// MaxPremiumBps is the upper bound for a position's premium.
const MaxPremiumBps = 9999

var bpsDenominator = big.NewInt(10_000)

// Ladder holds a venue's odds wire format: the unit representing 100%
// probability and the quantization step for postable odds.
type Ladder struct {
	unit *big.Int
	step *big.Int
}

// NewLadder validates and builds a ladder from venue constants.
func NewLadder(unit, step *big.Int) (*Ladder, error) {
	if unit == nil || unit.Sign() <= 0 {
		return nil, fmt.Errorf("odds unit must be positive")
	}
	if step == nil || step.Sign() <= 0 {
		return nil, fmt.Errorf("ladder step must be positive")
	}
	if step.Cmp(unit) >= 0 {
		return nil, fmt.Errorf("ladder step %s must be smaller than odds unit %s", step, unit)
	}
	return &Ladder{
		unit: new(big.Int).Set(unit),
		step: new(big.Int).Set(step),
	}, nil
}

// Unit returns a copy of the odds unit (100% in wire form).
func (l *Ladder) Unit() *big.Int { return new(big.Int).Set(l.unit) }

// Step returns a copy of the ladder step.
func (l *Ladder) Step() *big.Int { return new(big.Int).Set(l.step) }

// Implied converts wire odds to an implied probability in [0, 1).
// Lossy; for display and logging only.
func (l *Ladder) Implied(wire *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(wire, 0).DivRound(decimal.NewFromBigInt(l.unit, 0), 18)
}

// Wire converts an implied probability back to wire odds. The inverse of
// Implied up to fixed-point truncation; never used for order submission.
func (l *Ladder) Wire(implied decimal.Decimal) *big.Int {
	return implied.Mul(decimal.NewFromBigInt(l.unit, 0)).BigInt()
}

// OnLadder reports whether x is a postable odds value: a multiple of the
// step strictly inside (0, unit).
func (l *Ladder) OnLadder(x *big.Int) bool {
	if x == nil || x.Sign() <= 0 || x.Cmp(l.unit) >= 0 {
		return false
	}
	return new(big.Int).Mod(x, l.step).Sign() == 0
}

// Quantize rounds x down to the nearest ladder multiple. Fails with
// ErrInvalidOdds when the result would leave the open interval (0, unit).
func (l *Ladder) Quantize(x *big.Int) (*big.Int, error) {
	if x == nil || x.Sign() <= 0 {
		return nil, fmt.Errorf("quantize %v: %w", x, ErrInvalidOdds)
	}
	q := new(big.Int).Div(x, l.step)
	q.Mul(q, l.step)
	if q.Sign() <= 0 || q.Cmp(l.unit) >= 0 {
		return nil, fmt.Errorf("quantize %s: %w", x, ErrInvalidOdds)
	}
	return q, nil
}

// TakerOdds returns the odds a taker receives when crossing a maker order:
// ODDS_UNIT − makerOdds.
func (l *Ladder) TakerOdds(makerOdds *big.Int) *big.Int {
	return new(big.Int).Sub(l.unit, makerOdds)
}

// ApplyPremium derives the maker odds to post from a reference taker
// quote: takerOdds × (10000 − premiumBps) / 10000, rounded down onto the
// ladder. A premium large enough to push the result to zero fails with
// ErrInvalidOdds; callers treat that as "no viable quote" rather than an
// order error.
func (l *Ladder) ApplyPremium(takerOdds *big.Int, premiumBps int64) (*big.Int, error) {
	if premiumBps < 0 || premiumBps > MaxPremiumBps {
		return nil, fmt.Errorf("premium %d bps outside [0, %d]", premiumBps, MaxPremiumBps)
	}
	if takerOdds == nil || takerOdds.Sign() <= 0 || takerOdds.Cmp(l.unit) >= 0 {
		return nil, fmt.Errorf("taker odds %v: %w", takerOdds, ErrInvalidOdds)
	}
	raw := new(big.Int).Mul(takerOdds, big.NewInt(10_000-premiumBps))
	raw.Div(raw, bpsDenominator)
	return l.Quantize(raw)
}

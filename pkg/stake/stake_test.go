package stake

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
)

// Test scale: 10^6 wire units per nominal stake unit.
func newTestScale(t *testing.T) *Scale {
	t.Helper()
	s, err := NewScale(big.NewInt(1_000_000))
	if err != nil {
		t.Fatalf("NewScale: %v", err)
	}
	return s
}

func TestNewScaleRejectsBadUnit(t *testing.T) {
	t.Parallel()

	if _, err := NewScale(big.NewInt(0)); err == nil {
		t.Error("zero unit should be rejected")
	}
	if _, err := NewScale(nil); err == nil {
		t.Error("nil unit should be rejected")
	}
}

func TestToWireFromWireRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestScale(t)

	nominal := decimal.RequireFromString("50.25")
	wire := s.ToWire(nominal)
	if wire.Cmp(big.NewInt(50_250_000)) != 0 {
		t.Errorf("wire = %s, want 50250000", wire)
	}
	back := s.FromWire(wire)
	if !back.Equal(nominal) {
		t.Errorf("round trip = %s, want %s", back, nominal)
	}
}

func TestToWireTruncatesSubWireFractions(t *testing.T) {
	t.Parallel()
	s := newTestScale(t)

	wire := s.ToWire(decimal.RequireFromString("0.0000019"))
	if wire.Cmp(big.NewInt(1)) != 0 {
		t.Errorf("wire = %s, want 1 (truncated)", wire)
	}
}

func TestTakerSpace(t *testing.T) {
	t.Parallel()
	unit := big.NewInt(100_000_000) // odds unit

	// Maker bets 100 at 0.60 → taker space = 100 × 0.40/0.60 = 66 (floor).
	space := TakerSpace(big.NewInt(100), big.NewInt(60_000_000), unit)
	if space.Cmp(big.NewInt(66)) != 0 {
		t.Errorf("space = %s, want 66", space)
	}

	// Even odds leave equal space.
	space = TakerSpace(big.NewInt(100), big.NewInt(50_000_000), unit)
	if space.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("space = %s, want 100", space)
	}
}

func TestTakerSpaceDegenerate(t *testing.T) {
	t.Parallel()
	unit := big.NewInt(100_000_000)

	if got := TakerSpace(big.NewInt(0), big.NewInt(50_000_000), unit); got.Sign() != 0 {
		t.Errorf("zero remaining stake: got %s, want 0", got)
	}
	if got := TakerSpace(big.NewInt(100), big.NewInt(0), unit); got.Sign() != 0 {
		t.Errorf("zero odds: got %s, want 0", got)
	}
	if got := TakerSpace(nil, big.NewInt(50_000_000), unit); got.Sign() != 0 {
		t.Errorf("nil remaining stake: got %s, want 0", got)
	}
}

// No intermediate truncation: with arbitrary precision the error versus
// exact rational arithmetic is strictly less than one wire unit.
func TestTakerSpaceSingleDivide(t *testing.T) {
	t.Parallel()
	unit, _ := new(big.Int).SetString("100000000000000000000", 10) // 10^20
	rem, _ := new(big.Int).SetString("123456789123456789", 10)
	oddsVal, _ := new(big.Int).SetString("33333333333333333333", 10)

	space := TakerSpace(rem, oddsVal, unit)

	num := new(big.Int).Mul(rem, new(big.Int).Sub(unit, oddsVal))
	exactFloor := new(big.Int).Div(num, oddsVal)
	if space.Cmp(exactFloor) != 0 {
		t.Errorf("space = %s, want exact floor %s", space, exactFloor)
	}
}

package risk

import (
	"math/big"
	"strings"
	"testing"

	"github.com/declansx/odds-maximizer-betting-bot/pkg/types"
)

func metrics(vig, liqA, liqB int64) types.Metrics {
	m := types.Metrics{
		LiquidityA: big.NewInt(liqA),
		LiquidityB: big.NewInt(liqB),
	}
	if vig >= 0 {
		m.Vig = big.NewInt(vig)
	}
	return m
}

func TestEvaluateClean(t *testing.T) {
	t.Parallel()

	v := Evaluate(metrics(5, 100, 100), big.NewInt(10), big.NewInt(50))
	if v.Breached {
		t.Fatalf("breached = true, want false: %s", v.Reason)
	}
}

func TestEvaluateVigBreach(t *testing.T) {
	t.Parallel()

	v := Evaluate(metrics(11, 100, 100), big.NewInt(10), big.NewInt(50))
	if !v.Breached {
		t.Fatal("vig above max must breach")
	}
	if !strings.Contains(v.Reason, "vig") {
		t.Errorf("reason = %q, want it to mention vig", v.Reason)
	}

	// Exactly at the limit is fine.
	v = Evaluate(metrics(10, 100, 100), big.NewInt(10), big.NewInt(50))
	if v.Breached {
		t.Error("vig equal to max must not breach")
	}
}

func TestEvaluateNilVigIsNotABreach(t *testing.T) {
	t.Parallel()

	v := Evaluate(metrics(-1, 100, 100), big.NewInt(10), big.NewInt(50))
	if v.Breached {
		t.Error("undefined vig must not breach by itself")
	}
}

func TestEvaluateLiquidityBreach(t *testing.T) {
	t.Parallel()

	v := Evaluate(metrics(5, 40, 100), big.NewInt(10), big.NewInt(50))
	if !v.Breached || !strings.Contains(v.Reason, "side A") {
		t.Errorf("thin side A must breach, got %+v", v)
	}

	v = Evaluate(metrics(5, 100, 40), big.NewInt(10), big.NewInt(50))
	if !v.Breached || !strings.Contains(v.Reason, "side B") {
		t.Errorf("thin side B must breach, got %+v", v)
	}
}

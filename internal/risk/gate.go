// Package risk evaluates whether a market is safe to quote into.
package risk

import (
	"fmt"
	"math/big"

	"github.com/declansx/odds-maximizer-betting-bot/pkg/types"
)

// Verdict is the outcome of one gate evaluation.
type Verdict struct {
	Breached bool
	Reason   string
}

// Evaluate applies the position's risk thresholds to the current market
// metrics. A breach means the position must hold no resting order:
// either the overround exceeds maxVig or either side's liquidity sits
// below minLiquidity. An undefined vig (one side has no qualifying
// best) is not by itself a breach.
func Evaluate(m types.Metrics, maxVig, minLiquidity *big.Int) Verdict {
	if m.Vig != nil && m.Vig.Cmp(maxVig) > 0 {
		return Verdict{
			Breached: true,
			Reason:   fmt.Sprintf("vig %s exceeds max %s", m.Vig, maxVig),
		}
	}
	if m.LiquidityA == nil || m.LiquidityA.Cmp(minLiquidity) < 0 {
		return Verdict{
			Breached: true,
			Reason:   fmt.Sprintf("side A liquidity %s below min %s", liqString(m.LiquidityA), minLiquidity),
		}
	}
	if m.LiquidityB == nil || m.LiquidityB.Cmp(minLiquidity) < 0 {
		return Verdict{
			Breached: true,
			Reason:   fmt.Sprintf("side B liquidity %s below min %s", liqString(m.LiquidityB), minLiquidity),
		}
	}
	return Verdict{}
}

func liqString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

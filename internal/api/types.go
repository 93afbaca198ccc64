package api

import (
	"fmt"
	"math/big"
	"time"

	"github.com/declansx/odds-maximizer-betting-bot/pkg/stake"
	"github.com/declansx/odds-maximizer-betting-bot/pkg/types"
)

// createPositionRequest is the operator's JSON input for a new
// position. Stake and odds thresholds are wire-scale decimal strings.
type createPositionRequest struct {
	MarketHash   string `json:"marketHash"`
	Side         string `json:"side"` // "A" or "B"
	MaxStake     string `json:"maxStake"`
	PremiumBps   int64  `json:"premiumBps"`
	MaxVig       string `json:"maxVig"`
	MinLiquidity string `json:"minLiquidity"`
	MinForOdds   string `json:"minForOdds"`
	MinForVig    string `json:"minForVig"`
}

func (r createPositionRequest) toSpec() (types.PositionSpec, error) {
	spec := types.PositionSpec{
		MarketID:   r.MarketHash,
		ChosenSide: types.Outcome(r.Side),
		PremiumBps: r.PremiumBps,
	}
	var err error
	if spec.MaxStake, err = parseBig("maxStake", r.MaxStake); err != nil {
		return spec, err
	}
	if spec.MaxVig, err = parseBig("maxVig", r.MaxVig); err != nil {
		return spec, err
	}
	if spec.MinLiquidity, err = parseBig("minLiquidity", r.MinLiquidity); err != nil {
		return spec, err
	}
	if spec.MinForOdds, err = parseBig("minForOdds", r.MinForOdds); err != nil {
		return spec, err
	}
	if spec.MinForVig, err = parseBig("minForVig", r.MinForVig); err != nil {
		return spec, err
	}
	return spec, nil
}

// editPositionRequest carries the patchable fields; absent fields are
// left unchanged.
type editPositionRequest struct {
	MaxStake     *string `json:"maxStake,omitempty"`
	PremiumBps   *int64  `json:"premiumBps,omitempty"`
	MaxVig       *string `json:"maxVig,omitempty"`
	MinLiquidity *string `json:"minLiquidity,omitempty"`
	MinForOdds   *string `json:"minForOdds,omitempty"`
	MinForVig    *string `json:"minForVig,omitempty"`
}

func (r editPositionRequest) toPatch() (types.PositionPatch, error) {
	var patch types.PositionPatch
	var err error
	if r.MaxStake != nil {
		if patch.MaxStake, err = parseBig("maxStake", *r.MaxStake); err != nil {
			return patch, err
		}
	}
	patch.PremiumBps = r.PremiumBps
	if r.MaxVig != nil {
		if patch.MaxVig, err = parseBig("maxVig", *r.MaxVig); err != nil {
			return patch, err
		}
	}
	if r.MinLiquidity != nil {
		if patch.MinLiquidity, err = parseBig("minLiquidity", *r.MinLiquidity); err != nil {
			return patch, err
		}
	}
	if r.MinForOdds != nil {
		if patch.MinForOdds, err = parseBig("minForOdds", *r.MinForOdds); err != nil {
			return patch, err
		}
	}
	if r.MinForVig != nil {
		if patch.MinForVig, err = parseBig("minForVig", *r.MinForVig); err != nil {
			return patch, err
		}
	}
	return patch, nil
}

func parseBig(name, s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("%s is required", name)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%s: not a decimal integer: %q", name, s)
	}
	return v, nil
}

// positionView is the JSON rendering of a position. Big integers go
// out as decimal strings.
type positionView struct {
	ID           string `json:"id"`
	MarketHash   string `json:"marketHash"`
	Side         string `json:"side"`
	MaxStake     string `json:"maxStake"`
	FilledStake  string `json:"filledStake"`
	// Nominal (human-unit) renderings of the wire stakes.
	MaxStakeNominal    string `json:"maxStakeNominal"`
	FilledStakeNominal string `json:"filledStakeNominal"`
	PremiumBps   int64  `json:"premiumBps"`
	MaxVig       string `json:"maxVig"`
	MinLiquidity string `json:"minLiquidity"`
	MinForOdds   string `json:"minForOdds"`
	MinForVig    string `json:"minForVig"`

	Status      string `json:"status"`
	OrderStatus string `json:"orderStatus"`
	ActiveOrder string `json:"activeOrder,omitempty"`
	QuotedOdds  string `json:"quotedOdds,omitempty"`

	RiskBreached bool   `json:"riskBreached"`
	RiskReason   string `json:"riskReason,omitempty"`

	BestTakerOdds string `json:"bestTakerOdds,omitempty"`
	Vig           string `json:"vig,omitempty"`
	LiquidityA    string `json:"liquidityA,omitempty"`
	LiquidityB    string `json:"liquidityB,omitempty"`

	CreatedAt time.Time  `json:"createdAt"`
	ClosedAt  *time.Time `json:"closedAt,omitempty"`
}

func renderPosition(p *types.Position, scale *stake.Scale) positionView {
	v := positionView{
		ID:                 p.ID,
		MarketHash:         p.MarketID,
		Side:               string(p.ChosenSide),
		MaxStake:           p.MaxStake.String(),
		FilledStake:        p.FilledStake.String(),
		MaxStakeNominal:    scale.FromWire(p.MaxStake).String(),
		FilledStakeNominal: scale.FromWire(p.FilledStake).String(),
		PremiumBps:         p.PremiumBps,
		MaxVig:             p.MaxVig.String(),
		MinLiquidity:       p.MinLiquidity.String(),
		MinForOdds:         p.MinForOdds.String(),
		MinForVig:          p.MinForVig.String(),
		Status:             string(p.Status),
		OrderStatus:        string(p.OrderState),
		ActiveOrder:        p.ActiveOrder,
		RiskBreached:       p.RiskBreached,
		RiskReason:         p.RiskReason,
		CreatedAt:          p.CreatedAt,
	}
	if p.QuotedOdds != nil {
		v.QuotedOdds = p.QuotedOdds.String()
	}
	if m := p.LastMetrics; m.BestTakerOdds != nil {
		v.BestTakerOdds = m.BestTakerOdds.String()
	}
	if p.LastMetrics.Vig != nil {
		v.Vig = p.LastMetrics.Vig.String()
	}
	if p.LastMetrics.LiquidityA != nil {
		v.LiquidityA = p.LastMetrics.LiquidityA.String()
	}
	if p.LastMetrics.LiquidityB != nil {
		v.LiquidityB = p.LastMetrics.LiquidityB.String()
	}
	if !p.ClosedAt.IsZero() {
		t := p.ClosedAt
		v.ClosedAt = &t
	}
	return v
}

func renderPositions(ps []*types.Position, scale *stake.Scale) []positionView {
	out := make([]positionView, 0, len(ps))
	for _, p := range ps {
		out = append(out, renderPosition(p, scale))
	}
	return out
}

type errorResponse struct {
	Error string `json:"error"`
}

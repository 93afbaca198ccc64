// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the bot — outcomes, maker
// orders, order book deltas, derived market metrics, and the position
// record with its lifecycle. It has no dependencies on internal packages,
// so it can be imported by any layer.
package types

import (
	"fmt"
	"math/big"
	"time"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Outcome identifies one of the two mutually exclusive results of a
// binary market. The maker of an order bets one outcome; the taker who
// crosses it bets the other.
type Outcome string

const (
	OutcomeA Outcome = "A"
	OutcomeB Outcome = "B"
)

// Opposite returns the other outcome.
func (o Outcome) Opposite() Outcome {
	if o == OutcomeA {
		return OutcomeB
	}
	return OutcomeA
}

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	return o == OutcomeA || o == OutcomeB
}

// DeltaStatus is the lifecycle tag carried by an order book delta.
type DeltaStatus string

const (
	DeltaActive   DeltaStatus = "ACTIVE"   // insert or replace
	DeltaInactive DeltaStatus = "INACTIVE" // remove
)

// PositionStatus is the lifecycle state of an operator position.
type PositionStatus string

const (
	StatusInitializing PositionStatus = "INITIALIZING" // subscribing, fetching snapshot
	StatusActive       PositionStatus = "ACTIVE"       // quoting normally
	StatusRiskPaused   PositionStatus = "RISK_PAUSED"  // risk gate breached, no resting order
	StatusCompleted    PositionStatus = "COMPLETED"    // filled to the completion fraction
	StatusClosed       PositionStatus = "CLOSED"       // operator close
)

// Terminal reports whether the status admits no further transitions.
func (s PositionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusClosed
}

// OrderState tracks the position's single outstanding maker order.
type OrderState string

const (
	OrderNone      OrderState = "NONE"
	OrderActive    OrderState = "ACTIVE"
	OrderCancelled OrderState = "CANCELLED"
	OrderError     OrderState = "ERROR"
)

// ————————————————————————————————————————————————————————————————————————
// Maker orders and deltas
// ————————————————————————————————————————————————————————————————————————

// MakerOrder is the venue's resting limit order entity, mirrored locally.
// Stake fields are wire-scale integers (nominal × STAKE_UNIT); MakerOdds is
// the maker's implied probability in wire odds units (implied × ODDS_UNIT).
type MakerOrder struct {
	Hash        string   // venue order hash, unique per order
	MarketID    string   // market hash this order rests on
	Maker       string   // maker's signing address
	TotalStake  *big.Int // full stake committed by the maker
	FilledStake *big.Int // cumulative stake consumed by takers
	MakerOdds   *big.Int // maker's odds, in (0, ODDS_UNIT)
	MakerSideA  bool     // true if the maker is betting outcome A
}

// MakerOutcome returns the outcome the maker of this order is betting.
func (o *MakerOrder) MakerOutcome() Outcome {
	if o.MakerSideA {
		return OutcomeA
	}
	return OutcomeB
}

// RemainingStake returns totalStake − filledStake, floored at zero.
func (o *MakerOrder) RemainingStake() *big.Int {
	rem := new(big.Int).Sub(o.TotalStake, o.FilledStake)
	if rem.Sign() < 0 {
		return big.NewInt(0)
	}
	return rem
}

// Clone returns a deep copy of the order.
func (o *MakerOrder) Clone() MakerOrder {
	return MakerOrder{
		Hash:        o.Hash,
		MarketID:    o.MarketID,
		Maker:       o.Maker,
		TotalStake:  new(big.Int).Set(o.TotalStake),
		FilledStake: new(big.Int).Set(o.FilledStake),
		MakerOdds:   new(big.Int).Set(o.MakerOdds),
		MakerSideA:  o.MakerSideA,
	}
}

// OrderDelta is one incremental order book update: the full order fields
// plus a status tag and the venue's update timestamp used to drop
// reordered duplicates.
type OrderDelta struct {
	Order      MakerOrder
	Status     DeltaStatus
	UpdateTime int64 // venue clock, milliseconds; monotone per order
}

// WireOrder is the JSON form of a maker order as the venue's REST and
// WebSocket APIs deliver it. Numeric fields are decimal strings to
// preserve arbitrary precision.
type WireOrder struct {
	OrderHash                string `json:"orderHash"`
	MarketHash               string `json:"marketHash"`
	Maker                    string `json:"maker"`
	TotalBetSize             string `json:"totalBetSize"`
	FillAmount               string `json:"fillAmount"`
	PercentageOdds           string `json:"percentageOdds"`
	IsMakerBettingOutcomeOne bool   `json:"isMakerBettingOutcomeOne"`
	Status                   string `json:"status,omitempty"`
	UpdateTime               int64  `json:"updateTime,omitempty"`
}

// Decode converts a wire order into the internal representation.
// Returns an error for malformed numeric fields; callers drop bad
// records instead of letting them corrupt the mirror.
func (w WireOrder) Decode() (MakerOrder, error) {
	if w.OrderHash == "" {
		return MakerOrder{}, fmt.Errorf("wire order missing orderHash")
	}
	total, ok := new(big.Int).SetString(w.TotalBetSize, 10)
	if !ok {
		return MakerOrder{}, fmt.Errorf("order %s: bad totalBetSize %q", w.OrderHash, w.TotalBetSize)
	}
	filled := big.NewInt(0)
	if w.FillAmount != "" {
		filled, ok = new(big.Int).SetString(w.FillAmount, 10)
		if !ok {
			return MakerOrder{}, fmt.Errorf("order %s: bad fillAmount %q", w.OrderHash, w.FillAmount)
		}
	}
	odds, ok := new(big.Int).SetString(w.PercentageOdds, 10)
	if !ok {
		return MakerOrder{}, fmt.Errorf("order %s: bad percentageOdds %q", w.OrderHash, w.PercentageOdds)
	}
	if odds.Sign() <= 0 {
		return MakerOrder{}, fmt.Errorf("order %s: non-positive odds", w.OrderHash)
	}
	if filled.Sign() < 0 || filled.Cmp(total) > 0 {
		return MakerOrder{}, fmt.Errorf("order %s: fill %s outside [0, %s]", w.OrderHash, filled, total)
	}
	return MakerOrder{
		Hash:        w.OrderHash,
		MarketID:    w.MarketHash,
		Maker:       w.Maker,
		TotalStake:  total,
		FilledStake: filled,
		MakerOdds:   odds,
		MakerSideA:  w.IsMakerBettingOutcomeOne,
	}, nil
}

// DecodeDelta converts a wire order carrying a status tag into a delta.
func (w WireOrder) DecodeDelta() (OrderDelta, error) {
	order, err := w.Decode()
	if err != nil {
		return OrderDelta{}, err
	}
	status := DeltaStatus(w.Status)
	switch status {
	case DeltaActive, DeltaInactive:
	default:
		return OrderDelta{}, fmt.Errorf("order %s: unknown status %q", w.OrderHash, w.Status)
	}
	return OrderDelta{Order: order, Status: status, UpdateTime: w.UpdateTime}, nil
}

// ————————————————————————————————————————————————————————————————————————
// Derived market metrics
// ————————————————————————————————————————————————————————————————————————

// Metrics is the per-position view derived from the order book mirror.
// BestTakerOdds is the taker quote for the position's chosen outcome;
// nil means no opposite-side maker order qualifies. Vig is the overround
// in wire odds units; nil when either side lacks a qualifying best.
// Liquidity values are remaining taker capacity in stake wire units.
type Metrics struct {
	BestTakerOdds *big.Int
	Vig           *big.Int
	LiquidityA    *big.Int
	LiquidityB    *big.Int
}

// Liquidity returns the taker capacity available when backing the given
// outcome.
func (m Metrics) Liquidity(o Outcome) *big.Int {
	if o == OutcomeA {
		return m.LiquidityA
	}
	return m.LiquidityB
}

// Clone returns a deep copy of the metrics.
func (m Metrics) Clone() Metrics {
	out := Metrics{}
	if m.BestTakerOdds != nil {
		out.BestTakerOdds = new(big.Int).Set(m.BestTakerOdds)
	}
	if m.Vig != nil {
		out.Vig = new(big.Int).Set(m.Vig)
	}
	if m.LiquidityA != nil {
		out.LiquidityA = new(big.Int).Set(m.LiquidityA)
	}
	if m.LiquidityB != nil {
		out.LiquidityB = new(big.Int).Set(m.LiquidityB)
	}
	return out
}

// ————————————————————————————————————————————————————————————————————————
// Positions
// ————————————————————————————————————————————————————————————————————————

// Position is the operator-declared unit of work: bet ChosenSide on
// MarketID for up to MaxStake, keeping at most one resting maker order at
// a premium over the current best taker price. All stake and odds fields
// are wire-scale big integers.
//
// Every mutation of a Position happens inside its operation queue; reads
// outside the queue go through Store snapshots (Clone).
type Position struct {
	ID         string
	MarketID   string
	ChosenSide Outcome

	MaxStake    *big.Int // wire stake units
	FilledStake *big.Int // monotone non-decreasing

	PremiumBps   int64    // discount applied to posted odds, [0, 9999]
	MaxVig       *big.Int // wire odds units; vig above this pauses the position
	MinLiquidity *big.Int // stake wire units, per side
	MinForOdds   *big.Int // qualification floor for best-odds derivation
	MinForVig    *big.Int // qualification floor for vig derivation

	Status      PositionStatus
	OrderState  OrderState
	ActiveOrder string   // hash of the single outstanding maker order, "" if none
	QuotedOdds  *big.Int // maker odds of the last posted order, nil if none

	RiskBreached bool
	RiskReason   string

	LastOrderAction time.Time // stamp for the min-update-interval rate limit
	CreatedAt       time.Time
	ClosedAt        time.Time

	// Latest market view, cached for inspection.
	LastMetrics Metrics
}

// RemainingStake returns maxStake − filledStake, floored at zero.
func (p *Position) RemainingStake() *big.Int {
	rem := new(big.Int).Sub(p.MaxStake, p.FilledStake)
	if rem.Sign() < 0 {
		return big.NewInt(0)
	}
	return rem
}

// Clone returns a deep copy suitable for handing outside the operation
// queue.
func (p *Position) Clone() *Position {
	cp := *p
	cp.MaxStake = new(big.Int).Set(p.MaxStake)
	cp.FilledStake = new(big.Int).Set(p.FilledStake)
	cp.MaxVig = new(big.Int).Set(p.MaxVig)
	cp.MinLiquidity = new(big.Int).Set(p.MinLiquidity)
	cp.MinForOdds = new(big.Int).Set(p.MinForOdds)
	cp.MinForVig = new(big.Int).Set(p.MinForVig)
	if p.QuotedOdds != nil {
		cp.QuotedOdds = new(big.Int).Set(p.QuotedOdds)
	}
	cp.LastMetrics = p.LastMetrics.Clone()
	return &cp
}

// PositionSpec is the operator input for creating a position.
type PositionSpec struct {
	MarketID     string
	ChosenSide   Outcome
	MaxStake     *big.Int
	PremiumBps   int64
	MaxVig       *big.Int
	MinLiquidity *big.Int
	MinForOdds   *big.Int
	MinForVig    *big.Int
}

// PositionPatch carries operator edits; nil fields are left unchanged.
type PositionPatch struct {
	MaxStake     *big.Int
	PremiumBps   *int64
	MaxVig       *big.Int
	MinLiquidity *big.Int
	MinForOdds   *big.Int
	MinForVig    *big.Int
}

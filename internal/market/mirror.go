// Package market maintains local order book state and derives the
// per-position metrics the strategy trades on.
package market

import (
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/declansx/odds-maximizer-betting-bot/pkg/stake"
	"github.com/declansx/odds-maximizer-betting-bot/pkg/types"
)

// Mirror is the in-memory order book for one market: two buckets of
// live maker orders keyed by order hash, one per outcome the maker is
// betting. Updates arrive as an initial snapshot plus ordered deltas;
// a per-order monotone updateTime drops reordered duplicates.
//
// The book for a single market stays small (tens of orders), so best
// and sum queries recompute by scanning rather than keeping sorted
// structures.
type Mirror struct {
	marketID string
	oddsUnit *big.Int

	mu    sync.RWMutex
	sideA map[string]types.MakerOrder // makers betting outcome A
	sideB map[string]types.MakerOrder // makers betting outcome B

	lastUpdate map[string]int64 // orderHash -> newest updateTime applied

	staleDropped   uint64
	badOddsDropped uint64

	logger *slog.Logger
}

// NewMirror creates an empty mirror for one market.
func NewMirror(marketID string, oddsUnit *big.Int, logger *slog.Logger) *Mirror {
	return &Mirror{
		marketID:   marketID,
		oddsUnit:   oddsUnit,
		sideA:      make(map[string]types.MakerOrder),
		sideB:      make(map[string]types.MakerOrder),
		lastUpdate: make(map[string]int64),
		logger:     logger.With("component", "mirror", "market", marketID),
	}
}

// ApplySnapshot replaces the entire book atomically. Snapshot entries
// are stamped with the local fetch time so a push delta that predates
// the snapshot cannot roll an order back to an older state.
func (m *Mirror) ApplySnapshot(orders []types.MakerOrder) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sideA = make(map[string]types.MakerOrder, len(orders))
	m.sideB = make(map[string]types.MakerOrder)
	m.lastUpdate = make(map[string]int64, len(orders))

	asOf := time.Now().UnixMilli()
	for _, o := range orders {
		if !m.oddsInRange(o.MakerOdds) {
			m.badOddsDropped++
			m.logger.Warn("dropping snapshot order with out-of-range odds",
				"order", o.Hash, "odds", o.MakerOdds)
			continue
		}
		m.lastUpdate[o.Hash] = asOf
		m.insertLocked(o.Clone())
	}
}

// ApplyDeltas folds an ordered batch of updates into the book. A delta
// whose updateTime is not newer than the stored one for that order is
// dropped silently; the counter tracks how many.
func (m *Mirror) ApplyDeltas(deltas []types.OrderDelta) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, d := range deltas {
		if d.Status == types.DeltaActive && !m.oddsInRange(d.Order.MakerOdds) {
			m.badOddsDropped++
			m.logger.Warn("dropping delta with out-of-range odds",
				"order", d.Order.Hash, "odds", d.Order.MakerOdds)
			continue
		}
		last, seen := m.lastUpdate[d.Order.Hash]
		if seen && d.UpdateTime <= last {
			m.staleDropped++
			continue
		}
		m.lastUpdate[d.Order.Hash] = d.UpdateTime

		m.removeLocked(d.Order.Hash)
		if d.Status == types.DeltaActive {
			m.insertLocked(d.Order.Clone())
		}
	}
}

// oddsInRange reports whether maker odds encode a probability strictly
// between 0 and 1. Anything else would make taker-space arithmetic go
// negative, so such orders never enter the book.
func (m *Mirror) oddsInRange(odds *big.Int) bool {
	return odds != nil && odds.Sign() > 0 && odds.Cmp(m.oddsUnit) < 0
}

// insertLocked places an order in exactly one bucket. The caller holds
// the write lock and has already removed any prior entry for the hash.
func (m *Mirror) insertLocked(o types.MakerOrder) {
	if o.MakerSideA {
		m.sideA[o.Hash] = o
	} else {
		m.sideB[o.Hash] = o
	}
}

func (m *Mirror) removeLocked(hash string) {
	delete(m.sideA, hash)
	delete(m.sideB, hash)
}

// Order returns the current book entry for an order hash, if live.
func (m *Mirror) Order(hash string) (types.MakerOrder, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if o, ok := m.sideA[hash]; ok {
		return o.Clone(), true
	}
	if o, ok := m.sideB[hash]; ok {
		return o.Clone(), true
	}
	return types.MakerOrder{}, false
}

// Size returns the number of live orders in the book.
func (m *Mirror) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sideA) + len(m.sideB)
}

// StaleDropped returns how many stale or duplicate deltas were ignored.
func (m *Mirror) StaleDropped() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.staleDropped
}

// BadOddsDropped returns how many orders were rejected for odds outside
// the (0, unit) range.
func (m *Mirror) BadOddsDropped() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.badOddsDropped
}

// MetricsFor derives the market view for one position. self is the
// agent's maker address; its own orders never count toward best odds or
// liquidity. minForOdds and minForVig are the remaining-stake floors a
// maker order must clear to qualify for the respective derivation.
//
// BestTakerOdds is the quote for chosenSide; nil when no opposite-side
// order qualifies. Vig is nil unless both sides have a qualifying best
// under minForVig.
func (m *Mirror) MetricsFor(chosenSide types.Outcome, self string, minForOdds, minForVig *big.Int) types.Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := types.Metrics{
		LiquidityA: m.liquidityLocked(types.OutcomeA, self),
		LiquidityB: m.liquidityLocked(types.OutcomeB, self),
	}

	if best := m.bestMakerOddsLocked(chosenSide.Opposite(), self, minForOdds); best != nil {
		out.BestTakerOdds = new(big.Int).Sub(m.oddsUnit, best)
	}

	// vig = bestTakerOdds[A] + bestTakerOdds[B] − 1, which collapses to
	// unit − bestMakerOdds[A] − bestMakerOdds[B].
	bestA := m.bestMakerOddsLocked(types.OutcomeA, self, minForVig)
	bestB := m.bestMakerOddsLocked(types.OutcomeB, self, minForVig)
	if bestA != nil && bestB != nil {
		vig := new(big.Int).Sub(m.oddsUnit, bestA)
		vig.Sub(vig, bestB)
		out.Vig = vig
	}

	return out
}

// bestMakerOddsLocked returns the highest maker odds in the bucket of
// makers betting makerSide, among orders with remaining stake of at
// least minStake, excluding self. Nil when nothing qualifies.
func (m *Mirror) bestMakerOddsLocked(makerSide types.Outcome, self string, minStake *big.Int) *big.Int {
	bucket := m.sideA
	if makerSide == types.OutcomeB {
		bucket = m.sideB
	}

	var best *big.Int
	for _, o := range bucket {
		if strings.EqualFold(o.Maker, self) {
			continue
		}
		if o.RemainingStake().Cmp(minStake) < 0 {
			continue
		}
		if best == nil || o.MakerOdds.Cmp(best) > 0 {
			best = o.MakerOdds
		}
	}
	if best == nil {
		return nil
	}
	return new(big.Int).Set(best)
}

// liquidityLocked sums remaining taker capacity over every order a
// taker betting takerSide would hit, excluding self.
func (m *Mirror) liquidityLocked(takerSide types.Outcome, self string) *big.Int {
	bucket := m.sideA
	if takerSide.Opposite() == types.OutcomeB {
		bucket = m.sideB
	}

	total := big.NewInt(0)
	for _, o := range bucket {
		if strings.EqualFold(o.Maker, self) {
			continue
		}
		total.Add(total, stake.TakerSpace(o.RemainingStake(), o.MakerOdds, m.oddsUnit))
	}
	return total
}

package market

import (
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/declansx/odds-maximizer-betting-bot/pkg/types"
)

const (
	testMarket = "0xmarket"
	testSelf   = "0xSelfMaker"
	testOther  = "0xOtherMaker"
)

// A small odds unit keeps expectations readable: 1e8 = probability 1.
var testUnit = big.NewInt(100_000_000)

func newTestMirror() *Mirror {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewMirror(testMarket, testUnit, logger)
}

func mkOrder(hash, maker string, sideA bool, odds, total, filled int64) types.MakerOrder {
	return types.MakerOrder{
		Hash:        hash,
		MarketID:    testMarket,
		Maker:       maker,
		TotalStake:  big.NewInt(total),
		FilledStake: big.NewInt(filled),
		MakerOdds:   big.NewInt(odds),
		MakerSideA:  sideA,
	}
}

func mkDelta(o types.MakerOrder, status types.DeltaStatus, ts int64) types.OrderDelta {
	return types.OrderDelta{Order: o, Status: status, UpdateTime: ts}
}

func TestSnapshotAndDeltasConverge(t *testing.T) {
	t.Parallel()

	orders := []types.MakerOrder{
		mkOrder("o1", testOther, false, 60_000_000, 100, 0),
		mkOrder("o2", testOther, true, 30_000_000, 200, 50),
	}

	bySnapshot := newTestMirror()
	bySnapshot.ApplySnapshot(orders)

	byDeltas := newTestMirror()
	for i, o := range orders {
		byDeltas.ApplyDeltas([]types.OrderDelta{mkDelta(o, types.DeltaActive, int64(i + 1))})
	}

	zero := big.NewInt(0)
	for _, m := range []*Mirror{bySnapshot, byDeltas} {
		if m.Size() != 2 {
			t.Fatalf("size = %d, want 2", m.Size())
		}
	}
	a := bySnapshot.MetricsFor(types.OutcomeA, testSelf, zero, zero)
	b := byDeltas.MetricsFor(types.OutcomeA, testSelf, zero, zero)
	if a.BestTakerOdds.Cmp(b.BestTakerOdds) != 0 {
		t.Errorf("bestTakerOdds diverged: snapshot %s, deltas %s", a.BestTakerOdds, b.BestTakerOdds)
	}
	if a.LiquidityA.Cmp(b.LiquidityA) != 0 || a.LiquidityB.Cmp(b.LiquidityB) != 0 {
		t.Error("liquidity diverged between snapshot and delta paths")
	}
}

func TestBestTakerOddsAndLiquidity(t *testing.T) {
	t.Parallel()
	m := newTestMirror()

	// One maker betting B at 0.60 with remaining stake 100. A taker on
	// side A crossing it gets 0.40 and can absorb 100*(1-0.6)/0.6 = 66.
	m.ApplySnapshot([]types.MakerOrder{
		mkOrder("o1", testOther, false, 60_000_000, 100, 0),
	})

	zero := big.NewInt(0)
	got := m.MetricsFor(types.OutcomeA, testSelf, zero, zero)

	if got.BestTakerOdds == nil || got.BestTakerOdds.Int64() != 40_000_000 {
		t.Errorf("bestTakerOdds = %v, want 40000000", got.BestTakerOdds)
	}
	if got.LiquidityA.Int64() != 66 {
		t.Errorf("liquidityA = %s, want 66", got.LiquidityA)
	}
	if got.LiquidityB.Int64() != 0 {
		t.Errorf("liquidityB = %s, want 0", got.LiquidityB)
	}
	if got.Vig != nil {
		t.Errorf("vig = %v, want nil with only one side quoted", got.Vig)
	}
}

func TestVigNeedsBothSides(t *testing.T) {
	t.Parallel()
	m := newTestMirror()

	// Makers at 0.55 on A and 0.40 on B: vig = 1 - 0.55 - 0.40 = 0.05.
	m.ApplySnapshot([]types.MakerOrder{
		mkOrder("a1", testOther, true, 55_000_000, 100, 0),
		mkOrder("b1", testOther, false, 40_000_000, 100, 0),
	})

	zero := big.NewInt(0)
	got := m.MetricsFor(types.OutcomeA, testSelf, zero, zero)
	if got.Vig == nil || got.Vig.Int64() != 5_000_000 {
		t.Errorf("vig = %v, want 5000000", got.Vig)
	}
}

func TestSelfOrdersExcluded(t *testing.T) {
	t.Parallel()
	m := newTestMirror()

	// Our own order quotes a better price than the rest of the book;
	// metrics must not see it, even with different address casing.
	m.ApplySnapshot([]types.MakerOrder{
		mkOrder("ours", "0xselfmaker", false, 70_000_000, 500, 0),
		mkOrder("theirs", testOther, false, 60_000_000, 100, 0),
	})

	zero := big.NewInt(0)
	got := m.MetricsFor(types.OutcomeA, testSelf, zero, zero)
	if got.BestTakerOdds.Int64() != 40_000_000 {
		t.Errorf("bestTakerOdds = %s, want 40000000 (self order must be excluded)", got.BestTakerOdds)
	}
	if got.LiquidityA.Int64() != 66 {
		t.Errorf("liquidityA = %s, want 66 (self order must be excluded)", got.LiquidityA)
	}
}

func TestQualificationFloors(t *testing.T) {
	t.Parallel()
	m := newTestMirror()

	// The better-priced order has only 5 remaining; with minForOdds=10
	// the quote must come from the smaller-odds order instead.
	m.ApplySnapshot([]types.MakerOrder{
		mkOrder("thin", testOther, false, 65_000_000, 10, 5),
		mkOrder("deep", testOther, false, 60_000_000, 100, 0),
	})

	got := m.MetricsFor(types.OutcomeA, testSelf, big.NewInt(10), big.NewInt(10))
	if got.BestTakerOdds.Int64() != 40_000_000 {
		t.Errorf("bestTakerOdds = %s, want 40000000 (thin order must not qualify)", got.BestTakerOdds)
	}

	// With no floor the thin order wins.
	zero := big.NewInt(0)
	got = m.MetricsFor(types.OutcomeA, testSelf, zero, zero)
	if got.BestTakerOdds.Int64() != 35_000_000 {
		t.Errorf("bestTakerOdds = %s, want 35000000", got.BestTakerOdds)
	}
}

func TestStaleDeltaDropped(t *testing.T) {
	t.Parallel()
	m := newTestMirror()

	o := mkOrder("o1", testOther, false, 60_000_000, 100, 0)
	m.ApplyDeltas([]types.OrderDelta{mkDelta(o, types.DeltaActive, 5)})

	// An older INACTIVE must not remove the order.
	m.ApplyDeltas([]types.OrderDelta{mkDelta(o, types.DeltaInactive, 4)})
	if m.Size() != 1 {
		t.Fatalf("size = %d after stale INACTIVE, want 1", m.Size())
	}
	if m.StaleDropped() != 1 {
		t.Errorf("staleDropped = %d, want 1", m.StaleDropped())
	}

	// A newer one does.
	m.ApplyDeltas([]types.OrderDelta{mkDelta(o, types.DeltaInactive, 6)})
	if m.Size() != 0 {
		t.Fatalf("size = %d after INACTIVE, want 0", m.Size())
	}
}

func TestOutOfRangeOddsRejected(t *testing.T) {
	t.Parallel()
	m := newTestMirror()

	// Odds at or above the unit encode probability >= 1; taker space for
	// such an order would be negative and poison the liquidity sums.
	bad := mkOrder("bad", testOther, false, 2*testUnit.Int64(), 100, 0)
	m.ApplyDeltas([]types.OrderDelta{mkDelta(bad, types.DeltaActive, 1)})

	if m.Size() != 0 {
		t.Fatalf("size = %d, want 0 after out-of-range delta", m.Size())
	}
	if m.BadOddsDropped() != 1 {
		t.Errorf("badOddsDropped = %d, want 1", m.BadOddsDropped())
	}

	zero := big.NewInt(0)
	got := m.MetricsFor(types.OutcomeA, testSelf, zero, zero)
	if got.LiquidityA.Sign() < 0 || got.LiquidityB.Sign() < 0 {
		t.Errorf("liquidity went negative: A=%s B=%s", got.LiquidityA, got.LiquidityB)
	}

	// Same guard on the snapshot path: the bad order is skipped, the
	// good one survives.
	m.ApplySnapshot([]types.MakerOrder{
		mkOrder("atUnit", testOther, false, testUnit.Int64(), 100, 0),
		mkOrder("good", testOther, false, 60_000_000, 100, 0),
	})
	if m.Size() != 1 {
		t.Fatalf("size = %d, want 1 after snapshot with one bad order", m.Size())
	}
	if _, ok := m.Order("good"); !ok {
		t.Error("good order missing from book")
	}
}

func TestSnapshotOutlivesOlderDelta(t *testing.T) {
	t.Parallel()
	m := newTestMirror()

	// The push subscription opens before the snapshot fetch returns, so
	// a delta queued in that window can carry an updateTime older than
	// the snapshot. It must not roll the book back.
	m.ApplySnapshot([]types.MakerOrder{
		mkOrder("o1", testOther, false, 60_000_000, 100, 50),
	})

	stale := mkOrder("o1", testOther, false, 60_000_000, 100, 0)
	m.ApplyDeltas([]types.OrderDelta{mkDelta(stale, types.DeltaInactive, 1_000)})
	m.ApplyDeltas([]types.OrderDelta{mkDelta(stale, types.DeltaActive, 2_000)})

	got, ok := m.Order("o1")
	if !ok {
		t.Fatal("order removed by a delta older than the snapshot")
	}
	if got.FilledStake.Int64() != 50 {
		t.Errorf("filledStake = %s, want 50 from the snapshot", got.FilledStake)
	}
	if m.StaleDropped() != 2 {
		t.Errorf("staleDropped = %d, want 2", m.StaleDropped())
	}
}

func TestOrderMovesSidesCleanly(t *testing.T) {
	t.Parallel()
	m := newTestMirror()

	o := mkOrder("o1", testOther, true, 50_000_000, 100, 0)
	m.ApplyDeltas([]types.OrderDelta{mkDelta(o, types.DeltaActive, 1)})

	// A replacement flipping the maker side must leave exactly one entry.
	flipped := o
	flipped.MakerSideA = false
	m.ApplyDeltas([]types.OrderDelta{mkDelta(flipped, types.DeltaActive, 2)})

	if m.Size() != 1 {
		t.Fatalf("size = %d, want 1 after side flip", m.Size())
	}
	got, ok := m.Order("o1")
	if !ok || got.MakerSideA {
		t.Errorf("order should live in the B bucket after the flip")
	}
}

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"

	"github.com/declansx/odds-maximizer-betting-bot/internal/exchange"
	"github.com/declansx/odds-maximizer-betting-bot/internal/market"
	"github.com/declansx/odds-maximizer-betting-bot/internal/store"
	"github.com/declansx/odds-maximizer-betting-bot/internal/strategy"
	"github.com/declansx/odds-maximizer-betting-bot/pkg/types"
)

// marketEntry is the shared per-market state: one mirror and one
// transport subscription serving every position attached to the market.
type marketEntry struct {
	mirror    *market.Mirror
	sub       *exchange.Subscription
	positions map[string]bool // attached position IDs

	// Deltas wait here until the initial snapshot is in the mirror.
	ready chan struct{}
}

// Monitor connects order book updates to position controllers. It owns
// the mirrors, one per market with at least one attached position, and
// translates delta batches into fill and market-data events dispatched
// through the serializer.
type Monitor struct {
	stream     *exchange.Stream
	store      *store.Store
	serializer *Serializer
	controller *strategy.Controller
	cancels    *market.RecentCancels

	self     string // our maker address; fills are detected by it
	oddsUnit *big.Int

	mu      sync.Mutex
	markets map[string]*marketEntry

	logger *slog.Logger
}

// NewMonitor creates a monitor with no attached markets.
func NewMonitor(
	stream *exchange.Stream,
	st *store.Store,
	ser *Serializer,
	ctrl *strategy.Controller,
	cancels *market.RecentCancels,
	self string,
	oddsUnit *big.Int,
	logger *slog.Logger,
) *Monitor {
	return &Monitor{
		stream:     stream,
		store:      st,
		serializer: ser,
		controller: ctrl,
		cancels:    cancels,
		self:       self,
		oddsUnit:   oddsUnit,
		markets:    make(map[string]*marketEntry),
		logger:     logger.With("component", "monitor"),
	}
}

// Attach hooks a position to its market: opens (or shares) the market
// subscription, seeds the mirror from a snapshot, and delivers the
// first market-data event through the position's queue.
func (m *Monitor) Attach(ctx context.Context, positionID, marketID string) error {
	m.mu.Lock()
	entry, exists := m.markets[marketID]
	if exists {
		entry.positions[positionID] = true
		m.mu.Unlock()
		// The first attach may still be fetching the snapshot; an event
		// from an unseeded mirror would read as a dead market.
		<-entry.ready
		m.dispatchMarketData(entry, positionID)
		return nil
	}

	entry = &marketEntry{
		mirror:    market.NewMirror(marketID, m.oddsUnit, m.logger),
		positions: map[string]bool{positionID: true},
		ready:     make(chan struct{}),
	}
	m.markets[marketID] = entry
	m.mu.Unlock()

	sub, snapshot, err := m.stream.Subscribe(ctx, marketID, m.onDeltas)
	if err != nil {
		m.mu.Lock()
		delete(m.markets, marketID)
		m.mu.Unlock()
		close(entry.ready)
		return fmt.Errorf("attach market %s: %w", marketID, err)
	}

	entry.mirror.ApplySnapshot(snapshot)
	m.mu.Lock()
	entry.sub = sub
	m.mu.Unlock()
	close(entry.ready)

	m.logger.Info("market attached", "market", marketID, "orders", len(snapshot))
	m.dispatchMarketData(entry, positionID)
	return nil
}

// Detach unhooks a position. The last position on a market tears the
// subscription and mirror down with it.
func (m *Monitor) Detach(positionID, marketID string) {
	m.mu.Lock()
	entry, ok := m.markets[marketID]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(entry.positions, positionID)
	last := len(entry.positions) == 0
	var sub *exchange.Subscription
	if last {
		delete(m.markets, marketID)
		sub = entry.sub
	}
	m.mu.Unlock()

	if last {
		if sub != nil {
			sub.Unsubscribe()
		}
		m.logger.Info("market detached", "market", marketID)
	}
}

// onDeltas is the transport handler: fold the batch into the mirror,
// route our own orders' deltas as fill events, then fan a fresh market
// view out to every attached position.
func (m *Monitor) onDeltas(marketID string, deltas []types.OrderDelta) {
	m.mu.Lock()
	entry, ok := m.markets[marketID]
	m.mu.Unlock()
	if !ok {
		return
	}
	<-entry.ready

	entry.mirror.ApplyDeltas(deltas)

	for _, d := range deltas {
		if !strings.EqualFold(d.Order.Maker, m.self) {
			continue
		}
		m.dispatchFill(entry, d.Order.Hash, d.Order.FilledStake)
	}

	m.mu.Lock()
	ids := make([]string, 0, len(entry.positions))
	for id := range entry.positions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.dispatchMarketData(entry, id)
	}
}

// dispatchFill routes a self-order delta to the owning position. The
// owner is whoever holds the order as its active quote, or failing
// that, whoever cancelled it recently.
func (m *Monitor) dispatchFill(entry *marketEntry, orderHash string, filled *big.Int) {
	positionID := m.findOwner(entry, orderHash)
	if positionID == "" {
		m.logger.Debug("self delta with no owning position", "order", orderHash)
		return
	}

	amount := new(big.Int).Set(filled)
	m.serializer.Enqueue(positionID, "fill", func(ctx context.Context) error {
		return m.controller.HandleFill(ctx, positionID, orderHash, amount)
	})
}

func (m *Monitor) findOwner(entry *marketEntry, orderHash string) string {
	m.mu.Lock()
	ids := make([]string, 0, len(entry.positions))
	for id := range entry.positions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		p, err := m.store.Get(id)
		if err == nil && p.ActiveOrder == orderHash {
			return id
		}
	}
	if owner, ok := m.cancels.Lookup(orderHash); ok {
		return owner
	}
	return ""
}

// dispatchMarketData computes the position's metrics from the mirror
// and queues a market-data event. Metrics use the position's own
// qualification floors, so they are computed per position, not per
// market.
func (m *Monitor) dispatchMarketData(entry *marketEntry, positionID string) {
	p, err := m.store.Get(positionID)
	if err != nil {
		return
	}

	metrics := entry.mirror.MetricsFor(p.ChosenSide, m.self, p.MinForOdds, p.MinForVig)
	m.serializer.Enqueue(positionID, "market_data", func(ctx context.Context) error {
		return m.controller.HandleMarketData(ctx, positionID, metrics)
	})
}

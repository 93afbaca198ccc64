// stream.go is the order book transport facade. Consumers subscribe to
// a market and receive ordered batches of order deltas from a single
// place, regardless of how the data arrives.
//
// Preferred source is the push feed (ws.go). Whenever push is
// unavailable (never connected, or dropped mid-session) the stream
// degrades to polling REST snapshots on a fixed interval and
// synthesizing deltas by diffing each snapshot against the last known
// order set. The same diff runs after every reconnect, so any updates
// missed while offline are recovered. Synthesized deltas carry a local
// timestamp strictly greater than the last one seen for the order, so
// downstream monotone dedup never discards them.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/declansx/odds-maximizer-betting-bot/pkg/types"
)

// DeltaHandler receives ordered delta batches for one market. Calls for
// the same market are never concurrent.
type DeltaHandler func(marketID string, deltas []types.OrderDelta)

// knownOrder is the last observed wire state of one order, used to diff
// poll snapshots into deltas.
type knownOrder struct {
	order      types.MakerOrder
	updateTime int64
}

type marketSub struct {
	handler DeltaHandler
	known   map[string]knownOrder // orderHash -> last observed state
}

// Stream multiplexes per-market order delta subscriptions over the push
// feed with a polling fallback.
type Stream struct {
	feed   *WSFeed
	client *Client

	pollInterval time.Duration
	readyTimeout time.Duration

	mu   sync.Mutex
	subs map[string]*marketSub

	logger *slog.Logger
}

// NewStream creates a transport facade over the push feed and the REST
// client. pollInterval governs the fallback cadence when push is down.
func NewStream(feed *WSFeed, client *Client, pollInterval time.Duration, logger *slog.Logger) *Stream {
	return &Stream{
		feed:         feed,
		client:       client,
		pollInterval: pollInterval,
		readyTimeout: 5 * time.Second,
		subs:         make(map[string]*marketSub),
		logger:       logger.With("component", "stream"),
	}
}

// Subscription is a handle to one market subscription.
type Subscription struct {
	stream   *Stream
	marketID string
	once     sync.Once
}

// Unsubscribe detaches the market. Idempotent.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.stream.unsubscribe(s.marketID)
	})
}

// Subscribe attaches a handler to a market and returns the initial
// order snapshot. The handler only sees updates that arrive after the
// returned snapshot; the caller seeds its own state from the snapshot.
// At most one subscription per market is allowed.
func (s *Stream) Subscribe(ctx context.Context, marketID string, handler DeltaHandler) (*Subscription, []types.MakerOrder, error) {
	s.mu.Lock()
	if _, dup := s.subs[marketID]; dup {
		s.mu.Unlock()
		return nil, nil, fmt.Errorf("market %s already subscribed", marketID)
	}
	s.subs[marketID] = &marketSub{handler: handler, known: make(map[string]knownOrder)}
	s.mu.Unlock()

	// Register push interest before the snapshot so no window exists
	// where an update can arrive on neither path. A write failure here
	// just means push is down; the poll loop covers the market and the
	// subscription replays on reconnect.
	if err := s.feed.Subscribe(marketID); err != nil {
		s.logger.Debug("push subscribe deferred", "market", marketID, "error", err)
	}

	snapshot, err := s.client.ActiveOrders(ctx, marketID)
	if err != nil {
		s.unsubscribe(marketID)
		return nil, nil, fmt.Errorf("initial snapshot for %s: %w", marketID, err)
	}

	now := time.Now().UnixMilli()
	s.mu.Lock()
	if sub, ok := s.subs[marketID]; ok {
		for _, o := range snapshot {
			sub.known[o.Hash] = knownOrder{order: o.Clone(), updateTime: now}
		}
	}
	s.mu.Unlock()

	s.logger.Info("market subscribed", "market", marketID, "orders", len(snapshot))
	return &Subscription{stream: s, marketID: marketID}, snapshot, nil
}

func (s *Stream) unsubscribe(marketID string) {
	s.mu.Lock()
	_, existed := s.subs[marketID]
	delete(s.subs, marketID)
	s.mu.Unlock()

	if !existed {
		return
	}
	if err := s.feed.Unsubscribe(marketID); err != nil {
		s.logger.Debug("push unsubscribe skipped", "market", marketID, "error", err)
	}
	s.logger.Info("market unsubscribed", "market", marketID)
}

// Run dispatches push batches and drives the polling fallback. Blocks
// until ctx is cancelled. Dispatch is single-threaded, so handlers see
// strictly ordered batches per market.
func (s *Stream) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case batch := <-s.feed.Batches():
			s.dispatchPush(batch)

		case markets := <-s.feed.Resyncs():
			s.logger.Info("resyncing after reconnect", "markets", len(markets))
			for _, id := range markets {
				s.pollMarket(ctx, id)
			}

		case <-ticker.C:
			if s.feed.IsConnected() {
				continue
			}
			for _, id := range s.marketIDs() {
				s.pollMarket(ctx, id)
			}
		}
	}
}

func (s *Stream) marketIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	return ids
}

// dispatchPush forwards a push batch to the market's handler and folds
// it into the known-order set.
func (s *Stream) dispatchPush(batch DeltaBatch) {
	s.mu.Lock()
	sub, ok := s.subs[batch.MarketID]
	if !ok {
		s.mu.Unlock()
		return
	}
	for _, d := range batch.Deltas {
		prev, seen := sub.known[d.Order.Hash]
		if seen && d.UpdateTime <= prev.updateTime {
			continue
		}
		if d.Status == types.DeltaInactive {
			delete(sub.known, d.Order.Hash)
		} else {
			sub.known[d.Order.Hash] = knownOrder{order: d.Order.Clone(), updateTime: d.UpdateTime}
		}
	}
	handler := sub.handler
	s.mu.Unlock()

	handler(batch.MarketID, batch.Deltas)
}

// pollMarket fetches a snapshot and synthesizes the deltas that bring
// the known-order set up to it: one ACTIVE per new or changed order,
// one INACTIVE per order that disappeared. Unchanged orders produce
// nothing.
func (s *Stream) pollMarket(ctx context.Context, marketID string) {
	snapshot, err := s.client.ActiveOrders(ctx, marketID)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn("poll failed", "market", marketID, "error", err)
		}
		return
	}

	now := time.Now().UnixMilli()

	s.mu.Lock()
	sub, ok := s.subs[marketID]
	if !ok {
		s.mu.Unlock()
		return
	}

	var deltas []types.OrderDelta
	seen := make(map[string]bool, len(snapshot))
	for _, o := range snapshot {
		seen[o.Hash] = true
		prev, known := sub.known[o.Hash]
		if known && sameOrderState(&prev.order, &o) {
			continue
		}
		ts := now
		if known && ts <= prev.updateTime {
			ts = prev.updateTime + 1
		}
		sub.known[o.Hash] = knownOrder{order: o.Clone(), updateTime: ts}
		deltas = append(deltas, types.OrderDelta{Order: o.Clone(), Status: types.DeltaActive, UpdateTime: ts})
	}
	for hash, prev := range sub.known {
		if seen[hash] {
			continue
		}
		ts := now
		if ts <= prev.updateTime {
			ts = prev.updateTime + 1
		}
		deltas = append(deltas, types.OrderDelta{Order: prev.order.Clone(), Status: types.DeltaInactive, UpdateTime: ts})
		delete(sub.known, hash)
	}
	handler := sub.handler
	s.mu.Unlock()

	if len(deltas) > 0 {
		handler(marketID, deltas)
	}
}

// sameOrderState reports whether two observations of the same order are
// indistinguishable for book purposes.
func sameOrderState(a, b *types.MakerOrder) bool {
	return a.MakerSideA == b.MakerSideA &&
		a.MakerOdds.Cmp(b.MakerOdds) == 0 &&
		a.TotalStake.Cmp(b.TotalStake) == 0 &&
		a.FilledStake.Cmp(b.FilledStake) == 0
}

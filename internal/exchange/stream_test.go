package exchange

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/declansx/odds-maximizer-betting-bot/pkg/odds"
	"github.com/declansx/odds-maximizer-betting-bot/pkg/types"
)

// snapshotServer serves a swappable order snapshot on GET /orders.
type snapshotServer struct {
	mu     sync.Mutex
	orders []types.WireOrder
	srv    *httptest.Server
}

func newSnapshotServer(t *testing.T) *snapshotServer {
	t.Helper()
	s := &snapshotServer{}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		orders := s.orders
		s.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "success",
			"data":   orders,
		})
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *snapshotServer) set(orders []types.WireOrder) {
	s.mu.Lock()
	s.orders = orders
	s.mu.Unlock()
}

func newTestStream(t *testing.T, srv *snapshotServer) *Stream {
	t.Helper()
	ladder, err := odds.NewLadder(big.NewInt(100_000_000), big.NewInt(100_000))
	if err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := &Client{
		http:   resty.New().SetBaseURL(srv.srv.URL),
		rl:     NewRateLimiter(),
		ladder: ladder,
		logger: logger,
	}
	feed := NewWSFeed("ws://unreachable.invalid", "", logger)
	return NewStream(feed, client, time.Minute, logger)
}

func wire(hash, total, fill, makerOdds string, sideA bool) types.WireOrder {
	return types.WireOrder{
		OrderHash:                hash,
		MarketHash:               "0xmarket",
		Maker:                    "0xother",
		TotalBetSize:             total,
		FillAmount:               fill,
		PercentageOdds:           makerOdds,
		IsMakerBettingOutcomeOne: sideA,
	}
}

type recordedBatch struct {
	marketID string
	deltas   []types.OrderDelta
}

func TestSubscribeReturnsSnapshot(t *testing.T) {
	t.Parallel()
	srv := newSnapshotServer(t)
	srv.set([]types.WireOrder{
		wire("0xaaa", "100", "0", "60000000", true),
		wire("0xbbb", "200", "50", "55000000", false),
	})
	stream := newTestStream(t, srv)

	sub, snapshot, err := stream.Subscribe(context.Background(), "0xmarket", func(string, []types.OrderDelta) {})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	if len(snapshot) != 2 {
		t.Fatalf("snapshot = %d orders, want 2", len(snapshot))
	}

	// Second subscription to the same market is rejected.
	if _, _, err := stream.Subscribe(context.Background(), "0xmarket", nil); err == nil {
		t.Error("duplicate subscribe should fail")
	}
}

func TestPollSynthesizesDeltas(t *testing.T) {
	t.Parallel()
	srv := newSnapshotServer(t)
	srv.set([]types.WireOrder{
		wire("0xsame", "100", "0", "60000000", true),
		wire("0xfills", "200", "0", "55000000", false),
		wire("0xgoes", "300", "0", "50000000", true),
	})
	stream := newTestStream(t, srv)

	var mu sync.Mutex
	var batches []recordedBatch
	sub, _, err := stream.Subscribe(context.Background(), "0xmarket", func(marketID string, deltas []types.OrderDelta) {
		mu.Lock()
		batches = append(batches, recordedBatch{marketID: marketID, deltas: deltas})
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	// Next poll: 0xsame unchanged, 0xfills partially filled, 0xgoes gone,
	// 0xnew appeared.
	srv.set([]types.WireOrder{
		wire("0xsame", "100", "0", "60000000", true),
		wire("0xfills", "200", "80", "55000000", false),
		wire("0xnew", "400", "0", "45000000", true),
	})
	stream.pollMarket(context.Background(), "0xmarket")

	mu.Lock()
	defer mu.Unlock()
	if len(batches) != 1 {
		t.Fatalf("batches = %d, want 1", len(batches))
	}

	got := make(map[string]types.DeltaStatus)
	for _, d := range batches[0].deltas {
		got[d.Order.Hash] = d.Status
	}
	if len(got) != 3 {
		t.Errorf("deltas = %v, want exactly fills/new/goes", got)
	}
	if got["0xfills"] != types.DeltaActive {
		t.Errorf("0xfills status = %s, want ACTIVE", got["0xfills"])
	}
	if got["0xnew"] != types.DeltaActive {
		t.Errorf("0xnew status = %s, want ACTIVE", got["0xnew"])
	}
	if got["0xgoes"] != types.DeltaInactive {
		t.Errorf("0xgoes status = %s, want INACTIVE", got["0xgoes"])
	}
	if _, unchanged := got["0xsame"]; unchanged {
		t.Error("unchanged order produced a delta")
	}
}

func TestPollTimestampsAdvance(t *testing.T) {
	t.Parallel()
	srv := newSnapshotServer(t)
	srv.set([]types.WireOrder{wire("0xord", "100", "0", "60000000", true)})
	stream := newTestStream(t, srv)

	var mu sync.Mutex
	var all []types.OrderDelta
	sub, _, err := stream.Subscribe(context.Background(), "0xmarket", func(_ string, deltas []types.OrderDelta) {
		mu.Lock()
		all = append(all, deltas...)
		mu.Unlock()
	})
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	// Two rapid polls, each observing a new fill level. Both deltas must
	// carry strictly increasing timestamps even on a coarse clock.
	srv.set([]types.WireOrder{wire("0xord", "100", "10", "60000000", true)})
	stream.pollMarket(context.Background(), "0xmarket")
	srv.set([]types.WireOrder{wire("0xord", "100", "20", "60000000", true)})
	stream.pollMarket(context.Background(), "0xmarket")

	mu.Lock()
	defer mu.Unlock()
	if len(all) != 2 {
		t.Fatalf("deltas = %d, want 2", len(all))
	}
	if all[1].UpdateTime <= all[0].UpdateTime {
		t.Errorf("timestamps not increasing: %d then %d", all[0].UpdateTime, all[1].UpdateTime)
	}
}

func TestUnsubscribeStopsPolling(t *testing.T) {
	t.Parallel()
	srv := newSnapshotServer(t)
	srv.set(nil)
	stream := newTestStream(t, srv)

	var calls int
	sub, _, err := stream.Subscribe(context.Background(), "0xmarket", func(string, []types.OrderDelta) {
		calls++
	})
	if err != nil {
		t.Fatal(err)
	}

	sub.Unsubscribe()
	sub.Unsubscribe() // idempotent

	srv.set([]types.WireOrder{wire("0xord", "100", "0", "60000000", true)})
	stream.pollMarket(context.Background(), "0xmarket")

	if calls != 0 {
		t.Errorf("handler called %d times after unsubscribe", calls)
	}
	if len(stream.marketIDs()) != 0 {
		t.Error("market still tracked after unsubscribe")
	}
}

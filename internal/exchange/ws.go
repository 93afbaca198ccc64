// ws.go implements the venue's push channel for order book data.
//
// A single WebSocket connection multiplexes per-market "order_book"
// channels: each message carries a market hash and an ordered array of
// order deltas (full order fields plus ACTIVE/INACTIVE status and an
// update timestamp). The feed auto-reconnects with exponential backoff
// (1s → 30s max), re-subscribes to all tracked markets, and announces
// each reconnect so the transport can re-synchronize from a snapshot.
// A read deadline (90s) ensures silent server failures are detected
// within ~2 missed pings.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/declansx/odds-maximizer-betting-bot/pkg/types"
)

const (
	pingInterval     = 50 * time.Second // how often we send PING to keep alive
	readTimeout      = 90 * time.Second // ~2 missed pings triggers reconnect
	maxReconnectWait = 30 * time.Second // cap on exponential backoff
	writeTimeout     = 10 * time.Second // deadline for outgoing messages
	batchBufferSize  = 256              // buffer for delta batches
)

// DeltaBatch is one ordered batch of deltas for a single market.
type DeltaBatch struct {
	MarketID string
	Deltas   []types.OrderDelta
}

// WSFeed manages the venue WebSocket connection. It handles connection
// lifecycle, subscription tracking, message routing, and automatic
// reconnection with exponential backoff.
type WSFeed struct {
	url    string
	apiKey string

	conn   *websocket.Conn
	connMu sync.Mutex // protects conn reads/writes

	// Track subscriptions for automatic re-subscribe on reconnect
	subscribedMu sync.RWMutex
	subscribed   map[string]bool // market hashes

	batchCh  chan DeltaBatch // decoded delta batches, per market
	resyncCh chan []string   // market hashes needing a fresh snapshot after reconnect

	readyMu   sync.Mutex
	connected bool
	waiters   []chan struct{}

	everConnected bool // first connect does not trigger a resync

	logger *slog.Logger
}

// NewWSFeed creates a feed for the venue's order book channel.
func NewWSFeed(wsURL, apiKey string, logger *slog.Logger) *WSFeed {
	return &WSFeed{
		url:        wsURL,
		apiKey:     apiKey,
		subscribed: make(map[string]bool),
		batchCh:    make(chan DeltaBatch, batchBufferSize),
		resyncCh:   make(chan []string, 8),
		logger:     logger.With("component", "ws"),
	}
}

// Batches returns a read-only channel of decoded delta batches.
func (f *WSFeed) Batches() <-chan DeltaBatch { return f.batchCh }

// Resyncs returns a channel announcing markets that need a fresh
// snapshot after a reconnect.
func (f *WSFeed) Resyncs() <-chan []string { return f.resyncCh }

// Run connects and maintains the WebSocket connection with auto-reconnect.
// Blocks until ctx is cancelled.
func (f *WSFeed) Run(ctx context.Context) error {
	backoff := time.Second

	for {
		err := f.connectAndRead(ctx)
		f.setConnected(false)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		f.logger.Warn("websocket disconnected, reconnecting",
			"error", err,
			"backoff", backoff,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		// Exponential backoff: 1s, 2s, 4s, 8s, ..., 30s max
		backoff *= 2
		if backoff > maxReconnectWait {
			backoff = maxReconnectWait
		}
	}
}

// IsConnected reports whether the feed currently holds a live
// connection.
func (f *WSFeed) IsConnected() bool {
	f.readyMu.Lock()
	defer f.readyMu.Unlock()
	return f.connected
}

// WaitReady blocks until the connection is established, the timeout
// elapses, or ctx is cancelled. Returns whether the feed is connected.
func (f *WSFeed) WaitReady(ctx context.Context, timeout time.Duration) bool {
	f.readyMu.Lock()
	if f.connected {
		f.readyMu.Unlock()
		return true
	}
	ch := make(chan struct{})
	f.waiters = append(f.waiters, ch)
	f.readyMu.Unlock()

	select {
	case <-ch:
		return true
	case <-time.After(timeout):
		return false
	case <-ctx.Done():
		return false
	}
}

// Subscribe adds a market to the feed. Safe to call before the
// connection is up; the subscription is replayed on every (re)connect.
func (f *WSFeed) Subscribe(marketID string) error {
	f.subscribedMu.Lock()
	f.subscribed[marketID] = true
	f.subscribedMu.Unlock()

	return f.writeJSON(wsControlMsg{Type: "subscribe", Channel: "order_book", MarketHash: marketID})
}

// Unsubscribe removes a market from the feed. Idempotent.
func (f *WSFeed) Unsubscribe(marketID string) error {
	f.subscribedMu.Lock()
	delete(f.subscribed, marketID)
	f.subscribedMu.Unlock()

	return f.writeJSON(wsControlMsg{Type: "unsubscribe", Channel: "order_book", MarketHash: marketID})
}

// Close gracefully closes the connection.
func (f *WSFeed) Close() error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}

// wsControlMsg is an outgoing subscribe/unsubscribe message.
type wsControlMsg struct {
	Type       string `json:"type"`
	Channel    string `json:"channel"`
	MarketHash string `json:"marketHash,omitempty"`
	ApiKey     string `json:"apiKey,omitempty"`
}

// wsOrderBookMsg is an incoming order book message.
type wsOrderBookMsg struct {
	Channel    string            `json:"channel"`
	MarketHash string            `json:"marketHash"`
	Data       []types.WireOrder `json:"data"`
}

func (f *WSFeed) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()

	defer func() {
		f.connMu.Lock()
		conn.Close()
		f.conn = nil
		f.connMu.Unlock()
	}()

	if err := f.sendSubscriptions(); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	f.logger.Info("websocket connected")
	f.announceReconnect()
	f.setConnected(true)

	// Start ping goroutine
	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go f.pingLoop(pingCtx)

	// Read loop with deadline so we reconnect if server goes silent
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		f.dispatchMessage(msg)
	}
}

func (f *WSFeed) sendSubscriptions() error {
	if err := f.writeJSON(wsControlMsg{Type: "auth", ApiKey: f.apiKey}); err != nil {
		return err
	}

	f.subscribedMu.RLock()
	ids := make([]string, 0, len(f.subscribed))
	for id := range f.subscribed {
		ids = append(ids, id)
	}
	f.subscribedMu.RUnlock()

	for _, id := range ids {
		if err := f.writeJSON(wsControlMsg{Type: "subscribe", Channel: "order_book", MarketHash: id}); err != nil {
			return err
		}
	}
	return nil
}

// announceReconnect tells the transport which markets must re-sync from
// a snapshot. The first connect is not a resync; subscribers fetch their
// own initial snapshot.
func (f *WSFeed) announceReconnect() {
	if !f.everConnected {
		f.everConnected = true
		return
	}

	f.subscribedMu.RLock()
	ids := make([]string, 0, len(f.subscribed))
	for id := range f.subscribed {
		ids = append(ids, id)
	}
	f.subscribedMu.RUnlock()

	if len(ids) == 0 {
		return
	}

	select {
	case f.resyncCh <- ids:
	default:
		f.logger.Warn("resync channel full, dropping announcement")
	}
}

func (f *WSFeed) setConnected(connected bool) {
	f.readyMu.Lock()
	defer f.readyMu.Unlock()

	f.connected = connected
	if connected {
		for _, ch := range f.waiters {
			close(ch)
		}
		f.waiters = nil
	}
}

func (f *WSFeed) dispatchMessage(data []byte) {
	var msg wsOrderBookMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		f.logger.Debug("ignoring non-json ws message", "data", string(data))
		return
	}
	if msg.Channel != "order_book" || msg.MarketHash == "" {
		f.logger.Debug("ignoring ws message", "channel", msg.Channel)
		return
	}

	deltas := make([]types.OrderDelta, 0, len(msg.Data))
	for _, w := range msg.Data {
		delta, err := w.DecodeDelta()
		if err != nil {
			f.logger.Warn("dropping malformed delta", "market", msg.MarketHash, "error", err)
			continue
		}
		deltas = append(deltas, delta)
	}
	if len(deltas) == 0 {
		return
	}

	select {
	case f.batchCh <- DeltaBatch{MarketID: msg.MarketHash, Deltas: deltas}:
	default:
		f.logger.Warn("batch channel full, dropping deltas", "market", msg.MarketHash)
	}
}

func (f *WSFeed) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.writeMessage(websocket.TextMessage, []byte("PING")); err != nil {
				f.logger.Warn("ping failed", "error", err)
				return
			}
		}
	}
}

func (f *WSFeed) writeJSON(v interface{}) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("websocket not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return f.conn.WriteJSON(v)
}

func (f *WSFeed) writeMessage(msgType int, data []byte) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("websocket not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return f.conn.WriteMessage(msgType, data)
}

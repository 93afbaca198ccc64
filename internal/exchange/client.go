// Package exchange implements the venue's REST and WebSocket clients.
//
// The REST client (Client) is the order gateway plus the snapshot source:
//   - ActiveOrders: GET  /orders?marketHash=    — snapshot of a market's maker orders
//   - PostOrder:    POST /orders/new            — place one signed maker order
//   - CancelOrders: POST /orders/cancel/v2      — bulk cancellation by hash
//   - reference data lookups (refdata.go)
//
// Every request is rate-limited via per-category TokenBuckets and
// authenticated with the session API key. Mutating calls retry transient
// failures with exponential backoff (max_retries / retry_base_delay /
// retry_backoff from config); business-rule rejections return
// immediately.
package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/declansx/odds-maximizer-betting-bot/internal/config"
	"github.com/declansx/odds-maximizer-betting-bot/pkg/odds"
	"github.com/declansx/odds-maximizer-betting-bot/pkg/types"
)

// orderExpiryWindow is how long a posted maker order remains valid before
// the venue expires it on its own.
const orderExpiryWindow = 24 * time.Hour

// Client is the venue REST API client. It wraps a resty HTTP client with
// rate limiting, retry, and request signing.
type Client struct {
	http   *resty.Client
	auth   *Auth
	rl     *RateLimiter
	ladder *odds.Ladder

	maxRetries int
	retryBase  time.Duration
	backoff    float64

	dryRun bool // when true, mutating methods return fake success without HTTP calls
	logger *slog.Logger

	dryRunSeq atomic.Int64 // fabricated order hash counter in dry-run mode
}

// NewClient creates a REST client with rate limiting and retry.
func NewClient(cfg config.Config, auth *Auth, ladder *odds.Ladder, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.API.BaseURL).
		SetTimeout(10 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Api-Key", auth.ApiKey())

	return &Client{
		http:       httpClient,
		auth:       auth,
		rl:         NewRateLimiter(),
		ladder:     ladder,
		maxRetries: cfg.Trading.MaxRetries,
		retryBase:  cfg.Trading.RetryBaseDelay,
		backoff:    cfg.Trading.RetryBackoff,
		dryRun:     cfg.DryRun,
		logger:     logger.With("component", "exchange"),
	}
}

// apiEnvelope is the venue's standard response wrapper.
type apiEnvelope struct {
	Status string `json:"status"`
	ErrMsg string `json:"message,omitempty"`
}

// ActiveOrders fetches the current maker orders resting on a market.
// Malformed records are dropped with a warning rather than failing the
// whole snapshot.
func (c *Client) ActiveOrders(ctx context.Context, marketID string) ([]types.MakerOrder, error) {
	if err := c.rl.Read.Wait(ctx); err != nil {
		return nil, err
	}

	var result struct {
		apiEnvelope
		Data []types.WireOrder `json:"data"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("marketHashes", marketID).
		SetResult(&result).
		Get("/orders")
	if err != nil {
		return nil, fmt.Errorf("get orders: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, classifyResponse(resp.StatusCode(), resp.String())
	}

	orders := make([]types.MakerOrder, 0, len(result.Data))
	for _, w := range result.Data {
		order, err := w.Decode()
		if err != nil {
			c.logger.Warn("dropping malformed order in snapshot", "market", marketID, "error", err)
			continue
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// newOrderPayload is the POST /orders/new request body.
type newOrderPayload struct {
	MarketHash               string `json:"marketHash"`
	Maker                    string `json:"maker"`
	TotalBetSize             string `json:"totalBetSize"`
	PercentageOdds           string `json:"percentageOdds"`
	IsMakerBettingOutcomeOne bool   `json:"isMakerBettingOutcomeOne"`
	Expiry                   int64  `json:"expiry"`
	Salt                     string `json:"salt"`
	Signature                string `json:"signature"`
}

// PostOrder submits a signed maker order and returns the venue's order
// hash. oddsWire must already sit on the ladder; off-ladder values fail
// with odds.ErrInvalidOdds before any transmission. Transient failures
// are retried with exponential backoff.
func (c *Client) PostOrder(ctx context.Context, marketID string, side types.Outcome, stakeWire, oddsWire *big.Int) (string, error) {
	if !c.ladder.OnLadder(oddsWire) {
		return "", fmt.Errorf("post order on %s: odds %s: %w", marketID, oddsWire, odds.ErrInvalidOdds)
	}
	if stakeWire == nil || stakeWire.Sign() <= 0 {
		return "", fmt.Errorf("post order on %s: non-positive stake", marketID)
	}

	if c.dryRun {
		hash := fmt.Sprintf("dry-run-%d", c.dryRunSeq.Add(1))
		c.logger.Info("DRY-RUN: would post order",
			"market", marketID, "side", side, "stake", stakeWire, "odds", oddsWire, "hash", hash)
		return hash, nil
	}

	expiry := time.Now().Add(orderExpiryWindow).Unix()
	salt, err := c.auth.NewSalt()
	if err != nil {
		return "", fmt.Errorf("post order: %w", err)
	}
	sig, err := c.auth.SignOrder(marketID, stakeWire, oddsWire, side == types.OutcomeA, expiry, salt)
	if err != nil {
		return "", fmt.Errorf("post order: %w", err)
	}

	payload := newOrderPayload{
		MarketHash:               marketID,
		Maker:                    c.auth.Address().Hex(),
		TotalBetSize:             stakeWire.String(),
		PercentageOdds:           oddsWire.String(),
		IsMakerBettingOutcomeOne: side == types.OutcomeA,
		Expiry:                   expiry,
		Salt:                     salt.String(),
		Signature:                sig,
	}

	var orderHash string
	err = c.withRetry(ctx, "post order", func() error {
		if err := c.rl.Order.Wait(ctx); err != nil {
			return err
		}

		var result struct {
			apiEnvelope
			Data struct {
				Orders []string `json:"orders"`
			} `json:"data"`
		}
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(payload).
			SetResult(&result).
			Post("/orders/new")
		if err != nil {
			return fmt.Errorf("post order: %w", err)
		}
		if resp.StatusCode() != http.StatusOK {
			return classifyResponse(resp.StatusCode(), resp.String())
		}
		if len(result.Data.Orders) == 0 {
			return &APIError{Kind: KindOrderRejected, Status: resp.StatusCode(), Message: "no order hash returned"}
		}
		orderHash = result.Data.Orders[0]
		return nil
	})
	if err != nil {
		return "", err
	}

	c.logger.Info("order posted", "market", marketID, "side", side, "odds", oddsWire, "stake", stakeWire, "hash", orderHash)
	return orderHash, nil
}

// CancelOrders cancels orders by hash and returns how many the venue
// actually cancelled. Zero is not an error — it means the orders were
// already filled or gone, and the caller reconciles via fill events.
func (c *Client) CancelOrders(ctx context.Context, orderHashes []string) (int, error) {
	if len(orderHashes) == 0 {
		return 0, nil
	}
	if c.dryRun {
		c.logger.Info("DRY-RUN: would cancel orders", "count", len(orderHashes))
		return len(orderHashes), nil
	}

	timestamp := time.Now().Unix()
	sig, err := c.auth.SignCancellation(orderHashes, timestamp)
	if err != nil {
		return 0, fmt.Errorf("cancel orders: %w", err)
	}

	payload := struct {
		OrderHashes []string `json:"orderHashes"`
		Timestamp   int64    `json:"timestamp"`
		Signature   string   `json:"signature"`
	}{OrderHashes: orderHashes, Timestamp: timestamp, Signature: sig}

	var cancelled int
	err = c.withRetry(ctx, "cancel orders", func() error {
		if err := c.rl.Cancel.Wait(ctx); err != nil {
			return err
		}

		var result struct {
			apiEnvelope
			Data struct {
				CancelledCount int `json:"cancelledCount"`
			} `json:"data"`
		}
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(payload).
			SetResult(&result).
			Post("/orders/cancel/v2")
		if err != nil {
			return fmt.Errorf("cancel orders: %w", err)
		}
		if resp.StatusCode() != http.StatusOK {
			return classifyResponse(resp.StatusCode(), resp.String())
		}
		cancelled = result.Data.CancelledCount
		return nil
	})
	if err != nil {
		return 0, err
	}

	c.logger.Info("orders cancelled", "requested", len(orderHashes), "cancelled", cancelled)
	return cancelled, nil
}

// withRetry runs fn, retrying transient failures with exponential
// backoff: base delay doubling (or whatever the configured multiplier
// is) up to maxRetries additional attempts. Terminal failures and
// context cancellation return immediately.
func (c *Client) withRetry(ctx context.Context, op string, fn func() error) error {
	delay := c.retryBase
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !IsTransient(err) || attempt >= c.maxRetries {
			return err
		}

		c.logger.Warn("transient failure, retrying",
			"op", op, "attempt", attempt+1, "backoff", delay, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * c.backoff)
	}
}

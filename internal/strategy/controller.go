// Package strategy implements the position controller: the state
// machine that turns market data and fill events into at most one
// resting maker order per position.
//
// Every handler here runs inside the position's operation queue, so a
// handler observes and mutates position state atomically. Handlers read
// a copy from the store, apply the full decision procedure, and commit
// the result in one write.
package strategy

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/declansx/odds-maximizer-betting-bot/internal/market"
	"github.com/declansx/odds-maximizer-betting-bot/internal/risk"
	"github.com/declansx/odds-maximizer-betting-bot/internal/store"
	"github.com/declansx/odds-maximizer-betting-bot/pkg/odds"
	"github.com/declansx/odds-maximizer-betting-bot/pkg/types"
)

// Gateway is the slice of the exchange client the controller drives.
type Gateway interface {
	PostOrder(ctx context.Context, marketID string, side types.Outcome, stakeWire, oddsWire *big.Int) (string, error)
	CancelOrders(ctx context.Context, orderHashes []string) (int, error)
}

// Controller applies the quoting policy for all positions. It is
// stateless between events; everything lives in the store.
type Controller struct {
	store   *store.Store
	gateway Gateway
	cancels *market.RecentCancels
	ladder  *odds.Ladder

	completeFraction  decimal.Decimal
	minUpdateInterval time.Duration

	now    func() time.Time
	notify func(eventType, positionID string, data interface{})
	logger *slog.Logger
}

// NewController wires the controller to its collaborators.
func NewController(
	st *store.Store,
	gw Gateway,
	cancels *market.RecentCancels,
	ladder *odds.Ladder,
	completeFraction float64,
	minUpdateInterval time.Duration,
	logger *slog.Logger,
) *Controller {
	return &Controller{
		store:             st,
		gateway:           gw,
		cancels:           cancels,
		ladder:            ladder,
		completeFraction:  decimal.NewFromFloat(completeFraction),
		minUpdateInterval: minUpdateInterval,
		now:               time.Now,
		logger:            logger.With("component", "controller"),
	}
}

// SetNotifier installs an optional callback invoked on operator-visible
// state changes (fills, completion, risk transitions, reposts).
func (c *Controller) SetNotifier(fn func(eventType, positionID string, data interface{})) {
	c.notify = fn
}

func (c *Controller) emit(eventType, positionID string, data interface{}) {
	if c.notify != nil {
		c.notify(eventType, positionID, data)
	}
}

// HandleMarketData reacts to a fresh market view: re-evaluates risk,
// then reconciles the resting order against the current best price.
func (c *Controller) HandleMarketData(ctx context.Context, positionID string, m types.Metrics) error {
	p, err := c.store.Get(positionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if p.Status.Terminal() {
		return nil
	}

	p.LastMetrics = m.Clone()
	err = c.evaluate(ctx, p)
	c.commit(p)
	return err
}

// HandleFill credits a fill against the position's active or recently
// cancelled order, checks the completion threshold, and reconciles the
// remaining stake. newFilled is the absolute cumulative fill for the
// order; crediting is monotone so replayed events are harmless.
func (c *Controller) HandleFill(ctx context.Context, positionID, orderHash string, newFilled *big.Int) error {
	p, err := c.store.Get(positionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if p.Status.Terminal() {
		return nil
	}

	if !c.ownsOrder(p, orderHash) {
		c.logger.Debug("fill for unowned order ignored",
			"position", p.ID, "order", orderHash)
		return nil
	}

	if newFilled.Cmp(p.FilledStake) > 0 {
		c.logger.Info("fill credited",
			"position", p.ID,
			"order", orderHash,
			"filled", newFilled.String(),
			"max", p.MaxStake.String(),
		)
		p.FilledStake = new(big.Int).Set(newFilled)
		c.emit("fill", p.ID, map[string]string{
			"order":  orderHash,
			"filled": p.FilledStake.String(),
		})
	}

	if c.isComplete(p) {
		c.markCompleted(ctx, p)
		c.commit(p)
		return nil
	}

	err = c.ensureOrder(ctx, p)
	c.commit(p)
	return err
}

// HandleEdit applies an operator patch, then reconciles against the
// cached market view so new premium or risk bounds take effect at once.
func (c *Controller) HandleEdit(ctx context.Context, positionID string, patch types.PositionPatch) error {
	p, err := c.store.Get(positionID)
	if err != nil {
		return err
	}
	if p.Status.Terminal() {
		return errors.New("position is terminal")
	}

	if patch.MaxStake != nil {
		p.MaxStake = new(big.Int).Set(patch.MaxStake)
	}
	if patch.PremiumBps != nil {
		p.PremiumBps = *patch.PremiumBps
	}
	if patch.MaxVig != nil {
		p.MaxVig = new(big.Int).Set(patch.MaxVig)
	}
	if patch.MinLiquidity != nil {
		p.MinLiquidity = new(big.Int).Set(patch.MinLiquidity)
	}
	if patch.MinForOdds != nil {
		p.MinForOdds = new(big.Int).Set(patch.MinForOdds)
	}
	if patch.MinForVig != nil {
		p.MinForVig = new(big.Int).Set(patch.MinForVig)
	}

	err = c.evaluate(ctx, p)
	c.commit(p)
	return err
}

// HandleClose cancels any resting order and marks the position Closed.
// The caller detaches the market subscription and removes the position
// afterwards.
func (c *Controller) HandleClose(ctx context.Context, positionID string) error {
	p, err := c.store.Get(positionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if p.ActiveOrder != "" {
		c.cancelActive(ctx, p)
	}
	p.Status = types.StatusClosed
	p.ClosedAt = c.now()
	c.commit(p)

	c.logger.Info("position closed", "position", p.ID, "filled", p.FilledStake.String())
	return nil
}

// evaluate is the full market-data decision procedure: risk transitions
// first, then order reconciliation against p.LastMetrics.
func (c *Controller) evaluate(ctx context.Context, p *types.Position) error {
	verdict := risk.Evaluate(p.LastMetrics, p.MaxVig, p.MinLiquidity)

	if verdict.Breached != p.RiskBreached {
		p.RiskBreached = verdict.Breached
		p.RiskReason = verdict.Reason
		if verdict.Breached {
			c.logger.Warn("risk breached, pausing",
				"position", p.ID, "reason", verdict.Reason)
			if p.ActiveOrder != "" {
				c.cancelActive(ctx, p)
			}
			p.Status = types.StatusRiskPaused
			c.emit("position_updated", p.ID, map[string]string{
				"status": string(p.Status),
				"reason": verdict.Reason,
			})
			return nil
		}
		c.logger.Info("risk cleared, resuming", "position", p.ID)
		p.Status = types.StatusActive
		c.emit("position_updated", p.ID, map[string]string{
			"status": string(p.Status),
		})
	}

	if p.RiskBreached {
		if p.Status == types.StatusInitializing {
			p.Status = types.StatusRiskPaused
		}
		return nil
	}

	return c.ensureOrder(ctx, p)
}

// ensureOrder reconciles the resting order with the cached market view:
// cancel when there is no reference price, repost when the desired odds
// moved, and complete when no stake remains.
func (c *Controller) ensureOrder(ctx context.Context, p *types.Position) error {
	if p.RiskBreached || p.Status.Terminal() {
		return nil
	}

	best := p.LastMetrics.BestTakerOdds
	if best == nil {
		// No reference price; pull the quote until one reappears.
		if p.ActiveOrder != "" {
			c.cancelActive(ctx, p)
		}
		return nil
	}

	if c.now().Sub(p.LastOrderAction) < c.minUpdateInterval {
		return nil
	}

	desired, err := c.ladder.ApplyPremium(best, p.PremiumBps)
	if err != nil {
		// Premium quantized the quote off the ladder (e.g. to zero).
		// Suppress the post and wait for a viable reference price.
		c.logger.Debug("no postable odds at current best",
			"position", p.ID, "best", best.String(), "error", err)
		if p.ActiveOrder != "" {
			c.cancelActive(ctx, p)
		}
		return nil
	}

	if p.ActiveOrder != "" && p.QuotedOdds != nil && desired.Cmp(p.QuotedOdds) == 0 {
		return nil
	}

	if p.ActiveOrder != "" {
		if !c.cancelActive(ctx, p) {
			// Zero cancelled: the order filled or expired underneath
			// us. The fill event already in flight reconciles state;
			// reposting now could double our exposure.
			return nil
		}
	}

	remaining := p.RemainingStake()
	if remaining.Sign() <= 0 {
		c.markCompleted(ctx, p)
		return nil
	}

	hash, err := c.gateway.PostOrder(ctx, p.MarketID, p.ChosenSide, remaining, desired)
	p.LastOrderAction = c.now()
	if err != nil {
		c.logger.Warn("order post failed",
			"position", p.ID, "odds", desired.String(), "error", err)
		p.OrderState = types.OrderError
		p.ActiveOrder = ""
		p.QuotedOdds = nil
		if p.Status == types.StatusInitializing {
			p.Status = types.StatusActive
		}
		return nil
	}

	p.ActiveOrder = hash
	p.QuotedOdds = desired
	p.OrderState = types.OrderActive
	p.Status = types.StatusActive

	c.logger.Info("order posted",
		"position", p.ID,
		"order", hash,
		"side", p.ChosenSide,
		"odds", desired.String(),
		"stake", remaining.String(),
	)
	c.emit("position_updated", p.ID, map[string]string{
		"status": string(p.Status),
		"order":  hash,
		"odds":   desired.String(),
	})
	return nil
}

// cancelActive cancels the position's resting order, tracking it for
// late fills first so a racing fill is still credited. Returns whether
// the venue confirmed at least one cancellation.
func (c *Controller) cancelActive(ctx context.Context, p *types.Position) bool {
	hash := p.ActiveOrder
	c.cancels.Track(hash, p.ID)

	n, err := c.gateway.CancelOrders(ctx, []string{hash})
	p.LastOrderAction = c.now()
	p.ActiveOrder = ""
	p.QuotedOdds = nil
	p.OrderState = types.OrderCancelled

	if err != nil {
		c.logger.Warn("cancel failed", "position", p.ID, "order", hash, "error", err)
		return false
	}
	if n == 0 {
		c.logger.Info("cancel found nothing to cancel",
			"position", p.ID, "order", hash)
		return false
	}
	return true
}

// ownsOrder reports whether a fill for orderHash belongs to p: either
// the live resting order or one recently cancelled by this position.
func (c *Controller) ownsOrder(p *types.Position, orderHash string) bool {
	if orderHash == p.ActiveOrder && orderHash != "" {
		return true
	}
	owner, ok := c.cancels.Lookup(orderHash)
	return ok && owner == p.ID
}

// isComplete reports whether filledStake has reached the completion
// fraction of maxStake.
func (c *Controller) isComplete(p *types.Position) bool {
	if p.MaxStake.Sign() <= 0 {
		return true
	}
	filled := decimal.NewFromBigInt(p.FilledStake, 0)
	threshold := decimal.NewFromBigInt(p.MaxStake, 0).Mul(c.completeFraction)
	return filled.GreaterThanOrEqual(threshold)
}

func (c *Controller) markCompleted(ctx context.Context, p *types.Position) {
	if p.ActiveOrder != "" {
		c.cancelActive(ctx, p)
	}
	p.Status = types.StatusCompleted
	p.ClosedAt = c.now()
	c.logger.Info("position completed",
		"position", p.ID, "filled", p.FilledStake.String())
	c.emit("position_completed", p.ID, map[string]string{
		"filled": p.FilledStake.String(),
	})
}

// commit writes the mutated copy back to the store.
func (c *Controller) commit(p *types.Position) {
	cp := p.Clone()
	_ = c.store.Update(p.ID, func(lp *types.Position) { *lp = *cp })
}

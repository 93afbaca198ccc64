package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/declansx/odds-maximizer-betting-bot/internal/store"
	"github.com/declansx/odds-maximizer-betting-bot/internal/strategy"
	"github.com/declansx/odds-maximizer-betting-bot/pkg/odds"
	"github.com/declansx/odds-maximizer-betting-bot/pkg/types"
)

// ErrInvalidSpec marks operator input rejected before any state
// mutation.
var ErrInvalidSpec = errors.New("invalid position spec")

// Engine is the operator surface: create, inspect, edit, and close
// positions, plus orderly shutdown. All position mutations funnel
// through the serializer.
type Engine struct {
	store      *store.Store
	serializer *Serializer
	monitor    *Monitor
	controller *strategy.Controller
	gateway    strategy.Gateway
	bus        *Bus
	logger     *slog.Logger
}

// New wires the operator surface.
func New(
	st *store.Store,
	ser *Serializer,
	mon *Monitor,
	ctrl *strategy.Controller,
	gw strategy.Gateway,
	bus *Bus,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		store:      st,
		serializer: ser,
		monitor:    mon,
		controller: ctrl,
		gateway:    gw,
		bus:        bus,
		logger:     logger.With("component", "engine"),
	}
}

// CreatePosition validates the spec, registers the position, and
// attaches it to its market. The first order, if the market allows one,
// is posted by the controller's normal event path.
func (e *Engine) CreatePosition(ctx context.Context, spec types.PositionSpec) (*types.Position, error) {
	if err := validateSpec(spec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}

	p := e.store.Create(spec)
	e.serializer.Register(p.ID)

	if err := e.monitor.Attach(ctx, p.ID, p.MarketID); err != nil {
		e.serializer.Remove(p.ID)
		e.store.Delete(p.ID)
		return nil, err
	}

	e.logger.Info("position created",
		"position", p.ID,
		"market", p.MarketID,
		"side", p.ChosenSide,
		"maxStake", p.MaxStake.String(),
	)
	e.bus.Publish(Event{Type: EventPositionCreated, PositionID: p.ID, Data: p})
	return p, nil
}

// ListPositions returns a snapshot of every position, oldest first.
func (e *Engine) ListPositions() []*types.Position {
	return e.store.List()
}

// GetPosition returns a snapshot of one position.
func (e *Engine) GetPosition(id string) (*types.Position, error) {
	return e.store.Get(id)
}

// EditPosition applies an operator patch through the position's queue
// and returns the resulting state.
func (e *Engine) EditPosition(ctx context.Context, id string, patch types.PositionPatch) (*types.Position, error) {
	if err := validatePatch(patch); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	if _, err := e.store.Get(id); err != nil {
		return nil, err
	}

	done := e.serializer.Enqueue(id, "edit", func(opCtx context.Context) error {
		return e.controller.HandleEdit(opCtx, id, patch)
	})
	select {
	case err := <-done:
		if err != nil {
			return nil, err
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	p, err := e.store.Get(id)
	if err != nil {
		return nil, err
	}
	e.bus.Publish(Event{Type: EventPositionUpdated, PositionID: id, Data: p})
	return p, nil
}

// ClosePosition cancels the position's resting order, detaches it from
// its market, and removes it. Returns the final state.
func (e *Engine) ClosePosition(ctx context.Context, id string) (*types.Position, error) {
	p, err := e.store.Get(id)
	if err != nil {
		return nil, err
	}

	done := e.serializer.Enqueue(id, "close", func(opCtx context.Context) error {
		return e.controller.HandleClose(opCtx, id)
	})
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, ErrPositionGone) {
			return nil, err
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	final, err := e.store.Get(id)
	if err != nil {
		final = p
	}

	e.monitor.Detach(id, p.MarketID)
	e.serializer.Remove(id)
	e.store.Delete(id)

	e.bus.Publish(Event{Type: EventPositionClosed, PositionID: id, Data: final})
	return final, nil
}

// Shutdown cancels every known active order in one bulk call. The
// caller tears down the transport afterwards by cancelling the root
// context; resting state is otherwise abandoned to the venue's expiry.
func (e *Engine) Shutdown(ctx context.Context) error {
	var hashes []string
	for _, p := range e.store.List() {
		if p.ActiveOrder != "" {
			hashes = append(hashes, p.ActiveOrder)
		}
	}
	if len(hashes) == 0 {
		e.logger.Info("shutdown: no active orders")
		return nil
	}

	n, err := e.gateway.CancelOrders(ctx, hashes)
	if err != nil {
		e.logger.Error("shutdown: cancel-all failed",
			"orders", len(hashes), "error", err)
		return err
	}
	e.logger.Info("shutdown: orders cancelled",
		"requested", len(hashes), "cancelled", n)
	return nil
}

func validateSpec(spec types.PositionSpec) error {
	if spec.MarketID == "" {
		return errors.New("marketId is required")
	}
	if !spec.ChosenSide.Valid() {
		return fmt.Errorf("chosenSide must be %q or %q", types.OutcomeA, types.OutcomeB)
	}
	if spec.MaxStake == nil || spec.MaxStake.Sign() <= 0 {
		return errors.New("maxStake must be positive")
	}
	if spec.PremiumBps < 0 || spec.PremiumBps > odds.MaxPremiumBps {
		return fmt.Errorf("premiumBps must be in [0, %d]", odds.MaxPremiumBps)
	}
	for name, v := range map[string]*big.Int{
		"maxVig":       spec.MaxVig,
		"minLiquidity": spec.MinLiquidity,
		"minForOdds":   spec.MinForOdds,
		"minForVig":    spec.MinForVig,
	} {
		if v == nil || v.Sign() < 0 {
			return fmt.Errorf("%s must be a non-negative integer", name)
		}
	}
	return nil
}

func validatePatch(patch types.PositionPatch) error {
	if patch.MaxStake != nil && patch.MaxStake.Sign() <= 0 {
		return errors.New("maxStake must be positive")
	}
	if patch.PremiumBps != nil && (*patch.PremiumBps < 0 || *patch.PremiumBps > odds.MaxPremiumBps) {
		return fmt.Errorf("premiumBps must be in [0, %d]", odds.MaxPremiumBps)
	}
	for name, v := range map[string]*big.Int{
		"maxVig":       patch.MaxVig,
		"minLiquidity": patch.MinLiquidity,
		"minForOdds":   patch.MinForOdds,
		"minForVig":    patch.MinForVig,
	} {
		if v != nil && v.Sign() < 0 {
			return fmt.Errorf("%s must be a non-negative integer", name)
		}
	}
	return nil
}

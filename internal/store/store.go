// Package store holds the live position set.
//
// State is in-memory only: the process starts empty, and positions die
// with it. Every accessor hands out deep copies so callers can never
// mutate a position outside its operation queue.
package store

import (
	"errors"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/declansx/odds-maximizer-betting-bot/pkg/types"
)

// ErrNotFound is returned when a position ID is unknown.
var ErrNotFound = errors.New("position not found")

// Store is a concurrent map of positions keyed by ID.
type Store struct {
	mu        sync.RWMutex
	positions map[string]*types.Position
}

// New creates an empty store.
func New() *Store {
	return &Store{positions: make(map[string]*types.Position)}
}

// Create mints a new position from the operator's spec and inserts it
// in the Initializing state. Returns a copy of the stored record.
func (s *Store) Create(spec types.PositionSpec) *types.Position {
	p := &types.Position{
		ID:           uuid.New().String(),
		MarketID:     spec.MarketID,
		ChosenSide:   spec.ChosenSide,
		MaxStake:     new(big.Int).Set(spec.MaxStake),
		FilledStake:  big.NewInt(0),
		PremiumBps:   spec.PremiumBps,
		MaxVig:       new(big.Int).Set(spec.MaxVig),
		MinLiquidity: new(big.Int).Set(spec.MinLiquidity),
		MinForOdds:   new(big.Int).Set(spec.MinForOdds),
		MinForVig:    new(big.Int).Set(spec.MinForVig),
		Status:       types.StatusInitializing,
		OrderState:   types.OrderNone,
		CreatedAt:    time.Now(),
	}

	s.mu.Lock()
	s.positions[p.ID] = p
	s.mu.Unlock()

	return p.Clone()
}

// Get returns a copy of one position.
func (s *Store) Get(id string) (*types.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

// Update applies fn to the stored position under the lock. fn receives
// the live record; mutations are visible to subsequent reads. Callers
// invoke this only from inside the position's operation queue.
func (s *Store) Update(id string, fn func(p *types.Position)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[id]
	if !ok {
		return ErrNotFound
	}
	fn(p)
	return nil
}

// Delete removes a position. Idempotent.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.positions, id)
	s.mu.Unlock()
}

// List returns copies of all positions, oldest first.
func (s *Store) List() []*types.Position {
	s.mu.RLock()
	out := make([]*types.Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, p.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Len returns the number of positions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.positions)
}

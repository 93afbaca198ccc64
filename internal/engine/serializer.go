// Package engine wires the trading core together: the per-position
// operation queues, the market monitor, and the operator surface.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrPositionGone is resolved into queued operations when their
// position is removed before they run.
var ErrPositionGone = errors.New("position gone")

const opQueueDepth = 64

// Op is one unit of serialized work for a position. It runs with the
// serializer's root context and may suspend on the network.
type Op func(ctx context.Context) error

type queuedOp struct {
	name string
	run  Op
	done chan error
}

type opQueue struct {
	ops  chan queuedOp
	quit chan struct{}
	once sync.Once
}

func (q *opQueue) stop() {
	q.once.Do(func() { close(q.quit) })
}

// Serializer runs operations for each position strictly in submission
// order, one at a time. Distinct positions run concurrently on their
// own worker goroutines. Removing a position cancels everything still
// queued for it with ErrPositionGone.
//
// Every read-then-write of position state goes through here; this is
// what makes controller event handling atomic without a per-position
// lock that nested calls would deadlock on.
type Serializer struct {
	ctx    context.Context
	logger *slog.Logger

	mu     sync.Mutex
	queues map[string]*opQueue

	wg sync.WaitGroup
}

// NewSerializer creates a serializer whose operations run under ctx.
func NewSerializer(ctx context.Context, logger *slog.Logger) *Serializer {
	return &Serializer{
		ctx:    ctx,
		logger: logger.With("component", "serializer"),
		queues: make(map[string]*opQueue),
	}
}

// Register creates the queue for a new position. Must be called before
// the first Enqueue for that position.
func (s *Serializer) Register(positionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.queues[positionID]; exists {
		return
	}
	q := &opQueue{
		ops:  make(chan queuedOp, opQueueDepth),
		quit: make(chan struct{}),
	}
	s.queues[positionID] = q

	s.wg.Add(1)
	go s.worker(positionID, q)
}

// Enqueue submits an operation for a position and returns a channel
// that resolves with the operation's result. If the position is gone
// the channel resolves immediately with ErrPositionGone.
func (s *Serializer) Enqueue(positionID, name string, op Op) <-chan error {
	done := make(chan error, 1)

	s.mu.Lock()
	q, ok := s.queues[positionID]
	s.mu.Unlock()
	if !ok {
		done <- ErrPositionGone
		return done
	}

	item := queuedOp{name: name, run: op, done: done}
	select {
	case q.ops <- item:
	case <-q.quit:
		done <- ErrPositionGone
	case <-s.ctx.Done():
		done <- s.ctx.Err()
	}
	return done
}

// Remove tears down a position's queue. Queued operations that have
// not started resolve with ErrPositionGone; the in-flight operation,
// if any, runs to completion first.
func (s *Serializer) Remove(positionID string) {
	s.mu.Lock()
	q, ok := s.queues[positionID]
	delete(s.queues, positionID)
	s.mu.Unlock()

	if ok {
		q.stop()
	}
}

// Wait blocks until all worker goroutines have exited. Meaningful only
// after the root context is cancelled or every position is removed.
func (s *Serializer) Wait() { s.wg.Wait() }

func (s *Serializer) worker(positionID string, q *opQueue) {
	defer s.wg.Done()

	for {
		select {
		case <-q.quit:
			s.drain(q)
			return
		case <-s.ctx.Done():
			s.drain(q)
			return
		case item := <-q.ops:
			// A stop racing the dequeue still cancels the op.
			select {
			case <-q.quit:
				item.done <- ErrPositionGone
				s.drain(q)
				return
			default:
			}

			err := item.run(s.ctx)
			if err != nil && !errors.Is(err, ErrPositionGone) {
				s.logger.Warn("operation failed",
					"position", positionID,
					"op", item.name,
					"error", err,
				)
			}
			item.done <- err
		}
	}
}

func (s *Serializer) drain(q *opQueue) {
	for {
		select {
		case item := <-q.ops:
			item.done <- ErrPositionGone
		default:
			return
		}
	}
}

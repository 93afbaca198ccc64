package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func newTestSerializer(t *testing.T) (*Serializer, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewSerializer(ctx, logger), cancel
}

func TestSerializerRunsInSubmissionOrder(t *testing.T) {
	t.Parallel()
	s, cancel := newTestSerializer(t)
	defer cancel()

	s.Register("p1")

	var mu sync.Mutex
	var order []int
	var dones []<-chan error
	for i := 0; i < 20; i++ {
		i := i
		dones = append(dones, s.Enqueue("p1", "op", func(ctx context.Context) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		}))
	}
	for _, done := range dones {
		if err := <-done; err != nil {
			t.Fatalf("op failed: %v", err)
		}
	}

	for i, got := range order {
		if got != i {
			t.Fatalf("order[%d] = %d, ops ran out of submission order", i, got)
		}
	}
}

func TestSerializerOneInFlightPerPosition(t *testing.T) {
	t.Parallel()
	s, cancel := newTestSerializer(t)
	defer cancel()

	s.Register("p1")

	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0
	var dones []<-chan error
	for i := 0; i < 10; i++ {
		dones = append(dones, s.Enqueue("p1", "op", func(ctx context.Context) error {
			mu.Lock()
			inFlight++
			if inFlight > maxInFlight {
				maxInFlight = inFlight
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inFlight--
			mu.Unlock()
			return nil
		}))
	}
	for _, done := range dones {
		<-done
	}

	if maxInFlight != 1 {
		t.Errorf("maxInFlight = %d, want exactly 1", maxInFlight)
	}
}

func TestSerializerPositionsRunConcurrently(t *testing.T) {
	t.Parallel()
	s, cancel := newTestSerializer(t)
	defer cancel()

	s.Register("p1")
	s.Register("p2")

	// p1's op blocks until p2's op has run, which only works if the two
	// queues execute on independent workers.
	release := make(chan struct{})
	d1 := s.Enqueue("p1", "block", func(ctx context.Context) error {
		select {
		case <-release:
			return nil
		case <-time.After(2 * time.Second):
			return errors.New("p2 never ran")
		}
	})
	d2 := s.Enqueue("p2", "release", func(ctx context.Context) error {
		close(release)
		return nil
	})

	if err := <-d2; err != nil {
		t.Fatalf("p2 op failed: %v", err)
	}
	if err := <-d1; err != nil {
		t.Fatalf("p1 op failed: %v", err)
	}
}

func TestSerializerRemoveCancelsQueued(t *testing.T) {
	t.Parallel()
	s, cancel := newTestSerializer(t)
	defer cancel()

	s.Register("p1")

	started := make(chan struct{})
	block := make(chan struct{})
	first := s.Enqueue("p1", "block", func(ctx context.Context) error {
		close(started)
		<-block
		return nil
	})

	<-started
	var queued []<-chan error
	for i := 0; i < 5; i++ {
		queued = append(queued, s.Enqueue("p1", "queued", func(ctx context.Context) error {
			t.Error("queued op ran after Remove")
			return nil
		}))
	}

	s.Remove("p1")
	close(block)

	if err := <-first; err != nil {
		t.Errorf("in-flight op = %v, want nil (runs to completion)", err)
	}
	for _, done := range queued {
		if err := <-done; !errors.Is(err, ErrPositionGone) {
			t.Errorf("queued op = %v, want ErrPositionGone", err)
		}
	}
}

func TestSerializerEnqueueAfterRemove(t *testing.T) {
	t.Parallel()
	s, cancel := newTestSerializer(t)
	defer cancel()

	s.Register("p1")
	s.Remove("p1")

	done := s.Enqueue("p1", "late", func(ctx context.Context) error { return nil })
	if err := <-done; !errors.Is(err, ErrPositionGone) {
		t.Errorf("Enqueue after Remove = %v, want ErrPositionGone", err)
	}
}

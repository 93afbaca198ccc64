package market

import (
	"sync"
	"time"
)

// RecentCancels remembers which position owned each recently cancelled
// order so a fill arriving after the cancel is still credited. Entries
// expire after a TTL; once an order is gone from here, late fills for
// it are dropped.
type RecentCancels struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cancelEntry // orderHash -> owner
	now     func() time.Time       // swappable for tests
}

type cancelEntry struct {
	positionID string
	expires    time.Time
}

// NewRecentCancels creates a tracker with the given entry lifetime.
func NewRecentCancels(ttl time.Duration) *RecentCancels {
	return &RecentCancels{
		ttl:     ttl,
		entries: make(map[string]cancelEntry),
		now:     time.Now,
	}
}

// Track records that a position just cancelled an order.
func (r *RecentCancels) Track(orderHash, positionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruneLocked()
	r.entries[orderHash] = cancelEntry{positionID: positionID, expires: r.now().Add(r.ttl)}
}

// Lookup returns the owning position of a recently cancelled order.
func (r *RecentCancels) Lookup(orderHash string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruneLocked()
	e, ok := r.entries[orderHash]
	if !ok {
		return "", false
	}
	return e.positionID, true
}

// Forget drops an entry, used when the owning position is deleted.
func (r *RecentCancels) Forget(orderHash string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, orderHash)
}

// Len returns the number of live entries.
func (r *RecentCancels) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruneLocked()
	return len(r.entries)
}

func (r *RecentCancels) pruneLocked() {
	now := r.now()
	for hash, e := range r.entries {
		if now.After(e.expires) {
			delete(r.entries, hash)
		}
	}
}

package market

import (
	"testing"
	"time"
)

func TestRecentCancelsLookup(t *testing.T) {
	t.Parallel()
	rc := NewRecentCancels(time.Minute)

	rc.Track("o1", "pos-1")
	if owner, ok := rc.Lookup("o1"); !ok || owner != "pos-1" {
		t.Fatalf("Lookup(o1) = %q, %v; want pos-1, true", owner, ok)
	}
	if _, ok := rc.Lookup("unknown"); ok {
		t.Error("Lookup(unknown) = true, want false")
	}
}

func TestRecentCancelsExpiry(t *testing.T) {
	t.Parallel()
	rc := NewRecentCancels(time.Minute)

	base := time.Now()
	rc.now = func() time.Time { return base }
	rc.Track("o1", "pos-1")

	rc.now = func() time.Time { return base.Add(30 * time.Second) }
	if _, ok := rc.Lookup("o1"); !ok {
		t.Fatal("entry expired before its TTL")
	}

	rc.now = func() time.Time { return base.Add(61 * time.Second) }
	if _, ok := rc.Lookup("o1"); ok {
		t.Fatal("entry survived past its TTL")
	}
	if rc.Len() != 0 {
		t.Errorf("Len = %d after expiry, want 0", rc.Len())
	}
}

func TestRecentCancelsForget(t *testing.T) {
	t.Parallel()
	rc := NewRecentCancels(time.Minute)

	rc.Track("o1", "pos-1")
	rc.Forget("o1")
	if _, ok := rc.Lookup("o1"); ok {
		t.Error("Lookup after Forget = true, want false")
	}
}

func TestRecentCancelsRetrack(t *testing.T) {
	t.Parallel()
	rc := NewRecentCancels(time.Minute)

	rc.Track("o1", "pos-1")
	rc.Track("o1", "pos-2")
	if owner, _ := rc.Lookup("o1"); owner != "pos-2" {
		t.Errorf("owner = %q, want pos-2 after re-track", owner)
	}
}

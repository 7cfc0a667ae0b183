package auth

import (
	"context"
	"testing"
	"time"
)

func TestMemoryRevocationPruning(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })
	revocations := store.Revocations(ctx)

	// Expired well past the grace window: prunable once another write runs.
	if err := revocations.RecordRevocation(ctx, "stale", now.Add(-2*time.Hour)); err != nil {
		t.Fatalf("RecordRevocation: %v", err)
	}
	// Expired but still inside the grace window: must be kept.
	if err := revocations.RecordRevocation(ctx, "recent", now.Add(-30*time.Minute)); err != nil {
		t.Fatalf("RecordRevocation: %v", err)
	}
	if err := revocations.RecordRevocation(ctx, "live", now.Add(time.Hour)); err != nil {
		t.Fatalf("RecordRevocation: %v", err)
	}

	for id, want := range map[string]bool{"stale": false, "recent": true, "live": true} {
		got, err := revocations.IsTokenRevoked(ctx, id)
		if err != nil {
			t.Fatalf("IsTokenRevoked(%s): %v", id, err)
		}
		if got != want {
			t.Errorf("IsTokenRevoked(%s) = %v, want %v", id, got, want)
		}
	}
}

func TestMemoryRevocationNeverPrunesOwnRecord(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	revocations := store.Revocations(ctx)

	// Expiry far behind wall time, as happens when the token clock and the
	// store clock diverge. The write itself must not discard the record.
	if err := revocations.RecordRevocation(ctx, "skewed", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("RecordRevocation: %v", err)
	}
	revoked, err := revocations.IsTokenRevoked(ctx, "skewed")
	if err != nil {
		t.Fatalf("IsTokenRevoked: %v", err)
	}
	if !revoked {
		t.Fatal("record pruned by its own write")
	}
}

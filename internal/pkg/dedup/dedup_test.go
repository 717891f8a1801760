package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestDeduplicator(t *testing.T) *Deduplicator {
	t.Helper()
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(s.Close)

	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() {
		if err := rdb.Close(); err != nil {
			t.Fatalf("close redis: %v", err)
		}
	})

	return NewDeduplicator(rdb, time.Minute)
}

func TestDeduplicator_IsDuplicate(t *testing.T) {
	d := newTestDeduplicator(t)
	ctx := context.Background()

	dup, err := d.IsDuplicate(ctx, 1, "donor@example.com", 500)
	if err != nil {
		t.Fatalf("first dedup: %v", err)
	}
	if dup {
		t.Fatalf("expected first to be non-duplicate")
	}

	dup, err = d.IsDuplicate(ctx, 1, "donor@example.com", 500)
	if err != nil {
		t.Fatalf("second dedup: %v", err)
	}
	if !dup {
		t.Fatalf("expected second to be duplicate")
	}
}

func TestDeduplicator_DistinctDonationsPass(t *testing.T) {
	d := newTestDeduplicator(t)
	ctx := context.Background()

	cases := []struct {
		campaignID uint
		email      string
		amount     float64
	}{
		{1, "donor@example.com", 500},
		{2, "donor@example.com", 500},
		{1, "other@example.com", 500},
		{1, "donor@example.com", 1000},
	}
	for _, c := range cases {
		dup, err := d.IsDuplicate(ctx, c.campaignID, c.email, c.amount)
		if err != nil {
			t.Fatalf("dedup %+v: %v", c, err)
		}
		if dup {
			t.Fatalf("expected %+v to be non-duplicate", c)
		}
	}
}

func TestDeduplicator_ReleaseAllowsRetry(t *testing.T) {
	d := newTestDeduplicator(t)
	ctx := context.Background()

	if _, err := d.IsDuplicate(ctx, 1, "donor@example.com", 500); err != nil {
		t.Fatalf("first dedup: %v", err)
	}
	if err := d.Release(ctx, 1, "donor@example.com", 500); err != nil {
		t.Fatalf("release: %v", err)
	}

	dup, err := d.IsDuplicate(ctx, 1, "donor@example.com", 500)
	if err != nil {
		t.Fatalf("retry dedup: %v", err)
	}
	if dup {
		t.Fatalf("expected retry after release to pass")
	}
}

func TestDeduplicator_NilSafe(t *testing.T) {
	var d *Deduplicator
	dup, err := d.IsDuplicate(context.Background(), 1, "donor@example.com", 500)
	if err != nil || dup {
		t.Fatalf("nil deduplicator should be a no-op, got dup=%v err=%v", dup, err)
	}
}

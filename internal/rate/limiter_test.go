package rate

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLimiter_AllowsUpToMax(t *testing.T) {
	l := NewMemoryLimiter(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := l.Allow(ctx, "workos")
		if err != nil {
			t.Fatal(err)
		}
		if !res.Allowed {
			t.Fatalf("hit %d denied under budget", i+1)
		}
	}
	res, err := l.Allow(ctx, "workos")
	if err != nil {
		t.Fatal(err)
	}
	if res.Allowed {
		t.Fatal("4th hit allowed with max 3")
	}
	if res.RetryAfter <= 0 || res.RetryAfter > time.Minute {
		t.Fatalf("retry-after out of window: %s", res.RetryAfter)
	}
	if res.Remaining != 0 {
		t.Fatalf("expected 0 remaining, got %d", res.Remaining)
	}
}

func TestMemoryLimiter_KeysAreIndependent(t *testing.T) {
	l := NewMemoryLimiter(1, time.Minute)
	ctx := context.Background()

	if res, _ := l.Allow(ctx, "auth0"); !res.Allowed {
		t.Fatal("first auth0 hit denied")
	}
	if res, _ := l.Allow(ctx, "workos"); !res.Allowed {
		t.Fatal("workos budget drained by auth0 key")
	}
	if res, _ := l.Allow(ctx, "auth0"); res.Allowed {
		t.Fatal("second auth0 hit allowed with max 1")
	}
}

func TestMemoryLimiter_WindowResets(t *testing.T) {
	l := NewMemoryLimiter(1, 10*time.Millisecond)
	ctx := context.Background()

	if res, _ := l.Allow(ctx, "k"); !res.Allowed {
		t.Fatal("first hit denied")
	}
	if res, _ := l.Allow(ctx, "k"); res.Allowed {
		t.Fatal("second hit in window allowed")
	}
	time.Sleep(15 * time.Millisecond)
	if res, _ := l.Allow(ctx, "k"); !res.Allowed {
		t.Fatal("hit denied after window rollover")
	}
}

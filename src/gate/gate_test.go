package gate

import (
	"context"
	"sync"
	"testing"
	"time"

	"paygateway/src/cache"

	"github.com/google/uuid"
)

func TestClaim(t *testing.T) {
	ctx := context.Background()

	t.Run("first claim wins, second is rejected", func(t *testing.T) {
		g := New(cache.NewMemoryCache(), time.Minute)
		id := uuid.New()

		ok, err := g.Claim(ctx, id)
		if err != nil || !ok {
			t.Fatalf("expected first claim to succeed, ok=%v err=%v", ok, err)
		}
		ok, err = g.Claim(ctx, id)
		if err != nil {
			t.Fatalf("second claim errored: %v", err)
		}
		if ok {
			t.Error("expected second claim to be rejected")
		}
	})

	t.Run("concurrent claims admit exactly one", func(t *testing.T) {
		g := New(cache.NewMemoryCache(), time.Minute)
		id := uuid.New()

		const callers = 20
		var wg sync.WaitGroup
		results := make(chan bool, callers)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := g.Claim(ctx, id)
				if err != nil {
					t.Errorf("claim errored: %v", err)
					return
				}
				results <- ok
			}()
		}
		wg.Wait()
		close(results)

		winners := 0
		for ok := range results {
			if ok {
				winners++
			}
		}
		if winners != 1 {
			t.Errorf("expected exactly 1 winner, got %d", winners)
		}
	})

	t.Run("release reopens the claim", func(t *testing.T) {
		g := New(cache.NewMemoryCache(), time.Minute)
		id := uuid.New()

		g.Claim(ctx, id)
		if err := g.Release(ctx, id); err != nil {
			t.Fatalf("release: %v", err)
		}
		ok, err := g.Claim(ctx, id)
		if err != nil || !ok {
			t.Errorf("expected claim after release to succeed, ok=%v err=%v", ok, err)
		}
	})

	t.Run("expired claim reopens the window", func(t *testing.T) {
		g := New(cache.NewMemoryCache(), 10*time.Millisecond)
		id := uuid.New()

		g.Claim(ctx, id)
		time.Sleep(20 * time.Millisecond)
		ok, err := g.Claim(ctx, id)
		if err != nil || !ok {
			t.Errorf("expected claim after expiry to succeed, ok=%v err=%v", ok, err)
		}
	})

	t.Run("distinct ids do not interfere", func(t *testing.T) {
		g := New(cache.NewMemoryCache(), time.Minute)
		a, b := uuid.New(), uuid.New()

		okA, _ := g.Claim(ctx, a)
		okB, _ := g.Claim(ctx, b)
		if !okA || !okB {
			t.Errorf("expected both claims to succeed, got a=%v b=%v", okA, okB)
		}
	})
}

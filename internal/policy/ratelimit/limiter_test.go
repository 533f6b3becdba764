package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestLimiterWaitSpacesSameHost(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		observed []string
	)
	l := New(Config{
		RPS:   10, // one token every 100ms
		Burst: 1,
		Observe: func(host string, _ time.Duration) {
			mu.Lock()
			observed = append(observed, host)
			mu.Unlock()
		},
	})

	ctx := context.Background()
	if err := l.Wait(ctx, "https://portal.example.com/list"); err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	if err := l.Wait(ctx, "https://portal.example.com/FileStream.ashx?DocumentId=1"); err != nil {
		t.Fatal(err)
	}
	if dur := time.Since(start); dur < 80*time.Millisecond {
		t.Errorf("expected wait ~100ms, got %v", dur)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(observed) != 1 || observed[0] != "portal.example.com" {
		t.Errorf("expected one observed wait for portal.example.com, got %v", observed)
	}
}

func TestLimiterDifferentHosts(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 1, Burst: 1})
	ctx := context.Background()

	if err := l.Wait(ctx, "https://a.example.com/1"); err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	if err := l.Wait(ctx, "https://b.example.com/1"); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Errorf("host b blocked unexpectedly")
	}
}

func TestLimiterDisabledAndCanceled(t *testing.T) {
	t.Parallel()

	var nilLimiter *Limiter
	if err := nilLimiter.Wait(context.Background(), "https://x"); err != nil {
		t.Fatalf("nil limiter should not block: %v", err)
	}

	unlimited := New(Config{})
	for i := 0; i < 5; i++ {
		if err := unlimited.Wait(context.Background(), "https://x"); err != nil {
			t.Fatalf("unlimited wait error: %v", err)
		}
	}

	l := New(Config{RPS: 0.001, Burst: 1})
	if err := l.Wait(context.Background(), "https://slow.example.com"); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Wait(ctx, "https://slow.example.com"); err == nil {
		t.Fatal("expected canceled wait to fail")
	}
}

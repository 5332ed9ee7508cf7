package genimage

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/classpix/classpix/internal/ratelimit"
)

// fakeProvider records call starts and fails the first failures calls.
type fakeProvider struct {
	mu       sync.Mutex
	starts   []time.Time
	inflight int
	maxSeen  int
	failures int
	delay    time.Duration
}

func (p *fakeProvider) Generate(ctx context.Context, prompt string) (string, error) {
	p.mu.Lock()
	p.starts = append(p.starts, time.Now())
	p.inflight++
	if p.inflight > p.maxSeen {
		p.maxSeen = p.inflight
	}
	call := len(p.starts)
	p.mu.Unlock()

	if p.delay > 0 {
		time.Sleep(p.delay)
	}

	p.mu.Lock()
	p.inflight--
	p.mu.Unlock()

	if call <= p.failures {
		return "", &ProviderError{Msg: "quota exceeded"}
	}
	return "https://img.example/" + prompt + ".png", nil
}

func (p *fakeProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.starts)
}

// nopPacer admits immediately.
type nopPacer struct{}

func (nopPacer) Wait(ctx context.Context) error { return nil }

func startQueue(t *testing.T, p Provider, pacer RatePacer, opts Options) *Queue {
	t.Helper()
	q := NewQueue(p, pacer, opts)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	q.Start(ctx)
	return q
}

func TestEnqueueReturnsProviderURL(t *testing.T) {
	prov := &fakeProvider{}
	q := startQueue(t, prov, nopPacer{}, Options{MaxConcurrent: 1, MaxAttempts: 3})

	url, err := q.Enqueue(context.Background(), "red-bicycle", false)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if url != "https://img.example/red-bicycle.png" {
		t.Fatalf("unexpected url %q", url)
	}
}

func TestEnqueueRetriesThenSucceeds(t *testing.T) {
	prov := &fakeProvider{failures: 2}
	q := startQueue(t, prov, nopPacer{}, Options{MaxConcurrent: 1, MaxAttempts: 3})

	url, err := q.Enqueue(context.Background(), "cat", false)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if !strings.HasSuffix(url, "/cat.png") {
		t.Fatalf("expected real url after retries, got %q", url)
	}
	if got := prov.calls(); got != 3 {
		t.Fatalf("expected 3 provider calls, got %d", got)
	}
}

func TestEnqueueFallsBackAfterExhaustedRetries(t *testing.T) {
	prov := &fakeProvider{failures: 100}
	q := startQueue(t, prov, nopPacer{}, Options{MaxConcurrent: 2, MaxAttempts: 3})

	url, err := q.Enqueue(context.Background(), "a red bicycle", false)
	if err != nil {
		t.Fatalf("enqueue must never surface provider errors, got %v", err)
	}
	if url != FallbackURL("a red bicycle") {
		t.Fatalf("expected fallback url, got %q", url)
	}
	if got := prov.calls(); got != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", got)
	}
}

func TestConcurrencyBound(t *testing.T) {
	prov := &fakeProvider{delay: 30 * time.Millisecond}
	q := startQueue(t, prov, nopPacer{}, Options{MaxConcurrent: 2, MaxAttempts: 1})

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := q.Enqueue(context.Background(), "p", false); err != nil {
				t.Errorf("enqueue: %v", err)
			}
		}()
	}
	wg.Wait()

	prov.mu.Lock()
	maxSeen := prov.maxSeen
	prov.mu.Unlock()
	if maxSeen > 2 {
		t.Fatalf("observed %d concurrent provider calls, limit is 2", maxSeen)
	}
}

func TestProviderCallSpacing(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	pacer := ratelimit.NewPacer(client, "pace", 1200, time.Minute) // 50ms spacing

	prov := &fakeProvider{delay: 5 * time.Millisecond}
	q := startQueue(t, prov, pacer, Options{MaxConcurrent: 3, MaxAttempts: 1})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = q.Enqueue(context.Background(), "p", false)
		}()
	}
	wg.Wait()

	prov.mu.Lock()
	starts := append([]time.Time(nil), prov.starts...)
	prov.mu.Unlock()
	if len(starts) != 4 {
		t.Fatalf("expected 4 calls, got %d", len(starts))
	}
	for i := 1; i < len(starts); i++ {
		if gap := starts[i].Sub(starts[i-1]); gap < 40*time.Millisecond {
			t.Fatalf("provider calls %d and %d only %v apart, want >= 50ms", i-1, i, gap)
		}
	}
}

func TestEnqueueHonorsContext(t *testing.T) {
	prov := &fakeProvider{delay: 200 * time.Millisecond}
	q := startQueue(t, prov, nopPacer{}, Options{MaxConcurrent: 1, MaxAttempts: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := q.Enqueue(ctx, "slow", false); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

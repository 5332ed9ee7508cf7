package genimage

import (
	"context"
	"log"
	"sync"
	"time"
)

// RatePacer blocks until the next provider call is allowed.
type RatePacer interface {
	Wait(ctx context.Context) error
}

type Options struct {
	MaxConcurrent int           // in-flight provider calls
	MaxAttempts   int           // total attempts before falling back
	FallbackDelay time.Duration // simulated latency on the fallback path
}

type job struct {
	prompt   string
	batch    bool
	attempts int
	enqueued time.Time
	result   chan string
}

// Queue holds pending generation requests and executes them under two
// gates: at most MaxConcurrent in-flight calls, and a minimum wall-clock
// spacing between call starts enforced by the pacer. Enqueue never
// surfaces a provider failure; exhausted retries resolve to a
// deterministic fallback URL.
type Queue struct {
	provider Provider
	pacer    RatePacer
	opts     Options

	mu      sync.Mutex
	pending []*job
	active  int

	wake chan struct{}
}

func NewQueue(provider Provider, pacer RatePacer, opts Options) *Queue {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 3
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	return &Queue{
		provider: provider,
		pacer:    pacer,
		opts:     opts,
		wake:     make(chan struct{}, 1),
	}
}

// Start runs the dispatcher until ctx is cancelled.
func (q *Queue) Start(ctx context.Context) {
	go q.dispatch(ctx)
}

// Enqueue submits a prompt and blocks until an image URL is available.
// The only returned error is ctx cancellation; provider failures are
// retried and finally converted to a fallback URL.
func (q *Queue) Enqueue(ctx context.Context, prompt string, isBatch bool) (string, error) {
	j := &job{
		prompt:   prompt,
		batch:    isBatch,
		enqueued: time.Now(),
		result:   make(chan string, 1),
	}

	q.mu.Lock()
	q.pending = append(q.pending, j)
	depth := len(q.pending)
	active := q.active
	q.mu.Unlock()
	log.Printf("genimage: job queued pending=%d active=%d batch=%v", depth, active, isBatch)

	q.signal()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case url := <-j.result:
		return url, nil
	}
}

// Depth returns the number of jobs waiting for admission.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Active returns the number of in-flight provider calls.
func (q *Queue) Active() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// dispatch is the single admission loop. Because only this goroutine waits
// on the pacer, provider call starts are strictly spaced even while up to
// MaxConcurrent calls are in flight.
func (q *Queue) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.wake:
		}

		for {
			q.mu.Lock()
			if q.active >= q.opts.MaxConcurrent || len(q.pending) == 0 {
				q.mu.Unlock()
				break
			}
			j := q.pending[0]
			q.pending = q.pending[1:]
			q.active++
			q.mu.Unlock()

			if err := q.pacer.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					q.finish(j, FallbackURL(j.prompt))
					return
				}
				// Pacing state unavailable: keep serving rather than stall.
				log.Printf("genimage: pacer unavailable, proceeding unpaced: %v", err)
			}

			go q.run(ctx, j)
		}
	}
}

func (q *Queue) run(ctx context.Context, j *job) {
	defer func() {
		q.mu.Lock()
		q.active--
		q.mu.Unlock()
		q.signal()
	}()

	j.attempts++
	url, err := q.provider.Generate(ctx, j.prompt)
	if err == nil {
		q.finish(j, url)
		return
	}

	if j.attempts < q.opts.MaxAttempts && ctx.Err() == nil {
		log.Printf("genimage: attempt %d failed, requeueing: %v", j.attempts, err)
		q.mu.Lock()
		q.pending = append(q.pending, j)
		q.mu.Unlock()
		return
	}

	log.Printf("genimage: attempts exhausted after %d tries, using fallback: %v", j.attempts, err)
	if q.opts.FallbackDelay > 0 {
		timer := time.NewTimer(q.opts.FallbackDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}
	q.finish(j, FallbackURL(j.prompt))
}

func (q *Queue) finish(j *job, url string) {
	select {
	case j.result <- url:
	default:
	}
}

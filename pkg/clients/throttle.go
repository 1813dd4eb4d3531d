package clients

import (
	"context"
	"sync"
	"time"
)

// Throttle is a token bucket limiting the request rate against a single
// endpoint. All fetch workers share one bucket, so the configured rate
// bounds the whole process, not each worker.
type Throttle struct {
	mu       sync.Mutex
	rate     float64
	burst    float64
	tokens   float64
	lastFill time.Time
}

// NewThrottle creates a throttle allowing rate requests per second with
// the given burst. A nil throttle never blocks.
func NewThrottle(rate float64, burst int) *Throttle {
	if burst < 1 {
		burst = 1
	}
	return &Throttle{
		rate:     rate,
		burst:    float64(burst),
		tokens:   float64(burst),
		lastFill: time.Now(),
	}
}

// Wait blocks until a token is available or the context is cancelled.
func (th *Throttle) Wait(ctx context.Context) error {
	if th == nil {
		return nil
	}

	for {
		wait := th.take()
		if wait <= 0 {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// take consumes a token if one is available, otherwise returns how long
// to wait before trying again.
func (th *Throttle) take() time.Duration {
	th.mu.Lock()
	defer th.mu.Unlock()

	now := time.Now()
	th.tokens += now.Sub(th.lastFill).Seconds() * th.rate
	if th.tokens > th.burst {
		th.tokens = th.burst
	}
	th.lastFill = now

	if th.tokens >= 1 {
		th.tokens--
		return 0
	}

	return time.Duration((1 - th.tokens) / th.rate * float64(time.Second))
}

// Package ratelimit paces outbound upstream calls.
//
// The upstream enforces informal rate limits; one shared pacer across all
// endpoints keeps the total request rate inside the same envelope the ad hoc
// per-call sleeps used to provide.
package ratelimit

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"golang.org/x/time/rate"
)

// Pacer combines a fixed-interval token bucket with bounded random jitter.
type Pacer struct {
	limiter   *rate.Limiter
	maxJitter time.Duration
}

// New creates a Pacer that admits one call per minDelay on average, then
// sleeps an extra random duration up to maxDelay-minDelay. A zero minDelay
// disables pacing entirely (useful in tests).
func New(minDelay, maxDelay time.Duration) *Pacer {
	limit := rate.Inf
	if minDelay > 0 {
		limit = rate.Every(minDelay)
	}
	jitter := maxDelay - minDelay
	if jitter < 0 {
		jitter = 0
	}
	return &Pacer{
		limiter:   rate.NewLimiter(limit, 1),
		maxJitter: jitter,
	}
}

// Wait blocks until the next call is admitted, respecting the context.
func (p *Pacer) Wait(ctx context.Context) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	jitter := randomDuration(p.maxJitter)
	if jitter <= 0 {
		return nil
	}
	timer := time.NewTimer(jitter)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("rate limit jitter: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func randomDuration(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

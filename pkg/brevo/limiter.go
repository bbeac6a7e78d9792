package brevo

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter paces outbound requests to the Brevo API. Limit blocks until the
// next request may be sent or ctx is done.
type Limiter interface {
	Limit(ctx context.Context) error
}

type NoopLimiter struct{}

var _ Limiter = NoopLimiter{}

func (NoopLimiter) Limit(_ context.Context) error {
	return nil
}

// TokenBucketLimiter allows rps requests per second with bursts of up to burst.
type TokenBucketLimiter struct {
	lim *rate.Limiter
}

var _ Limiter = &TokenBucketLimiter{}

func NewTokenBucketLimiter(rps float64, burst int) *TokenBucketLimiter {
	if burst < 1 {
		burst = 1
	}
	return &TokenBucketLimiter{lim: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (l *TokenBucketLimiter) Limit(ctx context.Context) error {
	return l.lim.Wait(ctx)
}

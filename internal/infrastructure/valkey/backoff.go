package valkey

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/valkey-io/valkey-glide-php-sub000/internal/domain/request"
)

const maxReconnectDelay = 5 * time.Minute

// exponentialBackOff waits factor * base^attempt milliseconds, spread by
// +/- jitter percent, and never longer than maxReconnectDelay.
type exponentialBackOff struct {
	factor  float64
	base    float64
	jitter  float64
	attempt int
	rand    func() float64
}

func newExponentialBackOff(s request.RetryStrategy) *exponentialBackOff {
	b := &exponentialBackOff{
		factor: float64(s.Factor),
		base:   float64(s.ExponentBase),
		rand:   rand.Float64,
	}
	if s.JitterPercent != nil {
		b.jitter = float64(*s.JitterPercent) / 100
	}
	return b
}

func (b *exponentialBackOff) NextBackOff() time.Duration {
	ms := b.factor * math.Pow(b.base, float64(b.attempt))
	b.attempt++
	if b.jitter > 0 {
		ms += ms * b.jitter * (2*b.rand() - 1)
	}
	d := time.Duration(ms * float64(time.Millisecond))
	if ms >= float64(maxReconnectDelay/time.Millisecond) || d < 0 {
		return maxReconnectDelay
	}
	return d
}

func (b *exponentialBackOff) Reset() {
	b.attempt = 0
}

// retryPolicy builds the connect retry schedule for req. Without a retry
// strategy the first failure is final.
func retryPolicy(req *request.ConnectionRequest) backoff.BackOff {
	s, ok := req.ConnectionRetryStrategy()
	if !ok {
		return &backoff.StopBackOff{}
	}
	return backoff.WithMaxRetries(newExponentialBackOff(s), uint64(s.NumberOfRetries))
}

package provider

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Base carries the retry policy and admission limiter shared by every
// driver: a linear backoff applied to retryable classified errors,
// used for the narrow case of retrying within a single Attempt (e.g. a
// dropped connection mid-handshake) before the Router decides to fail
// over at all, plus a per-provider token-bucket limiter that bounds
// concurrent admission to that provider's shared HTTP client.
type Base struct {
	name       string
	maxRetries int
	retryDelay time.Duration
	admission  *Admission
}

// NewBase returns a Base with sane defaults (3 retries, 1s initial
// delay, a 10rps/20-burst admission limiter queuing up to 64 deep) when
// the respective argument is zero.
func NewBase(name string, maxRetries int, retryDelay time.Duration) Base {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	return Base{name: name, maxRetries: maxRetries, retryDelay: retryDelay, admission: NewAdmission(10, 20, 64)}
}

func (b Base) Name() string { return b.name }

// Admit blocks until the provider has room to start one more request,
// or returns ErrOverloaded once the queue bound is exceeded, or returns
// ctx's error if ctx is done first. Every driver's Execute calls this
// before issuing its outbound request.
func (b Base) Admit(ctx context.Context) error {
	return b.admission.Acquire(ctx)
}

// Release returns the admission slot Admit reserved. Every driver's
// Execute must defer this immediately after a successful Admit.
func (b Base) Release() {
	b.admission.Release()
}

// Admission is a per-provider admission limiter: a golang.org/x/time/rate
// token bucket gates throughput, and a bounded queue gates how many
// requests may wait for a token at once. A request that can't even get
// a queue slot fails fast with ErrOverloaded rather than piling up
// unbounded goroutines behind a slow provider.
type Admission struct {
	limiter *rate.Limiter
	queue   chan struct{}
}

// NewAdmission builds an Admission with the given steady-state rate
// (requests/sec), burst and queue depth.
func NewAdmission(ratePerSec float64, burst, queueDepth int) *Admission {
	return &Admission{
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), burst),
		queue:   make(chan struct{}, queueDepth),
	}
}

// ErrOverloaded is returned by Acquire when the admission queue is
// already at its bound.
var ErrOverloaded = NewError(ReasonOverloaded, "", "", nil)

// Acquire reserves a queue slot (failing fast with ErrOverloaded if the
// queue is full) and then waits for the rate limiter to admit it.
func (a *Admission) Acquire(ctx context.Context) error {
	select {
	case a.queue <- struct{}{}:
	default:
		return ErrOverloaded
	}
	if err := a.limiter.Wait(ctx); err != nil {
		<-a.queue
		return err
	}
	return nil
}

// Release frees the queue slot a prior Acquire reserved.
func (a *Admission) Release() {
	select {
	case <-a.queue:
	default:
	}
}

// Retry runs op up to b.maxRetries+1 times, waiting attempt*retryDelay
// between attempts, stopping early when isRetryable(err) is false or ctx
// is done.
func (b Base) Retry(ctx context.Context, isRetryable func(error) bool, op func() error) error {
	var lastErr error
	for attempt := 0; attempt <= b.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * b.retryDelay):
			}
		}

		err := op()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryable(err) {
			return err
		}
	}
	return lastErr
}

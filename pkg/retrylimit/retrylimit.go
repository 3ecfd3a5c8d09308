// Package retrylimit paces REST calls with an adaptive rate limiter and
// retries them with exponential backoff.
//
//	lim := retrylimit.NewAdaptiveLimiter(5, 1, 20, 1, 0.5)
//	cmds, err := retrylimit.Do(ctx, lim, retrylimit.DefaultConfig(log), func(ctx context.Context) ([]*discordgo.ApplicationCommand, error) {
//	    return s.ApplicationCommands(appID, guildID, discordgo.WithContext(ctx))
//	})
package retrylimit

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// successCooldown is how long after a failure the limiter refuses to speed up.
const successCooldown = 10 * time.Second

// AdaptiveLimiter is a rate limiter that speeds up on success and backs off
// when the remote signals overload.
type AdaptiveLimiter struct {
	mu        sync.RWMutex
	limiter   *rate.Limiter
	minLimit  rate.Limit
	maxLimit  rate.Limit
	stepUp    rate.Limit
	stepDown  float64
	lastError time.Time
}

// NewAdaptiveLimiter starts at initial requests per second, bounded by
// [lo, hi]. Each success adds stepUp; each overload multiplies by stepDown.
func NewAdaptiveLimiter(initial, lo, hi, stepUp rate.Limit, stepDown float64) *AdaptiveLimiter {
	lo = max(lo, 1)
	initial = max(initial, lo)
	hi = max(hi, initial)
	return &AdaptiveLimiter{
		limiter:  rate.NewLimiter(initial, burstFor(initial)),
		minLimit: lo,
		maxLimit: hi,
		stepUp:   stepUp,
		stepDown: stepDown,
	}
}

// Wait blocks until a token is available or ctx is done.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// Success raises the rate unless a failure happened recently.
func (a *AdaptiveLimiter) Success() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if time.Since(a.lastError) > successCooldown {
		a.setLimit(a.limiter.Limit() + a.stepUp)
	}
}

// RateLimited lowers the rate after an overload response.
func (a *AdaptiveLimiter) RateLimited() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastError = time.Now()
	a.setLimit(rate.Limit(float64(a.limiter.Limit()) * a.stepDown))
}

// Limit returns the current requests per second.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.limiter.Limit()
}

func (a *AdaptiveLimiter) setLimit(l rate.Limit) {
	l = min(max(l, a.minLimit), a.maxLimit)
	if l != a.limiter.Limit() {
		a.limiter.SetLimit(l)
		a.limiter.SetBurst(burstFor(l))
	}
}

func burstFor(l rate.Limit) int { return max(1, int(l)) }

// StatusCoder is implemented by errors that carry an HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// ErrPermanent marks an error that must not be retried. Wrap it with
// Permanent.
var ErrPermanent = errors.New("permanent failure")

type permanent struct{ err error }

func (p *permanent) Error() string   { return p.err.Error() }
func (p *permanent) Unwrap() []error { return []error{p.err, ErrPermanent} }

// Permanent wraps err so Do returns it without retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanent{err: err}
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	return 0
}

// Retryable reports whether err is worth another attempt: rate limits,
// server errors and failures without a status.
func Retryable(err error) bool {
	if errors.Is(err, ErrPermanent) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	code := StatusOf(err)
	return code == 0 || code == http.StatusTooManyRequests || code >= 500
}

// Config tunes Do.
type Config struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	RateLimitDelay time.Duration
	Multiplier     float64
	Jitter         bool
	Retryable      func(error) bool
	Logger         zerolog.Logger
}

// DefaultConfig suits REST calls made during command synchronization.
func DefaultConfig(logger zerolog.Logger) Config {
	return Config{
		MaxAttempts:    5,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       10 * time.Second,
		RateLimitDelay: 250 * time.Millisecond,
		Multiplier:     2,
		Jitter:         true,
		Retryable:      Retryable,
		Logger:         logger,
	}
}

// Do runs fn until it succeeds, returns a non retryable error, ctx is done,
// or cfg.MaxAttempts is reached. A nil lim disables pacing.
func Do[T any](ctx context.Context, lim *AdaptiveLimiter, cfg Config, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Retryable == nil {
		cfg.Retryable = Retryable
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 1
	}

	delay := cfg.InitialDelay
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return zero, err
			}
		}

		v, err := fn(ctx)
		if err == nil {
			if lim != nil {
				lim.Success()
			}
			if attempt > 1 {
				cfg.Logger.Debug().Int("attempt", attempt).Msg("request succeeded after retry")
			}
			return v, nil
		}
		lastErr = err
		if !cfg.Retryable(err) {
			return zero, err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		wait := delay
		if StatusOf(err) == http.StatusTooManyRequests {
			if lim != nil {
				lim.RateLimited()
			}
			wait = cfg.RateLimitDelay
		} else {
			if StatusOf(err) >= 500 && lim != nil {
				lim.RateLimited()
			}
			if cfg.Jitter {
				wait = addJitter(wait)
			}
			delay = min(time.Duration(float64(delay)*cfg.Multiplier), cfg.MaxDelay)
		}

		cfg.Logger.Warn().Err(err).
			Int("attempt", attempt).
			Int("status", StatusOf(err)).
			Dur("wait", wait).
			Msg("request failed, retrying")

		if err := sleep(ctx, wait); err != nil {
			return zero, err
		}
	}
	return zero, fmt.Errorf("giving up after %d attempts: %w", cfg.MaxAttempts, lastErr)
}

// Run is Do for calls that only return an error.
func Run(ctx context.Context, lim *AdaptiveLimiter, cfg Config, fn func(context.Context) error) error {
	_, err := Do(ctx, lim, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// addJitter adds up to 25% of d.
func addJitter(d time.Duration) time.Duration {
	if d < 4 {
		return d
	}
	return d + rand.N(d/4)
}

package detection

import (
	"context"
	"fmt"
	"time"
)

// Option configures a Synthesizer.
type Option func(*Synthesizer) error

// WithRand replaces the random source. Use a seeded *rand.Rand from
// math/rand/v2 for reproducible results.
func WithRand(r Rand) Option {
	return func(s *Synthesizer) error {
		if r == nil {
			return fmt.Errorf("%w: nil random source", ErrInvalidInput)
		}
		s.rng = r
		return nil
	}
}

// WithCatalog replaces the default car-part catalog.
func WithCatalog(c *Catalog) Option {
	return func(s *Synthesizer) error {
		if c == nil || c.Len() == 0 {
			return fmt.Errorf("%w: empty catalog", ErrInvalidInput)
		}
		s.catalog = c
		return nil
	}
}

// WithDelay replaces the function used to wait out the artificial
// processing delay. Tests typically pass NoDelay.
func WithDelay(fn DelayFunc) Option {
	return func(s *Synthesizer) error {
		if fn == nil {
			return fmt.Errorf("%w: nil delay function", ErrInvalidInput)
		}
		s.delay = fn
		return nil
	}
}

// WithDelayRange changes the [min, max] bounds of the artificial delay.
func WithDelayRange(lo, hi time.Duration) Option {
	return func(s *Synthesizer) error {
		if lo < 0 || hi < lo {
			return fmt.Errorf("%w: delay range [%s,%s]", ErrInvalidInput, lo, hi)
		}
		s.minDelay, s.maxDelay = lo, hi
		return nil
	}
}

// WithClock replaces time.Now for timestamps and processing time.
func WithClock(now func() time.Time) Option {
	return func(s *Synthesizer) error {
		if now == nil {
			return fmt.Errorf("%w: nil clock", ErrInvalidInput)
		}
		s.now = now
		return nil
	}
}

// WithIDFunc replaces the identity generator. prefix is "detection" or "part".
func WithIDFunc(fn func(prefix string) string) Option {
	return func(s *Synthesizer) error {
		if fn == nil {
			return fmt.Errorf("%w: nil id function", ErrInvalidInput)
		}
		s.newID = fn
		return nil
	}
}

// DelayFunc waits for d or until ctx is done.
type DelayFunc func(ctx context.Context, d time.Duration) error

// SleepContext is the default DelayFunc.
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// NoDelay returns immediately unless ctx is already done.
func NoDelay(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

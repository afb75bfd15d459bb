// Package retry wraps exponential backoff for calls to transcription engines
// and generation backends.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy configures one retrying call.
type Policy struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration
}

// DefaultPolicy is three tries with a short exponential backoff.
func DefaultPolicy() Policy {
	return Policy{
		MaxTries:        3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		MaxElapsed:      30 * time.Second,
	}
}

// NoRetry runs the operation exactly once.
func NoRetry() Policy {
	return Policy{MaxTries: 1}
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// Do runs op until it succeeds, returns a permanent error, or the policy is
// exhausted. The returned error is never the backoff wrapper type.
func Do[T any](ctx context.Context, p Policy, log *slog.Logger, name string, op func(context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}

	opts := []backoff.RetryOption{backoff.WithBackOff(b)}
	if p.MaxTries > 0 {
		opts = append(opts, backoff.WithMaxTries(p.MaxTries))
	}
	if p.MaxElapsed > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(p.MaxElapsed))
	}
	if log != nil {
		opts = append(opts, backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn("retrying call", "call", name, "error", err, "next", next)
		}))
	}

	res, err := backoff.Retry(ctx, func() (T, error) { return op(ctx) }, opts...)
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return res, perm.Err
	}
	return res, err
}

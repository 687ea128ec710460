package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
)

// StepPolicy retries a failing stage with a constant delay.
type StepPolicy struct {
	Retries uint64
	Delay   time.Duration
}

// DefaultStepPolicy matches the scheduler defaults: two retries, 15s apart.
var DefaultStepPolicy = StepPolicy{Retries: 2, Delay: 15 * time.Second}

// do runs fn, retrying errors other than *GateError and *UpstreamError.
func (p *StepPolicy) do(ctx context.Context, logger *slog.Logger, fn func(context.Context) error) error {
	if p == nil || p.Retries == 0 {
		return fn(ctx)
	}

	delay := p.Delay
	if delay <= 0 {
		// constant backoff rejects a zero delay
		delay = time.Nanosecond
	}
	backoff := retry.WithMaxRetries(p.Retries, retry.NewConstant(delay))

	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		var gateErr *GateError
		var upstreamErr *UpstreamError
		if errors.As(err, &gateErr) || errors.As(err, &upstreamErr) {
			return err
		}
		if uint64(attempt) <= p.Retries {
			logger.Warn("stage failed, retrying", "attempt", attempt, "delay", p.Delay, "error", err.Error())
		}
		return retry.RetryableError(err)
	})
}

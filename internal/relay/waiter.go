package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/mahirjain10/savana-gateway/internal/actinia"
	"github.com/mahirjain10/savana-gateway/internal/types"
	"github.com/sirupsen/logrus"
)

// ErrPollTimeout is returned when a job is still not terminal once the wait
// budget is spent.
var ErrPollTimeout = errors.New("job did not reach a terminal status in time")

var errNotTerminal = errors.New("job not terminal yet")

// WaitPolicy bounds repeated polling of one job.
type WaitPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxWait         time.Duration
	MaxAttempts     int
}

// DefaultWaitPolicy matches the service configuration defaults.
var DefaultWaitPolicy = WaitPolicy{
	InitialInterval: 2 * time.Second,
	MaxInterval:     30 * time.Second,
	MaxWait:         30 * time.Minute,
	MaxAttempts:     120,
}

func (p WaitPolicy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0.2
	b.Reset()
	return b
}

// Delay is the wait before poll number attempt+1 when polls are rescheduled
// one at a time.
func (p WaitPolicy) Delay(attempt int) time.Duration {
	b := p.backOff()
	d := b.NextBackOff()
	for i := 0; i < attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}

// Exhausted reports whether attempt has used up the attempt budget.
func (p WaitPolicy) Exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt >= p.MaxAttempts
}

// Waiter polls one job until it is terminal, with exponential backoff
// between polls and a bound on both attempts and elapsed time.
type Waiter struct {
	poller *Poller
	policy WaitPolicy
	logger logrus.FieldLogger
}

func NewWaiter(poller *Poller, policy WaitPolicy, logger logrus.FieldLogger) *Waiter {
	return &Waiter{poller: poller, policy: policy, logger: logger}
}

// Wait returns the terminal event of the job. Every intermediate event is
// fanned out as it is observed. When the budget runs out the last observed
// event, if any, is returned together with ErrPollTimeout.
func (w *Waiter) Wait(ctx context.Context, req PollRequest) (*types.StatusEvent, error) {
	var last *types.StatusEvent
	attempts := 0

	operation := func() (*types.StatusEvent, error) {
		attempts++
		event, err := w.poller.Poll(ctx, req)
		if err != nil {
			if actinia.IsRetryable(err) {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		last = event
		if !event.Status.Terminal() {
			return nil, errNotTerminal
		}
		return event, nil
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(w.policy.backOff()),
		backoff.WithMaxElapsedTime(w.policy.MaxWait),
		backoff.WithNotify(func(err error, next time.Duration) {
			w.logger.WithFields(logrus.Fields{
				"resource_id": req.Handle.ResourceID,
				"attempt":     attempts,
				"next":        next,
			}).WithError(err).Debug("job not finished, waiting")
		}),
	}
	if w.policy.MaxAttempts > 0 {
		opts = append(opts, backoff.WithMaxTries(uint(w.policy.MaxAttempts)))
	}

	event, err := backoff.Retry(ctx, operation, opts...)
	if err == nil {
		return event, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return last, ctxErr
	}
	if errors.Is(err, errNotTerminal) || actinia.IsRetryable(err) {
		return last, fmt.Errorf("%w: %s after %d polls: %w", ErrPollTimeout, req.Handle.ResourceID, attempts, err)
	}
	return last, err
}

package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Outcome is the conclusive consensus result of a transaction
type Outcome string

const (
	StatusSuccess Outcome = "success"
	StatusFailed  Outcome = "failed"
)

// StatusSource reports transaction status; MirrorClient implements it
type StatusSource interface {
	TransactionStatus(ctx context.Context, txID string) (*TxStatus, error)
}

// Confirmation is the result of polling a transaction to a conclusion
type Confirmation struct {
	Outcome  Outcome
	Result   string
	Attempts int
}

// Reason returns the classified failure for a failed confirmation
func (c *Confirmation) Reason() error {
	if c.Outcome == StatusSuccess {
		return nil
	}
	return ClassifyStatus(c.Result)
}

// WatcherOption configures a Watcher
type WatcherOption func(*Watcher)

// WithBackoff multiplies the poll delay by factor after each inconclusive
// attempt, capped at maxDelay. A factor of 1 keeps the delay fixed.
func WithBackoff(factor float64, maxDelay time.Duration) WatcherOption {
	return func(w *Watcher) {
		if factor >= 1 {
			w.backoff = factor
		}
		if maxDelay > 0 {
			w.maxDelay = maxDelay
		}
	}
}

// WithSleep replaces the wait between polls
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) WatcherOption {
	return func(w *Watcher) { w.sleep = sleep }
}

// Watcher waits for submitted transactions to reach consensus
type Watcher struct {
	source   StatusSource
	backoff  float64
	maxDelay time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewWatcher creates a watcher polling source
func NewWatcher(source StatusSource, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		source:   source,
		backoff:  1.0,
		maxDelay: 30 * time.Second,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WaitForBaseline waits d unconditionally so the mirror has a chance to index
// the transaction before the first poll
func (w *Watcher) WaitForBaseline(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	return w.sleep(ctx, d)
}

// PollStatus queries the transaction until it is conclusive. Not-found and
// transport errors are retried. The maxRetries-th inconclusive attempt returns
// ErrConfirmationTimeout.
func (w *Watcher) PollStatus(ctx context.Context, txID string, maxRetries int, delay time.Duration) (*Confirmation, error) {
	if maxRetries < 1 {
		maxRetries = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		status, err := w.source.TransactionStatus(ctx, txID)
		if err == nil {
			outcome := StatusFailed
			if status.Succeeded() {
				outcome = StatusSuccess
			}
			return &Confirmation{Outcome: outcome, Result: status.Result, Attempts: attempt}, nil
		}

		lastErr = err
		if !errors.Is(err, ErrNotFoundYet) {
			slog.Debug("mirror status query failed",
				slog.String("tx_id", txID),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
		}
		if attempt == maxRetries {
			break
		}

		if err := w.sleep(ctx, delay); err != nil {
			return nil, err
		}
		delay = w.next(delay)
	}

	return nil, &Error{
		Op:   "confirm",
		TxID: txID,
		Err:  fmt.Errorf("%w after %d attempts: %v", ErrConfirmationTimeout, maxRetries, lastErr),
	}
}

func (w *Watcher) next(delay time.Duration) time.Duration {
	if w.backoff == 1 {
		return delay
	}
	next := time.Duration(float64(delay) * w.backoff)
	if next > w.maxDelay {
		return w.maxDelay
	}
	return next
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

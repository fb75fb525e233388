package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedSource replays a fixed sequence of responses
type scriptedSource struct {
	mu        sync.Mutex
	responses []func() (*TxStatus, error)
	calls     int
}

func (s *scriptedSource) TransactionStatus(ctx context.Context, txID string) (*TxStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i >= len(s.responses) {
		return nil, ErrNotFoundYet
	}
	return s.responses[i]()
}

func notFound() (*TxStatus, error) { return nil, ErrNotFoundYet }

func result(code string) func() (*TxStatus, error) {
	return func() (*TxStatus, error) { return &TxStatus{Result: code}, nil }
}

// recordingSleep captures requested delays without waiting
type recordingSleep struct {
	delays []time.Duration
}

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func TestPollStatus_SuccessAfterNotFound(t *testing.T) {
	t.Parallel()

	src := &scriptedSource{responses: []func() (*TxStatus, error){notFound, notFound, result("SUCCESS")}}
	rec := &recordingSleep{}
	w := NewWatcher(src, WithSleep(rec.sleep))

	conf, err := w.PollStatus(context.Background(), "0.0.2@1.2", 10, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, conf.Outcome)
	assert.Equal(t, 3, conf.Attempts)
	assert.NoError(t, conf.Reason())
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, rec.delays)
}

func TestPollStatus_FailedResult(t *testing.T) {
	t.Parallel()

	src := &scriptedSource{responses: []func() (*TxStatus, error){result("INSUFFICIENT_PAYER_BALANCE")}}
	w := NewWatcher(src, WithSleep((&recordingSleep{}).sleep))

	conf, err := w.PollStatus(context.Background(), "0.0.2@1.2", 10, time.Second)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, conf.Outcome)
	assert.ErrorIs(t, conf.Reason(), ErrInsufficientBalance)
}

func TestPollStatus_TimeoutOnLastAttempt(t *testing.T) {
	t.Parallel()

	src := &scriptedSource{}
	rec := &recordingSleep{}
	w := NewWatcher(src, WithSleep(rec.sleep))

	_, err := w.PollStatus(context.Background(), "0.0.2@1.2", 3, time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfirmationTimeout)

	var lerr *Error
	require.True(t, errors.As(err, &lerr))
	assert.Equal(t, "0.0.2@1.2", lerr.TxID)

	// three queries, no sleep after the last one
	assert.Equal(t, 3, src.calls)
	assert.Len(t, rec.delays, 2)
}

func TestPollStatus_TransportErrorsRetry(t *testing.T) {
	t.Parallel()

	boom := func() (*TxStatus, error) { return nil, errors.New("connection reset") }
	src := &scriptedSource{responses: []func() (*TxStatus, error){boom, result("SUCCESS")}}
	w := NewWatcher(src, WithSleep((&recordingSleep{}).sleep))

	conf, err := w.PollStatus(context.Background(), "0.0.2@1.2", 5, time.Second)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, conf.Outcome)
}

func TestPollStatus_Backoff(t *testing.T) {
	t.Parallel()

	src := &scriptedSource{}
	rec := &recordingSleep{}
	w := NewWatcher(src, WithSleep(rec.sleep), WithBackoff(2, 5*time.Second))

	_, err := w.PollStatus(context.Background(), "0.0.2@1.2", 5, time.Second)
	assert.ErrorIs(t, err, ErrConfirmationTimeout)
	assert.Equal(t, []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second,
	}, rec.delays)
}

func TestPollStatus_CancelledContext(t *testing.T) {
	t.Parallel()

	src := &scriptedSource{}
	w := NewWatcher(src)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := w.PollStatus(ctx, "0.0.2@1.2", 5, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWaitForBaseline(t *testing.T) {
	t.Parallel()

	rec := &recordingSleep{}
	w := NewWatcher(&scriptedSource{}, WithSleep(rec.sleep))

	require.NoError(t, w.WaitForBaseline(context.Background(), 5*time.Second))
	require.NoError(t, w.WaitForBaseline(context.Background(), 0))
	assert.Equal(t, []time.Duration{5 * time.Second}, rec.delays)
}

package jobs

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/forgo/canvas/internal/ledger"
	"github.com/forgo/canvas/internal/model"
	"github.com/forgo/canvas/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// emptyQueueStore reports an empty reconciliation queue; other store methods
// are never reached
type emptyQueueStore struct {
	service.SettlementStore
	lists atomic.Int32
}

func (s *emptyQueueStore) ListAttemptsForReconciliation(ctx context.Context, grace time.Duration, limit int) ([]*model.PurchaseAttempt, error) {
	s.lists.Add(1)
	return nil, nil
}

type noStatus struct{}

func (noStatus) TransactionStatus(ctx context.Context, txID string) (*ledger.TxStatus, error) {
	return nil, ledger.ErrNotFoundYet
}

func newTestReconciler(store service.SettlementStore, interval time.Duration) *Reconciler {
	svc := service.NewReconcileService(service.ReconcileServiceConfig{Store: store, Status: noStatus{}})
	return NewReconciler(svc, interval)
}

func TestReconciler_RunOnce(t *testing.T) {
	store := &emptyQueueStore{}
	r := newTestReconciler(store, 0)

	report, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Scanned)
	assert.EqualValues(t, 1, store.lists.Load())
	assert.Equal(t, time.Minute, r.interval)
}

func TestReconciler_StartStop(t *testing.T) {
	store := &emptyQueueStore{}
	r := newTestReconciler(store, 10*time.Millisecond)
	r.startDelay = time.Millisecond

	assert.False(t, r.IsRunning())
	r.Start()
	r.Start()
	assert.True(t, r.IsRunning())

	require.Eventually(t, func() bool { return store.lists.Load() >= 2 }, time.Second, 5*time.Millisecond)

	r.Stop()
	assert.False(t, r.IsRunning())
	r.Stop()
}

func TestReconciler_StopBeforeFirstPass(t *testing.T) {
	store := &emptyQueueStore{}
	r := newTestReconciler(store, time.Hour)

	r.Start()
	r.Stop()
	assert.EqualValues(t, 0, store.lists.Load())
}

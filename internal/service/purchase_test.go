package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/forgo/canvas/internal/database"
	"github.com/forgo/canvas/internal/ledger"
	"github.com/forgo/canvas/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSettlementStore struct {
	mu       sync.Mutex
	assets   map[string]*model.AssetForPurchase
	sales    []*model.SaleRecord
	attempts map[string]*model.PurchaseAttempt
	history  map[string][]model.AttemptStatus

	getAssetErr      error
	createAttemptErr error
	commitErr        error
	commitCalls      int
	pending          []*model.PurchaseAttempt
}

func newMockSettlementStore() *mockSettlementStore {
	return &mockSettlementStore{
		assets:   make(map[string]*model.AssetForPurchase),
		attempts: make(map[string]*model.PurchaseAttempt),
		history:  make(map[string][]model.AttemptStatus),
	}
}

func (m *mockSettlementStore) GetAssetForPurchase(ctx context.Context, assetID string) (*model.AssetForPurchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getAssetErr != nil {
		return nil, m.getAssetErr
	}
	a, ok := m.assets[assetID]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (m *mockSettlementStore) UpdateAssetOwnership(ctx context.Context, assetID, newOwnerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assets[assetID]
	if !ok {
		return errors.New("asset not found")
	}
	a.OwnerID = newOwnerID
	a.Listed = false
	return nil
}

func (m *mockSettlementStore) InsertSaleRecord(ctx context.Context, sale *model.SaleRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertSale(sale)
}

func (m *mockSettlementStore) insertSale(sale *model.SaleRecord) error {
	for _, s := range m.sales {
		if s.TransactionID == sale.TransactionID {
			return database.ErrDuplicate
		}
	}
	m.sales = append(m.sales, sale)
	return nil
}

func (m *mockSettlementStore) FindRecentSale(ctx context.Context, assetID, buyerID string, window time.Duration) (*model.SaleRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sales {
		if s.AssetID == assetID && s.BuyerID == buyerID && time.Since(s.CreatedOn) <= window {
			return s, nil
		}
	}
	return nil, nil
}

func (m *mockSettlementStore) GetSaleByTransactionID(ctx context.Context, txID string) (*model.SaleRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sales {
		if s.TransactionID == txID {
			return s, nil
		}
	}
	return nil, nil
}

func (m *mockSettlementStore) CreateAttempt(ctx context.Context, attempt *model.PurchaseAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createAttemptErr != nil {
		return m.createAttemptErr
	}
	attempt.CreatedOn = time.Now()
	attempt.UpdatedOn = attempt.CreatedOn
	cp := *attempt
	m.attempts[attempt.ID] = &cp
	m.history[attempt.ID] = append(m.history[attempt.ID], attempt.Status)
	return nil
}

func (m *mockSettlementStore) UpdateAttempt(ctx context.Context, attempt *model.PurchaseAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *attempt
	m.attempts[attempt.ID] = &cp
	m.history[attempt.ID] = append(m.history[attempt.ID], attempt.Status)
	return nil
}

func (m *mockSettlementStore) FindRecentAttempt(ctx context.Context, assetID, buyerID string, window time.Duration) (*model.PurchaseAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.attempts {
		if a.AssetID == assetID && a.BuyerID == buyerID && time.Since(a.CreatedOn) <= window {
			return a, nil
		}
	}
	return nil, nil
}

func (m *mockSettlementStore) ListAttemptsForReconciliation(ctx context.Context, grace time.Duration, limit int) ([]*model.PurchaseAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending, nil
}

func (m *mockSettlementStore) CommitSale(ctx context.Context, attempt *model.PurchaseAttempt, sale *model.SaleRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commitCalls++
	if m.commitErr != nil {
		return m.commitErr
	}
	if err := m.insertSale(sale); err != nil {
		return err
	}
	if a, ok := m.assets[sale.AssetID]; ok {
		a.OwnerID = sale.BuyerID
		a.Listed = false
	}
	attempt.Status = model.AttemptPersisted
	cp := *attempt
	m.attempts[attempt.ID] = &cp
	m.history[attempt.ID] = append(m.history[attempt.ID], attempt.Status)
	return nil
}

func (m *mockSettlementStore) onlyAttempt(t *testing.T) (*model.PurchaseAttempt, []model.AttemptStatus) {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.Len(t, m.attempts, 1)
	for id, a := range m.attempts {
		return a, m.history[id]
	}
	return nil, nil
}

type mockGateway struct {
	mu     sync.Mutex
	orders []ledger.TransferOrder
	txID   string
	err    error
	block  chan struct{}
}

func (g *mockGateway) Submit(ctx context.Context, order ledger.TransferOrder) (*ledger.Submission, error) {
	if g.block != nil {
		<-g.block
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.orders = append(g.orders, order)
	if g.err != nil {
		return nil, g.err
	}
	return &ledger.Submission{TransactionID: g.txID, SubmittedAt: time.Now()}, nil
}

type mockWatcher struct {
	conf       *ledger.Confirmation
	err        error
	ctxErrSeen error
}

func (w *mockWatcher) WaitForBaseline(ctx context.Context, d time.Duration) error {
	return nil
}

func (w *mockWatcher) PollStatus(ctx context.Context, txID string, maxRetries int, delay time.Duration) (*ledger.Confirmation, error) {
	w.ctxErrSeen = ctx.Err()
	if w.err != nil {
		return nil, w.err
	}
	return w.conf, nil
}

const (
	testTxID     = "0.0.1001@1700000000.000000001"
	testTreasury = "0.0.98"
)

type purchaseFixture struct {
	svc     *PurchaseService
	store   *mockSettlementStore
	users   *mockUserRepo
	gateway *mockGateway
	watcher *mockWatcher
	buyer   *model.User
	seller  *model.User
}

func newPurchaseFixture(t *testing.T) *purchaseFixture {
	t.Helper()
	store := newMockSettlementStore()
	users := newMockUserRepo()
	gateway := &mockGateway{txID: testTxID}
	watcher := &mockWatcher{conf: &ledger.Confirmation{Outcome: ledger.StatusSuccess, Result: ledger.ResultSuccess, Attempts: 1}}

	buyer := users.add(&model.User{ID: "user-buyer", WalletAddress: "0.0.2001", Role: model.UserRoleBuyer})
	seller := users.add(&model.User{ID: "user-seller", WalletAddress: "0.0.3001", Role: model.UserRoleArtist})

	price := dec("100")
	store.assets["asset-1"] = &model.AssetForPurchase{
		ID:           "asset-1",
		OwnerID:      seller.ID,
		OwnerWallet:  seller.WalletAddress,
		TokenID:      "0.0.9001",
		SerialNumber: 7,
		Listed:       true,
		Price:        &price,
	}

	ids := 0
	svc := NewPurchaseService(PurchaseServiceConfig{
		Store:    store,
		Users:    users,
		Gateway:  gateway,
		Watcher:  watcher,
		Treasury: testTreasury,
		NewID: func() string {
			ids++
			return "id-" + string(rune('a'+ids))
		},
	})

	return &purchaseFixture{
		svc:     svc,
		store:   store,
		users:   users,
		gateway: gateway,
		watcher: watcher,
		buyer:   buyer,
		seller:  seller,
	}
}

func requireSettlementError(t *testing.T, err error, state PurchaseState) *SettlementError {
	t.Helper()
	var serr *SettlementError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, state, serr.State)
	return serr
}

func TestPurchase_HappyPath(t *testing.T) {
	f := newPurchaseFixture(t)

	res, err := f.svc.Purchase(context.Background(), "asset-1", f.buyer.ID, dec("100"))
	require.NoError(t, err)

	assert.Equal(t, []PurchaseState{
		StateValidating, StatePlanComputed, StateSubmitted,
		StateAwaitingConfirmation, StateConfirmed, StatePersisted,
	}, res.States)
	assert.Equal(t, testTxID, res.TransactionID)

	require.NotNil(t, res.Sale)
	assert.True(t, dec("100").Equal(res.Sale.GrossPrice))
	assert.True(t, dec("2").Equal(res.Sale.FeeAmount))
	assert.True(t, dec("98").Equal(res.Sale.SellerAmount))
	assert.Equal(t, f.seller.ID, res.Sale.SellerID)
	assert.Equal(t, f.buyer.ID, res.Sale.BuyerID)
	assert.Equal(t, testTxID, res.Sale.TransactionID)

	require.Len(t, f.gateway.orders, 1)
	order := f.gateway.orders[0]
	assert.Equal(t, "0.0.2001", order.Buyer)
	assert.Equal(t, "0.0.3001", order.Seller)
	assert.Equal(t, testTreasury, order.Treasury)
	assert.Equal(t, "0.0.9001", order.TokenID)
	assert.EqualValues(t, 7, order.SerialNumber)
	assert.True(t, order.FeeAmount.Add(order.SellerAmount).Equal(order.GrossPrice))

	asset := f.store.assets["asset-1"]
	assert.Equal(t, f.buyer.ID, asset.OwnerID)
	assert.False(t, asset.Listed)

	_, history := f.store.onlyAttempt(t)
	assert.Equal(t, []model.AttemptStatus{
		model.AttemptSubmitting, model.AttemptSubmitted, model.AttemptConfirmed, model.AttemptPersisted,
	}, history)
}

func TestPurchase_PriceWithinTolerance(t *testing.T) {
	for _, expected := range []string{"100.005", "99.995", "100.01", "99.99"} {
		t.Run(expected, func(t *testing.T) {
			f := newPurchaseFixture(t)

			res, err := f.svc.Purchase(context.Background(), "asset-1", f.buyer.ID, dec(expected))
			require.NoError(t, err)
			// the listed price settles, not the buyer's figure
			assert.True(t, dec("100").Equal(res.Sale.GrossPrice))
		})
	}
}

func TestPurchase_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(f *purchaseFixture)
		assetID string
		buyer   string
		price   string
		want    error
	}{
		{name: "non-positive price", price: "0", want: ErrInvalidPrice},
		{name: "unknown buyer", buyer: "user-ghost", want: ErrBuyerNotFound},
		{name: "unknown asset", assetID: "asset-404", want: ErrAssetNotFound},
		{
			name:  "not listed",
			setup: func(f *purchaseFixture) { f.store.assets["asset-1"].Listed = false },
			want:  ErrAssetNotListed,
		},
		{
			name:  "no price",
			setup: func(f *purchaseFixture) { f.store.assets["asset-1"].Price = nil },
			want:  ErrAssetNotPriced,
		},
		{name: "price moved", price: "100.02", want: ErrPriceChanged},
		{name: "expected far below listing", price: "98.5", want: ErrPriceChanged},
		{name: "just past tolerance", price: "99.98", want: ErrPriceChanged},
		{name: "self purchase", buyer: "user-seller", want: ErrSelfPurchase},
		{
			name: "over-precise listing",
			setup: func(f *purchaseFixture) {
				p := dec("100.000000001")
				f.store.assets["asset-1"].Price = &p
			},
			want: ErrInvalidPrice,
		},
		{
			name: "recent sale",
			setup: func(f *purchaseFixture) {
				f.store.sales = append(f.store.sales, &model.SaleRecord{
					AssetID: "asset-1", BuyerID: "user-buyer", TransactionID: "0.0.1@1.1", CreatedOn: time.Now().Add(-time.Minute),
				})
			},
			want: ErrDuplicateInFlight,
		},
		{
			name: "recent failed attempt",
			setup: func(f *purchaseFixture) {
				f.store.attempts["old"] = &model.PurchaseAttempt{
					ID: "old", AssetID: "asset-1", BuyerID: "user-buyer", Status: model.AttemptFailed, CreatedOn: time.Now().Add(-4 * time.Minute),
				}
			},
			want: ErrDuplicateInFlight,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPurchaseFixture(t)
			if tt.setup != nil {
				tt.setup(f)
			}
			assetID, buyer, price := "asset-1", f.buyer.ID, "100"
			if tt.assetID != "" {
				assetID = tt.assetID
			}
			if tt.buyer != "" {
				buyer = tt.buyer
			}
			if tt.price != "" {
				price = tt.price
			}

			_, err := f.svc.Purchase(context.Background(), assetID, buyer, dec(price))
			assert.ErrorIs(t, err, tt.want)
			serr := requireSettlementError(t, err, StateRejected)
			assert.Empty(t, serr.TransactionID)
			assert.Empty(t, f.gateway.orders, "no transfer may be submitted")
		})
	}
}

func TestPurchase_AttemptOutsideWindowIsIgnored(t *testing.T) {
	f := newPurchaseFixture(t)
	f.store.attempts["old"] = &model.PurchaseAttempt{
		ID: "old", AssetID: "asset-1", BuyerID: f.buyer.ID, Status: model.AttemptFailed, CreatedOn: time.Now().Add(-6 * time.Minute),
	}

	_, err := f.svc.Purchase(context.Background(), "asset-1", f.buyer.ID, dec("100"))
	assert.NoError(t, err)
}

func TestPurchase_AttemptNotRecorded(t *testing.T) {
	f := newPurchaseFixture(t)
	f.store.createAttemptErr = errors.New("disk full")

	_, err := f.svc.Purchase(context.Background(), "asset-1", f.buyer.ID, dec("100"))
	requireSettlementError(t, err, StateSettlementFailed)
	assert.Empty(t, f.gateway.orders)
}

func TestPurchase_StoreErrorDuringValidation(t *testing.T) {
	f := newPurchaseFixture(t)
	boom := errors.New("db unavailable")
	f.store.getAssetErr = boom

	_, err := f.svc.Purchase(context.Background(), "asset-1", f.buyer.ID, dec("100"))
	assert.ErrorIs(t, err, boom)
	requireSettlementError(t, err, StateRejected)
}

func TestPurchase_SubmitFailure(t *testing.T) {
	f := newPurchaseFixture(t)
	f.gateway.err = &ledger.Error{Op: "submit", Status: "INSUFFICIENT_PAYER_BALANCE", Err: ledger.ErrInsufficientBalance}

	_, err := f.svc.Purchase(context.Background(), "asset-1", f.buyer.ID, dec("100"))
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	serr := requireSettlementError(t, err, StateSettlementFailed)
	assert.Equal(t, []PurchaseState{StateValidating, StatePlanComputed, StateSettlementFailed}, serr.States)

	attempt, _ := f.store.onlyAttempt(t)
	assert.Equal(t, model.AttemptFailed, attempt.Status)
	require.NotNil(t, attempt.FailureReason)
	assert.Empty(t, f.store.sales)
	assert.Equal(t, f.seller.ID, f.store.assets["asset-1"].OwnerID)
}

func TestPurchase_LedgerRejectsTransfer(t *testing.T) {
	f := newPurchaseFixture(t)
	f.watcher.conf = &ledger.Confirmation{Outcome: ledger.StatusFailed, Result: "INVALID_SIGNATURE", Attempts: 2}

	_, err := f.svc.Purchase(context.Background(), "asset-1", f.buyer.ID, dec("100"))
	assert.ErrorIs(t, err, ledger.ErrInvalidSignature)
	serr := requireSettlementError(t, err, StateSettlementFailed)
	assert.Equal(t, testTxID, serr.TransactionID)

	attempt, _ := f.store.onlyAttempt(t)
	assert.Equal(t, model.AttemptFailed, attempt.Status)
	assert.Empty(t, f.store.sales)
}

func TestPurchase_ConfirmationTimeout(t *testing.T) {
	f := newPurchaseFixture(t)
	f.watcher.err = &ledger.Error{Op: "confirm", TxID: testTxID, Err: ledger.ErrConfirmationTimeout}

	_, err := f.svc.Purchase(context.Background(), "asset-1", f.buyer.ID, dec("100"))
	assert.ErrorIs(t, err, ledger.ErrConfirmationTimeout)
	serr := requireSettlementError(t, err, StateSettlementFailed)
	assert.Equal(t, testTxID, serr.TransactionID)
	assert.Equal(t, []PurchaseState{
		StateValidating, StatePlanComputed, StateSubmitted, StateAwaitingConfirmation, StateSettlementFailed,
	}, serr.States)

	attempt, _ := f.store.onlyAttempt(t)
	assert.Equal(t, model.AttemptTimedOut, attempt.Status)
	assert.True(t, attempt.Status.NeedsReconciliation())
}

func TestPurchase_PersistenceFailureRequiresReconciliation(t *testing.T) {
	f := newPurchaseFixture(t)
	f.store.commitErr = errors.New("connection reset")

	_, err := f.svc.Purchase(context.Background(), "asset-1", f.buyer.ID, dec("100"))
	assert.ErrorIs(t, err, ErrReconciliationRequired)
	serr := requireSettlementError(t, err, StateSettlementFailed)
	assert.Equal(t, testTxID, serr.TransactionID)
	assert.Contains(t, serr.States, StateConfirmed)

	attempt, _ := f.store.onlyAttempt(t)
	assert.Equal(t, model.AttemptReconcileRequired, attempt.Status)
	require.NotNil(t, attempt.TransactionID)
	assert.Equal(t, testTxID, *attempt.TransactionID)
}

func TestPurchase_SaleAlreadyRecordedForTransaction(t *testing.T) {
	f := newPurchaseFixture(t)
	existing := &model.SaleRecord{ID: "sale-prior", AssetID: "asset-1", BuyerID: "someone", TransactionID: testTxID, CreatedOn: time.Now().Add(-time.Hour)}
	f.store.sales = append(f.store.sales, existing)

	res, err := f.svc.Purchase(context.Background(), "asset-1", f.buyer.ID, dec("100"))
	require.NoError(t, err)
	assert.Equal(t, existing, res.Sale)

	attempt, _ := f.store.onlyAttempt(t)
	assert.Equal(t, model.AttemptPersisted, attempt.Status)
}

func TestPurchase_IgnoresCancellationAfterSubmit(t *testing.T) {
	f := newPurchaseFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	f.gateway.block = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Purchase(ctx, "asset-1", f.buyer.ID, dec("100"))
		done <- err
	}()

	cancel()
	close(f.gateway.block)

	require.NoError(t, <-done)
	assert.NoError(t, f.watcher.ctxErrSeen)
	assert.Len(t, f.store.sales, 1)
}

func TestPurchase_ConcurrentPurchaseOfSameAsset(t *testing.T) {
	f := newPurchaseFixture(t)
	f.users.add(&model.User{ID: "user-buyer-2", WalletAddress: "0.0.2002", Role: model.UserRoleBuyer})
	f.gateway.block = make(chan struct{})

	first := make(chan error, 1)
	go func() {
		_, err := f.svc.Purchase(context.Background(), "asset-1", f.buyer.ID, dec("100"))
		first <- err
	}()

	require.Eventually(t, func() bool {
		f.store.mu.Lock()
		defer f.store.mu.Unlock()
		return len(f.store.attempts) == 1
	}, time.Second, 5*time.Millisecond)

	_, err := f.svc.Purchase(context.Background(), "asset-1", "user-buyer-2", dec("100"))
	assert.ErrorIs(t, err, ErrPurchaseInProgress)
	requireSettlementError(t, err, StateRejected)

	close(f.gateway.block)
	require.NoError(t, <-first)
}

func TestAssetLocks(t *testing.T) {
	locks := NewAssetLocks()

	require.True(t, locks.TryLock("a"))
	assert.False(t, locks.TryLock("a"))
	assert.True(t, locks.TryLock("b"))

	locks.Unlock("a")
	assert.True(t, locks.TryLock("a"))
}

func TestSettlementError_Message(t *testing.T) {
	err := &SettlementError{State: StateSettlementFailed, TransactionID: testTxID, Reason: ErrReconciliationRequired}
	assert.Contains(t, err.Error(), "settlement_failed")
	assert.Contains(t, err.Error(), testTxID)
	assert.True(t, errors.Is(err, ErrReconciliationRequired))
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/forgo/canvas/internal/database"
	"github.com/forgo/canvas/internal/ledger"
	"github.com/forgo/canvas/internal/metrics"
	"github.com/forgo/canvas/internal/model"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PurchaseState is a state of the purchase state machine
type PurchaseState string

const (
	StateValidating           PurchaseState = "validating"
	StatePlanComputed         PurchaseState = "plan_computed"
	StateSubmitted            PurchaseState = "submitted"
	StateAwaitingConfirmation PurchaseState = "awaiting_confirmation"
	StateConfirmed            PurchaseState = "confirmed"
	StatePersisted            PurchaseState = "persisted"
	StateRejected             PurchaseState = "rejected"
	StateSettlementFailed     PurchaseState = "settlement_failed"
)

// DuplicateWindow is the default span within which a repeated purchase of
// the same asset by the same buyer is refused
const DuplicateWindow = 5 * time.Minute

// SettlementStore defines the persistence the purchase flow depends on
type SettlementStore interface {
	GetAssetForPurchase(ctx context.Context, assetID string) (*model.AssetForPurchase, error)
	UpdateAssetOwnership(ctx context.Context, assetID, newOwnerID string) error
	InsertSaleRecord(ctx context.Context, sale *model.SaleRecord) error
	FindRecentSale(ctx context.Context, assetID, buyerID string, window time.Duration) (*model.SaleRecord, error)
	GetSaleByTransactionID(ctx context.Context, txID string) (*model.SaleRecord, error)

	CreateAttempt(ctx context.Context, attempt *model.PurchaseAttempt) error
	UpdateAttempt(ctx context.Context, attempt *model.PurchaseAttempt) error
	FindRecentAttempt(ctx context.Context, assetID, buyerID string, window time.Duration) (*model.PurchaseAttempt, error)
	ListAttemptsForReconciliation(ctx context.Context, grace time.Duration, limit int) ([]*model.PurchaseAttempt, error)

	// CommitSale moves ownership, appends the sale and marks the attempt
	// persisted as one unit
	CommitSale(ctx context.Context, attempt *model.PurchaseAttempt, sale *model.SaleRecord) error
}

// UserLookup resolves identities by id
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
}

// ConfirmationWatcher waits for a submitted transfer to reach consensus
type ConfirmationWatcher interface {
	WaitForBaseline(ctx context.Context, d time.Duration) error
	PollStatus(ctx context.Context, txID string, maxRetries int, delay time.Duration) (*ledger.Confirmation, error)
}

// PurchaseService settles purchases of listed assets on the ledger
type PurchaseService struct {
	store    SettlementStore
	users    UserLookup
	gateway  ledger.Gateway
	watcher  ConfirmationWatcher
	locks    *AssetLocks
	metrics  *metrics.Metrics
	logger   *slog.Logger
	treasury string

	baselineDelay   time.Duration
	maxRetries      int
	pollDelay       time.Duration
	duplicateWindow time.Duration

	now   func() time.Time
	newID func() string
}

// PurchaseServiceConfig holds configuration for the purchase service
type PurchaseServiceConfig struct {
	Store    SettlementStore
	Users    UserLookup
	Gateway  ledger.Gateway
	Watcher  ConfirmationWatcher
	Locks    *AssetLocks
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	Treasury string

	BaselineDelay   time.Duration // Default: 5s
	MaxRetries      int           // Default: 10
	PollDelay       time.Duration // Default: 2s
	DuplicateWindow time.Duration // Default: 5m

	Now   func() time.Time
	NewID func() string
}

// NewPurchaseService creates a new purchase service
func NewPurchaseService(cfg PurchaseServiceConfig) *PurchaseService {
	if cfg.BaselineDelay == 0 {
		cfg.BaselineDelay = 5 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 10
	}
	if cfg.PollDelay == 0 {
		cfg.PollDelay = 2 * time.Second
	}
	if cfg.DuplicateWindow == 0 {
		cfg.DuplicateWindow = DuplicateWindow
	}
	if cfg.Locks == nil {
		cfg.Locks = NewAssetLocks()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}

	return &PurchaseService{
		store:           cfg.Store,
		users:           cfg.Users,
		gateway:         cfg.Gateway,
		watcher:         cfg.Watcher,
		locks:           cfg.Locks,
		metrics:         cfg.Metrics,
		logger:          cfg.Logger,
		treasury:        cfg.Treasury,
		baselineDelay:   cfg.BaselineDelay,
		maxRetries:      cfg.MaxRetries,
		pollDelay:       cfg.PollDelay,
		duplicateWindow: cfg.DuplicateWindow,
		now:             cfg.Now,
		newID:           cfg.NewID,
	}
}

// PurchaseResult describes a settled and recorded purchase
type PurchaseResult struct {
	Sale          *model.SaleRecord
	TransactionID string
	States        []PurchaseState
}

// StateNames returns the visited states as strings
func (r *PurchaseResult) StateNames() []string {
	return stateNames(r.States)
}

func stateNames(states []PurchaseState) []string {
	names := make([]string, len(states))
	for i, s := range states {
		names[i] = string(s)
	}
	return names
}

// purchaseRun tracks one pass through the state machine
type purchaseRun struct {
	assetID string
	buyerID string
	txID    string
	states  []PurchaseState
}

func (r *purchaseRun) enter(s PurchaseState) {
	r.states = append(r.states, s)
}

func (r *purchaseRun) fail(state PurchaseState, reason error) *SettlementError {
	r.enter(state)
	return &SettlementError{
		State:         state,
		TransactionID: r.txID,
		Reason:        reason,
		States:        append([]PurchaseState(nil), r.states...),
	}
}

// Purchase buys assetID for buyerID at the listed price. expectedPrice is the
// price the buyer was shown. Every failure is a *SettlementError naming the
// state the purchase stopped in.
//
// Once the transfer has been submitted, the caller's cancellation is ignored:
// the ledger effect cannot be withdrawn, so confirmation and recording run to
// completion.
func (s *PurchaseService) Purchase(ctx context.Context, assetID, buyerID string, expectedPrice decimal.Decimal) (*PurchaseResult, error) {
	run := &purchaseRun{assetID: assetID, buyerID: buyerID}
	result, err := s.purchase(ctx, run, expectedPrice)

	terminal := StatePersisted
	var serr *SettlementError
	if errors.As(err, &serr) {
		terminal = serr.State
	}
	s.metrics.RecordPurchase(string(terminal), stateNames(run.states))

	if err != nil {
		s.logFailure(run, err)
		return nil, err
	}
	return result, nil
}

func (s *PurchaseService) purchase(ctx context.Context, run *purchaseRun, expectedPrice decimal.Decimal) (*PurchaseResult, error) {
	run.enter(StateValidating)

	if !s.locks.TryLock(run.assetID) {
		return nil, run.fail(StateRejected, ErrPurchaseInProgress)
	}
	defer s.locks.Unlock(run.assetID)

	buyer, asset, err := s.validate(ctx, run, expectedPrice)
	if err != nil {
		return nil, err
	}

	plan, err := ComputePlan(*asset.Price)
	if err != nil {
		return nil, run.fail(StateRejected, err)
	}
	run.enter(StatePlanComputed)

	attempt := &model.PurchaseAttempt{
		ID:           s.newID(),
		AssetID:      asset.ID,
		BuyerID:      buyer.ID,
		SellerID:     asset.OwnerID,
		GrossPrice:   plan.GrossPrice,
		FeeAmount:    plan.FeeAmount,
		SellerAmount: plan.SellerAmount,
		Status:       model.AttemptSubmitting,
	}
	if err := s.store.CreateAttempt(ctx, attempt); err != nil {
		return nil, run.fail(StateSettlementFailed, fmt.Errorf("record purchase attempt: %w", err))
	}

	// Past this point the transfer may land on the ledger
	ctx = context.WithoutCancel(ctx)

	sub, err := s.gateway.Submit(ctx, ledger.TransferOrder{
		Buyer:        buyer.WalletAddress,
		Seller:       asset.OwnerWallet,
		Treasury:     s.treasury,
		GrossPrice:   plan.GrossPrice,
		SellerAmount: plan.SellerAmount,
		FeeAmount:    plan.FeeAmount,
		TokenID:      asset.TokenID,
		SerialNumber: asset.SerialNumber,
		Memo:         "canvas purchase " + asset.NFTRef(),
	})
	if err != nil {
		s.markAttempt(ctx, attempt, model.AttemptFailed, err)
		return nil, run.fail(StateSettlementFailed, err)
	}

	run.txID = sub.TransactionID
	attempt.TransactionID = &sub.TransactionID
	s.markAttempt(ctx, attempt, model.AttemptSubmitted, nil)
	run.enter(StateSubmitted)

	run.enter(StateAwaitingConfirmation)
	conf, err := s.awaitConfirmation(ctx, sub)
	if err != nil {
		status := model.AttemptFailed
		if errors.Is(err, ledger.ErrConfirmationTimeout) {
			status = model.AttemptTimedOut
		}
		s.markAttempt(ctx, attempt, status, err)
		return nil, run.fail(StateSettlementFailed, err)
	}
	if conf.Outcome != ledger.StatusSuccess {
		reason := &ledger.Error{Op: "confirm", Status: conf.Result, TxID: sub.TransactionID, Err: conf.Reason()}
		s.markAttempt(ctx, attempt, model.AttemptFailed, reason)
		return nil, run.fail(StateSettlementFailed, reason)
	}

	s.markAttempt(ctx, attempt, model.AttemptConfirmed, nil)
	run.enter(StateConfirmed)

	sale, err := s.commit(ctx, attempt)
	if err != nil {
		s.markAttempt(ctx, attempt, model.AttemptReconcileRequired, err)
		return nil, run.fail(StateSettlementFailed, fmt.Errorf("%w: %v", ErrReconciliationRequired, err))
	}
	run.enter(StatePersisted)

	s.logger.Info("purchase settled",
		slog.String("asset_id", run.assetID),
		slog.String("buyer_id", run.buyerID),
		slog.String("tx_id", run.txID),
		slog.String("gross", plan.GrossPrice.String()))

	return &PurchaseResult{
		Sale:          sale,
		TransactionID: sub.TransactionID,
		States:        run.states,
	}, nil
}

// validate loads and checks everything a purchase depends on. No side
// effects are attempted before it passes.
func (s *PurchaseService) validate(ctx context.Context, run *purchaseRun, expectedPrice decimal.Decimal) (*model.User, *model.AssetForPurchase, error) {
	if !expectedPrice.IsPositive() {
		return nil, nil, run.fail(StateRejected, ErrInvalidPrice)
	}

	buyer, err := s.users.GetByID(ctx, run.buyerID)
	if err != nil {
		return nil, nil, run.fail(StateRejected, err)
	}
	if buyer == nil {
		return nil, nil, run.fail(StateRejected, ErrBuyerNotFound)
	}

	asset, err := s.store.GetAssetForPurchase(ctx, run.assetID)
	if err != nil {
		return nil, nil, run.fail(StateRejected, err)
	}
	switch {
	case asset == nil:
		return nil, nil, run.fail(StateRejected, ErrAssetNotFound)
	case !asset.Listed:
		return nil, nil, run.fail(StateRejected, ErrAssetNotListed)
	case asset.Price == nil:
		return nil, nil, run.fail(StateRejected, ErrAssetNotPriced)
	case !WithinTolerance(expectedPrice, *asset.Price):
		return nil, nil, run.fail(StateRejected, ErrPriceChanged)
	case asset.OwnerID == buyer.ID || asset.OwnerWallet == buyer.WalletAddress:
		return nil, nil, run.fail(StateRejected, ErrSelfPurchase)
	}

	recentSale, err := s.store.FindRecentSale(ctx, asset.ID, buyer.ID, s.duplicateWindow)
	if err != nil {
		return nil, nil, run.fail(StateRejected, err)
	}
	if recentSale != nil {
		return nil, nil, run.fail(StateRejected, ErrDuplicateInFlight)
	}

	recentAttempt, err := s.store.FindRecentAttempt(ctx, asset.ID, buyer.ID, s.duplicateWindow)
	if err != nil {
		return nil, nil, run.fail(StateRejected, err)
	}
	if recentAttempt != nil {
		return nil, nil, run.fail(StateRejected, ErrDuplicateInFlight)
	}

	return buyer, asset, nil
}

func (s *PurchaseService) awaitConfirmation(ctx context.Context, sub *ledger.Submission) (*ledger.Confirmation, error) {
	if err := s.watcher.WaitForBaseline(ctx, s.baselineDelay); err != nil {
		return nil, err
	}
	conf, err := s.watcher.PollStatus(ctx, sub.TransactionID, s.maxRetries, s.pollDelay)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordConfirmation(s.now().Sub(sub.SubmittedAt))
	return conf, nil
}

// commit records the confirmed sale. A sale already recorded for the
// transaction, by a concurrent reconciliation, counts as success.
func (s *PurchaseService) commit(ctx context.Context, attempt *model.PurchaseAttempt) (*model.SaleRecord, error) {
	sale := attempt.SaleRecord(s.newID(), s.now())
	err := s.store.CommitSale(ctx, attempt, sale)
	if err == nil {
		return sale, nil
	}
	if !errors.Is(err, database.ErrDuplicate) {
		return nil, err
	}

	existing, lookupErr := s.store.GetSaleByTransactionID(ctx, sale.TransactionID)
	if lookupErr != nil || existing == nil {
		return nil, err
	}
	s.markAttempt(ctx, attempt, model.AttemptPersisted, nil)
	return existing, nil
}

// markAttempt records an attempt transition. Store failures are logged, not
// returned.
func (s *PurchaseService) markAttempt(ctx context.Context, attempt *model.PurchaseAttempt, status model.AttemptStatus, reason error) {
	attempt.Status = status
	attempt.FailureReason = nil
	if reason != nil {
		msg := reason.Error()
		attempt.FailureReason = &msg
	}
	if err := s.store.UpdateAttempt(ctx, attempt); err != nil {
		s.logger.Error("failed to update purchase attempt",
			slog.String("attempt_id", attempt.ID),
			slog.String("status", string(status)),
			slog.String("error", err.Error()))
	}
}

func (s *PurchaseService) logFailure(run *purchaseRun, err error) {
	level := slog.LevelWarn
	if errors.Is(err, ErrReconciliationRequired) {
		level = slog.LevelError
	}
	s.logger.Log(context.Background(), level, "purchase failed",
		slog.String("asset_id", run.assetID),
		slog.String("buyer_id", run.buyerID),
		slog.String("tx_id", run.txID),
		slog.String("error", err.Error()))
}

// AssetLocks serializes purchases per asset within this process
type AssetLocks struct {
	mu     sync.Mutex
	locked map[string]struct{}
}

// NewAssetLocks creates an empty lock table
func NewAssetLocks() *AssetLocks {
	return &AssetLocks{locked: make(map[string]struct{})}
}

// TryLock takes the lock for assetID without blocking
func (l *AssetLocks) TryLock(assetID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, held := l.locked[assetID]; held {
		return false
	}
	l.locked[assetID] = struct{}{}
	return true
}

// Unlock releases the lock for assetID
func (l *AssetLocks) Unlock(assetID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.locked, assetID)
}

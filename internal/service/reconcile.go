package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/forgo/canvas/internal/database"
	"github.com/forgo/canvas/internal/ledger"
	"github.com/forgo/canvas/internal/metrics"
	"github.com/forgo/canvas/internal/model"
	"github.com/google/uuid"
)

// ReconcileService finishes purchases whose transfer reached the ledger but
// whose outcome was never recorded
type ReconcileService struct {
	store   SettlementStore
	status  ledger.StatusSource
	grace   time.Duration
	batch   int
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

// ReconcileServiceConfig holds configuration for the reconcile service
type ReconcileServiceConfig struct {
	Store   SettlementStore
	Status  ledger.StatusSource
	Grace   time.Duration // Default: 2m
	Batch   int           // Default: 50
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	Now     func() time.Time
	NewID   func() string
}

// NewReconcileService creates a new reconcile service
func NewReconcileService(cfg ReconcileServiceConfig) *ReconcileService {
	if cfg.Grace == 0 {
		cfg.Grace = 2 * time.Minute
	}
	if cfg.Batch == 0 {
		cfg.Batch = 50
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
	return &ReconcileService{
		store:   cfg.Store,
		status:  cfg.Status,
		grace:   cfg.Grace,
		batch:   cfg.Batch,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		now:     cfg.Now,
		newID:   cfg.NewID,
	}
}

// ReconcileReport summarizes one reconciliation pass
type ReconcileReport struct {
	Scanned   int
	Persisted int
	Failed    int
	Pending   int
}

// Run examines unresolved attempts once. Attempts whose status cannot be
// determined yet are left for the next pass.
func (s *ReconcileService) Run(ctx context.Context) (*ReconcileReport, error) {
	attempts, err := s.store.ListAttemptsForReconciliation(ctx, s.grace, s.batch)
	if err != nil {
		return nil, err
	}

	report := &ReconcileReport{Scanned: len(attempts)}
	for _, attempt := range attempts {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		outcome := s.reconcile(ctx, attempt)
		s.metrics.RecordReconciliation(outcome)
		switch outcome {
		case "persisted":
			report.Persisted++
		case "failed":
			report.Failed++
		default:
			report.Pending++
		}
	}

	if report.Scanned > 0 {
		s.logger.Info("reconciliation pass complete",
			slog.Int("scanned", report.Scanned),
			slog.Int("persisted", report.Persisted),
			slog.Int("failed", report.Failed),
			slog.Int("pending", report.Pending))
	}
	return report, nil
}

func (s *ReconcileService) reconcile(ctx context.Context, attempt *model.PurchaseAttempt) string {
	if attempt.TransactionID == nil {
		return "pending"
	}
	txID := *attempt.TransactionID
	log := s.logger.With(
		slog.String("attempt_id", attempt.ID),
		slog.String("asset_id", attempt.AssetID),
		slog.String("tx_id", txID))

	existing, err := s.store.GetSaleByTransactionID(ctx, txID)
	if err != nil {
		log.Warn("reconcile: sale lookup failed", slog.String("error", err.Error()))
		return "pending"
	}
	if existing != nil {
		s.setStatus(ctx, attempt, model.AttemptPersisted, "")
		return "persisted"
	}

	status, err := s.status.TransactionStatus(ctx, txID)
	if err != nil {
		if !errors.Is(err, ledger.ErrNotFoundYet) {
			log.Warn("reconcile: status query failed", slog.String("error", err.Error()))
		}
		return "pending"
	}

	if !status.Succeeded() {
		s.setStatus(ctx, attempt, model.AttemptFailed, status.Result)
		log.Info("reconcile: transfer failed on ledger", slog.String("result", status.Result))
		return "failed"
	}

	sale := attempt.SaleRecord(s.newID(), s.now())
	if err := s.store.CommitSale(ctx, attempt, sale); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			s.setStatus(ctx, attempt, model.AttemptPersisted, "")
			return "persisted"
		}
		log.Error("reconcile: commit failed", slog.String("error", err.Error()))
		s.setStatus(ctx, attempt, model.AttemptReconcileRequired, err.Error())
		return "pending"
	}

	log.Info("reconcile: sale recorded")
	return "persisted"
}

func (s *ReconcileService) setStatus(ctx context.Context, attempt *model.PurchaseAttempt, status model.AttemptStatus, reason string) {
	attempt.Status = status
	attempt.FailureReason = nil
	if reason != "" {
		attempt.FailureReason = &reason
	}
	if err := s.store.UpdateAttempt(ctx, attempt); err != nil {
		s.logger.Error("reconcile: failed to update attempt",
			slog.String("attempt_id", attempt.ID),
			slog.String("error", err.Error()))
	}
}

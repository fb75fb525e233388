package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/forgo/canvas/internal/database"
	"github.com/forgo/canvas/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// SettlementStore persists assets, purchase attempts and sales
type SettlementStore struct {
	pool *pgxpool.Pool
}

// NewSettlementStore creates a Postgres-backed settlement store
func NewSettlementStore(pool *pgxpool.Pool) *SettlementStore {
	return &SettlementStore{pool: pool}
}

// GetAssetForPurchase loads the purchase projection of an asset or nil
func (s *SettlementStore) GetAssetForPurchase(ctx context.Context, assetID string) (*model.AssetForPurchase, error) {
	var a model.AssetForPurchase
	var price decimal.NullDecimal
	err := s.pool.QueryRow(ctx, `
		SELECT a.id, a.owner_id, u.wallet_address, a.token_id, a.serial_number, a.listed, a.price
		FROM assets a
		JOIN users u ON u.id = a.owner_id
		WHERE a.id = $1`, assetID,
	).Scan(&a.ID, &a.OwnerID, &a.OwnerWallet, &a.TokenID, &a.SerialNumber, &a.Listed, &price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if price.Valid {
		a.Price = &price.Decimal
	}
	return &a, nil
}

// UpdateAssetOwnership transfers the asset, unlists it and clears its price
func (s *SettlementStore) UpdateAssetOwnership(ctx context.Context, assetID, newOwnerID string) error {
	return updateOwnership(ctx, s.pool, assetID, newOwnerID)
}

func updateOwnership(ctx context.Context, q querier, assetID, newOwnerID string) error {
	tag, err := q.Exec(ctx, `
		UPDATE assets SET owner_id = $2, listed = false, price = NULL, updated_on = now()
		WHERE id = $1`, assetID, newOwnerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("asset %s not found", assetID)
	}
	return nil
}

// InsertSaleRecord appends a sale; a second sale for the same transaction
// yields database.ErrDuplicate
func (s *SettlementStore) InsertSaleRecord(ctx context.Context, sale *model.SaleRecord) error {
	return insertSale(ctx, s.pool, sale)
}

func insertSale(ctx context.Context, q querier, sale *model.SaleRecord) error {
	err := q.QueryRow(ctx, `
		INSERT INTO sales (id, asset_id, seller_id, buyer_id, gross_price, fee_amount, seller_amount, transaction_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_on`,
		sale.ID, sale.AssetID, sale.SellerID, sale.BuyerID,
		sale.GrossPrice, sale.FeeAmount, sale.SellerAmount, sale.TransactionID, string(sale.Status),
	).Scan(&sale.CreatedOn)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: sale already recorded for transaction", database.ErrDuplicate)
		}
		return err
	}
	return nil
}

const saleColumns = `id, asset_id, seller_id, buyer_id, gross_price, fee_amount, seller_amount, transaction_id, status, created_on`

func scanSale(row pgx.Row) (*model.SaleRecord, error) {
	var sale model.SaleRecord
	var status string
	err := row.Scan(&sale.ID, &sale.AssetID, &sale.SellerID, &sale.BuyerID,
		&sale.GrossPrice, &sale.FeeAmount, &sale.SellerAmount, &sale.TransactionID, &status, &sale.CreatedOn)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	sale.Status = model.SaleStatus(status)
	return &sale, nil
}

// FindRecentSale returns the newest sale of assetID to buyerID within window, or nil
func (s *SettlementStore) FindRecentSale(ctx context.Context, assetID, buyerID string, window time.Duration) (*model.SaleRecord, error) {
	return scanSale(s.pool.QueryRow(ctx, `
		SELECT `+saleColumns+` FROM sales
		WHERE asset_id = $1 AND buyer_id = $2 AND created_on > now() - $3::interval
		ORDER BY created_on DESC
		LIMIT 1`, assetID, buyerID, window))
}

// GetSaleByTransactionID returns the sale recorded for a ledger transaction, or nil
func (s *SettlementStore) GetSaleByTransactionID(ctx context.Context, txID string) (*model.SaleRecord, error) {
	return scanSale(s.pool.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE transaction_id = $1`, txID))
}

// CreateAttempt records a purchase attempt before ledger submission
func (s *SettlementStore) CreateAttempt(ctx context.Context, a *model.PurchaseAttempt) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO purchase_attempts (id, asset_id, buyer_id, seller_id, gross_price, fee_amount, seller_amount, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_on, updated_on`,
		a.ID, a.AssetID, a.BuyerID, a.SellerID, a.GrossPrice, a.FeeAmount, a.SellerAmount, string(a.Status),
	).Scan(&a.CreatedOn, &a.UpdatedOn)
	return err
}

// UpdateAttempt persists status, transaction id and failure reason
func (s *SettlementStore) UpdateAttempt(ctx context.Context, a *model.PurchaseAttempt) error {
	return updateAttempt(ctx, s.pool, a)
}

func updateAttempt(ctx context.Context, q querier, a *model.PurchaseAttempt) error {
	_, err := q.Exec(ctx, `
		UPDATE purchase_attempts
		SET status = $2,
			transaction_id = COALESCE($3, transaction_id),
			failure_reason = $4,
			updated_on = now()
		WHERE id = $1`, a.ID, string(a.Status), a.TransactionID, a.FailureReason)
	return err
}

const attemptColumns = `id, asset_id, buyer_id, seller_id, gross_price, fee_amount, seller_amount, transaction_id, status, failure_reason, created_on, updated_on`

func scanAttempt(row pgx.Row) (*model.PurchaseAttempt, error) {
	var a model.PurchaseAttempt
	var status string
	err := row.Scan(&a.ID, &a.AssetID, &a.BuyerID, &a.SellerID, &a.GrossPrice, &a.FeeAmount, &a.SellerAmount,
		&a.TransactionID, &status, &a.FailureReason, &a.CreatedOn, &a.UpdatedOn)
	if err != nil {
		return nil, err
	}
	a.Status = model.AttemptStatus(status)
	return &a, nil
}

// FindRecentAttempt returns the newest attempt by buyerID on assetID within
// window, whatever its outcome, or nil
func (s *SettlementStore) FindRecentAttempt(ctx context.Context, assetID, buyerID string, window time.Duration) (*model.PurchaseAttempt, error) {
	a, err := scanAttempt(s.pool.QueryRow(ctx, `
		SELECT `+attemptColumns+` FROM purchase_attempts
		WHERE asset_id = $1 AND buyer_id = $2 AND created_on > now() - $3::interval
		ORDER BY created_on DESC
		LIMIT 1`, assetID, buyerID, window))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

// ListAttemptsForReconciliation returns unresolved attempts idle for at least grace
func (s *SettlementStore) ListAttemptsForReconciliation(ctx context.Context, grace time.Duration, limit int) ([]*model.PurchaseAttempt, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+attemptColumns+` FROM purchase_attempts
		WHERE status = ANY($1)
			AND transaction_id IS NOT NULL
			AND updated_on < now() - $2::interval
		ORDER BY updated_on ASC
		LIMIT $3`,
		[]string{
			string(model.AttemptSubmitted),
			string(model.AttemptConfirmed),
			string(model.AttemptTimedOut),
			string(model.AttemptReconcileRequired),
		}, grace, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []*model.PurchaseAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// CommitSale applies a confirmed purchase in one transaction: ownership moves
// to the buyer, the sale is appended and the attempt is marked persisted
func (s *SettlementStore) CommitSale(ctx context.Context, attempt *model.PurchaseAttempt, sale *model.SaleRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := updateOwnership(ctx, tx, sale.AssetID, sale.BuyerID); err != nil {
		return err
	}
	if err := insertSale(ctx, tx, sale); err != nil {
		return err
	}

	persisted := *attempt
	persisted.Status = model.AttemptPersisted
	persisted.FailureReason = nil
	if err := updateAttempt(ctx, tx, &persisted); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	attempt.Status = model.AttemptPersisted
	attempt.FailureReason = nil
	return nil
}

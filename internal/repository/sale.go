package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/forgo/canvas/internal/database"
	"github.com/forgo/canvas/internal/model"
)

// SaleRepository handles sale records and purchase attempts
type SaleRepository struct {
	db database.Database
}

// NewSaleRepository creates a new sale repository
func NewSaleRepository(db database.Database) *SaleRepository {
	return &SaleRepository{db: db}
}

// InsertSaleRecord appends a sale. Sales are unique per transaction id.
func (r *SaleRepository) InsertSaleRecord(ctx context.Context, sale *model.SaleRecord) error {
	query, vars := saleStatement(sale)
	if err := r.db.Execute(ctx, query, vars); err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: sale already recorded for transaction", database.ErrDuplicate)
		}
		return err
	}
	return nil
}

func saleStatement(sale *model.SaleRecord) (string, map[string]interface{}) {
	query := `
		CREATE type::record($id) CONTENT {
			asset: type::record($asset),
			seller: type::record($seller),
			buyer: type::record($buyer),
			gross_price: <decimal> $gross_price,
			fee_amount: <decimal> $fee_amount,
			seller_amount: <decimal> $seller_amount,
			transaction_id: $transaction_id,
			status: $status,
			created_on: time::now()
		}
	`
	return query, map[string]interface{}{
		"id":             recordID("sale", sale.ID),
		"asset":          recordID("asset", sale.AssetID),
		"seller":         recordID("user", sale.SellerID),
		"buyer":          recordID("user", sale.BuyerID),
		"gross_price":    sale.GrossPrice.String(),
		"fee_amount":     sale.FeeAmount.String(),
		"seller_amount":  sale.SellerAmount.String(),
		"transaction_id": sale.TransactionID,
		"status":         string(sale.Status),
	}
}

// FindRecentSale returns the newest sale of assetID to buyerID created within
// window, or nil
func (r *SaleRepository) FindRecentSale(ctx context.Context, assetID, buyerID string, window time.Duration) (*model.SaleRecord, error) {
	query := `
		SELECT * FROM sale
		WHERE asset = type::record($asset)
			AND buyer = type::record($buyer)
			AND created_on > time::now() - <duration> $window
		ORDER BY created_on DESC
		LIMIT 1
	`
	vars := map[string]interface{}{
		"asset":  recordID("asset", assetID),
		"buyer":  recordID("user", buyerID),
		"window": surrealDuration(window),
	}
	return r.getSale(ctx, query, vars)
}

// GetSaleByTransactionID returns the sale recorded for a ledger transaction, or nil
func (r *SaleRepository) GetSaleByTransactionID(ctx context.Context, txID string) (*model.SaleRecord, error) {
	query := `SELECT * FROM sale WHERE transaction_id = $transaction_id LIMIT 1`
	return r.getSale(ctx, query, map[string]interface{}{"transaction_id": txID})
}

func (r *SaleRepository) getSale(ctx context.Context, query string, vars map[string]interface{}) (*model.SaleRecord, error) {
	result, err := r.db.QueryOne(ctx, query, vars)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	data, err := asRecord(result)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return parseSale(data), nil
}

func parseSale(data map[string]interface{}) *model.SaleRecord {
	gross, _ := getDecimal(data, "gross_price")
	fee, _ := getDecimal(data, "fee_amount")
	seller, _ := getDecimal(data, "seller_amount")
	return &model.SaleRecord{
		ID:            convertSurrealID(data["id"]),
		AssetID:       convertSurrealID(data["asset"]),
		SellerID:      convertSurrealID(data["seller"]),
		BuyerID:       convertSurrealID(data["buyer"]),
		GrossPrice:    gross,
		FeeAmount:     fee,
		SellerAmount:  seller,
		TransactionID: getString(data, "transaction_id"),
		Status:        model.SaleStatus(getString(data, "status")),
		CreatedOn:     getTimeValue(data, "created_on"),
	}
}

// CreateAttempt records a purchase attempt before anything is sent to the ledger
func (r *SaleRepository) CreateAttempt(ctx context.Context, attempt *model.PurchaseAttempt) error {
	query := `
		CREATE type::record($id) CONTENT {
			asset: type::record($asset),
			buyer: type::record($buyer),
			seller: type::record($seller),
			gross_price: <decimal> $gross_price,
			fee_amount: <decimal> $fee_amount,
			seller_amount: <decimal> $seller_amount,
			status: $status,
			created_on: time::now(),
			updated_on: time::now()
		}
	`
	vars := map[string]interface{}{
		"id":            recordID("purchase_attempt", attempt.ID),
		"asset":         recordID("asset", attempt.AssetID),
		"buyer":         recordID("user", attempt.BuyerID),
		"seller":        recordID("user", attempt.SellerID),
		"gross_price":   attempt.GrossPrice.String(),
		"fee_amount":    attempt.FeeAmount.String(),
		"seller_amount": attempt.SellerAmount.String(),
		"status":        string(attempt.Status),
	}

	result, err := r.db.Query(ctx, query, vars)
	if err != nil {
		return err
	}
	if data, err := asRecord(firstOrNil(result)); err == nil {
		attempt.CreatedOn = getTimeValue(data, "created_on")
		attempt.UpdatedOn = attempt.CreatedOn
	}
	return nil
}

// UpdateAttempt persists the attempt's status, transaction id and failure reason
func (r *SaleRepository) UpdateAttempt(ctx context.Context, attempt *model.PurchaseAttempt) error {
	query, vars := attemptStatement(attempt)
	return r.db.Execute(ctx, query, vars)
}

func attemptStatement(attempt *model.PurchaseAttempt) (string, map[string]interface{}) {
	query := `
		UPDATE type::record($id) SET
			status = $status,
			transaction_id = IF $transaction_id IS NOT NULL THEN $transaction_id ELSE transaction_id END,
			failure_reason = IF $failure_reason IS NOT NULL THEN $failure_reason ELSE NONE END,
			updated_on = time::now()
	`
	return query, map[string]interface{}{
		"id":             recordID("purchase_attempt", attempt.ID),
		"status":         string(attempt.Status),
		"transaction_id": optional(attempt.TransactionID),
		"failure_reason": optional(attempt.FailureReason),
	}
}

// FindRecentAttempt returns the newest attempt by buyerID on assetID created
// within window, whatever its outcome, or nil
func (r *SaleRepository) FindRecentAttempt(ctx context.Context, assetID, buyerID string, window time.Duration) (*model.PurchaseAttempt, error) {
	query := `
		SELECT * FROM purchase_attempt
		WHERE asset = type::record($asset)
			AND buyer = type::record($buyer)
			AND created_on > time::now() - <duration> $window
		ORDER BY created_on DESC
		LIMIT 1
	`
	vars := map[string]interface{}{
		"asset":  recordID("asset", assetID),
		"buyer":  recordID("user", buyerID),
		"window": surrealDuration(window),
	}

	result, err := r.db.QueryOne(ctx, query, vars)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	data, err := asRecord(result)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return parseAttempt(data), nil
}

// ListAttemptsForReconciliation returns attempts whose ledger outcome may not
// be reflected in the store and that have not been touched for at least grace
func (r *SaleRepository) ListAttemptsForReconciliation(ctx context.Context, grace time.Duration, limit int) ([]*model.PurchaseAttempt, error) {
	query := `
		SELECT * FROM purchase_attempt
		WHERE status IN $statuses
			AND transaction_id != NONE
			AND updated_on < time::now() - <duration> $grace
		ORDER BY updated_on ASC
		LIMIT $limit
	`
	vars := map[string]interface{}{
		"statuses": []string{
			string(model.AttemptSubmitted),
			string(model.AttemptConfirmed),
			string(model.AttemptTimedOut),
			string(model.AttemptReconcileRequired),
		},
		"grace": surrealDuration(grace),
		"limit": limit,
	}

	result, err := r.db.Query(ctx, query, vars)
	if err != nil {
		return nil, err
	}

	rows := extractQueryResults(result)
	attempts := make([]*model.PurchaseAttempt, 0, len(rows))
	for _, row := range rows {
		attempts = append(attempts, parseAttempt(row))
	}
	return attempts, nil
}

func parseAttempt(data map[string]interface{}) *model.PurchaseAttempt {
	gross, _ := getDecimal(data, "gross_price")
	fee, _ := getDecimal(data, "fee_amount")
	seller, _ := getDecimal(data, "seller_amount")
	return &model.PurchaseAttempt{
		ID:            convertSurrealID(data["id"]),
		AssetID:       convertSurrealID(data["asset"]),
		BuyerID:       convertSurrealID(data["buyer"]),
		SellerID:      convertSurrealID(data["seller"]),
		GrossPrice:    gross,
		FeeAmount:     fee,
		SellerAmount:  seller,
		TransactionID: getStringPtr(data, "transaction_id"),
		Status:        model.AttemptStatus(getString(data, "status")),
		FailureReason: getStringPtr(data, "failure_reason"),
		CreatedOn:     getTimeValue(data, "created_on"),
		UpdatedOn:     getTimeValue(data, "updated_on"),
	}
}

// CommitSale applies a confirmed purchase as one transaction: ownership moves
// to the buyer, the sale is appended and the attempt is marked persisted.
// A sale that already exists for the transaction surfaces as database.ErrDuplicate
// and nothing is applied.
func (r *SaleRepository) CommitSale(ctx context.Context, attempt *model.PurchaseAttempt, sale *model.SaleRecord) error {
	persisted := *attempt
	persisted.Status = model.AttemptPersisted
	persisted.FailureReason = nil

	ownershipQuery, ownershipVars := ownershipStatement(sale.AssetID, sale.BuyerID)
	saleQuery, saleVars := saleStatement(sale)
	attemptQuery, attemptVars := attemptStatement(&persisted)

	err := database.NewAtomicBatch().
		Add(ownershipQuery, ownershipVars).
		Add(saleQuery, saleVars).
		Add(attemptQuery, attemptVars).
		Execute(ctx, r.db)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: sale already recorded for transaction", database.ErrDuplicate)
		}
		return err
	}

	attempt.Status = model.AttemptPersisted
	attempt.FailureReason = nil
	return nil
}

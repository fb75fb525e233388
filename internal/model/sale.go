package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SaleStatus is the status of a recorded sale
type SaleStatus string

const (
	SaleStatusCompleted SaleStatus = "completed"
)

// SaleRecord is the append-only record of a confirmed purchase
type SaleRecord struct {
	ID            string          `json:"id"`
	AssetID       string          `json:"asset_id"`
	SellerID      string          `json:"seller_id"`
	BuyerID       string          `json:"buyer_id"`
	GrossPrice    decimal.Decimal `json:"gross_price"`
	FeeAmount     decimal.Decimal `json:"fee_amount"`
	SellerAmount  decimal.Decimal `json:"seller_amount"`
	TransactionID string          `json:"transaction_id"`
	Status        SaleStatus      `json:"status"`
	CreatedOn     time.Time       `json:"created_on"`
}

// AttemptStatus tracks a purchase attempt through ledger settlement.
// Transitions only move forward.
type AttemptStatus string

const (
	AttemptSubmitting        AttemptStatus = "submitting"
	AttemptSubmitted         AttemptStatus = "submitted"
	AttemptConfirmed         AttemptStatus = "confirmed"
	AttemptFailed            AttemptStatus = "failed"
	AttemptTimedOut          AttemptStatus = "timed_out"
	AttemptPersisted         AttemptStatus = "persisted"
	AttemptReconcileRequired AttemptStatus = "reconcile_required"
)

// IsTerminal returns true once no further work is expected for the attempt
func (s AttemptStatus) IsTerminal() bool {
	return s == AttemptFailed || s == AttemptPersisted
}

// NeedsReconciliation returns true for attempts whose ledger outcome may not
// be reflected in the system of record
func (s AttemptStatus) NeedsReconciliation() bool {
	switch s {
	case AttemptSubmitted, AttemptConfirmed, AttemptTimedOut, AttemptReconcileRequired:
		return true
	default:
		return false
	}
}

// PurchaseAttempt is the durable record written before any ledger submission.
// It backs the duplicate window and lets reconciliation find transfers that
// reached the ledger but were never persisted.
type PurchaseAttempt struct {
	ID            string          `json:"id"`
	AssetID       string          `json:"asset_id"`
	BuyerID       string          `json:"buyer_id"`
	SellerID      string          `json:"seller_id"`
	GrossPrice    decimal.Decimal `json:"gross_price"`
	FeeAmount     decimal.Decimal `json:"fee_amount"`
	SellerAmount  decimal.Decimal `json:"seller_amount"`
	TransactionID *string         `json:"transaction_id,omitempty"`
	Status        AttemptStatus   `json:"status"`
	FailureReason *string         `json:"failure_reason,omitempty"`
	CreatedOn     time.Time       `json:"created_on"`
	UpdatedOn     time.Time       `json:"updated_on"`
}

// SaleRecord builds the sale recorded when the attempt's transfer is confirmed
func (a *PurchaseAttempt) SaleRecord(id string, now time.Time) *SaleRecord {
	txID := ""
	if a.TransactionID != nil {
		txID = *a.TransactionID
	}
	return &SaleRecord{
		ID:            id,
		AssetID:       a.AssetID,
		SellerID:      a.SellerID,
		BuyerID:       a.BuyerID,
		GrossPrice:    a.GrossPrice,
		FeeAmount:     a.FeeAmount,
		SellerAmount:  a.SellerAmount,
		TransactionID: txID,
		Status:        SaleStatusCompleted,
		CreatedOn:     now,
	}
}

// PurchaseRequest is the body of a purchase call
type PurchaseRequest struct {
	ExpectedPrice *decimal.Decimal `json:"expected_price"`
}

// Validate checks if the purchase request is valid
func (r *PurchaseRequest) Validate() []FieldError {
	var errors []FieldError
	if r.ExpectedPrice == nil {
		errors = append(errors, FieldError{Field: "expected_price", Message: "expected_price is required"})
	} else if !r.ExpectedPrice.IsPositive() {
		errors = append(errors, FieldError{Field: "expected_price", Message: "expected_price must be positive"})
	}
	return errors
}

// PurchaseResponse is returned when a purchase is settled and recorded
type PurchaseResponse struct {
	Sale          *SaleRecord `json:"sale"`
	TransactionID string      `json:"transaction_id"`
	States        []string    `json:"states"`
}

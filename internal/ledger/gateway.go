package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TinybarsPerHbar is the smallest HBAR denomination
const TinybarsPerHbar = 100_000_000

// Gateway submits settlement transfers to the ledger
type Gateway interface {
	// Submit sends the transfer and returns once the network has accepted it.
	// Acceptance does not imply consensus; confirm with a Watcher.
	Submit(ctx context.Context, order TransferOrder) (*Submission, error)
}

// TransferOrder describes one purchase settlement. Account fields are ledger
// account ids or EVM addresses. Amounts are in HBAR.
type TransferOrder struct {
	Buyer    string
	Seller   string
	Treasury string

	GrossPrice   decimal.Decimal
	SellerAmount decimal.Decimal
	FeeAmount    decimal.Decimal

	TokenID      string
	SerialNumber int64
	Memo         string
}

// Validate checks the order balances and references an asset
func (o TransferOrder) Validate() error {
	switch {
	case o.Buyer == "" || o.Seller == "":
		return fmt.Errorf("%w: buyer and seller are required", ErrInvalidOrder)
	case o.Buyer == o.Seller:
		return fmt.Errorf("%w: buyer and seller are the same account", ErrInvalidOrder)
	case o.TokenID == "" || o.SerialNumber <= 0:
		return fmt.Errorf("%w: token id and serial are required", ErrInvalidOrder)
	case !o.GrossPrice.IsPositive():
		return fmt.Errorf("%w: gross price must be positive", ErrInvalidOrder)
	case o.FeeAmount.IsNegative() || o.SellerAmount.IsNegative():
		return fmt.Errorf("%w: negative leg", ErrInvalidOrder)
	case !o.FeeAmount.Add(o.SellerAmount).Equal(o.GrossPrice):
		return fmt.Errorf("%w: legs do not sum to gross price", ErrInvalidOrder)
	}
	return nil
}

// NFTRef returns the asset reference ("tokenId/serial")
func (o TransferOrder) NFTRef() string {
	return fmt.Sprintf("%s/%d", o.TokenID, o.SerialNumber)
}

// Submission is the ledger's acknowledgement of a submitted transfer
type Submission struct {
	TransactionID string
	SubmittedAt   time.Time
}

// ToTinybars converts an HBAR amount to tinybars, truncating sub-tinybar digits
func ToTinybars(hbar decimal.Decimal) int64 {
	return hbar.Shift(8).IntPart()
}

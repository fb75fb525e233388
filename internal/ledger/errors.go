package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInvalidSignature      = errors.New("invalid signature")
	ErrInvalidAssetReference = errors.New("invalid asset reference")
	ErrUnknownLedgerFailure  = errors.New("ledger rejected transaction")
	ErrNotFoundYet           = errors.New("transaction not found yet")
	ErrConfirmationTimeout   = errors.New("confirmation timed out")
	ErrInvalidOrder          = errors.New("invalid transfer order")
)

// Error carries the ledger status code and transaction id of a failure
type Error struct {
	Op     string
	Status string
	TxID   string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("ledger %s: %v", e.Op, e.Err)
	if e.Status != "" {
		msg += " (" + e.Status + ")"
	}
	if e.TxID != "" {
		msg += " tx=" + e.TxID
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ClassifyStatus maps a ledger status code such as INSUFFICIENT_PAYER_BALANCE
// to a sentinel. Codes reported by the mirror node use the same names.
func ClassifyStatus(code string) error {
	switch code {
	case "INSUFFICIENT_PAYER_BALANCE", "INSUFFICIENT_ACCOUNT_BALANCE", "INSUFFICIENT_TX_FEE":
		return ErrInsufficientBalance
	case "INVALID_SIGNATURE", "INVALID_SIGNATURE_TYPE_MISMATCHING_KEY", "KEY_PREFIX_MISMATCH":
		return ErrInvalidSignature
	case "INVALID_TOKEN_ID", "INVALID_NFT_ID", "INVALID_TOKEN_NFT_SERIAL_NUMBER",
		"SENDER_DOES_NOT_OWN_NFT_SERIAL_NO", "TOKEN_NOT_ASSOCIATED_TO_ACCOUNT", "TOKEN_WAS_DELETED":
		return ErrInvalidAssetReference
	default:
		return ErrUnknownLedgerFailure
	}
}

// statusError builds the typed error for a rejected transaction
func statusError(op, code, txID string) error {
	return &Error{Op: op, Status: code, TxID: txID, Err: ClassifyStatus(code)}
}

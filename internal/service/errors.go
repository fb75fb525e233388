package service

import (
	"errors"
	"fmt"
	"strings"
)

// Centralized service layer errors.
// All errors returned by service methods are defined here for consistency
// and to make error handling in handlers predictable.

// ===== Challenge Errors =====
var (
	ErrInvalidWalletAddress = errors.New("wallet address must be an account id (0.0.n) or 0x EVM address")
	ErrMalformedChallenge   = errors.New("challenge message is malformed")
	ErrFutureTimestamp      = errors.New("challenge timestamp is in the future")
	ErrExpiredChallenge     = errors.New("challenge has expired")
)

// ===== Authentication Errors =====
var (
	ErrWalletMismatch          = errors.New("challenge was issued for a different wallet")
	ErrSignatureRejected       = errors.New("signature verification failed")
	ErrAccountKeyMismatch      = errors.New("key is not registered for this account")
	ErrUserNotFound            = errors.New("user not found")
	ErrWalletAlreadyRegistered = errors.New("wallet already registered")
	ErrInvalidRole             = errors.New("role must be buyer or artist")
	ErrDisplayNameTooLong      = errors.New("display name exceeds maximum length")
)

// ===== Session Errors =====
var (
	ErrSessionExpired = errors.New("session expired")
	ErrSessionInvalid = errors.New("session invalid")
)

// ===== Purchase Errors =====
var (
	ErrInvalidPrice           = errors.New("price must be positive with at most 8 decimal places")
	ErrAssetNotFound          = errors.New("asset not found")
	ErrAssetNotListed         = errors.New("asset is not listed for sale")
	ErrAssetNotPriced         = errors.New("asset has no price")
	ErrPriceChanged           = errors.New("listed price has changed")
	ErrSelfPurchase           = errors.New("cannot purchase your own asset")
	ErrDuplicateInFlight      = errors.New("a purchase of this asset was attempted recently")
	ErrPurchaseInProgress     = errors.New("another purchase of this asset is in progress")
	ErrBuyerNotFound          = errors.New("buyer identity not found")
	ErrReconciliationRequired = errors.New("transfer confirmed but not recorded; reconciliation required")
)

// SettlementError reports where a purchase stopped. Reason holds the
// underlying sentinel or ledger error, so errors.Is sees through it.
type SettlementError struct {
	State         PurchaseState
	TransactionID string
	Reason        error
	States        []PurchaseState
}

func (e *SettlementError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "purchase %s: %v", e.State, e.Reason)
	if e.TransactionID != "" {
		b.WriteString(" (tx " + e.TransactionID + ")")
	}
	return b.String()
}

func (e *SettlementError) Unwrap() error {
	return e.Reason
}

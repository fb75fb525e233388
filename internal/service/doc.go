// Package service implements the business logic layer for the Canvas API.
//
// The service package contains wallet authentication, the purchase settlement
// state machine and reconciliation of purchases whose ledger outcome was not
// recorded. Services are the primary abstraction between HTTP handlers and
// the storage and ledger layers.
//
// # Service Pattern
//
// All services follow a consistent pattern:
//
//   - Constructor function (NewXxxService) accepts a config struct with its dependencies
//   - Methods implement business operations with proper validation
//   - Errors are returned as sentinel errors or wrapped errors for context
//   - Context is passed through for cancellation and request-scoped values
//
// # Authentication
//
// Sign-in is stateless. A challenge embeds the wallet and its issue time, and
// is valid for five minutes after issue. The signed challenge is verified with
// one of two schemes selected by the request:
//
//   - native_key: Ed25519 over the message bytes, checked against a claimed public key
//   - recoverable_address: secp256k1 personal_sign, signer recovered and compared to an address
//
// # Purchases
//
// A purchase walks validating, plan_computed, submitted, awaiting_confirmation,
// confirmed and persisted. Failures stop in rejected (nothing was submitted)
// or settlement_failed (the ledger may have been touched). Every failure is a
// *SettlementError:
//
//	res, err := purchases.Purchase(ctx, assetID, buyerID, expected)
//	var serr *service.SettlementError
//	if errors.As(err, &serr) && errors.Is(err, service.ErrReconciliationRequired) {
//	    // transfer confirmed, record pending; never retry
//	}
//
// # Error Handling
//
// Services return domain-specific errors defined as package-level variables
// in errors.go. Ledger failures keep their ledger sentinel so callers can
// distinguish an insufficient balance from a confirmation timeout.
package service

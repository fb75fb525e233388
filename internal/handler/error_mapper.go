package handler

import (
	"errors"

	"github.com/forgo/canvas/internal/ledger"
	"github.com/forgo/canvas/internal/model"
	"github.com/forgo/canvas/internal/service"
)

// MapServiceError converts a service error to a ProblemDetails response.
// This centralizes error handling logic for all handlers, ensuring consistent
// HTTP status codes and error messages across the API.
func MapServiceError(err error) *model.ProblemDetails {
	if err == nil {
		return nil
	}

	// Settlement failures carry the transaction id, if one was assigned
	txID := transactionID(err)

	switch {
	// ===== Persistence after a confirmed transfer → 500, never retry =====
	case errors.Is(err, service.ErrReconciliationRequired):
		return model.NewReconciliationRequiredError(txID)

	// ===== Ledger Errors → 402 / 502 / 504 =====
	case errors.Is(err, ledger.ErrConfirmationTimeout):
		return model.NewConfirmationTimeoutError(txID)
	case errors.Is(err, ledger.ErrInsufficientBalance):
		pd := model.NewPaymentRequiredError("buyer balance does not cover the purchase")
		pd.TransactionID = txID
		return pd
	case errors.Is(err, ledger.ErrInvalidSignature),
		errors.Is(err, ledger.ErrInvalidAssetReference),
		errors.Is(err, ledger.ErrUnknownLedgerFailure),
		errors.Is(err, ledger.ErrInvalidOrder),
		errors.Is(err, ledger.ErrNotFoundYet),
		isLedgerError(err):
		return model.NewLedgerError(err.Error(), txID)

	// ===== Authentication Errors → 401 =====
	case errors.Is(err, service.ErrExpiredChallenge):
		return model.NewUnauthorizedError(err.Error()).WithCode(model.ErrCodeChallengeExpired)
	case errors.Is(err, service.ErrFutureTimestamp),
		errors.Is(err, service.ErrWalletMismatch):
		return model.NewUnauthorizedError(err.Error())
	case errors.Is(err, service.ErrSignatureRejected),
		errors.Is(err, service.ErrAccountKeyMismatch):
		return model.NewUnauthorizedError(err.Error()).WithCode(model.ErrCodeSignature)
	case errors.Is(err, service.ErrSessionExpired):
		return model.NewUnauthorizedError(err.Error()).WithCode(model.ErrCodeTokenExpired)
	case errors.Is(err, service.ErrSessionInvalid):
		return model.NewUnauthorizedError(err.Error()).WithCode(model.ErrCodeTokenInvalid)

	// ===== Not Found Errors → 404 =====
	case errors.Is(err, service.ErrUserNotFound):
		return model.NewNotFoundError("user")
	case errors.Is(err, service.ErrAssetNotFound):
		return model.NewNotFoundError("asset")
	case errors.Is(err, service.ErrBuyerNotFound):
		return model.NewNotFoundError("buyer")

	// ===== Conflict Errors → 409 =====
	case errors.Is(err, service.ErrWalletAlreadyRegistered),
		errors.Is(err, service.ErrAssetNotListed),
		errors.Is(err, service.ErrAssetNotPriced),
		errors.Is(err, service.ErrDuplicateInFlight),
		errors.Is(err, service.ErrPurchaseInProgress),
		errors.Is(err, service.ErrSelfPurchase):
		return model.NewConflictError(err.Error())

	// ===== Validation Errors → 422 =====
	case errors.Is(err, service.ErrInvalidWalletAddress):
		return model.NewValidationError([]model.FieldError{{Field: "wallet_address", Message: err.Error()}})
	case errors.Is(err, service.ErrMalformedChallenge):
		return model.NewValidationError([]model.FieldError{{Field: "message", Message: err.Error()}})
	case errors.Is(err, service.ErrInvalidRole):
		return model.NewValidationError([]model.FieldError{{Field: "role", Message: err.Error()}})
	case errors.Is(err, service.ErrDisplayNameTooLong):
		return model.NewValidationError([]model.FieldError{{Field: "display_name", Message: err.Error()}})
	case errors.Is(err, service.ErrInvalidPrice):
		return model.NewValidationError([]model.FieldError{{Field: "expected_price", Message: err.Error()}})
	case errors.Is(err, service.ErrPriceChanged):
		return model.NewValidationError([]model.FieldError{{Field: "expected_price", Message: err.Error()}}).
			WithCode(model.ErrCodePriceChanged)

	// ===== Default → 500 =====
	default:
		return model.NewInternalError("")
	}
}

// MapServiceErrorWithContext converts a service error to a ProblemDetails response
// with additional context about the operation that failed.
func MapServiceErrorWithContext(err error, operation string) *model.ProblemDetails {
	pd := MapServiceError(err)
	if pd != nil && pd.Code == model.ErrCodeInternal {
		pd.Detail = operation + ": an unexpected error occurred"
	}
	return pd
}

func transactionID(err error) string {
	var serr *service.SettlementError
	if errors.As(err, &serr) && serr.TransactionID != "" {
		return serr.TransactionID
	}
	var lerr *ledger.Error
	if errors.As(err, &lerr) {
		return lerr.TxID
	}
	return ""
}

func isLedgerError(err error) bool {
	var lerr *ledger.Error
	return errors.As(err, &lerr)
}

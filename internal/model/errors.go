package model

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ErrorCode represents API error codes
type ErrorCode int

const (
	// Authentication errors (1xxx)
	ErrCodeUnauthorized     ErrorCode = 1001
	ErrCodeTokenExpired     ErrorCode = 1002
	ErrCodeTokenInvalid     ErrorCode = 1003
	ErrCodeChallengeExpired ErrorCode = 1004
	ErrCodeSignature        ErrorCode = 1005

	// Authorization errors (2xxx)
	ErrCodeForbidden ErrorCode = 2001

	// Resource errors (3xxx)
	ErrCodeNotFound      ErrorCode = 3001
	ErrCodeAlreadyExists ErrorCode = 3002
	ErrCodeConflict      ErrorCode = 3003

	// Validation errors (4xxx)
	ErrCodeValidation   ErrorCode = 4001
	ErrCodeInvalidInput ErrorCode = 4002
	ErrCodePriceChanged ErrorCode = 4003

	// Internal errors (5xxx)
	ErrCodeInternal               ErrorCode = 5001
	ErrCodeDatabase               ErrorCode = 5002
	ErrCodeLedger                 ErrorCode = 5003
	ErrCodeConfirmationTimeout    ErrorCode = 5004
	ErrCodeReconciliationRequired ErrorCode = 5005
)

const problemTypeBase = "https://api.canvas.forgo.software/errors/"

// ProblemDetails represents RFC 9457 Problem Details for HTTP APIs
type ProblemDetails struct {
	Type     string       `json:"type"`
	Title    string       `json:"title"`
	Status   int          `json:"status"`
	Detail   string       `json:"detail,omitempty"`
	Instance string       `json:"instance,omitempty"`
	Errors   []FieldError `json:"errors,omitempty"`
	// Extension fields
	Code          ErrorCode `json:"code,omitempty"`
	TransactionID string    `json:"transaction_id,omitempty"`
}

// FieldError represents a validation error on a specific field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements the error interface
func (p *ProblemDetails) Error() string {
	return fmt.Sprintf("[%d] %s: %s", p.Status, p.Title, p.Detail)
}

// WriteJSON writes the problem details as JSON response
func (p *ProblemDetails) WriteJSON(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// WithCode overrides the extension code
func (p *ProblemDetails) WithCode(code ErrorCode) *ProblemDetails {
	p.Code = code
	return p
}

// Common error constructors

func NewUnauthorizedError(detail string) *ProblemDetails {
	return &ProblemDetails{
		Type:   problemTypeBase + "unauthorized",
		Title:  "Unauthorized",
		Status: http.StatusUnauthorized,
		Detail: detail,
		Code:   ErrCodeUnauthorized,
	}
}

func NewForbiddenError(detail string) *ProblemDetails {
	return &ProblemDetails{
		Type:   problemTypeBase + "forbidden",
		Title:  "Forbidden",
		Status: http.StatusForbidden,
		Detail: detail,
		Code:   ErrCodeForbidden,
	}
}

func NewNotFoundError(resource string) *ProblemDetails {
	return &ProblemDetails{
		Type:   problemTypeBase + "not-found",
		Title:  "Not Found",
		Status: http.StatusNotFound,
		Detail: fmt.Sprintf("%s not found", resource),
		Code:   ErrCodeNotFound,
	}
}

func NewValidationError(errors []FieldError) *ProblemDetails {
	detail := "One or more fields failed validation"
	if len(errors) > 0 {
		detail = fmt.Sprintf("%s: %s", errors[0].Field, errors[0].Message)
		if len(errors) > 1 {
			detail = fmt.Sprintf("%s (and %d more errors)", detail, len(errors)-1)
		}
	}
	return &ProblemDetails{
		Type:   problemTypeBase + "validation",
		Title:  "Validation Error",
		Status: http.StatusUnprocessableEntity,
		Detail: detail,
		Code:   ErrCodeValidation,
		Errors: errors,
	}
}

func NewConflictError(detail string) *ProblemDetails {
	return &ProblemDetails{
		Type:   problemTypeBase + "conflict",
		Title:  "Conflict",
		Status: http.StatusConflict,
		Detail: detail,
		Code:   ErrCodeConflict,
	}
}

func NewInternalError(detail string) *ProblemDetails {
	if detail == "" {
		detail = "An unexpected error occurred"
	}
	return &ProblemDetails{
		Type:   problemTypeBase + "internal",
		Title:  "Internal Server Error",
		Status: http.StatusInternalServerError,
		Detail: detail,
		Code:   ErrCodeInternal,
	}
}

func NewBadRequestError(detail string) *ProblemDetails {
	return &ProblemDetails{
		Type:   problemTypeBase + "bad-request",
		Title:  "Bad Request",
		Status: http.StatusBadRequest,
		Detail: detail,
		Code:   ErrCodeInvalidInput,
	}
}

func NewMethodNotAllowedError(allowed string) *ProblemDetails {
	return &ProblemDetails{
		Type:   problemTypeBase + "method-not-allowed",
		Title:  "Method Not Allowed",
		Status: http.StatusMethodNotAllowed,
		Detail: fmt.Sprintf("Only %s method is allowed", allowed),
	}
}

func NewRateLimitError(retryAfter int) *ProblemDetails {
	return &ProblemDetails{
		Type:   problemTypeBase + "rate-limited",
		Title:  "Too Many Requests",
		Status: http.StatusTooManyRequests,
		Detail: fmt.Sprintf("Rate limit exceeded. Retry after %d seconds", retryAfter),
	}
}

// NewPaymentRequiredError reports a ledger-side balance shortfall.
func NewPaymentRequiredError(detail string) *ProblemDetails {
	return &ProblemDetails{
		Type:   problemTypeBase + "insufficient-balance",
		Title:  "Insufficient Balance",
		Status: http.StatusPaymentRequired,
		Detail: detail,
		Code:   ErrCodeLedger,
	}
}

// NewLedgerError reports a ledger submission or confirmation failure.
func NewLedgerError(detail, txID string) *ProblemDetails {
	return &ProblemDetails{
		Type:          problemTypeBase + "ledger",
		Title:         "Ledger Error",
		Status:        http.StatusBadGateway,
		Detail:        detail,
		Code:          ErrCodeLedger,
		TransactionID: txID,
	}
}

// NewConfirmationTimeoutError reports that consensus was not observed in time.
// The transaction may still reach consensus later.
func NewConfirmationTimeoutError(txID string) *ProblemDetails {
	return &ProblemDetails{
		Type:          problemTypeBase + "confirmation-timeout",
		Title:         "Confirmation Timeout",
		Status:        http.StatusGatewayTimeout,
		Detail:        "ledger confirmation was not observed in time; the purchase is pending review",
		Code:          ErrCodeConfirmationTimeout,
		TransactionID: txID,
	}
}

// NewReconciliationRequiredError reports a confirmed ledger transfer that the
// system of record has not caught up with. Clients must not retry the purchase.
func NewReconciliationRequiredError(txID string) *ProblemDetails {
	return &ProblemDetails{
		Type:          problemTypeBase + "reconciliation-required",
		Title:         "Reconciliation Required",
		Status:        http.StatusInternalServerError,
		Detail:        "the transfer completed on the ledger but recording it failed; it will be reconciled, do not retry",
		Code:          ErrCodeReconciliationRequired,
		TransactionID: txID,
	}
}

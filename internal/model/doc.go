// Package model defines domain entities and data structures for the Canvas API.
//
// The model package contains the marketplace entities, request/response types,
// and error definitions shared by every layer of the application.
//
// # Domain Entities
//
//   - User: a registered wallet identity with a marketplace role
//   - Asset: an artwork backed by one NFT serial on the ledger
//   - PurchaseAttempt: the durable record of a purchase in flight
//   - SaleRecord: the append-only record of a confirmed sale
//
// Monetary values use decimal.Decimal so that fee splits are exact.
//
// # Error Types
//
// RFC 9457 Problem Details errors are defined in errors.go:
//
//	type ProblemDetails struct {
//	    Type    string    `json:"type"`
//	    Title   string    `json:"title"`
//	    Status  int       `json:"status"`
//	    Detail  string    `json:"detail"`
//	}
package model

// Package handler provides HTTP request handlers for the Canvas API.
//
// Each handler struct wraps the service it serves behind a small interface
// (AuthAPI, PurchaseAPI) so it can be tested with hand-written mocks.
//
// # Response Format
//
//   - WriteData: single resource with optional HATEOAS links
//   - WriteJSON: raw JSON response
//   - WriteError: RFC 9457 Problem Details error response
//
// Service errors are converted by MapServiceError. Settlement failures keep
// their ledger transaction id in the problem's transaction_id field, and a
// reconciliation_required code tells the client the transfer happened and
// must not be retried.
//
// # Routes
//
//	POST /v1/auth/challenge
//	POST /v1/auth/verify
//	POST /v1/auth/register
//	GET  /v1/auth/me
//	POST /v1/assets/{assetId}/purchase
//	GET  /health
//	GET  /ready
package handler

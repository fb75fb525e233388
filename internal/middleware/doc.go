// Package middleware provides HTTP middleware for the Canvas API.
//
// The middleware package contains reusable middleware components for
// authentication, rate limiting, idempotent retries and request processing.
//
// # Available Middleware
//
//   - RequestID, Logger, Recovery, CORS: request plumbing
//   - Auth: bearer session validation; RequireRole narrows by role
//   - RateLimit: per-client token bucket
//   - Idempotency: replays the first response for a repeated Idempotency-Key
//
// # Authentication
//
// After Auth, handlers read the session from context:
//
//	userID := middleware.GetUserID(r.Context())
//	wallet := middleware.GetWallet(r.Context())
//
// # Ordering
//
// Idempotency and RateLimit key on the session user, so they run after Auth:
//
//	middleware.Chain(h, middleware.Auth(auth), middleware.RateLimit(rl), middleware.Idempotency(cache))
package middleware

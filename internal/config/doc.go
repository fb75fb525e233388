// Package config manages application configuration for the Canvas API.
//
// Configuration is read from environment variables. A .env file in the
// working directory is merged first when present; variables already set in the
// process environment win.
//
//	cfg, err := config.Load()
//	if err != nil { ... }
//	if err := cfg.Validate(); err != nil { ... }
//
// # Configuration Groups
//
//   - ServerConfig: HTTP server settings (port, timeouts, CORS)
//   - DatabaseConfig: SurrealDB or Postgres connection settings (DB_DRIVER)
//   - SessionConfig: session token signing keys and lifetime
//   - HederaConfig: ledger network, operator and treasury accounts
//   - MirrorConfig: mirror node REST endpoint and per-request timeout
//   - SettlementConfig: confirmation polling, duplicate window, reconciliation
//   - RateLimitConfig: per-client request budget
//
// # Environment Variables
//
//	SERVER_PORT              - HTTP server port (default: 8080)
//	DB_DRIVER                - surrealdb (default) or postgres
//	DATABASE_URL             - Postgres DSN when DB_DRIVER=postgres
//	SESSION_TTL              - session lifetime (default: 168h)
//	HEDERA_NETWORK           - mainnet, testnet (default), previewnet
//	HEDERA_OPERATOR_ID       - platform account that pays for and signs transfers
//	HEDERA_OPERATOR_KEY      - operator private key
//	HEDERA_TREASURY_ID       - account credited with platform fees
//	SETTLEMENT_MAX_RETRIES   - confirmation polls before timing out (default: 10)
package config

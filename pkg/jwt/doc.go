// Package jwt signs and validates the bearer session tokens handed to
// wallet-authenticated users.
//
// Tokens are RS256 JWTs carrying the user ID, the wallet address the user
// proved control of, and the user's marketplace role:
//
//	svc, err := jwt.NewService(jwt.Config{
//	    PrivateKeyPath: "./keys/private.pem",
//	    Issuer:         "canvas",
//	    Expiration:     7 * 24 * time.Hour,
//	})
//
//	token, err := svc.Sign(jwt.Claims{UserID: id, WalletAddress: "0.0.4821", Role: "buyer"})
//	claims, err := svc.Validate(token)
//
// Validate distinguishes ErrTokenExpired from the structural failures
// (ErrInvalidToken, ErrInvalidSignature) so callers can prompt a fresh login
// instead of reporting a hard failure.
package jwt

package middleware

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/forgo/canvas/internal/model"
	"github.com/forgo/canvas/internal/service"
	"github.com/forgo/canvas/pkg/jwt"
)

// SessionValidator validates bearer session tokens
type SessionValidator interface {
	ValidateSession(token string) (*jwt.Claims, error)
}

// ClaimsKey is the context key for session claims
const ClaimsKey contextKey = "claims"

// WalletKey is the context key for the session wallet
const WalletKey contextKey = "wallet"

// Auth returns a middleware that requires a valid session token
func Auth(sessions SessionValidator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				model.NewUnauthorizedError("missing or malformed authorization header").WriteJSON(w)
				return
			}

			claims, err := sessions.ValidateSession(token)
			if err != nil {
				if errors.Is(err, service.ErrSessionExpired) {
					model.NewUnauthorizedError("session expired").WithCode(model.ErrCodeTokenExpired).WriteJSON(w)
					return
				}
				model.NewUnauthorizedError("invalid session").WithCode(model.ErrCodeTokenInvalid).WriteJSON(w)
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, claims.UserID)
			ctx = context.WithValue(ctx, WalletKey, claims.WalletAddress)
			ctx = context.WithValue(ctx, ClaimsKey, claims)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects sessions whose role is not one of roles. Must run
// after Auth.
func RequireRole(roles ...model.UserRole) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaims(r.Context())
			if claims == nil {
				model.NewUnauthorizedError("authentication required").WriteJSON(w)
				return
			}
			if !slices.Contains(roles, model.UserRole(claims.Role)) {
				model.NewForbiddenError("role not permitted").WriteJSON(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// GetUserID extracts the user ID from context
func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(UserIDKey).(string); ok {
		return id
	}
	return ""
}

// GetWallet extracts the session wallet from context
func GetWallet(ctx context.Context) string {
	if wallet, ok := ctx.Value(WalletKey).(string); ok {
		return wallet
	}
	return ""
}

// GetClaims extracts the session claims from context
func GetClaims(ctx context.Context) *jwt.Claims {
	if claims, ok := ctx.Value(ClaimsKey).(*jwt.Claims); ok {
		return claims
	}
	return nil
}

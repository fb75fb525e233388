package service

import (
	"errors"
	"time"

	"github.com/forgo/canvas/internal/model"
	"github.com/forgo/canvas/pkg/jwt"
)

// TokenStatus classifies a presented session token
type TokenStatus string

const (
	TokenValid   TokenStatus = "valid"
	TokenExpired TokenStatus = "expired"
	TokenInvalid TokenStatus = "invalid"
)

// TokenResult is the outcome of decoding a session token. Claims is set
// only when Status is TokenValid.
type TokenResult struct {
	Status TokenStatus
	Claims *jwt.Claims
}

// SessionToken is an issued bearer token
type SessionToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	ExpiresIn int       `json:"expires_in"` // seconds
}

// SessionTokenCodec issues and decodes signed session tokens
type SessionTokenCodec struct {
	jwtService *jwt.Service
}

// NewSessionTokenCodec creates a codec over a signing service
func NewSessionTokenCodec(jwtService *jwt.Service) *SessionTokenCodec {
	return &SessionTokenCodec{jwtService: jwtService}
}

// Issue signs a token for the identity. Identical input and clock produce
// an identical token.
func (c *SessionTokenCodec) Issue(userID, walletAddress string, role model.UserRole) (*SessionToken, error) {
	now := c.jwtService.Now()
	ttl := c.jwtService.GetExpiration()

	token, err := c.jwtService.Sign(jwt.Claims{
		Subject:       userID,
		UserID:        userID,
		WalletAddress: walletAddress,
		Role:          string(role),
	})
	if err != nil {
		return nil, err
	}

	return &SessionToken{
		Token:     token,
		ExpiresAt: time.Unix(now.Add(ttl).Unix(), 0),
		ExpiresIn: int(ttl.Seconds()),
	}, nil
}

// Decode classifies a token without returning an error
func (c *SessionTokenCodec) Decode(token string) TokenResult {
	claims, err := c.jwtService.Validate(token)
	switch {
	case err == nil:
		return TokenResult{Status: TokenValid, Claims: claims}
	case errors.Is(err, jwt.ErrTokenExpired):
		return TokenResult{Status: TokenExpired}
	default:
		return TokenResult{Status: TokenInvalid}
	}
}

// Verify returns the claims of a valid token, or ErrSessionExpired /
// ErrSessionInvalid
func (c *SessionTokenCodec) Verify(token string) (*jwt.Claims, error) {
	res := c.Decode(token)
	switch res.Status {
	case TokenValid:
		return res.Claims, nil
	case TokenExpired:
		return nil, ErrSessionExpired
	default:
		return nil, ErrSessionInvalid
	}
}

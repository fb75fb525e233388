package jwt

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrTokenExpired     = errors.New("token expired")
	ErrTokenNotYetValid = errors.New("token not yet valid")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrInvalidKey       = errors.New("invalid key")
)

// DefaultExpiration is the session lifetime used when none is configured.
const DefaultExpiration = 7 * 24 * time.Hour

// Claims represents session token claims
type Claims struct {
	// Standard claims
	Issuer    string `json:"iss,omitempty"`
	Subject   string `json:"sub,omitempty"`
	ExpiresAt int64  `json:"exp,omitempty"`
	NotBefore int64  `json:"nbf,omitempty"`
	IssuedAt  int64  `json:"iat,omitempty"`

	// Wallet identity
	UserID        string `json:"user_id,omitempty"`
	WalletAddress string `json:"wallet,omitempty"`
	Role          string `json:"role,omitempty"` // buyer, artist, admin
}

// IsAdmin returns true if the claims indicate admin role
func (c *Claims) IsAdmin() bool {
	return c.Role == "admin"
}

// Valid checks the time-based claims against the current time
func (c *Claims) Valid() error {
	return c.ValidAt(time.Now())
}

// ValidAt checks the time-based claims against the given instant
func (c *Claims) ValidAt(at time.Time) error {
	now := at.Unix()

	if c.ExpiresAt != 0 && now >= c.ExpiresAt {
		return ErrTokenExpired
	}

	if c.NotBefore != 0 && now < c.NotBefore {
		return ErrTokenNotYetValid
	}

	return nil
}

// Service signs and validates RS256 tokens
type Service struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	issuer     string
	expiration time.Duration
	now        func() time.Time
}

// Config holds JWT service configuration
type Config struct {
	PrivateKeyPath string
	PublicKeyPath  string
	Issuer         string
	Expiration     time.Duration
}

// NewService creates a new JWT service
func NewService(cfg Config) (*Service, error) {
	var privateKey *rsa.PrivateKey
	var publicKey *rsa.PublicKey
	var err error

	if cfg.PrivateKeyPath != "" {
		privateKey, err = loadPrivateKey(cfg.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load private key: %w", err)
		}
		publicKey = &privateKey.PublicKey
	}

	// Validation-only deployments ship just the public half
	if cfg.PublicKeyPath != "" && publicKey == nil {
		publicKey, err = loadPublicKey(cfg.PublicKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load public key: %w", err)
		}
	}

	expiration := cfg.Expiration
	if expiration <= 0 {
		expiration = DefaultExpiration
	}

	return &Service{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     cfg.Issuer,
		expiration: expiration,
		now:        time.Now,
	}, nil
}

// GenerateKeyPair generates a new RSA key pair and saves to files
func GenerateKeyPair(privateKeyPath, publicKeyPath string) error {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}

	privateKeyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	})
	if err := os.WriteFile(privateKeyPath, privateKeyPEM, 0600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}

	publicKeyBytes, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		return fmt.Errorf("failed to marshal public key: %w", err)
	}
	publicKeyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: publicKeyBytes,
	})
	if err := os.WriteFile(publicKeyPath, publicKeyPEM, 0644); err != nil {
		return fmt.Errorf("failed to write public key: %w", err)
	}

	return nil
}

// Sign creates a signed token. PKCS#1 v1.5 signatures are deterministic, so
// identical claims signed at the same instant yield identical tokens.
func (s *Service) Sign(claims Claims) (string, error) {
	if s.privateKey == nil {
		return "", ErrInvalidKey
	}

	now := s.now()

	claims.Issuer = s.issuer
	claims.IssuedAt = now.Unix()
	claims.NotBefore = now.Unix()
	if claims.ExpiresAt == 0 {
		claims.ExpiresAt = now.Add(s.expiration).Unix()
	}

	header := map[string]string{
		"alg": "RS256",
		"typ": "JWT",
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return "", fmt.Errorf("failed to marshal header: %w", err)
	}

	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("failed to marshal claims: %w", err)
	}

	message := base64URLEncode(headerJSON) + "." + base64URLEncode(claimsJSON)
	hash := sha256.Sum256([]byte(message))

	signature, err := rsa.SignPKCS1v15(nil, s.privateKey, crypto.SHA256, hash[:])
	if err != nil {
		return "", fmt.Errorf("failed to sign: %w", err)
	}

	return message + "." + base64URLEncode(signature), nil
}

// Validate validates a token and returns the claims. Expiry is reported as
// ErrTokenExpired; every structural or signature problem maps to
// ErrInvalidToken or ErrInvalidSignature.
func (s *Service) Validate(tokenString string) (*Claims, error) {
	if s.publicKey == nil {
		return nil, ErrInvalidKey
	}

	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		return nil, ErrInvalidToken
	}

	headerB64, claimsB64, signatureB64 := parts[0], parts[1], parts[2]

	if err := checkHeader(headerB64); err != nil {
		return nil, err
	}

	message := headerB64 + "." + claimsB64
	hash := sha256.Sum256([]byte(message))

	signature, err := base64URLDecode(signatureB64)
	if err != nil {
		return nil, ErrInvalidToken
	}

	if err := rsa.VerifyPKCS1v15(s.publicKey, crypto.SHA256, hash[:], signature); err != nil {
		return nil, ErrInvalidSignature
	}

	claimsJSON, err := base64URLDecode(claimsB64)
	if err != nil {
		return nil, ErrInvalidToken
	}

	var claims Claims
	if err := json.Unmarshal(claimsJSON, &claims); err != nil {
		return nil, ErrInvalidToken
	}

	if err := claims.ValidAt(s.now()); err != nil {
		return nil, err
	}

	if claims.Issuer != s.issuer {
		return nil, ErrInvalidToken
	}

	return &claims, nil
}

// GetExpiration returns the token expiration duration
func (s *Service) GetExpiration() time.Duration {
	return s.expiration
}

// Now returns the service clock's current time
func (s *Service) Now() time.Time {
	return s.now()
}

// WithClock returns a copy of the service that reads time from now.
func (s *Service) WithClock(now func() time.Time) *Service {
	cp := *s
	cp.now = now
	return &cp
}

// NewTestService creates a JWT service with in-memory keys for testing
// This should only be used in tests, not in production code
func NewTestService(privateKey *rsa.PrivateKey, issuer string, expiration time.Duration) *Service {
	return &Service{
		privateKey: privateKey,
		publicKey:  &privateKey.PublicKey,
		issuer:     issuer,
		expiration: expiration,
		now:        time.Now,
	}
}

func checkHeader(headerB64 string) error {
	headerJSON, err := base64URLDecode(headerB64)
	if err != nil {
		return ErrInvalidToken
	}
	var header map[string]string
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return ErrInvalidToken
	}
	if header["alg"] != "RS256" {
		return ErrInvalidToken
	}
	return nil
}

func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}

	return x509.ParsePKCS1PrivateKey(block.Bytes)
}

func loadPublicKey(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}

	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("not an RSA public key")
	}

	return rsaPub, nil
}

func base64URLEncode(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

func base64URLDecode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}

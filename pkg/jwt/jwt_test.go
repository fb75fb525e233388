package jwt

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test Helpers
// ============================================================================

var testKey = func() *rsa.PrivateKey {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
	return key
}()

func newTestService(t *testing.T, expiration time.Duration) *Service {
	t.Helper()
	return NewTestService(testKey, "test-issuer", expiration)
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

// ============================================================================
// Claims Tests
// ============================================================================

func TestClaims_ValidAt(t *testing.T) {
	t.Parallel()
	now := time.Unix(1_700_000_000, 0)

	tests := []struct {
		name   string
		claims Claims
		want   error
	}{
		{"no expiration", Claims{UserID: "user:1"}, nil},
		{"not expired", Claims{ExpiresAt: now.Add(time.Hour).Unix()}, nil},
		{"expired", Claims{ExpiresAt: now.Add(-time.Second).Unix()}, ErrTokenExpired},
		{"expires exactly now", Claims{ExpiresAt: now.Unix()}, ErrTokenExpired},
		{"not yet valid", Claims{NotBefore: now.Add(time.Hour).Unix()}, ErrTokenNotYetValid},
		{"not before in past", Claims{NotBefore: now.Add(-time.Hour).Unix()}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.claims.ValidAt(now))
		})
	}
}

func TestClaims_IsAdmin(t *testing.T) {
	t.Parallel()
	assert.True(t, (&Claims{Role: "admin"}).IsAdmin())
	assert.False(t, (&Claims{Role: "artist"}).IsAdmin())
}

// ============================================================================
// Sign / Validate Tests
// ============================================================================

func TestSign_RoundTripPreservesWalletClaims(t *testing.T) {
	t.Parallel()
	svc := newTestService(t, time.Hour)

	token, err := svc.Sign(Claims{UserID: "user:abc", WalletAddress: "0.0.4821", Role: "artist"})
	require.NoError(t, err)
	assert.Len(t, strings.Split(token, "."), 3)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "user:abc", claims.UserID)
	assert.Equal(t, "0.0.4821", claims.WalletAddress)
	assert.Equal(t, "artist", claims.Role)
	assert.Equal(t, "test-issuer", claims.Issuer)
}

func TestSign_NilPrivateKey_ReturnsErrInvalidKey(t *testing.T) {
	t.Parallel()
	svc := &Service{issuer: "test", expiration: time.Minute, now: time.Now}

	_, err := svc.Sign(Claims{UserID: "user:1"})
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestSign_DeterministicForSameClock(t *testing.T) {
	t.Parallel()
	at := time.Unix(1_700_000_000, 0)
	svc := newTestService(t, time.Hour).WithClock(fixedClock(at))

	a, err := svc.Sign(Claims{UserID: "user:1", WalletAddress: "0.0.1", Role: "buyer"})
	require.NoError(t, err)
	b, err := svc.Sign(Claims{UserID: "user:1", WalletAddress: "0.0.1", Role: "buyer"})
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestSign_SetsExpirationFromService(t *testing.T) {
	t.Parallel()
	at := time.Unix(1_700_000_000, 0)
	svc := newTestService(t, 7*24*time.Hour).WithClock(fixedClock(at))

	token, err := svc.Sign(Claims{UserID: "user:1"})
	require.NoError(t, err)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, at.Unix(), claims.IssuedAt)
	assert.Equal(t, at.Add(7*24*time.Hour).Unix(), claims.ExpiresAt)
}

func TestValidate_ExpiredToken(t *testing.T) {
	t.Parallel()
	issued := time.Unix(1_700_000_000, 0)
	signer := newTestService(t, time.Hour).WithClock(fixedClock(issued))

	token, err := signer.Sign(Claims{UserID: "user:1"})
	require.NoError(t, err)

	later := signer.WithClock(fixedClock(issued.Add(2 * time.Hour)))
	_, err = later.Validate(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestValidate_TamperedClaims_ReturnsInvalidSignature(t *testing.T) {
	t.Parallel()
	svc := newTestService(t, time.Hour)

	token, err := svc.Sign(Claims{UserID: "user:1", Role: "buyer"})
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	forged := base64.RawURLEncoding.EncodeToString([]byte(`{"iss":"test-issuer","user_id":"user:1","role":"admin"}`))
	_, err = svc.Validate(parts[0] + "." + forged + "." + parts[2])
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestValidate_MalformedTokens(t *testing.T) {
	t.Parallel()
	svc := newTestService(t, time.Hour)

	for _, token := range []string{"", "abc", "a.b", "a.b.c.d", "!!!.###.$$$"} {
		_, err := svc.Validate(token)
		assert.Error(t, err, "token %q", token)
		assert.NotErrorIs(t, err, ErrTokenExpired)
	}
}

func TestValidate_RejectsOtherAlgorithms(t *testing.T) {
	t.Parallel()
	svc := newTestService(t, time.Hour)

	token, err := svc.Sign(Claims{UserID: "user:1"})
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	none := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	_, err = svc.Validate(none + "." + parts[1] + "." + parts[2])
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidate_WrongIssuer(t *testing.T) {
	t.Parallel()
	other := NewTestService(testKey, "someone-else", time.Hour)

	token, err := other.Sign(Claims{UserID: "user:1"})
	require.NoError(t, err)

	_, err = newTestService(t, time.Hour).Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

// ============================================================================
// Key loading Tests
// ============================================================================

func TestNewService_LoadsGeneratedKeys(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	priv := filepath.Join(dir, "private.pem")
	pub := filepath.Join(dir, "public.pem")
	require.NoError(t, GenerateKeyPair(priv, pub))

	signer, err := NewService(Config{PrivateKeyPath: priv, Issuer: "canvas"})
	require.NoError(t, err)
	assert.Equal(t, DefaultExpiration, signer.GetExpiration())

	verifier, err := NewService(Config{PublicKeyPath: pub, Issuer: "canvas"})
	require.NoError(t, err)

	token, err := signer.Sign(Claims{UserID: "user:1"})
	require.NoError(t, err)
	_, err = verifier.Validate(token)
	assert.NoError(t, err)

	_, err = verifier.Sign(Claims{UserID: "user:1"})
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestNewService_MissingKeyFile(t *testing.T) {
	t.Parallel()
	_, err := NewService(Config{PrivateKeyPath: filepath.Join(os.TempDir(), "does-not-exist.pem")})
	assert.Error(t, err)
}

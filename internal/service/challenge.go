package service

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ChallengeTTL is how long a rendered challenge may be signed and presented
const ChallengeTTL = 5 * time.Minute

const challengeHeader = "Canvas wants you to sign in with your wallet."

var (
	accountIDPattern  = regexp.MustCompile(`^\d+\.\d+\.\d+$`)
	evmAddressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

	walletLinePattern    = regexp.MustCompile(`(?m)^Wallet: (\S+)$`)
	timestampLinePattern = regexp.MustCompile(`(?m)^Timestamp: (-?\d+)$`)
)

// Challenge is a sign-in message bound to a wallet and an issue time.
// Challenges are never stored; validity is derived from the message itself.
type Challenge struct {
	WalletAddress  string
	IssuedAtMillis int64
	Nonce          string
	Message        string
	ExpiresAt      time.Time
}

// IsWalletAddress reports whether s is an account id or an EVM address
func IsWalletAddress(s string) bool {
	return accountIDPattern.MatchString(s) || evmAddressPattern.MatchString(s)
}

// IsEVMAddress reports whether s is a 0x-prefixed 20-byte address
func IsEVMAddress(s string) bool {
	return evmAddressPattern.MatchString(s)
}

// ChallengeIssuer renders and validates sign-in challenges
type ChallengeIssuer struct {
	now      func() time.Time
	newNonce func() string
}

// NewChallengeIssuer creates an issuer on the wall clock
func NewChallengeIssuer() *ChallengeIssuer {
	return &ChallengeIssuer{now: time.Now, newNonce: uuid.NewString}
}

// WithClock returns a copy of the issuer reading time from now
func (c *ChallengeIssuer) WithClock(now func() time.Time) *ChallengeIssuer {
	cp := *c
	cp.now = now
	return &cp
}

// CreateChallenge renders a fresh challenge for walletAddress
func (c *ChallengeIssuer) CreateChallenge(walletAddress string) (*Challenge, error) {
	walletAddress = strings.TrimSpace(walletAddress)
	if !IsWalletAddress(walletAddress) {
		return nil, ErrInvalidWalletAddress
	}

	issued := c.now()
	millis := issued.UnixMilli()
	nonce := c.newNonce()

	return &Challenge{
		WalletAddress:  walletAddress,
		IssuedAtMillis: millis,
		Nonce:          nonce,
		Message:        renderChallenge(walletAddress, nonce, millis),
		ExpiresAt:      time.UnixMilli(millis).Add(ChallengeTTL),
	}, nil
}

func renderChallenge(wallet, nonce string, millis int64) string {
	return fmt.Sprintf("%s\n\nWallet: %s\nNonce: %s\nTimestamp: %d", challengeHeader, wallet, nonce, millis)
}

// ValidateChallenge checks the age of a challenge message. It has no side
// effects; the same message validates identically until it expires.
func (c *ChallengeIssuer) ValidateChallenge(message string) error {
	issued, ok := ExtractTimestamp(message)
	if !ok {
		return ErrMalformedChallenge
	}

	age := c.now().UnixMilli() - issued
	switch {
	case age < 0:
		return ErrFutureTimestamp
	case age > ChallengeTTL.Milliseconds():
		return ErrExpiredChallenge
	}
	return nil
}

// ExtractWallet returns the wallet embedded in a challenge message
func ExtractWallet(message string) (string, bool) {
	m := walletLinePattern.FindStringSubmatch(message)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ExtractTimestamp returns the issue time (unix millis) embedded in a challenge message
func ExtractTimestamp(message string) (int64, bool) {
	m := timestampLinePattern.FindStringSubmatch(message)
	if m == nil {
		return 0, false
	}
	millis, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return millis, true
}

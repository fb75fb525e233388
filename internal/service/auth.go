package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/forgo/canvas/internal/database"
	"github.com/forgo/canvas/internal/ledger"
	"github.com/forgo/canvas/internal/metrics"
	"github.com/forgo/canvas/internal/model"
	"github.com/forgo/canvas/pkg/jwt"
	"github.com/hashgraph/hedera-sdk-go/v2"
)

// UserRepository defines the interface for wallet identity storage
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByWallet(ctx context.Context, walletAddress string) (*model.User, error)
	TouchLogin(ctx context.Context, userID string) error
}

// AccountResolver looks up the ledger's record of an account
type AccountResolver interface {
	Account(ctx context.Context, accountID string) (*ledger.AccountInfo, error)
}

// AuthService handles wallet sign-in and registration
type AuthService struct {
	userRepo   UserRepository
	challenges *ChallengeIssuer
	verifier   *SignatureVerifier
	tokens     *SessionTokenCodec
	accounts   AccountResolver
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// AuthServiceConfig holds configuration for the auth service
type AuthServiceConfig struct {
	UserRepo   UserRepository
	Challenges *ChallengeIssuer
	Verifier   *SignatureVerifier
	Tokens     *SessionTokenCodec
	// Accounts, when set, confirms that a signing key or EVM address
	// actually belongs to the claimed account
	Accounts AccountResolver
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(cfg AuthServiceConfig) *AuthService {
	if cfg.Challenges == nil {
		cfg.Challenges = NewChallengeIssuer()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Verifier == nil {
		cfg.Verifier = NewSignatureVerifier(cfg.Logger)
	}
	return &AuthService{
		userRepo:   cfg.UserRepo,
		challenges: cfg.Challenges,
		verifier:   cfg.Verifier,
		tokens:     cfg.Tokens,
		accounts:   cfg.Accounts,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
	}
}

// AuthResult is the outcome of a sign-in. Unknown wallets get
// RegistrationRequired instead of a token.
type AuthResult struct {
	User                 *model.User
	Token                *SessionToken
	RegistrationRequired bool
	WalletAddress        string
}

// RequestChallenge issues a sign-in challenge for a wallet
func (s *AuthService) RequestChallenge(ctx context.Context, walletAddress string) (*Challenge, error) {
	return s.challenges.CreateChallenge(walletAddress)
}

// Authenticate verifies a signed challenge and signs the wallet in
func (s *AuthService) Authenticate(ctx context.Context, req model.WalletLoginRequest) (*AuthResult, error) {
	wallet, err := s.verifyProof(ctx, req)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetByWallet(ctx, wallet)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return &AuthResult{RegistrationRequired: true, WalletAddress: wallet}, nil
	}

	token, err := s.tokens.Issue(user.ID, user.WalletAddress, user.Role)
	if err != nil {
		return nil, err
	}

	if err := s.userRepo.TouchLogin(ctx, user.ID); err != nil {
		s.logger.Warn("failed to record login",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()))
	}

	return &AuthResult{User: user, Token: token, WalletAddress: wallet}, nil
}

// Register creates an identity for a wallet that proves control with a
// signed challenge
func (s *AuthService) Register(ctx context.Context, req model.RegisterWalletRequest) (*AuthResult, error) {
	if !req.Role.IsSelfAssignable() {
		return nil, ErrInvalidRole
	}
	if req.DisplayName != nil {
		name := strings.TrimSpace(*req.DisplayName)
		if len(name) > model.MaxDisplayNameLength {
			return nil, ErrDisplayNameTooLong
		}
		if name == "" {
			req.DisplayName = nil
		} else {
			req.DisplayName = &name
		}
	}

	wallet, err := s.verifyProof(ctx, req.WalletLoginRequest)
	if err != nil {
		return nil, err
	}

	existing, err := s.userRepo.GetByWallet(ctx, wallet)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrWalletAlreadyRegistered
	}

	user := &model.User{
		WalletAddress: wallet,
		DisplayName:   req.DisplayName,
		Role:          req.Role,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return nil, ErrWalletAlreadyRegistered
		}
		return nil, err
	}

	token, err := s.tokens.Issue(user.ID, user.WalletAddress, user.Role)
	if err != nil {
		return nil, err
	}

	s.logger.Info("wallet registered",
		slog.String("user_id", user.ID),
		slog.String("wallet", wallet),
		slog.String("role", string(user.Role)))

	return &AuthResult{User: user, Token: token, WalletAddress: wallet}, nil
}

// ValidateSession returns the claims of a valid session token
func (s *AuthService) ValidateSession(token string) (*jwt.Claims, error) {
	return s.tokens.Verify(token)
}

// GetUser returns the identity behind a session
func (s *AuthService) GetUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// verifyProof runs the challenge and signature checks shared by sign-in and
// registration and returns the proven wallet
func (s *AuthService) verifyProof(ctx context.Context, req model.WalletLoginRequest) (string, error) {
	wallet := strings.TrimSpace(req.WalletAddress)
	if !IsWalletAddress(wallet) {
		return "", ErrInvalidWalletAddress
	}

	if err := s.challenges.ValidateChallenge(req.Message); err != nil {
		return "", err
	}
	embedded, ok := ExtractWallet(req.Message)
	if !ok {
		return "", ErrMalformedChallenge
	}
	if !strings.EqualFold(embedded, wallet) {
		return "", ErrWalletMismatch
	}

	sigReq := SignatureRequest{
		Message:    req.Message,
		Signature:  req.Signature,
		PublicKey:  req.PublicKey,
		EVMAddress: req.EVMAddress,
	}
	scheme, _ := sigReq.Scheme()

	// an EVM wallet can only be proven by its own address
	if IsEVMAddress(wallet) && scheme == SchemeRecoverableAddress && !strings.EqualFold(wallet, req.EVMAddress) {
		s.metrics.RecordAuth(string(scheme), "wallet_mismatch")
		return "", ErrWalletMismatch
	}

	verdict := s.verifier.Verify(sigReq)
	if !verdict.Verified {
		s.metrics.RecordAuth(string(scheme), string(verdict.Reason))
		return "", ErrSignatureRejected
	}

	if err := s.confirmAccountKey(ctx, wallet, scheme, sigReq); err != nil {
		s.metrics.RecordAuth(string(scheme), "account_key_mismatch")
		return "", err
	}

	s.metrics.RecordAuth(string(scheme), "verified")
	return wallet, nil
}

// confirmAccountKey checks with the ledger that the verified signer controls
// the claimed account. Skipped when no resolver is configured.
func (s *AuthService) confirmAccountKey(ctx context.Context, wallet string, scheme Scheme, req SignatureRequest) error {
	if s.accounts == nil || IsEVMAddress(wallet) {
		return nil
	}

	info, err := s.accounts.Account(ctx, wallet)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFoundYet) {
			return ErrAccountKeyMismatch
		}
		return err
	}

	switch scheme {
	case SchemeNativeKey:
		if info.Key == nil || !sameEd25519Key(info.Key.Key, req.PublicKey) {
			return ErrAccountKeyMismatch
		}
	case SchemeRecoverableAddress:
		if !strings.EqualFold(info.EVMAddress, req.EVMAddress) {
			return ErrAccountKeyMismatch
		}
	}
	return nil
}

func sameEd25519Key(a, b string) bool {
	ka, err := hedera.PublicKeyFromStringEd25519(strings.TrimPrefix(a, "0x"))
	if err != nil {
		return false
	}
	kb, err := hedera.PublicKeyFromStringEd25519(strings.TrimPrefix(b, "0x"))
	if err != nil {
		return false
	}
	return ka.StringRaw() == kb.StringRaw()
}

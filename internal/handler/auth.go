package handler

import (
	"context"
	"net/http"

	"github.com/forgo/canvas/internal/middleware"
	"github.com/forgo/canvas/internal/model"
	"github.com/forgo/canvas/internal/service"
)

// AuthAPI is the part of the auth service the handler calls
type AuthAPI interface {
	RequestChallenge(ctx context.Context, walletAddress string) (*service.Challenge, error)
	Authenticate(ctx context.Context, req model.WalletLoginRequest) (*service.AuthResult, error)
	Register(ctx context.Context, req model.RegisterWalletRequest) (*service.AuthResult, error)
	GetUser(ctx context.Context, userID string) (*model.User, error)
}

// AuthHandler handles wallet authentication endpoints
type AuthHandler struct {
	authService AuthAPI
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService AuthAPI) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

// Challenge handles POST /v1/auth/challenge
func (h *AuthHandler) Challenge(w http.ResponseWriter, r *http.Request) {
	var req model.ChallengeRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, model.NewBadRequestError("invalid request body"))
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		WriteError(w, model.NewValidationError(errs))
		return
	}

	challenge, err := h.authService.RequestChallenge(r.Context(), req.WalletAddress)
	if err != nil {
		WriteError(w, MapServiceErrorWithContext(err, "challenge"))
		return
	}

	WriteData(w, http.StatusOK, model.ChallengeResponse{
		Message:   challenge.Message,
		Nonce:     challenge.Nonce,
		ExpiresAt: challenge.ExpiresAt,
	}, map[string]string{
		"verify":   "/v1/auth/verify",
		"register": "/v1/auth/register",
	})
}

// Verify handles POST /v1/auth/verify. A valid signature from a wallet with
// no identity yet answers 200 with registration_required set.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req model.WalletLoginRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, model.NewBadRequestError("invalid request body"))
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		WriteError(w, model.NewValidationError(errs))
		return
	}

	result, err := h.authService.Authenticate(r.Context(), req)
	if err != nil {
		WriteError(w, MapServiceErrorWithContext(err, "verify"))
		return
	}

	if result.RegistrationRequired {
		WriteData(w, http.StatusOK, model.AuthResponse{
			RegistrationRequired: true,
			WalletAddress:        result.WalletAddress,
		}, map[string]string{
			"register": "/v1/auth/register",
		})
		return
	}

	WriteData(w, http.StatusOK, toAuthResponse(result), map[string]string{
		"self": "/v1/auth/me",
	})
}

// Register handles POST /v1/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterWalletRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, model.NewBadRequestError("invalid request body"))
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		WriteError(w, model.NewValidationError(errs))
		return
	}

	result, err := h.authService.Register(r.Context(), req)
	if err != nil {
		WriteError(w, MapServiceErrorWithContext(err, "register"))
		return
	}

	WriteData(w, http.StatusCreated, toAuthResponse(result), map[string]string{
		"self": "/v1/auth/me",
	})
}

// Me handles GET /v1/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		WriteError(w, model.NewUnauthorizedError("authentication required"))
		return
	}

	user, err := h.authService.GetUser(r.Context(), userID)
	if err != nil {
		WriteError(w, MapServiceErrorWithContext(err, "get user"))
		return
	}

	WriteData(w, http.StatusOK, user, map[string]string{
		"self": "/v1/auth/me",
	})
}

func toAuthResponse(result *service.AuthResult) model.AuthResponse {
	resp := model.AuthResponse{
		User:          result.User,
		WalletAddress: result.WalletAddress,
	}
	if result.Token != nil {
		resp.Token = result.Token.Token
		resp.ExpiresIn = result.Token.ExpiresIn
	}
	return resp
}

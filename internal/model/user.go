package model

import (
	"strings"
	"time"
)

// UserRole represents the role of a wallet identity in the marketplace
type UserRole string

const (
	UserRoleBuyer  UserRole = "buyer"  // Default role, can purchase listed assets
	UserRoleArtist UserRole = "artist" // Can mint and list assets
	UserRoleAdmin  UserRole = "admin"  // Operator access, never self-assigned
)

// IsValid returns true if the role is a known role
func (r UserRole) IsValid() bool {
	switch r {
	case UserRoleBuyer, UserRoleArtist, UserRoleAdmin:
		return true
	default:
		return false
	}
}

// IsSelfAssignable returns true if a wallet may pick this role at registration
func (r UserRole) IsSelfAssignable() bool {
	return r == UserRoleBuyer || r == UserRoleArtist
}

// User represents a registered wallet identity
type User struct {
	ID            string     `json:"id"`
	WalletAddress string     `json:"wallet_address"`
	DisplayName   *string    `json:"display_name,omitempty"`
	Role          UserRole   `json:"role"`
	CreatedOn     time.Time  `json:"created_on"`
	UpdatedOn     time.Time  `json:"updated_on"`
	LoginOn       *time.Time `json:"login_on,omitempty"`
}

// IsAdmin returns true if the user has admin role
func (u *User) IsAdmin() bool {
	return u.Role == UserRoleAdmin
}

// Identity is the subset of a user carried in session claims
type Identity struct {
	UserID        string   `json:"user_id"`
	WalletAddress string   `json:"wallet_address"`
	Role          UserRole `json:"role"`
}

// Identity returns the claim subset for the user
func (u *User) Identity() Identity {
	return Identity{UserID: u.ID, WalletAddress: u.WalletAddress, Role: u.Role}
}

// ChallengeRequest asks for a sign-in challenge
type ChallengeRequest struct {
	WalletAddress string `json:"wallet_address"`
}

// Validate checks if the challenge request is valid
func (r *ChallengeRequest) Validate() []FieldError {
	var errors []FieldError
	if strings.TrimSpace(r.WalletAddress) == "" {
		errors = append(errors, FieldError{Field: "wallet_address", Message: "wallet_address is required"})
	}
	return errors
}

// ChallengeResponse carries a rendered challenge back to the wallet
type ChallengeResponse struct {
	Message   string    `json:"message"`
	Nonce     string    `json:"nonce"`
	ExpiresAt time.Time `json:"expires_at"`
}

// WalletLoginRequest proves control of a wallet by signing a challenge.
// Exactly one of PublicKey (native Ed25519 key) or EVMAddress (recoverable
// secp256k1 signature) selects the verification scheme.
type WalletLoginRequest struct {
	WalletAddress string `json:"wallet_address"`
	Message       string `json:"message"`
	Signature     string `json:"signature"`
	PublicKey     string `json:"public_key,omitempty"`
	EVMAddress    string `json:"evm_address,omitempty"`
}

// Validate checks if the login request is valid
func (r *WalletLoginRequest) Validate() []FieldError {
	var errors []FieldError

	if strings.TrimSpace(r.WalletAddress) == "" {
		errors = append(errors, FieldError{Field: "wallet_address", Message: "wallet_address is required"})
	}
	if r.Message == "" {
		errors = append(errors, FieldError{Field: "message", Message: "message is required"})
	}
	if r.Signature == "" {
		errors = append(errors, FieldError{Field: "signature", Message: "signature is required"})
	}
	switch {
	case r.PublicKey == "" && r.EVMAddress == "":
		errors = append(errors, FieldError{Field: "public_key", Message: "one of public_key or evm_address is required"})
	case r.PublicKey != "" && r.EVMAddress != "":
		errors = append(errors, FieldError{Field: "evm_address", Message: "public_key and evm_address are mutually exclusive"})
	}

	return errors
}

// RegisterWalletRequest creates an identity for a verified wallet
type RegisterWalletRequest struct {
	WalletLoginRequest
	Role        UserRole `json:"role"`
	DisplayName *string  `json:"display_name,omitempty"`
}

// MaxDisplayNameLength bounds the optional display name
const MaxDisplayNameLength = 50

// Validate checks if the register request is valid
func (r *RegisterWalletRequest) Validate() []FieldError {
	errors := r.WalletLoginRequest.Validate()

	if r.Role == "" {
		errors = append(errors, FieldError{Field: "role", Message: "role is required"})
	} else if !r.Role.IsSelfAssignable() {
		errors = append(errors, FieldError{Field: "role", Message: "role must be 'buyer' or 'artist'"})
	}
	if r.DisplayName != nil && len(*r.DisplayName) > MaxDisplayNameLength {
		errors = append(errors, FieldError{Field: "display_name", Message: "display_name must be 50 characters or less"})
	}

	return errors
}

// AuthResponse is returned after a successful wallet login or registration
type AuthResponse struct {
	User                 *User  `json:"user,omitempty"`
	Token                string `json:"token,omitempty"`
	ExpiresIn            int    `json:"expires_in,omitempty"`
	RegistrationRequired bool   `json:"registration_required,omitempty"`
	WalletAddress        string `json:"wallet_address,omitempty"`
}

package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/forgo/canvas/internal/database"
	"github.com/forgo/canvas/internal/model"
)

// UserRepository handles wallet identity data access
type UserRepository struct {
	db database.Database
}

// NewUserRepository creates a new user repository
func NewUserRepository(db database.Database) *UserRepository {
	return &UserRepository{db: db}
}

// Create creates a new wallet identity. A wallet can only be registered once;
// the unique index on wallet_address surfaces as database.ErrDuplicate.
func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	role := user.Role
	if role == "" {
		role = model.UserRoleBuyer
	}

	query := `
		CREATE user CONTENT {
			wallet_address: $wallet_address,
			display_name: IF $display_name IS NOT NULL THEN $display_name ELSE NONE END,
			role: $role,
			created_on: time::now(),
			updated_on: time::now()
		}
	`
	vars := map[string]interface{}{
		"wallet_address": user.WalletAddress,
		"display_name":   optional(user.DisplayName),
		"role":           string(role),
	}

	result, err := r.db.Query(ctx, query, vars)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: wallet already registered", database.ErrDuplicate)
		}
		return err
	}

	data, err := asRecord(firstOrNil(result))
	if err != nil {
		return err
	}

	user.ID = convertSurrealID(data["id"])
	user.Role = role
	user.CreatedOn = getTimeValue(data, "created_on")
	user.UpdatedOn = getTimeValue(data, "updated_on")
	return nil
}

// GetByID retrieves a user by ID. Returns nil, nil when absent.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	query := `SELECT * FROM type::record($id)`
	vars := map[string]interface{}{"id": recordID("user", id)}
	return r.getOne(ctx, query, vars)
}

// GetByWallet retrieves a user by wallet address. Returns nil, nil when absent.
func (r *UserRepository) GetByWallet(ctx context.Context, walletAddress string) (*model.User, error) {
	query := `SELECT * FROM user WHERE wallet_address = $wallet_address LIMIT 1`
	vars := map[string]interface{}{"wallet_address": walletAddress}
	return r.getOne(ctx, query, vars)
}

// TouchLogin records a successful sign-in
func (r *UserRepository) TouchLogin(ctx context.Context, userID string) error {
	query := `UPDATE type::record($id) SET login_on = time::now()`
	vars := map[string]interface{}{"id": recordID("user", userID)}
	return r.db.Execute(ctx, query, vars)
}

func (r *UserRepository) getOne(ctx context.Context, query string, vars map[string]interface{}) (*model.User, error) {
	result, err := r.db.QueryOne(ctx, query, vars)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	data, err := asRecord(result)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return parseUser(data), nil
}

func parseUser(data map[string]interface{}) *model.User {
	return &model.User{
		ID:            convertSurrealID(data["id"]),
		WalletAddress: getString(data, "wallet_address"),
		DisplayName:   getStringPtr(data, "display_name"),
		Role:          model.UserRole(getString(data, "role")),
		CreatedOn:     getTimeValue(data, "created_on"),
		UpdatedOn:     getTimeValue(data, "updated_on"),
		LoginOn:       getTime(data, "login_on"),
	}
}

func firstOrNil(result []interface{}) interface{} {
	if len(result) == 0 {
		return nil
	}
	return result[0]
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/forgo/canvas/internal/database"
	"github.com/forgo/canvas/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRepository handles wallet identities
type UserRepository struct {
	db querier
}

// NewUserRepository creates a new user repository
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: pool}
}

const userColumns = `id, wallet_address, display_name, role, created_on, updated_on, login_on`

// Create inserts a wallet identity; a registered wallet yields database.ErrDuplicate
func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.Role == "" {
		user.Role = model.UserRoleBuyer
	}

	err := r.db.QueryRow(ctx, `
		INSERT INTO users (id, wallet_address, display_name, role)
		VALUES ($1, $2, $3, $4)
		RETURNING created_on, updated_on`,
		user.ID, user.WalletAddress, user.DisplayName, string(user.Role),
	).Scan(&user.CreatedOn, &user.UpdatedOn)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: wallet already registered", database.ErrDuplicate)
		}
		return err
	}
	return nil
}

// GetByID returns the user or nil
func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByWallet returns the user registered for a wallet or nil
func (r *UserRepository) GetByWallet(ctx context.Context, walletAddress string) (*model.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE wallet_address = $1`, walletAddress)
}

// TouchLogin records a successful sign-in
func (r *UserRepository) TouchLogin(ctx context.Context, userID string) error {
	_, err := r.db.Exec(ctx, `UPDATE users SET login_on = now() WHERE id = $1`, userID)
	return err
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg string) (*model.User, error) {
	var u model.User
	var role string
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&u.ID, &u.WalletAddress, &u.DisplayName, &role, &u.CreatedOn, &u.UpdatedOn, &u.LoginOn,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.Role = model.UserRole(role)
	return &u, nil
}

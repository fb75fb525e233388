// Package fixtures provides test data factories for repository tests.
//
// Each factory method creates entities with sensible defaults while allowing
// customization via option functions.
//
//	f := fixtures.New(tdb.DB)
//	seller := f.CreateUser(t, fixtures.WithRole(model.UserRoleArtist))
//	asset := f.CreateListedAsset(t, seller, decimal.NewFromInt(100))
package fixtures

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/forgo/canvas/internal/database"
	"github.com/forgo/canvas/internal/model"
	"github.com/shopspring/decimal"
)

// Factory creates test entities in the database
type Factory struct {
	db database.Database
}

// New creates a new fixture factory
func New(db database.Database) *Factory {
	return &Factory{db: db}
}

func randomID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func (f *Factory) query(t *testing.T, query string, vars map[string]interface{}) map[string]interface{} {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results, err := f.db.Query(ctx, query, vars)
	if err != nil {
		t.Fatalf("fixtures: query failed: %v\nQuery: %s", err, query)
	}
	rec, err := database.FirstRecord(results)
	if err != nil {
		t.Fatalf("fixtures: no record returned: %v", err)
	}
	data, ok := rec.(map[string]interface{})
	if !ok {
		t.Fatalf("fixtures: unexpected record type %T", rec)
	}
	return data
}

// UserOpts customizes user creation
type UserOpts struct {
	WalletAddress string
	Role          model.UserRole
}

// WithRole sets the user's role
func WithRole(role model.UserRole) func(*UserOpts) {
	return func(o *UserOpts) { o.Role = role }
}

// WithWallet sets the user's wallet address
func WithWallet(wallet string) func(*UserOpts) {
	return func(o *UserOpts) { o.WalletAddress = wallet }
}

// CreateUser creates a wallet identity with a random account id
func (f *Factory) CreateUser(t *testing.T, opts ...func(*UserOpts)) *model.User {
	t.Helper()

	o := &UserOpts{
		WalletAddress: fmt.Sprintf("0.0.%d", 100000+time.Now().UnixNano()%900000),
		Role:          model.UserRoleBuyer,
	}
	for _, fn := range opts {
		fn(o)
	}

	data := f.query(t, `
		CREATE user CONTENT {
			wallet_address: $wallet,
			role: $role,
			created_on: time::now(),
			updated_on: time::now()
		}
	`, map[string]interface{}{"wallet": o.WalletAddress, "role": string(o.Role)})

	return &model.User{
		ID:            idString(data["id"]),
		WalletAddress: o.WalletAddress,
		Role:          o.Role,
	}
}

// CreateListedAsset creates an asset owned by owner, listed at price
func (f *Factory) CreateListedAsset(t *testing.T, owner *model.User, price decimal.Decimal) *model.Asset {
	t.Helper()

	tokenID := "0.0.9" + randomID()[:4]
	data := f.query(t, `
		CREATE asset CONTENT {
			title: $title,
			creator: type::record($owner),
			owner: type::record($owner),
			token_id: $token_id,
			serial_number: 1,
			listed: true,
			price: <decimal> $price,
			created_on: time::now(),
			updated_on: time::now()
		}
	`, map[string]interface{}{
		"title":    "Untitled " + randomID(),
		"owner":    owner.ID,
		"token_id": tokenID,
		"price":    price.String(),
	})

	return &model.Asset{
		ID:           idString(data["id"]),
		CreatorID:    owner.ID,
		OwnerID:      owner.ID,
		TokenID:      tokenID,
		SerialNumber: 1,
		Listed:       true,
		Price:        &price,
	}
}

// idString renders a SurrealDB record id as "table:id"
func idString(v interface{}) string {
	switch id := v.(type) {
	case string:
		return id
	case fmt.Stringer:
		return id.String()
	case map[string]interface{}:
		if tb, ok := id["tb"].(string); ok {
			return fmt.Sprintf("%s:%v", tb, id["id"])
		}
	}
	return fmt.Sprintf("%v", v)
}

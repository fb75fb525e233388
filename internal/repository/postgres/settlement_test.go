package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/forgo/canvas/internal/database"
	"github.com/forgo/canvas/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupPool connects to CANVAS_TEST_POSTGRES_DSN or skips
func setupPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("CANVAS_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CANVAS_TEST_POSTGRES_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := Connect(ctx, Config{DSN: dsn, MaxConns: 4})
	if err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}
	require.NoError(t, Migrate(ctx, pool))
	t.Cleanup(pool.Close)
	return pool
}

func seedListedAsset(t *testing.T, pool *pgxpool.Pool, owner *model.User, price string) string {
	t.Helper()

	id := uuid.NewString()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO assets (id, title, creator_id, owner_id, token_id, serial_number, listed, price)
		VALUES ($1, 'Dune', $2, $2, $3, 1, true, $4)`,
		id, owner.ID, "0.0."+id[:6], decimal.RequireFromString(price))
	require.NoError(t, err)
	return id
}

func newUser(t *testing.T, users *UserRepository, role model.UserRole) *model.User {
	t.Helper()

	u := &model.User{WalletAddress: "0.0." + uuid.NewString()[:8], Role: role}
	require.NoError(t, users.Create(context.Background(), u))
	return u
}

func TestUserRepository_DuplicateWallet(t *testing.T) {
	pool := setupPool(t)
	users := NewUserRepository(pool)
	ctx := context.Background()

	u := newUser(t, users, model.UserRoleBuyer)

	err := users.Create(ctx, &model.User{WalletAddress: u.WalletAddress, Role: model.UserRoleBuyer})
	assert.ErrorIs(t, err, database.ErrDuplicate)

	got, err := users.GetByWallet(ctx, u.WalletAddress)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.ID, got.ID)

	missing, err := users.GetByID(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSettlementStore_CommitSale(t *testing.T) {
	pool := setupPool(t)
	users := NewUserRepository(pool)
	store := NewSettlementStore(pool)
	ctx := context.Background()

	seller := newUser(t, users, model.UserRoleArtist)
	buyer := newUser(t, users, model.UserRoleBuyer)
	assetID := seedListedAsset(t, pool, seller, "100")

	asset, err := store.GetAssetForPurchase(ctx, assetID)
	require.NoError(t, err)
	require.NotNil(t, asset)
	assert.Equal(t, seller.WalletAddress, asset.OwnerWallet)
	require.NotNil(t, asset.Price)
	assert.True(t, asset.Price.Equal(decimal.NewFromInt(100)))

	txID := "0.0.2@1700000000." + uuid.NewString()[:9]
	attempt := &model.PurchaseAttempt{
		ID:           uuid.NewString(),
		AssetID:      assetID,
		BuyerID:      buyer.ID,
		SellerID:     seller.ID,
		GrossPrice:   decimal.NewFromInt(100),
		FeeAmount:    decimal.NewFromInt(2),
		SellerAmount: decimal.NewFromInt(98),
		Status:       model.AttemptSubmitting,
	}
	require.NoError(t, store.CreateAttempt(ctx, attempt))

	attempt.Status = model.AttemptConfirmed
	attempt.TransactionID = &txID
	require.NoError(t, store.UpdateAttempt(ctx, attempt))

	sale := attempt.SaleRecord(uuid.NewString(), time.Now())
	require.NoError(t, store.CommitSale(ctx, attempt, sale))
	assert.Equal(t, model.AttemptPersisted, attempt.Status)

	after, err := store.GetAssetForPurchase(ctx, assetID)
	require.NoError(t, err)
	assert.Equal(t, buyer.ID, after.OwnerID)
	assert.False(t, after.Listed)
	assert.Nil(t, after.Price)

	recorded, err := store.GetSaleByTransactionID(ctx, txID)
	require.NoError(t, err)
	require.NotNil(t, recorded)
	assert.True(t, recorded.FeeAmount.Add(recorded.SellerAmount).Equal(recorded.GrossPrice))

	recent, err := store.FindRecentSale(ctx, assetID, buyer.ID, 5*time.Minute)
	require.NoError(t, err)
	require.NotNil(t, recent)
	assert.Equal(t, txID, recent.TransactionID)

	// a second commit for the same ledger transaction is rejected atomically
	again := attempt.SaleRecord(uuid.NewString(), time.Now())
	err = store.CommitSale(ctx, attempt, again)
	assert.ErrorIs(t, err, database.ErrDuplicate)
}

func TestSettlementStore_ListAttemptsForReconciliation(t *testing.T) {
	pool := setupPool(t)
	users := NewUserRepository(pool)
	store := NewSettlementStore(pool)
	ctx := context.Background()

	seller := newUser(t, users, model.UserRoleArtist)
	buyer := newUser(t, users, model.UserRoleBuyer)
	assetID := seedListedAsset(t, pool, seller, "5")

	txID := "0.0.2@1700000001." + uuid.NewString()[:9]
	attempt := &model.PurchaseAttempt{
		ID:           uuid.NewString(),
		AssetID:      assetID,
		BuyerID:      buyer.ID,
		SellerID:     seller.ID,
		GrossPrice:   decimal.NewFromInt(5),
		FeeAmount:    decimal.RequireFromString("0.1"),
		SellerAmount: decimal.RequireFromString("4.9"),
		Status:       model.AttemptSubmitting,
	}
	require.NoError(t, store.CreateAttempt(ctx, attempt))
	attempt.Status = model.AttemptTimedOut
	attempt.TransactionID = &txID
	require.NoError(t, store.UpdateAttempt(ctx, attempt))

	// zero grace picks up the attempt immediately
	attempts, err := store.ListAttemptsForReconciliation(ctx, 0, 100)
	require.NoError(t, err)

	var found bool
	for _, a := range attempts {
		if a.ID == attempt.ID {
			found = true
			assert.Equal(t, model.AttemptTimedOut, a.Status)
		}
	}
	assert.True(t, found)

	recent, err := store.FindRecentAttempt(ctx, assetID, buyer.ID, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, recent)
	assert.Equal(t, attempt.ID, recent.ID)
}

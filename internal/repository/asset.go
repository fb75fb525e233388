package repository

import (
	"context"
	"errors"

	"github.com/forgo/canvas/internal/database"
	"github.com/forgo/canvas/internal/model"
)

// AssetRepository handles asset ownership data access
type AssetRepository struct {
	db database.Database
}

// NewAssetRepository creates a new asset repository
func NewAssetRepository(db database.Database) *AssetRepository {
	return &AssetRepository{db: db}
}

// GetForPurchase loads the purchase projection of an asset, resolving the
// owner's wallet through the owner record link. Returns nil, nil when absent.
func (r *AssetRepository) GetForPurchase(ctx context.Context, assetID string) (*model.AssetForPurchase, error) {
	query := `
		SELECT id, owner, owner.wallet_address AS owner_wallet, token_id, serial_number, listed, price
		FROM type::record($id)
	`
	vars := map[string]interface{}{"id": recordID("asset", assetID)}

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

	return &model.AssetForPurchase{
		ID:           convertSurrealID(data["id"]),
		OwnerID:      convertSurrealID(data["owner"]),
		OwnerWallet:  getString(data, "owner_wallet"),
		TokenID:      getString(data, "token_id"),
		SerialNumber: getInt64(data, "serial_number"),
		Listed:       getBool(data, "listed"),
		Price:        getDecimalPtr(data, "price"),
	}, nil
}

// UpdateOwnership transfers the asset to newOwnerID, unlists it and clears
// its price
func (r *AssetRepository) UpdateOwnership(ctx context.Context, assetID, newOwnerID string) error {
	query, vars := ownershipStatement(assetID, newOwnerID)
	return r.db.Execute(ctx, query, vars)
}

func ownershipStatement(assetID, newOwnerID string) (string, map[string]interface{}) {
	query := `
		UPDATE type::record($asset) SET
			owner = type::record($owner),
			listed = false,
			price = NONE,
			updated_on = time::now()
	`
	return query, map[string]interface{}{
		"asset": recordID("asset", assetID),
		"owner": recordID("user", newOwnerID),
	}
}

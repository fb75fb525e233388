package repository

import (
	"context"

	"github.com/forgo/canvas/internal/database"
	"github.com/forgo/canvas/internal/model"
)

// SettlementStore combines the asset and sale repositories into the single
// persistence gateway the purchase flow depends on
type SettlementStore struct {
	*AssetRepository
	*SaleRepository
}

// NewSettlementStore creates a SurrealDB-backed settlement store
func NewSettlementStore(db database.Database) *SettlementStore {
	return &SettlementStore{
		AssetRepository: NewAssetRepository(db),
		SaleRepository:  NewSaleRepository(db),
	}
}

// GetAssetForPurchase loads the purchase projection of an asset
func (s *SettlementStore) GetAssetForPurchase(ctx context.Context, assetID string) (*model.AssetForPurchase, error) {
	return s.AssetRepository.GetForPurchase(ctx, assetID)
}

// UpdateAssetOwnership transfers an asset to a new owner and unlists it
func (s *SettlementStore) UpdateAssetOwnership(ctx context.Context, assetID, newOwnerID string) error {
	return s.AssetRepository.UpdateOwnership(ctx, assetID, newOwnerID)
}

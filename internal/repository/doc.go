// Package repository implements the SurrealDB data access layer for the
// Canvas API. The postgres subpackage implements the same contracts on pgx.
//
// # Repository Pattern
//
//   - Constructor function (NewXxxRepository) accepts a database.Database
//   - SurrealQL queries with $variable parameters and type::record() ids
//   - Results are parsed into model structs; a missing record is nil, nil
//   - Unique index violations surface as database.ErrDuplicate
//
// SettlementStore composes AssetRepository and SaleRepository into the
// persistence gateway the purchase flow depends on. CommitSale writes the
// ownership move, the sale and the attempt status through one AtomicBatch.
//
// # Example Usage
//
//	store := NewSettlementStore(db)
//	asset, err := store.GetAssetForPurchase(ctx, "asset-1")
//	if err != nil {
//	    return err
//	}
//	if asset == nil {
//	    // not found
//	}
package repository

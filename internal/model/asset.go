package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Asset is a tokenized artwork backed by a single NFT serial on the ledger
type Asset struct {
	ID           string           `json:"id"`
	Title        string           `json:"title"`
	CreatorID    string           `json:"creator_id"`
	OwnerID      string           `json:"owner_id"`
	TokenID      string           `json:"token_id"`
	SerialNumber int64            `json:"serial_number"`
	Listed       bool             `json:"listed"`
	Price        *decimal.Decimal `json:"price,omitempty"`
	CreatedOn    time.Time        `json:"created_on"`
	UpdatedOn    time.Time        `json:"updated_on"`
}

// NFTRef returns the ledger reference of the asset ("tokenId/serial")
func (a *Asset) NFTRef() string {
	return fmt.Sprintf("%s/%d", a.TokenID, a.SerialNumber)
}

// AssetForPurchase is the projection the purchase flow validates against.
// OwnerWallet is resolved from the owner's identity so the transfer legs can
// be addressed without a second lookup.
type AssetForPurchase struct {
	ID           string
	OwnerID      string
	OwnerWallet  string
	TokenID      string
	SerialNumber int64
	Listed       bool
	Price        *decimal.Decimal
}

// NFTRef returns the ledger reference of the asset ("tokenId/serial")
func (a *AssetForPurchase) NFTRef() string {
	return fmt.Sprintf("%s/%d", a.TokenID, a.SerialNumber)
}

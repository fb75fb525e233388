package model

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestUserRole_SelfAssignable(t *testing.T) {
	t.Parallel()

	assert.True(t, UserRoleBuyer.IsSelfAssignable())
	assert.True(t, UserRoleArtist.IsSelfAssignable())
	assert.False(t, UserRoleAdmin.IsSelfAssignable())
	assert.True(t, UserRoleAdmin.IsValid())
	assert.False(t, UserRole("collector").IsValid())
}

func TestWalletLoginRequest_Validate(t *testing.T) {
	t.Parallel()

	base := WalletLoginRequest{
		WalletAddress: "0.0.48123",
		Message:       "hello",
		Signature:     "c2ln",
		PublicKey:     "302a300506032b6570032100",
	}

	tests := []struct {
		name   string
		mutate func(r *WalletLoginRequest)
		field  string
	}{
		{"valid", func(r *WalletLoginRequest) {}, ""},
		{"missing wallet", func(r *WalletLoginRequest) { r.WalletAddress = " " }, "wallet_address"},
		{"missing message", func(r *WalletLoginRequest) { r.Message = "" }, "message"},
		{"missing signature", func(r *WalletLoginRequest) { r.Signature = "" }, "signature"},
		{"no identity", func(r *WalletLoginRequest) { r.PublicKey = "" }, "public_key"},
		{"both identities", func(r *WalletLoginRequest) { r.EVMAddress = "0xabc" }, "evm_address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base
			tt.mutate(&req)
			errs := req.Validate()
			if tt.field == "" {
				assert.Empty(t, errs)
				return
			}
			if assert.Len(t, errs, 1) {
				assert.Equal(t, tt.field, errs[0].Field)
			}
		})
	}
}

func TestRegisterWalletRequest_Validate(t *testing.T) {
	t.Parallel()

	login := WalletLoginRequest{WalletAddress: "0.0.1", Message: "m", Signature: "s", EVMAddress: "0xabc"}

	ok := RegisterWalletRequest{WalletLoginRequest: login, Role: UserRoleArtist}
	assert.Empty(t, ok.Validate())

	admin := RegisterWalletRequest{WalletLoginRequest: login, Role: UserRoleAdmin}
	errs := admin.Validate()
	if assert.Len(t, errs, 1) {
		assert.Equal(t, "role", errs[0].Field)
	}

	long := strings.Repeat("x", MaxDisplayNameLength+1)
	named := RegisterWalletRequest{WalletLoginRequest: login, Role: UserRoleBuyer, DisplayName: &long}
	errs = named.Validate()
	if assert.Len(t, errs, 1) {
		assert.Equal(t, "display_name", errs[0].Field)
	}
}

func TestPurchaseRequest_Validate(t *testing.T) {
	t.Parallel()

	assert.Len(t, (&PurchaseRequest{}).Validate(), 1)

	zero := decimal.Zero
	assert.Len(t, (&PurchaseRequest{ExpectedPrice: &zero}).Validate(), 1)

	price := decimal.RequireFromString("100")
	assert.Empty(t, (&PurchaseRequest{ExpectedPrice: &price}).Validate())
}

func TestAttemptStatus(t *testing.T) {
	t.Parallel()

	assert.True(t, AttemptPersisted.IsTerminal())
	assert.True(t, AttemptFailed.IsTerminal())
	assert.False(t, AttemptSubmitted.IsTerminal())

	assert.True(t, AttemptConfirmed.NeedsReconciliation())
	assert.True(t, AttemptTimedOut.NeedsReconciliation())
	assert.False(t, AttemptSubmitting.NeedsReconciliation())
	assert.False(t, AttemptPersisted.NeedsReconciliation())
}

func TestPurchaseAttempt_SaleRecord(t *testing.T) {
	t.Parallel()

	tx := "0.0.2@1700000000.1"
	a := &PurchaseAttempt{
		AssetID:       "a1",
		BuyerID:       "b1",
		SellerID:      "s1",
		GrossPrice:    decimal.NewFromInt(100),
		FeeAmount:     decimal.NewFromInt(2),
		SellerAmount:  decimal.NewFromInt(98),
		TransactionID: &tx,
	}

	sale := a.SaleRecord("sale1", a.CreatedOn)
	assert.Equal(t, SaleStatusCompleted, sale.Status)
	assert.Equal(t, tx, sale.TransactionID)
	assert.True(t, sale.FeeAmount.Add(sale.SellerAmount).Equal(sale.GrossPrice))
}

func TestAsset_NFTRef(t *testing.T) {
	t.Parallel()

	a := &Asset{TokenID: "0.0.9001", SerialNumber: 7}
	assert.Equal(t, "0.0.9001/7", a.NFTRef())
}

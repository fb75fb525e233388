package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/forgo/canvas/internal/config"
	"github.com/hashgraph/hedera-sdk-go/v2"
)

// HederaGateway submits transfers through the Hedera SDK. The client pays
// fees and signs as the configured operator.
type HederaGateway struct {
	client    *hedera.Client
	treasury  hedera.AccountID
	custodial []hedera.PrivateKey
	now       func() time.Time
}

// NewHederaGateway creates a gateway for the configured network and operator
func NewHederaGateway(cfg config.HederaConfig) (*HederaGateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := hedera.ClientForName(cfg.Network)
	if err != nil {
		return nil, fmt.Errorf("ledger client for %q: %w", cfg.Network, err)
	}

	operatorID, err := hedera.AccountIDFromString(cfg.OperatorID)
	if err != nil {
		return nil, fmt.Errorf("invalid HEDERA_OPERATOR_ID: %w", err)
	}
	operatorKey, err := hedera.PrivateKeyFromString(cfg.OperatorKey)
	if err != nil {
		return nil, fmt.Errorf("invalid HEDERA_OPERATOR_KEY: %w", err)
	}
	client.SetOperator(operatorID, operatorKey)

	treasury, err := hedera.AccountIDFromString(cfg.TreasuryID)
	if err != nil {
		return nil, fmt.Errorf("invalid HEDERA_TREASURY_ID: %w", err)
	}

	custodial := make([]hedera.PrivateKey, 0, len(cfg.CustodialKeys))
	for i, raw := range cfg.CustodialKeys {
		key, err := hedera.PrivateKeyFromString(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("invalid custodial key %d: %w", i, err)
		}
		custodial = append(custodial, key)
	}

	return &HederaGateway{
		client:    client,
		treasury:  treasury,
		custodial: custodial,
		now:       time.Now,
	}, nil
}

// Close releases the network client
func (g *HederaGateway) Close() error {
	return g.client.Close()
}

// Submit builds, signs and executes the settlement transfer
func (g *HederaGateway) Submit(ctx context.Context, order TransferOrder) (*Submission, error) {
	if err := order.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tx, err := buildTransfer(order, g.treasury)
	if err != nil {
		return nil, err
	}

	frozen, err := tx.FreezeWith(g.client)
	if err != nil {
		return nil, &Error{Op: "freeze", Err: fmt.Errorf("%w: %v", ErrUnknownLedgerFailure, err)}
	}
	for _, key := range g.custodial {
		frozen = frozen.Sign(key)
	}

	resp, err := frozen.Execute(g.client)
	if err != nil {
		mapped := mapSubmitError(err)
		slog.Warn("ledger submission rejected",
			slog.String("asset", order.NFTRef()),
			slog.String("error", err.Error()))
		return nil, mapped
	}

	return &Submission{
		TransactionID: resp.TransactionID.String(),
		SubmittedAt:   g.now(),
	}, nil
}

// buildTransfer assembles the four settlement legs into one transaction
func buildTransfer(order TransferOrder, defaultTreasury hedera.AccountID) (*hedera.TransferTransaction, error) {
	buyer, err := parseAccount(order.Buyer)
	if err != nil {
		return nil, fmt.Errorf("%w: buyer: %v", ErrInvalidOrder, err)
	}
	seller, err := parseAccount(order.Seller)
	if err != nil {
		return nil, fmt.Errorf("%w: seller: %v", ErrInvalidOrder, err)
	}
	treasury := defaultTreasury
	if order.Treasury != "" {
		if treasury, err = parseAccount(order.Treasury); err != nil {
			return nil, fmt.Errorf("%w: treasury: %v", ErrInvalidOrder, err)
		}
	}
	tokenID, err := hedera.TokenIDFromString(order.TokenID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAssetReference, err)
	}
	nft := hedera.NftID{TokenID: tokenID, SerialNumber: order.SerialNumber}

	tx := hedera.NewTransferTransaction().
		AddHbarTransfer(buyer, hedera.HbarFromTinybar(-ToTinybars(order.GrossPrice))).
		AddHbarTransfer(seller, hedera.HbarFromTinybar(ToTinybars(order.SellerAmount))).
		AddNftTransfer(nft, seller, buyer)
	if order.FeeAmount.IsPositive() {
		tx = tx.AddHbarTransfer(treasury, hedera.HbarFromTinybar(ToTinybars(order.FeeAmount)))
	}
	if order.Memo != "" {
		tx = tx.SetTransactionMemo(order.Memo)
	}
	return tx, nil
}

// parseAccount accepts "shard.realm.num" or a 0x-prefixed EVM address
func parseAccount(s string) (hedera.AccountID, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return hedera.AccountIDFromEvmAddress(0, 0, s[2:])
	}
	return hedera.AccountIDFromString(s)
}

func mapSubmitError(err error) error {
	var precheck hedera.ErrHederaPreCheckStatus
	if errors.As(err, &precheck) {
		return statusError("submit", precheck.Status.String(), precheck.TxID.String())
	}
	var receipt hedera.ErrHederaReceiptStatus
	if errors.As(err, &receipt) {
		return statusError("submit", receipt.Status.String(), receipt.TxID.String())
	}
	return &Error{Op: "submit", Err: fmt.Errorf("%w: %v", ErrUnknownLedgerFailure, err)}
}

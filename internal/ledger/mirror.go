package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/forgo/canvas/internal/config"
)

// ResultSuccess is the mirror result code of a transaction that reached consensus
const ResultSuccess = "SUCCESS"

var txIDPattern = regexp.MustCompile(`^(\d+\.\d+\.\d+)@(\d+)\.(\d+)$`)

// TxStatus is the mirror node view of a transaction
type TxStatus struct {
	TransactionID      string `json:"transaction_id"`
	Result             string `json:"result"`
	ConsensusTimestamp string `json:"consensus_timestamp"`
}

// Succeeded reports whether the transaction reached consensus successfully
func (s *TxStatus) Succeeded() bool {
	return s.Result == ResultSuccess
}

// AccountKey is the public key registered for an account
type AccountKey struct {
	Type string `json:"_type"` // ED25519, ECDSA_SECP256K1, ProtobufEncoded
	Key  string `json:"key"`
}

// MirrorClient reads transaction and account state from the mirror node REST API
type MirrorClient struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// NewMirrorClient creates a client for the configured mirror node
func NewMirrorClient(cfg config.MirrorConfig) *MirrorClient {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MirrorClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{},
		timeout:    timeout,
	}
}

// MirrorTransactionID converts "0.0.x@seconds.nanos" to the mirror's
// "0.0.x-seconds-nanos" path form
func MirrorTransactionID(txID string) (string, error) {
	m := txIDPattern.FindStringSubmatch(txID)
	if m == nil {
		return "", fmt.Errorf("malformed transaction id %q", txID)
	}
	return m[1] + "-" + m[2] + "-" + m[3], nil
}

// TransactionStatus looks up a transaction. ErrNotFoundYet is returned until
// the mirror has indexed it.
func (c *MirrorClient) TransactionStatus(ctx context.Context, txID string) (*TxStatus, error) {
	id, err := MirrorTransactionID(txID)
	if err != nil {
		return nil, err
	}

	var body struct {
		Transactions []TxStatus `json:"transactions"`
	}
	if err := c.get(ctx, "/api/v1/transactions/"+url.PathEscape(id), &body); err != nil {
		return nil, err
	}
	if len(body.Transactions) == 0 {
		return nil, ErrNotFoundYet
	}

	// child records follow the parent; the parent carries the transfer result
	status := body.Transactions[0]
	return &status, nil
}

// AccountInfo is the mirror node view of an account
type AccountInfo struct {
	Account    string      `json:"account"`
	EVMAddress string      `json:"evm_address"`
	Key        *AccountKey `json:"key"`
}

// Account looks up an account by id or EVM address
func (c *MirrorClient) Account(ctx context.Context, accountID string) (*AccountInfo, error) {
	var info AccountInfo
	if err := c.get(ctx, "/api/v1/accounts/"+url.PathEscape(accountID), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// AccountPublicKey returns the key the ledger holds for an account
func (c *MirrorClient) AccountPublicKey(ctx context.Context, accountID string) (*AccountKey, error) {
	info, err := c.Account(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if info.Key == nil {
		return nil, fmt.Errorf("account %s has no key", accountID)
	}
	return info.Key, nil
}

func (c *MirrorClient) get(ctx context.Context, path string, v interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mirror request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFoundYet
	case resp.StatusCode != http.StatusOK:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("mirror returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode mirror response: %w", err)
	}
	return nil
}

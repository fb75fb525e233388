// Package ledger submits settlement transfers to the Hedera network and
// watches the mirror node until they reach consensus.
//
// # Submission
//
// A Gateway turns a TransferOrder into one atomic transfer with four legs:
// the buyer pays the gross price, the seller receives the seller amount, the
// treasury receives the platform fee and the NFT serial moves from seller to
// buyer. Submit returns as soon as the network accepts the transaction.
//
// # Confirmation
//
// The mirror node lags consensus, so a Watcher first waits a fixed baseline
// and then polls the transaction status with optional exponential backoff:
//
//	w := ledger.NewWatcher(mirror)
//	_ = w.WaitForBaseline(ctx, 5*time.Second)
//	conf, err := w.PollStatus(ctx, sub.TransactionID, 10, 2*time.Second)
//
// # Error Handling
//
//   - ErrInsufficientBalance: payer cannot cover the transfer
//   - ErrInvalidSignature: a required signature is missing or wrong
//   - ErrInvalidAssetReference: token or serial does not exist or is not owned
//   - ErrUnknownLedgerFailure: any other rejection, wrapped in *Error
//   - ErrNotFoundYet: mirror has not indexed the transaction
//   - ErrConfirmationTimeout: no conclusive status within the retry budget
package ledger

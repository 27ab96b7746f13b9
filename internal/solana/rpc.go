// Package solana contains the JSON-RPC client used to backfill chain positions of
// swaps and the public key helpers used to validate addresses.
package solana

import "context"

// TransactionFetcher looks up where a transaction landed on chain.
type TransactionFetcher interface {
	// GetTransaction returns the slot and block time of a confirmed transaction,
	// or nil when the node does not know it.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)
}

// Transaction is the chain position of a confirmed transaction.
type Transaction struct {
	Signature string
	Slot      int64
	BlockTime *int64 // unix seconds; nil when the node has no estimate
	Failed    bool
}

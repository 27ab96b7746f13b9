// Package stub provides an in-memory TransactionFetcher for tests.
package stub

import (
	"context"
	"sync"

	"solana-wallet-analytics/internal/solana"
)

// TransactionFetcher serves transactions from a map and counts lookups.
type TransactionFetcher struct {
	mu           sync.Mutex
	Transactions map[string]*solana.Transaction
	Errors       map[string]error
	Calls        int
}

var _ solana.TransactionFetcher = (*TransactionFetcher)(nil)

// NewTransactionFetcher creates an empty fetcher.
func NewTransactionFetcher() *TransactionFetcher {
	return &TransactionFetcher{
		Transactions: make(map[string]*solana.Transaction),
		Errors:       make(map[string]error),
	}
}

// Add registers a transaction at slot with the given block time.
func (f *TransactionFetcher) Add(signature string, slot int64, blockTime int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bt := blockTime
	f.Transactions[signature] = &solana.Transaction{Signature: signature, Slot: slot, BlockTime: &bt}
}

// GetTransaction implements solana.TransactionFetcher.
func (f *TransactionFetcher) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	if err, ok := f.Errors[signature]; ok {
		return nil, err
	}
	tx, ok := f.Transactions[signature]
	if !ok {
		return nil, nil
	}
	cp := *tx
	return &cp, nil
}

package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"solana-wallet-analytics/internal/domain"
	"solana-wallet-analytics/internal/storage"
)

// SwapStore is an in-memory implementation of storage.SwapStore and storage.TradeReader.
// Wallet token aggregates are written to the attached WalletTokenStore under the same lock
// so an import is seen whole or not at all.
type SwapStore struct {
	mu           sync.RWMutex
	data         map[string]*domain.Swap // keyed by tx_hash|event_index
	byPair       map[domain.PairKey][]*domain.Swap
	walletTokens *WalletTokenStore
}

// NewSwapStore creates a new in-memory swap store writing aggregates to walletTokens.
func NewSwapStore(walletTokens *WalletTokenStore) *SwapStore {
	return &SwapStore{
		data:         make(map[string]*domain.Swap),
		byPair:       make(map[domain.PairKey][]*domain.Swap),
		walletTokens: walletTokens,
	}
}

// Compile-time interface checks.
var (
	_ storage.SwapStore   = (*SwapStore)(nil)
	_ storage.TradeReader = (*SwapStore)(nil)
)

// swapKey generates the natural key for a swap.
func swapKey(txHash string, eventIndex int) string {
	return fmt.Sprintf("%s|%d", txHash, eventIndex)
}

// ImportWindow inserts new swaps and rebuilds the aggregates of touched pairs.
func (s *SwapStore) ImportWindow(_ context.Context, swaps []*domain.Swap, rebuild storage.RebuildFunc) (int, error) {
	if len(swaps) == 0 {
		return 0, nil
	}
	for _, swap := range swaps {
		if swap == nil || swap.TxHash == "" || swap.WalletAddress == "" || swap.TokenAddress == "" {
			return 0, storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	inserted := 0
	touched := make(map[domain.PairKey]struct{})
	for _, swap := range swaps {
		key := swapKey(swap.TxHash, swap.EventIndex)
		if _, exists := s.data[key]; exists {
			continue
		}
		cp := *swap
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = now
		}
		s.data[key] = &cp
		pk := cp.PairKey()
		s.byPair[pk] = append(s.byPair[pk], &cp)
		touched[pk] = struct{}{}
		inserted++
	}

	if rebuild != nil && s.walletTokens != nil {
		rows := make([]*domain.WalletToken, 0, len(touched))
		for pk := range touched {
			history := s.sortedPair(pk)
			if wt := rebuild(pk, history); wt != nil {
				rows = append(rows, wt)
			}
		}
		s.walletTokens.upsert(rows)
	}

	return inserted, nil
}

// sortedPair returns copies of a pair's swaps ordered by timestamp. Caller holds the lock.
func (s *SwapStore) sortedPair(pk domain.PairKey) []*domain.Swap {
	src := s.byPair[pk]
	result := make([]*domain.Swap, 0, len(src))
	for _, swap := range src {
		cp := *swap
		result = append(result, &cp)
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Timestamp.Equal(result[j].Timestamp) {
			if result[i].TxHash == result[j].TxHash {
				return result[i].EventIndex < result[j].EventIndex
			}
			return result[i].TxHash < result[j].TxHash
		}
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result
}

// GetByPair retrieves all swaps of a wallet on a token, ordered by timestamp ASC.
func (s *SwapStore) GetByPair(_ context.Context, walletAddress, tokenAddress string) ([]*domain.Swap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.sortedPair(domain.PairKey{WalletAddress: walletAddress, TokenAddress: tokenAddress}), nil
}

// ListMissingBlock retrieves transactions whose swaps lack a block id.
func (s *SwapStore) ListMissingBlock(_ context.Context, limit int) ([]string, error) {
	s.mu.RLock()
	seen := make(map[string]struct{})
	var result []string
	for _, swap := range s.data {
		if swap.BlockID != nil {
			continue
		}
		if _, ok := seen[swap.TxHash]; ok {
			continue
		}
		seen[swap.TxHash] = struct{}{}
		result = append(result, swap.TxHash)
	}
	s.mu.RUnlock()

	sort.Strings(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// UpdateBlocks sets block_id on every swap of each transaction.
func (s *SwapStore) UpdateBlocks(_ context.Context, updates []storage.BlockUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byTx := make(map[string]storage.BlockUpdate, len(updates))
	for _, u := range updates {
		byTx[u.TxHash] = u
	}
	for _, swap := range s.data {
		u, ok := byTx[swap.TxHash]
		if !ok {
			continue
		}
		block := u.BlockID
		swap.BlockID = &block
	}
	return nil
}

// FirstTrades returns the wallet's lowest-block buy and sell of the token.
func (s *SwapStore) FirstTrades(_ context.Context, walletAddress, tokenAddress string) (*domain.TradeRef, *domain.TradeRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var buy, sell *domain.TradeRef
	for _, swap := range s.byPair[domain.PairKey{WalletAddress: walletAddress, TokenAddress: tokenAddress}] {
		if swap.BlockID == nil {
			continue
		}
		ref := tradeRef(swap)
		switch swap.EventType {
		case domain.EventBuy:
			if buy == nil || ref.BlockID < buy.BlockID {
				buy = &ref
			}
		case domain.EventSell:
			if sell == nil || ref.BlockID < sell.BlockID {
				sell = &ref
			}
		}
	}
	return buy, sell, nil
}

// TradesInBlockRange returns trades of the token in [fromBlock, toBlock], excluding a wallet.
func (s *SwapStore) TradesInBlockRange(_ context.Context, tokenAddress string, event domain.EventType, fromBlock, toBlock int64, excludeWallet string) ([]domain.TradeRef, error) {
	s.mu.RLock()
	var result []domain.TradeRef
	for _, swap := range s.data {
		if swap.TokenAddress != tokenAddress || swap.EventType != event || swap.BlockID == nil {
			continue
		}
		if swap.WalletAddress == excludeWallet || *swap.BlockID < fromBlock || *swap.BlockID > toBlock {
			continue
		}
		result = append(result, tradeRef(swap))
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].BlockID == result[j].BlockID {
			return result[i].WalletAddress < result[j].WalletAddress
		}
		return result[i].BlockID < result[j].BlockID
	})
	return result, nil
}

func tradeRef(swap *domain.Swap) domain.TradeRef {
	return domain.TradeRef{
		WalletAddress: swap.WalletAddress,
		TokenAddress:  swap.TokenAddress,
		EventType:     swap.EventType,
		BlockID:       *swap.BlockID,
		Timestamp:     swap.Timestamp,
	}
}

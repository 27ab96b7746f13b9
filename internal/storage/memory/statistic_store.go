package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"solana-wallet-analytics/internal/domain"
	"solana-wallet-analytics/internal/storage"
)

type statisticKey struct {
	wallet string
	period domain.Period
}

// StatisticStore is an in-memory implementation of storage.StatisticStore.
type StatisticStore struct {
	mu      sync.RWMutex
	data    map[statisticKey]*domain.WalletStatistic
	wallets *WalletStore
}

// NewStatisticStore creates a new in-memory statistic store. The wallet store is
// consulted for bot/scam flags when selecting large-buy candidates.
func NewStatisticStore(wallets *WalletStore) *StatisticStore {
	return &StatisticStore{
		data:    make(map[statisticKey]*domain.WalletStatistic),
		wallets: wallets,
	}
}

// Compile-time interface check.
var _ storage.StatisticStore = (*StatisticStore)(nil)

// UpsertBulk writes statistics, replacing rows on (wallet_address, period).
func (s *StatisticStore) UpsertBulk(_ context.Context, stats []*domain.WalletStatistic) error {
	for _, st := range stats {
		if st == nil || st.WalletAddress == "" || !st.Period.IsValid() {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for _, st := range stats {
		cp := *st
		cp.UpdatedAt = now
		s.data[statisticKey{st.WalletAddress, st.Period}] = &cp
	}
	return nil
}

// Get retrieves one statistic.
func (s *StatisticStore) Get(_ context.Context, walletAddress string, period domain.Period) (*domain.WalletStatistic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.data[statisticKey{walletAddress, period}]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *st
	return &cp, nil
}

// GetByWallets retrieves the statistics of a period for the given wallets.
func (s *StatisticStore) GetByWallets(_ context.Context, period domain.Period, addresses []string) ([]*domain.WalletStatistic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.WalletStatistic
	for _, addr := range addresses {
		st, ok := s.data[statisticKey{addr, period}]
		if !ok {
			continue
		}
		cp := *st
		result = append(result, &cp)
	}
	return result, nil
}

// DeleteByPeriod removes every statistic of a period.
func (s *StatisticStore) DeleteByPeriod(_ context.Context, period domain.Period) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.data {
		if key.period == period {
			delete(s.data, key)
		}
	}
	return nil
}

// FindLargeBuyCandidates returns wallets meeting the criteria, excluding bots and scammers.
func (s *StatisticStore) FindLargeBuyCandidates(ctx context.Context, c storage.LargeBuyCriteria) ([]string, error) {
	s.mu.RLock()
	var candidates []string
	for key, all := range s.data {
		if key.period != domain.PeriodAll || !meetsLargeBuy(all, c) {
			continue
		}
		month, ok := s.data[statisticKey{key.wallet, domain.Period30d}]
		if !ok || month.TotalToken < c.Min30dTotalToken {
			continue
		}
		candidates = append(candidates, key.wallet)
	}
	s.mu.RUnlock()

	if s.wallets != nil {
		details, err := s.wallets.GetDetails(ctx, candidates)
		if err != nil {
			return nil, err
		}
		flagged := make(map[string]bool, len(details))
		for _, d := range details {
			flagged[d.WalletAddress] = d.IsBot || d.IsScammer
		}
		kept := candidates[:0]
		for _, addr := range candidates {
			if !flagged[addr] {
				kept = append(kept, addr)
			}
		}
		candidates = kept
	}

	sort.Strings(candidates)
	return candidates, nil
}

func meetsLargeBuy(st *domain.WalletStatistic, c storage.LargeBuyCriteria) bool {
	if st.Winrate == nil || st.Winrate.LessThan(c.MinWinrate) {
		return false
	}
	if st.TotalProfitUSD.LessThan(c.MinProfitUSD) {
		return false
	}
	if st.TotalProfitMultiplier == nil || st.TotalProfitMultiplier.LessThan(c.MinMultiplier) {
		return false
	}
	if st.TotalToken < c.MinTotalToken {
		return false
	}
	if st.TokenAvgBuyAmount == nil ||
		st.TokenAvgBuyAmount.LessThan(c.MinAvgBuyAmount) || st.TokenAvgBuyAmount.GreaterThan(c.MaxAvgBuyAmount) {
		return false
	}
	if st.TokenBuySellDurationMedian == nil || st.TokenBuySellDurationMedian.LessThan(c.MinMedianDuration) {
		return false
	}
	return true
}

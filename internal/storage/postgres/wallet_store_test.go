package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-wallet-analytics/internal/domain"
	"solana-wallet-analytics/internal/storage"
)

func TestWalletStore_InsertIgnoreCreatesDetails(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewWalletStore(pool)

	n, err := store.InsertIgnore(ctx, []*domain.Wallet{{Address: "A"}, {Address: "B"}})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = store.InsertIgnore(ctx, []*domain.Wallet{{Address: "A"}, {Address: "C"}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	details, err := store.GetDetails(ctx, []string{"A", "C", "missing"})
	require.NoError(t, err)
	require.Len(t, details, 2)
	assert.False(t, details[0].IsBot)
	assert.False(t, details[0].IsScammer)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestWalletStore_ActivityOnlyWidens(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewWalletStore(pool)
	first, last := t0, t0.Add(time.Hour)
	_, err := store.InsertIgnore(ctx, []*domain.Wallet{{Address: "A"}})
	require.NoError(t, err)

	require.NoError(t, store.UpdateActivity(ctx, []*domain.Wallet{
		{Address: "A", FirstActivityTimestamp: &first, LastActivityTimestamp: &last},
	}))
	later, earlier := t0.Add(time.Minute), t0.Add(30*time.Minute)
	require.NoError(t, store.UpdateActivity(ctx, []*domain.Wallet{
		{Address: "A", FirstActivityTimestamp: &later, LastActivityTimestamp: &earlier},
	}))

	w, err := store.Get(ctx, "A")
	require.NoError(t, err)
	require.NotNil(t, w.FirstActivityTimestamp)
	require.NotNil(t, w.LastActivityTimestamp)
	assert.True(t, w.FirstActivityTimestamp.Equal(first))
	assert.True(t, w.LastActivityTimestamp.Equal(last))
	assert.Nil(t, w.LastStatsCheck)

	check := t0.Add(2 * time.Hour)
	before := t0.Add(-time.Hour)
	require.NoError(t, store.UpdateStatsCheck(ctx, []*domain.Wallet{
		{Address: "A", LastStatsCheck: &check, FirstActivityTimestamp: &before},
	}))
	w, err = store.Get(ctx, "A")
	require.NoError(t, err)
	require.NotNil(t, w.LastStatsCheck)
	assert.True(t, w.LastStatsCheck.Equal(check))
	assert.True(t, w.FirstActivityTimestamp.Equal(before))
}

func TestWalletStore_GetStaleOrder(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewWalletStore(pool)
	recent, old := t0, t0.Add(-60*24*time.Hour)
	_, err := store.InsertIgnore(ctx, []*domain.Wallet{
		{Address: "checked-late", LastActivityTimestamp: &recent},
		{Address: "checked-early", LastActivityTimestamp: &recent},
		{Address: "never", LastActivityTimestamp: &recent},
		{Address: "dormant", LastActivityTimestamp: &old},
	})
	require.NoError(t, err)

	late, early := t0.Add(time.Hour), t0.Add(time.Minute)
	require.NoError(t, store.UpdateStatsCheck(ctx, []*domain.Wallet{
		{Address: "checked-late", LastStatsCheck: &late},
		{Address: "checked-early", LastStatsCheck: &early},
	}))

	stale, err := store.GetStale(ctx, t0.Add(-31*24*time.Hour), 0)
	require.NoError(t, err)
	var got []string
	for _, w := range stale {
		got = append(got, w.Address)
	}
	assert.Equal(t, []string{"never", "checked-early", "checked-late"}, got)

	stale, err = store.GetStale(ctx, t0.Add(-31*24*time.Hour), 1)
	require.NoError(t, err)
	assert.Len(t, stale, 1)
}

func TestWalletStore_UpdateFlags(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewWalletStore(pool)
	_, err := store.InsertIgnore(ctx, []*domain.Wallet{{Address: "A"}})
	require.NoError(t, err)

	require.NoError(t, store.UpdateFlags(ctx, []*domain.WalletDetail{{WalletAddress: "A", IsBot: true}}))

	details, err := store.GetDetails(ctx, []string{"A"})
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.True(t, details[0].IsBot)
	assert.False(t, details[0].IsScammer)
}

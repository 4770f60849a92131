// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package budget

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/adxyz/bidder/pkg/core"
	"github.com/adxyz/bidder/pkg/log"
	"github.com/adxyz/bidder/pkg/store"
)

func storeWithBudget(t *testing.T, daily, spent string) *store.MemStore {
	t.Helper()
	st := store.NewMemStore()
	require.NoError(t, st.PutAllocation(context.Background(), &core.BudgetAllocation{
		CampaignID:  "camp-1",
		DailyBudget: decimal.RequireFromString(daily),
		TotalSpent:  decimal.RequireFromString(spent),
	}))
	return st
}

func TestCheckAvailable(t *testing.T) {
	m := NewManager(storeWithBudget(t, "100.00", "40.00"), log.NoOp())

	check := m.Check(context.Background(), "camp-1")
	require.True(t, check.Available)
	require.Equal(t, "60.00", check.Remaining.StringFixed(2))
	require.InDelta(t, 60.0, check.RemainingPercent, 1e-9)
}

func TestCheckBidworthyBoundary(t *testing.T) {
	// Exactly $1.00 remaining is still bid-worthy.
	m := NewManager(storeWithBudget(t, "100.00", "99.00"), log.NoOp())
	require.True(t, m.Check(context.Background(), "camp-1").Available)

	// $0.99 is not.
	m = NewManager(storeWithBudget(t, "100.00", "99.01"), log.NoOp())
	require.False(t, m.Check(context.Background(), "camp-1").Available)
}

func TestCheckNoAllocationFailsSafe(t *testing.T) {
	m := NewManager(store.NewMemStore(), log.NoOp())

	check := m.Check(context.Background(), "camp-unknown")
	require.False(t, check.Available)
	require.True(t, check.Remaining.IsZero())
}

// faultyStore fails every allocation read
type faultyStore struct {
	*store.MemStore
}

func (f *faultyStore) Allocation(context.Context, string) (*core.BudgetAllocation, error) {
	return nil, errors.New("store unavailable")
}

func TestCheckStoreErrorFailsSafe(t *testing.T) {
	m := NewManager(&faultyStore{store.NewMemStore()}, log.NoOp())

	check := m.Check(context.Background(), "camp-1")
	require.False(t, check.Available)
}

func TestDebit(t *testing.T) {
	ctx := context.Background()
	st := storeWithBudget(t, "100.00", "0.00")
	m := NewManager(st, log.NoOp())

	remaining, err := m.Debit(ctx, "camp-1", decimal.RequireFromString("1.50"))
	require.NoError(t, err)
	require.Equal(t, "98.50", remaining.StringFixed(2))

	alloc, err := st.Allocation(ctx, "camp-1")
	require.NoError(t, err)
	require.Equal(t, "1.50", alloc.TotalSpent.StringFixed(2))
	require.False(t, alloc.UpdatedAt.IsZero())
}

func TestDebitCapsAtRemaining(t *testing.T) {
	ctx := context.Background()
	st := storeWithBudget(t, "100.00", "99.50")
	m := NewManager(st, log.NoOp())

	remaining, err := m.Debit(ctx, "camp-1", decimal.RequireFromString("2.00"))
	require.NoError(t, err)
	require.True(t, remaining.IsZero())

	// Spend never exceeds the daily budget.
	alloc, err := st.Allocation(ctx, "camp-1")
	require.NoError(t, err)
	require.Equal(t, "100.00", alloc.TotalSpent.StringFixed(2))
}

func TestDebitNegativeAmount(t *testing.T) {
	m := NewManager(storeWithBudget(t, "100.00", "0.00"), log.NoOp())

	_, err := m.Debit(context.Background(), "camp-1", decimal.RequireFromString("-1.00"))
	require.ErrorIs(t, err, ErrNegativeAmount)
}

func TestDebitNoAllocation(t *testing.T) {
	m := NewManager(store.NewMemStore(), log.NoOp())

	_, err := m.Debit(context.Background(), "camp-unknown", decimal.NewFromInt(1))
	require.ErrorIs(t, err, ErrNoAllocation)
}

func TestDebitConcurrent(t *testing.T) {
	ctx := context.Background()
	st := storeWithBudget(t, "100.00", "0.00")
	m := NewManager(st, log.NoOp())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Debit(ctx, "camp-1", decimal.NewFromInt(1))
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	alloc, err := st.Allocation(ctx, "camp-1")
	require.NoError(t, err)
	require.Equal(t, "10.00", alloc.TotalSpent.StringFixed(2))
}

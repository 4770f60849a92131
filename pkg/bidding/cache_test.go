// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bidding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/adxyz/bidder/pkg/core"
	"github.com/adxyz/bidder/pkg/log"
	"github.com/adxyz/bidder/pkg/metric"
	"github.com/adxyz/bidder/pkg/store"
)

// seedStore populates a memstore with one active campaign ready to bid
func seedStore(t *testing.T) *store.MemStore {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemStore()

	require.NoError(t, st.PutCampaign(ctx, &core.Campaign{
		CampaignID: "camp-1",
		Name:       "Fitness Launch",
		Status:     core.CampaignActive,
	}))
	seg := fitnessSegment("camp-1", "seg-1")
	require.NoError(t, st.PutSegment(ctx, &seg))
	require.NoError(t, st.PutVariant(ctx, &core.CreativeVariant{
		VariantID:  "var-1",
		CampaignID: "camp-1",
		Status:     "active",
	}))
	require.NoError(t, st.PutAllocation(ctx, &core.BudgetAllocation{
		CampaignID:  "camp-1",
		DailyBudget: decimal.NewFromInt(100),
		Segments: []core.SegmentAllocation{
			{SegmentID: "seg-1", MaxCPC: decimal.RequireFromString("2.50")},
		},
	}))
	return st
}

func TestRefresherLoadsSnapshot(t *testing.T) {
	st := seedStore(t)
	r := NewRefresher(st, time.Minute, log.NoOp(), metric.NewMetrics())

	require.Nil(t, r.Snapshot())
	require.NoError(t, r.Refresh(context.Background()))

	snap := r.Snapshot()
	require.NotNil(t, snap)
	require.Len(t, snap.Campaigns, 1)
	require.Len(t, snap.Segments["camp-1"], 1)
	require.Len(t, snap.Creatives["camp-1"], 1)
	require.Equal(t, 1, snap.SegmentCount)

	alloc, ok := snap.Allocations["camp-1"]
	require.True(t, ok)
	require.Equal(t, "100", alloc.DailyBudget.String())
}

func TestRefresherSkipsInactiveCampaigns(t *testing.T) {
	ctx := context.Background()
	st := seedStore(t)
	require.NoError(t, st.PutCampaign(ctx, &core.Campaign{
		CampaignID: "camp-2",
		Status:     core.CampaignPaused,
	}))

	r := NewRefresher(st, time.Minute, log.NoOp(), metric.NewMetrics())
	require.NoError(t, r.Refresh(ctx))

	snap := r.Snapshot()
	require.Len(t, snap.Campaigns, 1)
	require.Contains(t, snap.Campaigns, "camp-1")
}

func TestRefresherToleratesUnfundedCampaign(t *testing.T) {
	ctx := context.Background()
	st := seedStore(t)
	require.NoError(t, st.PutCampaign(ctx, &core.Campaign{
		CampaignID: "camp-2",
		Status:     core.CampaignActive,
	}))

	r := NewRefresher(st, time.Minute, log.NoOp(), metric.NewMetrics())
	require.NoError(t, r.Refresh(ctx))

	snap := r.Snapshot()
	require.Len(t, snap.Campaigns, 2)
	require.NotContains(t, snap.Allocations, "camp-2")
}

// brokenStore fails every read after the wrapped store succeeds once
type brokenStore struct {
	store.Store
}

func (b *brokenStore) ActiveCampaigns(context.Context) ([]core.Campaign, error) {
	return nil, errors.New("store unavailable")
}

func TestRefresherServesStaleOnFailure(t *testing.T) {
	ctx := context.Background()
	st := seedStore(t)
	r := NewRefresher(st, time.Minute, log.NoOp(), metric.NewMetrics())
	require.NoError(t, r.Refresh(ctx))
	before := r.Snapshot()

	r.store = &brokenStore{Store: st}
	require.Error(t, r.Refresh(ctx))

	// The previous snapshot keeps serving.
	require.Same(t, before, r.Snapshot())
}

func TestRefresherSeedsStrategies(t *testing.T) {
	ctx := context.Background()
	st := seedStore(t)
	require.NoError(t, st.PutBiddingStrategy(ctx, &core.BiddingStrategy{
		CampaignID:          "camp-1",
		BidAdjustmentFactor: 1.21,
	}))

	r := NewRefresher(st, time.Minute, log.NoOp(), metric.NewMetrics())

	var seeded map[string]core.BiddingStrategy
	r.OnStrategies(func(m map[string]core.BiddingStrategy) { seeded = m })

	require.NoError(t, r.Refresh(ctx))
	require.Contains(t, seeded, "camp-1")
	require.Equal(t, 1.21, seeded["camp-1"].BidAdjustmentFactor)
}

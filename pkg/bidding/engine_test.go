// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bidding

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/adxyz/bidder/pkg/budget"
	"github.com/adxyz/bidder/pkg/core"
	"github.com/adxyz/bidder/pkg/log"
	"github.com/adxyz/bidder/pkg/metric"
	"github.com/adxyz/bidder/pkg/store"
	"github.com/adxyz/bidder/pkg/strategy"
)

func newTestEngine(t *testing.T, st store.Store) *Engine {
	t.Helper()

	logger := log.NoOp()
	metrics := metric.NewMetrics()

	cache := NewRefresher(st, time.Minute, logger, metrics)
	engine := NewEngine(
		st,
		cache,
		budget.NewManager(st, logger),
		strategy.NewController(st, logger, metrics),
		NewDecisionLog(st, 0, logger, metrics),
		logger,
		metrics,
		Params{},
	)
	t.Cleanup(engine.Close)

	require.NoError(t, cache.Refresh(context.Background()))
	return engine
}

func bidRequest() *BidRequest {
	req := relevanceRequest("google", "0.50")
	req.UserProfile = *fitnessProfile()
	return req
}

func TestHandleBidSubmits(t *testing.T) {
	engine := newTestEngine(t, seedStore(t))

	out := engine.HandleBid(context.Background(), bidRequest())
	require.True(t, out.IsBid())
	require.Equal(t, "req-1", out.Bid.RequestID)
	require.Equal(t, "camp-1", out.Bid.CampaignID)
	require.Equal(t, "seg-1", out.Bid.SegmentID)
	require.Equal(t, "var-1", out.Bid.CreativeID)
	require.Equal(t, "1.63", out.Bid.BidPrice.StringFixed(2))
}

func TestHandleBidInvalidRequest(t *testing.T) {
	engine := newTestEngine(t, seedStore(t))

	out := engine.HandleBid(context.Background(), &BidRequest{})
	require.False(t, out.IsBid())
	require.Equal(t, "Invalid bid request", out.NoBid.Reason)
}

func TestHandleBidNotRelevant(t *testing.T) {
	engine := newTestEngine(t, seedStore(t))

	req := bidRequest()
	req.Inventory.Platform = "tiktok"

	out := engine.HandleBid(context.Background(), req)
	require.False(t, out.IsBid())
	require.Equal(t, "Not relevant to active campaigns", out.NoBid.Reason)
}

func TestHandleBidNoSegmentMatch(t *testing.T) {
	engine := newTestEngine(t, seedStore(t))

	req := bidRequest()
	req.UserProfile = UserProfile{
		Demographics: map[string]string{"age_range": "60+", "gender": "male"},
		Interests:    []string{"golf"},
	}

	out := engine.HandleBid(context.Background(), req)
	require.False(t, out.IsBid())
	require.Equal(t, "No matching audience segments", out.NoBid.Reason)
}

func TestHandleBidBudgetExhausted(t *testing.T) {
	ctx := context.Background()
	st := seedStore(t)
	require.NoError(t, st.PutAllocation(ctx, &core.BudgetAllocation{
		CampaignID:  "camp-1",
		DailyBudget: decimal.NewFromInt(100),
		TotalSpent:  decimal.RequireFromString("99.50"),
		Segments: []core.SegmentAllocation{
			{SegmentID: "seg-1", MaxCPC: decimal.RequireFromString("2.50")},
		},
	}))

	engine := newTestEngine(t, st)

	out := engine.HandleBid(ctx, bidRequest())
	require.False(t, out.IsBid())
	require.Equal(t, "Budget exhausted", out.NoBid.Reason)
}

func TestHandleBidBelowFloor(t *testing.T) {
	ctx := context.Background()
	st := seedStore(t)
	// Max CPC 0.10 caps the bid at 0.20, far under a 14.00 floor.
	require.NoError(t, st.PutAllocation(ctx, &core.BudgetAllocation{
		CampaignID:  "camp-1",
		DailyBudget: decimal.NewFromInt(100),
		Segments: []core.SegmentAllocation{
			{SegmentID: "seg-1", MaxCPC: decimal.RequireFromString("0.10")},
		},
	}))

	engine := newTestEngine(t, st)

	req := bidRequest()
	req.Inventory.FloorPrice = decimal.RequireFromString("14.00")

	out := engine.HandleBid(ctx, req)
	require.False(t, out.IsBid())
	require.Equal(t, "Bid below floor price", out.NoBid.Reason)
}

func TestHandleBidAppliesAdjustmentFactor(t *testing.T) {
	ctx := context.Background()
	st := seedStore(t)
	require.NoError(t, st.PutBiddingStrategy(ctx, &core.BiddingStrategy{
		CampaignID:          "camp-1",
		BidAdjustmentFactor: 1.2,
		TargetWinRate:       core.DefaultTargetWinRate,
		LastUpdated:         time.Now().UTC(),
	}))

	engine := newTestEngine(t, st)

	out := engine.HandleBid(ctx, bidRequest())
	require.True(t, out.IsBid())
	// 1.625 * 1.2 = 1.95
	require.Equal(t, "1.95", out.Bid.BidPrice.StringFixed(2))
}

func TestHandleBidLogsDecision(t *testing.T) {
	st := seedStore(t)
	engine := newTestEngine(t, st)

	out := engine.HandleBid(context.Background(), bidRequest())
	require.True(t, out.IsBid())

	// The decision write is async; wait for the worker to flush it.
	require.Eventually(t, func() bool {
		_, err := st.Decision(context.Background(), "req-1")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	decision, err := st.Decision(context.Background(), "req-1")
	require.NoError(t, err)
	require.Equal(t, "bid", decision.Decision)
	require.Equal(t, core.DecisionSubmitted, decision.Status)
	require.Equal(t, "camp-1", decision.CampaignID)
	require.NotEmpty(t, decision.DecisionID)
	require.NotNil(t, decision.BidPrice)
	require.Equal(t, "1.63", decision.BidPrice.StringFixed(2))
	require.NotNil(t, decision.SegmentMaxCPC)
	require.InDelta(t, 100.0, decision.BudgetRemainingPercent, 1e-9)
}

func TestHandleBidLogsRejection(t *testing.T) {
	st := seedStore(t)
	engine := newTestEngine(t, st)

	req := bidRequest()
	req.RequestID = "req-reject"
	req.Inventory.Platform = "tiktok"
	engine.HandleBid(context.Background(), req)

	require.Eventually(t, func() bool {
		_, err := st.Decision(context.Background(), "req-reject")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	decision, err := st.Decision(context.Background(), "req-reject")
	require.NoError(t, err)
	require.Equal(t, "no_bid", decision.Decision)
	require.Equal(t, core.DecisionRejected, decision.Status)
	require.Equal(t, "Not relevant to active campaigns", decision.Reason)
	require.Nil(t, decision.BidPrice)
}

func TestTrackResultWin(t *testing.T) {
	ctx := context.Background()
	st := seedStore(t)
	engine := newTestEngine(t, st)

	out := engine.HandleBid(ctx, bidRequest())
	require.True(t, out.IsBid())
	require.Eventually(t, func() bool {
		_, err := st.Decision(ctx, "req-1")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	winPrice := decimal.RequireFromString("1.50")
	require.NoError(t, engine.TrackResult(ctx, "req-1", true, &winPrice))

	decision, err := st.Decision(ctx, "req-1")
	require.NoError(t, err)
	require.Equal(t, core.DecisionWon, decision.Status)
	require.NotNil(t, decision.WinPrice)
	require.Equal(t, "1.50", decision.WinPrice.StringFixed(2))

	// The win debits the campaign budget.
	alloc, err := st.Allocation(ctx, "camp-1")
	require.NoError(t, err)
	require.Equal(t, "1.50", alloc.TotalSpent.StringFixed(2))

	// And feeds the strategy controller.
	stored, err := st.BiddingStrategy(ctx, "camp-1")
	require.NoError(t, err)
	require.EqualValues(t, 1, stored.TotalBids)
	require.EqualValues(t, 1, stored.TotalWins)
}

func TestTrackResultLoss(t *testing.T) {
	ctx := context.Background()
	st := seedStore(t)
	engine := newTestEngine(t, st)

	engine.HandleBid(ctx, bidRequest())
	require.Eventually(t, func() bool {
		_, err := st.Decision(ctx, "req-1")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, engine.TrackResult(ctx, "req-1", false, nil))

	decision, err := st.Decision(ctx, "req-1")
	require.NoError(t, err)
	require.Equal(t, core.DecisionLost, decision.Status)

	// Losses never touch the budget.
	alloc, err := st.Allocation(ctx, "camp-1")
	require.NoError(t, err)
	require.True(t, alloc.TotalSpent.IsZero())
}

func TestTrackResultUnknownRequest(t *testing.T) {
	engine := newTestEngine(t, seedStore(t))

	err := engine.TrackResult(context.Background(), "req-missing", true, nil)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestCampaignStats(t *testing.T) {
	ctx := context.Background()
	st := seedStore(t)
	engine := newTestEngine(t, st)

	// Never-bid campaigns report neutral defaults.
	stats, err := engine.CampaignStats(ctx, "camp-unknown")
	require.NoError(t, err)
	require.EqualValues(t, 0, stats.TotalBids)
	require.Equal(t, 1.0, stats.BidAdjustmentFactor)
	require.Equal(t, core.DefaultTargetWinRate, stats.TargetWinRate)

	engine.HandleBid(ctx, bidRequest())
	require.Eventually(t, func() bool {
		_, err := st.Decision(ctx, "req-1")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, engine.TrackResult(ctx, "req-1", true, nil))

	stats, err = engine.CampaignStats(ctx, "camp-1")
	require.NoError(t, err)
	require.EqualValues(t, 1, stats.TotalBids)
	require.EqualValues(t, 1, stats.TotalWins)
	require.Equal(t, 1.0, stats.WinRate)
	require.Equal(t, "1.63", stats.AvgBidPrice.StringFixed(2))
}

func BenchmarkEngineHandleBid(b *testing.B) {
	ctx := context.Background()
	st := store.NewMemStore()

	_ = st.PutCampaign(ctx, &core.Campaign{CampaignID: "camp-1", Status: core.CampaignActive})
	seg := fitnessSegment("camp-1", "seg-1")
	_ = st.PutSegment(ctx, &seg)
	_ = st.PutVariant(ctx, &core.CreativeVariant{VariantID: "var-1", CampaignID: "camp-1", Status: "active"})
	_ = st.PutAllocation(ctx, &core.BudgetAllocation{
		CampaignID:  "camp-1",
		DailyBudget: decimal.NewFromInt(1000000),
		Segments: []core.SegmentAllocation{
			{SegmentID: "seg-1", MaxCPC: decimal.RequireFromString("2.50")},
		},
	})

	logger := log.NoOp()
	metrics := metric.NewMetrics()
	cache := NewRefresher(st, time.Hour, logger, metrics)
	if err := cache.Refresh(ctx); err != nil {
		b.Fatal(err)
	}
	engine := NewEngine(st, cache,
		budget.NewManager(st, logger),
		strategy.NewController(st, logger, metrics),
		NewDecisionLog(st, 1<<16, logger, metrics),
		logger, metrics, Params{})
	defer engine.Close()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		req := bidRequest()
		for pb.Next() {
			engine.HandleBid(ctx, req)
		}
	})
}

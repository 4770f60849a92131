// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package strategy implements the closed-loop bid adjustment controller.
// It tracks cumulative bid outcomes per campaign and recomputes the bid
// adjustment factor every 100 confirmed bids to steer the win rate into
// the target band.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/adxyz/bidder/pkg/core"
	"github.com/adxyz/bidder/pkg/log"
	"github.com/adxyz/bidder/pkg/metric"
	"github.com/adxyz/bidder/pkg/store"
)

// Win rate band. Below the floor bids are raised 5%, above the ceiling
// they are cut 5%.
const (
	TargetWinRateMin = 0.20
	TargetWinRateMax = 0.40
)

// Stats is the operational view of a campaign's bidding performance
type Stats struct {
	CampaignID          string          `json:"campaign_id"`
	TotalBids           int64           `json:"total_bids"`
	TotalWins           int64           `json:"total_wins"`
	TotalLosses         int64           `json:"total_losses"`
	WinRate             float64         `json:"win_rate"`
	TargetWinRate       float64         `json:"target_win_rate"`
	BidAdjustmentFactor float64         `json:"bid_adjustment_factor"`
	AvgBidPrice         decimal.Decimal `json:"avg_bid_price"`
	LastUpdated         time.Time       `json:"last_updated,omitempty"`
}

// Controller holds per-campaign strategy records. Updates for a campaign
// run as one critical section (increment, win rate, adjustment, persist)
// so concurrent result webhooks never lose counts.
type Controller struct {
	store   store.Store
	log     log.Logger
	metrics *metric.Metrics

	mu    sync.RWMutex
	cache map[string]*core.BiddingStrategy
}

// NewController creates a strategy controller
func NewController(st store.Store, logger log.Logger, metrics *metric.Metrics) *Controller {
	return &Controller{
		store:   st,
		log:     logger,
		metrics: metrics,
		cache:   make(map[string]*core.BiddingStrategy),
	}
}

// CachedFactor returns the adjustment factor for immediate use on the
// bid hot path. Never blocks on the store.
func (c *Controller) CachedFactor(campaignID string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if strategy, ok := c.cache[campaignID]; ok {
		return strategy.BidAdjustmentFactor, true
	}
	return 1.0, false
}

// Seed populates the in-memory cache from a snapshot load. Records
// already updated by the controller are kept because they are newer.
func (c *Controller) Seed(strategies map[string]core.BiddingStrategy) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, strategy := range strategies {
		if existing, ok := c.cache[id]; ok && existing.LastUpdated.After(strategy.LastUpdated) {
			continue
		}
		s := strategy
		c.cache[id] = &s
	}
}

// RecordResult applies one confirmed auction outcome to a campaign's
// strategy, re-evaluating the adjustment factor on every 100th bid, and
// persists the record. Returns a copy of the updated strategy.
func (c *Controller) RecordResult(ctx context.Context, campaignID string, won bool) (core.BiddingStrategy, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	strategy, err := c.loadLocked(ctx, campaignID)
	if err != nil {
		return core.BiddingStrategy{}, err
	}

	strategy.TotalBids++
	if won {
		strategy.TotalWins++
	} else {
		strategy.TotalLosses++
	}
	strategy.UpdateWinRate()

	if strategy.ShouldAdjust() {
		c.adjustLocked(strategy)
	}

	strategy.LastUpdated = time.Now().UTC()

	if err := c.store.PutBiddingStrategy(ctx, strategy); err != nil {
		// The in-memory record stays authoritative for pricing; a failed
		// persist is logged and absorbed.
		c.log.Error("failed to persist bidding strategy",
			"campaign_id", campaignID, "error", err)
	}

	c.log.Debug("bidding strategy updated",
		"campaign_id", campaignID,
		"total_bids", strategy.TotalBids,
		"total_wins", strategy.TotalWins,
		"current_win_rate", strategy.CurrentWinRate,
		"bid_adjustment_factor", strategy.BidAdjustmentFactor)

	return *strategy, nil
}

// adjustLocked re-evaluates the adjustment factor against the win rate
// band. Proportional and bounded: at most 5% per evaluation, always
// inside [0.5, 2.0].
func (c *Controller) adjustLocked(strategy *core.BiddingStrategy) {
	old := strategy.BidAdjustmentFactor

	switch {
	case strategy.CurrentWinRate < TargetWinRateMin:
		strategy.BidAdjustmentFactor = core.ClampFactor(old * 1.05)
		c.log.Info("win rate below target, raising bids",
			"campaign_id", strategy.CampaignID,
			"current_win_rate", strategy.CurrentWinRate,
			"old_factor", old,
			"new_factor", strategy.BidAdjustmentFactor)
	case strategy.CurrentWinRate > TargetWinRateMax:
		strategy.BidAdjustmentFactor = core.ClampFactor(old * 0.95)
		c.log.Info("win rate above target, cutting bids",
			"campaign_id", strategy.CampaignID,
			"current_win_rate", strategy.CurrentWinRate,
			"old_factor", old,
			"new_factor", strategy.BidAdjustmentFactor)
	default:
		c.log.Info("win rate within target band",
			"campaign_id", strategy.CampaignID,
			"current_win_rate", strategy.CurrentWinRate)
	}

	if c.metrics != nil {
		c.metrics.Adjustments.Inc()
	}
}

// loadLocked resolves a strategy from cache, store, or creates a fresh
// record on first use. Caller holds c.mu.
func (c *Controller) loadLocked(ctx context.Context, campaignID string) (*core.BiddingStrategy, error) {
	if strategy, ok := c.cache[campaignID]; ok {
		return strategy, nil
	}

	strategy, err := c.store.BiddingStrategy(ctx, campaignID)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		strategy = core.NewBiddingStrategy(campaignID)
	default:
		return nil, fmt.Errorf("load bidding strategy: %w", err)
	}

	c.cache[campaignID] = strategy
	return strategy, nil
}

// Strategy returns the current strategy record for a campaign, or nil if
// the campaign has never bid.
func (c *Controller) Strategy(ctx context.Context, campaignID string) (*core.BiddingStrategy, error) {
	c.mu.RLock()
	if strategy, ok := c.cache[campaignID]; ok {
		out := *strategy
		c.mu.RUnlock()
		return &out, nil
	}
	c.mu.RUnlock()

	strategy, err := c.store.BiddingStrategy(ctx, campaignID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return strategy, err
}

// maxStatsDecisions bounds the decision scan behind avg_bid_price
const maxStatsDecisions = 1000

// Stats assembles the operational bid statistics for a campaign,
// including the average bid price over recent logged decisions.
func (c *Controller) Stats(ctx context.Context, campaignID string) (*Stats, error) {
	strategy, err := c.Strategy(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if strategy == nil {
		return &Stats{
			CampaignID:          campaignID,
			BidAdjustmentFactor: 1.0,
			TargetWinRate:       core.DefaultTargetWinRate,
			AvgBidPrice:         decimal.Zero,
		}, nil
	}

	decisions, err := c.store.DecisionsByCampaign(ctx, campaignID, maxStatsDecisions)
	if err != nil {
		return nil, fmt.Errorf("load decisions: %w", err)
	}

	total := decimal.Zero
	var priced int64
	for i := range decisions {
		if decisions[i].BidPrice != nil {
			total = total.Add(*decisions[i].BidPrice)
			priced++
		}
	}
	avg := decimal.Zero
	if priced > 0 {
		avg = total.Div(decimal.NewFromInt(priced)).Round(2)
	}

	return &Stats{
		CampaignID:          campaignID,
		TotalBids:           strategy.TotalBids,
		TotalWins:           strategy.TotalWins,
		TotalLosses:         strategy.TotalLosses,
		WinRate:             strategy.CurrentWinRate,
		TargetWinRate:       strategy.TargetWinRate,
		BidAdjustmentFactor: strategy.BidAdjustmentFactor,
		AvgBidPrice:         avg,
		LastUpdated:         strategy.LastUpdated,
	}, nil
}

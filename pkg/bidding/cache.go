// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bidding

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/adxyz/bidder/pkg/core"
	"github.com/adxyz/bidder/pkg/log"
	"github.com/adxyz/bidder/pkg/metric"
	"github.com/adxyz/bidder/pkg/store"
)

// DefaultCacheTTL is how long a snapshot serves before a refresh is due
const DefaultCacheTTL = 5 * time.Minute

// Snapshot is an immutable view of all active campaigns with everything
// the hot path needs: segments, funded allocations, creatives and
// strategies. It is replaced wholesale on refresh and never mutated.
type Snapshot struct {
	Campaigns   map[string]core.Campaign
	Segments    map[string][]core.Segment
	Allocations map[string]core.BudgetAllocation
	Creatives   map[string][]core.CreativeVariant
	Strategies  map[string]core.BiddingStrategy

	SegmentCount int
	RefreshedAt  time.Time
}

// Age returns how old the snapshot is
func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.RefreshedAt)
}

// Refresher loads campaign snapshots from the store on a TTL and swaps
// them in atomically. Readers take a pointer and never lock. On store
// failure the previous snapshot keeps serving.
type Refresher struct {
	store   store.Store
	ttl     time.Duration
	log     log.Logger
	metrics *metric.Metrics

	snap       atomic.Pointer[Snapshot]
	refreshing atomic.Bool

	// seed receives every loaded strategy map, letting the strategy
	// controller warm its cache. Optional.
	seed func(map[string]core.BiddingStrategy)
}

// NewRefresher creates a cache refresher. ttl <= 0 selects the default
// 5 minute TTL.
func NewRefresher(st store.Store, ttl time.Duration, logger log.Logger, metrics *metric.Metrics) *Refresher {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Refresher{
		store:   st,
		ttl:     ttl,
		log:     logger,
		metrics: metrics,
	}
}

// OnStrategies registers a callback invoked with the strategy map of
// every successful refresh.
func (r *Refresher) OnStrategies(fn func(map[string]core.BiddingStrategy)) {
	r.seed = fn
}

// Snapshot returns the current snapshot, or nil before the first
// successful refresh.
func (r *Refresher) Snapshot() *Snapshot {
	return r.snap.Load()
}

// Refresh loads a fresh snapshot and swaps it in. On error the previous
// snapshot is retained and keeps serving.
func (r *Refresher) Refresh(ctx context.Context) error {
	snap, err := r.load(ctx)
	if err != nil {
		if r.metrics != nil {
			r.metrics.CacheRefreshFails.Inc()
		}
		r.log.Error("campaign cache refresh failed, serving stale snapshot", "error", err)
		return err
	}

	r.snap.Store(snap)

	if r.metrics != nil {
		r.metrics.CacheRefreshes.Inc()
		r.metrics.CachedCampaigns.Set(float64(len(snap.Campaigns)))
		r.metrics.CachedSegments.Set(float64(snap.SegmentCount))
	}
	if r.seed != nil {
		r.seed(snap.Strategies)
	}

	r.log.Info("campaign cache refreshed",
		"campaigns", len(snap.Campaigns),
		"segments", snap.SegmentCount)
	return nil
}

func (r *Refresher) load(ctx context.Context) (*Snapshot, error) {
	campaigns, err := r.store.ActiveCampaigns(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active campaigns: %w", err)
	}

	snap := &Snapshot{
		Campaigns:   make(map[string]core.Campaign, len(campaigns)),
		Segments:    make(map[string][]core.Segment, len(campaigns)),
		Allocations: make(map[string]core.BudgetAllocation, len(campaigns)),
		Creatives:   make(map[string][]core.CreativeVariant, len(campaigns)),
		Strategies:  make(map[string]core.BiddingStrategy, len(campaigns)),
		RefreshedAt: time.Now().UTC(),
	}

	for _, campaign := range campaigns {
		id := campaign.CampaignID
		snap.Campaigns[id] = campaign

		segments, err := r.store.SegmentsByCampaign(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load segments for %s: %w", id, err)
		}
		snap.Segments[id] = segments
		snap.SegmentCount += len(segments)

		alloc, err := r.store.Allocation(ctx, id)
		switch {
		case err == nil:
			snap.Allocations[id] = *alloc
		case errors.Is(err, store.ErrNotFound):
			// Unfunded campaign: its segments can never match.
		default:
			return nil, fmt.Errorf("load allocation for %s: %w", id, err)
		}

		variants, err := r.store.VariantsByCampaign(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load variants for %s: %w", id, err)
		}
		snap.Creatives[id] = variants

		strategy, err := r.store.BiddingStrategy(ctx, id)
		switch {
		case err == nil:
			snap.Strategies[id] = *strategy
		case errors.Is(err, store.ErrNotFound):
		default:
			return nil, fmt.Errorf("load strategy for %s: %w", id, err)
		}
	}

	return snap, nil
}

// MaybeRefreshAsync kicks off a background refresh when the snapshot is
// missing or older than the TTL. Never blocks the caller; at most one
// refresh runs at a time.
func (r *Refresher) MaybeRefreshAsync() {
	snap := r.snap.Load()
	if snap != nil && snap.Age(time.Now()) < r.ttl {
		return
	}
	if !r.refreshing.CompareAndSwap(false, true) {
		return
	}

	go func() {
		defer r.refreshing.Store(false)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = r.Refresh(ctx)
	}()
}

// Run refreshes on the TTL until ctx is cancelled
func (r *Refresher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = r.Refresh(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"context"
	"sort"
	"sync"

	"github.com/adxyz/bidder/pkg/core"
)

// MemStore is an in-memory Store implementation. It backs tests and the
// default development mode of the daemon.
type MemStore struct {
	mu         sync.RWMutex
	campaigns  map[string]core.Campaign
	segments   map[string][]core.Segment
	variants   map[string][]core.CreativeVariant
	allocs     map[string]core.BudgetAllocation
	strategies map[string]core.BiddingStrategy
	decisions  map[string]core.BidDecision
	byCampaign map[string][]string // campaignID -> decision request IDs in insert order
}

var _ Store = (*MemStore)(nil)
var _ Catalog = (*MemStore)(nil)

// NewMemStore creates an empty in-memory store
func NewMemStore() *MemStore {
	return &MemStore{
		campaigns:  make(map[string]core.Campaign),
		segments:   make(map[string][]core.Segment),
		variants:   make(map[string][]core.CreativeVariant),
		allocs:     make(map[string]core.BudgetAllocation),
		strategies: make(map[string]core.BiddingStrategy),
		decisions:  make(map[string]core.BidDecision),
		byCampaign: make(map[string][]string),
	}
}

func (s *MemStore) ActiveCampaigns(ctx context.Context) ([]core.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.Campaign, 0, len(s.campaigns))
	for _, c := range s.campaigns {
		if c.Status == core.CampaignActive {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CampaignID < out[j].CampaignID })
	return out, nil
}

func (s *MemStore) SegmentsByCampaign(ctx context.Context, campaignID string) ([]core.Segment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.Segment(nil), s.segments[campaignID]...), nil
}

func (s *MemStore) VariantsByCampaign(ctx context.Context, campaignID string) ([]core.CreativeVariant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.CreativeVariant(nil), s.variants[campaignID]...), nil
}

func (s *MemStore) Allocation(ctx context.Context, campaignID string) (*core.BudgetAllocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	alloc, ok := s.allocs[campaignID]
	if !ok {
		return nil, ErrNotFound
	}
	out := alloc
	out.Segments = append([]core.SegmentAllocation(nil), alloc.Segments...)
	return &out, nil
}

func (s *MemStore) PutAllocation(ctx context.Context, alloc *core.BudgetAllocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *alloc
	stored.Segments = append([]core.SegmentAllocation(nil), alloc.Segments...)
	s.allocs[alloc.CampaignID] = stored
	return nil
}

func (s *MemStore) BiddingStrategy(ctx context.Context, campaignID string) (*core.BiddingStrategy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	strategy, ok := s.strategies[campaignID]
	if !ok {
		return nil, ErrNotFound
	}
	out := strategy
	return &out, nil
}

func (s *MemStore) PutBiddingStrategy(ctx context.Context, strategy *core.BiddingStrategy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strategies[strategy.CampaignID] = *strategy
	return nil
}

func (s *MemStore) LogDecision(ctx context.Context, decision *core.BidDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.decisions[decision.RequestID]
	s.decisions[decision.RequestID] = *decision
	if !existed && decision.CampaignID != "" {
		s.byCampaign[decision.CampaignID] = append(s.byCampaign[decision.CampaignID], decision.RequestID)
	}
	return nil
}

func (s *MemStore) Decision(ctx context.Context, requestID string) (*core.BidDecision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	decision, ok := s.decisions[requestID]
	if !ok {
		return nil, ErrNotFound
	}
	out := decision
	return &out, nil
}

func (s *MemStore) DecisionsByCampaign(ctx context.Context, campaignID string, limit int) ([]core.BidDecision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byCampaign[campaignID]
	if limit > 0 && len(ids) > limit {
		ids = ids[len(ids)-limit:]
	}
	out := make([]core.BidDecision, 0, len(ids))
	for _, id := range ids {
		if decision, ok := s.decisions[id]; ok {
			out = append(out, decision)
		}
	}
	return out, nil
}

func (s *MemStore) PutCampaign(ctx context.Context, campaign *core.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaigns[campaign.CampaignID] = *campaign
	return nil
}

func (s *MemStore) PutSegment(ctx context.Context, segment *core.Segment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	segments := s.segments[segment.CampaignID]
	for i := range segments {
		if segments[i].SegmentID == segment.SegmentID {
			segments[i] = *segment
			return nil
		}
	}
	s.segments[segment.CampaignID] = append(segments, *segment)
	return nil
}

func (s *MemStore) PutVariant(ctx context.Context, variant *core.CreativeVariant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	variants := s.variants[variant.CampaignID]
	for i := range variants {
		if variants[i].VariantID == variant.VariantID {
			variants[i] = *variant
			return nil
		}
	}
	s.variants[variant.CampaignID] = append(variants, *variant)
	return nil
}

func (s *MemStore) Close() error { return nil }

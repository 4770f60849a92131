// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package store provides durable access to campaigns, segments, budget
// allocations, creative variants, bidding strategies and decision logs.
package store

import (
	"context"
	"errors"

	"github.com/adxyz/bidder/pkg/core"
)

var (
	ErrNotFound = errors.New("not found")
	ErrClosed   = errors.New("store closed")
)

// Store is the narrow persistence interface the bid engine consumes.
// Implementations must be safe for concurrent use.
type Store interface {
	// Campaign catalog (read-only from the engine's point of view)
	ActiveCampaigns(ctx context.Context) ([]core.Campaign, error)
	SegmentsByCampaign(ctx context.Context, campaignID string) ([]core.Segment, error)
	VariantsByCampaign(ctx context.Context, campaignID string) ([]core.CreativeVariant, error)

	// Budget allocations
	Allocation(ctx context.Context, campaignID string) (*core.BudgetAllocation, error)
	PutAllocation(ctx context.Context, alloc *core.BudgetAllocation) error

	// Bidding strategies
	BiddingStrategy(ctx context.Context, campaignID string) (*core.BiddingStrategy, error)
	PutBiddingStrategy(ctx context.Context, strategy *core.BiddingStrategy) error

	// Decision log
	LogDecision(ctx context.Context, decision *core.BidDecision) error
	Decision(ctx context.Context, requestID string) (*core.BidDecision, error)
	DecisionsByCampaign(ctx context.Context, campaignID string, limit int) ([]core.BidDecision, error)

	Close() error
}

// Catalog is the write side of the campaign catalog. The engine never
// uses it; ops tooling and tests seed stores through it.
type Catalog interface {
	PutCampaign(ctx context.Context, campaign *core.Campaign) error
	PutSegment(ctx context.Context, segment *core.Segment) error
	PutVariant(ctx context.Context, variant *core.CreativeVariant) error
}

// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bidding

import (
	"github.com/shopspring/decimal"
)

// DefaultMaxFloorPrice is the floor price ceiling. Requests above it are
// assumed uncompetitive for the budgets this engine manages.
var DefaultMaxFloorPrice = decimal.NewFromFloat(15.00)

// DefaultPlatforms are the exchanges this engine bids on
var DefaultPlatforms = []string{"google", "meta", "programmatic"}

// Filter is the O(1) relevance pre-check protecting the latency budget.
// No store I/O, no iteration over segments.
type Filter struct {
	platforms map[string]struct{}
	maxFloor  decimal.Decimal
}

// NewFilter creates a relevance filter. Nil platforms or a non-positive
// ceiling select the defaults.
func NewFilter(platforms []string, maxFloor decimal.Decimal) *Filter {
	if len(platforms) == 0 {
		platforms = DefaultPlatforms
	}
	if !maxFloor.IsPositive() {
		maxFloor = DefaultMaxFloorPrice
	}

	set := make(map[string]struct{}, len(platforms))
	for _, p := range platforms {
		set[p] = struct{}{}
	}
	return &Filter{platforms: set, maxFloor: maxFloor}
}

// IsRelevant reports whether a request is worth evaluating: supported
// platform, sane floor price, and at least one active campaign cached.
func (f *Filter) IsRelevant(req *BidRequest, snap *Snapshot) bool {
	if _, ok := f.platforms[req.Inventory.Platform]; !ok {
		return false
	}
	if req.Inventory.FloorPrice.GreaterThan(f.maxFloor) {
		return false
	}
	if snap == nil || len(snap.Campaigns) == 0 {
		return false
	}
	return true
}

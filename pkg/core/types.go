// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// CampaignStatus is the lifecycle state of a campaign
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignActive    CampaignStatus = "active"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
)

// Campaign is an advertising campaign. Only active campaigns are eligible
// for bidding.
type Campaign struct {
	CampaignID string         `json:"campaign_id"`
	Name       string         `json:"name"`
	Status     CampaignStatus `json:"status"`
	SegmentIDs []string       `json:"segment_ids,omitempty"`
}

// SegmentSize buckets the estimated audience size
type SegmentSize string

const (
	SegmentSmall  SegmentSize = "small"
	SegmentMedium SegmentSize = "medium"
	SegmentLarge  SegmentSize = "large"
)

// Demographics describes the demographic targeting of a segment
type Demographics struct {
	AgeRange    string `json:"age_range,omitempty"`
	Gender      string `json:"gender,omitempty"` // male, female, all
	IncomeLevel string `json:"income_level,omitempty"`
}

// Segment is an audience segment owned by a campaign
type Segment struct {
	SegmentID             string       `json:"segment_id"`
	CampaignID            string       `json:"campaign_id"`
	Name                  string       `json:"name,omitempty"`
	Demographics          Demographics `json:"demographics"`
	Interests             []string     `json:"interests,omitempty"`
	Behaviors             []string     `json:"behaviors,omitempty"`
	EstimatedSize         SegmentSize  `json:"estimated_size,omitempty"`
	ConversionProbability float64      `json:"conversion_probability"`
	PriorityScore         float64      `json:"priority_score"`
}

// SegmentAllocation is the funded slice of a campaign budget for one segment
type SegmentAllocation struct {
	SegmentID string          `json:"segment_id"`
	Platform  string          `json:"platform,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	MaxCPC    decimal.Decimal `json:"max_cpc"`
}

// BudgetAllocation is a campaign's daily budget state. Spend is mutated
// only on confirmed auction wins.
type BudgetAllocation struct {
	CampaignID  string              `json:"campaign_id"`
	DailyBudget decimal.Decimal     `json:"daily_budget"`
	TotalSpent  decimal.Decimal     `json:"total_spent"`
	Segments    []SegmentAllocation `json:"segments,omitempty"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// Remaining returns the remaining daily budget, never negative.
func (a *BudgetAllocation) Remaining() decimal.Decimal {
	remaining := a.DailyBudget.Sub(a.TotalSpent)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// RemainingPercent returns the remaining budget as a percentage of the
// daily budget.
func (a *BudgetAllocation) RemainingPercent() float64 {
	if !a.DailyBudget.IsPositive() {
		return 0
	}
	pct, _ := a.Remaining().Div(a.DailyBudget).Mul(decimal.NewFromInt(100)).Float64()
	return pct
}

// MaxCPCFor returns the funded max CPC for a segment, if allocated.
func (a *BudgetAllocation) MaxCPCFor(segmentID string) (decimal.Decimal, bool) {
	for i := range a.Segments {
		if a.Segments[i].SegmentID == segmentID {
			return a.Segments[i].MaxCPC, true
		}
	}
	return decimal.Zero, false
}

// CreativeVariant is an ad creative attached to a campaign
type CreativeVariant struct {
	VariantID   string `json:"variant_id"`
	CampaignID  string `json:"campaign_id"`
	Status      string `json:"status"` // active, draft, archived
	Headline    string `json:"headline,omitempty"`
	Description string `json:"description,omitempty"`
}

// Strategy adjustment bounds and targets
const (
	MinAdjustmentFactor  = 0.5
	MaxAdjustmentFactor  = 2.0
	DefaultTargetWinRate = 0.30
	AdjustmentInterval   = 100 // evaluate every N bids
)

// BiddingStrategy tracks cumulative auction outcomes per campaign and the
// adjustment factor the controller derives from them.
type BiddingStrategy struct {
	CampaignID          string    `json:"campaign_id"`
	TotalBids           int64     `json:"total_bids"`
	TotalWins           int64     `json:"total_wins"`
	TotalLosses         int64     `json:"total_losses"`
	CurrentWinRate      float64   `json:"current_win_rate"`
	BidAdjustmentFactor float64   `json:"bid_adjustment_factor"`
	TargetWinRate       float64   `json:"target_win_rate"`
	LastUpdated         time.Time `json:"last_updated"`
}

// NewBiddingStrategy creates a strategy record with neutral defaults
func NewBiddingStrategy(campaignID string) *BiddingStrategy {
	return &BiddingStrategy{
		CampaignID:          campaignID,
		BidAdjustmentFactor: 1.0,
		TargetWinRate:       DefaultTargetWinRate,
		LastUpdated:         time.Now().UTC(),
	}
}

// UpdateWinRate recomputes the cumulative win rate
func (s *BiddingStrategy) UpdateWinRate() {
	if s.TotalBids > 0 {
		s.CurrentWinRate = float64(s.TotalWins) / float64(s.TotalBids)
	}
}

// ShouldAdjust reports whether the adjustment factor is due for
// re-evaluation (every 100th confirmed bid).
func (s *BiddingStrategy) ShouldAdjust() bool {
	return s.TotalBids > 0 && s.TotalBids%AdjustmentInterval == 0
}

// ClampFactor bounds an adjustment factor to [0.5, 2.0]
func ClampFactor(f float64) float64 {
	if f < MinAdjustmentFactor {
		return MinAdjustmentFactor
	}
	if f > MaxAdjustmentFactor {
		return MaxAdjustmentFactor
	}
	return f
}

// DecisionStatus is the lifecycle state of a logged bid decision
type DecisionStatus string

const (
	DecisionSubmitted DecisionStatus = "submitted"
	DecisionRejected  DecisionStatus = "rejected"
	DecisionWon       DecisionStatus = "won"
	DecisionLost      DecisionStatus = "lost"
)

// BidDecision is the durable audit record of a single bid decision,
// including the inputs that produced it.
type BidDecision struct {
	DecisionID string `json:"decision_id"`
	RequestID  string `json:"request_id"`

	CampaignID string           `json:"campaign_id,omitempty"`
	SegmentID  string           `json:"segment_id,omitempty"`
	CreativeID string           `json:"creative_id,omitempty"`
	BidPrice   *decimal.Decimal `json:"bid_price,omitempty"`

	Decision string         `json:"decision"` // bid or no_bid
	Reason   string         `json:"reason"`
	Status   DecisionStatus `json:"status"`

	ProcessingTimeMS       float64          `json:"processing_time_ms"`
	ConversionProbability  float64          `json:"conversion_probability,omitempty"`
	SegmentMaxCPC          *decimal.Decimal `json:"segment_max_cpc,omitempty"`
	BudgetRemainingPercent float64          `json:"budget_remaining_percent,omitempty"`

	WinPrice  *decimal.Decimal `json:"win_price,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

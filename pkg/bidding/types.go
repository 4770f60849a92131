// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package bidding implements the real-time bid decision pipeline:
// relevance filter, segment matcher, budget check, pricing and the
// orchestrating engine, backed by an atomically swapped campaign cache.
package bidding

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Timeout bounds in milliseconds for a bid request
const (
	MinTimeoutMS     = 50
	MaxTimeoutMS     = 200
	DefaultTimeoutMS = 100
)

// No-bid reason strings returned to the exchange
const (
	ReasonNotRelevant     = "Not relevant to active campaigns"
	ReasonNoSegmentMatch  = "No matching audience segments"
	ReasonBudgetExhausted = "Budget exhausted"
	ReasonBelowFloor      = "Bid below floor price"
	ReasonInternalError   = "Internal error"
	ReasonTimeout         = "Evaluation timed out"
	ReasonInvalidRequest  = "Invalid bid request"
)

// reasonLabel maps reason strings to low-cardinality metric labels
func reasonLabel(reason string) string {
	switch reason {
	case ReasonNotRelevant:
		return "not_relevant"
	case ReasonNoSegmentMatch:
		return "no_segment_match"
	case ReasonBudgetExhausted:
		return "budget_exhausted"
	case ReasonBelowFloor:
		return "below_floor"
	case ReasonTimeout:
		return "timeout"
	case ReasonInvalidRequest:
		return "invalid_request"
	default:
		return "internal_error"
	}
}

var ErrMissingRequestID = errors.New("missing request_id")

// UserProfile describes the auction user as provided by the exchange
type UserProfile struct {
	UserID       string            `json:"user_id,omitempty"`
	Demographics map[string]string `json:"demographics,omitempty"`
	Interests    []string          `json:"interests,omitempty"`
	Behaviors    []string          `json:"behaviors,omitempty"`
	DeviceType   string            `json:"device_type,omitempty"`
	Location     string            `json:"location,omitempty"`
}

// Inventory describes the ad slot being auctioned
type Inventory struct {
	InventoryID   string          `json:"inventory_id,omitempty"`
	Platform      string          `json:"platform"`
	PlacementType string          `json:"placement_type,omitempty"`
	FloorPrice    decimal.Decimal `json:"floor_price"`
	Dimensions    string          `json:"dimensions,omitempty"`
}

// BidRequest is one auction opportunity from an ad exchange
type BidRequest struct {
	RequestID   string      `json:"request_id"`
	UserProfile UserProfile `json:"user_profile"`
	Inventory   Inventory   `json:"inventory"`
	TimeoutMS   int         `json:"timeout_ms,omitempty"`
}

// Normalize validates required fields and clamps the timeout into the
// supported range.
func (r *BidRequest) Normalize() error {
	if r.RequestID == "" {
		return ErrMissingRequestID
	}
	if r.Inventory.FloorPrice.IsNegative() {
		return fmt.Errorf("negative floor price %s", r.Inventory.FloorPrice)
	}
	switch {
	case r.TimeoutMS == 0:
		r.TimeoutMS = DefaultTimeoutMS
	case r.TimeoutMS < MinTimeoutMS:
		r.TimeoutMS = MinTimeoutMS
	case r.TimeoutMS > MaxTimeoutMS:
		r.TimeoutMS = MaxTimeoutMS
	}
	return nil
}

// BidResponse is a submitted bid
type BidResponse struct {
	RequestID  string          `json:"request_id"`
	BidPrice   decimal.Decimal `json:"bid_price"`
	CampaignID string          `json:"campaign_id"`
	CreativeID string          `json:"creative_id"`
	SegmentID  string          `json:"segment_id"`
}

// NoBidResponse declines an auction with a reason
type NoBidResponse struct {
	RequestID string `json:"request_id"`
	Reason    string `json:"reason"`
}

// Outcome is the total result of a bid request. Exactly one of Bid and
// NoBid is set.
type Outcome struct {
	Bid   *BidResponse
	NoBid *NoBidResponse
}

// IsBid reports whether the outcome is a submitted bid
func (o Outcome) IsBid() bool { return o.Bid != nil }

func bidOutcome(resp *BidResponse) Outcome {
	return Outcome{Bid: resp}
}

func noBidOutcome(requestID, reason string) Outcome {
	return Outcome{NoBid: &NoBidResponse{RequestID: requestID, Reason: reason}}
}

// SegmentMatch is the ephemeral result of matching a user profile to the
// best funded segment.
type SegmentMatch struct {
	CampaignID            string
	SegmentID             string
	CreativeID            string
	MaxCPC                decimal.Decimal
	MatchScore            float64
	ConversionProbability float64
}

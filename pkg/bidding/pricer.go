// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bidding

import (
	"github.com/shopspring/decimal"

	"github.com/adxyz/bidder/pkg/budget"
)

// Pricing constants
const (
	// LowBudgetThresholdPct is the remaining-budget percentage under
	// which bids are dampened to extend runway.
	LowBudgetThresholdPct = 10.0
)

var (
	// lowBudgetReduction cuts bids by 30% when budget is nearly exhausted
	lowBudgetReduction = decimal.NewFromFloat(0.70)

	// ceilingMultiplier caps any bid at 2x the segment max CPC
	ceilingMultiplier = decimal.NewFromInt(2)

	half = decimal.NewFromFloat(0.5)
)

// Pricer computes bid prices from segment economics, budget pressure and
// the campaign's adaptive adjustment factor. Deterministic and pure.
type Pricer struct {
	lowBudgetPct float64
}

// NewPricer creates a pricer with the default low-budget threshold
func NewPricer() *Pricer {
	return &Pricer{lowBudgetPct: LowBudgetThresholdPct}
}

// Quote computes the unrounded, unclamped bid value:
//
//	maxCPC x (0.5 + conversion) x [0.70 if budget low] x factor
func (p *Pricer) Quote(match SegmentMatch, check budget.Check, factor float64) decimal.Decimal {
	multiplier := half.Add(decimal.NewFromFloat(match.ConversionProbability))
	bid := match.MaxCPC.Mul(multiplier)

	if check.RemainingPercent < p.lowBudgetPct {
		bid = bid.Mul(lowBudgetReduction)
	}

	return bid.Mul(decimal.NewFromFloat(factor))
}

// Price computes the final bid for an opportunity: the quote raised to
// the floor price, capped at 2x the segment max CPC, rounded to cents.
// Returns false when the capped bid still sits below the floor (the
// ceiling is under the floor), which the caller must treat as a no-bid.
func (p *Pricer) Price(match SegmentMatch, check budget.Check, factor float64, floor decimal.Decimal) (decimal.Decimal, bool) {
	bid := p.Quote(match, check, factor)

	final := decimal.Max(floor, bid)

	if ceiling := match.MaxCPC.Mul(ceilingMultiplier); final.GreaterThan(ceiling) {
		final = ceiling
	}

	final = final.Round(2)

	if final.LessThan(floor) {
		return final, false
	}
	return final, true
}

// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bidding

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/adxyz/bidder/pkg/budget"
)

func priceMatch(maxCPC string, conversion float64) SegmentMatch {
	return SegmentMatch{
		CampaignID:            "camp-1",
		SegmentID:             "seg-1",
		CreativeID:            "var-1",
		MaxCPC:                decimal.RequireFromString(maxCPC),
		MatchScore:            1.0,
		ConversionProbability: conversion,
	}
}

func healthyBudget(pct float64) budget.Check {
	return budget.Check{
		CampaignID:       "camp-1",
		Available:        true,
		RemainingPercent: pct,
	}
}

func TestPriceBase(t *testing.T) {
	p := NewPricer()

	// 2.50 * (0.5 + 0.15) = 1.625, rounded to cents
	price, ok := p.Price(priceMatch("2.50", 0.15), healthyBudget(50), 1.0, decimal.RequireFromString("0.50"))
	require.True(t, ok)
	require.Equal(t, "1.63", price.StringFixed(2))
}

func TestPriceLowBudgetReduction(t *testing.T) {
	p := NewPricer()

	// Below 10% remaining the bid is cut to 70%: 1.625 * 0.70 = 1.1375
	price, ok := p.Price(priceMatch("2.50", 0.15), healthyBudget(5), 1.0, decimal.RequireFromString("0.50"))
	require.True(t, ok)
	require.Equal(t, "1.14", price.StringFixed(2))
}

func TestPriceLowBudgetBoundary(t *testing.T) {
	p := NewPricer()
	floor := decimal.RequireFromString("0.50")

	// Exactly 10% remaining is not "low": no reduction applies.
	at, ok := p.Price(priceMatch("2.50", 0.15), healthyBudget(10), 1.0, floor)
	require.True(t, ok)
	require.Equal(t, "1.63", at.StringFixed(2))

	below, ok := p.Price(priceMatch("2.50", 0.15), healthyBudget(9.99), 1.0, floor)
	require.True(t, ok)
	require.Equal(t, "1.14", below.StringFixed(2))
}

func TestQuoteLowBudgetExactRatio(t *testing.T) {
	p := NewPricer()
	match := priceMatch("2.50", 0.15)

	full := p.Quote(match, healthyBudget(50), 1.0)
	low := p.Quote(match, healthyBudget(5), 1.0)

	// The reduction is exactly 70% before rounding.
	require.True(t, low.Equal(full.Mul(decimal.RequireFromString("0.70"))),
		"low=%s full=%s", low, full)
}

func TestPriceFloorRaisesBid(t *testing.T) {
	p := NewPricer()

	// Quote 0.50 * 0.55 = 0.275 sits under the floor; bid at the floor.
	price, ok := p.Price(priceMatch("0.50", 0.05), healthyBudget(50), 1.0, decimal.RequireFromString("0.40"))
	require.True(t, ok)
	require.Equal(t, "0.40", price.StringFixed(2))
}

func TestPriceCeilingCapsBid(t *testing.T) {
	p := NewPricer()

	// 1.00 * (0.5 + 0.9) * 2.0 = 2.80, capped at 2x max CPC.
	price, ok := p.Price(priceMatch("1.00", 0.9), healthyBudget(50), 2.0, decimal.RequireFromString("0.10"))
	require.True(t, ok)
	require.Equal(t, "2.00", price.StringFixed(2))
}

func TestPriceCeilingBelowFloorNoBid(t *testing.T) {
	p := NewPricer()

	// Ceiling 0.20 can never reach a 0.50 floor.
	price, ok := p.Price(priceMatch("0.10", 0.15), healthyBudget(50), 1.0, decimal.RequireFromString("0.50"))
	require.False(t, ok)
	require.Equal(t, "0.20", price.StringFixed(2))
}

func TestPriceAdjustmentFactorMonotonic(t *testing.T) {
	p := NewPricer()
	match := priceMatch("2.50", 0.15)
	check := healthyBudget(50)
	floor := decimal.RequireFromString("0.10")

	prev := decimal.Zero
	for _, factor := range []float64{0.5, 0.8, 1.0, 1.2, 1.5} {
		price, ok := p.Price(match, check, factor, floor)
		require.True(t, ok)
		require.True(t, price.GreaterThanOrEqual(prev),
			"factor %v produced %s below previous %s", factor, price, prev)
		prev = price
	}
}

func TestPriceNeverBelowFloorWhenOK(t *testing.T) {
	p := NewPricer()
	floor := decimal.RequireFromString("0.75")

	for _, conversion := range []float64{0.05, 0.1, 0.3, 0.6, 0.95} {
		price, ok := p.Price(priceMatch("2.00", conversion), healthyBudget(50), 1.0, floor)
		require.True(t, ok)
		require.True(t, price.GreaterThanOrEqual(floor))
	}
}

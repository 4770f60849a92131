// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bidding

import (
	"github.com/adxyz/bidder/pkg/core"
)

// Matching thresholds
const (
	MinMatchScore            = 0.5
	MinConversionProbability = 0.05
)

// Scoring weights: demographics 40%, interests 30%, behaviors 30%
const (
	weightDemographics = 0.4
	weightInterests    = 0.3
	weightBehaviors    = 0.3
)

// ageRangeOrder is the canonical ordered list of age ranges. Two ranges
// are adjacent when their indices differ by exactly one.
var ageRangeOrder = []string{"18-24", "25-34", "30-45", "35-50", "45-60", "50-65", "60+"}

func ageRangeIndex(r string) int {
	for i, v := range ageRangeOrder {
		if v == r {
			return i
		}
	}
	return -1
}

func ageRangesAdjacent(a, b string) bool {
	i, j := ageRangeIndex(a), ageRangeIndex(b)
	if i < 0 || j < 0 {
		return false
	}
	d := i - j
	return d == 1 || d == -1
}

// Matcher scores a user profile against every cached segment and selects
// the single best funded match. Pure computation over the snapshot; no
// store I/O on the hot path.
type Matcher struct {
	minScore      float64
	minConversion float64
}

// NewMatcher creates a matcher with the default thresholds
func NewMatcher() *Matcher {
	return &Matcher{
		minScore:      MinMatchScore,
		minConversion: MinConversionProbability,
	}
}

// Match returns the best segment match for the profile, or false when no
// segment clears the score and conversion thresholds. Ties on score are
// broken by lexicographic (campaign_id, segment_id) so map iteration
// order never changes the outcome.
func (m *Matcher) Match(profile *UserProfile, snap *Snapshot) (SegmentMatch, bool) {
	var best SegmentMatch
	found := false

	for campaignID, campaign := range snap.Campaigns {
		if campaign.Status != core.CampaignActive {
			continue
		}

		alloc, funded := snap.Allocations[campaignID]
		if !funded {
			continue
		}

		for i := range snap.Segments[campaignID] {
			segment := &snap.Segments[campaignID][i]

			score := MatchScore(profile, segment)
			if score < m.minScore {
				continue
			}

			maxCPC, ok := alloc.MaxCPCFor(segment.SegmentID)
			if !ok {
				continue
			}

			creativeID, ok := pickCreative(snap.Creatives[campaignID])
			if !ok {
				continue
			}

			conversion := clamp01(segment.ConversionProbability * score)
			if conversion < m.minConversion {
				continue
			}

			candidate := SegmentMatch{
				CampaignID:            campaignID,
				SegmentID:             segment.SegmentID,
				CreativeID:            creativeID,
				MaxCPC:                maxCPC,
				MatchScore:            score,
				ConversionProbability: conversion,
			}
			if !found || betterMatch(candidate, best) {
				best = candidate
				found = true
			}
		}
	}

	return best, found
}

// betterMatch orders candidates by score, then lexicographic IDs
func betterMatch(a, b SegmentMatch) bool {
	if a.MatchScore != b.MatchScore {
		return a.MatchScore > b.MatchScore
	}
	if a.CampaignID != b.CampaignID {
		return a.CampaignID < b.CampaignID
	}
	return a.SegmentID < b.SegmentID
}

// pickCreative prefers an active variant, falls back to the first
// available one, and fails when the campaign has none at all.
func pickCreative(variants []core.CreativeVariant) (string, bool) {
	for i := range variants {
		if variants[i].Status == "active" {
			return variants[i].VariantID, true
		}
	}
	if len(variants) > 0 {
		return variants[0].VariantID, true
	}
	return "", false
}

// MatchScore computes the weighted match score between a user profile
// and a segment, clamped to [0, 1].
func MatchScore(profile *UserProfile, segment *core.Segment) float64 {
	score := demographicsScore(profile, segment)*weightDemographics +
		overlap(profile.Interests, segment.Interests)*weightInterests +
		overlap(profile.Behaviors, segment.Behaviors)*weightBehaviors
	return clamp01(score)
}

// demographicsScore grants 0.5 credit for age range (0.25 when adjacent)
// and 0.5 credit for gender ("all" always matches).
func demographicsScore(profile *UserProfile, segment *core.Segment) float64 {
	score := 0.0

	userAge := profile.Demographics["age_range"]
	segAge := segment.Demographics.AgeRange
	if userAge != "" && segAge != "" {
		switch {
		case userAge == segAge:
			score += 0.5
		case ageRangesAdjacent(userAge, segAge):
			score += 0.25
		}
	}

	userGender := profile.Demographics["gender"]
	segGender := segment.Demographics.Gender
	if segGender == "all" {
		score += 0.5
	} else if userGender != "" && segGender != "" && userGender == segGender {
		score += 0.5
	}

	return score
}

// overlap returns |user ∩ segment| / |segment|
func overlap(user, segment []string) float64 {
	if len(user) == 0 || len(segment) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(user))
	for _, v := range user {
		set[v] = struct{}{}
	}
	hits := 0
	for _, v := range segment {
		if _, ok := set[v]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(segment))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

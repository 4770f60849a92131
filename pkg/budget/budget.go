// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package budget guards campaign spend. Reads fail safe: when budget
// state cannot be determined the campaign is treated as exhausted.
package budget

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/adxyz/bidder/pkg/log"
	"github.com/adxyz/bidder/pkg/store"
)

var (
	ErrNoAllocation   = errors.New("no budget allocation")
	ErrNegativeAmount = errors.New("negative spend amount")
)

// minBidworthy is the smallest remaining budget worth bidding against
var minBidworthy = decimal.NewFromInt(1)

// Check is the result of a budget availability check
type Check struct {
	CampaignID       string
	Available        bool
	Remaining        decimal.Decimal
	RemainingPercent float64
	DailyBudget      decimal.Decimal
	CurrentSpend     decimal.Decimal
}

// Manager checks and updates campaign budget allocations. Spend updates
// for the same campaign are serialized so concurrent win confirmations
// never lose an update, and Remaining never goes negative.
type Manager struct {
	store store.Store
	log   log.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager creates a budget manager backed by the given store
func NewManager(st store.Store, logger log.Logger) *Manager {
	return &Manager{
		store: st,
		log:   logger,
		locks: make(map[string]*sync.Mutex),
	}
}

func (m *Manager) campaignLock(campaignID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.locks[campaignID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[campaignID] = lock
	}
	return lock
}

// Check reports whether a campaign has bid-worthy budget remaining
// (at least $1.00). Any store failure yields Available=false.
func (m *Manager) Check(ctx context.Context, campaignID string) Check {
	unavailable := Check{CampaignID: campaignID}

	alloc, err := m.store.Allocation(ctx, campaignID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			m.log.Error("budget lookup failed", "campaign_id", campaignID, "error", err)
		} else {
			m.log.Warn("no budget allocation found", "campaign_id", campaignID)
		}
		return unavailable
	}

	remaining := alloc.Remaining()
	check := Check{
		CampaignID:       campaignID,
		Available:        remaining.GreaterThanOrEqual(minBidworthy),
		Remaining:        remaining,
		RemainingPercent: alloc.RemainingPercent(),
		DailyBudget:      alloc.DailyBudget,
		CurrentSpend:     alloc.TotalSpent,
	}

	m.log.Debug("budget check",
		"campaign_id", campaignID,
		"available", check.Available,
		"remaining", check.Remaining,
		"remaining_percent", check.RemainingPercent)

	return check
}

// Debit records confirmed spend against a campaign after an auction win.
// The debit is capped at the remaining budget so TotalSpent never exceeds
// DailyBudget. Returns the remaining budget after the debit.
func (m *Manager) Debit(ctx context.Context, campaignID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return decimal.Zero, ErrNegativeAmount
	}

	lock := m.campaignLock(campaignID)
	lock.Lock()
	defer lock.Unlock()

	alloc, err := m.store.Allocation(ctx, campaignID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return decimal.Zero, ErrNoAllocation
		}
		return decimal.Zero, fmt.Errorf("load allocation: %w", err)
	}

	debit := amount
	if remaining := alloc.Remaining(); debit.GreaterThan(remaining) {
		m.log.Warn("spend exceeds remaining budget, capping",
			"campaign_id", campaignID,
			"spend", amount,
			"remaining", remaining)
		debit = remaining
	}

	alloc.TotalSpent = alloc.TotalSpent.Add(debit)
	alloc.UpdatedAt = time.Now().UTC()

	if err := m.store.PutAllocation(ctx, alloc); err != nil {
		return decimal.Zero, fmt.Errorf("update allocation: %w", err)
	}

	remaining := alloc.Remaining()
	m.log.Debug("campaign spend updated",
		"campaign_id", campaignID,
		"spend", debit,
		"total_spent", alloc.TotalSpent,
		"remaining", remaining)

	return remaining, nil
}

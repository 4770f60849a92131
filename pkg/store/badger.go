// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/adxyz/bidder/pkg/core"
)

// Key prefixes. Compound keys use '/' separators; IDs never contain '/'.
const (
	prefixCampaign = "campaign/"
	prefixSegment  = "segment/"
	prefixVariant  = "variant/"
	prefixAlloc    = "alloc/"
	prefixStrategy = "strategy/"
	prefixDecision = "decision/"
	prefixDcIndex  = "dcidx/"
)

// BadgerStore is a badger-backed Store implementation with JSON-encoded
// values.
type BadgerStore struct {
	db *badger.DB
}

var _ Store = (*BadgerStore)(nil)
var _ Catalog = (*BadgerStore)(nil)

// NewBadgerStore opens (or creates) a badger database at path
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) put(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

func (s *BadgerStore) get(key string, out any) error {
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		data, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return json.Unmarshal(data, out)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	return err
}

// scan decodes every value under prefix into items via decode
func (s *BadgerStore) scan(prefix string, decode func(value []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			value, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := decode(value); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BadgerStore) ActiveCampaigns(ctx context.Context) ([]core.Campaign, error) {
	var out []core.Campaign
	err := s.scan(prefixCampaign, func(value []byte) error {
		var c core.Campaign
		if err := json.Unmarshal(value, &c); err != nil {
			return err
		}
		if c.Status == core.CampaignActive {
			out = append(out, c)
		}
		return nil
	})
	return out, err
}

func (s *BadgerStore) SegmentsByCampaign(ctx context.Context, campaignID string) ([]core.Segment, error) {
	var out []core.Segment
	err := s.scan(prefixSegment+campaignID+"/", func(value []byte) error {
		var seg core.Segment
		if err := json.Unmarshal(value, &seg); err != nil {
			return err
		}
		out = append(out, seg)
		return nil
	})
	return out, err
}

func (s *BadgerStore) VariantsByCampaign(ctx context.Context, campaignID string) ([]core.CreativeVariant, error) {
	var out []core.CreativeVariant
	err := s.scan(prefixVariant+campaignID+"/", func(value []byte) error {
		var v core.CreativeVariant
		if err := json.Unmarshal(value, &v); err != nil {
			return err
		}
		out = append(out, v)
		return nil
	})
	return out, err
}

func (s *BadgerStore) Allocation(ctx context.Context, campaignID string) (*core.BudgetAllocation, error) {
	var alloc core.BudgetAllocation
	if err := s.get(prefixAlloc+campaignID, &alloc); err != nil {
		return nil, err
	}
	return &alloc, nil
}

func (s *BadgerStore) PutAllocation(ctx context.Context, alloc *core.BudgetAllocation) error {
	return s.put(prefixAlloc+alloc.CampaignID, alloc)
}

func (s *BadgerStore) BiddingStrategy(ctx context.Context, campaignID string) (*core.BiddingStrategy, error) {
	var strategy core.BiddingStrategy
	if err := s.get(prefixStrategy+campaignID, &strategy); err != nil {
		return nil, err
	}
	return &strategy, nil
}

func (s *BadgerStore) PutBiddingStrategy(ctx context.Context, strategy *core.BiddingStrategy) error {
	return s.put(prefixStrategy+strategy.CampaignID, strategy)
}

func (s *BadgerStore) LogDecision(ctx context.Context, decision *core.BidDecision) error {
	data, err := json.Marshal(decision)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		key := []byte(prefixDecision + decision.RequestID)
		_, getErr := txn.Get(key)
		isNew := errors.Is(getErr, badger.ErrKeyNotFound)

		if err := txn.Set(key, data); err != nil {
			return err
		}
		// Secondary index so stats queries do not scan the full log.
		if isNew && decision.CampaignID != "" {
			idx := fmt.Sprintf("%s%s/%020d-%s",
				prefixDcIndex, decision.CampaignID, time.Now().UnixNano(), decision.RequestID)
			return txn.Set([]byte(idx), []byte(decision.RequestID))
		}
		return nil
	})
}

func (s *BadgerStore) Decision(ctx context.Context, requestID string) (*core.BidDecision, error) {
	var decision core.BidDecision
	if err := s.get(prefixDecision+requestID, &decision); err != nil {
		return nil, err
	}
	return &decision, nil
}

func (s *BadgerStore) DecisionsByCampaign(ctx context.Context, campaignID string, limit int) ([]core.BidDecision, error) {
	var ids []string
	err := s.scan(prefixDcIndex+campaignID+"/", func(value []byte) error {
		ids = append(ids, string(value))
		return nil
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[len(ids)-limit:]
	}

	out := make([]core.BidDecision, 0, len(ids))
	for _, id := range ids {
		decision, err := s.Decision(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *decision)
	}
	return out, nil
}

func (s *BadgerStore) PutCampaign(ctx context.Context, campaign *core.Campaign) error {
	if strings.Contains(campaign.CampaignID, "/") {
		return fmt.Errorf("invalid campaign id %q", campaign.CampaignID)
	}
	return s.put(prefixCampaign+campaign.CampaignID, campaign)
}

func (s *BadgerStore) PutSegment(ctx context.Context, segment *core.Segment) error {
	return s.put(prefixSegment+segment.CampaignID+"/"+segment.SegmentID, segment)
}

func (s *BadgerStore) PutVariant(ctx context.Context, variant *core.CreativeVariant) error {
	return s.put(prefixVariant+variant.CampaignID+"/"+variant.VariantID, variant)
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

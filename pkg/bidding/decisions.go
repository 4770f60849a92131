// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bidding

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adxyz/bidder/pkg/core"
	"github.com/adxyz/bidder/pkg/log"
	"github.com/adxyz/bidder/pkg/metric"
	"github.com/adxyz/bidder/pkg/store"
)

// DefaultDecisionBuffer is the decision log channel capacity
const DefaultDecisionBuffer = 4096

// writeTimeout bounds one decision write to the store
const writeTimeout = 5 * time.Second

// DecisionLog records every bid decision durably without ever gating the
// response path. Writes are buffered and performed by a single worker;
// when the buffer is full the decision is dropped and counted.
type DecisionLog struct {
	store   store.Store
	log     log.Logger
	metrics *metric.Metrics

	ch     chan *core.BidDecision
	wg     sync.WaitGroup
	once   sync.Once
	notify func(*core.BidDecision)
}

// NewDecisionLog creates a decision log. buffer <= 0 selects the default
// capacity.
func NewDecisionLog(st store.Store, buffer int, logger log.Logger, metrics *metric.Metrics) *DecisionLog {
	if buffer <= 0 {
		buffer = DefaultDecisionBuffer
	}
	d := &DecisionLog{
		store:   st,
		log:     logger,
		metrics: metrics,
		ch:      make(chan *core.BidDecision, buffer),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

// OnDecision registers a best-effort observer invoked for every recorded
// decision (the websocket feed). Must be set before traffic starts.
func (d *DecisionLog) OnDecision(fn func(*core.BidDecision)) {
	d.notify = fn
}

// Record queues a decision for durable write. Never blocks; a full
// buffer drops the record.
func (d *DecisionLog) Record(decision *core.BidDecision) {
	if decision.DecisionID == "" {
		decision.DecisionID = uuid.NewString()
	}
	if decision.CreatedAt.IsZero() {
		decision.CreatedAt = time.Now().UTC()
	}

	if d.notify != nil {
		d.notify(decision)
	}

	select {
	case d.ch <- decision:
	default:
		if d.metrics != nil {
			d.metrics.DecisionsDropped.Inc()
		}
		d.log.Warn("decision log buffer full, dropping record",
			"request_id", decision.RequestID)
	}
}

func (d *DecisionLog) run() {
	defer d.wg.Done()

	for decision := range d.ch {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := d.store.LogDecision(ctx, decision)
		cancel()

		if err != nil {
			// A failed decision write never fails the bid it describes.
			d.log.Error("failed to log bid decision",
				"request_id", decision.RequestID, "error", err)
			continue
		}
		if d.metrics != nil {
			d.metrics.DecisionsLogged.Inc()
		}
	}
}

// Close drains buffered decisions and stops the worker
func (d *DecisionLog) Close() {
	d.once.Do(func() {
		close(d.ch)
	})
	d.wg.Wait()
}

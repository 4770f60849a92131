// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bidding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/adxyz/bidder/pkg/budget"
	"github.com/adxyz/bidder/pkg/core"
	"github.com/adxyz/bidder/pkg/log"
	"github.com/adxyz/bidder/pkg/metric"
	"github.com/adxyz/bidder/pkg/store"
	"github.com/adxyz/bidder/pkg/strategy"
)

// DefaultSLAWarn is the processing time above which a decision is logged
// as approaching the latency ceiling.
const DefaultSLAWarn = 80 * time.Millisecond

// Params are the engine tunables. Zero values select defaults.
type Params struct {
	Platforms     []string
	MaxFloorPrice decimal.Decimal
	SLAWarn       time.Duration
}

// Engine is the per-request bid decision pipeline:
//
//	relevance -> segment match -> budget check -> price -> respond
//
// Every stage rejection short-circuits to a no-bid with a reason, and
// any panic is converted to a no-bid at the engine boundary so the
// exchange always receives a well-formed response.
type Engine struct {
	store      store.Store
	cache      *Refresher
	filter     *Filter
	matcher    *Matcher
	pricer     *Pricer
	budgets    *budget.Manager
	strategies *strategy.Controller
	decisions  *DecisionLog
	log        log.Logger
	metrics    *metric.Metrics
	slaWarn    time.Duration
}

// NewEngine wires the bid decision pipeline
func NewEngine(
	st store.Store,
	cache *Refresher,
	budgets *budget.Manager,
	strategies *strategy.Controller,
	decisions *DecisionLog,
	logger log.Logger,
	metrics *metric.Metrics,
	params Params,
) *Engine {
	slaWarn := params.SLAWarn
	if slaWarn <= 0 {
		slaWarn = DefaultSLAWarn
	}

	cache.OnStrategies(strategies.Seed)

	return &Engine{
		store:      st,
		cache:      cache,
		filter:     NewFilter(params.Platforms, params.MaxFloorPrice),
		matcher:    NewMatcher(),
		pricer:     NewPricer(),
		budgets:    budgets,
		strategies: strategies,
		decisions:  decisions,
		log:        logger,
		metrics:    metrics,
		slaWarn:    slaWarn,
	}
}

// HandleBid evaluates one auction opportunity. It always returns an
// outcome, never an error: malformed input, stage rejections, store
// failures, timeouts and panics all surface as no-bids with a reason.
func (e *Engine) HandleBid(ctx context.Context, req *BidRequest) (out Outcome) {
	start := time.Now()
	e.metrics.Requests.Inc()

	defer func() {
		if r := recover(); r != nil {
			e.log.Error("bid pipeline panic",
				"request_id", req.RequestID, "panic", r)
			out = e.reject(req, ReasonInternalError, fmt.Sprintf("panic: %v", r), start, nil, nil)
		}
		e.metrics.Latency.Observe(time.Since(start).Seconds())
	}()

	if err := req.Normalize(); err != nil {
		e.log.Debug("rejecting malformed bid request",
			"request_id", req.RequestID, "error", err)
		return e.reject(req, ReasonInvalidRequest, err.Error(), start, nil, nil)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(req.TimeoutMS)*time.Millisecond)
	defer cancel()

	// Serve from the current snapshot; kick a background refresh when
	// it has gone stale. The hot path never waits on the store for
	// campaign data.
	snap := e.cache.Snapshot()
	e.cache.MaybeRefreshAsync()

	if !e.filter.IsRelevant(req, snap) {
		return e.reject(req, ReasonNotRelevant, ReasonNotRelevant, start, nil, nil)
	}

	match, ok := e.matcher.Match(&req.UserProfile, snap)
	if !ok {
		return e.reject(req, ReasonNoSegmentMatch, ReasonNoSegmentMatch, start, nil, nil)
	}

	if ctx.Err() != nil {
		return e.reject(req, ReasonTimeout, ReasonTimeout, start, &match, nil)
	}

	check := e.budgets.Check(ctx, match.CampaignID)
	if !check.Available {
		return e.reject(req, ReasonBudgetExhausted, ReasonBudgetExhausted, start, &match, &check)
	}

	factor := e.adjustmentFactor(snap, match.CampaignID)

	price, ok := e.pricer.Price(match, check, factor, req.Inventory.FloorPrice)
	if !ok {
		detail := fmt.Sprintf("Bid price $%s below floor $%s",
			price.StringFixed(2), req.Inventory.FloorPrice.StringFixed(2))
		return e.reject(req, ReasonBelowFloor, detail, start, &match, &check)
	}

	elapsed := time.Since(start)
	if elapsed > e.slaWarn {
		e.metrics.SLABreaches.Inc()
		e.log.Warn("bid decision approaching latency ceiling",
			"request_id", req.RequestID,
			"processing_time_ms", float64(elapsed.Microseconds())/1000)
	}

	e.recordBid(req, match, check, price, elapsed)
	e.metrics.Bids.Inc()

	e.log.Info("bid submitted",
		"request_id", req.RequestID,
		"campaign_id", match.CampaignID,
		"bid_price", price,
		"processing_time_ms", float64(elapsed.Microseconds())/1000)

	return bidOutcome(&BidResponse{
		RequestID:  req.RequestID,
		BidPrice:   price,
		CampaignID: match.CampaignID,
		CreativeID: match.CreativeID,
		SegmentID:  match.SegmentID,
	})
}

// adjustmentFactor resolves the campaign's current factor: controller
// cache first (freshest), snapshot second, neutral 1.0 otherwise.
func (e *Engine) adjustmentFactor(snap *Snapshot, campaignID string) float64 {
	if factor, ok := e.strategies.CachedFactor(campaignID); ok {
		return factor
	}
	if s, ok := snap.Strategies[campaignID]; ok {
		return s.BidAdjustmentFactor
	}
	return 1.0
}

// reject emits a no-bid outcome and records the decision
func (e *Engine) reject(
	req *BidRequest,
	reason, detail string,
	start time.Time,
	match *SegmentMatch,
	check *budget.Check,
) Outcome {
	e.metrics.NoBids.WithLabelValues(reasonLabel(reason)).Inc()

	decision := &core.BidDecision{
		RequestID:        req.RequestID,
		Decision:         "no_bid",
		Reason:           detail,
		Status:           core.DecisionRejected,
		ProcessingTimeMS: float64(time.Since(start).Microseconds()) / 1000,
	}
	if match != nil {
		decision.CampaignID = match.CampaignID
		decision.SegmentID = match.SegmentID
		decision.CreativeID = match.CreativeID
		decision.ConversionProbability = match.ConversionProbability
		maxCPC := match.MaxCPC
		decision.SegmentMaxCPC = &maxCPC
	}
	if check != nil {
		decision.BudgetRemainingPercent = check.RemainingPercent
	}
	e.decisions.Record(decision)

	return noBidOutcome(req.RequestID, reason)
}

// recordBid logs a submitted bid with the inputs that produced it
func (e *Engine) recordBid(
	req *BidRequest,
	match SegmentMatch,
	check budget.Check,
	price decimal.Decimal,
	elapsed time.Duration,
) {
	maxCPC := match.MaxCPC
	bid := price
	e.decisions.Record(&core.BidDecision{
		RequestID:  req.RequestID,
		CampaignID: match.CampaignID,
		SegmentID:  match.SegmentID,
		CreativeID: match.CreativeID,
		BidPrice:   &bid,
		Decision:   "bid",
		Reason: fmt.Sprintf("Match score: %.2f, Conv prob: %.2f",
			match.MatchScore, match.ConversionProbability),
		Status:                 core.DecisionSubmitted,
		ProcessingTimeMS:       float64(elapsed.Microseconds()) / 1000,
		ConversionProbability:  match.ConversionProbability,
		SegmentMaxCPC:          &maxCPC,
		BudgetRemainingPercent: check.RemainingPercent,
	})
}

// TrackResult applies an auction result from the exchange webhook: it
// updates the stored decision, feeds the strategy controller, and on a
// win debits the campaign budget.
func (e *Engine) TrackResult(ctx context.Context, requestID string, won bool, winPrice *decimal.Decimal) error {
	status := core.DecisionLost
	if won {
		status = core.DecisionWon
	}
	e.metrics.Results.WithLabelValues(string(status)).Inc()

	decision, err := e.store.Decision(ctx, requestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.log.Warn("result for unknown bid decision", "request_id", requestID)
		}
		return fmt.Errorf("load bid decision: %w", err)
	}

	decision.Status = status
	decision.WinPrice = winPrice
	if err := e.store.LogDecision(ctx, decision); err != nil {
		e.log.Error("failed to update bid decision status",
			"request_id", requestID, "error", err)
	}

	if decision.CampaignID == "" {
		e.log.Warn("bid decision has no campaign, skipping strategy update",
			"request_id", requestID)
		return nil
	}

	if _, err := e.strategies.RecordResult(ctx, decision.CampaignID, won); err != nil {
		e.log.Error("failed to update bidding strategy",
			"campaign_id", decision.CampaignID, "error", err)
	}

	if won && winPrice != nil && winPrice.IsPositive() {
		if _, err := e.budgets.Debit(ctx, decision.CampaignID, *winPrice); err != nil {
			e.log.Error("failed to update campaign spend",
				"campaign_id", decision.CampaignID, "error", err)
		} else {
			spend, _ := winPrice.Float64()
			e.metrics.SpendUSD.Add(spend)
		}
	}

	e.log.Info("bid result tracked",
		"request_id", requestID,
		"campaign_id", decision.CampaignID,
		"status", status)
	return nil
}

// CampaignStats returns the operational bid statistics for a campaign
func (e *Engine) CampaignStats(ctx context.Context, campaignID string) (*strategy.Stats, error) {
	return e.strategies.Stats(ctx, campaignID)
}

// Close flushes the decision log
func (e *Engine) Close() {
	e.decisions.Close()
}

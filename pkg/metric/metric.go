// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all metrics for the bid decision engine
type Metrics struct {
	registry *prometheus.Registry

	// Request pipeline metrics
	Requests    prometheus.Counter
	Bids        prometheus.Counter
	NoBids      *prometheus.CounterVec
	Latency     prometheus.Histogram
	SLABreaches prometheus.Counter

	// Cache metrics
	CacheRefreshes    prometheus.Counter
	CacheRefreshFails prometheus.Counter
	CachedCampaigns   prometheus.Gauge
	CachedSegments    prometheus.Gauge

	// Result / feedback-loop metrics
	Results     *prometheus.CounterVec
	SpendUSD    prometheus.Counter
	Adjustments prometheus.Counter

	// Decision log metrics
	DecisionsLogged  prometheus.Counter
	DecisionsDropped prometheus.Counter

	// Feed metrics
	FeedClients prometheus.Gauge
}

// NewMetrics creates the engine metrics on a private registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		Requests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bidder",
			Name:      "requests_total",
			Help:      "Total number of bid requests received",
		}),
		Bids: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bidder",
			Name:      "bids_total",
			Help:      "Total number of bids submitted",
		}),
		NoBids: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bidder",
			Name:      "no_bids_total",
			Help:      "Total number of no-bid responses by reason",
		}, []string{"reason"}),
		Latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "bidder",
			Name:      "decision_latency_seconds",
			Help:      "Time to produce a bid decision",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .08, .1, .25},
		}),
		SLABreaches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bidder",
			Name:      "sla_breaches_total",
			Help:      "Decisions that exceeded the latency warning threshold",
		}),

		CacheRefreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bidder",
			Name:      "cache_refresh_total",
			Help:      "Total number of successful campaign cache refreshes",
		}),
		CacheRefreshFails: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bidder",
			Name:      "cache_refresh_errors_total",
			Help:      "Total number of failed campaign cache refreshes",
		}),
		CachedCampaigns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bidder",
			Name:      "cache_campaigns",
			Help:      "Number of active campaigns in the current snapshot",
		}),
		CachedSegments: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bidder",
			Name:      "cache_segments",
			Help:      "Number of audience segments in the current snapshot",
		}),

		Results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bidder",
			Name:      "results_total",
			Help:      "Auction results processed by status",
		}, []string{"status"}),
		SpendUSD: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bidder",
			Name:      "spend_usd_total",
			Help:      "Total confirmed spend in USD",
		}),
		Adjustments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bidder",
			Name:      "strategy_adjustments_total",
			Help:      "Bid adjustment factor recalculations performed",
		}),

		DecisionsLogged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bidder",
			Name:      "decisions_logged_total",
			Help:      "Bid decisions durably recorded",
		}),
		DecisionsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bidder",
			Name:      "decisions_dropped_total",
			Help:      "Bid decisions dropped because the log buffer was full",
		}),

		FeedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bidder",
			Name:      "feed_clients",
			Help:      "Connected decision feed websocket clients",
		}),
	}

	registry.MustRegister(
		m.Requests, m.Bids, m.NoBids, m.Latency, m.SLABreaches,
		m.CacheRefreshes, m.CacheRefreshFails, m.CachedCampaigns, m.CachedSegments,
		m.Results, m.SpendUSD, m.Adjustments,
		m.DecisionsLogged, m.DecisionsDropped,
		m.FeedClients,
	)

	return m
}

// Gatherer returns the prometheus gatherer for metrics export
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// Registerer returns the prometheus registerer
func (m *Metrics) Registerer() prometheus.Registerer {
	return m.registry
}

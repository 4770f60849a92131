// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package api exposes the bid decision engine over HTTP: the native bid
// endpoint, an OpenRTB 2.x adapter endpoint, the result webhook, campaign
// stats and a websocket decision feed.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/shopspring/decimal"

	"github.com/adxyz/bidder/pkg/bidding"
	"github.com/adxyz/bidder/pkg/log"
	"github.com/adxyz/bidder/pkg/rtb"
	"github.com/adxyz/bidder/pkg/store"
)

// Server serves the bidder HTTP API
type Server struct {
	engine *bidding.Engine
	hub    *Hub
	log    log.Logger
	router *gin.Engine
}

// NewServer builds the HTTP API around a bid engine. The hub may be nil
// when the decision feed is not wanted.
func NewServer(engine *bidding.Engine, hub *Hub, environment string, logger log.Logger) *Server {
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	s := &Server{
		engine: engine,
		hub:    hub,
		log:    logger,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}))

	router.GET("/health", s.handleHealth)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/rtb/bid", s.handleBid)
		v1.POST("/rtb/openrtb", s.handleOpenRTB)
		v1.POST("/rtb/result", s.handleResult)
		v1.GET("/rtb/stats/:campaign_id", s.handleStats)
		if hub != nil {
			v1.GET("/rtb/feed", gin.WrapH(hub))
		}
	}

	s.router = router
	return s
}

// Handler returns the root http handler, mainly for tests
func (s *Server) Handler() http.Handler { return s.router }

// Run serves the API on addr until the listener fails
func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "time": time.Now().UTC()})
}

// handleBid evaluates a native bid request. The endpoint always answers
// 200 with either a bid or a no-bid body; exchanges treat anything else
// as an error worth retrying, which a decision never is.
func (s *Server) handleBid(c *gin.Context) {
	var req bidding.BidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.log.Debug("unparseable bid request", "error", err)
		c.JSON(http.StatusOK, bidding.NoBidResponse{
			RequestID: req.RequestID,
			Reason:    bidding.ReasonInvalidRequest,
		})
		return
	}

	out := s.engine.HandleBid(c.Request.Context(), &req)
	if out.IsBid() {
		c.JSON(http.StatusOK, out.Bid)
		return
	}
	c.JSON(http.StatusOK, out.NoBid)
}

// handleOpenRTB evaluates an OpenRTB 2.x bid request
func (s *Server) handleOpenRTB(c *gin.Context) {
	var req openrtb2.BidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid OpenRTB request"})
		return
	}

	native, err := rtb.FromOpenRTB(&req)
	if err != nil {
		c.JSON(http.StatusOK, &openrtb2.BidResponse{ID: req.ID})
		return
	}

	out := s.engine.HandleBid(c.Request.Context(), native)
	c.JSON(http.StatusOK, rtb.ToOpenRTB(req.ID, out))
}

type resultRequest struct {
	RequestID string           `json:"request_id" binding:"required"`
	Status    string           `json:"status" binding:"required"`
	WinPrice  *decimal.Decimal `json:"win_price,omitempty"`
}

// handleResult receives the auction outcome webhook from the exchange
func (s *Server) handleResult(c *gin.Context) {
	var req resultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var won bool
	switch req.Status {
	case "WON", "won":
		won = true
	case "LOST", "lost":
		won = false
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be WON or LOST"})
		return
	}

	if err := s.engine.TrackResult(c.Request.Context(), req.RequestID, won, req.WinPrice); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown request_id"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to track result"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "tracked", "request_id": req.RequestID})
}

// handleStats returns operational bid statistics for a campaign
func (s *Server) handleStats(c *gin.Context) {
	campaignID := c.Param("campaign_id")

	stats, err := s.engine.CampaignStats(c.Request.Context(), campaignID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load stats"})
		return
	}

	c.JSON(http.StatusOK, stats)
}

package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"ad-control-service/internal/impressions"
	"ad-control-service/internal/ledger"
	"ad-control-service/internal/metrics"
	"ad-control-service/internal/models"

	"github.com/gin-gonic/gin"
)

// Decision outcomes. None of these are failures; they are the normal
// vocabulary of the monetization policy.
const (
	OutcomeShown        = "shown"
	OutcomePolicyDenied = "policy_denied"
	OutcomePaced        = "paced"
	OutcomeNoCampaign   = "no_campaign"
)

// GetAdDecision is the one entry point a UI surface calls before showing an
// ad: eligibility, then pacing (interstitials only), then campaign selection
// through the fatigue filter, then impression creation.
func (s *Server) GetAdDecision(c *gin.Context) {
	start := time.Now()
	defer func() {
		metrics.ResponseTime.WithLabelValues("GET", "/ads/decision", strconv.Itoa(c.Writer.Status())).Observe(time.Since(start).Seconds())
	}()

	var req models.DecisionRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch req.Surface {
	case models.AdTypeBanner, models.AdTypeInterstitial, models.AdTypeRewarded:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown surface: " + req.Surface})
		return
	}

	sess := s.sessions.Get(req.SessionID)

	allowed, err := s.resolver.MayShowAd(c.Request.Context(), req.UserID, req.Surface)
	if err != nil {
		// Ad state unknown: never silently allow or deny.
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ad state unknown, retry"})
		return
	}
	if !allowed {
		s.respondDecision(c, req.Surface, models.DecisionResponse{Show: false, Reason: OutcomePolicyDenied})
		return
	}

	if req.Surface == models.AdTypeInterstitial && !sess.Pacing.ShouldShow() {
		s.respondDecision(c, req.Surface, models.DecisionResponse{Show: false, Reason: OutcomePaced})
		return
	}

	campaigns, err := s.registry.ActiveCampaigns(c.Request.Context(), req.Surface, req.Platform)
	if err != nil {
		s.logger.WithError(err).Error("Failed to fetch campaigns")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ad state unknown, retry"})
		return
	}

	picked := s.registry.SelectOne(sess.Fatigue.Filter(campaigns))
	if picked == nil {
		s.respondDecision(c, req.Surface, models.DecisionResponse{Show: false, Reason: OutcomeNoCampaign})
		return
	}

	// Shown-count goes up before the impression exists so a duplicate render
	// cannot slip past the fatigue cap.
	sess.Fatigue.RecordShown(picked.ID)

	imp := models.AdImpression{
		CampaignID: picked.ID,
		AdType:     req.Surface,
		Platform:   req.Platform,
		SessionID:  sess.ID,
	}
	if req.UserID != "" {
		imp.UserID = &req.UserID
	}
	created, err := s.impressions.Create(c.Request.Context(), imp)
	if err != nil {
		s.logger.WithError(err).Error("Failed to record impression")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ad state unknown, retry"})
		return
	}

	s.respondDecision(c, req.Surface, models.DecisionResponse{
		Show:         true,
		Reason:       OutcomeShown,
		Campaign:     picked,
		ImpressionID: created.ID,
	})
}

func (s *Server) respondDecision(c *gin.Context, surface string, resp models.DecisionResponse) {
	metrics.AdDecisions.WithLabelValues(surface, resp.Reason).Inc()
	c.JSON(http.StatusOK, resp)
}

func (s *Server) PostImpressionClick(c *gin.Context) {
	impressionID := c.Param("id")

	err := s.impressions.MarkClicked(c.Request.Context(), impressionID)
	if errors.Is(err, impressions.ErrImpressionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "impression not found"})
		return
	}
	if err != nil {
		s.logger.WithError(err).Error("Failed to record click")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record click"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "recorded"})
}

// PostImpressionComplete handles the mediation SDK's completion callback.
// For rewarded impressions the ledger credit uses the impression id as the
// idempotency key, so duplicated callbacks credit exactly once.
func (s *Server) PostImpressionComplete(c *gin.Context) {
	start := time.Now()
	defer func() {
		metrics.ResponseTime.WithLabelValues("POST", "/impressions/complete", strconv.Itoa(c.Writer.Status())).Observe(time.Since(start).Seconds())
	}()

	impressionID := c.Param("id")

	imp, _, err := s.impressions.MarkCompleted(c.Request.Context(), impressionID)
	if errors.Is(err, impressions.ErrImpressionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "impression not found"})
		return
	}
	if err != nil {
		s.logger.WithError(err).Error("Failed to record completion")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "completion state unknown, retry"})
		return
	}

	resp := gin.H{"status": "completed"}

	if imp.AdType == models.AdTypeRewarded && imp.UserID != nil {
		credit, err := s.ledger.Credit(c.Request.Context(), *imp.UserID, ledger.RewardedAdHours, "rewarded_ad", imp.ID)
		if err != nil {
			s.logger.WithError(err).Error("Failed to credit rewarded completion")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "credit state unknown, retry"})
			return
		}
		if !credit.Duplicate {
			metrics.HoursCredited.Add(credit.Applied.InexactFloat64())
		}
		resp["credit"] = credit
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetCampaignSummary(c *gin.Context) {
	campaignID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid campaign id"})
		return
	}

	summary, err := s.impressions.CampaignSummary(c.Request.Context(), uint(campaignID))
	if err != nil {
		s.logger.WithError(err).Error("Failed to compute campaign summary")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute summary"})
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (s *Server) PostSession(c *gin.Context) {
	sess := s.sessions.Create()
	c.JSON(http.StatusCreated, gin.H{
		"session_id": sess.ID,
		"started_at": sess.StartedAt,
	})
}

func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"version":   "1.0.0",
	})
}

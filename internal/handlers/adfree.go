package handlers

import (
	"net/http"
	"strconv"
	"time"

	"ad-control-service/internal/ledger"
	"ad-control-service/internal/metrics"
	"ad-control-service/internal/models"

	"github.com/gin-gonic/gin"
)

// GetAdFreeBalance returns the user's ad-free time state. The ads-remaining
// figure is derived from the daily limit and per-ad credit, never a separate
// constant.
func (s *Server) GetAdFreeBalance(c *gin.Context) {
	userID := c.Param("userId")

	bal, err := s.ledger.GetBalance(c.Request.Context(), userID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to get balance")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "balance unknown, retry"})
		return
	}

	c.JSON(http.StatusOK, models.BalanceResponse{
		UserID:            userID,
		HoursBalance:      bal.HoursBalance,
		DailyEarnedHours:  bal.DailyEarnedHours,
		Active:            bal.HoursBalance.IsPositive(),
		AdsRemainingToday: ledger.AdsRemainingToday(bal.DailyEarnedHours),
		TotalEarnedHours:  bal.TotalEarnedHours,
	})
}

// PostAdFreeConsume spends ad-free time, clamped to the available balance.
func (s *Server) PostAdFreeConsume(c *gin.Context) {
	start := time.Now()
	defer func() {
		metrics.ResponseTime.WithLabelValues("POST", "/adfree/consume", strconv.Itoa(c.Writer.Status())).Observe(time.Since(start).Seconds())
	}()

	userID := c.Param("userId")

	var req models.ConsumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Hours.IsNegative() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "hours must not be negative"})
		return
	}

	result, err := s.ledger.Consume(c.Request.Context(), userID, req.Hours)
	if err != nil {
		s.logger.WithError(err).Error("Failed to consume ad-free hours")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "balance unknown, retry"})
		return
	}

	metrics.HoursConsumed.Add(result.Consumed.InexactFloat64())
	c.JSON(http.StatusOK, result)
}

// GetAdFreeHistory returns the user's recent ledger transactions.
func (s *Server) GetAdFreeHistory(c *gin.Context) {
	userID := c.Param("userId")

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit parameter"})
		return
	}

	txns, err := s.ledger.History(c.Request.Context(), userID, limit)
	if err != nil {
		s.logger.WithError(err).Error("Failed to load ledger history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transactions": txns,
		"meta": gin.H{
			"limit": limit,
			"count": len(txns),
		},
	})
}

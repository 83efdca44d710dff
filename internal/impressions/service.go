package impressions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ad-control-service/internal/metrics"
	"ad-control-service/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var ErrImpressionNotFound = errors.New("impression not found")

// Service records ad impressions and their engagement transitions. An
// impression row is the durable anchor for the rewarded-ad idempotency key,
// so creation is synchronous; event publishing is not.
type Service struct {
	db     *gorm.DB
	logger *logrus.Logger
	events *EventQueue
}

func NewService(db *gorm.DB, logger *logrus.Logger, events *EventQueue) *Service {
	return &Service{
		db:     db,
		logger: logger,
		events: events,
	}
}

// Create persists a new impression and emits an "impression" event.
func (s *Service) Create(ctx context.Context, imp models.AdImpression) (*models.AdImpression, error) {
	imp.ID = uuid.New().String()
	imp.CreatedAt = time.Now()

	if err := s.db.WithContext(ctx).Create(&imp).Error; err != nil {
		return nil, fmt.Errorf("failed to create impression: %w", err)
	}

	metrics.ImpressionsRecorded.WithLabelValues(imp.AdType).Inc()
	s.events.Enqueue(Event{
		ImpressionID: imp.ID,
		CampaignID:   imp.CampaignID,
		AdType:       imp.AdType,
		EventType:    "impression",
		Timestamp:    imp.CreatedAt,
	})

	return &imp, nil
}

// MarkClicked flips was_clicked. Repeated clicks are harmless.
func (s *Service) MarkClicked(ctx context.Context, impressionID string) error {
	var imp models.AdImpression
	err := s.db.WithContext(ctx).First(&imp, "id = ?", impressionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrImpressionNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load impression: %w", err)
	}

	res := s.db.WithContext(ctx).Model(&models.AdImpression{}).
		Where("id = ?", impressionID).
		Update("was_clicked", true)
	if res.Error != nil {
		return fmt.Errorf("failed to mark impression clicked: %w", res.Error)
	}

	s.events.Enqueue(Event{
		ImpressionID: imp.ID,
		CampaignID:   imp.CampaignID,
		AdType:       imp.AdType,
		EventType:    "click",
		Timestamp:    time.Now(),
	})
	return nil
}

// MarkCompleted sets was_completed at most once. The first return value is
// the impression; the second reports whether this call was the one that
// completed it. Only that first completion authorizes a ledger credit.
func (s *Service) MarkCompleted(ctx context.Context, impressionID string) (*models.AdImpression, bool, error) {
	var imp models.AdImpression
	err := s.db.WithContext(ctx).First(&imp, "id = ?", impressionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, ErrImpressionNotFound
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load impression: %w", err)
	}

	res := s.db.WithContext(ctx).Model(&models.AdImpression{}).
		Where("id = ? AND was_completed = ?", impressionID, false).
		Update("was_completed", true)
	if res.Error != nil {
		return nil, false, fmt.Errorf("failed to mark impression completed: %w", res.Error)
	}

	first := res.RowsAffected > 0
	imp.WasCompleted = true

	if first {
		s.events.Enqueue(Event{
			ImpressionID: imp.ID,
			CampaignID:   imp.CampaignID,
			AdType:       imp.AdType,
			EventType:    "complete",
			Timestamp:    time.Now(),
		})
	} else {
		s.logger.WithField("impression_id", impressionID).Debug("Duplicate completion event ignored")
	}

	return &imp, first, nil
}

// CampaignSummary aggregates engagement counts for one campaign.
func (s *Service) CampaignSummary(ctx context.Context, campaignID uint) (*models.CampaignSummary, error) {
	summary := &models.CampaignSummary{CampaignID: campaignID}

	base := func() *gorm.DB {
		return s.db.WithContext(ctx).Model(&models.AdImpression{}).Where("campaign_id = ?", campaignID)
	}

	if err := base().Count(&summary.Impressions).Error; err != nil {
		return nil, fmt.Errorf("failed to count impressions: %w", err)
	}
	if err := base().Where("was_clicked = ?", true).Count(&summary.Clicks).Error; err != nil {
		return nil, fmt.Errorf("failed to count clicks: %w", err)
	}
	if err := base().Where("was_completed = ?", true).Count(&summary.Completions).Error; err != nil {
		return nil, fmt.Errorf("failed to count completions: %w", err)
	}

	if summary.Impressions > 0 {
		summary.CTR = float64(summary.Clicks) / float64(summary.Impressions) * 100
		summary.CompletionRate = float64(summary.Completions) / float64(summary.Impressions) * 100
	}

	s.logger.WithFields(logrus.Fields{
		"campaign_id": campaignID,
		"impressions": summary.Impressions,
		"clicks":      summary.Clicks,
		"completions": summary.Completions,
	}).Debug("Computed campaign summary")

	return summary, nil
}

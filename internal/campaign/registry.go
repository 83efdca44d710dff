package campaign

import (
	"context"
	"fmt"
	"math/rand"

	"ad-control-service/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Registry reads the campaign inventory. Campaigns are created and retired
// by the admin process; this service never writes them.
type Registry struct {
	db     *gorm.DB
	logger *logrus.Logger
	randFn func(n int) int
}

func NewRegistry(db *gorm.DB, logger *logrus.Logger) *Registry {
	return &Registry{
		db:     db,
		logger: logger,
		randFn: rand.Intn,
	}
}

// ActiveCampaigns returns active campaigns for the given ad type and
// platform. Campaigns with an exhausted budget are excluded the same way
// inactive ones are, never surfaced as an error.
func (r *Registry) ActiveCampaigns(ctx context.Context, adType, platform string) ([]models.AdCampaign, error) {
	var campaigns []models.AdCampaign
	query := r.db.WithContext(ctx).
		Where("active = ? AND ad_type = ?", true, adType)
	if platform != "" {
		query = query.Where("platform = ?", platform)
	}
	if err := query.Find(&campaigns).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch campaigns: %w", err)
	}

	filtered := campaigns[:0]
	for _, c := range campaigns {
		if c.Budget.IsPositive() && c.Spent.GreaterThanOrEqual(c.Budget) {
			continue
		}
		filtered = append(filtered, c)
	}

	r.logger.WithFields(logrus.Fields{
		"ad_type":  adType,
		"platform": platform,
		"count":    len(filtered),
	}).Debug("Fetched active campaigns")

	return filtered, nil
}

// SelectOne picks uniformly at random. nil means no inventory, which callers
// treat as a normal outcome.
func (r *Registry) SelectOne(campaigns []models.AdCampaign) *models.AdCampaign {
	if len(campaigns) == 0 {
		return nil
	}
	picked := campaigns[r.randFn(len(campaigns))]
	return &picked
}

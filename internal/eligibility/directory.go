package eligibility

import (
	"context"
	"errors"
	"fmt"

	"ad-control-service/internal/models"

	"gorm.io/gorm"
)

// ProfileDirectory answers subscription/org-tier lookups from the
// user_profiles table maintained by the account service. Unknown users get
// the zero-value answer: not premium, not an organization.
type ProfileDirectory struct {
	db *gorm.DB
}

func NewProfileDirectory(db *gorm.DB) *ProfileDirectory {
	return &ProfileDirectory{db: db}
}

func (d *ProfileDirectory) IsPremiumSubscriber(ctx context.Context, userID string) (bool, error) {
	profile, err := d.load(ctx, userID)
	if err != nil {
		return false, err
	}
	return profile.IsPremium, nil
}

func (d *ProfileDirectory) IsOrganizationAccount(ctx context.Context, userID string) (bool, error) {
	profile, err := d.load(ctx, userID)
	if err != nil {
		return false, err
	}
	return profile.IsOrganization, nil
}

func (d *ProfileDirectory) load(ctx context.Context, userID string) (*models.UserProfile, error) {
	var profile models.UserProfile
	err := d.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.UserProfile{UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user profile: %w", err)
	}
	return &profile, nil
}

package database

import (
	"time"

	"ad-control-service/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func SetupDatabase(databaseURL string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

// Migrate is shared with the sqlite-backed test databases.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.AdCampaign{},
		&models.AdImpression{},
		&models.AdFreeBalance{},
		&models.AdFreeTransaction{},
		&models.UserProfile{},
	)
}

func SeedDatabase(db *gorm.DB) error {
	// Campaigns are owned by the admin process; seeding is for dev setups only.
	var count int64
	db.Model(&models.AdCampaign{}).Count(&count)
	if count > 0 {
		return nil
	}

	sampleCampaigns := []models.AdCampaign{
		{
			Name:     "Spring Launch Banner",
			AdType:   models.AdTypeBanner,
			Platform: "ios",
			Active:   true,
		},
		{
			Name:     "Spring Launch Banner",
			AdType:   models.AdTypeBanner,
			Platform: "android",
			Active:   true,
		},
		{
			Name:     "Weekend Events Interstitial",
			AdType:   models.AdTypeInterstitial,
			Platform: "ios",
			Active:   true,
		},
		{
			Name:     "Weekend Events Interstitial",
			AdType:   models.AdTypeInterstitial,
			Platform: "android",
			Active:   true,
		},
		{
			Name:     "Earn Ad-Free Time",
			AdType:   models.AdTypeRewarded,
			Platform: "ios",
			Active:   true,
		},
		{
			Name:     "Earn Ad-Free Time",
			AdType:   models.AdTypeRewarded,
			Platform: "android",
			Active:   true,
		},
	}

	return db.Create(&sampleCampaigns).Error
}

package campaign

import (
	"context"
	"fmt"
	"io"
	"testing"

	"ad-control-service/internal/database"
	"ad-control-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func setupTestRegistry(t *testing.T) *Registry {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("Failed to migrate test schema: %v", err)
	}

	log := logrus.New()
	log.SetOutput(io.Discard)

	return NewRegistry(db, log)
}

func TestActiveCampaignsFiltersInactiveAndExhausted(t *testing.T) {
	r := setupTestRegistry(t)
	ctx := context.Background()

	campaigns := []models.AdCampaign{
		{Name: "live", AdType: models.AdTypeBanner, Platform: "ios", Active: true},
		{Name: "retired", AdType: models.AdTypeBanner, Platform: "ios", Active: false},
		{Name: "wrong-platform", AdType: models.AdTypeBanner, Platform: "android", Active: true},
		{Name: "wrong-type", AdType: models.AdTypeRewarded, Platform: "ios", Active: true},
		{
			Name: "exhausted", AdType: models.AdTypeBanner, Platform: "ios", Active: true,
			Budget: decimal.NewFromInt(100), Spent: decimal.NewFromInt(100),
		},
		{
			Name: "under-budget", AdType: models.AdTypeBanner, Platform: "ios", Active: true,
			Budget: decimal.NewFromInt(100), Spent: decimal.NewFromInt(40),
		},
	}
	if err := r.db.Create(&campaigns).Error; err != nil {
		t.Fatalf("Failed to insert campaigns: %v", err)
	}

	got, err := r.ActiveCampaigns(ctx, models.AdTypeBanner, "ios")
	if err != nil {
		t.Fatalf("ActiveCampaigns failed: %v", err)
	}

	names := map[string]bool{}
	for _, c := range got {
		names[c.Name] = true
	}
	if len(got) != 2 || !names["live"] || !names["under-budget"] {
		t.Errorf("Expected [live under-budget], got %v", names)
	}
}

func TestSelectOneEmptyIsNotAnError(t *testing.T) {
	r := setupTestRegistry(t)

	if picked := r.SelectOne(nil); picked != nil {
		t.Errorf("Expected nil for empty inventory, got %v", picked)
	}
}

func TestSelectOneUniform(t *testing.T) {
	r := setupTestRegistry(t)
	campaigns := []models.AdCampaign{{ID: 1}, {ID: 2}, {ID: 3}}

	// Deterministic pick via injected rand.
	r.randFn = func(n int) int { return 2 }
	picked := r.SelectOne(campaigns)
	if picked == nil || picked.ID != 3 {
		t.Errorf("Expected campaign 3, got %v", picked)
	}
}

func TestFatigueFilterCapsRepeats(t *testing.T) {
	f := NewFatigueState()
	campaigns := []models.AdCampaign{{ID: 1}, {ID: 2}}

	for i := 0; i < MaxCampaignRepeats; i++ {
		if got := f.Filter(campaigns); len(got) != 2 {
			t.Fatalf("Show %d: expected 2 fresh campaigns, got %d", i, len(got))
		}
		f.RecordShown(1)
	}

	got := f.Filter(campaigns)
	if len(got) != 1 || got[0].ID != 2 {
		t.Errorf("Expected only campaign 2 after fatigue cap, got %v", got)
	}
}

func TestFatigueResetAllowsRepeats(t *testing.T) {
	f := NewFatigueState()
	campaigns := []models.AdCampaign{{ID: 1}}

	for i := 0; i < MaxCampaignRepeats; i++ {
		f.RecordShown(1)
	}
	if got := f.Filter(campaigns); len(got) != 0 {
		t.Fatalf("Expected fatigued campaign filtered, got %v", got)
	}

	f.Reset()
	if got := f.Filter(campaigns); len(got) != 1 {
		t.Errorf("Expected fresh counters after reset, got %v", got)
	}
}

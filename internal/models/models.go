package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ad surface / campaign types.
const (
	AdTypeBanner       = "banner"
	AdTypeInterstitial = "interstitial"
	AdTypeRewarded     = "rewarded"
)

// Ledger transaction types.
const (
	TxTypeEarn   = "earn"
	TxTypeSpend  = "spend"
	TxTypeExpire = "expire"
)

// AdCampaign is created and retired by an external admin process; this
// service only reads it.
type AdCampaign struct {
	ID        uint            `json:"id" gorm:"primaryKey"`
	Name      string          `json:"name"`
	AdType    string          `json:"ad_type" gorm:"not null;index"`
	Platform  string          `json:"platform" gorm:"not null;index"`
	Active    bool            `json:"active" gorm:"default:true"`
	Budget    decimal.Decimal `json:"budget" gorm:"type:numeric"`
	Spent     decimal.Decimal `json:"spent" gorm:"type:numeric"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type AdImpression struct {
	ID           string    `json:"id" gorm:"primaryKey;size:36"`
	CampaignID   uint      `json:"campaign_id" gorm:"not null;index"`
	UserID       *string   `json:"user_id,omitempty" gorm:"size:36;index"`
	AdType       string    `json:"ad_type" gorm:"not null"`
	Platform     string    `json:"platform"`
	SessionID    string    `json:"session_id" gorm:"size:36;index"`
	WasClicked   bool      `json:"was_clicked" gorm:"default:false"`
	WasCompleted bool      `json:"was_completed" gorm:"default:false"`
	CreatedAt    time.Time `json:"created_at" gorm:"index"`
}

// AdFreeBalance holds the per-user ad-free time balance. hours_balance is
// never negative and daily_earned_hours never exceeds the daily limit.
// Version guards concurrent writers (optimistic locking).
type AdFreeBalance struct {
	UserID           string          `json:"user_id" gorm:"primaryKey;size:36"`
	HoursBalance     decimal.Decimal `json:"hours_balance" gorm:"type:numeric"`
	DailyEarnedHours decimal.Decimal `json:"daily_earned_hours" gorm:"type:numeric"`
	LastResetDate    string          `json:"last_reset_date" gorm:"size:10"`
	TotalEarnedHours decimal.Decimal `json:"total_earned_hours" gorm:"type:numeric"`
	Version          int64           `json:"-" gorm:"default:1"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// AdFreeTransaction is append-only: rows are never updated or deleted, and
// the signed sum over a user's rows must equal that user's balance.
type AdFreeTransaction struct {
	ID             uint            `json:"id" gorm:"primaryKey"`
	UserID         string          `json:"user_id" gorm:"not null;index;size:36"`
	Type           string          `json:"type" gorm:"not null"`
	HoursAmount    decimal.Decimal `json:"hours_amount" gorm:"type:numeric"`
	Source         string          `json:"source"`
	IdempotencyKey *string         `json:"idempotency_key,omitempty" gorm:"uniqueIndex;size:64"`
	CreatedAt      time.Time       `json:"created_at"`
}

// UserProfile backs the subscription/org-tier collaborator. Maintained by
// the account service; read-only here.
type UserProfile struct {
	UserID         string    `json:"user_id" gorm:"primaryKey;size:36"`
	IsPremium      bool      `json:"is_premium" gorm:"default:false"`
	IsOrganization bool      `json:"is_organization" gorm:"default:false"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type DecisionRequest struct {
	Surface   string `form:"surface" binding:"required"`
	Platform  string `form:"platform"`
	SessionID string `form:"session_id" binding:"required"`
	UserID    string `form:"user_id"`
}

type DecisionResponse struct {
	Show         bool        `json:"show"`
	Reason       string      `json:"reason"`
	Campaign     *AdCampaign `json:"campaign,omitempty"`
	ImpressionID string      `json:"impression_id,omitempty"`
}

type ConsumeRequest struct {
	Hours decimal.Decimal `json:"hours" binding:"required"`
}

type BalanceResponse struct {
	UserID            string          `json:"user_id"`
	HoursBalance      decimal.Decimal `json:"hours_balance"`
	DailyEarnedHours  decimal.Decimal `json:"daily_earned_hours"`
	Active            bool            `json:"active"`
	AdsRemainingToday int64           `json:"ads_remaining_today"`
	TotalEarnedHours  decimal.Decimal `json:"total_earned_hours"`
}

type CampaignSummary struct {
	CampaignID     uint    `json:"campaign_id"`
	Impressions    int64   `json:"impressions"`
	Clicks         int64   `json:"clicks"`
	Completions    int64   `json:"completions"`
	CTR            float64 `json:"ctr"`
	CompletionRate float64 `json:"completion_rate"`
}

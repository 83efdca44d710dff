package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ad-control-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	// DailyLimitHours caps how much ad-free time a user can earn per calendar day.
	DailyLimitHours = decimal.NewFromFloat(2.0)

	// RewardedAdHours is credited for one completed rewarded ad (~10 minutes).
	RewardedAdHours = decimal.NewFromFloat(0.167)
)

// RewardedAdsPerDay is the effective number of full rewarded-ad credits that
// fit under the daily limit: floor(2.0 / 0.167) = 11. UI figures must be
// derived from this, not hard-coded.
func RewardedAdsPerDay() int64 {
	return DailyLimitHours.Div(RewardedAdHours).IntPart()
}

// AdsRemainingToday derives the "ads remaining today" figure from a user's
// daily earned hours.
func AdsRemainingToday(dailyEarned decimal.Decimal) int64 {
	remaining := RewardedAdsPerDay() - dailyEarned.Div(RewardedAdHours).IntPart()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// errStaleVersion signals an optimistic-lock conflict; the operation is
// retried against the fresh row.
var errStaleVersion = errors.New("ledger: stale balance version")

const maxRetries = 3

// Ledger owns the per-user ad-free time balance and its append-only
// transaction history. All mutations run as single database transactions.
type Ledger struct {
	db     *gorm.DB
	logger *logrus.Logger
	now    func() time.Time
}

func NewLedger(db *gorm.DB, logger *logrus.Logger) *Ledger {
	return &Ledger{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// CreditResult reports the outcome of a Credit call. LimitReached and
// Duplicate are normal outcomes, not errors.
type CreditResult struct {
	Applied      decimal.Decimal `json:"applied"`
	NewBalance   decimal.Decimal `json:"new_balance"`
	LimitReached bool            `json:"limit_reached"`
	Duplicate    bool            `json:"duplicate"`
}

// ConsumeResult reports how much was actually consumed, which may be less
// than requested.
type ConsumeResult struct {
	Consumed   decimal.Decimal `json:"consumed"`
	NewBalance decimal.Decimal `json:"new_balance"`
}

// GetBalance returns the user's balance, applying the lazy daily reset if
// the stored reset date is stale. Users without a ledger row have a zero
// balance.
func (l *Ledger) GetBalance(ctx context.Context, userID string) (*models.AdFreeBalance, error) {
	for attempt := 0; attempt < maxRetries; attempt++ {
		var bal models.AdFreeBalance
		err := l.db.WithContext(ctx).Where("user_id = ?", userID).First(&bal).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return l.emptyBalance(userID), nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get balance: %w", err)
		}

		today := l.today()
		if bal.LastResetDate == today {
			return &bal, nil
		}

		// Persist the daily reset so it happens exactly once per date advance.
		res := l.db.WithContext(ctx).Model(&models.AdFreeBalance{}).
			Where("user_id = ? AND version = ?", userID, bal.Version).
			Updates(map[string]interface{}{
				"daily_earned_hours": decimal.Zero,
				"last_reset_date":    today,
				"version":            bal.Version + 1,
			})
		if res.Error != nil {
			return nil, fmt.Errorf("failed to apply daily reset: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			// Lost the race to a concurrent writer; re-read.
			continue
		}

		bal.DailyEarnedHours = decimal.Zero
		bal.LastResetDate = today
		bal.Version++
		return &bal, nil
	}
	return nil, fmt.Errorf("failed to apply daily reset for user %s after %d attempts", userID, maxRetries)
}

// IsActive reports whether the user currently has ad-free time available.
func (l *Ledger) IsActive(ctx context.Context, userID string) (bool, error) {
	bal, err := l.GetBalance(ctx, userID)
	if err != nil {
		return false, err
	}
	return bal.HoursBalance.IsPositive(), nil
}

// Credit atomically adds earned hours, clamped to the remaining daily
// allowance. The idempotency key (the impression id) is checked and recorded
// in the same transaction, so a retried completion event credits exactly
// once; the duplicate call returns the previously recorded result.
func (l *Ledger) Credit(ctx context.Context, userID string, hours decimal.Decimal, source, idempotencyKey string) (*CreditResult, error) {
	if !hours.IsPositive() {
		return nil, fmt.Errorf("credit amount must be positive, got %s", hours)
	}

	var result *CreditResult
	err := l.withRetry(func() error {
		return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if idempotencyKey != "" {
				prior, err := l.findPrior(tx, idempotencyKey)
				if err != nil {
					return err
				}
				if prior != nil {
					bal, err := l.balanceForUpdate(tx, userID)
					if err != nil {
						return err
					}
					result = &CreditResult{
						Applied:    prior.HoursAmount,
						NewBalance: bal.HoursBalance,
						Duplicate:  true,
					}
					return nil
				}
			}

			bal, err := l.balanceForUpdate(tx, userID)
			if err != nil {
				return err
			}
			l.applyLazyReset(bal)

			allowed := decimal.Min(hours, DailyLimitHours.Sub(bal.DailyEarnedHours))
			if !allowed.IsPositive() {
				result = &CreditResult{
					Applied:      decimal.Zero,
					NewBalance:   bal.HoursBalance,
					LimitReached: true,
				}
				return nil
			}

			newBalance := bal.HoursBalance.Add(allowed)
			res := tx.Model(&models.AdFreeBalance{}).
				Where("user_id = ? AND version = ?", userID, bal.Version).
				Updates(map[string]interface{}{
					"hours_balance":      newBalance,
					"daily_earned_hours": bal.DailyEarnedHours.Add(allowed),
					"last_reset_date":    bal.LastResetDate,
					"total_earned_hours": bal.TotalEarnedHours.Add(allowed),
					"version":            bal.Version + 1,
				})
			if res.Error != nil {
				return fmt.Errorf("failed to update balance: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				return errStaleVersion
			}

			txn := models.AdFreeTransaction{
				UserID:      userID,
				Type:        models.TxTypeEarn,
				HoursAmount: allowed,
				Source:      source,
				CreatedAt:   l.now(),
			}
			if idempotencyKey != "" {
				txn.IdempotencyKey = &idempotencyKey
			}
			if err := tx.Create(&txn).Error; err != nil {
				return fmt.Errorf("failed to record earn transaction: %w", err)
			}

			result = &CreditResult{Applied: allowed, NewBalance: newBalance}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	l.logger.WithFields(logrus.Fields{
		"user_id":       userID,
		"applied":       result.Applied.String(),
		"new_balance":   result.NewBalance.String(),
		"limit_reached": result.LimitReached,
		"duplicate":     result.Duplicate,
		"source":        source,
	}).Info("Credited ad-free hours")

	return result, nil
}

// Consume atomically spends up to the requested hours, never driving the
// balance below zero. A spend transaction is recorded only for the amount
// actually consumed.
func (l *Ledger) Consume(ctx context.Context, userID string, hours decimal.Decimal) (*ConsumeResult, error) {
	if hours.IsNegative() {
		return nil, fmt.Errorf("consume amount must not be negative, got %s", hours)
	}

	var result *ConsumeResult
	err := l.withRetry(func() error {
		return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			bal, err := l.balanceForUpdate(tx, userID)
			if err != nil {
				return err
			}
			l.applyLazyReset(bal)

			consumed := decimal.Min(hours, bal.HoursBalance)
			if !consumed.IsPositive() {
				result = &ConsumeResult{Consumed: decimal.Zero, NewBalance: bal.HoursBalance}
				return nil
			}

			newBalance := bal.HoursBalance.Sub(consumed)
			res := tx.Model(&models.AdFreeBalance{}).
				Where("user_id = ? AND version = ?", userID, bal.Version).
				Updates(map[string]interface{}{
					"hours_balance":      newBalance,
					"daily_earned_hours": bal.DailyEarnedHours,
					"last_reset_date":    bal.LastResetDate,
					"version":            bal.Version + 1,
				})
			if res.Error != nil {
				return fmt.Errorf("failed to update balance: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				return errStaleVersion
			}

			txn := models.AdFreeTransaction{
				UserID:      userID,
				Type:        models.TxTypeSpend,
				HoursAmount: consumed,
				Source:      "consume",
				CreatedAt:   l.now(),
			}
			if err := tx.Create(&txn).Error; err != nil {
				return fmt.Errorf("failed to record spend transaction: %w", err)
			}

			result = &ConsumeResult{Consumed: consumed, NewBalance: newBalance}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	l.logger.WithFields(logrus.Fields{
		"user_id":     userID,
		"consumed":    result.Consumed.String(),
		"new_balance": result.NewBalance.String(),
	}).Info("Consumed ad-free hours")

	return result, nil
}

// History returns the most recent ledger transactions for audit.
func (l *Ledger) History(ctx context.Context, userID string, limit int) ([]models.AdFreeTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	var txns []models.AdFreeTransaction
	err := l.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&txns).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction history: %w", err)
	}
	return txns, nil
}

// Reconcile verifies that the balance equals the signed sum of all recorded
// transactions (earn positive, spend and expire negative).
func (l *Ledger) Reconcile(ctx context.Context, userID string) error {
	var txns []models.AdFreeTransaction
	if err := l.db.WithContext(ctx).Where("user_id = ?", userID).Find(&txns).Error; err != nil {
		return fmt.Errorf("failed to load transactions: %w", err)
	}

	calculated := decimal.Zero
	for _, txn := range txns {
		switch txn.Type {
		case models.TxTypeEarn:
			calculated = calculated.Add(txn.HoursAmount)
		case models.TxTypeSpend, models.TxTypeExpire:
			calculated = calculated.Sub(txn.HoursAmount)
		default:
			return fmt.Errorf("unknown transaction type %q", txn.Type)
		}
	}

	var bal models.AdFreeBalance
	err := l.db.WithContext(ctx).Where("user_id = ?", userID).First(&bal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		bal.HoursBalance = decimal.Zero
	} else if err != nil {
		return fmt.Errorf("failed to load balance: %w", err)
	}

	if !bal.HoursBalance.Equal(calculated) {
		l.logger.WithFields(logrus.Fields{
			"user_id":    userID,
			"balance":    bal.HoursBalance.String(),
			"calculated": calculated.String(),
		}).Error("Balance reconciliation failed")
		return fmt.Errorf("balance mismatch: stored=%s, calculated=%s", bal.HoursBalance, calculated)
	}
	return nil
}

func (l *Ledger) withRetry(op func() error) error {
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		err = op()
		if !errors.Is(err, errStaleVersion) {
			return err
		}
	}
	return err
}

func (l *Ledger) findPrior(tx *gorm.DB, idempotencyKey string) (*models.AdFreeTransaction, error) {
	var prior models.AdFreeTransaction
	err := tx.Where("idempotency_key = ?", idempotencyKey).First(&prior).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check idempotency key: %w", err)
	}
	return &prior, nil
}

// balanceForUpdate loads the balance row inside the transaction, creating a
// zero row for first-time users.
func (l *Ledger) balanceForUpdate(tx *gorm.DB, userID string) (*models.AdFreeBalance, error) {
	var bal models.AdFreeBalance
	err := tx.Where("user_id = ?", userID).First(&bal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		bal = *l.emptyBalance(userID)
		if err := tx.Create(&bal).Error; err != nil {
			return nil, fmt.Errorf("failed to create balance row: %w", err)
		}
		return &bal, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load balance: %w", err)
	}
	return &bal, nil
}

// applyLazyReset zeroes the daily counter in memory when the calendar date
// has advanced; the new values are written by the caller's guarded update.
func (l *Ledger) applyLazyReset(bal *models.AdFreeBalance) {
	today := l.today()
	if bal.LastResetDate != today {
		bal.DailyEarnedHours = decimal.Zero
		bal.LastResetDate = today
	}
}

func (l *Ledger) emptyBalance(userID string) *models.AdFreeBalance {
	return &models.AdFreeBalance{
		UserID:           userID,
		HoursBalance:     decimal.Zero,
		DailyEarnedHours: decimal.Zero,
		LastResetDate:    l.today(),
		TotalEarnedHours: decimal.Zero,
		Version:          1,
	}
}

func (l *Ledger) today() string {
	return l.now().UTC().Format("2006-01-02")
}

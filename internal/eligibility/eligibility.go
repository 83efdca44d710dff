package eligibility

import (
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// AccountDirectory exposes the subscription/org-tier signals. Read-only;
// results are fetched fresh per eligibility check.
type AccountDirectory interface {
	IsPremiumSubscriber(ctx context.Context, userID string) (bool, error)
	IsOrganizationAccount(ctx context.Context, userID string) (bool, error)
}

// BalanceChecker is the slice of the ledger the resolver needs.
type BalanceChecker interface {
	IsActive(ctx context.Context, userID string) (bool, error)
}

// Resolver is the single decision point for whether any ad surface may show
// an ad to a user. No surface re-implements this check.
type Resolver struct {
	accounts AccountDirectory
	balances BalanceChecker
	logger   *logrus.Logger
}

func NewResolver(accounts AccountDirectory, balances BalanceChecker, logger *logrus.Logger) *Resolver {
	return &Resolver{
		accounts: accounts,
		balances: balances,
		logger:   logger,
	}
}

// MayShowAd merges the three suppression signals. Unauthenticated callers
// always see ads. A fetch failure propagates as an error: ad state is then
// unknown and the caller retries rather than assuming allow or deny.
func (r *Resolver) MayShowAd(ctx context.Context, userID, surface string) (bool, error) {
	if userID == "" {
		return true, nil
	}

	var premium, organization, adFree bool

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		premium, err = r.accounts.IsPremiumSubscriber(ctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		organization, err = r.accounts.IsOrganizationAccount(ctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		adFree, err = r.balances.IsActive(ctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		r.logger.WithError(err).WithField("user_id", userID).Warn("Eligibility signals unavailable")
		return false, err
	}

	allowed := !premium && !organization && !adFree

	r.logger.WithFields(logrus.Fields{
		"user_id":      userID,
		"surface":      surface,
		"premium":      premium,
		"organization": organization,
		"ad_free":      adFree,
		"allowed":      allowed,
	}).Debug("Resolved ad eligibility")

	return allowed, nil
}

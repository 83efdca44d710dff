package eligibility

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
)

type stubSignals struct {
	premium      bool
	organization bool
	adFree       bool
	err          error
}

func (s *stubSignals) IsPremiumSubscriber(ctx context.Context, userID string) (bool, error) {
	return s.premium, s.err
}

func (s *stubSignals) IsOrganizationAccount(ctx context.Context, userID string) (bool, error) {
	return s.organization, s.err
}

func (s *stubSignals) IsActive(ctx context.Context, userID string) (bool, error) {
	return s.adFree, s.err
}

func newTestResolver(s *stubSignals) *Resolver {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewResolver(s, s, log)
}

func TestUnauthenticatedAlwaysAllowed(t *testing.T) {
	// Even with every suppression signal set, no user id means no
	// personalization data and ads are allowed.
	r := newTestResolver(&stubSignals{premium: true, organization: true, adFree: true})

	allowed, err := r.MayShowAd(context.Background(), "", "banner")
	if err != nil {
		t.Fatalf("MayShowAd failed: %v", err)
	}
	if !allowed {
		t.Error("Expected unauthenticated caller to be allowed")
	}
}

func TestAnySignalSuppresses(t *testing.T) {
	cases := []struct {
		name    string
		signals stubSignals
		allowed bool
	}{
		{"no signals", stubSignals{}, true},
		{"premium", stubSignals{premium: true}, false},
		{"organization", stubSignals{organization: true}, false},
		{"ad-free balance", stubSignals{adFree: true}, false},
		{"all", stubSignals{premium: true, organization: true, adFree: true}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestResolver(&tc.signals)
			allowed, err := r.MayShowAd(context.Background(), "user1", "interstitial")
			if err != nil {
				t.Fatalf("MayShowAd failed: %v", err)
			}
			if allowed != tc.allowed {
				t.Errorf("Expected allowed=%v, got %v", tc.allowed, allowed)
			}
		})
	}
}

func TestVerdictConsistentAcrossSurfaces(t *testing.T) {
	r := newTestResolver(&stubSignals{premium: true})

	for _, surface := range []string{"banner", "interstitial", "rewarded"} {
		allowed, err := r.MayShowAd(context.Background(), "user1", surface)
		if err != nil {
			t.Fatalf("MayShowAd(%s) failed: %v", surface, err)
		}
		if allowed {
			t.Errorf("Surface %s got a different verdict", surface)
		}
	}
}

func TestSignalFailureIsAnError(t *testing.T) {
	r := newTestResolver(&stubSignals{err: errors.New("store unavailable")})

	_, err := r.MayShowAd(context.Background(), "user1", "banner")
	if err == nil {
		t.Fatal("Expected error when signals are unavailable, not a silent verdict")
	}
}

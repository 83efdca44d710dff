package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ad-control-service/internal/database"
	"ad-control-service/internal/ledger"
	"ad-control-service/internal/models"
	"ad-control-service/internal/pacing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func setupTestServer(t *testing.T) (*Server, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

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

	campaigns := []models.AdCampaign{
		{Name: "banner-a", AdType: models.AdTypeBanner, Platform: "ios", Active: true},
		{Name: "rewarded-a", AdType: models.AdTypeRewarded, Platform: "ios", Active: true},
		{Name: "interstitial-a", AdType: models.AdTypeInterstitial, Platform: "ios", Active: true},
	}
	if err := db.Create(&campaigns).Error; err != nil {
		t.Fatalf("Failed to seed campaigns: %v", err)
	}

	log := logrus.New()
	log.SetOutput(io.Discard)

	server := NewServer(db, log, nil)

	r := gin.New()
	api := r.Group("/api/v1")
	{
		api.GET("/ads/decision", server.GetAdDecision)
		api.POST("/impressions/:id/click", server.PostImpressionClick)
		api.POST("/impressions/:id/complete", server.PostImpressionComplete)
		api.GET("/campaigns/:id/summary", server.GetCampaignSummary)
		api.POST("/sessions", server.PostSession)
		api.GET("/users/:userId/adfree", server.GetAdFreeBalance)
		api.POST("/users/:userId/adfree/consume", server.PostAdFreeConsume)
		api.GET("/users/:userId/adfree/history", server.GetAdFreeHistory)
	}

	return server, r
}

func doRequest(t *testing.T, r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeDecision(t *testing.T, w *httptest.ResponseRecorder) models.DecisionResponse {
	t.Helper()
	var resp models.DecisionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode decision: %v (body %s)", err, w.Body.String())
	}
	return resp
}

func TestDecisionShowsBannerToFreshUser(t *testing.T) {
	_, r := setupTestServer(t)

	w := doRequest(t, r, "GET", "/api/v1/ads/decision?surface=banner&platform=ios&session_id=s1&user_id=user1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	resp := decodeDecision(t, w)
	if !resp.Show || resp.Reason != OutcomeShown {
		t.Fatalf("Expected shown decision, got %+v", resp)
	}
	if resp.Campaign == nil || resp.ImpressionID == "" {
		t.Fatalf("Expected campaign and impression id, got %+v", resp)
	}
}

func TestDecisionSuppressedForPremium(t *testing.T) {
	server, r := setupTestServer(t)

	profile := models.UserProfile{UserID: "prem1", IsPremium: true}
	if err := server.db.Create(&profile).Error; err != nil {
		t.Fatalf("Failed to insert profile: %v", err)
	}

	// Same verdict on every surface, including the rewarded-earn one.
	for _, surface := range []string{"banner", "interstitial", "rewarded"} {
		w := doRequest(t, r, "GET", "/api/v1/ads/decision?surface="+surface+"&platform=ios&session_id=s1&user_id=prem1", "")
		resp := decodeDecision(t, w)
		if resp.Show || resp.Reason != OutcomePolicyDenied {
			t.Errorf("Surface %s: expected policy_denied, got %+v", surface, resp)
		}
	}
}

func TestDecisionSuppressedWithAdFreeBalance(t *testing.T) {
	server, r := setupTestServer(t)

	_, err := server.ledger.Credit(context.Background(), "user1", ledger.RewardedAdHours, "bonus", "seed-1")
	if err != nil {
		t.Fatalf("Credit failed: %v", err)
	}

	w := doRequest(t, r, "GET", "/api/v1/ads/decision?surface=banner&platform=ios&session_id=s1&user_id=user1", "")
	resp := decodeDecision(t, w)
	if resp.Show || resp.Reason != OutcomePolicyDenied {
		t.Errorf("Expected policy_denied for ad-free user, got %+v", resp)
	}
}

func TestDecisionNoCampaignIsNotAnError(t *testing.T) {
	_, r := setupTestServer(t)

	w := doRequest(t, r, "GET", "/api/v1/ads/decision?surface=banner&platform=web&session_id=s1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 for empty inventory, got %d", w.Code)
	}
	resp := decodeDecision(t, w)
	if resp.Show || resp.Reason != OutcomeNoCampaign {
		t.Errorf("Expected no_campaign, got %+v", resp)
	}
}

func TestRewardedCompletionCreditsOnce(t *testing.T) {
	_, r := setupTestServer(t)

	w := doRequest(t, r, "GET", "/api/v1/ads/decision?surface=rewarded&platform=ios&session_id=s1&user_id=user1", "")
	resp := decodeDecision(t, w)
	if !resp.Show {
		t.Fatalf("Expected rewarded ad for eligible user, got %+v", resp)
	}

	complete := func() map[string]json.RawMessage {
		w := doRequest(t, r, "POST", "/api/v1/impressions/"+resp.ImpressionID+"/complete", "")
		if w.Code != http.StatusOK {
			t.Fatalf("Completion failed with %d: %s", w.Code, w.Body.String())
		}
		var body map[string]json.RawMessage
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("Failed to decode completion response: %v", err)
		}
		return body
	}

	first := complete()
	var credit ledger.CreditResult
	if err := json.Unmarshal(first["credit"], &credit); err != nil {
		t.Fatalf("Missing credit in completion response: %v", err)
	}
	if !credit.Applied.Equal(ledger.RewardedAdHours) {
		t.Errorf("Expected credit %s, got %s", ledger.RewardedAdHours, credit.Applied)
	}

	// A duplicated completion callback must not credit again.
	second := complete()
	if err := json.Unmarshal(second["credit"], &credit); err != nil {
		t.Fatalf("Missing credit in duplicate completion response: %v", err)
	}
	if !credit.Duplicate {
		t.Error("Expected duplicate flag on retried completion")
	}

	w = doRequest(t, r, "GET", "/api/v1/users/user1/adfree", "")
	var bal models.BalanceResponse
	if err := json.Unmarshal(w.Body.Bytes(), &bal); err != nil {
		t.Fatalf("Failed to decode balance: %v", err)
	}
	if !bal.HoursBalance.Equal(ledger.RewardedAdHours) {
		t.Errorf("Expected balance %s after one completion, got %s", ledger.RewardedAdHours, bal.HoursBalance)
	}
	if !bal.Active {
		t.Error("Expected active ad-free state")
	}
	if bal.AdsRemainingToday != 10 {
		t.Errorf("Expected 10 ads remaining after one credit, got %d", bal.AdsRemainingToday)
	}
}

func TestConsumeEndpointClamps(t *testing.T) {
	server, r := setupTestServer(t)

	_, err := server.ledger.Credit(context.Background(), "user1", decimal.NewFromFloat(0.3), "bonus", "seed-1")
	if err != nil {
		t.Fatalf("Credit failed: %v", err)
	}

	w := doRequest(t, r, "POST", "/api/v1/users/user1/adfree/consume", `{"hours":"1.0"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var result ledger.ConsumeResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("Failed to decode consume result: %v", err)
	}
	if !result.Consumed.Equal(decimal.NewFromFloat(0.3)) {
		t.Errorf("Expected consumed 0.3, got %s", result.Consumed)
	}
	if !result.NewBalance.IsZero() {
		t.Errorf("Expected zero balance, got %s", result.NewBalance)
	}
}

func TestFatigueCapsRepeatsWithinSession(t *testing.T) {
	_, r := setupTestServer(t)

	// One banner campaign on ios: after three shows the session is fatigued.
	for i := 0; i < 3; i++ {
		w := doRequest(t, r, "GET", "/api/v1/ads/decision?surface=banner&platform=ios&session_id=fatigue-sess", "")
		resp := decodeDecision(t, w)
		if !resp.Show {
			t.Fatalf("Show %d: expected banner, got %+v", i, resp)
		}
	}

	w := doRequest(t, r, "GET", "/api/v1/ads/decision?surface=banner&platform=ios&session_id=fatigue-sess", "")
	resp := decodeDecision(t, w)
	if resp.Show || resp.Reason != OutcomeNoCampaign {
		t.Errorf("Expected fatigue to exhaust inventory, got %+v", resp)
	}

	// A fresh session starts from zero.
	w = doRequest(t, r, "GET", "/api/v1/ads/decision?surface=banner&platform=ios&session_id=other-sess", "")
	resp = decodeDecision(t, w)
	if !resp.Show {
		t.Errorf("Expected fresh session to see the banner, got %+v", resp)
	}
}

func TestInterstitialPacedOnRapidRequests(t *testing.T) {
	_, r := setupTestServer(t)
	url := "/api/v1/ads/decision?surface=interstitial&platform=ios&session_id=pace-sess"

	// The event-count gate needs at least MinEvents navigation events, so
	// the very first request of a session is paced.
	resp := decodeDecision(t, doRequest(t, r, "GET", url, ""))
	if resp.Show || resp.Reason != OutcomePaced {
		t.Fatalf("Expected first interstitial request paced, got %+v", resp)
	}

	// Keep navigating until the interstitial fires.
	shown := false
	for i := 0; i < pacing.MaxEvents; i++ {
		resp = decodeDecision(t, doRequest(t, r, "GET", url, ""))
		if resp.Show {
			shown = true
			break
		}
		if resp.Reason != OutcomePaced {
			t.Fatalf("Expected paced while below threshold, got %+v", resp)
		}
	}
	if !shown {
		t.Fatal("Interstitial never fired within the event-count upper bound")
	}

	// Immediately after a show the cooldown gate rejects, regardless of
	// how many events arrive.
	resp = decodeDecision(t, doRequest(t, r, "GET", url, ""))
	if resp.Show || resp.Reason != OutcomePaced {
		t.Errorf("Expected rapid follow-up request paced by cooldown, got %+v", resp)
	}
}

func TestUnknownSurfaceRejected(t *testing.T) {
	_, r := setupTestServer(t)

	w := doRequest(t, r, "GET", "/api/v1/ads/decision?surface=popup&session_id=s1", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown surface, got %d", w.Code)
	}
}

func TestCampaignSummaryEndpoint(t *testing.T) {
	_, r := setupTestServer(t)

	w := doRequest(t, r, "GET", "/api/v1/ads/decision?surface=banner&platform=ios&session_id=s1", "")
	resp := decodeDecision(t, w)
	if !resp.Show {
		t.Fatalf("Expected banner shown, got %+v", resp)
	}

	if w := doRequest(t, r, "POST", "/api/v1/impressions/"+resp.ImpressionID+"/click", ""); w.Code != http.StatusOK {
		t.Fatalf("Click failed with %d", w.Code)
	}

	w = doRequest(t, r, "GET", fmt.Sprintf("/api/v1/campaigns/%d/summary", resp.Campaign.ID), "")
	var summary models.CampaignSummary
	if err := json.Unmarshal(w.Body.Bytes(), &summary); err != nil {
		t.Fatalf("Failed to decode summary: %v", err)
	}
	if summary.Impressions != 1 || summary.Clicks != 1 {
		t.Errorf("Unexpected summary: %+v", summary)
	}
}

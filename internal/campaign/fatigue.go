package campaign

import (
	"sync"

	"ad-control-service/internal/models"
)

// MaxCampaignRepeats caps how many times one campaign is shown to one client
// within a session.
const MaxCampaignRepeats = 3

// FatigueState tracks per-session shown counts. It lives only for the
// lifetime of an app session; a new session legitimately starts from zero.
type FatigueState struct {
	mu    sync.Mutex
	shown map[uint]int
}

func NewFatigueState() *FatigueState {
	return &FatigueState{shown: make(map[uint]int)}
}

// Filter removes campaigns that hit the per-session repeat cap.
func (f *FatigueState) Filter(campaigns []models.AdCampaign) []models.AdCampaign {
	f.mu.Lock()
	defer f.mu.Unlock()

	fresh := campaigns[:0]
	for _, c := range campaigns {
		if f.shown[c.ID] >= MaxCampaignRepeats {
			continue
		}
		fresh = append(fresh, c)
	}
	return fresh
}

// RecordShown increments the session counter. Callers invoke it exactly once
// per impression, before impression creation.
func (f *FatigueState) RecordShown(campaignID uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shown[campaignID]++
}

// ShownCount reports how often a campaign was shown this session.
func (f *FatigueState) ShownCount(campaignID uint) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shown[campaignID]
}

// Reset clears all counters, used when a new session id is issued.
func (f *FatigueState) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shown = make(map[uint]int)
}

package session

import (
	"context"
	"sync"
	"time"

	"ad-control-service/internal/campaign"
	"ad-control-service/internal/pacing"

	"github.com/google/uuid"
)

// Session bundles the ephemeral per-app-session state: the fatigue counters
// and the interstitial pacing machine. Nothing here is persisted; a cold
// start gets a fresh session.
type Session struct {
	ID        string
	StartedAt time.Time
	Fatigue   *campaign.FatigueState
	Pacing    *pacing.Controller
}

func newSession() *Session {
	return &Session{
		ID:        uuid.New().String(),
		StartedAt: time.Now(),
		Fatigue:   campaign.NewFatigueState(),
		Pacing:    pacing.NewController(),
	}
}

// Manager owns the live sessions. Stale sessions are evicted after an idle
// TTL so abandoned clients do not accumulate.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*sessionEntry
	ttl      time.Duration
}

type sessionEntry struct {
	session  *Session
	lastSeen time.Time
}

func NewManager(ttl time.Duration) *Manager {
	return &Manager{
		sessions: make(map[string]*sessionEntry),
		ttl:      ttl,
	}
}

// Create issues a new session.
func (m *Manager) Create() *Session {
	s := newSession()
	m.mu.Lock()
	m.sessions[s.ID] = &sessionEntry{session: s, lastSeen: time.Now()}
	m.mu.Unlock()
	return s
}

// Get returns the session for an id, or a fresh one when the id is unknown
// or expired. An unknown id is how a restarted client looks, so fatigue and
// pacing legitimately start over.
func (m *Manager) Get(id string) *Session {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, ok := m.sessions[id]; ok && now.Sub(entry.lastSeen) < m.ttl {
		entry.lastSeen = now
		return entry.session
	}

	s := newSession()
	if id != "" {
		// Keep the client's id so follow-up requests find the same state.
		s.ID = id
	}
	m.sessions[s.ID] = &sessionEntry{session: s, lastSeen: now}
	return s
}

// StartEvictor runs Evict on an interval until the context is cancelled,
// keeping a long-running server from accumulating abandoned sessions.
func (m *Manager) StartEvictor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Evict()
		}
	}
}

// Evict drops sessions idle past the TTL.
func (m *Manager) Evict() int {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for id, entry := range m.sessions {
		if now.Sub(entry.lastSeen) >= m.ttl {
			delete(m.sessions, id)
			evicted++
		}
	}
	return evicted
}

// Count reports the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

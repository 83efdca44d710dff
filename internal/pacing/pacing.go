package pacing

import (
	"math/rand"
	"sync"
	"time"
)

// Interstitial pacing bounds. Spacing is randomized but bounded: never more
// often than once per MinInterval, never rarer than once per MaxEvents
// navigation events.
const (
	MinInterval = 60 * time.Second
	MinEvents   = 2
	MaxEvents   = 6
)

// Controller is the single canonical interstitial pacing state machine.
// State is per app session and process-local.
type Controller struct {
	mu               sync.Mutex
	lastInterstitial time.Time
	eventViewCount   int
	threshold        int

	now  func() time.Time
	rand *rand.Rand
}

func NewController() *Controller {
	c := &Controller{
		now:  time.Now,
		rand: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	c.threshold = c.drawThreshold()
	return c
}

// ShouldShow evaluates both gates in order: the cooldown gate first, then
// the event-count gate. Every call counts as one navigation event. On
// acceptance the state resets and a fresh threshold is drawn for the next
// cycle.
func (c *Controller) ShouldShow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()

	if !c.lastInterstitial.IsZero() && now.Sub(c.lastInterstitial) < MinInterval {
		return false
	}

	c.eventViewCount++
	if c.eventViewCount < c.threshold {
		return false
	}

	c.eventViewCount = 0
	c.lastInterstitial = now
	c.threshold = c.drawThreshold()
	return true
}

// Reset returns the controller to its cold-start state.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastInterstitial = time.Time{}
	c.eventViewCount = 0
	c.threshold = c.drawThreshold()
}

func (c *Controller) drawThreshold() int {
	return MinEvents + c.rand.Intn(MaxEvents-MinEvents+1)
}

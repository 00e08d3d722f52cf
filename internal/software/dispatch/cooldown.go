package dispatch

import (
	"sync"
	"time"
)

// cooldownTable tracks per-ride captain exclusions: a captain who
// cancels after accepting must not see the same ride offered again
// until the cooldown passes.
type cooldownTable struct {
	mu    sync.Mutex
	until map[string]map[string]time.Time // rideID -> captainID -> expiry
}

func newCooldownTable() *cooldownTable {
	return &cooldownTable{until: make(map[string]map[string]time.Time)}
}

func (t *cooldownTable) exclude(rideID, captainID string, d time.Duration) {
	if d <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	byCaptain, ok := t.until[rideID]
	if !ok {
		byCaptain = make(map[string]time.Time)
		t.until[rideID] = byCaptain
	}
	byCaptain[captainID] = time.Now().Add(d)
}

func (t *cooldownTable) excluded(rideID, captainID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	byCaptain, ok := t.until[rideID]
	if !ok {
		return false
	}
	expiry, ok := byCaptain[captainID]
	if !ok {
		return false
	}
	if time.Now().After(expiry) {
		delete(byCaptain, captainID)
		if len(byCaptain) == 0 {
			delete(t.until, rideID)
		}
		return false
	}
	return true
}

// drop forgets every exclusion for a ride once its dispatch is over.
func (t *cooldownTable) drop(rideID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.until, rideID)
}

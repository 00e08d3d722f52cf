package session

import "sync"

// Link is the passenger-captain routing binding for one accepted ride.
// Installed at accept, torn down at any terminal transition or captain
// cancel. It is what lets a captain's location report reach exactly the
// passenger currently riding with them.
type Link struct {
	RideID      string
	PassengerID string
	CaptainID   string
}

// Links is the in-memory ride sharing link table, keyed by captain.
// A captain serves at most one passenger at a time.
type Links struct {
	mu        sync.RWMutex
	byCaptain map[string]Link
}

func NewLinks() *Links {
	return &Links{byCaptain: make(map[string]Link)}
}

// Bind installs the link, replacing any previous link for the captain.
func (links *Links) Bind(rideID, passengerID, captainID string) {
	links.mu.Lock()
	defer links.mu.Unlock()
	links.byCaptain[captainID] = Link{RideID: rideID, PassengerID: passengerID, CaptainID: captainID}
}

// Unbind removes the captain's link, if any.
func (links *Links) Unbind(captainID string) {
	links.mu.Lock()
	defer links.mu.Unlock()
	delete(links.byCaptain, captainID)
}

// ByCaptain returns the captain's current link.
func (links *Links) ByCaptain(captainID string) (Link, bool) {
	links.mu.RLock()
	defer links.mu.RUnlock()
	l, ok := links.byCaptain[captainID]
	return l, ok
}

// Snapshot returns a copy of all live links, for the sweeper.
func (links *Links) Snapshot() []Link {
	links.mu.RLock()
	defer links.mu.RUnlock()

	out := make([]Link, 0, len(links.byCaptain))
	for _, l := range links.byCaptain {
		out = append(out, l)
	}
	return out
}

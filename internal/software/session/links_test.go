package session

import "testing"

func TestLinksBindUnbind(t *testing.T) {
	links := NewLinks()

	links.Bind("ride-1", "p1", "c1")
	l, ok := links.ByCaptain("c1")
	if !ok || l.PassengerID != "p1" || l.RideID != "ride-1" {
		t.Fatalf("ByCaptain = %+v, %v; want ride-1/p1", l, ok)
	}

	// rebinding replaces the previous link
	links.Bind("ride-2", "p2", "c1")
	l, _ = links.ByCaptain("c1")
	if l.RideID != "ride-2" || l.PassengerID != "p2" {
		t.Fatalf("ByCaptain after rebind = %+v, want ride-2/p2", l)
	}

	links.Unbind("c1")
	if _, ok := links.ByCaptain("c1"); ok {
		t.Error("link still present after Unbind")
	}
}

func TestLinksSnapshot(t *testing.T) {
	links := NewLinks()
	links.Bind("ride-1", "p1", "c1")
	links.Bind("ride-2", "p2", "c2")

	snap := links.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("Snapshot len = %d, want 2", len(snap))
	}

	// snapshot is a copy; mutating the table later must not affect it
	links.Unbind("c1")
	if len(snap) != 2 {
		t.Error("snapshot changed after Unbind")
	}
}

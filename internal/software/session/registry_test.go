package session

import (
	"sync"
	"testing"
)

type fakeHandle struct {
	id     string
	mu     sync.Mutex
	closed bool
	events []string
}

func (f *fakeHandle) Send(eventType string, _ any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, eventType)
	return nil
}

func (f *fakeHandle) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeHandle) ID() string { return f.id }

func TestAttachDisplacesPrevious(t *testing.T) {
	reg := NewRegistry()
	first := &fakeHandle{id: "conn-1"}
	second := &fakeHandle{id: "conn-2"}

	if displaced := reg.Attach("p1", first); displaced != nil {
		t.Fatalf("first attach displaced %v, want nil", displaced)
	}
	displaced := reg.Attach("p1", second)
	if displaced == nil || displaced.ID() != "conn-1" {
		t.Fatalf("second attach displaced %v, want conn-1", displaced)
	}

	h, ok := reg.Lookup("p1")
	if !ok || h.ID() != "conn-2" {
		t.Fatalf("Lookup = %v, %v; want conn-2", h, ok)
	}
}

func TestDetachOnlyIfCurrent(t *testing.T) {
	reg := NewRegistry()
	first := &fakeHandle{id: "conn-1"}
	second := &fakeHandle{id: "conn-2"}

	reg.Attach("p1", first)
	reg.Attach("p1", second)

	// the displaced connection's cleanup must not evict its successor
	if reg.Detach("p1", first) {
		t.Error("Detach succeeded for a displaced handle")
	}
	if _, ok := reg.Lookup("p1"); !ok {
		t.Fatal("successor handle was dropped")
	}

	if !reg.Detach("p1", second) {
		t.Error("Detach failed for the current handle")
	}
	if _, ok := reg.Lookup("p1"); ok {
		t.Error("handle still registered after Detach")
	}
}

func TestConcurrentAttachSinglePrincipal(t *testing.T) {
	reg := NewRegistry()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h := &fakeHandle{id: string(rune('a' + i%26))}
			if old := reg.Attach("p1", h); old != nil {
				_ = old.Close()
			}
		}(i)
	}
	wg.Wait()

	if reg.Len() != 1 {
		t.Fatalf("Len = %d, want 1", reg.Len())
	}
}

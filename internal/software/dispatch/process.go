package dispatch

import (
	"context"
	"sync"
	"time"

	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/ports"
)

// process is the bookkeeping for one ride's dispatch goroutine.
type process struct {
	rideID   string
	cancel   context.CancelFunc
	accepted chan struct{}
	once     sync.Once
}

// noteAccepted is idempotent; the first call releases the wait.
func (p *process) noteAccepted() {
	p.once.Do(func() { close(p.accepted) })
}

// Manager owns the per-ride dispatch processes: at most one goroutine
// per ride, registered in the process map so the sweeper can see which
// rides are already being worked.
type Manager struct {
	logger   *logger.Logger
	uow      ports.UnitOfWork
	rides    ports.RideRepository
	geo      ports.GeoIndex
	notifier ports.Notifier
	cfg      ports.ConfigProvider

	mu        sync.Mutex
	procs     map[string]*process
	cooldowns *cooldownTable

	wg sync.WaitGroup
}

var _ ports.DispatchManager = (*Manager)(nil)

func NewManager(
	log *logger.Logger,
	uow ports.UnitOfWork,
	rides ports.RideRepository,
	geo ports.GeoIndex,
	notifier ports.Notifier,
	cfg ports.ConfigProvider,
) *Manager {
	return &Manager{
		logger:    log,
		uow:       uow,
		rides:     rides,
		geo:       geo,
		notifier:  notifier,
		cfg:       cfg,
		procs:     make(map[string]*process),
		cooldowns: newCooldownTable(),
	}
}

// Start launches a dispatch process for the ride unless one is already
// running. The process outlives the caller's request context.
func (m *Manager) Start(ctx context.Context, rideID string) {
	m.mu.Lock()
	if cur, running := m.procs[rideID]; running {
		select {
		case <-cur.accepted:
			// logically finished, goroutine still draining; replace it so a
			// captain-cancel re-dispatch is not lost to the exit race
		default:
			m.mu.Unlock()
			return
		}
	}

	procCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p := &process{
		rideID:   rideID,
		cancel:   cancel,
		accepted: make(chan struct{}),
	}
	m.procs[rideID] = p
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		defer func() {
			// clean up only if no successor process replaced this one; a
			// replaced process must not drop its successor's cooldowns
			m.mu.Lock()
			current := m.procs[rideID] == p
			if current {
				delete(m.procs, rideID)
			}
			m.mu.Unlock()
			if current {
				m.cooldowns.drop(rideID)
			}
		}()

		m.run(procCtx, p)
	}()
}

// Cancel signals the ride's process to stop. Idempotent.
func (m *Manager) Cancel(rideID string) {
	m.mu.Lock()
	p, ok := m.procs[rideID]
	m.mu.Unlock()
	if ok {
		p.cancel()
	}
}

// NoteAccepted tells a running process its ride was taken, so it exits
// without waiting out the offer window.
func (m *Manager) NoteAccepted(rideID string) {
	m.mu.Lock()
	p, ok := m.procs[rideID]
	m.mu.Unlock()
	if ok {
		p.noteAccepted()
	}
}

// Running reports whether a process exists for the ride.
func (m *Manager) Running(rideID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.procs[rideID]
	return ok
}

// RunningIDs snapshots the ids with live processes.
func (m *Manager) RunningIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.procs))
	for id := range m.procs {
		ids = append(ids, id)
	}
	return ids
}

// Excluded reports whether the captain is cooling down for this ride.
func (m *Manager) Excluded(rideID, captainID string) bool {
	return m.cooldowns.excluded(rideID, captainID)
}

// ExcludeFor places the captain on a cooldown for the ride.
func (m *Manager) ExcludeFor(rideID, captainID string, d time.Duration) {
	m.cooldowns.exclude(rideID, captainID, d)
}

// Shutdown cancels every process and waits for the goroutines to drain.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	for _, p := range m.procs {
		p.cancel()
	}
	m.mu.Unlock()
	m.wg.Wait()
}

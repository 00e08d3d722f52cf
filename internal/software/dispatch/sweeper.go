package dispatch

import (
	"context"
	"errors"
	"time"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/ports"
	"ride-dispatch/internal/software/session"
)

// Sweeper is the safety net behind the dispatcher: any requested ride
// without a live dispatch process (a crashed node, a lost goroutine)
// gets one started. It also reaps stale captain locations and sharing
// links whose ride has ended. Every action is idempotent.
type Sweeper struct {
	logger  *logger.Logger
	uow     ports.UnitOfWork
	rides   ports.RideRepository
	geo     ports.GeoIndex
	manager ports.DispatchManager
	cfg     ports.ConfigProvider
	links   *session.Links
}

func NewSweeper(
	log *logger.Logger,
	uow ports.UnitOfWork,
	rides ports.RideRepository,
	geo ports.GeoIndex,
	manager ports.DispatchManager,
	cfg ports.ConfigProvider,
	links *session.Links,
) *Sweeper {
	return &Sweeper{
		logger:  log,
		uow:     uow,
		rides:   rides,
		geo:     geo,
		manager: manager,
		cfg:     cfg,
		links:   links,
	}
}

// Run sweeps on the configured interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	interval := s.cfg.Dispatch().SweepInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info(ctx, "sweeper_started", "Background sweeper running", map[string]any{
		"interval": interval.String(),
	})

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "sweeper_stopped", "Background sweeper stopped", nil)
			return
		case <-ticker.C:
			s.Sweep(ctx)

			// the interval is a live knob
			if next := s.cfg.Dispatch().SweepInterval; next != interval && next > 0 {
				interval = next
				ticker.Reset(interval)
			}
		}
	}
}

// Sweep performs one pass. Exported so a pass can be driven directly in
// tests and on startup.
func (s *Sweeper) Sweep(ctx context.Context) {
	s.restartOrphans(ctx)
	s.reapLocations(ctx)
	s.reapLinks(ctx)
}

// restartOrphans starts a dispatcher for every requested ride that has
// no process in the map.
func (s *Sweeper) restartOrphans(ctx context.Context) {
	var orphans []*ride.Ride
	err := s.uow.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		orphans, err = s.rides.ListRequestedExcluding(ctx, s.manager.RunningIDs())
		return err
	})
	if err != nil {
		s.logger.Error(ctx, "sweep_failed", "Failed to list orphaned rides", err, nil)
		return
	}

	for _, r := range orphans {
		s.logger.Info(ctx, "orphan_redispatch", "Restarting dispatch for orphaned ride", map[string]any{
			"ride_id": r.ID,
		})
		s.manager.Start(ctx, r.ID)
	}
}

// reapLocations evicts captains whose last report is past the TTL.
func (s *Sweeper) reapLocations(ctx context.Context) {
	ttl := s.cfg.Dispatch().CaptainLocationTTL
	n, err := s.geo.ReapStale(ctx, ttl)
	if err != nil {
		s.logger.Error(ctx, "sweep_failed", "Failed to reap stale locations", err, nil)
		return
	}
	if n > 0 {
		s.logger.Info(ctx, "stale_locations_reaped", "Evicted stale captain locations", map[string]any{
			"count": n, "ttl": ttl.String(),
		})
	}
}

// reapLinks removes sharing links whose ride reached a terminal state.
func (s *Sweeper) reapLinks(ctx context.Context) {
	for _, link := range s.links.Snapshot() {
		var r *ride.Ride
		err := s.uow.WithinTx(ctx, func(ctx context.Context) error {
			var err error
			r, err = s.rides.GetByID(ctx, link.RideID)
			return err
		})
		switch {
		case err != nil && errors.Is(err, ride.ErrNotFound):
			s.links.Unbind(link.CaptainID)
		case err != nil:
			s.logger.Error(ctx, "sweep_failed", "Failed to load ride for link check", err, map[string]any{
				"ride_id": link.RideID,
			})
		case r.Status.Terminal():
			s.links.Unbind(link.CaptainID)
		}
	}
}

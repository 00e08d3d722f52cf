package service

import (
	"context"
	"encoding/json"
	"time"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/general/rabbitmq"
	"ride-dispatch/internal/ports"
	"ride-dispatch/internal/software/session"
)

// Service drives the ride state machine. Every transition funnels
// through a single conditional update against the expected status, so
// concurrent actors can race freely: exactly one wins, the rest get a
// conflict.
type Service struct {
	logger   *logger.Logger
	uow      ports.UnitOfWork
	rides    ports.RideRepository
	geo      ports.GeoIndex
	notifier ports.Notifier
	dispatch ports.DispatchManager
	cfg      ports.ConfigProvider
	pub      *rabbitmq.MQPublisher
	links    *session.Links
}

var _ ports.RideService = (*Service)(nil)

func NewService(
	log *logger.Logger,
	uow ports.UnitOfWork,
	rides ports.RideRepository,
	geo ports.GeoIndex,
	notifier ports.Notifier,
	dispatch ports.DispatchManager,
	cfg ports.ConfigProvider,
	pub *rabbitmq.MQPublisher,
	links *session.Links,
) *Service {
	return &Service{
		logger:   log,
		uow:      uow,
		rides:    rides,
		geo:      geo,
		notifier: notifier,
		dispatch: dispatch,
		cfg:      cfg,
		pub:      pub,
		links:    links,
	}
}

// publishStatus broadcasts the lifecycle transition on the ride topic.
// Broker trouble is logged, never surfaced: the database already holds
// the truth.
func (svc *Service) publishStatus(ctx context.Context, r *ride.Ride, reason string) {
	msg := contracts.RideStatusMessage{
		RideID:    r.ID,
		Code:      r.Code,
		Status:    string(r.Status),
		CaptainID: r.Captain(),
		Reason:    reason,
		Timestamp: time.Now().UTC(),
		Envelope: contracts.Envelope{
			Producer: "dispatch-service",
			SentAt:   time.Now().UTC(),
		},
	}
	if r.Status == ride.StatusCompleted {
		fare := r.FareAmount
		msg.FareAmount = &fare
	}

	body, err := json.Marshal(msg)
	if err != nil {
		svc.logger.Error(ctx, "status_marshal_failed", "Failed to marshal ride status message", err,
			map[string]any{"ride_id": r.ID})
		return
	}

	if svc.pub == nil {
		return
	}
	if err := svc.pub.Publish(contracts.ExchangeRideTopic, contracts.RouteRideStatusPrefix+string(r.Status), body); err != nil {
		svc.logger.Error(ctx, "status_publish_failed", "Failed to publish ride status", err,
			map[string]any{"ride_id": r.ID, "status": string(r.Status)})
	}
}

// notifyPassenger pushes an event; a disconnected passenger is normal,
// they will be rehydrated on reconnect.
func (svc *Service) notifyPassenger(ctx context.Context, passengerID, eventType string, payload any) {
	if err := svc.notifier.NotifyPassenger(passengerID, eventType, payload); err != nil {
		svc.logger.Debug(ctx, "notify_skipped", "Passenger not reachable", map[string]any{
			"passenger_id": passengerID, "event": eventType,
		})
	}
}

func (svc *Service) notifyCaptain(ctx context.Context, captainID, eventType string, payload any) {
	if err := svc.notifier.NotifyCaptain(captainID, eventType, payload); err != nil {
		svc.logger.Debug(ctx, "notify_skipped", "Captain not reachable", map[string]any{
			"captain_id": captainID, "event": eventType,
		})
	}
}

func geoPointOf(p ride.Place) contracts.GeoPoint {
	return contracts.GeoPoint{Lon: p.Point.Lon, Lat: p.Point.Lat, Name: p.Name}
}

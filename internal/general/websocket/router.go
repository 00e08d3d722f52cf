package websocket

import (
	"time"

	"ride-dispatch/internal/general/jwt"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/general/rabbitmq"
	"ride-dispatch/internal/ports"
	"ride-dispatch/internal/software/session"

	gorilla "github.com/gorilla/websocket"
)

const (
	wsWriteTimeout   = 5 * time.Second
	wsCloseAckWindow = 2 * time.Second
	ctrlTimeout      = 5 * time.Second

	authDeadlineCaptain   = 5 * time.Second
	authDeadlinePassenger = 10 * time.Second
	readDeadline          = 60 * time.Second
	pingInterval          = 30 * time.Second
)

var upgrader = gorilla.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Router is the WebSocket event router: it authenticates connections,
// keeps the per-role session registries, routes inbound messages into
// the ride service, and pushes outbound events to principals.
type Router struct {
	logger  *logger.Logger
	jwtMgr  *jwt.Manager
	pub     *rabbitmq.MQPublisher
	rideSvc ports.RideService
	uow     ports.UnitOfWork
	rides   ports.RideRepository
	geo     ports.GeoIndex
	cfg     ports.ConfigProvider

	passengers *session.Registry
	captains   *session.Registry
	links      *session.Links
}

// NewRouter wires the event router. The ride service is set after
// construction because the service also needs the router as Notifier.
func NewRouter(
	log *logger.Logger,
	jwtMgr *jwt.Manager,
	pub *rabbitmq.MQPublisher,
	uow ports.UnitOfWork,
	rides ports.RideRepository,
	geo ports.GeoIndex,
	cfg ports.ConfigProvider,
	links *session.Links,
) *Router {
	return &Router{
		logger:     log,
		jwtMgr:     jwtMgr,
		pub:        pub,
		uow:        uow,
		rides:      rides,
		geo:        geo,
		cfg:        cfg,
		passengers: session.NewRegistry(),
		captains:   session.NewRegistry(),
		links:      links,
	}
}

// SetRideService installs the ride service after both sides exist.
func (rt *Router) SetRideService(svc ports.RideService) { rt.rideSvc = svc }

// ----- ports.Notifier -----

var _ ports.Notifier = (*Router)(nil)

// NotifyPassenger pushes one event to the passenger's live connection.
func (rt *Router) NotifyPassenger(passengerID, eventType string, payload any) error {
	h, ok := rt.passengers.Lookup(passengerID)
	if !ok {
		return ports.ErrNotConnected
	}
	return h.Send(eventType, payload)
}

// NotifyCaptain pushes one event to the captain's live connection.
func (rt *Router) NotifyCaptain(captainID, eventType string, payload any) error {
	h, ok := rt.captains.Lookup(captainID)
	if !ok {
		return ports.ErrNotConnected
	}
	return h.Send(eventType, payload)
}

// CaptainConnected reports whether the captain has a live socket.
func (rt *Router) CaptainConnected(captainID string) bool {
	_, ok := rt.captains.Lookup(captainID)
	return ok
}

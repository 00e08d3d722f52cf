package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/general/rabbitmq"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RunLocationConsumer drains the dispatch location queue: every captain
// position broadcast lands in the Geo-Index here, and movement is
// forwarded to the passenger linked to that captain. Blocks until ctx
// is cancelled or the channel dies.
func (rt *Router) RunLocationConsumer(ctx context.Context, client *rabbitmq.Client) error {
	return client.Consume(ctx, contracts.QueueLocationDispatch, "", 32, 10*time.Second,
		func(ctx context.Context, d amqp.Delivery) error {
			return rt.processLocationUpdate(ctx, d.Body)
		})
}

// processLocationUpdate applies one location broadcast. Split out of the
// consumer loop so it can be exercised without a broker.
func (rt *Router) processLocationUpdate(ctx context.Context, body []byte) error {
	var msg contracts.LocationUpdateMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("decode location update: %w", err)
	}
	if msg.CaptainID == "" {
		return fmt.Errorf("location update without captain_id")
	}

	p := geo.Point{Lon: msg.Location.Lon, Lat: msg.Location.Lat}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("location update for %s: %w", msg.CaptainID, err)
	}

	// a linked captain is mid-ride and stays out of the candidate
	// index; their movement is only forwarded to the passenger. They
	// re-enter the index with the first report after the link drops.
	link, linked := rt.links.ByCaptain(msg.CaptainID)
	if !linked {
		if err := rt.geo.Upsert(ctx, msg.CaptainID, p); err != nil {
			// transient storage trouble; let the broker redeliver
			return fmt.Errorf("geo upsert for %s: %w", msg.CaptainID, err)
		}
		return nil
	}

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	err := rt.NotifyPassenger(link.PassengerID, contracts.EventDriverLocationUpdate, contracts.DriverLocationUpdateEvent{
		CaptainID: msg.CaptainID,
		RideID:    link.RideID,
		Location:  contracts.GeoPoint{Lon: p.Lon, Lat: p.Lat},
		Timestamp: ts,
	})
	if err != nil {
		// the passenger being offline is normal; never poison the queue for it
		rt.logger.Debug(ctx, "location_forward_skipped", "Linked passenger not reachable",
			map[string]any{"captain_id": msg.CaptainID, "passenger_id": link.PassengerID})
	}
	return nil
}

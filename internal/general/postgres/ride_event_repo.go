package postgres

import (
	"context"
	"encoding/json"
	"time"

	"ride-dispatch/internal/domain/ride"

	"github.com/jackc/pgx/v5"
)

// RideEvent is one audit trail row.
type RideEvent struct {
	ID        string
	RideID    string
	EventType string
	EventData json.RawMessage
	CreatedAt time.Time
}

// insertRideEvent writes an audit row into ride_events with encoded event_data.
// Events share the transaction of the status change they describe, so the
// audit trail never shows a transition that did not commit.
func insertRideEvent(ctx context.Context, tx pgx.Tx, rideID, eventType string, eventData any) error {
	body, err := json.Marshal(eventData)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO ride_events (ride_id, event_type, event_data)
		VALUES ($1, $2, $3::jsonb)
	`, rideID, eventType, string(body))
	return err
}

// eventTypeFor names the audit event for a target status.
func eventTypeFor(status ride.Status) string {
	switch status {
	case ride.StatusRequested:
		return "ride_redispatched"
	case ride.StatusAccepted:
		return "ride_accepted"
	case ride.StatusArrived:
		return "captain_arrived"
	case ride.StatusOnRide:
		return "ride_started"
	case ride.StatusCompleted:
		return "ride_completed"
	case ride.StatusCancelled:
		return "ride_cancelled"
	case ride.StatusNotApprove:
		return "ride_not_approved"
	default:
		return "status_changed"
	}
}

// ListRideEvents returns the audit trail for a ride, oldest first.
func ListRideEvents(ctx context.Context, tx pgx.Tx, rideID string) ([]RideEvent, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, ride_id, event_type, event_data, created_at
		FROM ride_events
		WHERE ride_id = $1
		ORDER BY created_at ASC`, rideID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []RideEvent
	for rows.Next() {
		var ev RideEvent
		if err := rows.Scan(&ev.ID, &ev.RideID, &ev.EventType, &ev.EventData, &ev.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/ports"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// RideRepo persists rides using pgx and plain SQL.
type RideRepo struct{}

// NewRideRepo constructs a new RideRepo.
func NewRideRepo() ports.RideRepository {
	return &RideRepo{}
}

const rideColumns = `
	id, code, created_at, updated_at, passenger_id, captain_id,
	pickup_lon, pickup_lat, pickup_name, dropoff_lon, dropoff_lat, dropoff_name,
	fare_amount, currency, distance_km, duration_min, payment_method, cancellation_fee,
	status, is_dispatching, accepted_at, arrived_at, started_at, ended_at,
	cancellation_reason, passenger_rating`

// rowScanner covers pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRide(row rowScanner) (*ride.Ride, error) {
	var out ride.Ride
	var status, paymentMethod string

	err := row.Scan(
		&out.ID, &out.Code, &out.CreatedAt, &out.UpdatedAt, &out.PassengerID, &out.CaptainID,
		&out.Pickup.Point.Lon, &out.Pickup.Point.Lat, &out.Pickup.Name,
		&out.Dropoff.Point.Lon, &out.Dropoff.Point.Lat, &out.Dropoff.Name,
		&out.FareAmount, &out.Currency, &out.DistanceKM, &out.DurationMin, &paymentMethod, &out.CancellationFee,
		&status, &out.IsDispatching, &out.AcceptedAt, &out.ArrivedAt, &out.StartedAt, &out.EndedAt,
		&out.CancellationReason, &out.PassengerRating,
	)
	if err != nil {
		return nil, err
	}
	out.Status = ride.Status(status)
	out.PaymentMethod = ride.PaymentMethod(paymentMethod)
	return &out, nil
}

// Create inserts a new ride row and writes an initial requested event.
// The human ride code has a unique index; on a collision a fresh code is
// generated and the insert retried.
func (repo *RideRepo) Create(ctx context.Context, r *ride.Ride) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	if r.Code == "" {
		r.Code = ride.NewCode()
	}

	const insert = `
		INSERT INTO rides (
			code, passenger_id,
			pickup_lon, pickup_lat, pickup_name, dropoff_lon, dropoff_lat, dropoff_name,
			fare_amount, currency, distance_km, duration_min, payment_method,
			status, is_dispatching
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		RETURNING id, created_at, updated_at`

	const maxCodeRetries = 3
	for attempt := 0; ; attempt++ {
		err = tx.QueryRow(ctx, insert,
			r.Code, r.PassengerID,
			r.Pickup.Point.Lon, r.Pickup.Point.Lat, r.Pickup.Name,
			r.Dropoff.Point.Lon, r.Dropoff.Point.Lat, r.Dropoff.Name,
			r.FareAmount, r.Currency, r.DistanceKM, r.DurationMin, string(r.PaymentMethod),
			string(r.Status), r.IsDispatching,
		).Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
		if err == nil {
			break
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && attempt < maxCodeRetries {
			r.Code = ride.NewCode()
			continue
		}
		return fmt.Errorf("insert ride: %w", err)
	}

	return insertRideEvent(ctx, tx, r.ID, "ride_requested", map[string]any{
		"new_status":  string(r.Status),
		"code":        r.Code,
		"fare_amount": r.FareAmount,
	})
}

// LockPrincipal takes a transaction-scoped advisory lock keyed by the
// principal id. Two transactions racing to give the same passenger or
// captain a second active ride serialize here, so the loser's
// find-active check sees the winner's committed row. Released
// automatically at commit or rollback.
func (repo *RideRepo) LockPrincipal(ctx context.Context, principalID string) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, principalID); err != nil {
		return fmt.Errorf("lock principal %s: %w", principalID, err)
	}
	return nil
}

// GetByID fetches a ride by primary key (uuid).
func (repo *RideRepo) GetByID(ctx context.Context, id string) (*ride.Ride, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	out, err := scanRide(tx.QueryRow(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ride.ErrNotFound
	}
	return out, err
}

// FindActiveForPassenger returns the passenger's most recent non-terminal
// ride, or (nil, nil) when there is none.
func (repo *RideRepo) FindActiveForPassenger(ctx context.Context, passengerID string) (*ride.Ride, error) {
	return repo.findActive(ctx, "passenger_id", passengerID)
}

// FindActiveForCaptain returns the captain's most recent non-terminal
// ride, or (nil, nil) when there is none.
func (repo *RideRepo) FindActiveForCaptain(ctx context.Context, captainID string) (*ride.Ride, error) {
	return repo.findActive(ctx, "captain_id", captainID)
}

func (repo *RideRepo) findActive(ctx context.Context, column, id string) (*ride.Ride, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + rideColumns + `
		FROM rides
		WHERE ` + column + ` = $1
		  AND status IN ('requested', 'accepted', 'arrived', 'onRide')
		ORDER BY created_at DESC
		LIMIT 1`

	out, err := scanRide(tx.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		// no active ride found
		return nil, nil
	}
	return out, err
}

// CompareAndSet applies the patch only if the ride is still in the
// expected status. The whole check-and-update is one conditional UPDATE,
// so two racing transitions cannot both win.
//
// Returns ride.ErrNotFound when the id does not exist, ride.ErrConflict
// when the row exists but its status no longer matches expected.
func (repo *RideRepo) CompareAndSet(ctx context.Context, id string, expected ride.Status, patch ports.RidePatch) (*ride.Ride, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	if !patch.Status.Valid() {
		return nil, fmt.Errorf("compare and set: invalid target status %q", patch.Status)
	}

	// build the SET list from the patch; $1 is id, $2 is expected status
	sets := []string{"status = $3", "updated_at = now()"}
	args := []any{id, string(expected), string(patch.Status)}

	add := func(expr string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf(expr, len(args)))
	}

	if patch.CaptainID != nil {
		add("captain_id = $%d", *patch.CaptainID)
	} else if patch.ClearCaptain {
		sets = append(sets, "captain_id = NULL")
	}
	if patch.IsDispatching != nil {
		add("is_dispatching = $%d", *patch.IsDispatching)
	}
	if patch.AcceptedAt != nil {
		add("accepted_at = $%d", *patch.AcceptedAt)
	}
	if patch.ArrivedAt != nil {
		add("arrived_at = $%d", *patch.ArrivedAt)
	}
	if patch.StartedAt != nil {
		add("started_at = $%d", *patch.StartedAt)
	}
	if patch.EndedAt != nil {
		add("ended_at = $%d", *patch.EndedAt)
	}
	if patch.CancellationReason != nil {
		add("cancellation_reason = $%d", *patch.CancellationReason)
	}
	if patch.CancellationFee != nil {
		add("cancellation_fee = $%d", *patch.CancellationFee)
	}

	query := `UPDATE rides SET ` + strings.Join(sets, ", ") + `
		WHERE id = $1 AND status = $2
		RETURNING ` + rideColumns

	out, err := scanRide(tx.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		// distinguish a missing ride from a lost race
		var exists bool
		if probeErr := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM rides WHERE id = $1)`, id).Scan(&exists); probeErr != nil {
			return nil, probeErr
		}
		if !exists {
			return nil, ride.ErrNotFound
		}
		return nil, ride.ErrConflict
	}
	if err != nil {
		return nil, err
	}

	evData := map[string]any{
		"old_status": string(expected),
		"new_status": string(patch.Status),
	}
	if patch.CaptainID != nil {
		evData["captain_id"] = *patch.CaptainID
	}
	if patch.CancellationReason != nil {
		evData["reason"] = *patch.CancellationReason
	}
	if err := insertRideEvent(ctx, tx, id, eventTypeFor(patch.Status), evData); err != nil {
		return nil, err
	}

	return out, nil
}

// ListRequestedExcluding returns dispatching rides still waiting for a
// captain, skipping the given ids. Used by the sweeper to find rides
// whose dispatch process died with the node.
func (repo *RideRepo) ListRequestedExcluding(ctx context.Context, excludeIDs []string) ([]*ride.Ride, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	if excludeIDs == nil {
		excludeIDs = []string{}
	}

	rows, err := tx.Query(ctx, `
		SELECT `+rideColumns+`
		FROM rides
		WHERE status = 'requested'
		  AND is_dispatching
		  AND NOT (id = ANY($1))
		ORDER BY created_at ASC`, excludeIDs)
	if err != nil {
		return nil, fmt.Errorf("query requested rides: %w", err)
	}
	defer rows.Close()

	return collectRides(rows)
}

// ListRequested returns up to limit of the oldest rides still waiting
// for a captain.
func (repo *RideRepo) ListRequested(ctx context.Context, limit int) ([]*ride.Ride, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT `+rideColumns+`
		FROM rides
		WHERE status = 'requested'
		ORDER BY created_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query requested rides: %w", err)
	}
	defer rows.Close()

	return collectRides(rows)
}

// FindRecentCompletedForPassenger returns the passenger's most recent
// completed-but-unrated ride inside the window, or (nil, nil).
func (repo *RideRepo) FindRecentCompletedForPassenger(ctx context.Context, passengerID string, window time.Duration) (*ride.Ride, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	out, err := scanRide(tx.QueryRow(ctx, `
		SELECT `+rideColumns+`
		FROM rides
		WHERE passenger_id = $1
		  AND status = 'completed'
		  AND passenger_rating IS NULL
		  AND ended_at > now() - make_interval(secs => $2)
		ORDER BY ended_at DESC
		LIMIT 1`, passengerID, window.Seconds()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return out, err
}

func collectRides(rows pgx.Rows) ([]*ride.Ride, error) {
	var rides []*ride.Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ride: %w", err)
		}
		rides = append(rides, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return rides, nil
}

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Trips are materialized for every active template whose weekday list
// contains the day. The unique (template_id, departure_at) pair makes reruns
// for the same window insert nothing.
const generateTripsQuery = `
	INSERT INTO trips (id, template_id, route_id, departure_at, seats)
	SELECT gen_random_uuid(), t.id, t.route_id, (d.day + t.departs_at) AT TIME ZONE 'UTC', t.seats
	FROM trip_templates t
	CROSS JOIN (
		SELECT generate_series($1::date, $1::date + ($2::int - 1), interval '1 day')::date AS day
	) d
	WHERE t.active AND EXTRACT(DOW FROM d.day)::smallint = ANY(t.weekdays)
	ON CONFLICT (template_id, departure_at) DO NOTHING
	RETURNING id::text, route_id::text, departure_at`

// Trip is a materialized departure
type Trip struct {
	ID          string    `json:"id"`
	RouteID     string    `json:"route_id"`
	DepartureAt time.Time `json:"departure_at"`
}

// TripStore manages trips and their templates
type TripStore struct {
	db Querier
}

// NewTripStore creates a trip store
func NewTripStore(db Querier) *TripStore {
	return &TripStore{db: db}
}

// Generate creates trips for days starting at the date of from and returns
// only the trips that did not exist yet
func (s *TripStore) Generate(ctx context.Context, from time.Time, days int) ([]Trip, error) {
	if days <= 0 {
		return nil, nil
	}

	rows, err := s.db.Query(ctx, generateTripsQuery, from.UTC().Format(time.DateOnly), days)
	if err != nil {
		return nil, fmt.Errorf("generate trips: %w", err)
	}
	trips, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Trip, error) {
		var t Trip
		err := row.Scan(&t.ID, &t.RouteID, &t.DepartureAt)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("generate trips: %w", err)
	}
	return trips, nil
}

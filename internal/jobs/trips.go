package jobs

import (
	"context"
	"time"

	"github.com/dmitrymomot/ridekit/pkg/fanout"
	"github.com/dmitrymomot/ridekit/pkg/logger"
)

// TripChange is the payload of entity:changed for generated trips
type TripChange struct {
	Entity      string    `json:"entity"`
	Action      string    `json:"action"`
	ID          string    `json:"id,omitempty"`
	RouteID     string    `json:"route_id,omitempty"`
	DepartureAt time.Time `json:"departure_at,omitzero"`
	Count       int       `json:"count,omitempty"`
}

// GenerateTrips materializes trips for the upcoming days
func (h *Handlers) GenerateTrips(ctx context.Context, p GeneratePayload) error {
	days := h.cfg.TripDaysAhead
	if p.DaysAhead > 0 {
		days = p.DaysAhead
	}

	trips, err := h.trips.Generate(ctx, h.now(), days)
	if err != nil {
		return err
	}

	h.logger.InfoContext(ctx, "trips generated",
		logger.Count(len(trips)),
		logger.Component(TripsGenerate.Name()))

	if len(trips) == 0 {
		return nil
	}

	h.publish(ctx, fanout.AdminRoom, fanout.KindEntityChanged, TripChange{
		Entity: "trip",
		Action: "generated",
		Count:  len(trips),
	})
	for _, t := range trips {
		h.publish(ctx, fanout.TripRoom(t.ID), fanout.KindEntityChanged, TripChange{
			Entity:      "trip",
			Action:      "created",
			ID:          t.ID,
			RouteID:     t.RouteID,
			DepartureAt: t.DepartureAt,
		})
	}
	return nil
}

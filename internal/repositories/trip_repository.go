package repositories

import (
	"context"

	"github.com/proimagery/ferdi-app-sub000/internal/models"
)

// TripRepository defines remote persistence for trips and their stops.
type TripRepository interface {
	ListTrips(ctx context.Context, userID string) ([]models.Trip, error)
	// InsertTrip stores the trip and its stops and returns the assigned id.
	InsertTrip(ctx context.Context, userID string, trip models.Trip) (string, error)
	// UpdateTrip writes the parent row only.
	UpdateTrip(ctx context.Context, userID string, trip models.Trip) error
	// ReplaceStops deletes every stop of the user's trip and inserts stops in
	// order. A trip owned by someone else is reported as ErrNotFound.
	ReplaceStops(ctx context.Context, userID, tripID string, stops []models.Stop) error
	DeleteTrip(ctx context.Context, userID, tripID string) error
}

// AtomicTripWriter is implemented by backends that can update a trip and
// replace its stops in one transaction.
type AtomicTripWriter interface {
	UpdateTripWithStops(ctx context.Context, userID string, trip models.Trip) error
}

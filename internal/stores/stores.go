// Package stores binds the optimistic collection engine to each user-owned
// entity and its remote repository.
package stores

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/proimagery/ferdi-app-sub000/internal/clock"
	"github.com/proimagery/ferdi-app-sub000/internal/logging"
	"github.com/proimagery/ferdi-app-sub000/internal/models"
	"github.com/proimagery/ferdi-app-sub000/internal/optimistic"
	"github.com/proimagery/ferdi-app-sub000/internal/repositories"
)

// Options are shared by every store of one session.
type Options struct {
	UserID   string
	Executor optimistic.Executor
	Clock    clock.Clock
	Logger   *slog.Logger
}

func config[T any](name string, opts Options, remote optimistic.Remote[T], ident optimistic.Identity[T]) optimistic.Config[T] {
	return optimistic.Config[T]{
		Name:     name,
		UserID:   opts.UserID,
		Remote:   remote,
		Identity: ident,
		Executor: opts.Executor,
		Clock:    opts.Clock,
		Logger:   opts.Logger,
	}
}

// Trips is the optimistic trip collection.
type Trips struct {
	*optimistic.Collection[models.Trip]
}

// NewTrips binds a trip collection to repo.
func NewTrips(repo repositories.TripRepository, opts Options) *Trips {
	var remote optimistic.Remote[models.Trip]
	if repo != nil {
		remote = tripRemote{repo: repo}
	}
	return &Trips{optimistic.New(config("trips", opts, remote, optimistic.Identity[models.Trip]{
		ID: func(t models.Trip) string { return t.ID },
		SetID: func(t models.Trip, id string) models.Trip {
			t.ID = id
			return t
		},
		Clone: models.Trip.Clone,
	}))}
}

// Create adds a trip with stop positions normalized to their order.
func (t *Trips) Create(ctx context.Context, trip models.Trip) (string, error) {
	return t.Collection.Create(ctx, withOrderedStops(trip))
}

// Update replaces the trip at index; its stops are replaced wholesale.
func (t *Trips) Update(ctx context.Context, index int, trip models.Trip) error {
	return t.Collection.Update(ctx, index, withOrderedStops(trip))
}

func withOrderedStops(trip models.Trip) models.Trip {
	trip = trip.Clone()
	for i := range trip.Stops {
		trip.Stops[i].Position = i
	}
	return trip
}

type tripRemote struct {
	repo repositories.TripRepository
}

func (r tripRemote) List(ctx context.Context, userID string) ([]models.Trip, error) {
	return r.repo.ListTrips(ctx, userID)
}

func (r tripRemote) Insert(ctx context.Context, userID string, trip models.Trip) (string, error) {
	return r.repo.InsertTrip(ctx, userID, trip)
}

// Update writes the parent row and then replaces the stops. Backends that
// support it do both in one transaction; otherwise a failure between the two
// writes leaves the remote trip with its previous stops.
func (r tripRemote) Update(ctx context.Context, userID string, trip models.Trip) error {
	if atomic, ok := r.repo.(repositories.AtomicTripWriter); ok {
		return atomic.UpdateTripWithStops(ctx, userID, trip)
	}

	if err := r.repo.UpdateTrip(ctx, userID, trip); err != nil {
		return err
	}
	if err := r.repo.ReplaceStops(ctx, userID, trip.ID, trip.Stops); err != nil {
		logging.FromContext(ctx).Error("trip saved but stop replace failed", "trip_id", trip.ID, "error", err)
		return fmt.Errorf("replace stops: %w", err)
	}
	return nil
}

func (r tripRemote) Delete(ctx context.Context, userID string, trip models.Trip) error {
	return r.repo.DeleteTrip(ctx, userID, trip.ID)
}

// Budgets is the optimistic budget collection.
type Budgets struct {
	*optimistic.Collection[models.Budget]
}

// NewBudgets binds a budget collection to repo.
func NewBudgets(repo repositories.BudgetRepository, opts Options) *Budgets {
	var remote optimistic.Remote[models.Budget]
	if repo != nil {
		remote = budgetRemote{repo: repo}
	}
	return &Budgets{optimistic.New(config("budgets", opts, remote, optimistic.Identity[models.Budget]{
		ID: func(b models.Budget) string { return b.ID },
		SetID: func(b models.Budget, id string) models.Budget {
			b.ID = id
			return b
		},
		Clone: models.Budget.Clone,
	}))}
}

// ForTrip returns the budgets that reference tripID.
func (b *Budgets) ForTrip(tripID string) []models.Budget {
	var out []models.Budget
	for _, budget := range b.Items() {
		if budget.TripID != nil && *budget.TripID == tripID {
			out = append(out, budget)
		}
	}
	return out
}

type budgetRemote struct {
	repo repositories.BudgetRepository
}

func (r budgetRemote) List(ctx context.Context, userID string) ([]models.Budget, error) {
	return r.repo.ListBudgets(ctx, userID)
}

func (r budgetRemote) Insert(ctx context.Context, userID string, b models.Budget) (string, error) {
	return r.repo.InsertBudget(ctx, userID, b)
}

func (r budgetRemote) Update(ctx context.Context, userID string, b models.Budget) error {
	return r.repo.UpdateBudget(ctx, userID, b)
}

func (r budgetRemote) Delete(ctx context.Context, userID string, b models.Budget) error {
	return r.repo.DeleteBudget(ctx, userID, b.ID)
}

// VisitedCities is the optimistic visited city collection.
type VisitedCities struct {
	*optimistic.Collection[models.VisitedCity]
}

// NewVisitedCities binds a visited city collection to repo.
func NewVisitedCities(repo repositories.VisitedCityRepository, opts Options) *VisitedCities {
	var remote optimistic.Remote[models.VisitedCity]
	if repo != nil {
		remote = visitedRemote{repo: repo}
	}
	return &VisitedCities{optimistic.New(config("visited_cities", opts, remote, optimistic.Identity[models.VisitedCity]{
		ID: func(c models.VisitedCity) string { return c.ID },
		SetID: func(c models.VisitedCity, id string) models.VisitedCity {
			c.ID = id
			return c
		},
	}))}
}

type visitedRemote struct {
	repo repositories.VisitedCityRepository
}

func (r visitedRemote) List(ctx context.Context, userID string) ([]models.VisitedCity, error) {
	return r.repo.ListVisitedCities(ctx, userID)
}

func (r visitedRemote) Insert(ctx context.Context, userID string, c models.VisitedCity) (string, error) {
	return r.repo.InsertVisitedCity(ctx, userID, c)
}

func (r visitedRemote) Update(ctx context.Context, userID string, c models.VisitedCity) error {
	return r.repo.UpdateVisitedCity(ctx, userID, c)
}

func (r visitedRemote) Delete(ctx context.Context, userID string, c models.VisitedCity) error {
	return r.repo.DeleteVisitedCity(ctx, userID, c.ID)
}

// CompletedCountries is the optimistic completed country collection.
type CompletedCountries struct {
	*optimistic.Collection[models.CompletedCountry]
}

// NewCompletedCountries binds a completed country collection to repo.
func NewCompletedCountries(repo repositories.CompletedCountryRepository, opts Options) *CompletedCountries {
	var remote optimistic.Remote[models.CompletedCountry]
	if repo != nil {
		remote = completedRemote{repo: repo}
	}
	return &CompletedCountries{optimistic.New(config("completed_countries", opts, remote, optimistic.Identity[models.CompletedCountry]{
		ID: func(c models.CompletedCountry) string { return c.ID },
		SetID: func(c models.CompletedCountry, id string) models.CompletedCountry {
			c.ID = id
			return c
		},
	}))}
}

type completedRemote struct {
	repo repositories.CompletedCountryRepository
}

func (r completedRemote) List(ctx context.Context, userID string) ([]models.CompletedCountry, error) {
	return r.repo.ListCompletedCountries(ctx, userID)
}

func (r completedRemote) Insert(ctx context.Context, userID string, c models.CompletedCountry) (string, error) {
	return r.repo.InsertCompletedCountry(ctx, userID, c)
}

func (r completedRemote) Update(ctx context.Context, userID string, c models.CompletedCountry) error {
	return r.repo.UpdateCompletedCountry(ctx, userID, c)
}

func (r completedRemote) Delete(ctx context.Context, userID string, c models.CompletedCountry) error {
	return r.repo.DeleteCompletedCountry(ctx, userID, c.ID)
}

// Session groups the collections of one user.
type Session struct {
	Trips              *Trips
	Budgets            *Budgets
	VisitedCities      *VisitedCities
	CompletedCountries *CompletedCountries
}

// Repositories are the remote ports a Session persists to.
type Repositories struct {
	Trips              repositories.TripRepository
	Budgets            repositories.BudgetRepository
	VisitedCities      repositories.VisitedCityRepository
	CompletedCountries repositories.CompletedCountryRepository
}

// NewSession builds every collection for opts.UserID.
func NewSession(repos Repositories, opts Options) *Session {
	return &Session{
		Trips:              NewTrips(repos.Trips, opts),
		Budgets:            NewBudgets(repos.Budgets, opts),
		VisitedCities:      NewVisitedCities(repos.VisitedCities, opts),
		CompletedCountries: NewCompletedCountries(repos.CompletedCountries, opts),
	}
}

// Load loads every collection. A failing collection is left unchanged; the
// first error is returned after all loads were attempted.
func (s *Session) Load(ctx context.Context) error {
	loaders := []func(context.Context) error{
		s.Trips.Load,
		s.Budgets.Load,
		s.VisitedCities.Load,
		s.CompletedCountries.Load,
	}
	var first error
	for _, load := range loaders {
		if err := load(ctx); err != nil {
			logging.FromContext(ctx).Warn("collection load failed", "error", err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// Close closes every collection.
func (s *Session) Close() {
	s.Trips.Close()
	s.Budgets.Close()
	s.VisitedCities.Close()
	s.CompletedCountries.Close()
}

package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/proimagery/ferdi-app-sub000/internal/models"
)

// Memory is an in-process remote store used for local development and tests.
// It implements every repository port and the buddy change feed.
type Memory struct {
	mu        sync.Mutex
	now       func() time.Time
	seq       int64
	trips     map[string]ownedTrip
	budgets   map[string]owned[models.Budget]
	visited   map[string]owned[models.VisitedCity]
	completed map[string]owned[models.CompletedCountry]
	edges     map[string]models.BuddyEdge
	profiles  map[string]models.Profile
	countries map[string]models.Country

	subscribers map[int]subscriber
	nextSub     int
}

type owned[T any] struct {
	userID string
	seq    int64
	value  T
}

type ownedTrip = owned[models.Trip]

type subscriber struct {
	buddyID string
	ch      chan BuddyChange
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		now:         func() time.Time { return time.Now().UTC() },
		trips:       make(map[string]ownedTrip),
		budgets:     make(map[string]owned[models.Budget]),
		visited:     make(map[string]owned[models.VisitedCity]),
		completed:   make(map[string]owned[models.CompletedCountry]),
		edges:       make(map[string]models.BuddyEdge),
		profiles:    make(map[string]models.Profile),
		countries:   make(map[string]models.Country),
		subscribers: make(map[int]subscriber),
	}
}

func listOwned[T any](m map[string]owned[T], userID string, clone func(T) T) []T {
	rows := make([]owned[T], 0)
	for _, row := range m {
		if row.userID == userID {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })

	out := make([]T, 0, len(rows))
	for _, row := range rows {
		out = append(out, clone(row.value))
	}
	return out
}

func identity[T any](v T) T { return v }

func (m *Memory) nextSeq() int64 {
	m.seq++
	return m.seq
}

func (m *Memory) ListTrips(_ context.Context, userID string) ([]models.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return listOwned(m.trips, userID, models.Trip.Clone), nil
}

func (m *Memory) InsertTrip(_ context.Context, userID string, trip models.Trip) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	trip = trip.Clone()
	trip.ID = uuid.NewString()
	trip.Stops = renumber(trip.Stops)
	m.trips[trip.ID] = ownedTrip{userID: userID, seq: m.nextSeq(), value: trip}
	return trip.ID, nil
}

func (m *Memory) UpdateTrip(_ context.Context, userID string, trip models.Trip) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.trips[trip.ID]
	if !ok || row.userID != userID {
		return ErrNotFound
	}
	row.value.Name = trip.Name
	row.value.TotalBudget = trip.TotalBudget
	m.trips[trip.ID] = row
	return nil
}

func (m *Memory) ReplaceStops(_ context.Context, userID, tripID string, stops []models.Stop) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.trips[tripID]
	if !ok || row.userID != userID {
		return ErrNotFound
	}
	row.value.Stops = renumber(append([]models.Stop(nil), stops...))
	m.trips[tripID] = row
	return nil
}

func (m *Memory) DeleteTrip(_ context.Context, userID, tripID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.trips[tripID]
	if !ok || row.userID != userID {
		return ErrNotFound
	}
	delete(m.trips, tripID)
	for id, b := range m.budgets {
		if b.value.TripID != nil && *b.value.TripID == tripID {
			b.value.TripID = nil
			m.budgets[id] = b
		}
	}
	return nil
}

func renumber(stops []models.Stop) []models.Stop {
	for i := range stops {
		stops[i].Position = i
	}
	return stops
}

func (m *Memory) ListBudgets(_ context.Context, userID string) ([]models.Budget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return listOwned(m.budgets, userID, models.Budget.Clone), nil
}

func (m *Memory) InsertBudget(_ context.Context, userID string, budget models.Budget) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if budget.TripID != nil {
		if _, ok := m.trips[*budget.TripID]; !ok {
			return "", ErrNotFound
		}
	}
	budget = budget.Clone()
	budget.ID = uuid.NewString()
	m.budgets[budget.ID] = owned[models.Budget]{userID: userID, seq: m.nextSeq(), value: budget}
	return budget.ID, nil
}

func (m *Memory) UpdateBudget(_ context.Context, userID string, budget models.Budget) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.budgets[budget.ID]
	if !ok || row.userID != userID {
		return ErrNotFound
	}
	if budget.TripID != nil {
		if _, ok := m.trips[*budget.TripID]; !ok {
			return ErrNotFound
		}
	}
	row.value = budget.Clone()
	m.budgets[budget.ID] = row
	return nil
}

func (m *Memory) DeleteBudget(_ context.Context, userID, budgetID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return deleteOwnedRow(m.budgets, userID, budgetID)
}

func deleteOwnedRow[T any](rows map[string]owned[T], userID, id string) error {
	row, ok := rows[id]
	if !ok || row.userID != userID {
		return ErrNotFound
	}
	delete(rows, id)
	return nil
}

func (m *Memory) ListVisitedCities(_ context.Context, userID string) ([]models.VisitedCity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return listOwned(m.visited, userID, identity[models.VisitedCity]), nil
}

func (m *Memory) InsertVisitedCity(_ context.Context, userID string, city models.VisitedCity) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	city.ID = uuid.NewString()
	m.visited[city.ID] = owned[models.VisitedCity]{userID: userID, seq: m.nextSeq(), value: city}
	return city.ID, nil
}

func (m *Memory) UpdateVisitedCity(_ context.Context, userID string, city models.VisitedCity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.visited[city.ID]
	if !ok || row.userID != userID {
		return ErrNotFound
	}
	row.value = city
	m.visited[city.ID] = row
	return nil
}

func (m *Memory) DeleteVisitedCity(_ context.Context, userID, cityID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return deleteOwnedRow(m.visited, userID, cityID)
}

func (m *Memory) ListCompletedCountries(_ context.Context, userID string) ([]models.CompletedCountry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return listOwned(m.completed, userID, identity[models.CompletedCountry]), nil
}

func (m *Memory) InsertCompletedCountry(_ context.Context, userID string, country models.CompletedCountry) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	country.ID = uuid.NewString()
	m.completed[country.ID] = owned[models.CompletedCountry]{userID: userID, seq: m.nextSeq(), value: country}
	return country.ID, nil
}

func (m *Memory) UpdateCompletedCountry(_ context.Context, userID string, country models.CompletedCountry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.completed[country.ID]
	if !ok || row.userID != userID {
		return ErrNotFound
	}
	row.value = country
	m.completed[country.ID] = row
	return nil
}

func (m *Memory) DeleteCompletedCountry(_ context.Context, userID, countryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return deleteOwnedRow(m.completed, userID, countryID)
}

func (m *Memory) ListEdges(_ context.Context, userID string) ([]models.BuddyEdge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var edges []models.BuddyEdge
	for _, e := range m.edges {
		if e.UserID == userID || e.BuddyID == userID {
			edges = append(edges, e)
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].CreatedAt.Equal(edges[j].CreatedAt) {
			return edges[i].ID < edges[j].ID
		}
		return edges[i].CreatedAt.Before(edges[j].CreatedAt)
	})
	return edges, nil
}

func (m *Memory) InsertEdge(_ context.Context, edge models.BuddyEdge) (models.BuddyEdge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if edge.UserID == edge.BuddyID {
		return models.BuddyEdge{}, ErrConflict
	}
	for _, e := range m.edges {
		if samePair(e, edge.UserID, edge.BuddyID) {
			return models.BuddyEdge{}, ErrConflict
		}
	}

	edge.ID = uuid.NewString()
	edge.CreatedAt = m.now()
	m.edges[edge.ID] = edge
	m.publishLocked(ChangeInsert, edge)
	return edge, nil
}

func samePair(e models.BuddyEdge, a, b string) bool {
	return (e.UserID == a && e.BuddyID == b) || (e.UserID == b && e.BuddyID == a)
}

func (m *Memory) UpdateEdgeStatus(_ context.Context, edgeID string, status models.BuddyStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.edges[edgeID]
	if !ok {
		return ErrNotFound
	}
	e.Status = status
	m.edges[edgeID] = e
	m.publishLocked(ChangeUpdate, e)
	return nil
}

func (m *Memory) SetEdgeHighlighted(_ context.Context, edgeID string, highlighted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.edges[edgeID]
	if !ok {
		return ErrNotFound
	}
	e.Highlighted = highlighted
	m.edges[edgeID] = e
	m.publishLocked(ChangeUpdate, e)
	return nil
}

func (m *Memory) DeleteEdge(_ context.Context, edgeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.edges[edgeID]
	if !ok {
		return ErrNotFound
	}
	delete(m.edges, edgeID)
	m.publishLocked(ChangeDelete, e)
	return nil
}

// SubscribeBuddyChanges delivers changes to edges addressed to buddyID. Slow
// subscribers drop events rather than block writers.
func (m *Memory) SubscribeBuddyChanges(ctx context.Context, buddyID string) (<-chan BuddyChange, error) {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	ch := make(chan BuddyChange, 16)
	m.subscribers[id] = subscriber{buddyID: buddyID, ch: ch}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.subscribers, id)
		close(ch)
		m.mu.Unlock()
	}()

	return ch, nil
}

func (m *Memory) publishLocked(op ChangeOp, edge models.BuddyEdge) {
	for _, sub := range m.subscribers {
		if sub.buddyID != edge.BuddyID {
			continue
		}
		select {
		case sub.ch <- BuddyChange{Op: op, Edge: edge}:
		default:
		}
	}
}

func (m *Memory) ProfilesByIDs(_ context.Context, ids []string) ([]models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var profiles []models.Profile
	for _, id := range ids {
		if p, ok := m.profiles[id]; ok {
			profiles = append(profiles, p)
		}
	}
	sort.Slice(profiles, func(i, j int) bool {
		if profiles[i].DisplayName == profiles[j].DisplayName {
			return profiles[i].ID < profiles[j].ID
		}
		return profiles[i].DisplayName < profiles[j].DisplayName
	})
	return profiles, nil
}

func (m *Memory) UpsertProfile(_ context.Context, p models.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.ID] = p
	return nil
}

func (m *Memory) ListCountries(_ context.Context) ([]models.Country, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	countries := make([]models.Country, 0, len(m.countries))
	for _, c := range m.countries {
		countries = append(countries, c)
	}
	sort.Slice(countries, func(i, j int) bool { return countries[i].Name < countries[j].Name })
	return countries, nil
}

func (m *Memory) UpsertCountries(_ context.Context, countries []models.Country) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range countries {
		m.countries[c.Code] = c
	}
	return nil
}

var _ TripRepository = (*Memory)(nil)
var _ BudgetRepository = (*Memory)(nil)
var _ VisitedCityRepository = (*Memory)(nil)
var _ CompletedCountryRepository = (*Memory)(nil)
var _ BuddyRepository = (*Memory)(nil)
var _ ProfileRepository = (*Memory)(nil)
var _ CountryCatalogRepository = (*Memory)(nil)
var _ BuddyChangeFeed = (*Memory)(nil)

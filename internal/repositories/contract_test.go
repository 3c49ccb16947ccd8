package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/proimagery/ferdi-app-sub000/internal/models"
)

// Shared behaviour every remote store adapter must satisfy.

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func runTripContract(t *testing.T, repo TripRepository) {
	t.Helper()
	ctx := context.Background()
	owner := uuid.NewString()
	other := uuid.NewString()

	trip := models.Trip{
		Name:        "Japan Trip",
		TotalBudget: decimal.RequireFromString("2500.50"),
		Stops: []models.Stop{
			{Country: "Japan", StartDate: day(2025, 4, 1), EndDate: day(2025, 4, 10)},
			{Country: "South Korea", StartDate: day(2025, 4, 10), EndDate: day(2025, 4, 15)},
		},
	}

	id, err := repo.InsertTrip(ctx, owner, trip)
	if err != nil {
		t.Fatalf("insert trip: %v", err)
	}
	if id == "" {
		t.Fatal("expected assigned id")
	}

	trips, err := repo.ListTrips(ctx, owner)
	if err != nil {
		t.Fatalf("list trips: %v", err)
	}
	if len(trips) != 1 || trips[0].ID != id || trips[0].Name != "Japan Trip" {
		t.Fatalf("unexpected trips %+v", trips)
	}
	if !trips[0].TotalBudget.Equal(trip.TotalBudget) {
		t.Fatalf("expected budget %s got %s", trip.TotalBudget, trips[0].TotalBudget)
	}
	if len(trips[0].Stops) != 2 || trips[0].Stops[0].Country != "Japan" || trips[0].Stops[1].Position != 1 {
		t.Fatalf("unexpected stops %+v", trips[0].Stops)
	}

	if others, _ := repo.ListTrips(ctx, other); len(others) != 0 {
		t.Fatalf("expected trips scoped to owner, got %+v", others)
	}

	updated := trips[0]
	updated.Name = "Japan & Korea"
	if err := repo.UpdateTrip(ctx, owner, updated); err != nil {
		t.Fatalf("update trip: %v", err)
	}
	if err := repo.ReplaceStops(ctx, other, id, []models.Stop{{Country: "Nepal", StartDate: day(2025, 5, 1), EndDate: day(2025, 5, 3)}}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound replacing another user's stops, got %v", err)
	}
	if err := repo.ReplaceStops(ctx, owner, id, []models.Stop{{Country: "Taiwan", StartDate: day(2025, 5, 1), EndDate: day(2025, 5, 3)}}); err != nil {
		t.Fatalf("replace stops: %v", err)
	}

	trips, _ = repo.ListTrips(ctx, owner)
	if trips[0].Name != "Japan & Korea" || len(trips[0].Stops) != 1 || trips[0].Stops[0].Country != "Taiwan" {
		t.Fatalf("expected updated trip with replaced stops, got %+v", trips[0])
	}

	if err := repo.UpdateTrip(ctx, other, updated); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound updating another user's trip, got %v", err)
	}

	if atomic, ok := repo.(AtomicTripWriter); ok {
		updated.Name = "Atomic"
		updated.Stops = []models.Stop{{Country: "Vietnam", StartDate: day(2025, 6, 1), EndDate: day(2025, 6, 2)}}
		if err := atomic.UpdateTripWithStops(ctx, owner, updated); err != nil {
			t.Fatalf("atomic update: %v", err)
		}
		trips, _ = repo.ListTrips(ctx, owner)
		if trips[0].Name != "Atomic" || trips[0].Stops[0].Country != "Vietnam" {
			t.Fatalf("unexpected atomic update result %+v", trips[0])
		}
	}

	if err := repo.DeleteTrip(ctx, owner, id); err != nil {
		t.Fatalf("delete trip: %v", err)
	}
	if err := repo.DeleteTrip(ctx, owner, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting twice, got %v", err)
	}
}

func runBudgetContract(t *testing.T, trips TripRepository, repo BudgetRepository) {
	t.Helper()
	ctx := context.Background()
	owner := uuid.NewString()

	tripID, err := trips.InsertTrip(ctx, owner, models.Trip{Name: "Peru"})
	if err != nil {
		t.Fatalf("insert trip: %v", err)
	}

	budget := models.Budget{
		TripID: &tripID,
		Payload: models.BudgetPayload{
			Name:     "Peru spending",
			Currency: "PEN",
			Total:    decimal.NewFromInt(4000),
			Spent:    decimal.NewFromInt(150),
			Categories: []models.BudgetCategory{
				{Name: "Food", Amount: decimal.NewFromInt(800)},
			},
		},
	}
	id, err := repo.InsertBudget(ctx, owner, budget)
	if err != nil {
		t.Fatalf("insert budget: %v", err)
	}

	standalone, err := repo.InsertBudget(ctx, owner, models.Budget{Payload: models.BudgetPayload{Name: "Gear", Currency: "USD"}})
	if err != nil {
		t.Fatalf("insert standalone budget: %v", err)
	}

	budgets, err := repo.ListBudgets(ctx, owner)
	if err != nil {
		t.Fatalf("list budgets: %v", err)
	}
	if len(budgets) != 2 {
		t.Fatalf("expected 2 budgets got %d", len(budgets))
	}
	if budgets[0].ID != id || budgets[0].TripID == nil || *budgets[0].TripID != tripID {
		t.Fatalf("unexpected trip-linked budget %+v", budgets[0])
	}
	if !budgets[0].Payload.Total.Equal(decimal.NewFromInt(4000)) || len(budgets[0].Payload.Categories) != 1 {
		t.Fatalf("unexpected payload %+v", budgets[0].Payload)
	}
	if budgets[1].ID != standalone || budgets[1].TripID != nil {
		t.Fatalf("unexpected standalone budget %+v", budgets[1])
	}

	budgets[1].Payload.Spent = decimal.NewFromInt(99)
	if err := repo.UpdateBudget(ctx, owner, budgets[1]); err != nil {
		t.Fatalf("update budget: %v", err)
	}
	budgets, _ = repo.ListBudgets(ctx, owner)
	if !budgets[1].Payload.Spent.Equal(decimal.NewFromInt(99)) {
		t.Fatalf("expected updated spent, got %s", budgets[1].Payload.Spent)
	}

	if err := repo.DeleteBudget(ctx, owner, id); err != nil {
		t.Fatalf("delete budget: %v", err)
	}
	if err := repo.DeleteBudget(ctx, uuid.NewString(), standalone); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting another user's budget, got %v", err)
	}
}

func runPlacesContract(t *testing.T, visited VisitedCityRepository, completed CompletedCountryRepository) {
	t.Helper()
	ctx := context.Background()
	owner := uuid.NewString()

	cityID, err := visited.InsertVisitedCity(ctx, owner, models.VisitedCity{City: "Kyoto", Country: "Japan", VisitedOn: day(2024, 11, 3)})
	if err != nil {
		t.Fatalf("insert visited city: %v", err)
	}
	cities, err := visited.ListVisitedCities(ctx, owner)
	if err != nil || len(cities) != 1 || cities[0].ID != cityID || cities[0].City != "Kyoto" {
		t.Fatalf("unexpected visited cities %+v err=%v", cities, err)
	}
	cities[0].City = "Osaka"
	if err := visited.UpdateVisitedCity(ctx, owner, cities[0]); err != nil {
		t.Fatalf("update visited city: %v", err)
	}
	if err := visited.DeleteVisitedCity(ctx, owner, cityID); err != nil {
		t.Fatalf("delete visited city: %v", err)
	}
	if cities, _ := visited.ListVisitedCities(ctx, owner); len(cities) != 0 {
		t.Fatalf("expected no visited cities, got %+v", cities)
	}

	countryID, err := completed.InsertCompletedCountry(ctx, owner, models.CompletedCountry{Country: "Iceland", CompletedOn: day(2023, 7, 1)})
	if err != nil {
		t.Fatalf("insert completed country: %v", err)
	}
	countries, err := completed.ListCompletedCountries(ctx, owner)
	if err != nil || len(countries) != 1 || countries[0].ID != countryID {
		t.Fatalf("unexpected completed countries %+v err=%v", countries, err)
	}
	if err := completed.DeleteCompletedCountry(ctx, owner, countryID); err != nil {
		t.Fatalf("delete completed country: %v", err)
	}
	if err := completed.UpdateCompletedCountry(ctx, owner, countries[0]); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound updating deleted row, got %v", err)
	}
}

func runBuddyContract(t *testing.T, repo BuddyRepository, profiles ProfileRepository) {
	t.Helper()
	ctx := context.Background()
	alice, bob := uuid.NewString(), uuid.NewString()

	edge, err := repo.InsertEdge(ctx, models.BuddyEdge{UserID: alice, BuddyID: bob, Status: models.BuddyStatusPending})
	if err != nil {
		t.Fatalf("insert edge: %v", err)
	}
	if edge.ID == "" || edge.CreatedAt.IsZero() {
		t.Fatalf("expected assigned id and timestamp, got %+v", edge)
	}

	if _, err := repo.InsertEdge(ctx, models.BuddyEdge{UserID: bob, BuddyID: alice, Status: models.BuddyStatusPending}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for reverse edge, got %v", err)
	}

	for _, who := range []string{alice, bob} {
		edges, err := repo.ListEdges(ctx, who)
		if err != nil || len(edges) != 1 || edges[0].ID != edge.ID {
			t.Fatalf("expected one shared edge for %s, got %+v err=%v", who, edges, err)
		}
	}

	if err := repo.UpdateEdgeStatus(ctx, edge.ID, models.BuddyStatusAccepted); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := repo.SetEdgeHighlighted(ctx, edge.ID, true); err != nil {
		t.Fatalf("highlight: %v", err)
	}
	edges, _ := repo.ListEdges(ctx, alice)
	if edges[0].Status != models.BuddyStatusAccepted || !edges[0].Highlighted {
		t.Fatalf("unexpected edge %+v", edges[0])
	}

	if err := repo.DeleteEdge(ctx, edge.ID); err != nil {
		t.Fatalf("delete edge: %v", err)
	}
	if err := repo.DeleteEdge(ctx, edge.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting twice, got %v", err)
	}

	if err := profiles.UpsertProfile(ctx, models.Profile{ID: alice, DisplayName: "Alice"}); err != nil {
		t.Fatalf("upsert profile: %v", err)
	}
	if err := profiles.UpsertProfile(ctx, models.Profile{ID: alice, DisplayName: "Alice K", HomeCountry: "NZ"}); err != nil {
		t.Fatalf("upsert profile again: %v", err)
	}
	got, err := profiles.ProfilesByIDs(ctx, []string{alice, bob})
	if err != nil {
		t.Fatalf("profiles by ids: %v", err)
	}
	if len(got) != 1 || got[0].DisplayName != "Alice K" || got[0].HomeCountry != "NZ" {
		t.Fatalf("unexpected profiles %+v", got)
	}
}

func runCountryCatalogContract(t *testing.T, repo CountryCatalogRepository) {
	t.Helper()
	ctx := context.Background()

	if err := repo.UpsertCountries(ctx, []models.Country{
		{Code: "JP", Name: "Japan", Currency: "JPY"},
		{Code: "FR", Name: "France", Currency: "EUR"},
	}); err != nil {
		t.Fatalf("upsert countries: %v", err)
	}
	if err := repo.UpsertCountries(ctx, []models.Country{{Code: "JP", Name: "Japan", Currency: "JPY", Capital: "Tokyo"}}); err != nil {
		t.Fatalf("upsert again: %v", err)
	}

	countries, err := repo.ListCountries(ctx)
	if err != nil {
		t.Fatalf("list countries: %v", err)
	}
	if len(countries) != 2 || countries[0].Code != "FR" || countries[1].Capital != "Tokyo" {
		t.Fatalf("unexpected countries %+v", countries)
	}
}

func runBuddyFeedContract(t *testing.T, repo BuddyRepository, feed BuddyChangeFeed) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	alice, bob, carol := uuid.NewString(), uuid.NewString(), uuid.NewString()

	changes, err := feed.SubscribeBuddyChanges(ctx, bob)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if _, err := repo.InsertEdge(context.Background(), models.BuddyEdge{UserID: alice, BuddyID: carol, Status: models.BuddyStatusPending}); err != nil {
		t.Fatalf("insert unrelated edge: %v", err)
	}
	edge, err := repo.InsertEdge(context.Background(), models.BuddyEdge{UserID: alice, BuddyID: bob, Status: models.BuddyStatusPending})
	if err != nil {
		t.Fatalf("insert edge: %v", err)
	}

	select {
	case change := <-changes:
		if change.Op != ChangeInsert || change.Edge.ID != edge.ID || change.Edge.UserID != alice {
			t.Fatalf("unexpected change %+v", change)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for buddy change")
	}

	cancel()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-changes:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("expected feed to close after cancel")
		}
	}
}

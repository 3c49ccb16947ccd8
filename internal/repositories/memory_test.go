package repositories

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/proimagery/ferdi-app-sub000/internal/models"
)

func tripNamed(name string) models.Trip {
	return models.Trip{Name: name, TotalBudget: decimal.NewFromInt(1000)}
}

func budgetFor(tripID *string) models.Budget {
	return models.Budget{TripID: tripID, Payload: models.BudgetPayload{Name: "Main", Currency: "CLP"}}
}

func TestMemoryTripContract(t *testing.T) {
	runTripContract(t, NewMemory())
}

func TestMemoryBudgetContract(t *testing.T) {
	m := NewMemory()
	runBudgetContract(t, m, m)
}

func TestMemoryPlacesContract(t *testing.T) {
	m := NewMemory()
	runPlacesContract(t, m, m)
}

func TestMemoryBuddyContract(t *testing.T) {
	m := NewMemory()
	runBuddyContract(t, m, m)
}

func TestMemoryCountryCatalogContract(t *testing.T) {
	runCountryCatalogContract(t, NewMemory())
}

func TestMemoryBuddyFeedContract(t *testing.T) {
	m := NewMemory()
	runBuddyFeedContract(t, m, m)
}

func TestMemoryDeleteTripDetachesBudgets(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	tripID, _ := m.InsertTrip(ctx, "u1", tripNamed("Chile"))
	budgetID, err := m.InsertBudget(ctx, "u1", budgetFor(&tripID))
	if err != nil {
		t.Fatalf("insert budget: %v", err)
	}
	if err := m.DeleteTrip(ctx, "u1", tripID); err != nil {
		t.Fatalf("delete trip: %v", err)
	}

	budgets, _ := m.ListBudgets(ctx, "u1")
	if len(budgets) != 1 || budgets[0].ID != budgetID || budgets[0].TripID != nil {
		t.Fatalf("expected budget detached from deleted trip, got %+v", budgets)
	}
}

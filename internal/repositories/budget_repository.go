package repositories

import (
	"context"

	"github.com/proimagery/ferdi-app-sub000/internal/models"
)

// BudgetRepository defines remote persistence for budgets.
type BudgetRepository interface {
	ListBudgets(ctx context.Context, userID string) ([]models.Budget, error)
	InsertBudget(ctx context.Context, userID string, budget models.Budget) (string, error)
	UpdateBudget(ctx context.Context, userID string, budget models.Budget) error
	DeleteBudget(ctx context.Context, userID, budgetID string) error
}

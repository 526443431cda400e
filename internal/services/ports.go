package services

import (
	"context"
	"time"

	"moneta/internal/core"
)

// Ports implemented by the storage layer. Keeping them here lets tests run
// the processor against an in-memory store.
type (
	// RecurringStore persists recurring-expense definitions.
	RecurringStore interface {
		CreateRecurringExpense(ctx context.Context, re core.RecurringExpense) (int64, error)
		GetRecurringExpense(ctx context.Context, ownerID, id int64) (*core.RecurringExpense, error)
		ListRecurringExpenses(ctx context.Context, ownerID int64) ([]core.RecurringExpense, error)
		ListDueRecurringExpenses(ctx context.Context, ownerID int64, asOf core.Date) ([]core.RecurringExpense, error)

		// ClaimDueRecurringExpense advances the schedule only when the stored
		// next_execution_date still equals expectedNext; the boolean reports
		// whether this caller won the claim.
		ClaimDueRecurringExpense(ctx context.Context, id int64, expectedNext core.Date, firedAt time.Time, next core.Date) (bool, error)

		DeactivateRecurringExpense(ctx context.Context, id int64) error
		ToggleRecurringActive(ctx context.Context, ownerID, id int64) (*core.RecurringExpense, error)
		DeleteRecurringExpense(ctx context.Context, ownerID, id int64) error
	}

	// ExpenseStore persists concrete expense rows.
	ExpenseStore interface {
		InsertExpense(ctx context.Context, e core.Expense) (int64, error)
	}
)

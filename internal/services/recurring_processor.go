package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"moneta/internal/core"
)

// RecurringProcessor owns recurring-expense definitions and materializes
// concrete expenses when their execution dates come due.
type RecurringProcessor struct {
	store    RecurringStore
	expenses *ExpenseService
}

// NewRecurringProcessor creates a new recurring expense processor.
func NewRecurringProcessor(store RecurringStore, expenses *ExpenseService) *RecurringProcessor {
	return &RecurringProcessor{
		store:    store,
		expenses: expenses,
	}
}

// CreateDefinition validates a new definition and schedules its first
// execution one full period after the start date.
func (p *RecurringProcessor) CreateDefinition(ctx context.Context, re core.RecurringExpense) (*core.RecurringExpense, error) {
	if err := re.Validate(); err != nil {
		return nil, err
	}

	next, err := core.Advance(re.StartDate, re.Every)
	if err != nil {
		return nil, err
	}
	re.NextExecution = next
	re.Active = true

	id, err := p.store.CreateRecurringExpense(ctx, re)
	if err != nil {
		return nil, fmt.Errorf("create definition: %w", err)
	}
	re.ID = id

	return &re, nil
}

// ProcessDue materializes every active definition whose execution date has
// arrived and returns how many expenses were created.
//
// One expense fires per definition per pass regardless of how many periods
// have elapsed: after a long idle stretch the schedule re-anchors on asOf
// instead of flooding the ledger with backlogged entries. Each definition
// is handled independently; one failure never aborts the pass, and the
// caller may safely re-invoke at any time.
func (p *RecurringProcessor) ProcessDue(ctx context.Context, ownerID int64, asOf core.Date) (int, error) {
	if p.store == nil || p.expenses == nil {
		return 0, fmt.Errorf("processor not properly initialized")
	}

	due, err := p.store.ListDueRecurringExpenses(ctx, ownerID, asOf)
	if err != nil {
		return 0, fmt.Errorf("list due definitions: %w", err)
	}

	slog.InfoContext(ctx, "Processing recurring expenses",
		"total_due", len(due),
		"processing_date", asOf.Format("2006-01-02"))

	processed := 0

	for _, re := range due {
		// A definition past its end date is retired, never fired one last time.
		if re.Expired(asOf) {
			if err := p.store.DeactivateRecurringExpense(ctx, re.ID); err != nil {
				slog.ErrorContext(ctx, "Failed to deactivate expired definition",
					"id", re.ID, "error", err)
			} else {
				slog.InfoContext(ctx, "Retired expired recurring expense",
					"id", re.ID,
					"end_date", re.EndDate.Format("2006-01-02"))
			}
			continue
		}

		next, err := core.Advance(asOf, re.Every)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to compute next execution",
				"id", re.ID, "frequency", re.Every, "error", err)
			continue
		}

		// Advancing the schedule is the claim. When a concurrent pass has
		// already moved next_execution_date, the claim is lost and this
		// window fires exactly once.
		claimed, err := p.store.ClaimDueRecurringExpense(ctx, re.ID, re.NextExecution, asOf.Time, next)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to claim due definition",
				"id", re.ID, "error", err)
			continue
		}
		if !claimed {
			slog.DebugContext(ctx, "Definition already claimed by a concurrent pass", "id", re.ID)
			continue
		}

		expense := core.Expense{
			OwnerID:     re.OwnerID,
			Date:        asOf,
			Description: materializedDescription(re.Description),
			Amount:      re.Amount,
			Currency:    re.Currency,
			Category:    re.Category,
			RecurringID: re.ID,
		}

		if _, err := p.expenses.CreateExpense(ctx, expense); err != nil {
			slog.ErrorContext(ctx, "Failed to materialize claimed expense",
				"recurring_id", re.ID,
				"description", re.Description,
				"error", err)
			continue
		}

		processed++
		slog.InfoContext(ctx, "Materialized expense from recurring definition",
			"recurring_id", re.ID,
			"amount_cents", re.Amount.Cents,
			"frequency", re.Every,
			"next_execution", next.Format("2006-01-02"))
	}

	slog.InfoContext(ctx, "Recurring expense processing complete",
		"processed", processed,
		"total_checked", len(due))

	return processed, nil
}

// ToggleActive flips a definition's active flag without touching its
// schedule.
func (p *RecurringProcessor) ToggleActive(ctx context.Context, ownerID, id int64) (*core.RecurringExpense, error) {
	return p.store.ToggleRecurringActive(ctx, ownerID, id)
}

// Delete hard-deletes a definition. Materialized expenses are unaffected.
func (p *RecurringProcessor) Delete(ctx context.Context, ownerID, id int64) error {
	return p.store.DeleteRecurringExpense(ctx, ownerID, id)
}

// List returns all definitions owned by a user.
func (p *RecurringProcessor) List(ctx context.Context, ownerID int64) ([]core.RecurringExpense, error) {
	return p.store.ListRecurringExpenses(ctx, ownerID)
}

// Get returns a single definition, enforcing ownership.
func (p *RecurringProcessor) Get(ctx context.Context, ownerID, id int64) (*core.RecurringExpense, error) {
	return p.store.GetRecurringExpense(ctx, ownerID, id)
}

func materializedDescription(desc string) string {
	desc = strings.TrimSpace(desc)
	if desc == "" {
		desc = "Scheduled expense"
	}
	return desc + core.AutoDescriptionSuffix
}

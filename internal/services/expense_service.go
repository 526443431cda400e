package services

import (
	"context"
	"fmt"
	"log/slog"

	"moneta/internal/amqp"
	"moneta/internal/core"
)

// ExpenseService persists expenses and publishes write events for
// downstream consumers. The AMQP side is best-effort: a broker outage
// never fails the write.
type ExpenseService struct {
	storage    ExpenseStore
	amqpClient *amqp.Client
}

func NewExpenseService(storage ExpenseStore, amqpClient *amqp.Client) *ExpenseService {
	return &ExpenseService{
		storage:    storage,
		amqpClient: amqpClient,
	}
}

// CreateExpense validates and saves an expense, then publishes an event.
func (s *ExpenseService) CreateExpense(ctx context.Context, e core.Expense) (int64, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}

	id, err := s.storage.InsertExpense(ctx, e)
	if err != nil {
		return 0, fmt.Errorf("save expense: %w", err)
	}

	if err := s.publishEvent(ctx, id, e); err != nil {
		slog.ErrorContext(ctx, "Failed to publish expense event",
			"id", id, "error", err)
		// Don't fail the request - the expense is saved locally
	}

	return id, nil
}

func (s *ExpenseService) publishEvent(ctx context.Context, id int64, e core.Expense) error {
	if s.amqpClient == nil {
		slog.DebugContext(ctx, "AMQP client not available, skipping expense event")
		return nil
	}
	msg := amqp.NewExpenseEventMessage(id, e.RecurringID, e.Amount.Cents, e.Currency)
	return s.amqpClient.PublishExpenseEvent(ctx, msg)
}

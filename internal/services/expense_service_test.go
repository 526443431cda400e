package services

import (
	"context"
	"errors"
	"testing"

	"moneta/internal/core"
)

func TestCreateExpense(t *testing.T) {
	store := newFakeStore()
	svc := NewExpenseService(store, nil)

	id, err := svc.CreateExpense(context.Background(), core.Expense{
		OwnerID:     1,
		Date:        core.NewDate(2026, 2, 15),
		Description: "Groceries",
		Amount:      core.Money{Cents: 2350},
		Currency:    "INR",
		Category:    "Food",
	})
	if err != nil {
		t.Fatalf("CreateExpense() error = %v", err)
	}
	if id == 0 {
		t.Error("expected a persisted id")
	}
	if len(store.expenses) != 1 {
		t.Fatalf("stored %d expenses, want 1", len(store.expenses))
	}
}

func TestCreateExpense_Invalid(t *testing.T) {
	store := newFakeStore()
	svc := NewExpenseService(store, nil)

	_, err := svc.CreateExpense(context.Background(), core.Expense{
		OwnerID:  1,
		Date:     core.NewDate(2026, 2, 15),
		Amount:   core.Money{Cents: -5},
		Currency: "INR",
	})
	if !errors.Is(err, core.ErrInvalidAmount) {
		t.Errorf("error = %v, want ErrInvalidAmount", err)
	}
	if len(store.expenses) != 0 {
		t.Error("invalid expense must not be persisted")
	}
}

func TestCreateExpense_StorageError(t *testing.T) {
	store := newFakeStore()
	store.insertErr = errors.New("database locked")
	svc := NewExpenseService(store, nil)

	_, err := svc.CreateExpense(context.Background(), core.Expense{
		OwnerID:     1,
		Date:        core.NewDate(2026, 2, 15),
		Description: "Groceries",
		Amount:      core.Money{Cents: 2350},
		Currency:    "INR",
	})
	if err == nil {
		t.Fatal("expected wrapped storage error")
	}
}

package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"moneta/internal/core"
)

// fakeStore is an in-memory RecurringStore + ExpenseStore with the same
// claim semantics as the SQLite repository.
type fakeStore struct {
	defs         map[int64]*core.RecurringExpense
	expenses     []core.Expense
	nextID       int64
	insertErr    error
	insertErrFor int64 // recurring id whose materialization should fail
}

func newFakeStore() *fakeStore {
	return &fakeStore{defs: make(map[int64]*core.RecurringExpense)}
}

func (f *fakeStore) CreateRecurringExpense(_ context.Context, re core.RecurringExpense) (int64, error) {
	f.nextID++
	re.ID = f.nextID
	f.defs[re.ID] = &re
	return re.ID, nil
}

func (f *fakeStore) GetRecurringExpense(_ context.Context, ownerID, id int64) (*core.RecurringExpense, error) {
	re, ok := f.defs[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	if re.OwnerID != ownerID {
		return nil, core.ErrNotAuthorized
	}
	cp := *re
	return &cp, nil
}

func (f *fakeStore) ListRecurringExpenses(_ context.Context, ownerID int64) ([]core.RecurringExpense, error) {
	var out []core.RecurringExpense
	for _, re := range f.defs {
		if re.OwnerID == ownerID {
			out = append(out, *re)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) ListDueRecurringExpenses(_ context.Context, ownerID int64, asOf core.Date) ([]core.RecurringExpense, error) {
	var out []core.RecurringExpense
	for _, re := range f.defs {
		if re.OwnerID == ownerID && re.Active && !re.NextExecution.After(asOf.Time) {
			out = append(out, *re)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) ClaimDueRecurringExpense(_ context.Context, id int64, expectedNext core.Date, firedAt time.Time, next core.Date) (bool, error) {
	re, ok := f.defs[id]
	if !ok || !re.Active || !re.NextExecution.Equal(expectedNext.Time) {
		return false, nil
	}
	re.LastExecutedAt = firedAt
	re.NextExecution = next
	return true, nil
}

func (f *fakeStore) DeactivateRecurringExpense(_ context.Context, id int64) error {
	if re, ok := f.defs[id]; ok {
		re.Active = false
	}
	return nil
}

func (f *fakeStore) ToggleRecurringActive(_ context.Context, ownerID, id int64) (*core.RecurringExpense, error) {
	re, err := f.GetRecurringExpense(context.Background(), ownerID, id)
	if err != nil {
		return nil, err
	}
	f.defs[id].Active = !re.Active
	re.Active = !re.Active
	return re, nil
}

func (f *fakeStore) DeleteRecurringExpense(_ context.Context, ownerID, id int64) error {
	if _, err := f.GetRecurringExpense(context.Background(), ownerID, id); err != nil {
		return err
	}
	delete(f.defs, id)
	return nil
}

func (f *fakeStore) InsertExpense(_ context.Context, e core.Expense) (int64, error) {
	if f.insertErr != nil && (f.insertErrFor == 0 || f.insertErrFor == e.RecurringID) {
		return 0, f.insertErr
	}
	f.expenses = append(f.expenses, e)
	return int64(len(f.expenses)), nil
}

func newTestProcessor(store *fakeStore) *RecurringProcessor {
	return NewRecurringProcessor(store, NewExpenseService(store, nil))
}

func monthlyDefinition(owner int64) core.RecurringExpense {
	return core.RecurringExpense{
		OwnerID:     owner,
		Amount:      core.Money{Cents: 50000},
		Currency:    "INR",
		Category:    "Rent",
		Description: "Monthly rent",
		Every:       core.Monthly,
		StartDate:   core.NewDate(2026, 1, 15),
	}
}

func TestCreateDefinition(t *testing.T) {
	store := newFakeStore()
	p := newTestProcessor(store)

	re, err := p.CreateDefinition(context.Background(), monthlyDefinition(1))
	if err != nil {
		t.Fatalf("CreateDefinition() error = %v", err)
	}

	if !re.NextExecution.Equal(core.NewDate(2026, 2, 15).Time) {
		t.Errorf("next execution = %s, want 2026-02-15",
			re.NextExecution.Format("2006-01-02"))
	}
	if !re.Active {
		t.Error("new definition should be active")
	}
	if re.ID == 0 {
		t.Error("definition should get an id")
	}
}

func TestCreateDefinition_Validation(t *testing.T) {
	store := newFakeStore()
	p := newTestProcessor(store)

	tests := []struct {
		name    string
		mutate  func(*core.RecurringExpense)
		wantErr error
	}{
		{"zero amount", func(re *core.RecurringExpense) { re.Amount.Cents = 0 }, core.ErrInvalidAmount},
		{"missing start date", func(re *core.RecurringExpense) { re.StartDate = core.Date{} }, core.ErrMissingStartDate},
		{"bad frequency", func(re *core.RecurringExpense) { re.Every = "sometimes" }, core.ErrInvalidFrequency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			re := monthlyDefinition(1)
			tt.mutate(&re)
			if _, err := p.CreateDefinition(context.Background(), re); !errors.Is(err, tt.wantErr) {
				t.Errorf("CreateDefinition() error = %v, want %v", err, tt.wantErr)
			}
			if len(store.defs) != 0 {
				t.Error("invalid definition must not be persisted")
			}
		})
	}
}

func TestProcessDue_MaterializesOnDueDate(t *testing.T) {
	store := newFakeStore()
	p := newTestProcessor(store)
	ctx := context.Background()

	re, err := p.CreateDefinition(ctx, monthlyDefinition(1))
	if err != nil {
		t.Fatalf("CreateDefinition() error = %v", err)
	}

	count, err := p.ProcessDue(ctx, 1, core.NewDate(2026, 2, 15))
	if err != nil {
		t.Fatalf("ProcessDue() error = %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}

	e := store.expenses[0]
	if e.Amount.Cents != 50000 || e.Currency != "INR" {
		t.Errorf("materialized %d %s, want 50000 INR", e.Amount.Cents, e.Currency)
	}
	if !e.Date.Equal(core.NewDate(2026, 2, 15).Time) {
		t.Errorf("expense dated %s, want firing date 2026-02-15", e.Date.Format("2006-01-02"))
	}
	if e.Description != "Monthly rent"+core.AutoDescriptionSuffix {
		t.Errorf("description = %q, want automatic-origin suffix", e.Description)
	}
	if e.RecurringID != re.ID {
		t.Errorf("recurring id = %d, want %d", e.RecurringID, re.ID)
	}

	got := store.defs[re.ID]
	if !got.NextExecution.Equal(core.NewDate(2026, 3, 15).Time) {
		t.Errorf("next execution = %s, want 2026-03-15",
			got.NextExecution.Format("2006-01-02"))
	}
	if !got.LastExecutedAt.Equal(core.NewDate(2026, 2, 15).Time) {
		t.Errorf("last executed = %v, want firing date", got.LastExecutedAt)
	}
}

func TestProcessDue_NotDueYet(t *testing.T) {
	store := newFakeStore()
	p := newTestProcessor(store)
	ctx := context.Background()

	if _, err := p.CreateDefinition(ctx, monthlyDefinition(1)); err != nil {
		t.Fatalf("CreateDefinition() error = %v", err)
	}

	count, err := p.ProcessDue(ctx, 1, core.NewDate(2026, 2, 14))
	if err != nil {
		t.Fatalf("ProcessDue() error = %v", err)
	}
	if count != 0 || len(store.expenses) != 0 {
		t.Errorf("count = %d, expenses = %d; nothing should fire before the due date",
			count, len(store.expenses))
	}
}

func TestProcessDue_SingleCatchUp(t *testing.T) {
	store := newFakeStore()
	p := newTestProcessor(store)
	ctx := context.Background()

	// Daily definition 40 days overdue: the app was simply not running.
	re := core.RecurringExpense{
		OwnerID:       1,
		Amount:        core.Money{Cents: 1500},
		Currency:      "INR",
		Description:   "Coffee",
		Every:         core.Daily,
		StartDate:     core.NewDate(2026, 1, 5),
		NextExecution: core.NewDate(2026, 1, 6),
		Active:        true,
	}
	id, _ := store.CreateRecurringExpense(ctx, re)

	today := core.NewDate(2026, 2, 15)
	count, err := p.ProcessDue(ctx, 1, today)
	if err != nil {
		t.Fatalf("ProcessDue() error = %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want exactly 1 despite 40 elapsed periods", count)
	}

	// The schedule re-anchors on the processing date, not on the backlog.
	got := store.defs[id]
	if !got.NextExecution.Equal(core.NewDate(2026, 2, 16).Time) {
		t.Errorf("next execution = %s, want 2026-02-16 (advance from today)",
			got.NextExecution.Format("2006-01-02"))
	}

	// Re-running within the same window fires nothing.
	count, err = p.ProcessDue(ctx, 1, today)
	if err != nil {
		t.Fatalf("second ProcessDue() error = %v", err)
	}
	if count != 0 || len(store.expenses) != 1 {
		t.Errorf("second pass: count = %d, expenses = %d; want no re-fire", count, len(store.expenses))
	}
}

func TestProcessDue_ExpiryRetiresWithoutFiring(t *testing.T) {
	store := newFakeStore()
	p := newTestProcessor(store)
	ctx := context.Background()

	re := monthlyDefinition(1)
	re.EndDate = core.NewDate(2026, 2, 1)
	re.NextExecution = core.NewDate(2026, 2, 15)
	re.Active = true
	id, _ := store.CreateRecurringExpense(ctx, re)

	count, err := p.ProcessDue(ctx, 1, core.NewDate(2026, 2, 15))
	if err != nil {
		t.Fatalf("ProcessDue() error = %v", err)
	}
	if count != 0 || len(store.expenses) != 0 {
		t.Errorf("expired definition fired: count = %d, expenses = %d", count, len(store.expenses))
	}
	if store.defs[id].Active {
		t.Error("expired definition should be deactivated")
	}
}

func TestProcessDue_EndDateTodayStillFires(t *testing.T) {
	store := newFakeStore()
	p := newTestProcessor(store)
	ctx := context.Background()

	re := monthlyDefinition(1)
	re.EndDate = core.NewDate(2026, 2, 15)
	re.NextExecution = core.NewDate(2026, 2, 15)
	re.Active = true
	store.CreateRecurringExpense(ctx, re)

	count, err := p.ProcessDue(ctx, 1, core.NewDate(2026, 2, 15))
	if err != nil {
		t.Fatalf("ProcessDue() error = %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d; an end date equal to the processing date is not yet expired", count)
	}
}

func TestProcessDue_LostClaimSkips(t *testing.T) {
	store := newFakeStore()
	p := newTestProcessor(store)
	ctx := context.Background()

	re := monthlyDefinition(1)
	re.NextExecution = core.NewDate(2026, 2, 15)
	re.Active = true
	id, _ := store.CreateRecurringExpense(ctx, re)

	// Simulate a concurrent pass winning the window between list and claim.
	store.defs[id].NextExecution = core.NewDate(2026, 3, 15)

	count, err := p.ProcessDue(ctx, 1, core.NewDate(2026, 2, 15))
	if err != nil {
		t.Fatalf("ProcessDue() error = %v", err)
	}
	if count != 0 || len(store.expenses) != 0 {
		t.Errorf("lost claim must not materialize: count = %d, expenses = %d",
			count, len(store.expenses))
	}
}

func TestProcessDue_FailureIsolation(t *testing.T) {
	store := newFakeStore()
	p := newTestProcessor(store)
	ctx := context.Background()

	first, err := p.CreateDefinition(ctx, monthlyDefinition(1))
	if err != nil {
		t.Fatalf("CreateDefinition() error = %v", err)
	}
	second := monthlyDefinition(1)
	second.Description = "Internet"
	if _, err := p.CreateDefinition(ctx, second); err != nil {
		t.Fatalf("CreateDefinition() error = %v", err)
	}

	store.insertErr = fmt.Errorf("disk full")
	store.insertErrFor = first.ID

	count, err := p.ProcessDue(ctx, 1, core.NewDate(2026, 2, 15))
	if err != nil {
		t.Fatalf("ProcessDue() error = %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1 (second definition unaffected by first's failure)", count)
	}
	if len(store.expenses) != 1 || store.expenses[0].Description != "Internet"+core.AutoDescriptionSuffix {
		t.Errorf("expected only the second definition's expense, got %+v", store.expenses)
	}
}

func TestToggleActiveKeepsSchedule(t *testing.T) {
	store := newFakeStore()
	p := newTestProcessor(store)
	ctx := context.Background()

	re, err := p.CreateDefinition(ctx, monthlyDefinition(1))
	if err != nil {
		t.Fatalf("CreateDefinition() error = %v", err)
	}

	got, err := p.ToggleActive(ctx, 1, re.ID)
	if err != nil {
		t.Fatalf("ToggleActive() error = %v", err)
	}
	if got.Active {
		t.Error("expected inactive after toggle")
	}
	if !got.NextExecution.Equal(re.NextExecution.Time) {
		t.Error("toggle must not touch next_execution_date")
	}

	// Inactive definitions never fire.
	count, err := p.ProcessDue(ctx, 1, core.NewDate(2026, 2, 15))
	if err != nil {
		t.Fatalf("ProcessDue() error = %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, inactive definition fired", count)
	}
}

func TestDeleteDefinition(t *testing.T) {
	store := newFakeStore()
	p := newTestProcessor(store)
	ctx := context.Background()

	re, err := p.CreateDefinition(ctx, monthlyDefinition(1))
	if err != nil {
		t.Fatalf("CreateDefinition() error = %v", err)
	}

	if err := p.Delete(ctx, 2, re.ID); !errors.Is(err, core.ErrNotAuthorized) {
		t.Errorf("foreign delete error = %v, want ErrNotAuthorized", err)
	}
	if err := p.Delete(ctx, 1, re.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := p.Delete(ctx, 1, re.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("repeat delete error = %v, want ErrNotFound", err)
	}
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"moneta/internal/core"

	_ "modernc.org/sqlite"
)

const dateLayout = "2006-01-02"

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Foreign keys are off by default in SQLite; the expenses table relies
	// on ON DELETE SET NULL.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// CreateRecurringExpense inserts a new definition and returns its id.
func (r *SQLiteRepository) CreateRecurringExpense(ctx context.Context, re core.RecurringExpense) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO recurring_expenses
			(owner_id, amount_cents, currency, category, description,
			 frequency, start_date, end_date, next_execution_date, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		re.OwnerID, re.Amount.Cents, re.Currency, re.Category, re.Description,
		string(re.Every), dateToSQL(re.StartDate), nullableDate(re.EndDate),
		dateToSQL(re.NextExecution))
	if err != nil {
		return 0, fmt.Errorf("insert recurring expense: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}

	slog.InfoContext(ctx, "Recurring expense saved",
		"id", id,
		"description", re.Description,
		"amount_cents", re.Amount.Cents,
		"frequency", re.Every,
		"next_execution", dateToSQL(re.NextExecution))

	return id, nil
}

// GetRecurringExpense loads a definition by id, enforcing ownership.
func (r *SQLiteRepository) GetRecurringExpense(ctx context.Context, ownerID, id int64) (*core.RecurringExpense, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, owner_id, amount_cents, currency, category, description,
		       frequency, start_date, end_date, last_executed_at,
		       next_execution_date, active
		FROM recurring_expenses WHERE id = ?`, id)

	re, err := scanRecurring(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("get recurring expense %d: %w", id, err)
	}
	if re.OwnerID != ownerID {
		return nil, core.ErrNotAuthorized
	}
	return re, nil
}

// ListRecurringExpenses returns all definitions owned by a user, stable order.
func (r *SQLiteRepository) ListRecurringExpenses(ctx context.Context, ownerID int64) ([]core.RecurringExpense, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner_id, amount_cents, currency, category, description,
		       frequency, start_date, end_date, last_executed_at,
		       next_execution_date, active
		FROM recurring_expenses WHERE owner_id = ? ORDER BY id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list recurring expenses: %w", err)
	}
	defer rows.Close()

	return collectRecurring(rows)
}

// ListDueRecurringExpenses returns active definitions with
// next_execution_date <= asOf, ordered by id so every processing pass
// walks definitions in the same order.
func (r *SQLiteRepository) ListDueRecurringExpenses(ctx context.Context, ownerID int64, asOf core.Date) ([]core.RecurringExpense, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner_id, amount_cents, currency, category, description,
		       frequency, start_date, end_date, last_executed_at,
		       next_execution_date, active
		FROM recurring_expenses
		WHERE owner_id = ? AND active = 1 AND next_execution_date <= ?
		ORDER BY id`, ownerID, dateToSQL(asOf))
	if err != nil {
		return nil, fmt.Errorf("list due recurring expenses: %w", err)
	}
	defer rows.Close()

	return collectRecurring(rows)
}

// ClaimDueRecurringExpense advances a definition's schedule as a single
// conditional update. The WHERE clause re-checks the expected
// next_execution_date so that two concurrent processing passes cannot
// both fire the same window: only the pass whose expected date still
// matches wins the claim.
func (r *SQLiteRepository) ClaimDueRecurringExpense(ctx context.Context, id int64, expectedNext core.Date, firedAt time.Time, next core.Date) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE recurring_expenses
		SET last_executed_at = ?, next_execution_date = ?, updated_at = datetime('now')
		WHERE id = ? AND active = 1 AND next_execution_date = ?`,
		firedAt.UTC().Format(time.RFC3339), dateToSQL(next), id, dateToSQL(expectedNext))
	if err != nil {
		return false, fmt.Errorf("claim recurring expense %d: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// DeactivateRecurringExpense retires a definition whose end date has passed.
func (r *SQLiteRepository) DeactivateRecurringExpense(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE recurring_expenses
		SET active = 0, updated_at = datetime('now')
		WHERE id = ? AND active = 1`, id)
	if err != nil {
		return fmt.Errorf("deactivate recurring expense %d: %w", id, err)
	}
	return nil
}

// ToggleRecurringActive flips the active flag and returns the updated
// definition. The schedule is left untouched.
func (r *SQLiteRepository) ToggleRecurringActive(ctx context.Context, ownerID, id int64) (*core.RecurringExpense, error) {
	re, err := r.GetRecurringExpense(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE recurring_expenses
		SET active = ?, updated_at = datetime('now')
		WHERE id = ?`, boolToInt(!re.Active), id)
	if err != nil {
		return nil, fmt.Errorf("toggle recurring expense %d: %w", id, err)
	}

	re.Active = !re.Active
	slog.InfoContext(ctx, "Recurring expense toggled", "id", id, "active", re.Active)
	return re, nil
}

// DeleteRecurringExpense hard-deletes a definition. Already-materialized
// expenses keep their rows; the FK sets their recurring_id to NULL.
func (r *SQLiteRepository) DeleteRecurringExpense(ctx context.Context, ownerID, id int64) error {
	// Ownership check first so the caller can distinguish missing from foreign.
	if _, err := r.GetRecurringExpense(ctx, ownerID, id); err != nil {
		return err
	}

	if _, err := r.db.ExecContext(ctx, `DELETE FROM recurring_expenses WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete recurring expense %d: %w", id, err)
	}

	slog.InfoContext(ctx, "Recurring expense deleted", "id", id)
	return nil
}

// InsertExpense stores a concrete expense row and returns its id.
func (r *SQLiteRepository) InsertExpense(ctx context.Context, e core.Expense) (int64, error) {
	var recurringID any
	if e.RecurringID != 0 {
		recurringID = e.RecurringID
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO expenses
			(owner_id, expense_date, description, amount_cents, currency, category, recurring_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.OwnerID, dateToSQL(e.Date), e.Description, e.Amount.Cents,
		e.Currency, e.Category, recurringID)
	if err != nil {
		return 0, fmt.Errorf("insert expense: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved",
		"id", id,
		"description", e.Description,
		"amount_cents", e.Amount.Cents,
		"date", dateToSQL(e.Date))

	return id, nil
}

// ListExpenses returns all expenses for a given year and month.
func (r *SQLiteRepository) ListExpenses(ctx context.Context, ownerID int64, year, month int) ([]core.Expense, error) {
	first := core.NewDate(year, month, 1)
	next := core.NewDate(year, month+1, 1)

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner_id, expense_date, description, amount_cents,
		       currency, category, COALESCE(recurring_id, 0)
		FROM expenses
		WHERE owner_id = ? AND expense_date >= ? AND expense_date < ?
		ORDER BY expense_date, id`,
		ownerID, dateToSQL(first), dateToSQL(next))
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var expenses []core.Expense
	for rows.Next() {
		var e core.Expense
		var dateStr string
		if err := rows.Scan(&e.ID, &e.OwnerID, &dateStr, &e.Description,
			&e.Amount.Cents, &e.Currency, &e.Category, &e.RecurringID); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		e.Date, err = dateFromSQL(dateStr)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

// MonthOverview aggregates a month's total and per-category sums.
func (r *SQLiteRepository) MonthOverview(ctx context.Context, ownerID int64, year, month int) (core.MonthOverview, error) {
	overview := core.MonthOverview{Year: year, Month: month}
	first := core.NewDate(year, month, 1)
	next := core.NewDate(year, month+1, 1)

	row := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_cents), 0)
		FROM expenses
		WHERE owner_id = ? AND expense_date >= ? AND expense_date < ?`,
		ownerID, dateToSQL(first), dateToSQL(next))
	if err := row.Scan(&overview.Total.Cents); err != nil {
		return overview, fmt.Errorf("get month total: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT category, SUM(amount_cents)
		FROM expenses
		WHERE owner_id = ? AND expense_date >= ? AND expense_date < ?
		GROUP BY category ORDER BY SUM(amount_cents) DESC`,
		ownerID, dateToSQL(first), dateToSQL(next))
	if err != nil {
		return overview, fmt.Errorf("get category sums: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ca core.CategoryAmount
		if err := rows.Scan(&ca.Name, &ca.Amount.Cents); err != nil {
			return overview, fmt.Errorf("scan category sum: %w", err)
		}
		overview.ByCategory = append(overview.ByCategory, ca)
	}
	return overview, rows.Err()
}

// GetCacheEntry reads a value from the rate cache key-value table.
func (r *SQLiteRepository) GetCacheEntry(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM rate_cache WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get cache entry %q: %w", key, err)
	}
	return value, true, nil
}

// PutCacheEntry upserts a value into the rate cache key-value table.
func (r *SQLiteRepository) PutCacheEntry(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO rate_cache (key, value, updated_at)
		VALUES (?, ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value)
	if err != nil {
		return fmt.Errorf("put cache entry %q: %w", key, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecurring(row rowScanner) (*core.RecurringExpense, error) {
	var re core.RecurringExpense
	var frequency, startStr, nextStr string
	var endStr, lastExecStr sql.NullString
	var active int

	err := row.Scan(&re.ID, &re.OwnerID, &re.Amount.Cents, &re.Currency,
		&re.Category, &re.Description, &frequency, &startStr, &endStr,
		&lastExecStr, &nextStr, &active)
	if err != nil {
		return nil, err
	}

	re.Every = core.Frequency(frequency)
	re.Active = active != 0

	if re.StartDate, err = dateFromSQL(startStr); err != nil {
		return nil, err
	}
	if re.NextExecution, err = dateFromSQL(nextStr); err != nil {
		return nil, err
	}
	if endStr.Valid && endStr.String != "" {
		if re.EndDate, err = dateFromSQL(endStr.String); err != nil {
			return nil, err
		}
	}
	if lastExecStr.Valid && lastExecStr.String != "" {
		t, err := time.Parse(time.RFC3339, lastExecStr.String)
		if err != nil {
			return nil, fmt.Errorf("parse last_executed_at: %w", err)
		}
		re.LastExecutedAt = t
	}
	return &re, nil
}

func collectRecurring(rows *sql.Rows) ([]core.RecurringExpense, error) {
	var out []core.RecurringExpense
	for rows.Next() {
		re, err := scanRecurring(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recurring expense: %w", err)
		}
		out = append(out, *re)
	}
	return out, rows.Err()
}

func dateToSQL(d core.Date) string {
	return d.Format(dateLayout)
}

func nullableDate(d core.Date) any {
	if d.IsZero() {
		return nil
	}
	return dateToSQL(d)
}

func dateFromSQL(s string) (core.Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return core.Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return core.Date{Time: t}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

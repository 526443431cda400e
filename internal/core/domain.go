package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Daily     Frequency = "daily"
	Weekly    Frequency = "weekly"
	Biweekly  Frequency = "biweekly"
	Monthly   Frequency = "monthly"
	Quarterly Frequency = "quarterly"
	Yearly    Frequency = "yearly"
)

// AutoDescriptionSuffix marks expenses materialized from a recurring
// definition so they are distinguishable from manual entries.
const AutoDescriptionSuffix = " (recurring)"

type (
	// Frequency is how often a recurring expense fires.
	Frequency string

	// Date is a calendar date at UTC midnight. The time-of-day component
	// is never meaningful for scheduling.
	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// RecurringExpense is a template that the processor materializes into
	// concrete expenses whenever its next execution date comes due.
	RecurringExpense struct {
		ID             int64
		OwnerID        int64
		Amount         Money
		Currency       string
		Category       string // optional
		Description    string // optional
		Every          Frequency
		StartDate      Date
		EndDate        Date // zero means no end
		LastExecutedAt time.Time
		NextExecution  Date
		Active         bool
	}

	// Expense is a single concrete entry, either typed in by the user or
	// materialized from a RecurringExpense. RecurringID links back to the
	// originating definition when the entry was materialized.
	Expense struct {
		ID          int64
		OwnerID     int64
		Date        Date
		Description string
		Amount      Money
		Currency    string
		Category    string
		RecurringID int64 // 0 for manual entries
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrMissingStartDate = errors.New("missing start date")
	ErrInvalidFrequency = errors.New("invalid frequency")
	ErrInvalidCurrency  = errors.New("invalid currency code")
	ErrEndBeforeStart   = errors.New("end date before start date")

	ErrNotFound      = errors.New("not found")
	ErrNotAuthorized = errors.New("not authorized")
)

// NewDate creates a Date from year, month, day at UTC midnight.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates a timestamp to its UTC calendar date.
func DateOf(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return NewDate(y, int(m), d)
}

func (d Date) Day() int   { return d.Time.Day() }
func (d Date) Month() int { return int(d.Time.Month()) }
func (d Date) Year() int  { return d.Time.Year() }

// IsEmpty reports whether the date is unset (used for optional end dates).
func (d Date) IsEmpty() bool { return d.IsZero() }

func (f Frequency) Validate() error {
	switch f {
	case Daily, Weekly, Biweekly, Monthly, Quarterly, Yearly:
		return nil
	default:
		return ErrInvalidFrequency
	}
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// ValidCurrencyCode reports whether s looks like an ISO 4217 code.
// Unknown but well-formed codes are accepted; the conversion layer
// degrades to a 1.0 rate for codes it has no data for.
func ValidCurrencyCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func (re RecurringExpense) Validate() error {
	if err := re.Amount.Validate(); err != nil {
		return err
	}
	if re.StartDate.IsZero() {
		return ErrMissingStartDate
	}
	if err := re.Every.Validate(); err != nil {
		return err
	}
	if !ValidCurrencyCode(re.Currency) {
		return ErrInvalidCurrency
	}
	if !re.EndDate.IsZero() && re.EndDate.Before(re.StartDate.Time) {
		return ErrEndBeforeStart
	}
	if len(re.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	return nil
}

func (e Expense) Validate() error {
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if e.Date.IsZero() {
		return ErrMissingStartDate
	}
	if !ValidCurrencyCode(e.Currency) {
		return ErrInvalidCurrency
	}
	if len(strings.TrimSpace(e.Description)) == 0 {
		return errors.New("empty description")
	}
	if len(e.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	return nil
}

// Expired reports whether the definition's end date has passed as of the
// given date. Expired definitions are retired without firing one last time.
func (re RecurringExpense) Expired(asOf Date) bool {
	return !re.EndDate.IsZero() && re.EndDate.Before(asOf.Time)
}

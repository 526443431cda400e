package core

import (
	"errors"
	"testing"
)

func TestRecurringExpenseValidate(t *testing.T) {
	valid := RecurringExpense{
		Amount:    Money{Cents: 50000},
		Currency:  "INR",
		Every:     Monthly,
		StartDate: NewDate(2026, 1, 15),
	}

	tests := []struct {
		name    string
		mutate  func(*RecurringExpense)
		wantErr error
	}{
		{"valid", func(re *RecurringExpense) {}, nil},
		{"zero amount", func(re *RecurringExpense) { re.Amount.Cents = 0 }, ErrInvalidAmount},
		{"negative amount", func(re *RecurringExpense) { re.Amount.Cents = -100 }, ErrInvalidAmount},
		{"missing start date", func(re *RecurringExpense) { re.StartDate = Date{} }, ErrMissingStartDate},
		{"unknown frequency", func(re *RecurringExpense) { re.Every = "hourly" }, ErrInvalidFrequency},
		{"bad currency", func(re *RecurringExpense) { re.Currency = "rupees" }, ErrInvalidCurrency},
		{"end before start", func(re *RecurringExpense) { re.EndDate = NewDate(2026, 1, 1) }, ErrEndBeforeStart},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			re := valid
			tt.mutate(&re)
			err := re.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRecurringExpenseExpired(t *testing.T) {
	tests := []struct {
		name string
		end  Date
		asOf Date
		want bool
	}{
		{"no end date", Date{}, NewDate(2026, 6, 1), false},
		{"end in future", NewDate(2026, 12, 31), NewDate(2026, 6, 1), false},
		{"end is today", NewDate(2026, 6, 1), NewDate(2026, 6, 1), false},
		{"end has passed", NewDate(2026, 5, 31), NewDate(2026, 6, 1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			re := RecurringExpense{EndDate: tt.end}
			if got := re.Expired(tt.asOf); got != tt.want {
				t.Errorf("Expired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidCurrencyCode(t *testing.T) {
	cases := map[string]bool{
		"INR": true,
		"USD": true,
		"eur": false,
		"IN":  false,
		"INRX": false,
		"IN1": false,
		"":    false,
	}
	for code, want := range cases {
		if got := ValidCurrencyCode(code); got != want {
			t.Errorf("ValidCurrencyCode(%q) = %v, want %v", code, got, want)
		}
	}
}

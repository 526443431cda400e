package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"moneta/internal/core"
)

type createExpenseRequest struct {
	Date        string `json:"date,omitempty"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency,omitempty"`
	Category    string `json:"category,omitempty"`
}

type expenseResponse struct {
	ID          int64  `json:"id"`
	Date        string `json:"date"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Category    string `json:"category,omitempty"`
	RecurringID int64  `json:"recurring_id,omitempty"`
}

type summaryResponse struct {
	Year       int             `json:"year"`
	Month      int             `json:"month"`
	Currency   string          `json:"currency"`
	Total      float64         `json:"total"`
	Categories []categoryTotal `json:"categories"`
}

type categoryTotal struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

func toExpenseResponse(e core.Expense) expenseResponse {
	return expenseResponse{
		ID:          e.ID,
		Date:        e.Date.Format("2006-01-02"),
		Description: e.Description,
		Amount:      e.Amount.String(),
		Currency:    e.Currency,
		Category:    e.Category,
		RecurringID: e.RecurringID,
	}
}

func (s *Server) handleExpenses(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listExpenses(w, r)
	case http.MethodPost:
		s.createExpense(w, r)
	default:
		methodNotAllowed(w, "GET, POST")
	}
}

func (s *Server) listExpenses(w http.ResponseWriter, r *http.Request) {
	year, month := parseYearMonth(r)

	items, err := s.reader.ListExpenses(r.Context(), s.ownerID, year, month)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to list expenses", "error", err, "year", year, "month", month)
		writeError(w, http.StatusInternalServerError, "failed to load expenses")
		return
	}

	out := make([]expenseResponse, 0, len(items))
	for _, e := range items {
		out = append(out, toExpenseResponse(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createExpense(w http.ResponseWriter, r *http.Request) {
	var req createExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cents, err := core.ParseDecimalToCents(strings.TrimSpace(req.Amount))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid amount")
		return
	}

	date := core.DateOf(time.Now())
	if req.Date != "" {
		date, err = parseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "invalid date, expected YYYY-MM-DD")
			return
		}
	}

	description := sanitizeInput(req.Description)
	if description == "" {
		writeError(w, http.StatusUnprocessableEntity, "missing description")
		return
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.converter.BaseCurrency()
	}
	if !core.ValidCurrencyCode(currency) {
		writeError(w, http.StatusUnprocessableEntity, "invalid currency code")
		return
	}

	cents = s.toBaseCents(cents, currency)

	expense := core.Expense{
		OwnerID:     s.ownerID,
		Date:        date,
		Description: description,
		Amount:      core.Money{Cents: cents},
		Currency:    s.converter.BaseCurrency(),
		Category:    sanitizeInput(req.Category),
	}

	id, err := s.expenses.CreateExpense(r.Context(), expense)
	if err != nil {
		if isValidationError(err) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		slog.ErrorContext(r.Context(), "Failed to create expense", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save expense")
		return
	}
	expense.ID = id

	s.invalidateSummaries()

	slog.InfoContext(r.Context(), "Expense created",
		"id", id, "amount_cents", cents, "description", expense.Description)

	writeJSON(w, http.StatusCreated, toExpenseResponse(expense))
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, "GET")
		return
	}

	year, month := parseYearMonth(r)

	currency := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("currency")))
	if currency == "" {
		currency = s.converter.BaseCurrency()
	}
	if !core.ValidCurrencyCode(currency) {
		writeError(w, http.StatusUnprocessableEntity, "invalid currency code")
		return
	}

	key := s.summaryKey(year, month, currency)
	if cached, ok := s.summaryCache.Get(key); ok {
		slog.DebugContext(r.Context(), "Summary cache hit", "year", year, "month", month, "currency", currency)
		writeJSON(w, http.StatusOK, cached)
		return
	}

	ov, err := s.reader.MonthOverview(r.Context(), s.ownerID, year, month)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to load month overview", "error", err, "year", year, "month", month)
		writeError(w, http.StatusInternalServerError, "failed to load summary")
		return
	}

	base := s.converter.BaseCurrency()
	resp := summaryResponse{
		Year:       ov.Year,
		Month:      ov.Month,
		Currency:   currency,
		Total:      s.displayAmount(ov.Total.Cents, base, currency),
		Categories: make([]categoryTotal, 0, len(ov.ByCategory)),
	}
	for _, c := range ov.ByCategory {
		resp.Categories = append(resp.Categories, categoryTotal{
			Name:   c.Name,
			Amount: s.displayAmount(c.Amount.Cents, base, currency),
		})
	}

	s.summaryCache.Set(key, resp)
	writeJSON(w, http.StatusOK, resp)
}

// toBaseCents converts an amount entered in any currency to base-currency
// cents for storage.
func (s *Server) toBaseCents(cents int64, currency string) int64 {
	base := s.converter.BaseCurrency()
	if currency == base {
		return cents
	}
	converted := s.converter.Convert(float64(cents)/100, currency, base)
	return int64(math.Round(converted * 100))
}

// displayAmount converts stored base-currency cents into units of the
// requested display currency, rounded to two decimals.
func (s *Server) displayAmount(cents int64, base, currency string) float64 {
	amount := s.converter.Convert(float64(cents)/100, base, currency)
	return math.Round(amount*100) / 100
}

func (s *Server) summaryKey(year, month int, currency string) string {
	return fmt.Sprintf("summary:%d:%d-%02d:%s", s.ownerID, year, month, currency)
}

func (s *Server) invalidateSummaries() {
	s.summaryCache.InvalidatePrefix(fmt.Sprintf("summary:%d:", s.ownerID))
}

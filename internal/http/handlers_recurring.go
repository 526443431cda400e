package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"moneta/internal/core"
)

type createRecurringRequest struct {
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Category    string `json:"category"`
	Frequency   string `json:"frequency"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date,omitempty"`
}

type recurringResponse struct {
	ID             int64  `json:"id"`
	Description    string `json:"description"`
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
	Category       string `json:"category,omitempty"`
	Frequency      string `json:"frequency"`
	StartDate      string `json:"start_date"`
	EndDate        string `json:"end_date,omitempty"`
	NextExecution  string `json:"next_execution"`
	LastExecutedAt string `json:"last_executed_at,omitempty"`
	Active         bool   `json:"active"`
}

func toRecurringResponse(re core.RecurringExpense) recurringResponse {
	resp := recurringResponse{
		ID:            re.ID,
		Description:   re.Description,
		Amount:        re.Amount.String(),
		Currency:      re.Currency,
		Category:      re.Category,
		Frequency:     string(re.Every),
		StartDate:     re.StartDate.Format("2006-01-02"),
		NextExecution: re.NextExecution.Format("2006-01-02"),
		Active:        re.Active,
	}
	if !re.EndDate.IsEmpty() {
		resp.EndDate = re.EndDate.Format("2006-01-02")
	}
	if !re.LastExecutedAt.IsZero() {
		resp.LastExecutedAt = re.LastExecutedAt.Format("2006-01-02")
	}
	return resp
}

func (s *Server) handleRecurring(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listRecurring(w, r)
	case http.MethodPost:
		s.createRecurring(w, r)
	default:
		methodNotAllowed(w, "GET, POST")
	}
}

func (s *Server) listRecurring(w http.ResponseWriter, r *http.Request) {
	defs, err := s.recurring.List(r.Context(), s.ownerID)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to list recurring expenses", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load recurring expenses")
		return
	}

	out := make([]recurringResponse, 0, len(defs))
	for _, re := range defs {
		out = append(out, toRecurringResponse(re))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createRecurring(w http.ResponseWriter, r *http.Request) {
	var req createRecurringRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cents, err := core.ParseDecimalToCents(strings.TrimSpace(req.Amount))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid amount")
		return
	}

	startDate, err := parseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid start date, expected YYYY-MM-DD")
		return
	}

	var endDate core.Date
	if req.EndDate != "" {
		endDate, err = parseDate(req.EndDate)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "invalid end date, expected YYYY-MM-DD")
			return
		}
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.converter.BaseCurrency()
	}
	if !core.ValidCurrencyCode(currency) {
		writeError(w, http.StatusUnprocessableEntity, "invalid currency code")
		return
	}

	// Amounts are stored in the base currency so monthly aggregation stays
	// a plain sum.
	cents = s.toBaseCents(cents, currency)

	re := core.RecurringExpense{
		OwnerID:     s.ownerID,
		Amount:      core.Money{Cents: cents},
		Currency:    s.converter.BaseCurrency(),
		Category:    sanitizeInput(req.Category),
		Description: sanitizeInput(req.Description),
		Every:       core.Frequency(strings.ToLower(strings.TrimSpace(req.Frequency))),
		StartDate:   startDate,
		EndDate:     endDate,
	}

	created, err := s.recurring.CreateDefinition(r.Context(), re)
	if err != nil {
		if isValidationError(err) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		slog.ErrorContext(r.Context(), "Failed to create recurring expense", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save recurring expense")
		return
	}

	slog.InfoContext(r.Context(), "Recurring expense created",
		"id", created.ID, "description", created.Description, "frequency", created.Every)

	writeJSON(w, http.StatusCreated, toRecurringResponse(*created))
}

func (s *Server) handleToggleRecurring(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, "POST")
		return
	}

	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	re, err := s.recurring.ToggleActive(r.Context(), s.ownerID, id)
	if err != nil {
		writeNotFoundOr500(w, r, err, "Failed to toggle recurring expense")
		return
	}

	slog.InfoContext(r.Context(), "Recurring expense toggled", "id", id, "active", re.Active)
	writeJSON(w, http.StatusOK, toRecurringResponse(*re))
}

func (s *Server) handleDeleteRecurring(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete && r.Method != http.MethodPost {
		methodNotAllowed(w, "DELETE, POST")
		return
	}

	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := s.recurring.Delete(r.Context(), s.ownerID, id); err != nil {
		writeNotFoundOr500(w, r, err, "Failed to delete recurring expense")
		return
	}

	slog.InfoContext(r.Context(), "Recurring expense deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProcessRecurring(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, "POST")
		return
	}

	asOf := core.DateOf(time.Now())
	if v := strings.TrimSpace(r.URL.Query().Get("date")); v != "" {
		parsed, err := parseDate(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
			return
		}
		asOf = parsed
	}

	processed, err := s.recurring.ProcessDue(r.Context(), s.ownerID, asOf)
	if err != nil {
		slog.ErrorContext(r.Context(), "Recurring processing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "recurring processing failed")
		return
	}

	if processed > 0 {
		s.invalidateSummaries()
	}

	writeJSON(w, http.StatusOK, map[string]int{"processed": processed})
}

func writeNotFoundOr500(w http.ResponseWriter, r *http.Request, err error, logMsg string) {
	switch {
	case errors.Is(err, core.ErrNotFound), errors.Is(err, core.ErrNotAuthorized):
		writeError(w, http.StatusNotFound, "recurring expense not found")
	default:
		slog.ErrorContext(r.Context(), logMsg, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func isValidationError(err error) bool {
	return errors.Is(err, core.ErrInvalidAmount) ||
		errors.Is(err, core.ErrMissingStartDate) ||
		errors.Is(err, core.ErrInvalidFrequency) ||
		errors.Is(err, core.ErrInvalidCurrency) ||
		errors.Is(err, core.ErrEndBeforeStart)
}

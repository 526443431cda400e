package http

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"moneta/internal/core"
	"moneta/internal/currency"
)

type ratesResponse struct {
	Base      string             `json:"base"`
	FetchedAt string             `json:"fetched_at,omitempty"`
	Rates     map[string]float64 `json:"rates"`
	Changes   map[string]float64 `json:"changes,omitempty"`
}

type convertResponse struct {
	Amount float64 `json:"amount"`
	From   string  `json:"from"`
	To     string  `json:"to"`
	Result float64 `json:"result"`
}

type refreshResponse struct {
	Status    string `json:"status"`
	FetchedAt string `json:"fetched_at,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

func (s *Server) handleRates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, "GET")
		return
	}

	rates := s.converter.Rates()
	resp := ratesResponse{
		Base:    s.converter.BaseCurrency(),
		Rates:   rates,
		Changes: make(map[string]float64),
	}
	if fetchedAt := s.converter.FetchedAt(); !fetchedAt.IsZero() {
		resp.FetchedAt = fetchedAt.UTC().Format(time.RFC3339)
	}
	for code := range rates {
		if change, ok := s.converter.RateChange(code); ok {
			resp.Changes[code] = math.Round(change*100) / 100
		}
	}
	if len(resp.Changes) == 0 {
		resp.Changes = nil
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleRefreshRates triggers a rate fetch. A source outage degrades to the
// most recent usable table, so the endpoint reports degraded instead of
// failing.
func (s *Server) handleRefreshRates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, "POST")
		return
	}

	force := false
	if v := strings.TrimSpace(r.URL.Query().Get("force")); v != "" {
		force, _ = strconv.ParseBool(v)
	}

	err := s.converter.Refresh(r.Context(), force)
	if err != nil {
		if errors.Is(err, currency.ErrSourceUnavailable) {
			slog.WarnContext(r.Context(), "Rate refresh degraded", "error", err)
			writeJSON(w, http.StatusOK, refreshResponse{
				Status: "degraded",
				Detail: "rate source unavailable, serving last known rates",
			})
			return
		}
		slog.ErrorContext(r.Context(), "Rate refresh failed", "error", err)
		writeError(w, http.StatusInternalServerError, "rate refresh failed")
		return
	}

	resp := refreshResponse{Status: "ok"}
	if fetchedAt := s.converter.FetchedAt(); !fetchedAt.IsZero() {
		resp.FetchedAt = fetchedAt.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, "GET")
		return
	}

	amountStr := strings.TrimSpace(r.URL.Query().Get("amount"))
	amount, err := strconv.ParseFloat(amountStr, 64)
	if err != nil || math.IsNaN(amount) || math.IsInf(amount, 0) {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	from := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("from")))
	to := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("to")))
	if from == "" {
		from = s.converter.BaseCurrency()
	}
	if to == "" {
		to = s.converter.BaseCurrency()
	}
	if !core.ValidCurrencyCode(from) || !core.ValidCurrencyCode(to) {
		writeError(w, http.StatusBadRequest, "invalid currency code")
		return
	}

	result := s.converter.Convert(amount, from, to)
	writeJSON(w, http.StatusOK, convertResponse{
		Amount: amount,
		From:   from,
		To:     to,
		Result: math.Round(result*100) / 100,
	})
}

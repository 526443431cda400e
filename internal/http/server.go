package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"moneta/internal/cache"
	"moneta/internal/core"
)

// Ports the server depends on. Declaring them here keeps handlers testable
// against in-memory fakes.
type (
	// RecurringService manages recurring-expense definitions.
	RecurringService interface {
		CreateDefinition(ctx context.Context, re core.RecurringExpense) (*core.RecurringExpense, error)
		List(ctx context.Context, ownerID int64) ([]core.RecurringExpense, error)
		Get(ctx context.Context, ownerID, id int64) (*core.RecurringExpense, error)
		ToggleActive(ctx context.Context, ownerID, id int64) (*core.RecurringExpense, error)
		Delete(ctx context.Context, ownerID, id int64) error
		ProcessDue(ctx context.Context, ownerID int64, asOf core.Date) (int, error)
	}

	// ExpenseWriter records one-off expenses.
	ExpenseWriter interface {
		CreateExpense(ctx context.Context, e core.Expense) (int64, error)
	}

	// ExpenseReader serves the read side of the ledger.
	ExpenseReader interface {
		ListExpenses(ctx context.Context, ownerID int64, year, month int) ([]core.Expense, error)
		MonthOverview(ctx context.Context, ownerID int64, year, month int) (core.MonthOverview, error)
	}

	// RateConverter exposes exchange rates and conversion.
	RateConverter interface {
		Refresh(ctx context.Context, force bool) error
		Convert(amount float64, from, to string) float64
		Rate(code string) float64
		RateChange(code string) (float64, bool)
		Rates() map[string]float64
		BaseCurrency() string
		FetchedAt() time.Time
	}
)

type Server struct {
	http.Server

	ownerID   int64
	recurring RecurringService
	expenses  ExpenseWriter
	reader    ExpenseReader
	converter RateConverter

	rateLimiter  *rateLimiter
	summaryCache *cache.TTLCache[summaryResponse]

	cancelJanitor context.CancelFunc
	shutdownOnce  sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, ownerID int64, rec RecurringService, ew ExpenseWriter, er ExpenseReader, conv RateConverter) *Server {
	mux := http.NewServeMux()

	janitorCtx, cancel := context.WithCancel(context.Background())

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
		},
		ownerID:       ownerID,
		recurring:     rec,
		expenses:      ew,
		reader:        er,
		converter:     conv,
		rateLimiter:   newRateLimiter(60),
		summaryCache:  cache.NewTTLCache[summaryResponse](100, 5*time.Minute),
		cancelJanitor: cancel,
	}

	go s.summaryCache.Janitor(janitorCtx, 10*time.Minute)

	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", handleReady)

	mux.HandleFunc("/api/recurring", s.withMiddleware(s.handleRecurring))
	mux.HandleFunc("/api/recurring/toggle", s.withMiddleware(s.handleToggleRecurring))
	mux.HandleFunc("/api/recurring/delete", s.withMiddleware(s.handleDeleteRecurring))
	mux.HandleFunc("/api/recurring/process", s.withMiddleware(s.handleProcessRecurring))

	mux.HandleFunc("/api/expenses", s.withMiddleware(s.handleExpenses))
	mux.HandleFunc("/api/summary", s.withMiddleware(s.handleSummary))

	mux.HandleFunc("/api/rates", s.withMiddleware(s.handleRates))
	mux.HandleFunc("/api/rates/refresh", s.withMiddleware(s.handleRefreshRates))
	mux.HandleFunc("/api/convert", s.withMiddleware(s.handleConvert))

	return s
}

// Shutdown stops the HTTP server and the background cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.cancelJanitor()
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

// withMiddleware adds request logging, rate limiting, and baseline headers.
func (s *Server) withMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"client_ip", clientIP)

		// Rate limit mutating requests only
		if r.Method == http.MethodPost || r.Method == http.MethodDelete {
			if !s.rateLimiter.allow(clientIP) {
				slog.WarnContext(ctx, "Rate limit exceeded",
					"client_ip", clientIP, "method", r.Method, "url", r.URL.Path)
				w.Header().Set("Retry-After", "60")
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
				return
			}
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		duration := time.Since(start)
		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", duration.Milliseconds(),
			"client_ip", clientIP)
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

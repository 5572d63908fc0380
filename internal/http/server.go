// Package http serves the fintrack JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/middleware/auth"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/middleware/security"
	"fintrack/internal/middleware/trace"
)

// FinanceAPI is the application surface the handlers drive.
type FinanceAPI interface {
	CreateCategory(ctx context.Context, c core.Category) (core.Category, error)
	ListCategories(ctx context.Context, userID string) ([]core.Category, error)
	CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error)
	ListExpenses(ctx context.Context, userID string, start, end core.Date) ([]core.ExpenseLine, error)
	CreateBudget(ctx context.Context, b core.Budget) (core.Budget, error)
	ListBudgets(ctx context.Context, userID string) ([]core.BudgetView, error)
	ScheduleReport(ctx context.Context, userID string) error
	ListReports(ctx context.Context, userID string, limit int) ([]core.Report, error)
	GetReport(ctx context.Context, userID, id string) (core.Report, error)
	Summary(ctx context.Context, userID string, start, end core.Date) ([]core.CategoryTotal, error)
}

// HealthChecker reports whether a dependency is usable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type Options struct {
	// RateLimitPerMinute caps authenticated traffic per user. Zero disables it.
	RateLimitPerMinute int
	Logger             *log.Logger
	Health             HealthChecker
}

type Server struct {
	http.Server
	finance FinanceAPI
	authn   *auth.Authenticator
	limiter *ratelimit.Limiter
	health  HealthChecker
	logger  *log.Logger

	shutdownOnce sync.Once
}

func NewServer(addr string, finance FinanceAPI, authn *auth.Authenticator, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.FromContext(context.Background())
	}

	s := &Server{
		finance: finance,
		authn:   authn,
		health:  opts.Health,
		logger:  logger.WithComponent(log.ComponentHTTP),
	}
	if opts.RateLimitPerMinute > 0 {
		s.limiter = ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: opts.RateLimitPerMinute,
			CleanupInterval:   5 * time.Minute,
		})
	}

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	return s
}

func (s *Server) routes() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /api/categories", s.handleListCategories)
	api.HandleFunc("POST /api/categories", s.handleCreateCategory)
	api.HandleFunc("GET /api/expenses", s.handleListExpenses)
	api.HandleFunc("POST /api/expenses", s.handleCreateExpense)
	api.HandleFunc("GET /api/budgets", s.handleListBudgets)
	api.HandleFunc("POST /api/budgets", s.handleCreateBudget)
	api.HandleFunc("POST /api/schedule-report", s.handleScheduleReport)
	api.HandleFunc("GET /api/reports", s.handleListReports)
	api.HandleFunc("GET /api/reports/{id}", s.handleGetReport)
	api.HandleFunc("GET /api/reports/{id}/pdf", s.handleGetReportPDF)
	api.HandleFunc("GET /api/summary", s.handleSummary)

	var protected http.Handler = api
	if s.limiter != nil {
		protected = s.limiter.Middleware(rateLimitKey, func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		})(protected)
	}
	protected = s.authn.Middleware(func(w http.ResponseWriter, r *http.Request, err error) {
		writeError(w, http.StatusUnauthorized, err.Error())
	})(protected)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("/api/", protected)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	var h http.Handler = mux
	h = log.AccessLog(h)
	h = log.Middleware(s.logger, trace.RequestIDFromRequest)(h)
	h = trace.Middleware(h)
	h = headers.Middleware(h)
	return h
}

// rateLimitKey buckets by user, or by client IP for requests that reach the
// limiter without an identity.
func rateLimitKey(r *http.Request) string {
	if uid, err := auth.UserIDFromContext(r.Context()); err == nil {
		return "user:" + uid
	}
	return "ip:" + trace.ClientIP(r)
}

func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		if s.limiter != nil {
			s.limiter.Stop()
		}
		err = s.Server.Shutdown(ctx)
	})
	return err
}

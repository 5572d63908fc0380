package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/amqp"
	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/log"
)

// Reports never change once written, so cached copies only age out.
const (
	reportCacheTTL     = 15 * time.Minute
	reportCacheCleanup = 30 * time.Minute
)

// FinanceStore is the storage surface needed by the API.
type FinanceStore interface {
	CreateCategory(ctx context.Context, c core.Category) error
	ListCategories(ctx context.Context, userID string) ([]core.Category, error)
	CreateExpense(ctx context.Context, e core.Expense) error
	ListExpenses(ctx context.Context, userID string, start, end core.Date) ([]core.ExpenseLine, error)
	CreateBudget(ctx context.Context, b core.Budget) error
	ListBudgetViews(ctx context.Context, userID string) ([]core.BudgetView, error)
	ListReports(ctx context.Context, userID string, limit int) ([]core.Report, error)
	GetReport(ctx context.Context, userID, id string) (core.Report, error)
	CategorySummary(ctx context.Context, userID string, start, end core.Date) ([]core.CategoryTotal, error)
}

// JobPublisher enqueues background jobs.
type JobPublisher interface {
	PublishJob(ctx context.Context, jobType amqp.JobType, userID string) error
}

var ErrQueueUnavailable = errors.New("job queue not available")

// FinanceService orchestrates user-facing writes across SQLite and AMQP.
// Writes land in SQLite first; the follow-up job is best effort.
type FinanceService struct {
	store     FinanceStore
	publisher JobPublisher
	reports   cache.Cache[core.Report]
	logger    *log.Logger
	newID     func() string
}

// NewFinanceService creates the service. publisher may be nil, in which
// case no jobs are enqueued.
func NewFinanceService(store FinanceStore, publisher JobPublisher) *FinanceService {
	return &FinanceService{
		store:     store,
		publisher: publisher,
		reports:   cache.NewTTLCache[core.Report](reportCacheTTL, reportCacheCleanup),
		logger:    log.FromContext(context.Background()).WithComponent(log.ComponentFinance),
		newID:     uuid.NewString,
	}
}

func (s *FinanceService) WithLogger(logger *log.Logger) *FinanceService {
	s.logger = logger.WithComponent(log.ComponentFinance)
	return s
}

func (s *FinanceService) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	c.ID = s.newID()
	if err := s.store.CreateCategory(ctx, c); err != nil {
		return core.Category{}, err
	}
	return c, nil
}

func (s *FinanceService) ListCategories(ctx context.Context, userID string) ([]core.Category, error) {
	return s.store.ListCategories(ctx, userID)
}

// CreateExpense saves the expense and asks for the user's budgets to be
// recalculated.
func (s *FinanceService) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	e.ID = s.newID()
	if err := s.store.CreateExpense(ctx, e); err != nil {
		return core.Expense{}, err
	}
	s.enqueue(ctx, amqp.JobRecalculateBudget, e.UserID)
	return e, nil
}

func (s *FinanceService) ListExpenses(ctx context.Context, userID string, start, end core.Date) ([]core.ExpenseLine, error) {
	if end.Before(start.Time) {
		return nil, fmt.Errorf("%w: end before start", core.ErrInvalidDate)
	}
	return s.store.ListExpenses(ctx, userID, start, end)
}

// CreateBudget saves the budget and asks for a recalculation so its derived
// fields are filled in.
func (s *FinanceService) CreateBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	b.ID = s.newID()
	if err := s.store.CreateBudget(ctx, b); err != nil {
		return core.Budget{}, err
	}
	s.enqueue(ctx, amqp.JobRecalculateBudget, b.UserID)
	return b, nil
}

func (s *FinanceService) ListBudgets(ctx context.Context, userID string) ([]core.BudgetView, error) {
	return s.store.ListBudgetViews(ctx, userID)
}

// ScheduleReport enqueues a monthly report. Unlike the other writes this
// fails when the job cannot be published, since enqueuing is all it does.
func (s *FinanceService) ScheduleReport(ctx context.Context, userID string) error {
	if userID == "" {
		return core.ErrMissingUserID
	}
	if s.publisher == nil {
		return ErrQueueUnavailable
	}
	if err := s.publisher.PublishJob(ctx, amqp.JobGenerateMonthlyReport, userID); err != nil {
		return fmt.Errorf("schedule report: %w", err)
	}
	return nil
}

func (s *FinanceService) ListReports(ctx context.Context, userID string, limit int) ([]core.Report, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.store.ListReports(ctx, userID, limit)
}

func (s *FinanceService) GetReport(ctx context.Context, userID, id string) (core.Report, error) {
	key := userID + "/" + id
	if rep, ok := s.reports.Get(key); ok {
		return rep, nil
	}
	rep, err := s.store.GetReport(ctx, userID, id)
	if err != nil {
		return core.Report{}, err
	}
	s.reports.Set(key, rep)
	return rep, nil
}

func (s *FinanceService) Summary(ctx context.Context, userID string, start, end core.Date) ([]core.CategoryTotal, error) {
	return s.store.CategorySummary(ctx, userID, start, end)
}

func (s *FinanceService) enqueue(ctx context.Context, jobType amqp.JobType, userID string) {
	if s.publisher == nil {
		s.logger.WarnContext(ctx, "AMQP client not available, skipping job", log.FieldJobType, string(jobType), log.FieldUserID, userID)
		return
	}
	if err := s.publisher.PublishJob(ctx, jobType, userID); err != nil {
		// The write already succeeded; the next job for this user catches up.
		s.logger.ErrorContext(ctx, "Failed to publish job", log.FieldJobType, string(jobType), log.FieldUserID, userID, log.FieldError, err)
	}
}

package services

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/log"
)

type publishedJob struct {
	jobType amqp.JobType
	userID  string
}

type fakePublisher struct {
	jobs []publishedJob
	err  error
}

func (p *fakePublisher) PublishJob(_ context.Context, jobType amqp.JobType, userID string) error {
	p.jobs = append(p.jobs, publishedJob{jobType, userID})
	return p.err
}

func TestFinanceService_CreateExpenseEnqueuesRecalculation(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t)
	pub := &fakePublisher{}
	svc := NewFinanceService(repo, pub)

	cat, err := svc.CreateCategory(ctx, core.Category{UserID: "u1", Name: "Food", Color: "#ff0000"})
	require.NoError(t, err)
	assert.NotEmpty(t, cat.ID)

	e, err := svc.CreateExpense(ctx, core.Expense{
		UserID:      "u1",
		CategoryID:  cat.ID,
		Amount:      decimal.RequireFromString("12.30"),
		Description: "Lunch",
		Date:        core.NewDate(2024, 5, 2),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, []publishedJob{{amqp.JobRecalculateBudget, "u1"}}, pub.jobs)

	lines, err := svc.ListExpenses(ctx, "u1", core.NewDate(2024, 5, 1), core.NewDate(2024, 5, 31))
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "Food", lines[0].Label())
}

func TestFinanceService_PublishFailureKeepsWrite(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t)
	var buf bytes.Buffer
	svc := NewFinanceService(repo, &fakePublisher{err: errors.New("connection closed")}).
		WithLogger(log.New(log.Config{Component: log.ComponentApp, Output: &buf}))

	_, err := svc.CreateExpense(ctx, core.Expense{
		UserID:      "u1",
		Amount:      decimal.NewFromInt(3),
		Description: "Coffee",
		Date:        core.NewDate(2024, 5, 2),
	})
	require.NoError(t, err)

	lines, err := svc.ListExpenses(ctx, "u1", core.NewDate(2024, 1, 1), core.NewDate(2024, 12, 31))
	require.NoError(t, err)
	assert.Len(t, lines, 1)

	assert.Contains(t, buf.String(), "Failed to publish job")
	assert.Contains(t, buf.String(), "component=finance")
	assert.Contains(t, buf.String(), "job_type=RECALCULATE_BUDGET")
}

func TestFinanceService_InvalidExpenseIsNotPublished(t *testing.T) {
	pub := &fakePublisher{}
	svc := NewFinanceService(newTestStore(t), pub)

	_, err := svc.CreateExpense(context.Background(), core.Expense{
		UserID: "u1",
		Amount: decimal.NewFromInt(3),
		Date:   core.NewDate(2024, 5, 2),
	})
	assert.ErrorIs(t, err, core.ErrEmptyDescription)
	assert.Empty(t, pub.jobs)
}

func TestFinanceService_CreateBudget(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t)
	pub := &fakePublisher{}
	svc := NewFinanceService(repo, pub)

	cat, err := svc.CreateCategory(ctx, core.Category{UserID: "u1", Name: "Travel"})
	require.NoError(t, err)

	_, err = svc.CreateBudget(ctx, core.Budget{UserID: "u1", CategoryID: cat.ID, Amount: decimal.NewFromInt(200), Period: "fortnightly"})
	assert.ErrorIs(t, err, core.ErrUnknownPeriod)
	assert.Empty(t, pub.jobs)

	b, err := svc.CreateBudget(ctx, core.Budget{UserID: "u1", CategoryID: cat.ID, Amount: decimal.NewFromInt(200), Period: "monthly"})
	require.NoError(t, err)
	assert.Len(t, pub.jobs, 1)

	views, err := svc.ListBudgets(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, b.ID, views[0].ID)
	assert.Equal(t, "Travel", views[0].CategoryName)
}

func TestFinanceService_ScheduleReport(t *testing.T) {
	ctx := context.Background()

	pub := &fakePublisher{}
	svc := NewFinanceService(newTestStore(t), pub)
	require.NoError(t, svc.ScheduleReport(ctx, "u1"))
	assert.Equal(t, []publishedJob{{amqp.JobGenerateMonthlyReport, "u1"}}, pub.jobs)

	assert.ErrorIs(t, svc.ScheduleReport(ctx, ""), core.ErrMissingUserID)

	noQueue := NewFinanceService(newTestStore(t), nil)
	assert.ErrorIs(t, noQueue.ScheduleReport(ctx, "u1"), ErrQueueUnavailable)

	failing := NewFinanceService(newTestStore(t), &fakePublisher{err: errors.New("channel closed")})
	assert.Error(t, failing.ScheduleReport(ctx, "u1"))
}

func TestFinanceService_ListExpensesRejectsInvertedRange(t *testing.T) {
	svc := NewFinanceService(newTestStore(t), nil)
	_, err := svc.ListExpenses(context.Background(), "u1", core.NewDate(2024, 6, 1), core.NewDate(2024, 5, 1))
	assert.ErrorIs(t, err, core.ErrInvalidDate)
}

type countingStore struct {
	FinanceStore
	getReportCalls int
}

func (s *countingStore) GetReport(ctx context.Context, userID, id string) (core.Report, error) {
	s.getReportCalls++
	return s.FinanceStore.GetReport(ctx, userID, id)
}

func TestFinanceService_GetReportIsCached(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t)
	store := &countingStore{FinanceStore: repo}
	svc := NewFinanceService(store, nil)

	require.NoError(t, repo.InsertReport(ctx, core.Report{
		ID:          "report-1",
		UserID:      "u1",
		GeneratedAt: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
		Content:     core.ReportContent{UserID: "u1", Period: "5/1/2024 - 6/1/2024"},
	}))

	for i := 0; i < 3; i++ {
		rep, err := svc.GetReport(ctx, "u1", "report-1")
		require.NoError(t, err)
		assert.Equal(t, "5/1/2024 - 6/1/2024", rep.Content.Period)
	}
	assert.Equal(t, 1, store.getReportCalls)

	_, err := svc.GetReport(ctx, "u2", "report-1")
	assert.ErrorIs(t, err, core.ErrNotFound, "the cache is keyed by owner")
	_, err = svc.GetReport(ctx, "u2", "report-1")
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.Equal(t, 3, store.getReportCalls, "misses are not cached")
}

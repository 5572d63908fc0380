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

	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"fintrack/internal/core"
)

// reportTimeLayout has a fixed width so stored timestamps sort lexically.
const reportTimeLayout = "2006-01-02T15:04:05.000Z07:00"

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	tx      bool
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func isForeignKeyViolation(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
}

// dsn opens transactions with BEGIN IMMEDIATE so a read-then-write
// transaction takes the write lock up front and waits on busy_timeout
// instead of failing on the lock upgrade.
func dsn(dbPath string) string {
	return "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate"
}

// Ping checks the database connection.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil && !r.tx {
		return r.db.Close()
	}
	return nil
}

// InTx runs fn against a repository bound to a single transaction.
// The transaction commits when fn returns nil and rolls back otherwise.
func (r *SQLiteRepository) InTx(ctx context.Context, fn func(BudgetGateway) error) error {
	if r.tx {
		return fn(r)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txRepo := &SQLiteRepository{db: r.db, queries: r.queries.WithTx(tx), tx: true}
	if err := fn(txRepo); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.ErrorContext(ctx, "Failed to roll back transaction", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ListBudgets implements BudgetGateway
func (r *SQLiteRepository) ListBudgets(ctx context.Context, userID string) ([]core.Budget, error) {
	rows, err := r.queries.ListBudgetsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}

	budgets := make([]core.Budget, len(rows))
	for i, row := range rows {
		budgets[i] = budgetFromRow(row)
	}
	return budgets, nil
}

// SumExpenses implements BudgetGateway. Only the calendar day of since is used.
func (r *SQLiteRepository) SumExpenses(ctx context.Context, userID, categoryID string, since time.Time) (decimal.Decimal, error) {
	cents, err := r.queries.SumExpensesSince(ctx, userID, categoryID, core.DateOf(since).String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum expenses: %w", err)
	}
	return core.FromCents(cents), nil
}

// UpdateBudgetComputed implements BudgetGateway
func (r *SQLiteRepository) UpdateBudgetComputed(ctx context.Context, budgetID string, c core.BudgetComputed) error {
	n, err := r.queries.UpdateBudgetComputed(ctx, UpdateBudgetComputedParams{
		CurrentSpentCents: core.ToCents(c.CurrentSpent),
		RemainingCents:    core.ToCents(c.Remaining),
		PercentageUsed:    c.PercentageUsed,
		ID:                budgetID,
	})
	if err != nil {
		return fmt.Errorf("update budget %s: %w", budgetID, err)
	}
	if n == 0 {
		slog.WarnContext(ctx, "Budget vanished before update", "budget_id", budgetID)
	}
	return nil
}

// ListExpensesInRange implements ReportGateway. Both ends are inclusive.
func (r *SQLiteRepository) ListExpensesInRange(ctx context.Context, userID string, start, end time.Time) ([]core.ExpenseLine, error) {
	return r.listExpenseLines(ctx, userID, core.DateOf(start), core.DateOf(end), false)
}

// ListExpenses returns a user's expenses between two days, newest first.
func (r *SQLiteRepository) ListExpenses(ctx context.Context, userID string, start, end core.Date) ([]core.ExpenseLine, error) {
	return r.listExpenseLines(ctx, userID, start, end, true)
}

func (r *SQLiteRepository) listExpenseLines(ctx context.Context, userID string, start, end core.Date, newestFirst bool) ([]core.ExpenseLine, error) {
	rows, err := r.queries.ListExpenseLines(ctx, userID, start.String(), end.String(), newestFirst)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}

	lines := make([]core.ExpenseLine, 0, len(rows))
	for _, row := range rows {
		date, err := core.ParseDate(row.Date)
		if err != nil {
			return nil, fmt.Errorf("expense %s has malformed date %q: %w", row.ID, row.Date, err)
		}
		lines = append(lines, core.ExpenseLine{
			Expense: core.Expense{
				ID:          row.ID,
				UserID:      row.UserID,
				CategoryID:  row.CategoryID.String,
				Amount:      core.FromCents(row.AmountCents),
				Description: row.Description,
				Date:        date,
				ReceiptURL:  row.ReceiptURL,
			},
			CategoryName: row.CategoryName.String,
		})
	}
	return lines, nil
}

// InsertReport implements ReportGateway
func (r *SQLiteRepository) InsertReport(ctx context.Context, rep core.Report) error {
	content, err := rep.EncodeContent()
	if err != nil {
		return err
	}

	err = r.queries.InsertReport(ctx, ReportRow{
		ID:          rep.ID,
		UserID:      rep.UserID,
		Content:     content,
		GeneratedAt: rep.GeneratedAt.UTC().Format(reportTimeLayout),
	})
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}

	slog.InfoContext(ctx, "Report saved to SQLite", "report_id", rep.ID, "user_id", rep.UserID)
	return nil
}

// ListReports returns the most recent reports of a user, newest first.
func (r *SQLiteRepository) ListReports(ctx context.Context, userID string, limit int) ([]core.Report, error) {
	rows, err := r.queries.ListReportsByUser(ctx, userID, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}

	reports := make([]core.Report, 0, len(rows))
	for _, row := range rows {
		rep, err := reportFromRow(row)
		if err != nil {
			return nil, err
		}
		reports = append(reports, rep)
	}
	return reports, nil
}

// GetReport returns a single report owned by userID.
func (r *SQLiteRepository) GetReport(ctx context.Context, userID, id string) (core.Report, error) {
	row, err := r.queries.GetReport(ctx, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Report{}, core.ErrNotFound
	}
	if err != nil {
		return core.Report{}, fmt.Errorf("get report: %w", err)
	}
	return reportFromRow(row)
}

func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) error {
	if err := c.Validate(); err != nil {
		return err
	}
	err := r.queries.InsertCategory(ctx, CategoryRow{ID: c.ID, UserID: c.UserID, Name: c.Name, Color: c.Color})
	if err != nil {
		return fmt.Errorf("create category: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListCategories(ctx context.Context, userID string) ([]core.Category, error) {
	rows, err := r.queries.ListCategoriesByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	cats := make([]core.Category, len(rows))
	for i, row := range rows {
		cats[i] = core.Category{ID: row.ID, UserID: row.UserID, Name: row.Name, Color: row.Color}
	}
	return cats, nil
}

// checkCategoryOwner fails with ErrUnknownCategory unless categoryID belongs
// to userID. The foreign key alone only proves the category exists.
func (r *SQLiteRepository) checkCategoryOwner(ctx context.Context, userID, categoryID string) error {
	owned, err := r.queries.CategoryOwnedBy(ctx, categoryID, userID)
	if err != nil {
		return fmt.Errorf("check category %s: %w", categoryID, err)
	}
	if !owned {
		return core.ErrUnknownCategory
	}
	return nil
}

func (r *SQLiteRepository) CreateExpense(ctx context.Context, e core.Expense) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.CategoryID != "" {
		if err := r.checkCategoryOwner(ctx, e.UserID, e.CategoryID); err != nil {
			return err
		}
	}
	err := r.queries.InsertExpense(ctx, InsertExpenseParams{
		ID:          e.ID,
		UserID:      e.UserID,
		CategoryID:  sql.NullString{String: e.CategoryID, Valid: e.CategoryID != ""},
		AmountCents: core.ToCents(e.Amount),
		Description: e.Description,
		Date:        e.Date.String(),
		ReceiptURL:  e.ReceiptURL,
	})
	if err != nil {
		if isForeignKeyViolation(err) {
			return core.ErrUnknownCategory
		}
		return fmt.Errorf("create expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved to SQLite",
		"id", e.ID,
		"user_id", e.UserID,
		"amount", e.Amount.String(),
		"date", e.Date.String())
	return nil
}

func (r *SQLiteRepository) CreateBudget(ctx context.Context, b core.Budget) error {
	if err := b.Validate(); err != nil {
		return err
	}
	if err := r.checkCategoryOwner(ctx, b.UserID, b.CategoryID); err != nil {
		return err
	}
	err := r.queries.InsertBudget(ctx, InsertBudgetParams{
		ID:          b.ID,
		UserID:      b.UserID,
		CategoryID:  b.CategoryID,
		AmountCents: core.ToCents(b.Amount),
		Period:      b.Period,
	})
	if err != nil {
		if isForeignKeyViolation(err) {
			return core.ErrUnknownCategory
		}
		return fmt.Errorf("create budget: %w", err)
	}
	return nil
}

// ListBudgetViews returns budgets joined with their category, newest first.
func (r *SQLiteRepository) ListBudgetViews(ctx context.Context, userID string) ([]core.BudgetView, error) {
	rows, err := r.queries.ListBudgetViewsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list budget views: %w", err)
	}
	views := make([]core.BudgetView, len(rows))
	for i, row := range rows {
		views[i] = core.BudgetView{
			Budget:        budgetFromRow(row.BudgetRow),
			CategoryName:  row.CategoryName,
			CategoryColor: row.CategoryColor,
			CreatedAt:     parseTimestamp(row.CreatedAt.String),
		}
	}
	return views, nil
}

// CategorySummary returns per-category totals between two days, largest first.
func (r *SQLiteRepository) CategorySummary(ctx context.Context, userID string, start, end core.Date) ([]core.CategoryTotal, error) {
	rows, err := r.queries.CategoryTotals(ctx, userID, start.String(), end.String())
	if err != nil {
		return nil, fmt.Errorf("category summary: %w", err)
	}
	totals := make([]core.CategoryTotal, len(rows))
	for i, row := range rows {
		totals[i] = core.CategoryTotal{
			CategoryID: row.ID,
			Name:       row.Name,
			Color:      row.Color,
			Total:      core.FromCents(row.TotalCents),
		}
	}
	return totals, nil
}

func budgetFromRow(row BudgetRow) core.Budget {
	return core.Budget{
		ID:         row.ID,
		UserID:     row.UserID,
		CategoryID: row.CategoryID,
		Amount:     core.FromCents(row.AmountCents),
		Period:     row.Period,
		Computed: core.BudgetComputed{
			CurrentSpent:   core.FromCents(row.CurrentSpentCents),
			Remaining:      core.FromCents(row.RemainingCents),
			PercentageUsed: row.PercentageUsed,
		},
	}
}

func reportFromRow(row ReportRow) (core.Report, error) {
	content, err := core.DecodeReportContent(row.Content)
	if err != nil {
		return core.Report{}, fmt.Errorf("report %s: %w", row.ID, err)
	}
	generatedAt, err := time.Parse(reportTimeLayout, row.GeneratedAt)
	if err != nil {
		return core.Report{}, fmt.Errorf("report %s has malformed timestamp: %w", row.ID, err)
	}
	return core.Report{
		ID:          row.ID,
		UserID:      row.UserID,
		Content:     content,
		GeneratedAt: generatedAt,
	}, nil
}

// parseTimestamp accepts both SQLite's CURRENT_TIMESTAMP text and RFC 3339.
func parseTimestamp(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

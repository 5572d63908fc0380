package storage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

// Gateway ports consumed by the background jobs.
type (
	BudgetGateway interface {
		ListBudgets(ctx context.Context, userID string) ([]core.Budget, error)
		SumExpenses(ctx context.Context, userID, categoryID string, since time.Time) (decimal.Decimal, error)
		UpdateBudgetComputed(ctx context.Context, budgetID string, c core.BudgetComputed) error
	}

	// TxBudgetGateway runs a read-then-write sequence atomically.
	TxBudgetGateway interface {
		BudgetGateway
		InTx(ctx context.Context, fn func(BudgetGateway) error) error
	}

	ReportGateway interface {
		ListExpensesInRange(ctx context.Context, userID string, start, end time.Time) ([]core.ExpenseLine, error)
		InsertReport(ctx context.Context, r core.Report) error
	}
)

var (
	_ TxBudgetGateway = (*SQLiteRepository)(nil)
	_ ReportGateway   = (*SQLiteRepository)(nil)
)

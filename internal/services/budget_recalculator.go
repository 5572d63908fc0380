package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

// BudgetRecalculator rewrites the derived fields of a user's budgets from
// the expenses recorded in each budget's current period.
type BudgetRecalculator struct {
	store  storage.TxBudgetGateway
	logger *log.Logger
	now    func() time.Time
}

func NewBudgetRecalculator(store storage.TxBudgetGateway) *BudgetRecalculator {
	return &BudgetRecalculator{
		store:  store,
		logger: log.FromContext(context.Background()).WithComponent(log.ComponentBudget),
		now:    time.Now,
	}
}

// WithLogger replaces the process default logger.
func (r *BudgetRecalculator) WithLogger(logger *log.Logger) *BudgetRecalculator {
	r.logger = logger.WithComponent(log.ComponentBudget)
	return r
}

// Recalculate processes the user's budgets one at a time. The first failure
// stops the run; budgets already written keep their new values.
func (r *BudgetRecalculator) Recalculate(ctx context.Context, userID string) error {
	if userID == "" {
		return core.ErrMissingUserID
	}

	budgets, err := r.store.ListBudgets(ctx, userID)
	if err != nil {
		return fmt.Errorf("load budgets: %w", err)
	}

	now := r.now()
	for _, b := range budgets {
		if err := r.recalculateOne(ctx, b, now); err != nil {
			return fmt.Errorf("recalculate budget %s: %w", b.ID, err)
		}
	}

	r.logger.InfoContext(ctx, "Budgets recalculated", log.FieldUserID, userID, "count", len(budgets))
	return nil
}

func (r *BudgetRecalculator) recalculateOne(ctx context.Context, b core.Budget, now time.Time) error {
	period, err := core.ParsePeriod(b.Period)
	if err != nil {
		return err
	}
	window, err := core.ResolveWindow(period, now)
	if err != nil {
		return err
	}

	return r.store.InTx(ctx, func(tx storage.BudgetGateway) error {
		spent, err := tx.SumExpenses(ctx, b.UserID, b.CategoryID, window.Start)
		if err != nil {
			return err
		}
		computed := ComputeBudget(b.Amount, spent)

		r.logger.DebugContext(ctx, "Budget computed",
			log.FieldBudgetID, b.ID,
			"period", string(period),
			"spent", computed.CurrentSpent.StringFixed(2),
			"percentage_used", computed.PercentageUsed)

		return tx.UpdateBudgetComputed(ctx, b.ID, computed)
	})
}

// ComputeBudget derives spent, remaining and percentage used for a budget
// amount. A zero amount yields "0.0".
func ComputeBudget(amount, spent decimal.Decimal) core.BudgetComputed {
	return core.BudgetComputed{
		CurrentSpent:   spent,
		Remaining:      amount.Sub(spent),
		PercentageUsed: core.FormatPercentage(core.Percentage(spent, amount)),
	}
}

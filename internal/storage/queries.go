package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type BudgetRow struct {
	ID                string
	UserID            string
	CategoryID        string
	AmountCents       int64
	Period            string
	CurrentSpentCents int64
	RemainingCents    int64
	PercentageUsed    string
}

type BudgetViewRow struct {
	BudgetRow
	CategoryName  string
	CategoryColor string
	CreatedAt     sql.NullString
}

type ExpenseLineRow struct {
	ID           string
	UserID       string
	CategoryID   sql.NullString
	AmountCents  int64
	Description  string
	Date         string
	ReceiptURL   string
	CategoryName sql.NullString
}

type CategoryRow struct {
	ID     string
	UserID string
	Name   string
	Color  string
}

type CategoryTotalRow struct {
	ID         string
	Name       string
	Color      string
	TotalCents int64
}

type ReportRow struct {
	ID          string
	UserID      string
	Content     string
	GeneratedAt string
}

const listBudgetsByUser = `
SELECT id, user_id, category_id, amount_cents, period,
       current_spent_cents, remaining_cents, percentage_used
FROM budgets
WHERE user_id = ?
ORDER BY created_at, id
`

func (q *Queries) ListBudgetsByUser(ctx context.Context, userID string) ([]BudgetRow, error) {
	rows, err := q.db.QueryContext(ctx, listBudgetsByUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []BudgetRow
	for rows.Next() {
		var i BudgetRow
		if err := rows.Scan(
			&i.ID,
			&i.UserID,
			&i.CategoryID,
			&i.AmountCents,
			&i.Period,
			&i.CurrentSpentCents,
			&i.RemainingCents,
			&i.PercentageUsed,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const listBudgetViewsByUser = `
SELECT b.id, b.user_id, b.category_id, b.amount_cents, b.period,
       b.current_spent_cents, b.remaining_cents, b.percentage_used,
       c.name, c.color, b.created_at
FROM budgets b
JOIN categories c ON b.category_id = c.id AND c.user_id = b.user_id
WHERE b.user_id = ?
ORDER BY b.created_at DESC, b.id
`

func (q *Queries) ListBudgetViewsByUser(ctx context.Context, userID string) ([]BudgetViewRow, error) {
	rows, err := q.db.QueryContext(ctx, listBudgetViewsByUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []BudgetViewRow
	for rows.Next() {
		var i BudgetViewRow
		if err := rows.Scan(
			&i.ID,
			&i.UserID,
			&i.CategoryID,
			&i.AmountCents,
			&i.Period,
			&i.CurrentSpentCents,
			&i.RemainingCents,
			&i.PercentageUsed,
			&i.CategoryName,
			&i.CategoryColor,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const sumExpensesSince = `
SELECT COALESCE(SUM(amount_cents), 0)
FROM expenses
WHERE user_id = ?
  AND category_id = ?
  AND date >= ?
`

func (q *Queries) SumExpensesSince(ctx context.Context, userID, categoryID, since string) (int64, error) {
	var total int64
	err := q.db.QueryRowContext(ctx, sumExpensesSince, userID, categoryID, since).Scan(&total)
	return total, err
}

const updateBudgetComputed = `
UPDATE budgets
SET current_spent_cents = ?, remaining_cents = ?, percentage_used = ?,
    updated_at = CURRENT_TIMESTAMP
WHERE id = ?
`

type UpdateBudgetComputedParams struct {
	CurrentSpentCents int64
	RemainingCents    int64
	PercentageUsed    string
	ID                string
}

func (q *Queries) UpdateBudgetComputed(ctx context.Context, arg UpdateBudgetComputedParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateBudgetComputed,
		arg.CurrentSpentCents,
		arg.RemainingCents,
		arg.PercentageUsed,
		arg.ID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listExpenseLines = `
SELECT e.id, e.user_id, e.category_id, e.amount_cents, e.description,
       e.date, e.receipt_url, c.name
FROM expenses e
LEFT JOIN categories c ON e.category_id = c.id AND c.user_id = e.user_id
WHERE e.user_id = ?
  AND e.date BETWEEN ? AND ?
`

const listExpenseLinesAsc = listExpenseLines + `ORDER BY e.date ASC, e.rowid ASC`

const listExpenseLinesDesc = listExpenseLines + `ORDER BY e.date DESC, e.rowid DESC`

func (q *Queries) ListExpenseLines(ctx context.Context, userID, start, end string, newestFirst bool) ([]ExpenseLineRow, error) {
	query := listExpenseLinesAsc
	if newestFirst {
		query = listExpenseLinesDesc
	}
	rows, err := q.db.QueryContext(ctx, query, userID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ExpenseLineRow
	for rows.Next() {
		var i ExpenseLineRow
		if err := rows.Scan(
			&i.ID,
			&i.UserID,
			&i.CategoryID,
			&i.AmountCents,
			&i.Description,
			&i.Date,
			&i.ReceiptURL,
			&i.CategoryName,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const insertExpense = `
INSERT INTO expenses (id, user_id, category_id, amount_cents, description, date, receipt_url)
VALUES (?, ?, ?, ?, ?, ?, ?)
`

type InsertExpenseParams struct {
	ID          string
	UserID      string
	CategoryID  sql.NullString
	AmountCents int64
	Description string
	Date        string
	ReceiptURL  string
}

func (q *Queries) InsertExpense(ctx context.Context, arg InsertExpenseParams) error {
	_, err := q.db.ExecContext(ctx, insertExpense,
		arg.ID,
		arg.UserID,
		arg.CategoryID,
		arg.AmountCents,
		arg.Description,
		arg.Date,
		arg.ReceiptURL,
	)
	return err
}

const insertBudget = `
INSERT INTO budgets (id, user_id, category_id, amount_cents, period)
VALUES (?, ?, ?, ?, ?)
`

type InsertBudgetParams struct {
	ID          string
	UserID      string
	CategoryID  string
	AmountCents int64
	Period      string
}

func (q *Queries) InsertBudget(ctx context.Context, arg InsertBudgetParams) error {
	_, err := q.db.ExecContext(ctx, insertBudget,
		arg.ID,
		arg.UserID,
		arg.CategoryID,
		arg.AmountCents,
		arg.Period,
	)
	return err
}

const insertCategory = `
INSERT INTO categories (id, user_id, name, color)
VALUES (?, ?, ?, ?)
`

func (q *Queries) InsertCategory(ctx context.Context, arg CategoryRow) error {
	_, err := q.db.ExecContext(ctx, insertCategory, arg.ID, arg.UserID, arg.Name, arg.Color)
	return err
}

const categoryOwnedBy = `
SELECT EXISTS (SELECT 1 FROM categories WHERE id = ? AND user_id = ?)
`

func (q *Queries) CategoryOwnedBy(ctx context.Context, id, userID string) (bool, error) {
	var owned bool
	err := q.db.QueryRowContext(ctx, categoryOwnedBy, id, userID).Scan(&owned)
	return owned, err
}

const listCategoriesByUser = `
SELECT id, user_id, name, color
FROM categories
WHERE user_id = ?
ORDER BY name
`

func (q *Queries) ListCategoriesByUser(ctx context.Context, userID string) ([]CategoryRow, error) {
	rows, err := q.db.QueryContext(ctx, listCategoriesByUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CategoryRow
	for rows.Next() {
		var i CategoryRow
		if err := rows.Scan(&i.ID, &i.UserID, &i.Name, &i.Color); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const categoryTotals = `
SELECT c.id, c.name, c.color, SUM(e.amount_cents) AS total
FROM expenses e
JOIN categories c ON e.category_id = c.id AND c.user_id = e.user_id
WHERE e.user_id = ?
  AND e.date BETWEEN ? AND ?
GROUP BY c.id, c.name, c.color
ORDER BY total DESC
`

func (q *Queries) CategoryTotals(ctx context.Context, userID, start, end string) ([]CategoryTotalRow, error) {
	rows, err := q.db.QueryContext(ctx, categoryTotals, userID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CategoryTotalRow
	for rows.Next() {
		var i CategoryTotalRow
		if err := rows.Scan(&i.ID, &i.Name, &i.Color, &i.TotalCents); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const insertReport = `
INSERT INTO reports (id, user_id, content, generated_at)
VALUES (?, ?, ?, ?)
`

func (q *Queries) InsertReport(ctx context.Context, arg ReportRow) error {
	_, err := q.db.ExecContext(ctx, insertReport, arg.ID, arg.UserID, arg.Content, arg.GeneratedAt)
	return err
}

const listReportsByUser = `
SELECT id, user_id, content, generated_at
FROM reports
WHERE user_id = ?
ORDER BY generated_at DESC, id
LIMIT ?
`

func (q *Queries) ListReportsByUser(ctx context.Context, userID string, limit int64) ([]ReportRow, error) {
	rows, err := q.db.QueryContext(ctx, listReportsByUser, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ReportRow
	for rows.Next() {
		var i ReportRow
		if err := rows.Scan(&i.ID, &i.UserID, &i.Content, &i.GeneratedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const getReport = `
SELECT id, user_id, content, generated_at
FROM reports
WHERE id = ? AND user_id = ?
`

func (q *Queries) GetReport(ctx context.Context, id, userID string) (ReportRow, error) {
	var i ReportRow
	err := q.db.QueryRowContext(ctx, getReport, id, userID).Scan(&i.ID, &i.UserID, &i.Content, &i.GeneratedAt)
	return i, err
}

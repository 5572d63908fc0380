package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// UncategorizedLabel is the report label for expenses without a category.
const UncategorizedLabel = "Uncategorized"

type (
	Category struct {
		ID     string
		UserID string
		Name   string
		Color  string
	}

	Expense struct {
		ID          string
		UserID      string
		CategoryID  string // empty when uncategorized
		Amount      decimal.Decimal
		Description string
		Date        Date
		ReceiptURL  string
	}

	// ExpenseLine is an expense joined with its category name.
	ExpenseLine struct {
		Expense
		CategoryName string
	}

	Budget struct {
		ID         string
		UserID     string
		CategoryID string
		Amount     decimal.Decimal
		Period     string // raw stored value, see ParsePeriod
		Computed   BudgetComputed
	}

	// BudgetView is a budget joined with its category for display.
	BudgetView struct {
		Budget
		CategoryName  string
		CategoryColor string
		CreatedAt     time.Time
	}

	// BudgetComputed holds the derived fields rewritten by recalculation.
	BudgetComputed struct {
		CurrentSpent   decimal.Decimal
		Remaining      decimal.Decimal
		PercentageUsed string
	}

	// CategoryTotal is an aggregated amount for one category.
	CategoryTotal struct {
		CategoryID string
		Name       string
		Color      string
		Total      decimal.Decimal
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrMissingUserID    = errors.New("missing user id")
	ErrMissingCategory  = errors.New("missing category")
	ErrUnknownCategory  = errors.New("unknown category")
	ErrEmptyName        = errors.New("empty name")
	ErrNotFound         = errors.New("not found")

	ErrDescriptionTooLong = errors.New("description too long (max 200 characters)")
)

func (e Expense) Validate() error {
	if strings.TrimSpace(e.UserID) == "" {
		return ErrMissingUserID
	}
	if e.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	if len(strings.TrimSpace(e.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(e.Description) > 200 {
		return ErrDescriptionTooLong
	}
	return e.Date.Validate()
}

func (b Budget) Validate() error {
	if strings.TrimSpace(b.UserID) == "" {
		return ErrMissingUserID
	}
	if strings.TrimSpace(b.CategoryID) == "" {
		return ErrMissingCategory
	}
	if b.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	_, err := ParsePeriod(b.Period)
	return err
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return ErrMissingUserID
	}
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	return nil
}

// Label returns the category name used in reports.
func (l ExpenseLine) Label() string {
	if l.CategoryName == "" {
		return UncategorizedLabel
	}
	return l.CategoryName
}

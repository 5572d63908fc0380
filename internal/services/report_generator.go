package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/sheets"
	"fintrack/internal/storage"
)

// ReportGenerator builds write-once spending reports over the last month.
type ReportGenerator struct {
	store    storage.ReportGateway
	exporter sheets.ReportExporter
	logger   *log.Logger
	now      func() time.Time
	newID    func() string
}

func NewReportGenerator(store storage.ReportGateway, exporter sheets.ReportExporter) *ReportGenerator {
	return &ReportGenerator{
		store:    store,
		exporter: exporter,
		logger:   log.FromContext(context.Background()).WithComponent(log.ComponentReport),
		now:      time.Now,
		newID:    func() string { return "report-" + uuid.NewString() },
	}
}

// WithLogger replaces the process default logger.
func (g *ReportGenerator) WithLogger(logger *log.Logger) *ReportGenerator {
	g.logger = logger.WithComponent(log.ComponentReport)
	return g
}

// GenerateMonthlyReport summarizes the user's expenses between one calendar
// month ago and now, persists the result and returns it. A configured
// exporter receives a copy; export failures do not fail the report.
func (g *ReportGenerator) GenerateMonthlyReport(ctx context.Context, userID string) (core.Report, error) {
	if userID == "" {
		return core.Report{}, core.ErrMissingUserID
	}

	now := g.now()
	window := core.PreviousMonthWindow(now)

	lines, err := g.store.ListExpensesInRange(ctx, userID, window.Start, window.End)
	if err != nil {
		return core.Report{}, fmt.Errorf("load expenses: %w", err)
	}

	total, shares := summarize(lines)
	rep := core.Report{
		ID:     g.newID(),
		UserID: userID,
		Content: core.ReportContent{
			UserID:      userID,
			Period:      window.Label(),
			TotalSpent:  total.InexactFloat64(),
			Categories:  shares,
			GeneratedAt: now,
		},
		GeneratedAt: now,
	}

	if err := g.store.InsertReport(ctx, rep); err != nil {
		return core.Report{}, fmt.Errorf("save report: %w", err)
	}

	if g.exporter != nil {
		if err := g.exporter.ExportReport(ctx, rep); err != nil {
			g.logger.WarnContext(ctx, "Report export failed", log.FieldReportID, rep.ID, log.FieldError, err)
		}
	}

	return rep, nil
}

// summarize groups lines by category label in first-seen order.
func summarize(lines []core.ExpenseLine) (decimal.Decimal, []core.CategoryShare) {
	var (
		order  []string
		totals = make(map[string]decimal.Decimal)
		total  = decimal.Zero
	)
	for _, l := range lines {
		label := l.Label()
		if _, seen := totals[label]; !seen {
			order = append(order, label)
		}
		totals[label] = totals[label].Add(l.Amount)
		total = total.Add(l.Amount)
	}

	shares := make([]core.CategoryShare, 0, len(order))
	for _, label := range order {
		amount := totals[label]
		shares = append(shares, core.CategoryShare{
			Name:       label,
			Amount:     amount.InexactFloat64(),
			Percentage: core.FormatPercentage(core.Percentage(amount, total)),
		})
	}
	return total, shares
}

package sheets

import (
	"context"

	"fintrack/internal/core"
)

// Ports for outbound adapters.
type (
	// ReportExporter copies a generated report to an external spreadsheet.
	ReportExporter interface {
		ExportReport(ctx context.Context, r core.Report) error
	}
)

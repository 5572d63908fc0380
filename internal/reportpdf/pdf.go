// Package reportpdf renders monthly reports as a one-table PDF.
package reportpdf

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/phpdave11/gofpdf"

	"fintrack/internal/core"
)

var colW = []float64{110, 40, 32}

// Render writes r to w as an A4 PDF: a header, one row per category and a
// total row.
func Render(w io.Writer, r core.Report) error {
	if err := build(r).Output(w); err != nil {
		return fmt.Errorf("render report pdf: %w", err)
	}
	return nil
}

func build(r core.Report) *gofpdf.Fpdf {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(14, 14, 14)
	// Rows break pages by hand so the footer never spills onto a blank page.
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.SetTextColor(20, 20, 20)
	pdf.Cell(0, 10, "Monthly spending report")
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(80, 80, 80)
	pdf.Cell(0, 6, "Period: "+r.Content.Period)
	pdf.Ln(5)
	pdf.Cell(0, 6, "Report: "+r.ID)
	pdf.Ln(10)

	writeHeader(pdf)

	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(30, 30, 30)
	for _, c := range r.Content.Categories {
		if pdf.GetY() > 270 {
			pdf.AddPage()
			writeHeader(pdf)
			pdf.SetFont("Helvetica", "", 10)
		}
		pdf.CellFormat(colW[0], 8, c.Name, "1", 0, "L", false, 0, "")
		pdf.CellFormat(colW[1], 8, formatAmount(c.Amount), "1", 0, "R", false, 0, "")
		pdf.CellFormat(colW[2], 8, c.Percentage+"%", "1", 1, "R", false, 0, "")
	}

	totalPct := "100.0"
	if r.Content.TotalSpent == 0 {
		totalPct = "0.0"
	}
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(colW[0], 8, "Total", "1", 0, "L", true, 0, "")
	pdf.CellFormat(colW[1], 8, formatAmount(r.Content.TotalSpent), "1", 0, "R", true, 0, "")
	pdf.CellFormat(colW[2], 8, totalPct+"%", "1", 1, "R", true, 0, "")

	pdf.SetY(-18)
	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(120, 120, 120)
	pdf.CellFormat(0, 10, "Generated "+r.GeneratedAt.UTC().Format(time.RFC3339), "", 0, "C", false, 0, "")
	return pdf
}

func writeHeader(pdf *gofpdf.Fpdf) {
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(245, 245, 245)
	pdf.SetTextColor(20, 20, 20)
	pdf.CellFormat(colW[0], 8, "CATEGORY", "1", 0, "L", true, 0, "")
	pdf.CellFormat(colW[1], 8, "AMOUNT", "1", 0, "R", true, 0, "")
	pdf.CellFormat(colW[2], 8, "SHARE", "1", 1, "R", true, 0, "")
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

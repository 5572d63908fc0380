package reportpdf

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
)

func TestRender(t *testing.T) {
	generated := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	rep := core.Report{
		ID:          "report-1",
		UserID:      "u1",
		GeneratedAt: generated,
		Content: core.ReportContent{
			UserID:     "u1",
			Period:     "5/1/2024 - 6/1/2024",
			TotalSpent: 80,
			Categories: []core.CategoryShare{
				{Name: "A", Amount: 50, Percentage: "62.5"},
				{Name: "B", Amount: 30, Percentage: "37.5"},
			},
			GeneratedAt: generated,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, rep))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
}

func TestRender_ManyCategoriesSpillOntoNewPages(t *testing.T) {
	rep := core.Report{ID: "report-2"}
	for i := 0; i < 80; i++ {
		rep.Content.Categories = append(rep.Content.Categories, core.CategoryShare{Name: "C", Amount: 1, Percentage: "1.3"})
	}

	pdf := build(rep)
	require.NoError(t, pdf.Error())
	assert.Greater(t, pdf.PageCount(), 1)
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "12.50", formatAmount(12.5))
	assert.Equal(t, "0.00", formatAmount(0))
}

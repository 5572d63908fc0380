package google

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
)

func TestReportRows(t *testing.T) {
	generated := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	rep := core.Report{
		ID:     "report-1",
		UserID: "u1",
		Content: core.ReportContent{
			Period:     "5/1/2024 - 6/1/2024",
			TotalSpent: 80,
			Categories: []core.CategoryShare{
				{Name: "A", Amount: 50, Percentage: "62.5"},
				{Name: "B", Amount: 30, Percentage: "37.5"},
			},
		},
		GeneratedAt: generated,
	}

	rows := reportRows(rep)
	require.Len(t, rows, 3)
	assert.Equal(t, []any{"2024-06-01T10:00:00Z", "report-1", "u1", "5/1/2024 - 6/1/2024", "A", 50.0, "62.5"}, rows[0])
	assert.Equal(t, "B", rows[1][4])
	assert.Equal(t, []any{"2024-06-01T10:00:00Z", "report-1", "u1", "5/1/2024 - 6/1/2024", "TOTAL", 80.0, "100.0"}, rows[2])
}

func TestReportRows_Empty(t *testing.T) {
	rows := reportRows(core.Report{ID: "report-2", UserID: "u1"})
	require.Len(t, rows, 1)
	assert.Equal(t, "TOTAL", rows[0][4])
	assert.Equal(t, "0.0", rows[0][6])
}

func TestLoadCredentials(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	got, err := loadCredentials(Config{CredentialsJSON: `{"type":"service_account"}`, CredentialsFile: "/does/not/exist"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"service_account"}`, string(got))

	path := filepath.Join(t.TempDir(), "sa.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"from":"file"}`), 0o600))
	got, err = loadCredentials(Config{CredentialsFile: path})
	require.NoError(t, err)
	assert.JSONEq(t, `{"from":"file"}`, string(got))

	_, err = loadCredentials(Config{})
	assert.Error(t, err)
}

func TestNew_RequiresSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), Config{CredentialsJSON: "{}"})
	assert.EqualError(t, err, "missing spreadsheet id")
}

func TestExportReport_UninitializedService(t *testing.T) {
	c := &Client{spreadsheetID: "sheet", reportSheet: defaultReportSheet}
	assert.Error(t, c.ExportReport(context.Background(), core.Report{ID: "report-1"}))
}

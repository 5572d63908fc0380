package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// CategoryShare is one row of a report breakdown.
type CategoryShare struct {
	Name       string  `json:"name"`
	Amount     float64 `json:"amount"`
	Percentage string  `json:"percentage"`
}

// ReportContent is the JSON document persisted for a report.
type ReportContent struct {
	UserID      string          `json:"userId"`
	Period      string          `json:"period"`
	TotalSpent  float64         `json:"totalSpent"`
	Categories  []CategoryShare `json:"categories"`
	GeneratedAt time.Time       `json:"generatedAt"`
}

// Report is a write-once snapshot of a user's spending.
type Report struct {
	ID          string
	UserID      string
	Content     ReportContent
	GeneratedAt time.Time
}

// EncodeContent renders the report content as stored JSON text.
func (r Report) EncodeContent() (string, error) {
	b, err := json.Marshal(r.Content)
	if err != nil {
		return "", fmt.Errorf("marshal report content: %w", err)
	}
	return string(b), nil
}

// DecodeReportContent parses stored report JSON text.
func DecodeReportContent(s string) (ReportContent, error) {
	var c ReportContent
	if err := json.Unmarshal([]byte(s), &c); err != nil {
		return ReportContent{}, fmt.Errorf("unmarshal report content: %w", err)
	}
	return c, nil
}

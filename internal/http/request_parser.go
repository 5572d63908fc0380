package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"fintrack/internal/core"
)

const maxBodyBytes = 64 << 10

var (
	defaultRangeStart = core.NewDate(1970, 1, 1)
	defaultRangeEnd   = core.NewDate(2099, 12, 31)
)

// decimalText accepts an amount written either as a JSON number or string,
// keeping the literal text so no float rounding happens before parsing.
type decimalText string

func (d *decimalText) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*d = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*d = decimalText(str)
		return nil
	}
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return fmt.Errorf("amount %s is not a number", s)
	}
	*d = decimalText(s)
	return nil
}

type createCategoryRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

type createExpenseRequest struct {
	Amount      decimalText `json:"amount"`
	Description string      `json:"description"`
	Date        string      `json:"date"`
	CategoryID  string      `json:"categoryId"`
	ReceiptURL  string      `json:"receiptUrl"`
}

type createBudgetRequest struct {
	CategoryID string      `json:"categoryId"`
	Amount     decimalText `json:"amount"`
	Period     string      `json:"period"`
}

// decodeJSON reads a single JSON object into dst, rejecting unknown fields
// and trailing data.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("malformed request body: %w", err)
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

// parseDateRange reads the start and end query parameters, defaulting each
// to an open bound.
func parseDateRange(r *http.Request) (core.Date, core.Date, error) {
	start, err := parseOptionalDate(r.URL.Query().Get("start"), defaultRangeStart)
	if err != nil {
		return core.Date{}, core.Date{}, fmt.Errorf("start: %w", err)
	}
	end, err := parseOptionalDate(r.URL.Query().Get("end"), defaultRangeEnd)
	if err != nil {
		return core.Date{}, core.Date{}, fmt.Errorf("end: %w", err)
	}
	return start, end, nil
}

func parseOptionalDate(s string, fallback core.Date) (core.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback, nil
	}
	return core.ParseDate(s)
}

// sanitizeInput trims s and drops control characters other than tab and newlines.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}

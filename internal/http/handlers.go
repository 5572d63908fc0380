package http

import (
	"bytes"
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/middleware/auth"
	"fintrack/internal/reportpdf"
)

type categoryResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

type expenseResponse struct {
	ID           string  `json:"id"`
	Amount       float64 `json:"amount"`
	Description  string  `json:"description"`
	Date         string  `json:"date"`
	CategoryID   string  `json:"categoryId,omitempty"`
	CategoryName string  `json:"categoryName,omitempty"`
	ReceiptURL   string  `json:"receiptUrl,omitempty"`
}

type budgetResponse struct {
	ID             string  `json:"id"`
	CategoryID     string  `json:"categoryId"`
	CategoryName   string  `json:"categoryName,omitempty"`
	CategoryColor  string  `json:"categoryColor,omitempty"`
	Amount         float64 `json:"amount"`
	Period         string  `json:"period"`
	CurrentSpent   float64 `json:"currentSpent"`
	Remaining      float64 `json:"remaining"`
	PercentageUsed string  `json:"percentageUsed"`
}

type reportResponse struct {
	ID          string             `json:"id"`
	Content     core.ReportContent `json:"content"`
	GeneratedAt time.Time          `json:"generatedAt"`
}

type summaryResponse struct {
	CategoryID string  `json:"categoryId,omitempty"`
	Name       string  `json:"name"`
	Color      string  `json:"color,omitempty"`
	Total      float64 `json:"total"`
}

func toCategoryResponse(c core.Category) categoryResponse {
	return categoryResponse{ID: c.ID, Name: c.Name, Color: c.Color}
}

func toExpenseResponse(l core.ExpenseLine) expenseResponse {
	return expenseResponse{
		ID:           l.ID,
		Amount:       l.Amount.InexactFloat64(),
		Description:  l.Description,
		Date:         l.Date.String(),
		CategoryID:   l.CategoryID,
		CategoryName: l.CategoryName,
		ReceiptURL:   l.ReceiptURL,
	}
}

func toBudgetResponse(v core.BudgetView) budgetResponse {
	pct := v.Computed.PercentageUsed
	if pct == "" {
		pct = core.FormatPercentage(decimal.Zero)
	}
	return budgetResponse{
		ID:             v.ID,
		CategoryID:     v.CategoryID,
		CategoryName:   v.CategoryName,
		CategoryColor:  v.CategoryColor,
		Amount:         v.Amount.InexactFloat64(),
		Period:         v.Period,
		CurrentSpent:   v.Computed.CurrentSpent.InexactFloat64(),
		Remaining:      v.Computed.Remaining.InexactFloat64(),
		PercentageUsed: pct,
	}
}

func toReportResponse(r core.Report) reportResponse {
	return reportResponse{ID: r.ID, Content: r.Content, GeneratedAt: r.GeneratedAt}
}

func mapSlice[T, R any](in []T, fn func(T) R) []R {
	out := make([]R, len(in))
	for i, v := range in {
		out[i] = fn(v)
	}
	return out
}

// requireUser returns the authenticated user, writing a 401 when absent.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := auth.UserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return "", false
	}
	return userID, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Health check failed", log.FieldError, err.Error())
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	cats, err := s.finance.ListCategories(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, log.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(cats, toCategoryResponse))
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req createCategoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cat, err := s.finance.CreateCategory(r.Context(), core.Category{
		UserID: userID,
		Name:   sanitizeInput(req.Name),
		Color:  sanitizeInput(req.Color),
	})
	if err != nil {
		writeServiceError(w, r, log.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCategoryResponse(cat))
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	start, end, err := parseDateRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	lines, err := s.finance.ListExpenses(r.Context(), userID, start, end)
	if err != nil {
		writeServiceError(w, r, log.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(lines, toExpenseResponse))
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req createExpenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	amount, err := core.ParseAmount(string(req.Amount))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	date := core.DateOf(time.Now().UTC())
	if req.Date != "" {
		if date, err = core.ParseDate(req.Date); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	exp, err := s.finance.CreateExpense(r.Context(), core.Expense{
		UserID:      userID,
		CategoryID:  sanitizeInput(req.CategoryID),
		Amount:      amount,
		Description: sanitizeInput(req.Description),
		Date:        date,
		ReceiptURL:  sanitizeInput(req.ReceiptURL),
	})
	if err != nil {
		writeServiceError(w, r, log.OpCreate, err)
		return
	}

	log.FromContext(r.Context()).InfoContext(r.Context(), "Expense created",
		log.FieldUserID, userID, "expense_id", exp.ID)
	writeJSON(w, http.StatusCreated, toExpenseResponse(core.ExpenseLine{Expense: exp}))
}

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	views, err := s.finance.ListBudgets(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, log.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(views, toBudgetResponse))
}

func (s *Server) handleCreateBudget(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req createBudgetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	amount, err := core.ParseAmount(string(req.Amount))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	b, err := s.finance.CreateBudget(r.Context(), core.Budget{
		UserID:     userID,
		CategoryID: sanitizeInput(req.CategoryID),
		Amount:     amount,
		Period:     sanitizeInput(req.Period),
	})
	if err != nil {
		writeServiceError(w, r, log.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBudgetResponse(core.BudgetView{Budget: b}))
}

func (s *Server) handleScheduleReport(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := s.finance.ScheduleReport(r.Context(), userID); err != nil {
		writeServiceError(w, r, log.OpEnqueue, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be a number")
			return
		}
		limit = n
	}

	reports, err := s.finance.ListReports(r.Context(), userID, limit)
	if err != nil {
		writeServiceError(w, r, log.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(reports, toReportResponse))
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	rep, err := s.finance.GetReport(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, log.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, toReportResponse(rep))
}

func (s *Server) handleGetReportPDF(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	rep, err := s.finance.GetReport(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, log.OpExport, err)
		return
	}

	var buf bytes.Buffer
	if err := reportpdf.Render(&buf, rep); err != nil {
		writeServiceError(w, r, log.OpExport, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+rep.ID+`.pdf"`)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	start, end, err := parseDateRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	totals, err := s.finance.Summary(r.Context(), userID, start, end)
	if err != nil {
		writeServiceError(w, r, log.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(totals, func(t core.CategoryTotal) summaryResponse {
		return summaryResponse{CategoryID: t.CategoryID, Name: t.Name, Color: t.Color, Total: t.Total.InexactFloat64()}
	}))
}

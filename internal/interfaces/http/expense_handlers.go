package http

import (
	"bytes"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/garyjia/expense-approval/internal/domain/approval"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// ExpenseRequest is the body of POST /api/expenses
type ExpenseRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	ExpenseDate string          `json:"expense_date"`
}

// DecisionRequest is the body of POST /api/expenses/:id/decision
type DecisionRequest struct {
	Decision string `json:"decision" binding:"required"`
	Comments string `json:"comments"`
}

func (r ExpenseRequest) draft() (entity.ExpenseDraft, error) {
	d := entity.ExpenseDraft{
		Amount:      r.Amount,
		Currency:    r.Currency,
		Category:    r.Category,
		Description: r.Description,
	}
	if strings.TrimSpace(r.ExpenseDate) != "" {
		date, err := time.Parse(dateLayout, strings.TrimSpace(r.ExpenseDate))
		if err != nil {
			return d, entity.NewValidationError("expense_date", "must be YYYY-MM-DD")
		}
		d.ExpenseDate = date
	}
	return d, nil
}

// SubmitExpense handles POST /api/expenses
func (h *Handlers) SubmitExpense(c *gin.Context) {
	var req ExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	draft, err := req.draft()
	if err != nil {
		h.fail(c, "Submit expense", err)
		return
	}

	e, err := h.services.Workflow.Submit(c.Request.Context(), actorID(c), draft)
	if err != nil {
		h.fail(c, "Submit expense", err)
		return
	}
	ok(c, http.StatusCreated, toExpenseResponse(e))
}

// ListMyExpenses handles GET /api/expenses
func (h *Handlers) ListMyExpenses(c *gin.Context) {
	status, valid := statusQuery(c)
	if !valid {
		return
	}
	h.list(c, "List expenses", h.services.Workflow.QueryForSubmitter(c.Request.Context(), actorID(c), status))
}

// ListReviews handles GET /api/reviews
func (h *Handlers) ListReviews(c *gin.Context) {
	status, valid := statusQuery(c)
	if !valid {
		return
	}
	h.list(c, "List reviews", h.services.Workflow.QueryForApprover(c.Request.Context(), actorID(c), status))
}

// list drains up to ?limit items of seq and reports whether more were available
func (h *Handlers) list(c *gin.Context, op string, seq iter.Seq2[*entity.Expense, error]) {
	limit, valid := limitQuery(c)
	if !valid {
		return
	}

	items := make([]ExpenseResponse, 0)
	truncated := false
	for e, err := range seq {
		if err != nil {
			h.fail(c, op, err)
			return
		}
		if len(items) == limit {
			truncated = true
			break
		}
		items = append(items, toExpenseResponse(e))
	}
	ok(c, http.StatusOK, ListResponse{Items: items, Count: len(items), Truncated: truncated})
}

// GetExpense handles GET /api/expenses/:id
func (h *Handlers) GetExpense(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	ctx := c.Request.Context()

	if err := h.services.Workflow.Authorize(ctx, actorID(c), id, approval.ActionView); err != nil {
		h.fail(c, "Get expense", err)
		return
	}
	e, err := h.services.Workflow.Query(ctx, id)
	if err != nil {
		h.fail(c, "Get expense", err)
		return
	}
	ok(c, http.StatusOK, toExpenseResponse(e))
}

// GetProgress handles GET /api/expenses/:id/progress
func (h *Handlers) GetProgress(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	ctx := c.Request.Context()

	if err := h.services.Workflow.Authorize(ctx, actorID(c), id, approval.ActionView); err != nil {
		h.fail(c, "Get progress", err)
		return
	}
	p, err := h.services.Workflow.Progress(ctx, id)
	if err != nil {
		h.fail(c, "Get progress", err)
		return
	}
	ok(c, http.StatusOK, p)
}

// Decide handles POST /api/expenses/:id/decision
func (h *Handlers) Decide(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "decision is required")
		return
	}
	outcome := entity.Decision(strings.ToUpper(strings.TrimSpace(req.Decision)))

	e, err := h.services.Workflow.Decide(c.Request.Context(), id, actorID(c), outcome, req.Comments)
	if err != nil {
		h.fail(c, "Decide", err)
		return
	}
	ok(c, http.StatusOK, toExpenseResponse(e))
}

// ScanReceipt handles POST /api/receipts/scan. The multipart form carries the
// receipt file plus optional expense fields that override the scanned values.
func (h *Handlers) ScanReceipt(c *gin.Context) {
	fh, err := c.FormFile("receipt")
	if err != nil {
		badRequest(c, "receipt file is required")
		return
	}
	if fh.Size > h.maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, Response{
			Success: false,
			Error:   fmt.Sprintf("receipt exceeds %d bytes", h.maxUploadBytes),
		})
		return
	}

	f, err := fh.Open()
	if err != nil {
		h.fail(c, "Open receipt", err)
		return
	}
	defer f.Close()
	content, err := io.ReadAll(io.LimitReader(f, h.maxUploadBytes))
	if err != nil {
		h.fail(c, "Read receipt", err)
		return
	}

	contentType := fh.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(content)
	}

	req := ExpenseRequest{
		Currency:    c.PostForm("currency"),
		Category:    c.PostForm("category"),
		Description: c.PostForm("description"),
		ExpenseDate: c.PostForm("expense_date"),
	}
	if raw := strings.TrimSpace(c.PostForm("amount")); raw != "" {
		if req.Amount, err = decimal.NewFromString(raw); err != nil {
			badRequest(c, "invalid amount")
			return
		}
	}
	user, err := req.draft()
	if err != nil {
		h.fail(c, "Scan receipt", err)
		return
	}

	prefill, err := h.services.Receipts.Prefill(c.Request.Context(), content, contentType, user)
	if err != nil {
		h.fail(c, "Scan receipt", err)
		return
	}
	ok(c, http.StatusOK, prefill)
}

// ExportExpenses handles GET /api/exports/expenses
func (h *Handlers) ExportExpenses(c *gin.Context) {
	status, valid := statusQuery(c)
	if !valid {
		return
	}

	var buf bytes.Buffer
	n, err := h.services.Export.Export(c.Request.Context(), actorID(c), status, &buf)
	if err != nil {
		h.fail(c, "Export expenses", err)
		return
	}

	filename := fmt.Sprintf("expenses-%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Header("X-Row-Count", fmt.Sprint(n))
	c.Data(http.StatusOK, h.services.Export.ContentType(), buf.Bytes())
}

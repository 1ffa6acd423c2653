package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
	dateLayout       = "2006-01-02"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	services       Services
	maxUploadBytes int64
	logger         Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, maxUploadBytes int64, logger Logger) *Handlers {
	return &Handlers{
		services:       services,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// ExpenseResponse represents an expense in API responses
type ExpenseResponse struct {
	ID          int64                 `json:"id"`
	SubmitterID int64                 `json:"submitter_id"`
	Amount      decimal.Decimal       `json:"amount"`
	Currency    string                `json:"currency"`
	Category    string                `json:"category"`
	Description string                `json:"description"`
	ExpenseDate string                `json:"expense_date"`
	Status      entity.ExpenseStatus  `json:"status"`
	History     []entity.HistoryEntry `json:"history"`
	SubmittedAt string                `json:"submitted_at"`
	UpdatedAt   string                `json:"updated_at"`
	Version     int64                 `json:"version"`
}

// ListResponse wraps a bounded list; Truncated is set when more items exist
type ListResponse struct {
	Items     interface{} `json:"items"`
	Count     int         `json:"count"`
	Truncated bool        `json:"truncated"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   "1.0.0",
		},
	})
}

func ok(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{Success: true, Data: data})
}

// pathID parses the :id path parameter, writing a 400 when it is malformed
func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid id")
		return 0, false
	}
	return id, true
}

// statusQuery reads the optional ?status filter
func statusQuery(c *gin.Context) (entity.ExpenseStatus, bool) {
	raw := strings.ToUpper(strings.TrimSpace(c.Query("status")))
	if raw == "" {
		return "", true
	}
	status := entity.ExpenseStatus(raw)
	if !status.IsValid() {
		badRequest(c, "invalid status "+raw)
		return "", false
	}
	return status, true
}

// limitQuery reads ?limit, defaulting and capping it
func limitQuery(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultListLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		badRequest(c, "invalid limit")
		return 0, false
	}
	return min(n, maxListLimit), true
}

func toExpenseResponse(e *entity.Expense) ExpenseResponse {
	history := e.History
	if history == nil {
		history = []entity.HistoryEntry{}
	}
	return ExpenseResponse{
		ID:          e.ID,
		SubmitterID: e.SubmitterID,
		Amount:      e.Amount,
		Currency:    e.Currency,
		Category:    e.Category,
		Description: e.Description,
		ExpenseDate: e.ExpenseDate.Format(dateLayout),
		Status:      e.Status,
		History:     history,
		SubmittedAt: e.SubmittedAt.Format(time.RFC3339),
		UpdatedAt:   e.UpdatedAt.Format(time.RFC3339),
		Version:     e.Version,
	}
}

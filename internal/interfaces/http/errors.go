package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/domain/approval"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, entity.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, approval.ErrForbidden), errors.Is(err, approval.ErrNotAnApprover):
		return http.StatusForbidden
	case errors.Is(err, entity.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrConflict),
		errors.Is(err, entity.ErrAlreadyExists),
		errors.Is(err, approval.ErrDuplicateDecision),
		errors.Is(err, approval.ErrAlreadyFinalized),
		errors.Is(err, approval.ErrOutOfSequence),
		errors.Is(err, approval.ErrPrematureDecision):
		return http.StatusConflict
	case errors.Is(err, approval.ErrNoApplicableRule):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrScanningDisabled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// fail writes err as a JSON error response. Internal errors are logged and not echoed.
func (h *Handlers) fail(c *gin.Context, op string, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error(op+" failed", "path", c.Request.URL.Path, "error", err)
		msg = "internal error"
	}
	c.JSON(status, Response{Success: false, Error: msg})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: msg})
}

package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// ListRules handles GET /api/rules
func (h *Handlers) ListRules(c *gin.Context) {
	rules, err := h.services.Rules.List(c.Request.Context(), actorID(c))
	if err != nil {
		h.fail(c, "List rules", err)
		return
	}
	ok(c, http.StatusOK, rules)
}

// CreateRule handles POST /api/rules
func (h *Handlers) CreateRule(c *gin.Context) {
	var rule entity.ApprovalRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	created, err := h.services.Rules.Create(c.Request.Context(), actorID(c), &rule)
	if err != nil {
		h.fail(c, "Create rule", err)
		return
	}
	ok(c, http.StatusCreated, created)
}

// GetRule handles GET /api/rules/:id
func (h *Handlers) GetRule(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}

	rule, err := h.services.Rules.Get(c.Request.Context(), actorID(c), id)
	if err != nil {
		h.fail(c, "Get rule", err)
		return
	}
	ok(c, http.StatusOK, rule)
}

// UpdateRule handles PUT /api/rules/:id
func (h *Handlers) UpdateRule(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	var rule entity.ApprovalRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	rule.ID = id

	updated, err := h.services.Rules.Update(c.Request.Context(), actorID(c), &rule)
	if err != nil {
		h.fail(c, "Update rule", err)
		return
	}
	ok(c, http.StatusOK, updated)
}

// DeleteRule handles DELETE /api/rules/:id
func (h *Handlers) DeleteRule(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}

	if err := h.services.Rules.Delete(c.Request.Context(), actorID(c), id); err != nil {
		h.fail(c, "Delete rule", err)
		return
	}
	c.Status(http.StatusNoContent)
}

package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// LoginRequest is the body of POST /api/auth/login
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RoleRequest is the body of PUT /api/users/:id/role
type RoleRequest struct {
	Role entity.Role `json:"role" binding:"required"`
}

// ManagerRequest is the body of PUT /api/users/:id/manager; a null manager_id clears it
type ManagerRequest struct {
	ManagerID *int64 `json:"manager_id"`
}

// SignupResponse returns the new company and its admin
type SignupResponse struct {
	Company *entity.Company `json:"company"`
	Admin   *entity.User    `json:"admin"`
}

// Signup handles POST /api/signup
func (h *Handlers) Signup(c *gin.Context) {
	var req service.SignupInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	company, admin, err := h.services.Users.Signup(c.Request.Context(), req)
	if err != nil {
		h.fail(c, "Signup", err)
		return
	}
	ok(c, http.StatusCreated, SignupResponse{Company: company, Admin: admin})
}

// Login handles POST /api/auth/login. Token issuance belongs to the gateway.
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "email and password are required")
		return
	}

	u, err := h.services.Users.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(c, "Login", err)
		return
	}
	ok(c, http.StatusOK, u)
}

// Me handles GET /api/me
func (h *Handlers) Me(c *gin.Context) {
	u, err := h.services.Users.GetUser(c.Request.Context(), actorID(c), actorID(c))
	if err != nil {
		h.fail(c, "Get current user", err)
		return
	}
	ok(c, http.StatusOK, u)
}

// ListUsers handles GET /api/users
func (h *Handlers) ListUsers(c *gin.Context) {
	users, err := h.services.Users.ListUsers(c.Request.Context(), actorID(c))
	if err != nil {
		h.fail(c, "List users", err)
		return
	}
	ok(c, http.StatusOK, users)
}

// CreateUser handles POST /api/users
func (h *Handlers) CreateUser(c *gin.Context) {
	var req service.CreateUserInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	u, err := h.services.Users.CreateUser(c.Request.Context(), actorID(c), req)
	if err != nil {
		h.fail(c, "Create user", err)
		return
	}
	ok(c, http.StatusCreated, u)
}

// GetUser handles GET /api/users/:id
func (h *Handlers) GetUser(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}

	u, err := h.services.Users.GetUser(c.Request.Context(), actorID(c), id)
	if err != nil {
		h.fail(c, "Get user", err)
		return
	}
	ok(c, http.StatusOK, u)
}

// UpdateRole handles PUT /api/users/:id/role
func (h *Handlers) UpdateRole(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	var req RoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "role is required")
		return
	}

	u, err := h.services.Users.UpdateRole(c.Request.Context(), actorID(c), id, req.Role)
	if err != nil {
		h.fail(c, "Update role", err)
		return
	}
	ok(c, http.StatusOK, u)
}

// AssignManager handles PUT /api/users/:id/manager
func (h *Handlers) AssignManager(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	var req ManagerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	u, err := h.services.Users.AssignManager(c.Request.Context(), actorID(c), id, req.ManagerID)
	if err != nil {
		h.fail(c, "Assign manager", err)
		return
	}
	ok(c, http.StatusOK, u)
}

package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hsmazur/Taberna3/internal/adapter/http/middleware"
	"github.com/hsmazur/Taberna3/internal/logging"
	"github.com/hsmazur/Taberna3/internal/usecase"
)

type AccountHandler struct {
	accounts *usecase.Accounts
	authz    *middleware.Authz
}

func NewAccountHandler(accounts *usecase.Accounts, authz *middleware.Authz) *AccountHandler {
	return &AccountHandler{accounts: accounts, authz: authz}
}

type loginReq struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// POST /v1/token
func (h *AccountHandler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	u, err := h.accounts.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	signed, ttl, err := h.authz.Issue(u)
	if err != nil {
		logging.From(c).Error("token signing failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token": signed,
		"token_type":   "Bearer",
		"expires_in":   int64(ttl.Seconds()),
		"user":         u,
	})
}

// POST /v1/logout  tokens are discarded client side; the guest cart cookie is cleared here
func (h *AccountHandler) Logout(c *gin.Context) {
	if err := middleware.ForgetGuest(c); err != nil {
		logging.From(c).Warn("session clear failed", "err", err)
	}
	c.Status(http.StatusNoContent)
}

type registerReq struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// POST /v1/users
func (h *AccountHandler) Register(c *gin.Context) {
	var req registerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	u, err := h.accounts.Register(c.Request.Context(), usecase.RegisterInput{Name: req.Name, Email: req.Email, Password: req.Password})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, u)
}

// GET /v1/me
func (h *AccountHandler) Me(c *gin.Context) {
	id, _ := middleware.UserID(c)
	u, err := h.accounts.GetUser(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

type updateUserReq struct {
	Name     string `json:"name"`
	Email    string `json:"email" binding:"omitempty,email"`
	Password string `json:"password"`
}

func (h *AccountHandler) update(c *gin.Context, id int64) {
	var req updateUserReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	u, err := h.accounts.UpdateUser(c.Request.Context(), id, usecase.UpdateUserInput{Name: req.Name, Email: req.Email, Password: req.Password})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// PUT /v1/me
func (h *AccountHandler) UpdateMe(c *gin.Context) {
	id, _ := middleware.UserID(c)
	h.update(c, id)
}

func (h *AccountHandler) ListUsers(c *gin.Context) {
	out, err := h.accounts.ListUsers(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}

func (h *AccountHandler) GetUser(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	u, err := h.accounts.GetUser(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *AccountHandler) UpdateUser(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	h.update(c, id)
}

func (h *AccountHandler) DeleteUser(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.accounts.DeleteUser(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type clientReq struct {
	UserID   int64  `json:"user_id"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
	District string `json:"district"`
}

func (r clientReq) input() usecase.ClientInput {
	return usecase.ClientInput{UserID: r.UserID, Phone: r.Phone, Address: r.Address, District: r.District}
}

func (h *AccountHandler) CreateClient(c *gin.Context) {
	var req clientReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cl, err := h.accounts.CreateClient(c.Request.Context(), req.input())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cl)
}

// POST /v1/me/client  a registered user completes its own client profile
func (h *AccountHandler) BecomeClient(c *gin.Context) {
	var req clientReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	req.UserID, _ = middleware.UserID(c)
	cl, err := h.accounts.CreateClient(c.Request.Context(), req.input())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cl)
}

func (h *AccountHandler) ListClients(c *gin.Context) {
	out, err := h.accounts.ListClients(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"clients": out})
}

func (h *AccountHandler) GetClient(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	cl, err := h.accounts.GetClient(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cl)
}

// GET /v1/users/:id/client
func (h *AccountHandler) ClientOfUser(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	cl, err := h.accounts.ClientOfUser(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cl)
}

func (h *AccountHandler) UpdateClient(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req clientReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cl, err := h.accounts.UpdateClient(c.Request.Context(), id, req.input())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cl)
}

func (h *AccountHandler) DeleteClient(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.accounts.DeleteClient(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type employeeReq struct {
	UserID   int64  `json:"user_id"`
	Position string `json:"position"`
}

func (h *AccountHandler) CreateEmployee(c *gin.Context) {
	var req employeeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	e, err := h.accounts.CreateEmployee(c.Request.Context(), usecase.EmployeeInput{UserID: req.UserID, Position: req.Position})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, e)
}

func (h *AccountHandler) ListEmployees(c *gin.Context) {
	out, err := h.accounts.ListEmployees(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"employees": out})
}

func (h *AccountHandler) GetEmployee(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	e, err := h.accounts.GetEmployee(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

// GET /v1/users/:id/employee
func (h *AccountHandler) EmployeeOfUser(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	e, err := h.accounts.EmployeeOfUser(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (h *AccountHandler) UpdateEmployee(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req employeeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	e, err := h.accounts.UpdateEmployee(c.Request.Context(), id, usecase.EmployeeInput{Position: req.Position})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (h *AccountHandler) DeleteEmployee(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.accounts.DeleteEmployee(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

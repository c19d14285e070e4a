package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/hsmazur/Taberna3/internal/adapter/http/middleware"
	domain "github.com/hsmazur/Taberna3/internal/entity"
	"github.com/hsmazur/Taberna3/internal/usecase"
)

type OrderHandler struct {
	orders *usecase.Orders
}

func NewOrderHandler(orders *usecase.Orders) *OrderHandler {
	return &OrderHandler{orders: orders}
}

func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": "invalid " + name})
		return 0, false
	}
	return id, true
}

// GET /v1/orders/mine
func (h *OrderHandler) Mine(c *gin.Context) {
	buyerID := middleware.BuyerID(c)
	if buyerID == 0 {
		c.JSON(http.StatusOK, gin.H{"orders": []usecase.OrderSummary{}})
		return
	}
	out, err := h.orders.History(c.Request.Context(), buyerID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": out})
}

// GET /v1/orders/:id  owner or employee
func (h *OrderHandler) Get(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if middleware.BuyerID(c) == 0 {
		writeError(c, usecase.ErrOrderNotFound)
		return
	}
	d, err := h.orders.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if d.Order.BuyerID != middleware.BuyerID(c) && middleware.Role(c) != domain.RoleEmployee {
		// hide other buyers' orders
		writeError(c, usecase.ErrOrderNotFound)
		return
	}
	c.JSON(http.StatusOK, d)
}

// GET /v1/orders
func (h *OrderHandler) List(c *gin.Context) {
	out, err := h.orders.ListAll(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": out})
}

type statusReq struct {
	Status string `json:"status" binding:"required"`
	Reason string `json:"reason"`
}

// PATCH /v1/orders/:id/status
func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req statusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	to, ok := domain.ParseStatus(req.Status)
	if !ok {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_status", "message": "unknown status " + req.Status})
		return
	}
	o, err := h.orders.UpdateStatus(c.Request.Context(), id, to, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// DELETE /v1/orders/:id
func (h *OrderHandler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.orders.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

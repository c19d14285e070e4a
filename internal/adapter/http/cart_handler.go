package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/hsmazur/Taberna3/internal/adapter/http/middleware"
	domain "github.com/hsmazur/Taberna3/internal/entity"
	"github.com/hsmazur/Taberna3/internal/usecase"
)

type CartHandler struct {
	cart     *usecase.Cart
	checkout *usecase.IdempotentCheckout
}

func NewCartHandler(cart *usecase.Cart, checkout *usecase.IdempotentCheckout) *CartHandler {
	return &CartHandler{cart: cart, checkout: checkout}
}

// GET /v1/cart  a visitor without a session sees an empty cart
func (h *CartHandler) Get(c *gin.Context) {
	buyerID := middleware.BuyerID(c)
	if buyerID == 0 {
		c.JSON(http.StatusOK, usecase.CartSnapshot{
			Order: domain.Order{Status: domain.StatusPending},
			Lines: []domain.OrderLine{},
		})
		return
	}
	snap, err := h.cart.BuyerCart(c.Request.Context(), buyerID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

type setItemReq struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  *int  `json:"quantity" binding:"required"`
}

// POST /v1/cart/items  quantity 0 removes the line
func (h *CartHandler) SetItem(c *gin.Context) {
	var req setItemReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	snap, err := h.cart.SetBuyerLineQuantity(c.Request.Context(), middleware.BuyerID(c), req.ProductID, *req.Quantity)
	if err != nil {
		middleware.CartMutations.WithLabelValues("rejected").Inc()
		writeError(c, err)
		return
	}
	result := "set"
	if *req.Quantity == 0 {
		result = "removed"
	}
	middleware.CartMutations.WithLabelValues(result).Inc()
	c.JSON(http.StatusOK, snap)
}

// DELETE /v1/cart
func (h *CartHandler) Clear(c *gin.Context) {
	snap, err := h.cart.ClearBuyerCart(c.Request.Context(), middleware.BuyerID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

type deliveryReq struct {
	RecipientName string          `json:"recipient_name"`
	Phone         string          `json:"phone"`
	Address       string          `json:"address" binding:"required"`
	District      string          `json:"district"`
	Fee           decimal.Decimal `json:"fee"`
}

type paymentReq struct {
	Tendered   *decimal.Decimal `json:"tendered"`
	CardNumber string           `json:"card_number"`
	CardHolder string           `json:"card_holder"`
}

type checkoutReq struct {
	PaymentMethod string       `json:"payment_method" binding:"required"`
	Delivery      *deliveryReq `json:"delivery"`
	Payment       *paymentReq  `json:"payment"`
}

func (r checkoutReq) input() usecase.FinalizeInput {
	in := usecase.FinalizeInput{Method: domain.PaymentMethod(strings.TrimSpace(r.PaymentMethod))}
	if d := r.Delivery; d != nil {
		in.Delivery = &domain.DeliveryInfo{
			RecipientName: strings.TrimSpace(d.RecipientName),
			Phone:         strings.TrimSpace(d.Phone),
			Address:       strings.TrimSpace(d.Address),
			District:      strings.TrimSpace(d.District),
			Fee:           d.Fee,
		}
	}
	if p := r.Payment; p != nil {
		in.Tendered = p.Tendered
		if p.CardNumber != "" || p.CardHolder != "" {
			in.Card = &usecase.CardDetails{Number: p.CardNumber, Holder: p.CardHolder}
		}
	}
	return in
}

// POST /v1/checkout  (X-Idempotency-Key optional)
func (h *CartHandler) Checkout(c *gin.Context) {
	var req checkoutReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	idemKey := c.GetHeader("X-Idempotency-Key") // prevent duplicated requests

	out, err := h.checkout.Execute(c.Request.Context(), middleware.BuyerID(c), idemKey, req.input())
	if err != nil {
		writeError(c, err)
		return
	}
	middleware.OrdersFinalized.WithLabelValues(string(out.Order.PaymentMethod)).Inc()
	c.JSON(http.StatusCreated, out)
}

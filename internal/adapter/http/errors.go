package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	domain "github.com/hsmazur/Taberna3/internal/entity"
	"github.com/hsmazur/Taberna3/internal/logging"
	"github.com/hsmazur/Taberna3/internal/usecase"
)

type errMapping struct {
	err    error
	status int
	code   string
}

// errTable is checked in order; the first errors.Is match wins.
var errTable = []errMapping{
	{usecase.ErrBuyerNotFound, http.StatusNotFound, "buyer_not_found"},
	{usecase.ErrProductNotFound, http.StatusNotFound, "product_not_found"},
	{usecase.ErrOrderNotFound, http.StatusNotFound, "order_not_found"},
	{usecase.ErrUserNotFound, http.StatusNotFound, "user_not_found"},
	{usecase.ErrClientNotFound, http.StatusNotFound, "client_not_found"},
	{usecase.ErrEmployeeNotFound, http.StatusNotFound, "employee_not_found"},
	{usecase.ErrRatingNotFound, http.StatusNotFound, "rating_not_found"},
	{usecase.ErrRecoveryCodeNotFound, http.StatusNotFound, "recovery_code_not_found"},
	{usecase.ErrNotFound, http.StatusNotFound, "not_found"},

	{usecase.ErrOrderNotMutable, http.StatusConflict, "order_not_mutable"},
	{usecase.ErrEmptyOrder, http.StatusUnprocessableEntity, "empty_order"},
	{usecase.ErrInsufficientPayment, http.StatusUnprocessableEntity, "insufficient_payment"},

	{usecase.ErrInvalidQuantity, http.StatusBadRequest, "invalid_quantity"},
	{usecase.ErrInvalidPaymentMethod, http.StatusBadRequest, "invalid_payment_method"},
	{usecase.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{usecase.ErrInvalidScore, http.StatusBadRequest, "invalid_score"},
	{usecase.ErrWeakPassword, http.StatusBadRequest, "weak_password"},
	{domain.ErrInvalidCardNumber, http.StatusBadRequest, "invalid_card_number"},
	{domain.ErrInvalidProduct, http.StatusBadRequest, "invalid_product"},
	{usecase.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},

	{usecase.ErrDuplicate, http.StatusConflict, "duplicate_request"},
	{usecase.ErrEmailTaken, http.StatusConflict, "email_taken"},
	{usecase.ErrAlreadyRated, http.StatusConflict, "already_rated"},
	{usecase.ErrAlreadyClient, http.StatusConflict, "already_client"},
	{usecase.ErrAlreadyEmployee, http.StatusConflict, "already_employee"},
	{usecase.ErrProductInUse, http.StatusConflict, "product_in_use"},

	{usecase.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{usecase.ErrForbidden, http.StatusForbidden, "forbidden"},
	{usecase.ErrNotConsumed, http.StatusForbidden, "product_not_consumed"},

	{usecase.ErrRecoveryCodeExpired, http.StatusGone, "recovery_code_expired"},
	{usecase.ErrRecoveryCodeInvalid, http.StatusUnauthorized, "recovery_code_invalid"},
	{usecase.ErrRecoveryTooManyAttempts, http.StatusTooManyRequests, "recovery_too_many_attempts"},
}

// writeError maps a use-case error to its HTTP status. Storage failures never
// leak driver text to the client.
func writeError(c *gin.Context, err error) {
	if usecase.IsStorage(err) {
		logging.From(c).Error("storage failure", "err", err)
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "storage_unavailable"})
		return
	}
	for _, m := range errTable {
		if errors.Is(err, m.err) {
			c.AbortWithStatusJSON(m.status, gin.H{"error": m.code, "message": err.Error()})
			return
		}
	}
	logging.From(c).Error("unhandled error", "err", err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal"})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": err.Error()})
}

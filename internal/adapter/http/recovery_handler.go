package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hsmazur/Taberna3/internal/usecase"
)

type RecoveryHandler struct {
	recovery *usecase.Recovery
}

func NewRecoveryHandler(recovery *usecase.Recovery) *RecoveryHandler {
	return &RecoveryHandler{recovery: recovery}
}

type recoveryReq struct {
	Email       string `json:"email" binding:"required"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

// POST /v1/recovery/code
func (h *RecoveryHandler) RequestCode(c *gin.Context) {
	var req recoveryReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	out, err := h.recovery.RequestCode(c.Request.Context(), req.Email)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := gin.H{"expires_at": out.ExpiresAt}
	if out.Code != "" {
		resp["code"] = out.Code
	}
	c.JSON(http.StatusAccepted, resp)
}

// POST /v1/recovery/verify
func (h *RecoveryHandler) Verify(c *gin.Context) {
	var req recoveryReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.recovery.VerifyCode(c.Request.Context(), req.Email, req.Code); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

// POST /v1/recovery/reset
func (h *RecoveryHandler) Reset(c *gin.Context) {
	var req recoveryReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.recovery.ResetPassword(c.Request.Context(), req.Email, req.Code, req.NewPassword); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

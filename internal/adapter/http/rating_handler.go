package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hsmazur/Taberna3/internal/adapter/http/middleware"
	"github.com/hsmazur/Taberna3/internal/usecase"
)

type RatingHandler struct {
	ratings *usecase.Ratings
}

func NewRatingHandler(ratings *usecase.Ratings) *RatingHandler {
	return &RatingHandler{ratings: ratings}
}

func actor(c *gin.Context) usecase.Actor {
	id, _ := middleware.UserID(c)
	return usecase.Actor{UserID: id, Role: middleware.Role(c)}
}

type ratingReq struct {
	ProductID int64  `json:"product_id"`
	Score     int    `json:"score"`
	Comment   string `json:"comment"`
}

// POST /v1/ratings
func (h *RatingHandler) Create(c *gin.Context) {
	var req ratingReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	r, err := h.ratings.Create(c.Request.Context(), actor(c).UserID, usecase.RatingInput{
		ProductID: req.ProductID, Score: req.Score, Comment: req.Comment,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (h *RatingHandler) Update(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req ratingReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	r, err := h.ratings.Update(c.Request.Context(), actor(c), id, req.Score, req.Comment)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *RatingHandler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.ratings.Delete(c.Request.Context(), actor(c), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /v1/products/:id/ratings
func (h *RatingHandler) ByProduct(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	out, err := h.ratings.ByProduct(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ratings": out})
}

// GET /v1/me/ratings
func (h *RatingHandler) Mine(c *gin.Context) {
	out, err := h.ratings.ByUser(c.Request.Context(), actor(c).UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ratings": out})
}

// GET /v1/me/unrated
func (h *RatingHandler) Unrated(c *gin.Context) {
	out, err := h.ratings.Unrated(c.Request.Context(), actor(c).UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": out})
}

// GET /v1/ratings/best
func (h *RatingHandler) Best(c *gin.Context) {
	best, err := h.ratings.Best(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, best)
}

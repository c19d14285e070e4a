package middleware

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	domain "github.com/hsmazur/Taberna3/internal/entity"
	"github.com/hsmazur/Taberna3/internal/logging"
)

const (
	sessionGuestKey = "guest_id"
	ctxBuyerID      = "buyer.id"
)

type GuestCreator interface {
	CreateGuest(ctx context.Context) (*domain.User, error)
}

// Buyer resolves who owns the cart. An authenticated user is the buyer;
// otherwise the guest id kept in the cookie session is used, and a guest
// user is created on first use. Run after Authz.Optional and sessions.Sessions.
// Mount it only on routes that change the cart.
func Buyer(guests GuestCreator) gin.HandlerFunc {
	return resolveBuyer(guests)
}

// KnownBuyer resolves the buyer like Buyer but never creates a guest.
// BuyerID is 0 for a visitor without a session.
func KnownBuyer() gin.HandlerFunc {
	return resolveBuyer(nil)
}

func resolveBuyer(guests GuestCreator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if id, ok := UserID(c); ok {
			c.Set(ctxBuyerID, id)
			c.Next()
			return
		}

		sess := sessions.Default(c)
		if id, ok := sess.Get(sessionGuestKey).(int64); ok && id > 0 {
			c.Set(ctxBuyerID, id)
			c.Next()
			return
		}
		if guests == nil {
			c.Next()
			return
		}

		u, err := guests.CreateGuest(c.Request.Context())
		if err != nil {
			logging.From(c).Error("guest buyer creation failed", "err", err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "storage_unavailable"})
			return
		}
		sess.Set(sessionGuestKey, u.ID)
		if err := sess.Save(); err != nil {
			logging.From(c).Error("session save failed", "err", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal"})
			return
		}
		logging.From(c).Info("guest buyer created", "buyer_id", u.ID)
		c.Set(ctxBuyerID, u.ID)
		c.Next()
	}
}

// BuyerID returns the buyer resolved by Buyer or KnownBuyer, 0 when there is none.
func BuyerID(c *gin.Context) int64 {
	return c.GetInt64(ctxBuyerID)
}

// ForgetGuest drops the guest cart from the session (logout).
func ForgetGuest(c *gin.Context) error {
	sess := sessions.Default(c)
	sess.Delete(sessionGuestKey)
	return sess.Save()
}

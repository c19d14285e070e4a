package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hsmazur/Taberna3/internal/adapter/http/middleware"
	"github.com/hsmazur/Taberna3/internal/logging"
)

// Pinger reports whether the database is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Handlers struct {
	Cart     *CartHandler
	Orders   *OrderHandler
	Products *ProductHandler
	Accounts *AccountHandler
	Ratings  *RatingHandler
	Recovery *RecoveryHandler
}

type RouterConfig struct {
	SessionSecret  string
	SecureCookie   bool
	RequestTimeout time.Duration
}

func requestTimeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func NewRouter(cfg RouterConfig, h Handlers, authz *middleware.Authz, guests middleware.GuestCreator, db Pinger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.MetricsMiddleware())
	r.Use(middleware.Logging(logging.New("http")))
	r.Use(requestTimeout(cfg.RequestTimeout))

	store := cookie.NewStore([]byte(cfg.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   30 * 24 * 3600,
		HttpOnly: true,
		Secure:   cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions("taberna", store))

	r.GET("/healthz", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			logging.From(c).Error("health check failed", "err", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	// Prometheus endpoint (scraped by Prometheus)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	{
		v1.POST("/token", h.Accounts.Login)
		v1.POST("/logout", h.Accounts.Logout)
		v1.POST("/users", h.Accounts.Register)

		v1.POST("/recovery/code", h.Recovery.RequestCode)
		v1.POST("/recovery/verify", h.Recovery.Verify)
		v1.POST("/recovery/reset", h.Recovery.Reset)

		v1.GET("/products", h.Products.List)
		v1.GET("/products/:id", h.Products.Get)
		v1.GET("/products/:id/ratings", h.Ratings.ByProduct)
		v1.GET("/ratings/best", h.Ratings.Best)
	}

	// cart routes work for registered users and cookie-identified guests;
	// only writes create a guest
	buyer := v1.Group("", authz.Optional(), middleware.Buyer(guests))
	{
		buyer.POST("/cart/items", h.Cart.SetItem)
		buyer.DELETE("/cart", h.Cart.Clear)
		buyer.POST("/checkout", h.Cart.Checkout)
	}
	reader := v1.Group("", authz.Optional(), middleware.KnownBuyer())
	{
		reader.GET("/cart", h.Cart.Get)
		reader.GET("/orders/mine", h.Orders.Mine)
		reader.GET("/orders/:id", h.Orders.Get)
	}

	me := v1.Group("/me", authz.Require())
	{
		me.GET("", h.Accounts.Me)
		me.PUT("", h.Accounts.UpdateMe)
		me.POST("/client", h.Accounts.BecomeClient)
		me.GET("/ratings", h.Ratings.Mine)
		me.GET("/unrated", h.Ratings.Unrated)
	}

	rate := v1.Group("/ratings", authz.Require(middleware.PermRatingsWrite))
	{
		rate.POST("", h.Ratings.Create)
		rate.PUT("/:id", h.Ratings.Update)
		rate.DELETE("/:id", h.Ratings.Delete)
	}

	v1.GET("/orders", authz.Require(middleware.PermOrdersAdmin), h.Orders.List)
	v1.PATCH("/orders/:id/status", authz.Require(middleware.PermOrdersAdmin), h.Orders.UpdateStatus)
	v1.DELETE("/orders/:id", authz.Require(middleware.PermOrdersAdmin), h.Orders.Delete)

	v1.POST("/products", authz.Require(middleware.PermCatalogWrite), h.Products.Create)
	v1.PUT("/products/:id", authz.Require(middleware.PermCatalogWrite), h.Products.Update)
	v1.DELETE("/products/:id", authz.Require(middleware.PermCatalogWrite), h.Products.Delete)

	admin := v1.Group("", authz.Require(middleware.PermUsersAdmin))
	{
		admin.GET("/users", h.Accounts.ListUsers)
		admin.GET("/users/:id", h.Accounts.GetUser)
		admin.PUT("/users/:id", h.Accounts.UpdateUser)
		admin.DELETE("/users/:id", h.Accounts.DeleteUser)
		admin.GET("/users/:id/client", h.Accounts.ClientOfUser)
		admin.GET("/users/:id/employee", h.Accounts.EmployeeOfUser)

		admin.GET("/clients", h.Accounts.ListClients)
		admin.POST("/clients", h.Accounts.CreateClient)
		admin.GET("/clients/:id", h.Accounts.GetClient)
		admin.PUT("/clients/:id", h.Accounts.UpdateClient)
		admin.DELETE("/clients/:id", h.Accounts.DeleteClient)

		admin.GET("/employees", h.Accounts.ListEmployees)
		admin.POST("/employees", h.Accounts.CreateEmployee)
		admin.GET("/employees/:id", h.Accounts.GetEmployee)
		admin.PUT("/employees/:id", h.Accounts.UpdateEmployee)
		admin.DELETE("/employees/:id", h.Accounts.DeleteEmployee)
	}

	return r
}

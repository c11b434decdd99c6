package ginserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"

	"roomstay/internal/infra/config"
	"roomstay/internal/infra/obs"
)

type BookingHTTP interface {
	Create(c *gin.Context)
	Get(c *gin.Context)
	ListMine(c *gin.Context)
	ListOwned(c *gin.Context)
	Confirm(c *gin.Context)
	Reject(c *gin.Context)
	Cancel(c *gin.Context)
	CheckIn(c *gin.Context)
	CheckOut(c *gin.Context)
	Purge(c *gin.Context)
}

type ListingHTTP interface {
	Quote(c *gin.Context)
}

type PaymentHTTP interface {
	Initiate(c *gin.Context)
	Poll(c *gin.Context)
	Notification(c *gin.Context)
}

type Handlers struct {
	Booking        BookingHTTP
	Listing        ListingHTTP
	Payment        PaymentHTTP
	AuthMiddleware gin.HandlerFunc
	// WebhookLimiter guards the unauthenticated notification endpoint.
	WebhookLimiter gin.HandlerFunc
}

func NewServer(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *http.Server {
	mode := configureGinMode(cfg.Env)
	if obsMW.Logger != nil {
		obsMW.Logger.Info("gin initialized", "mode", mode)
	}
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           NewRouter(cfg, obsMW, health, h),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func NewRouter(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *gin.Engine {
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(obsMW.RequestID())
	router.Use(obsMW.LoggerMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", "Idempotency-Key", "X-Admin-Key"},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Type",
			"X-Request-ID",
			"Retry-After",
		},
		MaxAge: 12 * time.Hour,
	}))

	router.GET("/livez", health.Livez)
	router.GET("/readyz", health.Readyz)

	api := router.Group("/api/v1")
	if h.Payment != nil {
		webhook := []gin.HandlerFunc{}
		if h.WebhookLimiter != nil {
			webhook = append(webhook, h.WebhookLimiter)
		}
		webhook = append(webhook, h.Payment.Notification)
		api.POST("/payments/notifications", webhook...)
	}

	authed := api.Group("")
	if h.AuthMiddleware != nil {
		authed.Use(h.AuthMiddleware)
	}
	if h.Listing != nil {
		authed.GET("/listings/:id/quote", h.Listing.Quote)
	}
	if h.Booking != nil {
		authed.POST("/bookings", h.Booking.Create)
		authed.GET("/bookings/:id", h.Booking.Get)
		authed.POST("/bookings/:id/confirm", h.Booking.Confirm)
		authed.POST("/bookings/:id/reject", h.Booking.Reject)
		authed.POST("/bookings/:id/cancel", h.Booking.Cancel)
		authed.POST("/bookings/:id/check-in", h.Booking.CheckIn)
		authed.POST("/bookings/:id/check-out", h.Booking.CheckOut)
		authed.GET("/me/bookings", h.Booking.ListMine)
		authed.GET("/owner/bookings", h.Booking.ListOwned)
		authed.DELETE("/admin/bookings/:id", h.Booking.Purge)
	}
	if h.Payment != nil {
		authed.POST("/bookings/:id/payments", h.Payment.Initiate)
		authed.GET("/payments/:order_id", h.Payment.Poll)
	}
	return router
}

func configureGinMode(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "debug":
		gin.SetMode(gin.DebugMode)
		return gin.DebugMode
	case "test", "testing":
		gin.SetMode(gin.TestMode)
		return gin.TestMode
	default:
		gin.SetMode(gin.ReleaseMode)
		return gin.ReleaseMode
	}
}

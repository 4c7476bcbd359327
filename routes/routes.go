package routes

import (
	"net/http"
	"time"

	"sereno/handlers"
	"sereno/middleware"
	"sereno/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RegisterBookingRoutes registers booking lifecycle endpoints.
func RegisterBookingRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	api := r.Group("/api/bookings")
	{
		api.GET("/:id", hb.GetBookingHandler)
		api.POST("/:id/cancel", hb.CancelBookingHandler)
		api.POST("/:id/schedule-credit", hb.ScheduleCreditHandler)
	}
}

// RegisterClassSessionRoutes registers class-session endpoints.
func RegisterClassSessionRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	api := r.Group("/api/class-sessions")
	{
		api.POST("/:id/reschedule", hb.RescheduleClassHandler)
	}
}

// RegisterWebhookRoutes registers the payment-provider callback. The webhook
// authenticates with its own signature check, so the rate limiter is not
// applied here.
func RegisterWebhookRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	r.POST("/webhooks/stripe", hb.StripeWebhookHandler)
}

// SetupRouter builds the gin engine with shared middleware and all routes.
func SetupRouter(hb *handlers.HandlerBundle) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(utils.ErrorHandler())

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Stripe-Signature"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	RegisterWebhookRoutes(r, hb)

	r.GET("/healthz", hb.HealthzHandler)

	r.Use(middleware.RateLimitMiddleware())
	RegisterBookingRoutes(r, hb)
	RegisterClassSessionRoutes(r, hb)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})
	return r
}

package handlers

import (
	"time"

	"ticket-checkout/internal/logger"
	"ticket-checkout/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterConfig struct {
	Inventory *InventoryHandler
	Checkout  *CheckoutHandler
	Webhook   *WebhookHandler
	Health    *HealthHandler

	RateLimit      int
	RequestTimeout time.Duration
}

func NewRouter(cfg RouterConfig, log *logger.Logger) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.EnhancedLogger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.CORS())
	router.Use(middleware.SecurityHeaders(log))
	router.Use(middleware.RateLimit(cfg.RateLimit, log))
	router.Use(middleware.Timeout(cfg.RequestTimeout))

	router.GET("/health", cfg.Health.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		events := v1.Group("/events/:eventId")
		{
			events.POST("/ticket-types", cfg.Inventory.RegisterTicketType)
			events.GET("/ticket-types", cfg.Inventory.ListTicketTypes)
			events.GET("/sold", cfg.Inventory.EventSold)
		}

		ticketTypes := v1.Group("/ticket-types")
		{
			ticketTypes.GET("/:id", cfg.Inventory.GetTicketType)
			ticketTypes.PATCH("/:id", cfg.Inventory.UpdateTicketType)
			ticketTypes.GET("/:id/sold", cfg.Inventory.TicketTypeSold)
		}

		buyer := v1.Group("", middleware.Buyer(log))
		{
			buyer.POST("/tickets", cfg.Inventory.ReserveTicket)
			buyer.GET("/tickets/:id", cfg.Inventory.GetTicket)
			buyer.DELETE("/tickets/:id", cfg.Inventory.ReleaseTicket)
			buyer.POST("/checkout", cfg.Checkout.Checkout)
			buyer.GET("/orders/:id", cfg.Checkout.GetOrder)
		}

		v1.POST("/ticket-payment-confirmation-webhook", cfg.Webhook.PaymentConfirmation)
	}

	log.LogProcess("ROUTER", "All routes registered successfully")
	return router
}

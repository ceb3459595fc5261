package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jaidev-km/kiranakart-backend/internal/adapters/repository"
	"github.com/jaidev-km/kiranakart-backend/internal/middleware"
	"github.com/jaidev-km/kiranakart-backend/internal/services/assignment"
	"github.com/jaidev-km/kiranakart-backend/internal/services/delivery"
	"github.com/jaidev-km/kiranakart-backend/internal/services/earnings"
	"github.com/jaidev-km/kiranakart-backend/internal/services/events"
	"github.com/jaidev-km/kiranakart-backend/internal/services/snapshot"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
)

func SetupRoutes(router *gin.Engine, db *mongo.Database, logger *logrus.Logger) {
	logger.Info("Setting up routes...")

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "Server is running!",
			"status":  "ok",
		})
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "kiranakart-backend",
		})
	})

	if db == nil {
		logger.Warn("Database not connected - running with limited functionality")
		router.Any("/api/*path", func(c *gin.Context) {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":   "Database connection not available",
				"message": "The server is running but could not connect to the database. Please check server logs.",
			})
		})
		return
	}

	orderRepo := repository.NewOrderRepository(db)
	agentRepo := repository.NewAgentRepository(db)
	productRepo := repository.NewProductRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)
	earningRepo := repository.NewEarningRepository(db)
	clientRepo := repository.NewClientRepository(db)
	sellerRepo := repository.NewSellerRepository(db)

	bus := events.NewBus()
	assigner := assignment.NewService(orderRepo, agentRepo, settingsRepo, logger)
	settler := earnings.NewService(earningRepo, productRepo, settingsRepo, logger)
	deliverySvc := delivery.NewService(orderRepo, agentRepo, settler, bus, logger)
	snapshots := snapshot.NewService(clientRepo, sellerRepo, agentRepo, earningRepo, logger)

	orderHandler := NewOrderHandler(db, assigner, deliverySvc, snapshots, bus, logger)
	deliveryHandler := NewDeliveryHandler(db, assigner, deliverySvc, logger)
	paymentHandler := NewPaymentHandler(db, assigner, bus, logger)

	api := router.Group("/api/v1")

	// Checkout and status serve guests as well as logged-in clients.
	orders := api.Group("/orders")
	orders.Use(middleware.OptionalAuth())
	{
		orders.POST("", orderHandler.PlaceOrder)
		orders.GET("/:id/status", orderHandler.GetStatus)
		orders.GET("/:id/events", orderHandler.StreamEvents)
		orders.GET("/history/:clientId", orderHandler.GetHistory)
		orders.POST("/:id/verify", orderHandler.VerifyPayment)
		orders.PATCH("/:id/delivery", orderHandler.UpdateDelivery)
		orders.POST("/:id/cancel", orderHandler.Cancel)
	}

	// Admin view carries party contact details and the earnings breakdown.
	admin := api.Group("/orders")
	admin.Use(middleware.AuthMiddleware(), middleware.RoleMiddleware("admin"))
	{
		admin.GET("/:id/admin-detail", orderHandler.GetAdminDetail)
	}

	deliveryGroup := api.Group("/delivery")
	{
		deliveryGroup.POST("/register", deliveryHandler.Register)
		deliveryGroup.POST("/accept-order", deliveryHandler.AcceptOrder)
		deliveryGroup.POST("/reject-order", deliveryHandler.RejectOrder)
		deliveryGroup.POST("/update-status", deliveryHandler.UpdateStatus)
		deliveryGroup.POST("/update-location", deliveryHandler.UpdateLocation)
		deliveryGroup.POST("/verify-otp", deliveryHandler.VerifyOTP)
		deliveryGroup.POST("/generate-otp", deliveryHandler.GenerateOTP)
		deliveryGroup.POST("/toggle-availability", deliveryHandler.ToggleAvailability)
		deliveryGroup.GET("/pending-orders/:agentId", deliveryHandler.PendingOrders)
		deliveryGroup.GET("/offers/:agentId", deliveryHandler.Offers)
		deliveryGroup.GET("/active-orders/:agentId", deliveryHandler.ActiveOrders)
		deliveryGroup.GET("/earnings/:agentId", deliveryHandler.AgentEarnings)
	}

	payments := api.Group("/payments")
	{
		payments.POST("/create-intent", paymentHandler.CreatePaymentIntent)
		payments.POST("/webhook", paymentHandler.HandleWebhook)
	}
}

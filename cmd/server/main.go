package main

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jaidev-km/kiranakart-backend/internal/config"
	"github.com/jaidev-km/kiranakart-backend/internal/handlers"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg := config.Load()

	db := connectMongo(cfg, logger)

	router := gin.Default()
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Stripe-Signature"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	handlers.SetupRoutes(router, db, logger)

	logger.WithField("port", cfg.Port).Info("Starting server")
	if err := router.Run(":" + cfg.Port); err != nil {
		logger.WithError(err).Fatal("Server exited")
	}
}

// connectMongo returns nil on failure so the server can still come up and
// report unhealthy instead of crash-looping.
func connectMongo(cfg config.Config, logger *logrus.Logger) *mongo.Database {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		logger.WithError(err).Error("Failed to create MongoDB client")
		return nil
	}
	if err := client.Ping(ctx, nil); err != nil {
		logger.WithError(err).Error("Failed to reach MongoDB")
		return nil
	}

	logger.Info("Connected to MongoDB")
	return client.Database(cfg.MongoDB)
}

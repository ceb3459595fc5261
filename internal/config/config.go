// Package config loads runtime configuration from the environment, with a
// .env file picked up in development.
package config

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Port     string
	MongoURI string
	MongoDB  string

	JWTSecret string

	StripeSecretKey     string
	StripeWebhookSecret string
}

// Load reads the environment. A missing .env file is fine in production where
// variables come from the process environment.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	cfg := Config{
		Port:                getEnv("PORT", "8080"),
		MongoURI:            getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDB:             getEnv("MONGODB_DATABASE", "kiranakart"),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
	}
	if cfg.JWTSecret == "" {
		logrus.Warn("JWT_SECRET is not set, authenticated routes will reject all tokens")
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Run this script once to create database indexes
// Usage: go run scripts/create_indexes.go
func main() {
	_ = godotenv.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	mongoURI := os.Getenv("MONGODB_URI")
	if mongoURI == "" {
		mongoURI = "mongodb://localhost:27017"
	}
	dbName := os.Getenv("MONGODB_DATABASE")
	if dbName == "" {
		dbName = "kiranakart"
	}

	log.Println("Connecting to MongoDB...")
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI).SetServerSelectionTimeout(30*time.Second))
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}
	defer client.Disconnect(ctx)

	if err := client.Ping(ctx, nil); err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	log.Println("Connected successfully")

	db := client.Database(dbName)

	create := func(collection string, model mongo.IndexModel) {
		name := *model.Options.Name
		if _, err := db.Collection(collection).Indexes().CreateOne(ctx, model); err != nil {
			log.Printf("Failed to create %s on %s: %v", name, collection, err)
		} else {
			log.Printf("Created index %s on %s", name, collection)
		}
	}

	// Orders: history listing and agent work queues.
	create("orders", mongo.IndexModel{
		Keys:    bson.D{{Key: "client_id", Value: 1}, {Key: "created_at", Value: -1}},
		Options: options.Index().SetName("idx_client_orders"),
	})
	create("orders", mongo.IndexModel{
		Keys:    bson.D{{Key: "delivery.delivery_status", Value: 1}, {Key: "payment.status", Value: 1}},
		Options: options.Index().SetName("idx_dispatch_queue"),
	})
	create("orders", mongo.IndexModel{
		Keys:    bson.D{{Key: "delivery.delivery_agent_id", Value: 1}, {Key: "delivery.delivery_status", Value: 1}},
		Options: options.Index().SetName("idx_agent_active"),
	})

	// Delivery agents: eligibility filter for assignment.
	create("delivery_agents", mongo.IndexModel{
		Keys: bson.D{
			{Key: "approved", Value: 1},
			{Key: "active", Value: 1},
			{Key: "available", Value: 1},
			{Key: "assigned_orders", Value: 1},
		},
		Options: options.Index().SetName("idx_agent_eligibility"),
	})
	create("delivery_agents", mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetName("idx_agent_email").SetUnique(true),
	})

	// Earning logs: the settlement key must be unique so duplicate settlements
	// cannot create a second record.
	create("earning_logs", mongo.IndexModel{
		Keys: bson.D{
			{Key: "order_id", Value: 1},
			{Key: "role", Value: 1},
			{Key: "seller_id", Value: 1},
			{Key: "agent_id", Value: 1},
		},
		Options: options.Index().SetName("idx_settlement_key").SetUnique(true),
	})
	create("earning_logs", mongo.IndexModel{
		Keys:    bson.D{{Key: "agent_id", Value: 1}, {Key: "created_at", Value: -1}},
		Options: options.Index().SetName("idx_agent_earnings"),
	})

	log.Println("All indexes processed")
}

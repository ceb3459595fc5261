package repository

import (
	"context"
	"time"

	"github.com/jaidev-km/kiranakart-backend/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type AgentRepository interface {
	Create(ctx context.Context, agent models.DeliveryAgent) (models.DeliveryAgent, error)
	GetByID(ctx context.Context, agentID primitive.ObjectID) (models.DeliveryAgent, error)
	FindEligible(ctx context.Context, exclude []primitive.ObjectID) ([]models.DeliveryAgent, error)
	ReserveSlot(ctx context.Context, agentID primitive.ObjectID) (bool, error)
	ReleaseSlot(ctx context.Context, agentID primitive.ObjectID) error
	CompleteDelivery(ctx context.Context, agentID primitive.ObjectID) error
	UpdateLocation(ctx context.Context, agentID primitive.ObjectID, lat, lng float64) error
	SetAvailability(ctx context.Context, agentID primitive.ObjectID, available bool) error
}

type MongoAgentRepository struct {
	DB *mongo.Database
}

func NewAgentRepository(db *mongo.Database) AgentRepository {
	return &MongoAgentRepository{DB: db}
}

func (r *MongoAgentRepository) Create(ctx context.Context, agent models.DeliveryAgent) (models.DeliveryAgent, error) {
	collection := r.DB.Collection("delivery_agents")

	agent.ID = primitive.NewObjectID()
	agent.CreatedAt = time.Now()

	if _, err := collection.InsertOne(ctx, agent); err != nil {
		return models.DeliveryAgent{}, err
	}
	return agent, nil
}

func (r *MongoAgentRepository) GetByID(ctx context.Context, agentID primitive.ObjectID) (models.DeliveryAgent, error) {
	collection := r.DB.Collection("delivery_agents")
	var agent models.DeliveryAgent
	err := collection.FindOne(ctx, bson.M{"_id": agentID}).Decode(&agent)
	return agent, err
}

// FindEligible returns approved, online, available agents with a location fix
// and free capacity, excluding the given ids.
func (r *MongoAgentRepository) FindEligible(ctx context.Context, exclude []primitive.ObjectID) ([]models.DeliveryAgent, error) {
	collection := r.DB.Collection("delivery_agents")

	filter := bson.M{
		"approved":         true,
		"active":           true,
		"available":        true,
		"current_location": bson.M{"$exists": true},
		"assigned_orders":  bson.M{"$lt": models.MaxConcurrentDeliveries},
	}
	if len(exclude) > 0 {
		filter["_id"] = bson.M{"$nin": exclude}
	}

	cursor, err := collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var agents []models.DeliveryAgent
	if err := cursor.All(ctx, &agents); err != nil {
		return nil, err
	}
	return agents, nil
}

// ReserveSlot takes one capacity slot with a conditional increment so that
// concurrent acceptances cannot race past the cap. Returns false when the
// agent was already at capacity.
func (r *MongoAgentRepository) ReserveSlot(ctx context.Context, agentID primitive.ObjectID) (bool, error) {
	collection := r.DB.Collection("delivery_agents")

	res, err := collection.UpdateOne(ctx,
		bson.M{"_id": agentID, "assigned_orders": bson.M{"$lt": models.MaxConcurrentDeliveries}},
		bson.M{"$inc": bson.M{"assigned_orders": 1}})
	if err != nil {
		return false, err
	}
	if res.MatchedCount == 0 {
		return false, nil
	}

	// Flip availability off once the cap is reached. Best effort; the capacity
	// filter above is what actually enforces the bound.
	_, _ = collection.UpdateOne(ctx,
		bson.M{"_id": agentID, "assigned_orders": bson.M{"$gte": models.MaxConcurrentDeliveries}},
		bson.M{"$set": bson.M{"available": false}})

	return true, nil
}

// ReleaseSlot frees one capacity slot (rejection or cancellation path).
func (r *MongoAgentRepository) ReleaseSlot(ctx context.Context, agentID primitive.ObjectID) error {
	collection := r.DB.Collection("delivery_agents")
	_, err := collection.UpdateOne(ctx,
		bson.M{"_id": agentID, "assigned_orders": bson.M{"$gt": 0}},
		bson.M{
			"$inc": bson.M{"assigned_orders": -1},
			"$set": bson.M{"available": true},
		})
	return err
}

// CompleteDelivery releases the slot and bumps the lifetime counter.
func (r *MongoAgentRepository) CompleteDelivery(ctx context.Context, agentID primitive.ObjectID) error {
	collection := r.DB.Collection("delivery_agents")
	_, err := collection.UpdateOne(ctx,
		bson.M{"_id": agentID},
		bson.M{
			"$inc": bson.M{"assigned_orders": -1, "completed_orders": 1},
			"$set": bson.M{"available": true},
		})
	return err
}

func (r *MongoAgentRepository) UpdateLocation(ctx context.Context, agentID primitive.ObjectID, lat, lng float64) error {
	collection := r.DB.Collection("delivery_agents")
	_, err := collection.UpdateOne(ctx,
		bson.M{"_id": agentID},
		bson.M{"$set": bson.M{
			"current_location.lat":        lat,
			"current_location.lng":        lng,
			"current_location.updated_at": time.Now(),
		}})
	return err
}

func (r *MongoAgentRepository) SetAvailability(ctx context.Context, agentID primitive.ObjectID, available bool) error {
	collection := r.DB.Collection("delivery_agents")
	res, err := collection.UpdateOne(ctx,
		bson.M{"_id": agentID},
		bson.M{"$set": bson.M{"available": available, "active": available}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

package repository

import (
	"context"
	"time"

	"github.com/jaidev-km/kiranakart-backend/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type OrderRepository interface {
	Create(ctx context.Context, order models.Order) (models.Order, error)
	GetByID(ctx context.Context, orderID primitive.ObjectID) (models.Order, error)
	GetByClientID(ctx context.Context, clientID string, limit int64) ([]models.Order, error)
	Update(ctx context.Context, order models.Order) (models.Order, error)
	FindActiveForAgent(ctx context.Context, agentID primitive.ObjectID) ([]models.Order, error)
	FindOffersForAgent(ctx context.Context, agentID primitive.ObjectID) ([]models.Order, error)
	FindPendingForAgent(ctx context.Context, agentID primitive.ObjectID, limit int64) ([]models.Order, error)
}

type MongoOrderRepository struct {
	DB *mongo.Database
}

func NewOrderRepository(db *mongo.Database) OrderRepository {
	return &MongoOrderRepository{DB: db}
}

func (r *MongoOrderRepository) Create(ctx context.Context, order models.Order) (models.Order, error) {
	collection := r.DB.Collection("orders")

	order.ID = primitive.NewObjectID()
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt

	if _, err := collection.InsertOne(ctx, order); err != nil {
		return models.Order{}, err
	}
	return order, nil
}

func (r *MongoOrderRepository) GetByID(ctx context.Context, orderID primitive.ObjectID) (models.Order, error) {
	collection := r.DB.Collection("orders")
	var order models.Order
	err := collection.FindOne(ctx, bson.M{"_id": orderID}).Decode(&order)
	return order, err
}

func (r *MongoOrderRepository) GetByClientID(ctx context.Context, clientID string, limit int64) ([]models.Order, error) {
	collection := r.DB.Collection("orders")
	opts := options.Find().SetSort(bson.M{"_id": -1}).SetLimit(limit)

	cursor, err := collection.Find(ctx, bson.M{"client_id": clientID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var orders []models.Order
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// Update replaces the whole order document. All mutations flow through the
// domain services, so a full single-document write keeps them atomic.
func (r *MongoOrderRepository) Update(ctx context.Context, order models.Order) (models.Order, error) {
	collection := r.DB.Collection("orders")
	order.UpdatedAt = time.Now()

	res, err := collection.ReplaceOne(ctx, bson.M{"_id": order.ID}, order)
	if err != nil {
		return models.Order{}, err
	}
	if res.MatchedCount == 0 {
		return models.Order{}, mongo.ErrNoDocuments
	}
	return order, nil
}

// FindActiveForAgent returns the deliveries the agent currently carries,
// including open offers that have not been accepted yet.
func (r *MongoOrderRepository) FindActiveForAgent(ctx context.Context, agentID primitive.ObjectID) ([]models.Order, error) {
	collection := r.DB.Collection("orders")
	cursor, err := collection.Find(ctx, bson.M{
		"delivery.delivery_agent_id": agentID,
		"delivery.delivery_status": bson.M{
			"$in": []models.DeliveryStatus{models.DeliveryAssigned, models.DeliveryAccepted, models.DeliveryPickedUp, models.DeliveryInTransit},
		},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var orders []models.Order
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// FindOffersForAgent returns orders currently offered to the agent and still
// awaiting a response.
func (r *MongoOrderRepository) FindOffersForAgent(ctx context.Context, agentID primitive.ObjectID) ([]models.Order, error) {
	collection := r.DB.Collection("orders")
	opts := options.Find().SetSort(bson.M{"created_at": -1})

	cursor, err := collection.Find(ctx, bson.M{
		"delivery.delivery_agent_id":       agentID,
		"delivery.delivery_agent_response": models.ResponseAssigned,
		"delivery.delivery_status":         models.DeliveryAssigned,
	}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var orders []models.Order
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// FindPendingForAgent returns paid, still-unassigned orders the agent has not
// been offered before.
func (r *MongoOrderRepository) FindPendingForAgent(ctx context.Context, agentID primitive.ObjectID, limit int64) ([]models.Order, error) {
	collection := r.DB.Collection("orders")
	opts := options.Find().SetSort(bson.M{"created_at": -1}).SetLimit(limit)

	filter := bson.M{
		"payment.status":           models.PaymentPaid,
		"delivery.delivery_status": models.DeliveryPending,
		"$or": []bson.M{
			{"delivery.delivery_agent_id": nil},
			{"delivery.delivery_agent_id": bson.M{"$exists": false}},
		},
		"delivery.assignment_history": bson.M{
			"$not": bson.M{"$elemMatch": bson.M{"agent_id": agentID}},
		},
	}

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var orders []models.Order
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

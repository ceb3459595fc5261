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

type EarningRepository interface {
	Upsert(ctx context.Context, log models.EarningLog) error
	FindByOrder(ctx context.Context, orderID primitive.ObjectID) ([]models.EarningLog, error)
	FindByAgent(ctx context.Context, agentID primitive.ObjectID) ([]models.EarningLog, error)
	SetPaid(ctx context.Context, logID primitive.ObjectID, paid bool) error
}

type MongoEarningRepository struct {
	DB *mongo.Database
}

func NewEarningRepository(db *mongo.Database) EarningRepository {
	return &MongoEarningRepository{DB: db}
}

// Upsert writes a settlement record keyed on (order, role, seller/agent).
// Values are only set on insert: a log is a point-in-time snapshot and a
// second settlement attempt must neither duplicate nor overwrite it.
func (r *MongoEarningRepository) Upsert(ctx context.Context, log models.EarningLog) error {
	collection := r.DB.Collection("earning_logs")

	filter := bson.M{
		"role":      log.Role,
		"order_id":  log.OrderID,
		"seller_id": log.SellerID,
		"agent_id":  log.AgentID,
	}
	update := bson.M{"$setOnInsert": bson.M{
		"role":                log.Role,
		"order_id":            log.OrderID,
		"seller_id":           log.SellerID,
		"agent_id":            log.AgentID,
		"item_total":          log.ItemTotal,
		"delivery_charge":     log.DeliveryCharge,
		"platform_commission": log.PlatformCommission,
		"net_earning":         log.NetEarning,
		"paid":                false,
		"created_at":          time.Now(),
	}}

	_, err := collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

func (r *MongoEarningRepository) FindByOrder(ctx context.Context, orderID primitive.ObjectID) ([]models.EarningLog, error) {
	collection := r.DB.Collection("earning_logs")

	cursor, err := collection.Find(ctx, bson.M{"order_id": orderID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var logs []models.EarningLog
	if err := cursor.All(ctx, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

func (r *MongoEarningRepository) FindByAgent(ctx context.Context, agentID primitive.ObjectID) ([]models.EarningLog, error) {
	collection := r.DB.Collection("earning_logs")
	opts := options.Find().SetSort(bson.M{"created_at": -1})

	cursor, err := collection.Find(ctx, bson.M{"role": models.EarningRoleDelivery, "agent_id": agentID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var logs []models.EarningLog
	if err := cursor.All(ctx, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

// SetPaid is the single permitted mutation of a settlement record.
func (r *MongoEarningRepository) SetPaid(ctx context.Context, logID primitive.ObjectID, paid bool) error {
	collection := r.DB.Collection("earning_logs")

	res, err := collection.UpdateOne(ctx,
		bson.M{"_id": logID},
		bson.M{"$set": bson.M{"paid": paid}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

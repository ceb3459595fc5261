package repository

import (
	"context"

	"github.com/jaidev-km/kiranakart-backend/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type SettingsRepository interface {
	Get(ctx context.Context) (models.PlatformSettings, error)
	RedeemCoupon(ctx context.Context, code string) (bool, error)
}

type MongoSettingsRepository struct {
	DB *mongo.Database
}

func NewSettingsRepository(db *mongo.Database) SettingsRepository {
	return &MongoSettingsRepository{DB: db}
}

// Get returns the settings singleton, or the defaults when none exists yet.
func (r *MongoSettingsRepository) Get(ctx context.Context) (models.PlatformSettings, error) {
	collection := r.DB.Collection("platform_settings")

	var settings models.PlatformSettings
	err := collection.FindOne(ctx, bson.M{}).Decode(&settings)
	if err == mongo.ErrNoDocuments {
		return models.DefaultPlatformSettings(), nil
	}
	if err != nil {
		return models.PlatformSettings{}, err
	}
	return settings, nil
}

// RedeemCoupon bumps the coupon usage counter atomically and then checks the
// limit, rolling the increment back on overflow. Two orders racing for the
// last use can therefore not both redeem it.
func (r *MongoSettingsRepository) RedeemCoupon(ctx context.Context, code string) (bool, error) {
	collection := r.DB.Collection("platform_settings")

	filter := bson.M{"coupons": bson.M{"$elemMatch": bson.M{"code": code, "active": true}}}
	res := collection.FindOneAndUpdate(ctx, filter,
		bson.M{"$inc": bson.M{"coupons.$.usage_count": 1}})

	var before models.PlatformSettings
	if err := res.Decode(&before); err != nil {
		if err == mongo.ErrNoDocuments {
			return false, nil
		}
		return false, err
	}

	coupon, ok := before.FindCoupon(code)
	if !ok {
		return false, nil
	}
	// The decoded document is the pre-increment state: the redemption stands
	// only if a use was still available at write time.
	if coupon.UsageRemaining() {
		return true, nil
	}

	_, err := collection.UpdateOne(ctx, filter,
		bson.M{"$inc": bson.M{"coupons.$.usage_count": -1}})
	return false, err
}

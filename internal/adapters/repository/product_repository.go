package repository

import (
	"context"

	"github.com/jaidev-km/kiranakart-backend/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type ProductRepository interface {
	FindByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.Product, error)
	GetByID(ctx context.Context, productID primitive.ObjectID) (models.Product, error)
}

type MongoProductRepository struct {
	DB *mongo.Database
}

func NewProductRepository(db *mongo.Database) ProductRepository {
	return &MongoProductRepository{DB: db}
}

func (r *MongoProductRepository) FindByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	collection := r.DB.Collection("products")

	cursor, err := collection.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var products []models.Product
	if err := cursor.All(ctx, &products); err != nil {
		return nil, err
	}
	return products, nil
}

func (r *MongoProductRepository) GetByID(ctx context.Context, productID primitive.ObjectID) (models.Product, error) {
	collection := r.DB.Collection("products")
	var product models.Product
	err := collection.FindOne(ctx, bson.M{"_id": productID}).Decode(&product)
	return product, err
}

// ProductMap indexes products by hex id for snapshot lookups.
func ProductMap(products []models.Product) map[string]models.Product {
	m := make(map[string]models.Product, len(products))
	for _, p := range products {
		m[p.ID.Hex()] = p
	}
	return m
}

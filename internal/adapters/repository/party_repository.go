package repository

import (
	"context"

	"github.com/jaidev-km/kiranakart-backend/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type SellerRepository interface {
	GetByID(ctx context.Context, sellerID primitive.ObjectID) (models.Seller, error)
}

type ClientRepository interface {
	GetByID(ctx context.Context, clientID string) (models.Client, error)
}

type AddressRepository interface {
	GetForUser(ctx context.Context, addressID primitive.ObjectID, userID string) (models.UserAddress, error)
}

type MongoSellerRepository struct {
	DB *mongo.Database
}

func NewSellerRepository(db *mongo.Database) SellerRepository {
	return &MongoSellerRepository{DB: db}
}

func (r *MongoSellerRepository) GetByID(ctx context.Context, sellerID primitive.ObjectID) (models.Seller, error) {
	var seller models.Seller
	err := r.DB.Collection("sellers").FindOne(ctx, bson.M{"_id": sellerID}).Decode(&seller)
	return seller, err
}

type MongoClientRepository struct {
	DB *mongo.Database
}

func NewClientRepository(db *mongo.Database) ClientRepository {
	return &MongoClientRepository{DB: db}
}

// GetByID resolves a client document from the string identifier stored on
// orders. Guest ids never resolve, which callers treat as partial data.
func (r *MongoClientRepository) GetByID(ctx context.Context, clientID string) (models.Client, error) {
	var client models.Client
	oid, err := primitive.ObjectIDFromHex(clientID)
	if err != nil {
		return models.Client{}, mongo.ErrNoDocuments
	}
	err = r.DB.Collection("clients").FindOne(ctx, bson.M{"_id": oid}).Decode(&client)
	return client, err
}

type MongoAddressRepository struct {
	DB *mongo.Database
}

func NewAddressRepository(db *mongo.Database) AddressRepository {
	return &MongoAddressRepository{DB: db}
}

func (r *MongoAddressRepository) GetForUser(ctx context.Context, addressID primitive.ObjectID, userID string) (models.UserAddress, error) {
	var address models.UserAddress
	err := r.DB.Collection("user_addresses").FindOne(ctx, bson.M{"_id": addressID, "user_id": userID}).Decode(&address)
	return address, err
}

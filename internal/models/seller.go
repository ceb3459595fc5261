package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Seller struct {
	ID           primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	BusinessName string             `json:"business_name" bson:"business_name"`
	Email        string             `json:"email" bson:"email"`
	Phone        string             `json:"phone" bson:"phone"`
	BusinessType string             `json:"business_type,omitempty" bson:"business_type,omitempty"`
	Approved     bool               `json:"approved" bson:"approved"`
	Address      string             `json:"address,omitempty" bson:"address,omitempty"`
	Location     *GeoPoint          `json:"location,omitempty" bson:"location,omitempty"`
	CreatedAt    time.Time          `json:"created_at" bson:"created_at"`
}

type Client struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Name      string             `json:"name" bson:"name"`
	Phone     string             `json:"phone" bson:"phone"`
	Email     string             `json:"email" bson:"email"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
}

type UserAddress struct {
	ID             primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	UserID         string             `json:"user_id" bson:"user_id"`
	FullAddress    string             `json:"full_address" bson:"full_address"`
	RecipientName  string             `json:"recipient_name,omitempty" bson:"recipient_name,omitempty"`
	RecipientPhone string             `json:"recipient_phone,omitempty" bson:"recipient_phone,omitempty"`
	Landmark       string             `json:"landmark,omitempty" bson:"landmark,omitempty"`
	Location       *GeoPoint          `json:"location,omitempty" bson:"location,omitempty"`
	CreatedAt      time.Time          `json:"created_at" bson:"created_at"`
}

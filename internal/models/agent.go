package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MaxConcurrentDeliveries caps how many non-terminal orders an agent may hold.
const MaxConcurrentDeliveries = 3

type AgentLocation struct {
	Lat       float64   `json:"lat" bson:"lat"`
	Lng       float64   `json:"lng" bson:"lng"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

func (l AgentLocation) Point() GeoPoint {
	return GeoPoint{Lat: l.Lat, Lng: l.Lng}
}

type DeliveryAgent struct {
	ID    primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Name  string             `json:"name" bson:"name" validate:"required"`
	Email string             `json:"email" bson:"email" validate:"required,email"`
	Phone string             `json:"phone" bson:"phone" validate:"required"`

	Password string `json:"-" bson:"password,omitempty"`

	Approved  bool `json:"approved" bson:"approved"`
	Online    bool `json:"active" bson:"active"`
	Available bool `json:"available" bson:"available"`

	// AssignedOrders counts deliveries currently held against capacity.
	AssignedOrders  int `json:"assigned_orders" bson:"assigned_orders"`
	CompletedOrders int `json:"completed_orders" bson:"completed_orders"`

	VehicleType string `json:"vehicle_type,omitempty" bson:"vehicle_type,omitempty"`

	CurrentLocation *AgentLocation `json:"current_location,omitempty" bson:"current_location,omitempty"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// HasLocationFix reports whether the agent has ever reported a position.
func (a DeliveryAgent) HasLocationFix() bool {
	return a.CurrentLocation != nil
}

type RegisterAgentInput struct {
	Name        string `json:"name" binding:"required"`
	Email       string `json:"email" binding:"required,email"`
	Phone       string `json:"phone" binding:"required"`
	Password    string `json:"password" binding:"required,min=6"`
	VehicleType string `json:"vehicle_type,omitempty"`
}

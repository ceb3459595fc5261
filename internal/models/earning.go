package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type EarningRole string

const (
	EarningRoleSeller   EarningRole = "seller"
	EarningRoleDelivery EarningRole = "delivery"
)

// EarningLog is an immutable point-in-time settlement record. One exists per
// (order, role, seller/agent); the paid toggle is the only allowed mutation.
type EarningLog struct {
	ID       primitive.ObjectID  `json:"id" bson:"_id,omitempty"`
	Role     EarningRole         `json:"role" bson:"role"`
	OrderID  primitive.ObjectID  `json:"order_id" bson:"order_id"`
	SellerID *primitive.ObjectID `json:"seller_id,omitempty" bson:"seller_id,omitempty"`
	AgentID  *primitive.ObjectID `json:"agent_id,omitempty" bson:"agent_id,omitempty"`

	ItemTotal          float64 `json:"item_total" bson:"item_total"`
	DeliveryCharge     float64 `json:"delivery_charge" bson:"delivery_charge"`
	PlatformCommission float64 `json:"platform_commission" bson:"platform_commission"`
	NetEarning         float64 `json:"net_earning" bson:"net_earning"`

	Paid      bool      `json:"paid" bson:"paid"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderConfirmed OrderStatus = "confirmed"
	OrderDelivered OrderStatus = "delivered"
	OrderCancelled OrderStatus = "cancelled"
)

type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryAssigned  DeliveryStatus = "assigned"
	DeliveryAccepted  DeliveryStatus = "accepted"
	DeliveryPickedUp  DeliveryStatus = "picked_up"
	DeliveryInTransit DeliveryStatus = "in_transit"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryCancelled DeliveryStatus = "cancelled"
)

// Terminal reports whether no further delivery transitions are possible.
func (s DeliveryStatus) Terminal() bool {
	return s == DeliveryDelivered || s == DeliveryCancelled
}

// Active reports whether the agent currently holds this order against capacity.
func (s DeliveryStatus) Active() bool {
	switch s {
	case DeliveryAccepted, DeliveryPickedUp, DeliveryInTransit:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

const PaymentMethodCOD = "COD"

type AssignmentResponse string

const (
	ResponseAssigned AssignmentResponse = "assigned"
	ResponseAccepted AssignmentResponse = "accepted"
	ResponseRejected AssignmentResponse = "rejected"
)

type GeoPoint struct {
	Lat float64 `json:"lat" bson:"lat"`
	Lng float64 `json:"lng" bson:"lng"`
}

type OrderItem struct {
	ProductID     primitive.ObjectID `json:"product_id,omitempty" bson:"product_id,omitempty"`
	Qty           int                `json:"qty" bson:"qty"`
	PriceSnapshot float64            `json:"price_snapshot" bson:"price_snapshot"`
	NameSnapshot  string             `json:"name_snapshot" bson:"name_snapshot"`
}

type PaymentVerification struct {
	By   string    `json:"by" bson:"by"`
	Note string    `json:"note,omitempty" bson:"note,omitempty"`
	At   time.Time `json:"at" bson:"at"`
}

type Payment struct {
	// Amount is subtotal minus discount, frozen at order creation.
	Amount      float64              `json:"amount" bson:"amount"`
	Method      string               `json:"method" bson:"method"`
	Status      PaymentStatus        `json:"status" bson:"status"`
	PaymentID   string               `json:"payment_id,omitempty" bson:"payment_id,omitempty"`
	PaymentDate *time.Time           `json:"payment_date,omitempty" bson:"payment_date,omitempty"`
	Verified    *PaymentVerification `json:"verified,omitempty" bson:"verified,omitempty"`
}

// AssignmentRecord is one append-only entry of the agent-offer log.
type AssignmentRecord struct {
	AgentID  primitive.ObjectID `json:"agent_id" bson:"agent_id"`
	Response AssignmentResponse `json:"response" bson:"response"`
	Reason   string             `json:"reason,omitempty" bson:"reason,omitempty"`
	At       time.Time          `json:"at" bson:"at"`
}

type DeliveryAddress struct {
	AddressID      *primitive.ObjectID `json:"address_id,omitempty" bson:"address_id,omitempty"`
	FullAddress    string              `json:"full_address" bson:"full_address"`
	RecipientName  string              `json:"recipient_name,omitempty" bson:"recipient_name,omitempty"`
	RecipientPhone string              `json:"recipient_phone,omitempty" bson:"recipient_phone,omitempty"`
	Landmark       string              `json:"landmark,omitempty" bson:"landmark,omitempty"`
	Location       *GeoPoint           `json:"location,omitempty" bson:"location,omitempty"`
}

type PickupAddress struct {
	FullAddress string    `json:"full_address" bson:"full_address"`
	Location    *GeoPoint `json:"location,omitempty" bson:"location,omitempty"`
}

type DeliveryInfo struct {
	DeliveryStatus  DeliveryStatus      `json:"delivery_status" bson:"delivery_status"`
	DeliveryAgentID *primitive.ObjectID `json:"delivery_agent_id,omitempty" bson:"delivery_agent_id,omitempty"`
	AgentResponse   AssignmentResponse  `json:"delivery_agent_response,omitempty" bson:"delivery_agent_response,omitempty"`

	AssignmentHistory []AssignmentRecord `json:"assignment_history,omitempty" bson:"assignment_history,omitempty"`

	DeliveryAddress DeliveryAddress `json:"delivery_address" bson:"delivery_address"`
	PickupAddress   *PickupAddress  `json:"pickup_address,omitempty" bson:"pickup_address,omitempty"`

	// DeliveryCharge is nil until dispatch stamps it; once set it is never recomputed.
	DeliveryCharge *float64 `json:"delivery_charge,omitempty" bson:"delivery_charge,omitempty"`

	OTPCode       string     `json:"otp_code,omitempty" bson:"otp_code,omitempty"`
	OTPVerified   bool       `json:"otp_verified" bson:"otp_verified"`
	OTPVerifiedAt *time.Time `json:"otp_verified_at,omitempty" bson:"otp_verified_at,omitempty"`

	PickupTime        *time.Time `json:"pickup_time,omitempty" bson:"pickup_time,omitempty"`
	DeliveryStartTime *time.Time `json:"delivery_start_time,omitempty" bson:"delivery_start_time,omitempty"`
	DeliveryEndTime   *time.Time `json:"delivery_end_time,omitempty" bson:"delivery_end_time,omitempty"`
	EtaAt             *time.Time `json:"eta_at,omitempty" bson:"eta_at,omitempty"`

	CancellationReason string     `json:"cancellation_reason,omitempty" bson:"cancellation_reason,omitempty"`
	CancelledBy        string     `json:"cancelled_by,omitempty" bson:"cancelled_by,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty" bson:"cancelled_at,omitempty"`
}

// Charge returns the frozen delivery charge, or 0 when not stamped yet.
func (d DeliveryInfo) Charge() float64 {
	if d.DeliveryCharge == nil {
		return 0
	}
	return *d.DeliveryCharge
}

// TriedAgents returns the set of agents already offered this order.
func (d DeliveryInfo) TriedAgents() map[primitive.ObjectID]bool {
	tried := make(map[primitive.ObjectID]bool, len(d.AssignmentHistory))
	for _, h := range d.AssignmentHistory {
		tried[h.AgentID] = true
	}
	return tried
}

type Order struct {
	ID       primitive.ObjectID  `json:"id" bson:"_id,omitempty"`
	ClientID string              `json:"client_id" bson:"client_id"`
	SellerID *primitive.ObjectID `json:"seller_id,omitempty" bson:"seller_id,omitempty"`

	// Category is the sub-order group this order was created for (grocery or food).
	Category Category `json:"category" bson:"category"`

	Status OrderStatus `json:"status" bson:"status"`

	OrderItems []OrderItem `json:"order_items" bson:"order_items"`
	Payment    Payment     `json:"payment" bson:"payment"`

	CouponCode            string  `json:"coupon_code,omitempty" bson:"coupon_code,omitempty"`
	AppliedDiscountAmount float64 `json:"applied_discount_amount" bson:"applied_discount_amount"`

	Delivery DeliveryInfo `json:"delivery" bson:"delivery"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// Subtotal recomputes the item subtotal from the snapshot lines.
func (o Order) Subtotal() float64 {
	var s float64
	for _, it := range o.OrderItems {
		s += it.PriceSnapshot * float64(it.Qty)
	}
	return s
}

// Category is the sub-order grouping bucket derived from item categories.
type Category string

const (
	CategoryGrocery Category = "grocery"
	CategoryFood    Category = "food"
)

// ResolveCategory buckets a raw product category string. Restaurant and food
// items form the food group; everything else, vegetables included, is grocery.
func ResolveCategory(raw string) Category {
	c := strings.ToLower(raw)
	if strings.Contains(c, "restaurant") || strings.Contains(c, "food") || strings.Contains(c, "eat") {
		return CategoryFood
	}
	return CategoryGrocery
}

// --- request payloads ---

type OrderItemInput struct {
	ProductID string   `json:"product_id"`
	Qty       int      `json:"qty"`
	Quantity  int      `json:"quantity"`
	Price     *float64 `json:"price,omitempty"`
	Name      string   `json:"name,omitempty"`
	Category  string   `json:"category,omitempty"`
}

// EffectiveQty accepts both qty and quantity field spellings, clamped to 1.
func (i OrderItemInput) EffectiveQty() int {
	q := i.Qty
	if q == 0 {
		q = i.Quantity
	}
	if q < 1 {
		return 1
	}
	return q
}

type DeliveryAddressInput struct {
	FullAddress    string    `json:"full_address,omitempty"`
	AddressLine    string    `json:"address_line,omitempty"`
	City           string    `json:"city,omitempty"`
	State          string    `json:"state,omitempty"`
	Pincode        string    `json:"pincode,omitempty"`
	RecipientName  string    `json:"recipient_name,omitempty"`
	RecipientPhone string    `json:"recipient_phone,omitempty"`
	Landmark       string    `json:"landmark,omitempty"`
	Location       *GeoPoint `json:"location,omitempty"`
}

// Resolved concatenates structured fields when no full_address was given.
func (a DeliveryAddressInput) Resolved() string {
	if s := strings.TrimSpace(a.FullAddress); s != "" {
		return s
	}
	parts := make([]string, 0, 4)
	for _, p := range []string{a.AddressLine, a.City, a.State, a.Pincode} {
		if s := strings.TrimSpace(p); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

type PlaceOrderInput struct {
	Items []OrderItemInput `json:"items" binding:"required"`

	// ClientID distinguishes absent (nil) from explicitly empty (rejected).
	ClientID *string `json:"client_id,omitempty"`
	SellerID string  `json:"seller_id,omitempty"`

	Method     string `json:"method,omitempty"`
	Coupon     string `json:"coupon,omitempty"`
	CouponCode string `json:"coupon_code,omitempty"`

	DeliveryAddressID  string                `json:"delivery_address_id,omitempty"`
	DeliveryAddress    *DeliveryAddressInput `json:"delivery_address,omitempty"`
	DeliveryAddressRaw string                `json:"delivery_address_text,omitempty"`
}

// EffectiveCoupon accepts both coupon and coupon_code field spellings.
func (in PlaceOrderInput) EffectiveCoupon() string {
	if c := strings.TrimSpace(in.Coupon); c != "" {
		return c
	}
	return strings.TrimSpace(in.CouponCode)
}

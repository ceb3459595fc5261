package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ProductStatus string

const (
	ProductStatusActive   ProductStatus = "active"
	ProductStatusInactive ProductStatus = "inactive"
)

type Product struct {
	ID       primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	SellerID primitive.ObjectID `json:"seller_id" bson:"seller_id"`

	Name        string  `json:"name" bson:"name" validate:"required"`
	Category    string  `json:"category,omitempty" bson:"category,omitempty"` // e.g. Grocery, Restaurant, Vegetables
	Price       float64 `json:"price" bson:"price" validate:"required,gte=0"`
	Description string  `json:"description,omitempty" bson:"description,omitempty"`
	Image       string  `json:"image,omitempty" bson:"image,omitempty"`

	// Canonical fields.
	Status ProductStatus `json:"status" bson:"status"`
	Stock  *int          `json:"stock,omitempty" bson:"stock,omitempty"`

	// Legacy duck-typed fields still present on older documents.
	Available     *bool `json:"available,omitempty" bson:"available,omitempty"`
	StockQuantity *int  `json:"stock_quantity,omitempty" bson:"stock_quantity,omitempty"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// ProductAvailability is the canonical shape the ordering core sees. Stock < 0
// means the product does not track stock and any quantity passes.
type ProductAvailability struct {
	Active bool
	Stock  int
}

// Availability normalizes the legacy field variants: the legacy available
// boolean wins over status when present, and stock_quantity wins over stock.
func (p Product) Availability() ProductAvailability {
	active := p.Status == ProductStatusActive
	if p.Available != nil {
		active = *p.Available
	}
	stock := -1
	if p.StockQuantity != nil {
		stock = *p.StockQuantity
	} else if p.Stock != nil {
		stock = *p.Stock
	}
	return ProductAvailability{Active: active, Stock: stock}
}

// CategoryGroup buckets the product for sub-order grouping.
func (p Product) CategoryGroup() Category {
	return ResolveCategory(p.Category)
}

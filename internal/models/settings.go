package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Coupon struct {
	Code        string     `json:"code" bson:"code"`
	Percent     float64    `json:"percent" bson:"percent"`
	Active      bool       `json:"active" bson:"active"`
	MinSubtotal float64    `json:"minSubtotal" bson:"minSubtotal"`
	Categories  []Category `json:"categories,omitempty" bson:"categories,omitempty"`
	ValidFrom   *time.Time `json:"validFrom,omitempty" bson:"validFrom,omitempty"`
	ValidTo     *time.Time `json:"validTo,omitempty" bson:"validTo,omitempty"`

	UsageCount int  `json:"usage_count" bson:"usage_count"`
	UsageLimit *int `json:"usage_limit,omitempty" bson:"usage_limit,omitempty"`
}

// UsageRemaining reports whether the coupon can still be redeemed.
func (c Coupon) UsageRemaining() bool {
	return c.UsageLimit == nil || c.UsageCount < *c.UsageLimit
}

// ValidAt checks the validity window against the given instant.
func (c Coupon) ValidAt(now time.Time) bool {
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return false
	}
	if c.ValidTo != nil && now.After(*c.ValidTo) {
		return false
	}
	return true
}

// AppliesTo reports whether the coupon's category scoping matches any of the
// categories present in the cart. An unscoped coupon applies to everything.
func (c Coupon) AppliesTo(present map[Category]bool) bool {
	if len(c.Categories) == 0 {
		return true
	}
	for _, cat := range c.Categories {
		if present[cat] {
			return true
		}
	}
	return false
}

// PlatformSettings is the read-mostly admin configuration singleton. The core
// fetches one snapshot per request and passes it down; only coupon usage
// counters are ever written back.
type PlatformSettings struct {
	ID primitive.ObjectID `json:"id" bson:"_id,omitempty"`

	CurrencySymbol string `json:"currency_symbol" bson:"currency_symbol"`

	DeliveryChargeGrocery     float64 `json:"delivery_charge_grocery" bson:"delivery_charge_grocery"`
	DeliveryChargeFood        float64 `json:"delivery_charge_food" bson:"delivery_charge_food"`
	MinTotalForDeliveryCharge float64 `json:"min_total_for_delivery_charge" bson:"min_total_for_delivery_charge"`

	PlatformCommissionRate float64 `json:"platform_commission_rate" bson:"platform_commission_rate"`
	DeliveryAgentShareRate float64 `json:"delivery_agent_share_rate" bson:"delivery_agent_share_rate"`

	Coupons []Coupon `json:"coupons,omitempty" bson:"coupons,omitempty"`

	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// BaseDeliveryCharge returns the per-category flat fee.
func (s PlatformSettings) BaseDeliveryCharge(cat Category) float64 {
	if cat == CategoryFood {
		return s.DeliveryChargeFood
	}
	return s.DeliveryChargeGrocery
}

// FindCoupon looks a coupon up by code, case-insensitively.
func (s PlatformSettings) FindCoupon(code string) (Coupon, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, c := range s.Coupons {
		if strings.ToUpper(strings.TrimSpace(c.Code)) == code {
			return c, true
		}
	}
	return Coupon{}, false
}

// DefaultPlatformSettings mirrors the admin defaults and backs the
// settings-lookup-failure fallback path.
func DefaultPlatformSettings() PlatformSettings {
	return PlatformSettings{
		CurrencySymbol:            "₹",
		DeliveryChargeGrocery:     30,
		DeliveryChargeFood:        40,
		MinTotalForDeliveryCharge: 100,
		PlatformCommissionRate:    0.10,
		DeliveryAgentShareRate:    0.80,
	}
}

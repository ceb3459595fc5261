// Package pricing computes sub-order grouping, coupon discounts, and
// category-based delivery fees as pure functions of the cart and a
// platform-settings snapshot.
package pricing

import (
	"fmt"
	"math"
	"time"

	"github.com/jaidev-km/kiranakart-backend/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// GroupedOrder is one category bucket of a cart: the sub-order that will be
// persisted as its own Order document.
type GroupedOrder struct {
	Category models.Category
	Items    []models.OrderItem
	Subtotal float64
}

type Engine struct{}

func NewEngine() Engine {
	return Engine{}
}

// Round2 rounds to two decimals, the monetary precision used everywhere.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// BuildGroupedOrders snapshots cart lines and buckets them into at most one
// grocery and one food sub-order, in that stable order. Lines whose product is
// missing from the catalog map fall back to the client-provided price/name
// snapshot; a missing or negative fallback price is an error.
func (e Engine) BuildGroupedOrders(items []models.OrderItemInput, products map[string]models.Product) ([]GroupedOrder, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("no items provided")
	}

	groups := map[models.Category]*GroupedOrder{
		models.CategoryGrocery: {Category: models.CategoryGrocery},
		models.CategoryFood:    {Category: models.CategoryFood},
	}

	for _, in := range items {
		qty := in.EffectiveQty()

		if prod, ok := products[in.ProductID]; ok {
			g := groups[prod.CategoryGroup()]
			g.Items = append(g.Items, models.OrderItem{
				ProductID:     prod.ID,
				Qty:           qty,
				PriceSnapshot: prod.Price,
				NameSnapshot:  prod.Name,
			})
			g.Subtotal += prod.Price * float64(qty)
			continue
		}

		if in.Price == nil || *in.Price < 0 || math.IsNaN(*in.Price) || math.IsInf(*in.Price, 0) {
			return nil, fmt.Errorf("invalid product or price for: %s", in.ProductID)
		}
		item := models.OrderItem{
			Qty:           qty,
			PriceSnapshot: *in.Price,
			NameSnapshot:  in.Name,
		}
		if oid, err := primitive.ObjectIDFromHex(in.ProductID); err == nil {
			item.ProductID = oid
		}
		g := groups[models.ResolveCategory(in.Category)]
		g.Items = append(g.Items, item)
		g.Subtotal += item.PriceSnapshot * float64(qty)
	}

	var out []GroupedOrder
	for _, cat := range []models.Category{models.CategoryGrocery, models.CategoryFood} {
		g := groups[cat]
		if len(g.Items) == 0 {
			continue
		}
		g.Subtotal = Round2(g.Subtotal)
		out = append(out, *g)
	}
	return out, nil
}

// Discount evaluates a coupon against the full-cart subtotal. Any failed
// eligibility check yields a zero discount, never an error: checkout stays
// resilient to unknown, expired, or exhausted codes. The discount is clamped
// to [0, subtotal].
func (e Engine) Discount(settings models.PlatformSettings, code string, subtotal float64, present map[models.Category]bool, now time.Time) float64 {
	if code == "" {
		return 0
	}
	coupon, ok := settings.FindCoupon(code)
	if !ok || !coupon.Active || !coupon.ValidAt(now) || !coupon.UsageRemaining() {
		return 0
	}
	if subtotal < coupon.MinSubtotal || !coupon.AppliesTo(present) {
		return 0
	}

	discount := Round2(subtotal * coupon.Percent / 100)
	if discount < 0 {
		return 0
	}
	if discount > subtotal {
		return subtotal
	}
	return discount
}

// DeliveryCharge returns the fee to stamp at dispatch: the category base fee,
// waived entirely when the sub-order subtotal reaches the free-delivery
// threshold. A non-positive threshold means the fee always applies.
func (e Engine) DeliveryCharge(settings models.PlatformSettings, cat models.Category, subtotal float64) float64 {
	threshold := settings.MinTotalForDeliveryCharge
	if threshold > 0 && subtotal >= threshold {
		return 0
	}
	return settings.BaseDeliveryCharge(cat)
}

// AllocateDiscount splits a cart-wide discount across the grouped sub-orders
// proportionally to their subtotals. The last group absorbs the rounding
// remainder so the allocations always sum to the total.
func (e Engine) AllocateDiscount(groups []GroupedOrder, total float64) []float64 {
	shares := make([]float64, len(groups))
	if total <= 0 || len(groups) == 0 {
		return shares
	}

	var subtotalAll float64
	for _, g := range groups {
		subtotalAll += g.Subtotal
	}
	if subtotalAll <= 0 {
		return shares
	}

	remainder := total
	for i, g := range groups {
		share := Round2(g.Subtotal / subtotalAll * total)
		if i == len(groups)-1 {
			share = Round2(remainder)
		}
		shares[i] = share
		remainder = Round2(remainder - share)
	}
	return shares
}

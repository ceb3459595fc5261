// Package events is a small in-process pub/sub bus used to fan order updates
// out to interested listeners (polling endpoints, notification hooks).
package events

import (
	"sync"
	"time"

	"github.com/jaidev-km/kiranakart-backend/internal/models"
)

// OrderEvent describes one observable change to an order.
type OrderEvent struct {
	OrderID        string                `json:"order_id"`
	ClientID       string                `json:"client_id"`
	SellerID       string                `json:"seller_id,omitempty"`
	Kind           string                `json:"kind"`
	DeliveryStatus models.DeliveryStatus `json:"delivery_status"`
	At             time.Time             `json:"at"`
}

const (
	KindCreated   = "order_created"
	KindPaid      = "order_paid"
	KindAssigned  = "order_assigned"
	KindDelivery  = "delivery_update"
	KindDelivered = "order_delivered"
	KindCancelled = "order_cancelled"
)

// Bus routes events to per-order and per-seller subscriber channels. Sends
// never block; a slow subscriber just misses events.
type Bus struct {
	mu       sync.RWMutex
	byOrder  map[string][]chan OrderEvent
	bySeller map[string][]chan OrderEvent
}

func NewBus() *Bus {
	return &Bus{
		byOrder:  make(map[string][]chan OrderEvent),
		bySeller: make(map[string][]chan OrderEvent),
	}
}

// SubscribeOrder returns a buffered channel of events for one order and an
// unsubscribe func. The caller must call unsubscribe when done.
func (b *Bus) SubscribeOrder(orderID string) (<-chan OrderEvent, func()) {
	ch := make(chan OrderEvent, 16)
	b.mu.Lock()
	b.byOrder[orderID] = append(b.byOrder[orderID], ch)
	b.mu.Unlock()

	return ch, func() { b.unsubscribe(b.byOrder, orderID, ch) }
}

// SubscribeSeller returns a buffered channel of events for one seller's orders.
func (b *Bus) SubscribeSeller(sellerID string) (<-chan OrderEvent, func()) {
	ch := make(chan OrderEvent, 16)
	b.mu.Lock()
	b.bySeller[sellerID] = append(b.bySeller[sellerID], ch)
	b.mu.Unlock()

	return ch, func() { b.unsubscribe(b.bySeller, sellerID, ch) }
}

func (b *Bus) unsubscribe(topic map[string][]chan OrderEvent, key string, ch chan OrderEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := topic[key]
	for i, sub := range subs {
		if sub == ch {
			topic[key] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(topic[key]) == 0 {
		delete(topic, key)
	}
	close(ch)
}

// Publish fans the event out to the order's and seller's subscribers.
func (b *Bus) Publish(kind string, order models.Order) {
	ev := OrderEvent{
		OrderID:        order.ID.Hex(),
		ClientID:       order.ClientID,
		Kind:           kind,
		DeliveryStatus: order.Delivery.DeliveryStatus,
		At:             time.Now(),
	}
	if order.SellerID != nil {
		ev.SellerID = order.SellerID.Hex()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.byOrder[ev.OrderID] {
		select {
		case ch <- ev:
		default:
		}
	}
	if ev.SellerID != "" {
		for _, ch := range b.bySeller[ev.SellerID] {
			select {
			case ch <- ev:
			default:
			}
		}
	}
}

package events

import (
	"testing"
	"time"

	"github.com/jaidev-km/kiranakart-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func sampleOrder() models.Order {
	sellerID := primitive.NewObjectID()
	return models.Order{
		ID:       primitive.NewObjectID(),
		ClientID: "client-1",
		SellerID: &sellerID,
		Delivery: models.DeliveryInfo{DeliveryStatus: models.DeliveryAssigned},
	}
}

func TestBus(t *testing.T) {
	t.Run("delivers to order and seller subscribers", func(t *testing.T) {
		bus := NewBus()
		order := sampleOrder()

		orderCh, cancelOrder := bus.SubscribeOrder(order.ID.Hex())
		defer cancelOrder()
		sellerCh, cancelSeller := bus.SubscribeSeller(order.SellerID.Hex())
		defer cancelSeller()

		bus.Publish(KindAssigned, order)

		select {
		case ev := <-orderCh:
			assert.Equal(t, KindAssigned, ev.Kind)
			assert.Equal(t, order.ID.Hex(), ev.OrderID)
			assert.Equal(t, models.DeliveryAssigned, ev.DeliveryStatus)
		case <-time.After(time.Second):
			t.Fatal("no event on order channel")
		}

		select {
		case ev := <-sellerCh:
			assert.Equal(t, order.SellerID.Hex(), ev.SellerID)
		case <-time.After(time.Second):
			t.Fatal("no event on seller channel")
		}
	})

	t.Run("publish never blocks on a full subscriber", func(t *testing.T) {
		bus := NewBus()
		order := sampleOrder()

		_, cancel := bus.SubscribeOrder(order.ID.Hex())
		defer cancel()

		done := make(chan struct{})
		go func() {
			for i := 0; i < 100; i++ {
				bus.Publish(KindDelivery, order)
			}
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("publish blocked on an unread subscriber")
		}
	})

	t.Run("unsubscribe closes the channel", func(t *testing.T) {
		bus := NewBus()
		order := sampleOrder()

		ch, cancel := bus.SubscribeOrder(order.ID.Hex())
		cancel()

		_, open := <-ch
		require.False(t, open)

		// Publishing after unsubscribe must not panic.
		bus.Publish(KindDelivery, order)
	})

	t.Run("events do not leak across orders", func(t *testing.T) {
		bus := NewBus()
		order := sampleOrder()
		other := sampleOrder()

		ch, cancel := bus.SubscribeOrder(other.ID.Hex())
		defer cancel()

		bus.Publish(KindDelivery, order)

		select {
		case ev := <-ch:
			t.Fatalf("unexpected event %v", ev)
		case <-time.After(50 * time.Millisecond):
		}
	})
}

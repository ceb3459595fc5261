package earnings

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/jaidev-km/kiranakart-backend/internal/adapters/repository/repositorytest"
	"github.com/jaidev-km/kiranakart-backend/internal/models"
	"github.com/jaidev-km/kiranakart-backend/internal/services/pricing"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func deliveredOrder(agentID primitive.ObjectID, sellerID primitive.ObjectID, items []models.OrderItem, charge float64) models.Order {
	return models.Order{
		ID:         primitive.NewObjectID(),
		ClientID:   "client-1",
		SellerID:   &sellerID,
		Category:   models.CategoryGrocery,
		Status:     models.OrderDelivered,
		OrderItems: items,
		Payment:    models.Payment{Amount: 0, Method: models.PaymentMethodCOD, Status: models.PaymentPaid},
		Delivery: models.DeliveryInfo{
			DeliveryStatus:  models.DeliveryDelivered,
			DeliveryAgentID: &agentID,
			DeliveryCharge:  &charge,
		},
	}
}

func TestSettle(t *testing.T) {
	ctx := context.Background()

	t.Run("writes seller and agent records with the accounting identity", func(t *testing.T) {
		store := repositorytest.NewEarningStore()
		settings := repositorytest.NewSettingsStore(models.DefaultPlatformSettings())
		svc := NewService(store, repositorytest.NewProductStore(), settings, quietLogger())

		agentID := primitive.NewObjectID()
		sellerID := primitive.NewObjectID()
		order := deliveredOrder(agentID, sellerID, []models.OrderItem{
			{Qty: 2, PriceSnapshot: 150, NameSnapshot: "Sugar 1kg"},
		}, 30)

		require.NoError(t, svc.Settle(ctx, order))

		logs, err := store.FindByOrder(ctx, order.ID)
		require.NoError(t, err)
		require.Len(t, logs, 2)

		var seller, agent models.EarningLog
		for _, l := range logs {
			switch l.Role {
			case models.EarningRoleSeller:
				seller = l
			case models.EarningRoleDelivery:
				agent = l
			}
		}

		assert.Equal(t, 300.0, seller.ItemTotal)
		assert.Equal(t, 30.0, seller.PlatformCommission)
		assert.Equal(t, 270.0, seller.NetEarning)
		// commission + net always reassembles the item total
		assert.Equal(t, seller.ItemTotal, pricing.Round2(seller.PlatformCommission+seller.NetEarning))

		assert.Equal(t, 30.0, agent.DeliveryCharge)
		assert.Equal(t, 24.0, agent.NetEarning)
		assert.False(t, seller.Paid)
		assert.False(t, agent.Paid)
	})

	t.Run("settling twice changes nothing", func(t *testing.T) {
		store := repositorytest.NewEarningStore()
		settings := repositorytest.NewSettingsStore(models.DefaultPlatformSettings())
		svc := NewService(store, repositorytest.NewProductStore(), settings, quietLogger())

		order := deliveredOrder(primitive.NewObjectID(), primitive.NewObjectID(), []models.OrderItem{
			{Qty: 1, PriceSnapshot: 100},
		}, 40)

		require.NoError(t, svc.Settle(ctx, order))
		first, _ := store.FindByOrder(ctx, order.ID)

		require.NoError(t, svc.Settle(ctx, order))
		second, _ := store.FindByOrder(ctx, order.ID)

		assert.Equal(t, len(first), len(second))
		assert.ElementsMatch(t, first, second)
	})

	t.Run("splits item totals per owning seller", func(t *testing.T) {
		sellerA := primitive.NewObjectID()
		sellerB := primitive.NewObjectID()
		prodA := models.Product{ID: primitive.NewObjectID(), SellerID: sellerA, Name: "Milk", Price: 60}
		prodB := models.Product{ID: primitive.NewObjectID(), SellerID: sellerB, Name: "Bread", Price: 40}

		store := repositorytest.NewEarningStore()
		settings := repositorytest.NewSettingsStore(models.DefaultPlatformSettings())
		svc := NewService(store, repositorytest.NewProductStore(prodA, prodB), settings, quietLogger())

		order := deliveredOrder(primitive.NewObjectID(), sellerA, []models.OrderItem{
			{ProductID: prodA.ID, Qty: 1, PriceSnapshot: 60},
			{ProductID: prodB.ID, Qty: 2, PriceSnapshot: 40},
		}, 30)

		require.NoError(t, svc.Settle(ctx, order))

		logs, _ := store.FindByOrder(ctx, order.ID)
		require.Len(t, logs, 3) // two sellers + one agent

		totals := make(map[primitive.ObjectID]float64)
		for _, l := range logs {
			if l.Role == models.EarningRoleSeller {
				totals[*l.SellerID] = l.ItemTotal
			}
		}
		assert.Equal(t, 60.0, totals[sellerA])
		assert.Equal(t, 80.0, totals[sellerB])
	})

	t.Run("zero delivery charge settles a zero agent net", func(t *testing.T) {
		store := repositorytest.NewEarningStore()
		settings := repositorytest.NewSettingsStore(models.DefaultPlatformSettings())
		svc := NewService(store, repositorytest.NewProductStore(), settings, quietLogger())

		agentID := primitive.NewObjectID()
		order := deliveredOrder(agentID, primitive.NewObjectID(), []models.OrderItem{
			{Qty: 1, PriceSnapshot: 500},
		}, 0)

		require.NoError(t, svc.Settle(ctx, order))

		logs, _ := store.FindByAgent(ctx, agentID)
		require.Len(t, logs, 1)
		assert.Equal(t, 0.0, logs[0].NetEarning)
	})

	t.Run("falls back to default rates when settings fail", func(t *testing.T) {
		store := repositorytest.NewEarningStore()
		settings := repositorytest.NewSettingsStore(models.DefaultPlatformSettings())
		settings.GetErr = errors.New("primary stepped down")
		svc := NewService(store, repositorytest.NewProductStore(), settings, quietLogger())

		order := deliveredOrder(primitive.NewObjectID(), primitive.NewObjectID(), []models.OrderItem{
			{Qty: 1, PriceSnapshot: 100},
		}, 40)

		require.NoError(t, svc.Settle(ctx, order))

		logs, _ := store.FindByOrder(ctx, order.ID)
		require.Len(t, logs, 2)
		for _, l := range logs {
			switch l.Role {
			case models.EarningRoleSeller:
				assert.Equal(t, 10.0, l.PlatformCommission)
			case models.EarningRoleDelivery:
				assert.Equal(t, 32.0, l.NetEarning)
			}
		}
	})

	t.Run("no agent on the order settles sellers only", func(t *testing.T) {
		store := repositorytest.NewEarningStore()
		settings := repositorytest.NewSettingsStore(models.DefaultPlatformSettings())
		svc := NewService(store, repositorytest.NewProductStore(), settings, quietLogger())

		sellerID := primitive.NewObjectID()
		order := deliveredOrder(primitive.NewObjectID(), sellerID, []models.OrderItem{
			{Qty: 1, PriceSnapshot: 100},
		}, 30)
		order.Delivery.DeliveryAgentID = nil

		require.NoError(t, svc.Settle(ctx, order))

		logs, _ := store.FindByOrder(ctx, order.ID)
		require.Len(t, logs, 1)
		assert.Equal(t, models.EarningRoleSeller, logs[0].Role)
	})
}

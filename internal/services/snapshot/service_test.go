package snapshot

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/jaidev-km/kiranakart-backend/internal/adapters/repository/repositorytest"
	"github.com/jaidev-km/kiranakart-backend/internal/models"
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

func newService(clients *repositorytest.ClientStore, sellers *repositorytest.SellerStore, agents *repositorytest.AgentStore, earnings *repositorytest.EarningStore) *Service {
	return NewService(clients, sellers, agents, earnings, quietLogger())
}

func emptyService() *Service {
	return newService(repositorytest.NewClientStore(), repositorytest.NewSellerStore(), repositorytest.NewAgentStore(), repositorytest.NewEarningStore())
}

func TestEtaMinutes(t *testing.T) {
	now := time.Now()

	t.Run("nil without a stamped eta", func(t *testing.T) {
		assert.Nil(t, EtaMinutes(models.DeliveryInfo{}, now))
	})

	t.Run("rounds the remaining window up", func(t *testing.T) {
		eta := now.Add(12*time.Minute + 30*time.Second)
		got := EtaMinutes(models.DeliveryInfo{EtaAt: &eta}, now)
		require.NotNil(t, got)
		assert.Equal(t, 13, *got)
	})

	t.Run("floors at zero once the eta has passed", func(t *testing.T) {
		eta := now.Add(-10 * time.Minute)
		got := EtaMinutes(models.DeliveryInfo{EtaAt: &eta}, now)
		require.NotNil(t, got)
		assert.Equal(t, 0, *got)
	})
}

func clientOrder(status models.DeliveryStatus) models.Order {
	charge := 30.0
	return models.Order{
		ID:       primitive.NewObjectID(),
		ClientID: "client-1",
		Category: models.CategoryGrocery,
		Status:   models.OrderConfirmed,
		OrderItems: []models.OrderItem{
			{Qty: 2, PriceSnapshot: 100, NameSnapshot: "Ghee 500g"},
		},
		Payment: models.Payment{Amount: 200, Method: models.PaymentMethodCOD, Status: models.PaymentPending},
		Delivery: models.DeliveryInfo{
			DeliveryStatus: status,
			DeliveryCharge: &charge,
			OTPCode:        "7777",
		},
	}
}

func TestClientView(t *testing.T) {
	ctx := context.Background()

	t.Run("exposes the code only while the delivery is active and unverified", func(t *testing.T) {
		svc := emptyService()

		active := svc.Client(ctx, clientOrder(models.DeliveryPickedUp))
		assert.Equal(t, "7777", active.OTP)

		verified := clientOrder(models.DeliveryPickedUp)
		verified.Delivery.OTPVerified = true
		assert.Empty(t, svc.Client(ctx, verified).OTP)

		done := clientOrder(models.DeliveryDelivered)
		assert.Empty(t, svc.Client(ctx, done).OTP)
	})

	t.Run("totals combine the frozen amount and charge", func(t *testing.T) {
		svc := emptyService()
		view := svc.Client(ctx, clientOrder(models.DeliveryAccepted))
		assert.Equal(t, 200.0, view.Subtotal)
		assert.Equal(t, 230.0, view.Total)
	})

	t.Run("attaches agent contact details when resolvable", func(t *testing.T) {
		agents := repositorytest.NewAgentStore()
		agent, err := agents.Create(ctx, models.DeliveryAgent{Name: "Suresh", Phone: "8888888888"})
		require.NoError(t, err)

		svc := newService(repositorytest.NewClientStore(), repositorytest.NewSellerStore(), agents, repositorytest.NewEarningStore())

		order := clientOrder(models.DeliveryInTransit)
		order.Delivery.DeliveryAgentID = &agent.ID

		view := svc.Client(ctx, order)
		assert.Equal(t, "Suresh", view.AgentName)
		assert.Equal(t, "8888888888", view.AgentPhone)
	})

	t.Run("an unresolvable agent degrades to the bare order", func(t *testing.T) {
		svc := emptyService()
		order := clientOrder(models.DeliveryInTransit)
		missing := primitive.NewObjectID()
		order.Delivery.DeliveryAgentID = &missing

		view := svc.Client(ctx, order)
		assert.Empty(t, view.AgentName)
		assert.Equal(t, models.DeliveryInTransit, view.DeliveryStatus)
	})
}

func TestAdminView(t *testing.T) {
	ctx := context.Background()

	t.Run("prefers the settled ledger over recomputation", func(t *testing.T) {
		earnings := repositorytest.NewEarningStore()
		svc := newService(repositorytest.NewClientStore(), repositorytest.NewSellerStore(), repositorytest.NewAgentStore(), earnings)

		order := clientOrder(models.DeliveryDelivered)
		sellerID := primitive.NewObjectID()
		require.NoError(t, earnings.Upsert(ctx, models.EarningLog{
			Role:               models.EarningRoleSeller,
			OrderID:            order.ID,
			SellerID:           &sellerID,
			ItemTotal:          200,
			PlatformCommission: 20,
			NetEarning:         180,
		}))

		view := svc.Admin(ctx, order)
		assert.True(t, view.EarningsSettled)
		require.Len(t, view.Earnings, 1)
		assert.Equal(t, 20.0, view.ProjectedRevenue)
	})

	t.Run("projects revenue for unsettled orders", func(t *testing.T) {
		svc := emptyService()
		view := svc.Admin(ctx, clientOrder(models.DeliveryAccepted))
		assert.False(t, view.EarningsSettled)
		assert.Equal(t, 20.0, view.ProjectedRevenue) // 200 * default 10%
	})

	t.Run("missing parties degrade to id-only blocks", func(t *testing.T) {
		svc := emptyService()

		order := clientOrder(models.DeliveryAccepted)
		sellerID := primitive.NewObjectID()
		agentID := primitive.NewObjectID()
		order.SellerID = &sellerID
		order.Delivery.DeliveryAgentID = &agentID

		view := svc.Admin(ctx, order)
		require.NotNil(t, view.Client)
		assert.Equal(t, "client-1", view.Client.ID)
		assert.Empty(t, view.Client.Name)
		require.NotNil(t, view.Seller)
		assert.Equal(t, sellerID.Hex(), view.Seller.ID)
		require.NotNil(t, view.Agent)
		assert.Equal(t, agentID.Hex(), view.Agent.ID)
	})

	t.Run("resolves known parties", func(t *testing.T) {
		client := models.Client{ID: primitive.NewObjectID(), Name: "Asha", Phone: "7000000000"}
		clients := repositorytest.NewClientStore(client)
		svc := newService(clients, repositorytest.NewSellerStore(), repositorytest.NewAgentStore(), repositorytest.NewEarningStore())

		order := clientOrder(models.DeliveryAccepted)
		order.ClientID = client.ID.Hex()

		view := svc.Admin(ctx, order)
		require.NotNil(t, view.Client)
		assert.Equal(t, "Asha", view.Client.Name)
	})
}

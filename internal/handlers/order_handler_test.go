package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jaidev-km/kiranakart-backend/internal/adapters/repository/repositorytest"
	"github.com/jaidev-km/kiranakart-backend/internal/models"
	"github.com/jaidev-km/kiranakart-backend/internal/services/assignment"
	"github.com/jaidev-km/kiranakart-backend/internal/services/delivery"
	"github.com/jaidev-km/kiranakart-backend/internal/services/earnings"
	"github.com/jaidev-km/kiranakart-backend/internal/services/events"
	"github.com/jaidev-km/kiranakart-backend/internal/services/pricing"
	"github.com/jaidev-km/kiranakart-backend/internal/services/snapshot"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type handlerFixture struct {
	handler  *OrderHandler
	orders   *repositorytest.OrderStore
	agents   *repositorytest.AgentStore
	products *repositorytest.ProductStore
	settings *repositorytest.SettingsStore
	router   *gin.Engine
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	orders := repositorytest.NewOrderStore()
	agents := repositorytest.NewAgentStore()
	products := repositorytest.NewProductStore()
	earningStore := repositorytest.NewEarningStore()
	settings := repositorytest.NewSettingsStore(models.DefaultPlatformSettings())
	clients := repositorytest.NewClientStore()
	sellers := repositorytest.NewSellerStore()
	addresses := repositorytest.NewAddressStore()

	bus := events.NewBus()
	assigner := assignment.NewService(orders, agents, settings, logger)
	settler := earnings.NewService(earningStore, products, settings, logger)
	deliverySvc := delivery.NewService(orders, agents, settler, bus, logger)
	snapshots := snapshot.NewService(clients, sellers, agents, earningStore, logger)

	h := &OrderHandler{
		Repo:      orders,
		Products:  products,
		Settings:  settings,
		Addresses: addresses,
		Pricing:   pricing.NewEngine(),
		Assigner:  assigner,
		Delivery:  deliverySvc,
		Snapshots: snapshots,
		Events:    bus,
		Logger:    logger,
	}

	router := gin.New()
	router.POST("/orders", h.PlaceOrder)
	router.GET("/orders/:id/status", h.GetStatus)
	router.PATCH("/orders/:id/delivery", h.UpdateDelivery)
	router.POST("/orders/:id/cancel", h.Cancel)
	router.POST("/orders/:id/verify", h.VerifyPayment)

	return &handlerFixture{handler: h, orders: orders, agents: agents, products: products, settings: settings, router: router}
}

func (f *handlerFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *handlerFixture) addProduct(name, category string, price float64, stock int) models.Product {
	p := models.Product{
		ID:       primitive.NewObjectID(),
		Name:     name,
		Category: category,
		Price:    price,
		Status:   models.ProductStatusActive,
	}
	if stock >= 0 {
		p.Stock = &stock
	}
	f.products.Products[p.ID] = p
	return p
}

func TestPlaceOrder(t *testing.T) {
	t.Run("splits a mixed cart into one order per category", func(t *testing.T) {
		f := newHandlerFixture(t)
		rice := f.addProduct("Rice 5kg", "Grocery", 450, 10)
		thali := f.addProduct("Veg Thali", "Restaurant", 120, -1)

		w := f.do(t, http.MethodPost, "/orders", gin.H{
			"client_id": "client-9",
			"items": []gin.H{
				{"product_id": rice.ID.Hex(), "qty": 1},
				{"product_id": thali.ID.Hex(), "qty": 2},
			},
			"delivery_address": gin.H{"full_address": "12 MG Road, Bengaluru"},
		})

		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		var resp struct {
			Orders []struct {
				OrderID  string  `json:"order_id"`
				Category string  `json:"category"`
				Subtotal float64 `json:"subtotal"`
			} `json:"orders"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Orders, 2)
		assert.Equal(t, "grocery", resp.Orders[0].Category)
		assert.Equal(t, 450.0, resp.Orders[0].Subtotal)
		assert.Equal(t, "food", resp.Orders[1].Category)
		assert.Equal(t, 240.0, resp.Orders[1].Subtotal)

		// Each persisted order only holds its own category's items.
		for _, stored := range f.orders.Orders {
			require.Len(t, stored.OrderItems, 1)
			switch stored.Category {
			case models.CategoryGrocery:
				assert.Equal(t, "Rice 5kg", stored.OrderItems[0].NameSnapshot)
			case models.CategoryFood:
				assert.Equal(t, "Veg Thali", stored.OrderItems[0].NameSnapshot)
			}
		}
	})

	t.Run("explicit empty client_id is rejected", func(t *testing.T) {
		f := newHandlerFixture(t)
		rice := f.addProduct("Rice 5kg", "Grocery", 450, 10)

		w := f.do(t, http.MethodPost, "/orders", gin.H{
			"client_id":        "",
			"items":            []gin.H{{"product_id": rice.ID.Hex(), "qty": 1}},
			"delivery_address": gin.H{"full_address": "12 MG Road"},
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "client_id")
	})

	t.Run("absent client_id synthesizes a guest identity", func(t *testing.T) {
		f := newHandlerFixture(t)
		rice := f.addProduct("Rice 5kg", "Grocery", 450, 10)

		w := f.do(t, http.MethodPost, "/orders", gin.H{
			"items":            []gin.H{{"product_id": rice.ID.Hex(), "qty": 1}},
			"delivery_address": gin.H{"full_address": "12 MG Road"},
		})

		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		var resp struct {
			ClientID string `json:"client_id"`
			Guest    bool   `json:"guest"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Guest)
		assert.Contains(t, resp.ClientID, "guest_")
	})

	t.Run("missing address is rejected", func(t *testing.T) {
		f := newHandlerFixture(t)
		rice := f.addProduct("Rice 5kg", "Grocery", 450, 10)

		w := f.do(t, http.MethodPost, "/orders", gin.H{
			"client_id": "client-9",
			"items":     []gin.H{{"product_id": rice.ID.Hex(), "qty": 1}},
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "address")
	})

	t.Run("structured address fields are joined", func(t *testing.T) {
		f := newHandlerFixture(t)
		rice := f.addProduct("Rice 5kg", "Grocery", 450, 10)

		w := f.do(t, http.MethodPost, "/orders", gin.H{
			"client_id": "client-9",
			"items":     []gin.H{{"product_id": rice.ID.Hex(), "qty": 1}},
			"delivery_address": gin.H{
				"address_line": "Flat 4B, Residency Towers",
				"city":         "Bengaluru",
				"pincode":      "560001",
			},
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		for _, stored := range f.orders.Orders {
			assert.Equal(t, "Flat 4B, Residency Towers, Bengaluru, 560001", stored.Delivery.DeliveryAddress.FullAddress)
		}
	})

	t.Run("inactive product is rejected with its name", func(t *testing.T) {
		f := newHandlerFixture(t)
		rice := f.addProduct("Rice 5kg", "Grocery", 450, 10)
		p := f.products.Products[rice.ID]
		p.Status = models.ProductStatusInactive
		f.products.Products[rice.ID] = p

		w := f.do(t, http.MethodPost, "/orders", gin.H{
			"client_id":        "client-9",
			"items":            []gin.H{{"product_id": rice.ID.Hex(), "qty": 1}},
			"delivery_address": gin.H{"full_address": "12 MG Road"},
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "Rice 5kg")
	})

	t.Run("insufficient stock is rejected with the product name", func(t *testing.T) {
		f := newHandlerFixture(t)
		rice := f.addProduct("Rice 5kg", "Grocery", 450, 2)

		w := f.do(t, http.MethodPost, "/orders", gin.H{
			"client_id":        "client-9",
			"items":            []gin.H{{"product_id": rice.ID.Hex(), "qty": 5}},
			"delivery_address": gin.H{"full_address": "12 MG Road"},
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "Insufficient stock for Rice 5kg")
	})

	t.Run("coupon discount is allocated and the counter bumped once", func(t *testing.T) {
		f := newHandlerFixture(t)
		f.settings.Settings.Coupons = []models.Coupon{
			{Code: "SAVE10", Percent: 10, Active: true},
		}
		rice := f.addProduct("Rice 5kg", "Grocery", 800, 10)
		thali := f.addProduct("Veg Thali", "Restaurant", 200, -1)

		w := f.do(t, http.MethodPost, "/orders", gin.H{
			"client_id": "client-9",
			"coupon":    "SAVE10",
			"items": []gin.H{
				{"product_id": rice.ID.Hex(), "qty": 1},
				{"product_id": thali.ID.Hex(), "qty": 1},
			},
			"delivery_address": gin.H{"full_address": "12 MG Road"},
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		var grocery, food models.Order
		for _, stored := range f.orders.Orders {
			if stored.Category == models.CategoryGrocery {
				grocery = stored
			} else {
				food = stored
			}
		}
		// 10% of 1000 split 800:200
		assert.Equal(t, 80.0, grocery.AppliedDiscountAmount)
		assert.Equal(t, 20.0, food.AppliedDiscountAmount)
		assert.Equal(t, 720.0, grocery.Payment.Amount)
		assert.Equal(t, 180.0, food.Payment.Amount)

		assert.Equal(t, 1, f.settings.Settings.Coupons[0].UsageCount)
	})

	t.Run("an exhausted coupon soft-fails to zero discount", func(t *testing.T) {
		f := newHandlerFixture(t)
		limit := 0
		f.settings.Settings.Coupons = []models.Coupon{
			{Code: "GONE", Percent: 10, Active: true, UsageLimit: &limit},
		}
		rice := f.addProduct("Rice 5kg", "Grocery", 800, 10)

		w := f.do(t, http.MethodPost, "/orders", gin.H{
			"client_id":        "client-9",
			"coupon":           "GONE",
			"items":            []gin.H{{"product_id": rice.ID.Hex(), "qty": 1}},
			"delivery_address": gin.H{"full_address": "12 MG Road"},
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		for _, stored := range f.orders.Orders {
			assert.Equal(t, 0.0, stored.AppliedDiscountAmount)
			assert.Equal(t, 800.0, stored.Payment.Amount)
		}
	})

	t.Run("empty cart is rejected", func(t *testing.T) {
		f := newHandlerFixture(t)
		w := f.do(t, http.MethodPost, "/orders", gin.H{
			"client_id":        "client-9",
			"items":            []gin.H{},
			"delivery_address": gin.H{"full_address": "12 MG Road"},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestUpdateDelivery(t *testing.T) {
	t.Run("unknown status string returns the invalid status message", func(t *testing.T) {
		f := newHandlerFixture(t)
		order, err := f.orders.Create(context.Background(), models.Order{
			ClientID: "client-9",
			Delivery: models.DeliveryInfo{DeliveryStatus: models.DeliveryPending},
		})
		require.NoError(t, err)

		w := f.do(t, http.MethodPatch, fmt.Sprintf("/orders/%s/delivery", order.ID.Hex()), gin.H{
			"status": "teleported",
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "Invalid delivery status")
	})

	t.Run("assigning an undispatched order runs the dispatch path", func(t *testing.T) {
		f := newHandlerFixture(t)
		agent := models.DeliveryAgent{
			ID:              primitive.NewObjectID(),
			Approved:        true,
			Online:          true,
			Available:       true,
			CurrentLocation: &models.AgentLocation{Lat: 12.97, Lng: 77.59},
		}
		f.agents.Agents[agent.ID] = agent

		order, err := f.orders.Create(context.Background(), models.Order{
			ClientID:   "client-9",
			Category:   models.CategoryGrocery,
			OrderItems: []models.OrderItem{{Qty: 1, PriceSnapshot: 50}},
			Delivery:   models.DeliveryInfo{DeliveryStatus: models.DeliveryPending},
		})
		require.NoError(t, err)

		w := f.do(t, http.MethodPatch, fmt.Sprintf("/orders/%s/delivery", order.ID.Hex()), gin.H{
			"status": "assigned",
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		stored, err := f.orders.GetByID(context.Background(), order.ID)
		require.NoError(t, err)
		require.NotNil(t, stored.Delivery.DeliveryAgentID)
		assert.Equal(t, agent.ID, *stored.Delivery.DeliveryAgentID)
		require.NotNil(t, stored.Delivery.DeliveryCharge)
		assert.Equal(t, 30.0, *stored.Delivery.DeliveryCharge) // subtotal 50 < free threshold
	})

	t.Run("assigning with an empty agent pool is a 400", func(t *testing.T) {
		f := newHandlerFixture(t)
		order, err := f.orders.Create(context.Background(), models.Order{
			ClientID: "client-9",
			Delivery: models.DeliveryInfo{DeliveryStatus: models.DeliveryPending},
		})
		require.NoError(t, err)

		w := f.do(t, http.MethodPatch, fmt.Sprintf("/orders/%s/delivery", order.ID.Hex()), gin.H{
			"status": "assigned",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "No delivery agent available")
	})

	t.Run("unknown order returns 404", func(t *testing.T) {
		f := newHandlerFixture(t)
		w := f.do(t, http.MethodPatch, fmt.Sprintf("/orders/%s/delivery", primitive.NewObjectID().Hex()), gin.H{
			"status": "assigned",
		})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestVerifyPayment(t *testing.T) {
	t.Run("stores the verifier and note on the payment", func(t *testing.T) {
		f := newHandlerFixture(t)
		order, err := f.orders.Create(context.Background(), models.Order{
			ClientID: "client-9",
			Payment:  models.Payment{Amount: 450, Method: models.PaymentMethodCOD, Status: models.PaymentPending},
			Delivery: models.DeliveryInfo{DeliveryStatus: models.DeliveryPending},
		})
		require.NoError(t, err)

		w := f.do(t, http.MethodPost, fmt.Sprintf("/orders/%s/verify", order.ID.Hex()), gin.H{
			"status":      "paid",
			"verified_by": "ops-admin",
			"note":        "UPI ref 8812",
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		stored, err := f.orders.GetByID(context.Background(), order.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentPaid, stored.Payment.Status)
		require.NotNil(t, stored.Payment.Verified)
		assert.Equal(t, "ops-admin", stored.Payment.Verified.By)
		assert.Equal(t, "UPI ref 8812", stored.Payment.Verified.Note)
		assert.False(t, stored.Payment.Verified.At.IsZero())
	})

	t.Run("a missing verifier defaults to admin", func(t *testing.T) {
		f := newHandlerFixture(t)
		order, err := f.orders.Create(context.Background(), models.Order{
			ClientID: "client-9",
			Payment:  models.Payment{Amount: 450, Method: models.PaymentMethodCOD, Status: models.PaymentPending},
			Delivery: models.DeliveryInfo{DeliveryStatus: models.DeliveryPending},
		})
		require.NoError(t, err)

		w := f.do(t, http.MethodPost, fmt.Sprintf("/orders/%s/verify", order.ID.Hex()), gin.H{
			"status": "failed",
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		stored, err := f.orders.GetByID(context.Background(), order.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentFailed, stored.Payment.Status)
		require.NotNil(t, stored.Payment.Verified)
		assert.Equal(t, "admin", stored.Payment.Verified.By)
	})
}

func TestCancelEndpoint(t *testing.T) {
	t.Run("delivered orders cannot be cancelled", func(t *testing.T) {
		f := newHandlerFixture(t)
		order, err := f.orders.Create(context.Background(), models.Order{
			ClientID: "client-9",
			Status:   models.OrderDelivered,
			Delivery: models.DeliveryInfo{DeliveryStatus: models.DeliveryDelivered},
		})
		require.NoError(t, err)

		w := f.do(t, http.MethodPost, fmt.Sprintf("/orders/%s/cancel", order.ID.Hex()), gin.H{
			"cancelled_by": "client",
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "Cannot cancel delivered orders")
	})

	t.Run("cancelling twice reports already cancelled", func(t *testing.T) {
		f := newHandlerFixture(t)
		order, err := f.orders.Create(context.Background(), models.Order{
			ClientID: "client-9",
			Status:   models.OrderCancelled,
			Delivery: models.DeliveryInfo{DeliveryStatus: models.DeliveryCancelled},
		})
		require.NoError(t, err)

		w := f.do(t, http.MethodPost, fmt.Sprintf("/orders/%s/cancel", order.ID.Hex()), gin.H{
			"cancelled_by": "client",
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "already cancelled")
	})
}

func TestGetStatus(t *testing.T) {
	t.Run("returns the client view", func(t *testing.T) {
		f := newHandlerFixture(t)
		charge := 30.0
		order, err := f.orders.Create(context.Background(), models.Order{
			ClientID:   "client-9",
			Status:     models.OrderConfirmed,
			OrderItems: []models.OrderItem{{Qty: 1, PriceSnapshot: 450, NameSnapshot: "Rice 5kg"}},
			Payment:    models.Payment{Amount: 450, Method: models.PaymentMethodCOD, Status: models.PaymentPending},
			Delivery: models.DeliveryInfo{
				DeliveryStatus: models.DeliveryAccepted,
				DeliveryCharge: &charge,
			},
		})
		require.NoError(t, err)

		w := f.do(t, http.MethodGet, fmt.Sprintf("/orders/%s/status", order.ID.Hex()), nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"delivery_status":"accepted"`)
		assert.Contains(t, w.Body.String(), `"subtotal":450`)
	})
}

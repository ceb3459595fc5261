package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jaidev-km/kiranakart-backend/internal/adapters/repository"
	"github.com/jaidev-km/kiranakart-backend/internal/models"
	"github.com/jaidev-km/kiranakart-backend/internal/services/assignment"
	"github.com/jaidev-km/kiranakart-backend/internal/services/events"
	"github.com/jaidev-km/kiranakart-backend/utils"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/paymentintent"
	"github.com/stripe/stripe-go/v81/webhook"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type PaymentHandler struct {
	Orders   repository.OrderRepository
	Assigner *assignment.Service
	Events   *events.Bus
	Logger   *logrus.Logger
}

func NewPaymentHandler(db *mongo.Database, assigner *assignment.Service, bus *events.Bus, logger *logrus.Logger) *PaymentHandler {
	stripe.Key = os.Getenv("STRIPE_SECRET_KEY")
	return &PaymentHandler{
		Orders:   repository.NewOrderRepository(db),
		Assigner: assigner,
		Events:   bus,
		Logger:   logger,
	}
}

// CreatePaymentIntent opens a card payment for a pending order. The charged
// amount is the frozen order amount; delivery fees are settled in-app.
func (h *PaymentHandler) CreatePaymentIntent(c *gin.Context) {
	var req struct {
		OrderID string `json:"orderId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request"))
		return
	}

	orderID, err := primitive.ObjectIDFromHex(req.OrderID)
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid order ID"))
		return
	}

	order, err := h.Orders.GetByID(c.Request.Context(), orderID)
	if err != nil {
		c.JSON(http.StatusNotFound, utils.ErrorResponse("Order not found"))
		return
	}
	if order.Payment.Status == models.PaymentPaid {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Order is already paid"))
		return
	}

	amount := int64(order.Payment.Amount * 100)

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(string(stripe.CurrencyINR)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Metadata: map[string]string{
			"orderId": req.OrderID,
		},
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse(fmt.Sprintf("Stripe error: %v", err)))
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Payment intent created", gin.H{
		"clientSecret": pi.ClientSecret,
	}))
}

// HandleWebhook processes asynchronous events from Stripe. A succeeded
// payment marks the order paid and triggers agent assignment.
func (h *PaymentHandler) HandleWebhook(c *gin.Context) {
	const MaxBodyBytes = int64(65536)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes)
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, utils.ErrorResponse("Error reading request body"))
		return
	}

	endpointSecret := strings.TrimSpace(os.Getenv("STRIPE_WEBHOOK_SECRET"))

	// Fallback check: if somehow secret is missing, try loading env again
	if endpointSecret == "" {
		_ = godotenv.Load()
		endpointSecret = strings.TrimSpace(os.Getenv("STRIPE_WEBHOOK_SECRET"))
	}

	signature := c.GetHeader("Stripe-Signature")

	event, err := webhook.ConstructEventWithOptions(payload, signature, endpointSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid signature"))
		return
	}

	switch event.Type {
	case "payment_intent.succeeded":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			c.JSON(http.StatusBadRequest, utils.ErrorResponse("Error parsing webhook JSON"))
			return
		}

		orderID, err := primitive.ObjectIDFromHex(pi.Metadata["orderId"])
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"success": true}) // Return 200 so Stripe doesn't retry invalid data
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 20*time.Second)
		defer cancel()

		if err := h.markPaidAndDispatch(ctx, orderID, pi.ID); err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				c.JSON(http.StatusOK, gin.H{"success": true}) // Return 200 so Stripe doesn't retry invalid data
				return
			}
			c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Failed to update order in DB"))
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *PaymentHandler) markPaidAndDispatch(ctx context.Context, orderID primitive.ObjectID, paymentID string) error {
	order, err := h.Orders.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Payment.Status == models.PaymentPaid {
		return nil
	}

	now := time.Now()
	order.Payment.Status = models.PaymentPaid
	order.Payment.PaymentID = paymentID
	order.Payment.PaymentDate = &now

	updated, err := h.Orders.Update(ctx, order)
	if err != nil {
		return err
	}
	h.Events.Publish(events.KindPaid, updated)

	if _, err := h.Assigner.AssignNearest(ctx, updated); err != nil {
		if !errors.Is(err, assignment.ErrNoAgentAvailable) {
			h.Logger.WithField("order_id", updated.ID.Hex()).WithError(err).Error("assignment after card payment")
		}
	}
	return nil
}

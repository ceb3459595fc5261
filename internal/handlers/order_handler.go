package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jaidev-km/kiranakart-backend/internal/adapters/repository"
	"github.com/jaidev-km/kiranakart-backend/internal/middleware"
	"github.com/jaidev-km/kiranakart-backend/internal/models"
	"github.com/jaidev-km/kiranakart-backend/internal/services/assignment"
	"github.com/jaidev-km/kiranakart-backend/internal/services/delivery"
	"github.com/jaidev-km/kiranakart-backend/internal/services/events"
	"github.com/jaidev-km/kiranakart-backend/internal/services/pricing"
	"github.com/jaidev-km/kiranakart-backend/internal/services/snapshot"
	"github.com/jaidev-km/kiranakart-backend/utils"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type OrderHandler struct {
	Repo      repository.OrderRepository
	Products  repository.ProductRepository
	Settings  repository.SettingsRepository
	Addresses repository.AddressRepository

	Pricing   pricing.Engine
	Assigner  *assignment.Service
	Delivery  *delivery.Service
	Snapshots *snapshot.Service
	Events    *events.Bus
	Logger    *logrus.Logger
}

func NewOrderHandler(db *mongo.Database, assigner *assignment.Service, deliverySvc *delivery.Service, snapshots *snapshot.Service, bus *events.Bus, logger *logrus.Logger) *OrderHandler {
	return &OrderHandler{
		Repo:      repository.NewOrderRepository(db),
		Products:  repository.NewProductRepository(db),
		Settings:  repository.NewSettingsRepository(db),
		Addresses: repository.NewAddressRepository(db),
		Pricing:   pricing.NewEngine(),
		Assigner:  assigner,
		Delivery:  deliverySvc,
		Snapshots: snapshots,
		Events:    bus,
		Logger:    logger,
	}
}

// PlaceOrder handles checkout: validates items, resolves the delivery address
// and the ordering identity, groups the cart per category and persists one
// order per group with the coupon discount allocated across them.
func (h *OrderHandler) PlaceOrder(c *gin.Context) {
	var input models.PlaceOrderInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request body"))
		return
	}
	if len(input.Items) == 0 {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Order must contain at least one item"))
		return
	}

	clientID, isGuest, err := middleware.ResolveIdentity(c, input.ClientID)
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("client_id must not be empty"))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	address, ok := h.resolveAddress(ctx, c, input, clientID)
	if !ok {
		return
	}

	// Catalog lookup for every line that carries a real product id.
	var ids []primitive.ObjectID
	for _, item := range input.Items {
		if oid, err := primitive.ObjectIDFromHex(item.ProductID); err == nil {
			ids = append(ids, oid)
		}
	}
	products, err := h.Products.FindByIDs(ctx, ids)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Failed to fetch products"))
		return
	}
	byID := repository.ProductMap(products)

	if msg, ok := validateAvailability(input.Items, byID); !ok {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse(msg))
		return
	}

	groups, err := h.Pricing.BuildGroupedOrders(input.Items, byID)
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse(err.Error()))
		return
	}

	settings, err := h.Settings.Get(ctx)
	if err != nil {
		h.Logger.WithError(err).Warn("settings lookup failed at checkout, using defaults")
		settings = models.DefaultPlatformSettings()
	}

	var cartSubtotal float64
	present := make(map[models.Category]bool, len(groups))
	for _, g := range groups {
		cartSubtotal += g.Subtotal
		present[g.Category] = true
	}
	cartSubtotal = pricing.Round2(cartSubtotal)

	couponCode := input.EffectiveCoupon()
	discount := h.Pricing.Discount(settings, couponCode, cartSubtotal, present, time.Now())
	if discount > 0 {
		redeemed, err := h.Settings.RedeemCoupon(ctx, couponCode)
		if err != nil {
			c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Failed to apply coupon"))
			return
		}
		if !redeemed {
			discount = 0
		}
	}
	shares := h.Pricing.AllocateDiscount(groups, discount)

	method := input.Method
	if method == "" {
		method = models.PaymentMethodCOD
	}
	var sellerID *primitive.ObjectID
	if oid, err := primitive.ObjectIDFromHex(input.SellerID); err == nil {
		sellerID = &oid
	}

	created := make([]models.Order, 0, len(groups))
	for i, g := range groups {
		order := models.Order{
			ClientID: clientID,
			SellerID: sellerID,
			Category: g.Category,
			Status:   models.OrderPending,

			OrderItems: g.Items,
			Payment: models.Payment{
				Amount: pricing.Round2(g.Subtotal - shares[i]),
				Method: method,
				Status: models.PaymentPending,
			},

			CouponCode:            couponCode,
			AppliedDiscountAmount: shares[i],

			Delivery: models.DeliveryInfo{
				DeliveryStatus:  models.DeliveryPending,
				DeliveryAddress: address,
			},
		}
		if discount == 0 {
			order.CouponCode = ""
		}

		saved, err := h.Repo.Create(ctx, order)
		if err != nil {
			c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Failed to place order"))
			return
		}
		created = append(created, saved)
		h.Events.Publish(events.KindCreated, saved)
	}

	// COD orders have no payment step to wait for; dispatch right away. A full
	// agent pool leaves them pending for the next trigger.
	if method == models.PaymentMethodCOD {
		created = h.Assigner.DispatchPaid(ctx, created)
	}

	summaries := make([]gin.H, 0, len(created))
	for _, order := range created {
		summaries = append(summaries, gin.H{
			"order_id":        order.ID.Hex(),
			"category":        order.Category,
			"subtotal":        pricing.Round2(order.Subtotal()),
			"discount":        order.AppliedDiscountAmount,
			"total":           order.Payment.Amount,
			"delivery_charge": h.Pricing.DeliveryCharge(settings, order.Category, pricing.Round2(order.Subtotal())),
			"delivery_status": order.Delivery.DeliveryStatus,
		})
	}

	c.JSON(http.StatusCreated, utils.SuccessResponse("Order placed successfully", gin.H{
		"client_id": clientID,
		"guest":     isGuest,
		"orders":    summaries,
	}))
}

// resolveAddress applies the precedence saved-address id, structured fields,
// raw string. Writes the 400 itself and returns ok=false when nothing usable
// was provided.
func (h *OrderHandler) resolveAddress(ctx context.Context, c *gin.Context, input models.PlaceOrderInput, clientID string) (models.DeliveryAddress, bool) {
	if input.DeliveryAddressID != "" {
		addressID, err := primitive.ObjectIDFromHex(input.DeliveryAddressID)
		if err != nil {
			c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid delivery address ID"))
			return models.DeliveryAddress{}, false
		}
		saved, err := h.Addresses.GetForUser(ctx, addressID, clientID)
		if err != nil {
			c.JSON(http.StatusBadRequest, utils.ErrorResponse("Delivery address not found"))
			return models.DeliveryAddress{}, false
		}
		return models.DeliveryAddress{
			AddressID:      &saved.ID,
			FullAddress:    saved.FullAddress,
			RecipientName:  saved.RecipientName,
			RecipientPhone: saved.RecipientPhone,
			Landmark:       saved.Landmark,
			Location:       saved.Location,
		}, true
	}

	if input.DeliveryAddress != nil {
		if full := input.DeliveryAddress.Resolved(); full != "" {
			return models.DeliveryAddress{
				FullAddress:    full,
				RecipientName:  input.DeliveryAddress.RecipientName,
				RecipientPhone: input.DeliveryAddress.RecipientPhone,
				Landmark:       input.DeliveryAddress.Landmark,
				Location:       input.DeliveryAddress.Location,
			}, true
		}
	}

	if input.DeliveryAddressRaw != "" {
		return models.DeliveryAddress{FullAddress: input.DeliveryAddressRaw}, true
	}

	c.JSON(http.StatusBadRequest, utils.ErrorResponse("Delivery address is required"))
	return models.DeliveryAddress{}, false
}

// validateAvailability checks every catalog-backed line against the
// normalized availability shape. It never reserves stock.
func validateAvailability(items []models.OrderItemInput, byID map[string]models.Product) (string, bool) {
	for _, item := range items {
		product, ok := byID[item.ProductID]
		if !ok {
			continue
		}
		avail := product.Availability()
		if !avail.Active {
			return fmt.Sprintf("%s is currently unavailable", product.Name), false
		}
		if avail.Stock >= 0 && item.EffectiveQty() > avail.Stock {
			return fmt.Sprintf("Insufficient stock for %s", product.Name), false
		}
	}
	return "", true
}

// GetStatus returns the client-facing order status view.
func (h *OrderHandler) GetStatus(c *gin.Context) {
	order, ok := h.loadOrder(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	view := h.Snapshots.Client(ctx, order)
	c.JSON(http.StatusOK, utils.SuccessResponse("Order status fetched", gin.H{"order": view}))
}

// GetAdminDetail returns the enriched operational view of one order.
func (h *OrderHandler) GetAdminDetail(c *gin.Context) {
	order, ok := h.loadOrder(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	view := h.Snapshots.Admin(ctx, order)
	c.JSON(http.StatusOK, utils.SuccessResponse("Order detail fetched", gin.H{"order": view}))
}

// GetHistory lists a client's orders, newest first.
func (h *OrderHandler) GetHistory(c *gin.Context) {
	clientID := c.Param("clientId")
	if clientID == "" {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Client ID is required"))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	orders, err := h.Repo.GetByClientID(ctx, clientID, 50)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Failed to fetch orders"))
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Orders fetched successfully", gin.H{"orders": orders}))
}

// VerifyPayment records the outcome of an out-of-band payment check. A paid
// outcome triggers agent assignment.
func (h *OrderHandler) VerifyPayment(c *gin.Context) {
	order, ok := h.loadOrder(c)
	if !ok {
		return
	}

	var input struct {
		Status     string `json:"status" binding:"required"`
		PaymentID  string `json:"payment_id"`
		VerifiedBy string `json:"verified_by"`
		Note       string `json:"note"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request body"))
		return
	}
	if input.Status != string(models.PaymentPaid) && input.Status != string(models.PaymentFailed) {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Payment status must be paid or failed"))
		return
	}
	if order.Delivery.DeliveryStatus.Terminal() {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Order is no longer active"))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	now := time.Now()
	order.Payment.Status = models.PaymentStatus(input.Status)
	order.Payment.PaymentID = input.PaymentID
	verifiedBy := input.VerifiedBy
	if verifiedBy == "" {
		verifiedBy = "admin"
	}
	order.Payment.Verified = &models.PaymentVerification{By: verifiedBy, Note: input.Note, At: now}
	if order.Payment.Status == models.PaymentPaid {
		order.Payment.PaymentDate = &now
	}

	updated, err := h.Repo.Update(ctx, order)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Failed to update payment"))
		return
	}

	if updated.Payment.Status == models.PaymentPaid {
		h.Events.Publish(events.KindPaid, updated)
		assigned, err := h.Assigner.AssignNearest(ctx, updated)
		if err != nil && !errors.Is(err, assignment.ErrNoAgentAvailable) {
			h.Logger.WithField("order_id", updated.ID.Hex()).WithError(err).Error("assignment after payment verification")
		} else if err == nil {
			updated = assigned
			h.Events.Publish(events.KindAssigned, updated)
		}
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Payment updated", gin.H{
		"order_id":        updated.ID.Hex(),
		"payment_status":  updated.Payment.Status,
		"delivery_status": updated.Delivery.DeliveryStatus,
	}))
}

// UpdateDelivery moves the order's delivery status one step. Cancellation
// through this endpoint routes to the same path as the cancel endpoint.
func (h *OrderHandler) UpdateDelivery(c *gin.Context) {
	order, ok := h.loadOrder(c)
	if !ok {
		return
	}

	var input struct {
		Status      string `json:"status" binding:"required"`
		CancelledBy string `json:"cancelled_by"`
		Reason      string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request body"))
		return
	}

	to, err := delivery.ParseStatus(input.Status)
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid delivery status"))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	var updated models.Order
	switch {
	case to == models.DeliveryCancelled:
		actor := input.CancelledBy
		if actor == "" {
			actor = "admin"
		}
		updated, err = h.Delivery.Cancel(ctx, order, actor, input.Reason)
	case to == models.DeliveryAssigned && order.Delivery.DeliveryAgentID == nil:
		// Assigning an undispatched order runs the full dispatch path so the
		// offer is recorded and the delivery charge frozen.
		updated, err = h.Assigner.AssignNearest(ctx, order)
		if errors.Is(err, assignment.ErrNoAgentAvailable) {
			c.JSON(http.StatusBadRequest, utils.ErrorResponse("No delivery agent available"))
			return
		}
	default:
		updated, err = h.Delivery.Transition(ctx, order, to)
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Delivery status updated", gin.H{
		"order_id":        updated.ID.Hex(),
		"delivery_status": updated.Delivery.DeliveryStatus,
	}))
}

// Cancel terminates the order, recording who did it and why.
func (h *OrderHandler) Cancel(c *gin.Context) {
	order, ok := h.loadOrder(c)
	if !ok {
		return
	}

	var input struct {
		CancelledBy string `json:"cancelled_by"`
		Reason      string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request body"))
		return
	}

	actor := input.CancelledBy
	if actor == "" {
		if userID, exists := c.Get("userId"); exists {
			actor, _ = userID.(string)
		}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	updated, err := h.Delivery.Cancel(ctx, order, actor, input.Reason)
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Order cancelled", gin.H{
		"order_id":            updated.ID.Hex(),
		"status":              updated.Status,
		"cancellation_reason": updated.Delivery.CancellationReason,
	}))
}

// StreamEvents pushes order updates to the caller as server-sent events until
// the client disconnects.
func (h *OrderHandler) StreamEvents(c *gin.Context) {
	order, ok := h.loadOrder(c)
	if !ok {
		return
	}

	ch, unsubscribe := h.Events.SubscribeOrder(order.ID.Hex())
	defer unsubscribe()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, open := <-ch:
			if !open {
				return false
			}
			c.SSEvent(ev.Kind, ev)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// loadOrder parses the :id param and fetches the order, writing the error
// response itself on failure.
func (h *OrderHandler) loadOrder(c *gin.Context) (models.Order, bool) {
	orderID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid order ID"))
		return models.Order{}, false
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	order, err := h.Repo.GetByID(ctx, orderID)
	if err != nil {
		c.JSON(http.StatusNotFound, utils.ErrorResponse("Order not found"))
		return models.Order{}, false
	}
	return order, true
}

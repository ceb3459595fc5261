package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jaidev-km/kiranakart-backend/internal/adapters/repository"
	"github.com/jaidev-km/kiranakart-backend/internal/models"
	"github.com/jaidev-km/kiranakart-backend/internal/services/assignment"
	"github.com/jaidev-km/kiranakart-backend/internal/services/delivery"
	"github.com/jaidev-km/kiranakart-backend/utils"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/crypto/bcrypt"
)

var validate = validator.New()

type DeliveryHandler struct {
	Orders   repository.OrderRepository
	Agents   repository.AgentRepository
	Earnings repository.EarningRepository

	Assigner *assignment.Service
	Delivery *delivery.Service
	Logger   *logrus.Logger
}

func NewDeliveryHandler(db *mongo.Database, assigner *assignment.Service, deliverySvc *delivery.Service, logger *logrus.Logger) *DeliveryHandler {
	return &DeliveryHandler{
		Orders:   repository.NewOrderRepository(db),
		Agents:   repository.NewAgentRepository(db),
		Earnings: repository.NewEarningRepository(db),
		Assigner: assigner,
		Delivery: deliverySvc,
		Logger:   logger,
	}
}

// Register creates a delivery agent account. New agents start unapproved and
// offline; an admin flips approval before they enter the dispatch pool.
func (h *DeliveryHandler) Register(c *gin.Context) {
	var input models.RegisterAgentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request body"))
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Failed to process password"))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	candidate := models.DeliveryAgent{
		Name:        input.Name,
		Email:       input.Email,
		Phone:       input.Phone,
		Password:    string(hashed),
		VehicleType: input.VehicleType,
	}
	if err := validate.Struct(candidate); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse(err.Error()))
		return
	}

	agent, err := h.Agents.Create(ctx, candidate)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Failed to register agent"))
		return
	}

	c.JSON(http.StatusCreated, utils.SuccessResponse("Agent registered successfully", gin.H{"agent": agent}))
}

type agentOrderInput struct {
	OrderID string `json:"order_id" binding:"required"`
	AgentID string `json:"agent_id" binding:"required"`
	Reason  string `json:"reason"`
	Status  string `json:"status"`
	OTP     string `json:"otp"`
}

func (in agentOrderInput) ids() (primitive.ObjectID, primitive.ObjectID, error) {
	orderID, err := primitive.ObjectIDFromHex(in.OrderID)
	if err != nil {
		return primitive.NilObjectID, primitive.NilObjectID, errors.New("Invalid order ID")
	}
	agentID, err := primitive.ObjectIDFromHex(in.AgentID)
	if err != nil {
		return primitive.NilObjectID, primitive.NilObjectID, errors.New("Invalid agent ID")
	}
	return orderID, agentID, nil
}

// AcceptOrder is the agent's positive response to an offer.
func (h *DeliveryHandler) AcceptOrder(c *gin.Context) {
	var input agentOrderInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request body"))
		return
	}
	orderID, agentID, err := input.ids()
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse(err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	order, err := h.Orders.GetByID(ctx, orderID)
	if err != nil {
		c.JSON(http.StatusNotFound, utils.ErrorResponse("Order not found"))
		return
	}

	updated, err := h.Delivery.Accept(ctx, order, agentID)
	switch {
	case errors.Is(err, delivery.ErrAgentAtCapacity):
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("You have reached the maximum number of active deliveries"))
		return
	case errors.Is(err, delivery.ErrNotOffered):
		c.JSON(http.StatusForbidden, utils.ErrorResponse("This order is not assigned to you"))
		return
	case err != nil:
		c.JSON(http.StatusBadRequest, utils.ErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Order accepted", gin.H{
		"order_id":        updated.ID.Hex(),
		"delivery_status": updated.Delivery.DeliveryStatus,
	}))
}

// RejectOrder records a refusal and reassigns to the next nearest agent.
func (h *DeliveryHandler) RejectOrder(c *gin.Context) {
	var input agentOrderInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request body"))
		return
	}
	orderID, agentID, err := input.ids()
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse(err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	order, err := h.Orders.GetByID(ctx, orderID)
	if err != nil {
		c.JSON(http.StatusNotFound, utils.ErrorResponse("Order not found"))
		return
	}

	updated, err := h.Assigner.Reject(ctx, order, agentID, input.Reason)
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Order rejected", gin.H{
		"order_id":        updated.ID.Hex(),
		"delivery_status": updated.Delivery.DeliveryStatus,
	}))
}

// UpdateStatus moves a delivery the agent holds through the status graph.
func (h *DeliveryHandler) UpdateStatus(c *gin.Context) {
	var input agentOrderInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request body"))
		return
	}
	orderID, agentID, err := input.ids()
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse(err.Error()))
		return
	}

	to, err := delivery.ParseStatus(input.Status)
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid delivery status"))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	order, err := h.Orders.GetByID(ctx, orderID)
	if err != nil {
		c.JSON(http.StatusNotFound, utils.ErrorResponse("Order not found"))
		return
	}
	if order.Delivery.DeliveryAgentID == nil || *order.Delivery.DeliveryAgentID != agentID {
		c.JSON(http.StatusForbidden, utils.ErrorResponse("This order is not assigned to you"))
		return
	}

	updated, err := h.Delivery.Transition(ctx, order, to)
	if errors.Is(err, delivery.ErrOTPRequired) {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Delivery confirmation code must be verified first"))
		return
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

// UpdateLocation stores the agent's latest position fix.
func (h *DeliveryHandler) UpdateLocation(c *gin.Context) {
	var input struct {
		AgentID string   `json:"agent_id" binding:"required"`
		Lat     *float64 `json:"lat" binding:"required"`
		Lng     *float64 `json:"lng" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request body"))
		return
	}
	agentID, err := primitive.ObjectIDFromHex(input.AgentID)
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid agent ID"))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	if err := h.Agents.UpdateLocation(ctx, agentID, *input.Lat, *input.Lng); err != nil {
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Failed to update location"))
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Location updated", nil))
}

// VerifyOTP checks the confirmation code against the order.
func (h *DeliveryHandler) VerifyOTP(c *gin.Context) {
	var input agentOrderInput
	if err := c.ShouldBindJSON(&input); err != nil || input.OTP == "" {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Order ID and OTP are required"))
		return
	}
	orderID, err := primitive.ObjectIDFromHex(input.OrderID)
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid order ID"))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	order, err := h.Orders.GetByID(ctx, orderID)
	if err != nil {
		c.JSON(http.StatusNotFound, utils.ErrorResponse("Order not found"))
		return
	}

	updated, err := h.Delivery.VerifyOTP(ctx, order, input.OTP)
	if errors.Is(err, delivery.ErrOTPMismatch) {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Incorrect confirmation code"))
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Confirmation code verified", gin.H{
		"order_id":     updated.ID.Hex(),
		"otp_verified": updated.Delivery.OTPVerified,
	}))
}

// GenerateOTP issues a fresh confirmation code for an active delivery.
func (h *DeliveryHandler) GenerateOTP(c *gin.Context) {
	var input agentOrderInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request body"))
		return
	}
	orderID, err := primitive.ObjectIDFromHex(input.OrderID)
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid order ID"))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	order, err := h.Orders.GetByID(ctx, orderID)
	if err != nil {
		c.JSON(http.StatusNotFound, utils.ErrorResponse("Order not found"))
		return
	}

	updated, err := h.Delivery.GenerateOTP(ctx, order)
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Confirmation code issued", gin.H{
		"order_id": updated.ID.Hex(),
		"otp":      updated.Delivery.OTPCode,
	}))
}

// ToggleAvailability flips whether the agent receives new offers.
func (h *DeliveryHandler) ToggleAvailability(c *gin.Context) {
	var input struct {
		AgentID   string `json:"agent_id" binding:"required"`
		Available *bool  `json:"available" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request body"))
		return
	}
	agentID, err := primitive.ObjectIDFromHex(input.AgentID)
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid agent ID"))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	if err := h.Agents.SetAvailability(ctx, agentID, *input.Available); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, utils.ErrorResponse("Agent not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Failed to update availability"))
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Availability updated", gin.H{"available": *input.Available}))
}

// PendingOrders lists paid, unassigned orders the agent could pick up.
func (h *DeliveryHandler) PendingOrders(c *gin.Context) {
	agentID, ok := h.paramAgentID(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	orders, err := h.Orders.FindPendingForAgent(ctx, agentID, 20)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Failed to fetch pending orders"))
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Pending orders fetched", gin.H{"orders": orders}))
}

// Offers lists open offers awaiting the agent's response.
func (h *DeliveryHandler) Offers(c *gin.Context) {
	agentID, ok := h.paramAgentID(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	orders, err := h.Orders.FindOffersForAgent(ctx, agentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Failed to fetch offers"))
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Offers fetched", gin.H{"orders": orders}))
}

// ActiveOrders lists the deliveries the agent is currently carrying.
func (h *DeliveryHandler) ActiveOrders(c *gin.Context) {
	agentID, ok := h.paramAgentID(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	orders, err := h.Orders.FindActiveForAgent(ctx, agentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Failed to fetch active orders"))
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Active orders fetched", gin.H{"orders": orders}))
}

// AgentEarnings lists the agent's settled delivery earnings, newest first.
func (h *DeliveryHandler) AgentEarnings(c *gin.Context) {
	agentID, ok := h.paramAgentID(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	logs, err := h.Earnings.FindByAgent(ctx, agentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Failed to fetch earnings"))
		return
	}

	var total float64
	for _, l := range logs {
		total += l.NetEarning
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Earnings fetched", gin.H{
		"earnings": logs,
		"total":    total,
	}))
}

func (h *DeliveryHandler) paramAgentID(c *gin.Context) (primitive.ObjectID, bool) {
	agentID, err := primitive.ObjectIDFromHex(c.Param("agentId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid agent ID"))
		return primitive.NilObjectID, false
	}
	return agentID, true
}

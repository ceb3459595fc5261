// Package snapshot assembles read-model views of an order: a client-safe
// status view and an enriched admin detail view.
package snapshot

import (
	"context"
	"math"
	"time"

	"github.com/jaidev-km/kiranakart-backend/internal/adapters/repository"
	"github.com/jaidev-km/kiranakart-backend/internal/models"
	"github.com/jaidev-km/kiranakart-backend/internal/services/pricing"
	"github.com/sirupsen/logrus"
)

// ClientView is the status payload exposed to the ordering client.
type ClientView struct {
	OrderID        string                `json:"order_id"`
	Status         models.OrderStatus    `json:"status"`
	DeliveryStatus models.DeliveryStatus `json:"delivery_status"`
	PaymentStatus  models.PaymentStatus  `json:"payment_status"`
	PaymentMethod  string                `json:"payment_method"`

	Items    []models.OrderItem `json:"items"`
	Subtotal float64            `json:"subtotal"`
	Discount float64            `json:"discount"`
	Total    float64            `json:"total"`

	DeliveryCharge *float64 `json:"delivery_charge,omitempty"`

	// OTP is exposed to the client only while a delivery is underway and the
	// code has not been verified yet; the client reads it out to the agent.
	OTP string `json:"otp,omitempty"`

	EtaMinutes *int       `json:"eta_minutes,omitempty"`
	PickupTime *time.Time `json:"pickup_time,omitempty"`
	Delivered  *time.Time `json:"delivered_at,omitempty"`

	CancellationReason string `json:"cancellation_reason,omitempty"`
	CancelledBy        string `json:"cancelled_by,omitempty"`

	AgentName  string `json:"agent_name,omitempty"`
	AgentPhone string `json:"agent_phone,omitempty"`

	AssignmentHistory []models.AssignmentRecord `json:"assignment_history,omitempty"`
}

// PartyView is the minimal identity block on the admin view. Missing parties
// (guest clients, deleted accounts) leave only the id populated.
type PartyView struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// AdminView is the full operational picture of one order.
type AdminView struct {
	Order models.Order `json:"order"`

	Client *PartyView `json:"client,omitempty"`
	Seller *PartyView `json:"seller,omitempty"`
	Agent  *PartyView `json:"agent,omitempty"`

	// Earnings come from the settled ledger when it exists; before settlement
	// they are projected from the order itself.
	Earnings         []models.EarningLog `json:"earnings,omitempty"`
	EarningsSettled  bool                `json:"earnings_settled"`
	ProjectedRevenue float64             `json:"projected_revenue"`

	AssignmentHistory []models.AssignmentRecord `json:"assignment_history,omitempty"`
}

type Service struct {
	Clients  repository.ClientRepository
	Sellers  repository.SellerRepository
	Agents   repository.AgentRepository
	Earnings repository.EarningRepository
	Logger   *logrus.Logger
}

func NewService(clients repository.ClientRepository, sellers repository.SellerRepository, agents repository.AgentRepository, earnings repository.EarningRepository, logger *logrus.Logger) *Service {
	return &Service{Clients: clients, Sellers: sellers, Agents: agents, Earnings: earnings, Logger: logger}
}

// EtaMinutes converts the stamped ETA into whole minutes remaining, rounded
// up, floored at zero once the ETA has passed. Nil when no ETA is stamped.
func EtaMinutes(d models.DeliveryInfo, now time.Time) *int {
	if d.EtaAt == nil {
		return nil
	}
	remaining := d.EtaAt.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	mins := int(math.Ceil(remaining.Minutes()))
	return &mins
}

// Client builds the client-facing view, enriching it with the agent's contact
// details when one is attached. An agent lookup failure degrades to the bare
// order data.
func (s *Service) Client(ctx context.Context, order models.Order) ClientView {
	subtotal := pricing.Round2(order.Subtotal())
	view := ClientView{
		OrderID:        order.ID.Hex(),
		Status:         order.Status,
		DeliveryStatus: order.Delivery.DeliveryStatus,
		PaymentStatus:  order.Payment.Status,
		PaymentMethod:  order.Payment.Method,

		Items:    order.OrderItems,
		Subtotal: subtotal,
		Discount: order.AppliedDiscountAmount,
		Total:    pricing.Round2(order.Payment.Amount + order.Delivery.Charge()),

		DeliveryCharge: order.Delivery.DeliveryCharge,

		EtaMinutes: EtaMinutes(order.Delivery, time.Now()),
		PickupTime: order.Delivery.PickupTime,
		Delivered:  order.Delivery.DeliveryEndTime,

		CancellationReason: order.Delivery.CancellationReason,
		CancelledBy:        order.Delivery.CancelledBy,

		AssignmentHistory: order.Delivery.AssignmentHistory,
	}

	if !order.Delivery.DeliveryStatus.Terminal() && !order.Delivery.OTPVerified {
		view.OTP = order.Delivery.OTPCode
	}

	if order.Delivery.DeliveryAgentID != nil {
		agent, err := s.Agents.GetByID(ctx, *order.Delivery.DeliveryAgentID)
		if err != nil {
			s.Logger.WithField("order_id", order.ID.Hex()).WithError(err).Warn("agent lookup for status view")
		} else {
			view.AgentName = agent.Name
			view.AgentPhone = agent.Phone
		}
	}
	return view
}

// Admin builds the enriched admin view. Every party lookup is best effort:
// a missing client, seller or agent yields partial data, never an error.
func (s *Service) Admin(ctx context.Context, order models.Order) AdminView {
	view := AdminView{
		Order:             order,
		AssignmentHistory: order.Delivery.AssignmentHistory,
	}

	if order.ClientID != "" {
		if client, err := s.Clients.GetByID(ctx, order.ClientID); err == nil {
			view.Client = &PartyView{ID: client.ID.Hex(), Name: client.Name, Phone: client.Phone, Email: client.Email}
		} else {
			view.Client = &PartyView{ID: order.ClientID}
		}
	}
	if order.SellerID != nil {
		if seller, err := s.Sellers.GetByID(ctx, *order.SellerID); err == nil {
			view.Seller = &PartyView{ID: seller.ID.Hex(), Name: seller.BusinessName, Phone: seller.Phone, Email: seller.Email}
		} else {
			view.Seller = &PartyView{ID: order.SellerID.Hex()}
		}
	}
	if order.Delivery.DeliveryAgentID != nil {
		if agent, err := s.Agents.GetByID(ctx, *order.Delivery.DeliveryAgentID); err == nil {
			view.Agent = &PartyView{ID: agent.ID.Hex(), Name: agent.Name, Phone: agent.Phone, Email: agent.Email}
		} else {
			view.Agent = &PartyView{ID: order.Delivery.DeliveryAgentID.Hex()}
		}
	}

	logs, err := s.Earnings.FindByOrder(ctx, order.ID)
	if err != nil {
		s.Logger.WithField("order_id", order.ID.Hex()).WithError(err).Warn("earning lookup for admin view")
	}
	if len(logs) > 0 {
		view.Earnings = logs
		view.EarningsSettled = true
		var commission float64
		for _, l := range logs {
			commission += l.PlatformCommission
		}
		view.ProjectedRevenue = pricing.Round2(commission)
	} else {
		view.ProjectedRevenue = pricing.Round2(order.Subtotal() * models.DefaultPlatformSettings().PlatformCommissionRate)
	}
	return view
}

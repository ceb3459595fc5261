// Package delivery owns the order delivery lifecycle: the status transition
// graph, agent accept/reject handling, the OTP proof-of-delivery gate, and
// cancellation.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jaidev-km/kiranakart-backend/internal/adapters/repository"
	"github.com/jaidev-km/kiranakart-backend/internal/models"
	"github.com/jaidev-km/kiranakart-backend/internal/services/earnings"
	"github.com/jaidev-km/kiranakart-backend/internal/services/events"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	// ErrInvalidStatus is returned for unknown status strings on the update
	// endpoint. The message doubles as the client-facing error text.
	ErrInvalidStatus = errors.New("Invalid delivery status")

	ErrOTPRequired     = errors.New("delivery confirmation code has not been verified")
	ErrOTPMismatch     = errors.New("incorrect confirmation code")
	ErrActorRequired   = errors.New("cancelling actor is required")
	ErrAgentAtCapacity = errors.New("agent is at maximum concurrent deliveries")
	ErrNotOffered      = errors.New("order is not offered to this agent")
)

// estimatedTransitTime is the window stamped as the ETA at pickup.
const estimatedTransitTime = 30 * time.Minute

// transitions is the legal delivery status graph. Cancellation is handled
// separately: it is reachable from every non-terminal state.
var transitions = map[models.DeliveryStatus][]models.DeliveryStatus{
	models.DeliveryPending:   {models.DeliveryAssigned},
	models.DeliveryAssigned:  {models.DeliveryAccepted},
	models.DeliveryAccepted:  {models.DeliveryPickedUp},
	models.DeliveryPickedUp:  {models.DeliveryInTransit, models.DeliveryDelivered},
	models.DeliveryInTransit: {models.DeliveryDelivered},
}

// ParseStatus validates a raw status string. The legacy "dispatched" spelling
// still maps to assigned for older clients.
func ParseStatus(raw string) (models.DeliveryStatus, error) {
	switch models.DeliveryStatus(raw) {
	case models.DeliveryPending, models.DeliveryAssigned, models.DeliveryAccepted,
		models.DeliveryPickedUp, models.DeliveryInTransit, models.DeliveryDelivered,
		models.DeliveryCancelled:
		return models.DeliveryStatus(raw), nil
	}
	if raw == "dispatched" {
		return models.DeliveryAssigned, nil
	}
	return "", ErrInvalidStatus
}

// CanTransition reports whether from -> to is a legal step.
func CanTransition(from, to models.DeliveryStatus) bool {
	if to == models.DeliveryCancelled {
		return !from.Terminal()
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Service struct {
	Orders  repository.OrderRepository
	Agents  repository.AgentRepository
	Settler *earnings.Service
	Events  *events.Bus
	Logger  *logrus.Logger
}

func NewService(orders repository.OrderRepository, agents repository.AgentRepository, settler *earnings.Service, bus *events.Bus, logger *logrus.Logger) *Service {
	return &Service{Orders: orders, Agents: agents, Settler: settler, Events: bus, Logger: logger}
}

// Accept is the agent's positive response to an offer. It reserves a capacity
// slot with a conditional write so concurrent accepts cannot exceed the cap.
// Accepting an order already accepted by the same agent is a no-op.
func (s *Service) Accept(ctx context.Context, order models.Order, agentID primitive.ObjectID) (models.Order, error) {
	if order.Delivery.DeliveryAgentID != nil && *order.Delivery.DeliveryAgentID == agentID &&
		order.Delivery.AgentResponse == models.ResponseAccepted {
		return order, nil
	}
	if order.Delivery.DeliveryAgentID == nil || *order.Delivery.DeliveryAgentID != agentID ||
		order.Delivery.AgentResponse != models.ResponseAssigned {
		return order, ErrNotOffered
	}
	if !CanTransition(order.Delivery.DeliveryStatus, models.DeliveryAccepted) {
		return order, fmt.Errorf("cannot accept order in %s state", order.Delivery.DeliveryStatus)
	}

	ok, err := s.Agents.ReserveSlot(ctx, agentID)
	if err != nil {
		return order, err
	}
	if !ok {
		return order, ErrAgentAtCapacity
	}

	now := time.Now()
	order.Delivery.DeliveryStatus = models.DeliveryAccepted
	order.Delivery.AgentResponse = models.ResponseAccepted
	if order.Delivery.OTPCode == "" {
		order.Delivery.OTPCode = newOTP()
	}
	for i := len(order.Delivery.AssignmentHistory) - 1; i >= 0; i-- {
		if order.Delivery.AssignmentHistory[i].AgentID == agentID {
			order.Delivery.AssignmentHistory[i].Response = models.ResponseAccepted
			order.Delivery.AssignmentHistory[i].At = now
			break
		}
	}
	if order.Status == models.OrderPending {
		order.Status = models.OrderConfirmed
	}

	updated, err := s.Orders.Update(ctx, order)
	if err != nil {
		// The slot was taken but the order write failed; give it back.
		if relErr := s.Agents.ReleaseSlot(ctx, agentID); relErr != nil {
			s.Logger.WithField("agent_id", agentID.Hex()).WithError(relErr).Error("slot release after failed accept")
		}
		return order, err
	}

	s.Logger.WithFields(logrus.Fields{
		"order_id": updated.ID.Hex(),
		"agent_id": agentID.Hex(),
	}).Info("agent accepted order")
	s.publish(events.KindDelivery, updated)

	return updated, nil
}

// Transition applies one step of the delivery graph with its side effects.
// Picked up stamps the pickup time, generates the confirmation code when none
// exists, and sets the ETA. Delivered is gated on code verification, stamps
// the end time, settles COD payments, frees the agent slot and writes the
// earning records.
func (s *Service) Transition(ctx context.Context, order models.Order, to models.DeliveryStatus) (models.Order, error) {
	from := order.Delivery.DeliveryStatus
	if from == to {
		return order, nil
	}
	if !CanTransition(from, to) {
		return order, fmt.Errorf("cannot move delivery from %s to %s", from, to)
	}

	now := time.Now()
	switch to {
	case models.DeliveryAssigned:
		if order.Delivery.DeliveryStartTime == nil {
			order.Delivery.DeliveryStartTime = &now
		}

	case models.DeliveryPickedUp:
		if order.Delivery.DeliveryAgentID == nil {
			return order, errors.New("no delivery agent attached to the order")
		}
		// A stale verified code from an earlier attempt must not open the
		// delivered gate for this trip.
		if order.Delivery.OTPCode == "" || order.Delivery.OTPVerified {
			order.Delivery.OTPCode = newOTP()
			order.Delivery.OTPVerified = false
			order.Delivery.OTPVerifiedAt = nil
		}
		order.Delivery.PickupTime = &now
		eta := now.Add(estimatedTransitTime)
		order.Delivery.EtaAt = &eta

	case models.DeliveryDelivered:
		if !order.Delivery.OTPVerified {
			return order, ErrOTPRequired
		}
		order.Delivery.DeliveryEndTime = &now
		order.Status = models.OrderDelivered
		if order.Payment.Method == models.PaymentMethodCOD && order.Payment.Status != models.PaymentPaid {
			order.Payment.Status = models.PaymentPaid
			order.Payment.PaymentDate = &now
		}
	}
	order.Delivery.DeliveryStatus = to

	updated, err := s.Orders.Update(ctx, order)
	if err != nil {
		return order, err
	}

	if to == models.DeliveryDelivered {
		if updated.Delivery.DeliveryAgentID != nil {
			if err := s.Agents.CompleteDelivery(ctx, *updated.Delivery.DeliveryAgentID); err != nil {
				s.Logger.WithField("order_id", updated.ID.Hex()).WithError(err).Error("agent counters update on delivery")
			}
		}
		if err := s.Settler.Settle(ctx, updated); err != nil {
			s.Logger.WithField("order_id", updated.ID.Hex()).WithError(err).Error("settlement on delivery")
		}
		s.publish(events.KindDelivered, updated)
	} else {
		s.publish(events.KindDelivery, updated)
	}

	s.Logger.WithFields(logrus.Fields{
		"order_id": updated.ID.Hex(),
		"from":     from,
		"to":       to,
	}).Info("delivery status updated")

	return updated, nil
}

// VerifyOTP checks the delivery confirmation code the client handed to the
// agent. Verification only makes sense once the parcel has been picked up.
func (s *Service) VerifyOTP(ctx context.Context, order models.Order, code string) (models.Order, error) {
	if order.Delivery.OTPVerified {
		return order, nil
	}
	if order.Delivery.DeliveryStatus != models.DeliveryPickedUp && order.Delivery.DeliveryStatus != models.DeliveryInTransit {
		return order, fmt.Errorf("cannot verify confirmation code in %s state", order.Delivery.DeliveryStatus)
	}
	if order.Delivery.OTPCode == "" || code != order.Delivery.OTPCode {
		return order, ErrOTPMismatch
	}

	now := time.Now()
	order.Delivery.OTPVerified = true
	order.Delivery.OTPVerifiedAt = &now
	return s.Orders.Update(ctx, order)
}

// GenerateOTP issues a fresh confirmation code for an active delivery,
// replacing any unverified one.
func (s *Service) GenerateOTP(ctx context.Context, order models.Order) (models.Order, error) {
	if order.Delivery.DeliveryStatus.Terminal() {
		return order, fmt.Errorf("cannot issue confirmation code in %s state", order.Delivery.DeliveryStatus)
	}
	if order.Delivery.OTPVerified {
		return order, errors.New("confirmation code already verified")
	}
	order.Delivery.OTPCode = newOTP()
	return s.Orders.Update(ctx, order)
}

// Cancel terminates the order from any non-terminal state, recording who did
// it and why. If an agent currently holds the order against capacity the slot
// is freed.
func (s *Service) Cancel(ctx context.Context, order models.Order, actor, reason string) (models.Order, error) {
	if actor == "" {
		return order, ErrActorRequired
	}
	if order.Delivery.DeliveryStatus == models.DeliveryDelivered || order.Status == models.OrderDelivered {
		return order, errors.New("Cannot cancel delivered orders")
	}
	if order.Delivery.DeliveryStatus == models.DeliveryCancelled || order.Status == models.OrderCancelled {
		return order, errors.New("Order is already cancelled")
	}
	if reason == "" {
		reason = "No reason provided"
	}

	holdsSlot := order.Delivery.DeliveryStatus.Active()
	agentID := order.Delivery.DeliveryAgentID

	now := time.Now()
	order.Status = models.OrderCancelled
	order.Delivery.DeliveryStatus = models.DeliveryCancelled
	order.Delivery.CancellationReason = reason
	order.Delivery.CancelledBy = actor
	order.Delivery.CancelledAt = &now

	updated, err := s.Orders.Update(ctx, order)
	if err != nil {
		return order, err
	}

	if holdsSlot && agentID != nil {
		if err := s.Agents.ReleaseSlot(ctx, *agentID); err != nil {
			s.Logger.WithField("agent_id", agentID.Hex()).WithError(err).Error("slot release on cancellation")
		}
	}

	s.Logger.WithFields(logrus.Fields{
		"order_id": updated.ID.Hex(),
		"by":       actor,
		"reason":   reason,
	}).Info("order cancelled")
	s.publish(events.KindCancelled, updated)

	return updated, nil
}

func (s *Service) publish(kind string, order models.Order) {
	if s.Events != nil {
		s.Events.Publish(kind, order)
	}
}

// newOTP returns a four digit delivery confirmation code.
func newOTP() string {
	return fmt.Sprintf("%04d", 1000+rand.Intn(9000))
}

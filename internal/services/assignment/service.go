// Package assignment dispatches paid orders to the nearest eligible delivery
// agent and drives the reassignment loop when agents reject offers.
package assignment

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/jaidev-km/kiranakart-backend/internal/adapters/repository"
	"github.com/jaidev-km/kiranakart-backend/internal/models"
	"github.com/jaidev-km/kiranakart-backend/internal/services/pricing"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrNoAgentAvailable is returned when no eligible agent remains for an order.
// The order stays in pending delivery state and can be retried later.
var ErrNoAgentAvailable = errors.New("no delivery agent available")

const earthRadiusKm = 6371.0

// HaversineKm computes the great-circle distance between two points in km.
func HaversineKm(a, b models.GeoPoint) float64 {
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

type Service struct {
	Orders   repository.OrderRepository
	Agents   repository.AgentRepository
	Settings repository.SettingsRepository
	Pricing  pricing.Engine
	Logger   *logrus.Logger
}

func NewService(orders repository.OrderRepository, agents repository.AgentRepository, settings repository.SettingsRepository, logger *logrus.Logger) *Service {
	return &Service{
		Orders:   orders,
		Agents:   agents,
		Settings: settings,
		Pricing:  pricing.NewEngine(),
		Logger:   logger,
	}
}

// AssignNearest offers the order to the closest eligible agent that has not
// been tried before. The offer is recorded in the assignment history and the
// delivery moves to assigned; the agent still has to accept. Returns the
// updated order.
func (s *Service) AssignNearest(ctx context.Context, order models.Order) (models.Order, error) {
	if order.Delivery.DeliveryStatus.Terminal() {
		return order, errors.New("order is no longer assignable")
	}

	// Distance is measured to the pickup point; orders without one fall back
	// to the dropoff. With neither, the id tie-break picks deterministically.
	target := order.Delivery.DeliveryAddress.Location
	if order.Delivery.PickupAddress != nil && order.Delivery.PickupAddress.Location != nil {
		target = order.Delivery.PickupAddress.Location
	}
	if target == nil {
		s.Logger.WithField("order_id", order.ID.Hex()).Warn("assigning without any location fix on the order")
	}

	tried := order.Delivery.TriedAgents()
	exclude := make([]primitive.ObjectID, 0, len(tried))
	for id := range tried {
		exclude = append(exclude, id)
	}

	agents, err := s.Agents.FindEligible(ctx, exclude)
	if err != nil {
		return order, err
	}

	candidates := make([]models.DeliveryAgent, 0, len(agents))
	for _, a := range agents {
		if a.HasLocationFix() {
			candidates = append(candidates, a)
		}
	}
	if len(candidates) == 0 {
		return order, ErrNoAgentAvailable
	}

	best := nearest(candidates, target)

	now := time.Now()
	order.Delivery.DeliveryAgentID = &best.ID
	order.Delivery.AgentResponse = models.ResponseAssigned
	order.Delivery.DeliveryStatus = models.DeliveryAssigned
	if order.Delivery.DeliveryStartTime == nil {
		order.Delivery.DeliveryStartTime = &now
	}
	if order.Delivery.DeliveryCharge == nil {
		charge := s.chargeFor(ctx, order)
		order.Delivery.DeliveryCharge = &charge
	}
	order.Delivery.AssignmentHistory = append(order.Delivery.AssignmentHistory, models.AssignmentRecord{
		AgentID:  best.ID,
		Response: models.ResponseAssigned,
		At:       now,
	})

	updated, err := s.Orders.Update(ctx, order)
	if err != nil {
		return order, err
	}

	s.Logger.WithFields(logrus.Fields{
		"order_id": updated.ID.Hex(),
		"agent_id": best.ID.Hex(),
	}).Info("order offered to agent")

	return updated, nil
}

// chargeFor computes the fee to freeze on first dispatch. A settings lookup
// failure falls back to the platform defaults rather than blocking dispatch.
func (s *Service) chargeFor(ctx context.Context, order models.Order) float64 {
	settings, err := s.Settings.Get(ctx)
	if err != nil {
		s.Logger.WithField("order_id", order.ID.Hex()).WithError(err).Warn("settings lookup failed, using default delivery charges")
		settings = models.DefaultPlatformSettings()
	}
	return s.Pricing.DeliveryCharge(settings, order.Category, pricing.Round2(order.Subtotal()))
}

// nearest picks the candidate closest to the target point, breaking distance
// ties by agent id so repeated runs over the same data pick the same agent.
func nearest(candidates []models.DeliveryAgent, target *models.GeoPoint) models.DeliveryAgent {
	sort.Slice(candidates, func(i, j int) bool {
		if target != nil {
			di := HaversineKm(candidates[i].CurrentLocation.Point(), *target)
			dj := HaversineKm(candidates[j].CurrentLocation.Point(), *target)
			if di != dj {
				return di < dj
			}
		}
		return candidates[i].ID.Hex() < candidates[j].ID.Hex()
	})
	return candidates[0]
}

// Reject records the agent's refusal and immediately tries the next nearest
// agent, excluding everyone already offered. Agents may back out of an open
// offer or of a delivery they accepted but have not picked up yet; an accepted
// delivery held a capacity slot, which is released. If nobody is left, the
// order falls back to pending delivery so a later dispatch can retry.
func (s *Service) Reject(ctx context.Context, order models.Order, agentID primitive.ObjectID, reason string) (models.Order, error) {
	if order.Delivery.DeliveryAgentID == nil || *order.Delivery.DeliveryAgentID != agentID {
		return order, errors.New("order is not assigned to this agent")
	}
	switch order.Delivery.DeliveryStatus {
	case models.DeliveryAssigned, models.DeliveryAccepted:
	default:
		return order, errors.New("delivery is already underway")
	}
	if order.Delivery.AgentResponse != models.ResponseAssigned && order.Delivery.AgentResponse != models.ResponseAccepted {
		return order, errors.New("offer is no longer open")
	}
	heldSlot := order.Delivery.AgentResponse == models.ResponseAccepted

	if reason == "" {
		reason = "No reason provided"
	}

	now := time.Now()
	for i := len(order.Delivery.AssignmentHistory) - 1; i >= 0; i-- {
		if order.Delivery.AssignmentHistory[i].AgentID == agentID {
			order.Delivery.AssignmentHistory[i].Response = models.ResponseRejected
			order.Delivery.AssignmentHistory[i].Reason = reason
			order.Delivery.AssignmentHistory[i].At = now
			break
		}
	}
	order.Delivery.DeliveryAgentID = nil
	order.Delivery.AgentResponse = ""
	order.Delivery.DeliveryStatus = models.DeliveryPending

	updated, err := s.Orders.Update(ctx, order)
	if err != nil {
		return order, err
	}

	if heldSlot {
		if err := s.Agents.ReleaseSlot(ctx, agentID); err != nil {
			s.Logger.WithField("agent_id", agentID.Hex()).WithError(err).Error("slot release on rejection")
		}
	}

	s.Logger.WithFields(logrus.Fields{
		"order_id": updated.ID.Hex(),
		"agent_id": agentID.Hex(),
		"reason":   reason,
	}).Info("agent rejected order")

	reassigned, err := s.AssignNearest(ctx, updated)
	if errors.Is(err, ErrNoAgentAvailable) {
		s.Logger.WithField("order_id", updated.ID.Hex()).Warn("no agent left after rejection, order stays pending")
		return updated, nil
	}
	if err != nil {
		return updated, err
	}
	return reassigned, nil
}

// DispatchPaid assigns every order in the batch independently. One order
// failing to find an agent never blocks the others.
func (s *Service) DispatchPaid(ctx context.Context, orders []models.Order) []models.Order {
	out := make([]models.Order, 0, len(orders))
	for _, order := range orders {
		assigned, err := s.AssignNearest(ctx, order)
		if err != nil {
			if !errors.Is(err, ErrNoAgentAvailable) {
				s.Logger.WithFields(logrus.Fields{
					"order_id": order.ID.Hex(),
					"error":    err.Error(),
				}).Error("dispatch failed")
			}
			out = append(out, order)
			continue
		}
		out = append(out, assigned)
	}
	return out
}

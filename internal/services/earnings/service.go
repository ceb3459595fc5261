// Package earnings settles delivered orders into immutable per-party earning
// records: one per seller involved and one for the delivery agent.
package earnings

import (
	"context"

	"github.com/jaidev-km/kiranakart-backend/internal/adapters/repository"
	"github.com/jaidev-km/kiranakart-backend/internal/models"
	"github.com/jaidev-km/kiranakart-backend/internal/services/pricing"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Fallback rates used when the settings snapshot cannot be loaded. Settlement
// must not fail a delivery, so degraded rates beat no settlement.
const (
	DefaultCommissionRate = 0.10
	DefaultAgentShareRate = 0.80
)

type Service struct {
	Earnings repository.EarningRepository
	Products repository.ProductRepository
	Settings repository.SettingsRepository
	Logger   *logrus.Logger
}

func NewService(earnings repository.EarningRepository, products repository.ProductRepository, settings repository.SettingsRepository, logger *logrus.Logger) *Service {
	return &Service{Earnings: earnings, Products: products, Settings: settings, Logger: logger}
}

// Settle writes the earning records for a delivered order. Sellers earn their
// item total minus the platform commission; the agent earns the configured
// share of the frozen delivery charge. The underlying writes are insert-only
// upserts, so settling the same order twice is a no-op.
func (s *Service) Settle(ctx context.Context, order models.Order) error {
	commissionRate, agentShareRate := s.rates(ctx)

	bySeller, err := s.sellerTotals(ctx, order)
	if err != nil {
		return err
	}

	for sellerID, itemTotal := range bySeller {
		sid := sellerID
		commission := pricing.Round2(itemTotal * commissionRate)
		log := models.EarningLog{
			Role:               models.EarningRoleSeller,
			OrderID:            order.ID,
			SellerID:           &sid,
			ItemTotal:          pricing.Round2(itemTotal),
			PlatformCommission: commission,
			NetEarning:         pricing.Round2(itemTotal - commission),
		}
		if err := s.Earnings.Upsert(ctx, log); err != nil {
			return err
		}
	}

	if order.Delivery.DeliveryAgentID != nil {
		charge := order.Delivery.Charge()
		log := models.EarningLog{
			Role:           models.EarningRoleDelivery,
			OrderID:        order.ID,
			AgentID:        order.Delivery.DeliveryAgentID,
			DeliveryCharge: charge,
			NetEarning:     pricing.Round2(charge * agentShareRate),
		}
		if err := s.Earnings.Upsert(ctx, log); err != nil {
			return err
		}
	}

	s.Logger.WithField("order_id", order.ID.Hex()).Info("order settled")
	return nil
}

// sellerTotals splits the order's item subtotal per owning seller. Lines whose
// product no longer resolves to a seller fall back to the order-level seller.
func (s *Service) sellerTotals(ctx context.Context, order models.Order) (map[primitive.ObjectID]float64, error) {
	ids := make([]primitive.ObjectID, 0, len(order.OrderItems))
	for _, it := range order.OrderItems {
		if !it.ProductID.IsZero() {
			ids = append(ids, it.ProductID)
		}
	}

	products, err := s.Products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	owners := make(map[primitive.ObjectID]primitive.ObjectID, len(products))
	for _, p := range products {
		if !p.SellerID.IsZero() {
			owners[p.ID] = p.SellerID
		}
	}

	totals := make(map[primitive.ObjectID]float64)
	for _, it := range order.OrderItems {
		line := it.PriceSnapshot * float64(it.Qty)

		if owner, ok := owners[it.ProductID]; ok {
			totals[owner] += line
			continue
		}
		if order.SellerID != nil {
			totals[*order.SellerID] += line
			continue
		}
		s.Logger.WithFields(logrus.Fields{
			"order_id":   order.ID.Hex(),
			"product_id": it.ProductID.Hex(),
		}).Warn("no seller resolvable for line, skipping seller earning")
	}
	return totals, nil
}

func (s *Service) rates(ctx context.Context) (commission, agentShare float64) {
	settings, err := s.Settings.Get(ctx)
	if err != nil {
		s.Logger.WithError(err).Warn("settings lookup failed, using default settlement rates")
		return DefaultCommissionRate, DefaultAgentShareRate
	}
	commission = settings.PlatformCommissionRate
	agentShare = settings.DeliveryAgentShareRate
	if commission <= 0 {
		commission = DefaultCommissionRate
	}
	if agentShare <= 0 {
		agentShare = DefaultAgentShareRate
	}
	return commission, agentShare
}

// Package repositorytest provides in-memory repository implementations for
// service tests.
package repositorytest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jaidev-km/kiranakart-backend/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// OrderStore is an in-memory repository.OrderRepository.
type OrderStore struct {
	mu     sync.Mutex
	Orders map[primitive.ObjectID]models.Order

	CreateErr error
	UpdateErr error
}

func NewOrderStore(orders ...models.Order) *OrderStore {
	s := &OrderStore{Orders: make(map[primitive.ObjectID]models.Order)}
	for _, o := range orders {
		s.Orders[o.ID] = o
	}
	return s
}

func (s *OrderStore) Create(_ context.Context, order models.Order) (models.Order, error) {
	if s.CreateErr != nil {
		return models.Order{}, s.CreateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	s.Orders[order.ID] = order
	return order, nil
}

func (s *OrderStore) GetByID(_ context.Context, orderID primitive.ObjectID) (models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.Orders[orderID]
	if !ok {
		return models.Order{}, mongo.ErrNoDocuments
	}
	return order, nil
}

func (s *OrderStore) GetByClientID(_ context.Context, clientID string, limit int64) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Order
	for _, o := range s.Orders {
		if o.ClientID == clientID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *OrderStore) Update(_ context.Context, order models.Order) (models.Order, error) {
	if s.UpdateErr != nil {
		return models.Order{}, s.UpdateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.Orders[order.ID]; !ok {
		return models.Order{}, mongo.ErrNoDocuments
	}
	order.UpdatedAt = time.Now()
	s.Orders[order.ID] = order
	return order, nil
}

func (s *OrderStore) FindActiveForAgent(_ context.Context, agentID primitive.ObjectID) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Order
	for _, o := range s.Orders {
		if o.Delivery.DeliveryAgentID == nil || *o.Delivery.DeliveryAgentID != agentID {
			continue
		}
		if o.Delivery.DeliveryStatus == models.DeliveryAssigned || o.Delivery.DeliveryStatus.Active() {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *OrderStore) FindOffersForAgent(_ context.Context, agentID primitive.ObjectID) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Order
	for _, o := range s.Orders {
		if o.Delivery.DeliveryAgentID != nil && *o.Delivery.DeliveryAgentID == agentID &&
			o.Delivery.AgentResponse == models.ResponseAssigned &&
			o.Delivery.DeliveryStatus == models.DeliveryAssigned {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *OrderStore) FindPendingForAgent(_ context.Context, agentID primitive.ObjectID, limit int64) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Order
	for _, o := range s.Orders {
		if o.Payment.Status != models.PaymentPaid || o.Delivery.DeliveryStatus != models.DeliveryPending {
			continue
		}
		if o.Delivery.DeliveryAgentID != nil {
			continue
		}
		if o.Delivery.TriedAgents()[agentID] {
			continue
		}
		out = append(out, o)
		if int64(len(out)) == limit {
			break
		}
	}
	return out, nil
}

// AgentStore is an in-memory repository.AgentRepository with the same
// conditional-increment capacity semantics as the Mongo implementation.
type AgentStore struct {
	mu     sync.Mutex
	Agents map[primitive.ObjectID]models.DeliveryAgent

	FindErr    error
	ReserveErr error
}

func NewAgentStore(agents ...models.DeliveryAgent) *AgentStore {
	s := &AgentStore{Agents: make(map[primitive.ObjectID]models.DeliveryAgent)}
	for _, a := range agents {
		s.Agents[a.ID] = a
	}
	return s
}

func (s *AgentStore) Create(_ context.Context, agent models.DeliveryAgent) (models.DeliveryAgent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	agent.ID = primitive.NewObjectID()
	agent.CreatedAt = time.Now()
	s.Agents[agent.ID] = agent
	return agent, nil
}

func (s *AgentStore) GetByID(_ context.Context, agentID primitive.ObjectID) (models.DeliveryAgent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	agent, ok := s.Agents[agentID]
	if !ok {
		return models.DeliveryAgent{}, mongo.ErrNoDocuments
	}
	return agent, nil
}

func (s *AgentStore) FindEligible(_ context.Context, exclude []primitive.ObjectID) ([]models.DeliveryAgent, error) {
	if s.FindErr != nil {
		return nil, s.FindErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	excluded := make(map[primitive.ObjectID]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}
	var out []models.DeliveryAgent
	for _, a := range s.Agents {
		if excluded[a.ID] {
			continue
		}
		if !a.Approved || !a.Online || !a.Available || a.CurrentLocation == nil {
			continue
		}
		if a.AssignedOrders >= models.MaxConcurrentDeliveries {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *AgentStore) ReserveSlot(_ context.Context, agentID primitive.ObjectID) (bool, error) {
	if s.ReserveErr != nil {
		return false, s.ReserveErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	agent, ok := s.Agents[agentID]
	if !ok || agent.AssignedOrders >= models.MaxConcurrentDeliveries {
		return false, nil
	}
	agent.AssignedOrders++
	if agent.AssignedOrders >= models.MaxConcurrentDeliveries {
		agent.Available = false
	}
	s.Agents[agentID] = agent
	return true, nil
}

func (s *AgentStore) ReleaseSlot(_ context.Context, agentID primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	agent, ok := s.Agents[agentID]
	if !ok || agent.AssignedOrders == 0 {
		return nil
	}
	agent.AssignedOrders--
	agent.Available = true
	s.Agents[agentID] = agent
	return nil
}

func (s *AgentStore) CompleteDelivery(_ context.Context, agentID primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	agent, ok := s.Agents[agentID]
	if !ok {
		return mongo.ErrNoDocuments
	}
	if agent.AssignedOrders > 0 {
		agent.AssignedOrders--
	}
	agent.CompletedOrders++
	agent.Available = true
	s.Agents[agentID] = agent
	return nil
}

func (s *AgentStore) UpdateLocation(_ context.Context, agentID primitive.ObjectID, lat, lng float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	agent, ok := s.Agents[agentID]
	if !ok {
		return mongo.ErrNoDocuments
	}
	agent.CurrentLocation = &models.AgentLocation{Lat: lat, Lng: lng, UpdatedAt: time.Now()}
	s.Agents[agentID] = agent
	return nil
}

func (s *AgentStore) SetAvailability(_ context.Context, agentID primitive.ObjectID, available bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	agent, ok := s.Agents[agentID]
	if !ok {
		return mongo.ErrNoDocuments
	}
	agent.Available = available
	agent.Online = available
	s.Agents[agentID] = agent
	return nil
}

// SettingsStore is an in-memory repository.SettingsRepository.
type SettingsStore struct {
	mu       sync.Mutex
	Settings models.PlatformSettings

	GetErr    error
	RedeemErr error
}

func NewSettingsStore(settings models.PlatformSettings) *SettingsStore {
	return &SettingsStore{Settings: settings}
}

func (s *SettingsStore) Get(_ context.Context) (models.PlatformSettings, error) {
	if s.GetErr != nil {
		return models.PlatformSettings{}, s.GetErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Settings, nil
}

func (s *SettingsStore) RedeemCoupon(_ context.Context, code string) (bool, error) {
	if s.RedeemErr != nil {
		return false, s.RedeemErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.Settings.Coupons {
		if !strings.EqualFold(c.Code, code) || !c.Active {
			continue
		}
		if !c.UsageRemaining() {
			return false, nil
		}
		s.Settings.Coupons[i].UsageCount++
		return true, nil
	}
	return false, nil
}

// earningKey mirrors the unique settlement index.
type earningKey struct {
	OrderID primitive.ObjectID
	Role    models.EarningRole
	Party   primitive.ObjectID
}

// EarningStore is an in-memory repository.EarningRepository with insert-only
// upsert semantics.
type EarningStore struct {
	mu   sync.Mutex
	Logs map[earningKey]models.EarningLog

	UpsertErr error
}

func NewEarningStore() *EarningStore {
	return &EarningStore{Logs: make(map[earningKey]models.EarningLog)}
}

func keyOf(log models.EarningLog) earningKey {
	k := earningKey{OrderID: log.OrderID, Role: log.Role}
	if log.SellerID != nil {
		k.Party = *log.SellerID
	}
	if log.AgentID != nil {
		k.Party = *log.AgentID
	}
	return k
}

func (s *EarningStore) Upsert(_ context.Context, log models.EarningLog) error {
	if s.UpsertErr != nil {
		return s.UpsertErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := keyOf(log)
	if _, exists := s.Logs[k]; exists {
		return nil
	}
	log.ID = primitive.NewObjectID()
	log.CreatedAt = time.Now()
	s.Logs[k] = log
	return nil
}

func (s *EarningStore) FindByOrder(_ context.Context, orderID primitive.ObjectID) ([]models.EarningLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.EarningLog
	for _, l := range s.Logs {
		if l.OrderID == orderID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *EarningStore) FindByAgent(_ context.Context, agentID primitive.ObjectID) ([]models.EarningLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.EarningLog
	for _, l := range s.Logs {
		if l.Role == models.EarningRoleDelivery && l.AgentID != nil && *l.AgentID == agentID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *EarningStore) SetPaid(_ context.Context, logID primitive.ObjectID, paid bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, l := range s.Logs {
		if l.ID == logID {
			l.Paid = paid
			s.Logs[k] = l
			return nil
		}
	}
	return mongo.ErrNoDocuments
}

// ProductStore is an in-memory repository.ProductRepository.
type ProductStore struct {
	Products map[primitive.ObjectID]models.Product

	FindErr error
}

func NewProductStore(products ...models.Product) *ProductStore {
	s := &ProductStore{Products: make(map[primitive.ObjectID]models.Product)}
	for _, p := range products {
		s.Products[p.ID] = p
	}
	return s
}

func (s *ProductStore) FindByIDs(_ context.Context, ids []primitive.ObjectID) ([]models.Product, error) {
	if s.FindErr != nil {
		return nil, s.FindErr
	}
	var out []models.Product
	for _, id := range ids {
		if p, ok := s.Products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *ProductStore) GetByID(_ context.Context, productID primitive.ObjectID) (models.Product, error) {
	p, ok := s.Products[productID]
	if !ok {
		return models.Product{}, mongo.ErrNoDocuments
	}
	return p, nil
}

// ClientStore is an in-memory repository.ClientRepository keyed by the string
// ids stored on orders.
type ClientStore struct {
	Clients map[string]models.Client
}

func NewClientStore(clients ...models.Client) *ClientStore {
	s := &ClientStore{Clients: make(map[string]models.Client)}
	for _, c := range clients {
		s.Clients[c.ID.Hex()] = c
	}
	return s
}

func (s *ClientStore) GetByID(_ context.Context, clientID string) (models.Client, error) {
	c, ok := s.Clients[clientID]
	if !ok {
		return models.Client{}, mongo.ErrNoDocuments
	}
	return c, nil
}

// SellerStore is an in-memory repository.SellerRepository.
type SellerStore struct {
	Sellers map[primitive.ObjectID]models.Seller
}

func NewSellerStore(sellers ...models.Seller) *SellerStore {
	s := &SellerStore{Sellers: make(map[primitive.ObjectID]models.Seller)}
	for _, sl := range sellers {
		s.Sellers[sl.ID] = sl
	}
	return s
}

func (s *SellerStore) GetByID(_ context.Context, sellerID primitive.ObjectID) (models.Seller, error) {
	sl, ok := s.Sellers[sellerID]
	if !ok {
		return models.Seller{}, mongo.ErrNoDocuments
	}
	return sl, nil
}

// AddressStore is an in-memory repository.AddressRepository.
type AddressStore struct {
	Addresses map[primitive.ObjectID]models.UserAddress
}

func NewAddressStore(addresses ...models.UserAddress) *AddressStore {
	s := &AddressStore{Addresses: make(map[primitive.ObjectID]models.UserAddress)}
	for _, a := range addresses {
		s.Addresses[a.ID] = a
	}
	return s
}

func (s *AddressStore) GetForUser(_ context.Context, addressID primitive.ObjectID, userID string) (models.UserAddress, error) {
	a, ok := s.Addresses[addressID]
	if !ok || a.UserID != userID {
		return models.UserAddress{}, mongo.ErrNoDocuments
	}
	return a, nil
}

package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"indexmarket/internal/engine"
	"indexmarket/internal/models"
	"indexmarket/internal/repository"
	"indexmarket/internal/settlement"
)

// ============ Mock TokenRepository ============

type MockTokenRepository struct {
	tokens   map[string]*models.IndexToken
	states   map[int]*models.SupplyState
	reserves map[string]*models.PoolReserves

	applyErr error
	stateErr error
	nextID   int
}

func NewMockTokenRepository() *MockTokenRepository {
	return &MockTokenRepository{
		tokens:   make(map[string]*models.IndexToken),
		states:   make(map[int]*models.SupplyState),
		reserves: make(map[string]*models.PoolReserves),
		nextID:   1,
	}
}

func (m *MockTokenRepository) Create(token *models.IndexToken) error {
	token.ID = m.nextID
	m.nextID++
	token.CreatedAt = time.Now()
	m.tokens[token.Symbol] = token
	m.states[token.ID] = &models.SupplyState{UpdatedAt: token.CreatedAt}
	return nil
}

func (m *MockTokenRepository) GetBySymbol(symbol string) (*models.IndexToken, error) {
	if token, ok := m.tokens[symbol]; ok {
		return token, nil
	}
	return nil, repository.ErrTokenNotFound
}

func (m *MockTokenRepository) GetAll() ([]*models.IndexToken, error) {
	result := make([]*models.IndexToken, 0, len(m.tokens))
	for _, t := range m.tokens {
		result = append(result, t)
	}
	return result, nil
}

func (m *MockTokenRepository) GetSupplyState(tokenID int) (*models.SupplyState, error) {
	if m.stateErr != nil {
		return nil, m.stateErr
	}
	if state, ok := m.states[tokenID]; ok {
		copied := *state
		return &copied, nil
	}
	return nil, repository.ErrTokenNotFound
}

func (m *MockTokenRepository) ApplyCurveTrade(tokenID int, supplyDelta, raisedDelta decimal.Decimal) (*models.SupplyState, error) {
	if m.applyErr != nil {
		return nil, m.applyErr
	}
	state, ok := m.states[tokenID]
	if !ok {
		return nil, repository.ErrTokenNotFound
	}
	if state.CurrentSupply.Add(supplyDelta).IsNegative() {
		return nil, repository.ErrTokenNotFound
	}
	state.CurrentSupply = state.CurrentSupply.Add(supplyDelta)
	state.TotalRaised = state.TotalRaised.Add(raisedDelta)
	state.UpdatedAt = time.Now()
	copied := *state
	return &copied, nil
}

func (m *MockTokenRepository) SetGraduated(tokenID int, graduatedAt time.Time) error {
	for _, t := range m.tokens {
		if t.ID == tokenID {
			t.Mode = models.ModeHybrid
			t.GraduatedAt = &graduatedAt
			return nil
		}
	}
	return repository.ErrTokenNotFound
}

func (m *MockTokenRepository) SaveReserves(pair string, reserves *models.PoolReserves) error {
	copied := *reserves
	m.reserves[pair] = &copied
	return nil
}

func (m *MockTokenRepository) LoadReserves(pair string) (*models.PoolReserves, error) {
	if r, ok := m.reserves[pair]; ok {
		return r, nil
	}
	return nil, repository.ErrReservesNotFound
}

// ============ Mock OrderRepository ============

type MockOrderRepository struct {
	orders    map[string]*models.Order
	createErr error
}

func NewMockOrderRepository() *MockOrderRepository {
	return &MockOrderRepository{orders: make(map[string]*models.Order)}
}

func (m *MockOrderRepository) Create(order *models.Order) error {
	if m.createErr != nil {
		return m.createErr
	}
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	copied := *order
	m.orders[order.ID] = &copied
	return nil
}

func (m *MockOrderRepository) GetByID(id string) (*models.Order, error) {
	if order, ok := m.orders[id]; ok {
		return order, nil
	}
	return nil, repository.ErrOrderNotFound
}

func (m *MockOrderRepository) UpdateExecution(id string, filled, remaining, averagePrice decimal.Decimal, status string) error {
	order, ok := m.orders[id]
	if !ok {
		return repository.ErrOrderNotFound
	}
	order.Filled = filled
	order.Remaining = remaining
	order.AveragePrice = averagePrice
	order.Status = status
	order.UpdatedAt = time.Now()
	return nil
}

func (m *MockOrderRepository) List(filter repository.OrderFilter) ([]*models.Order, error) {
	var result []*models.Order
	for _, o := range m.orders {
		if filter.UserID != "" && o.UserID != filter.UserID {
			continue
		}
		if filter.Pair != "" && o.Pair != filter.Pair {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		result = append(result, o)
	}
	return result, nil
}

func (m *MockOrderRepository) CountByStatus(status string) (int, error) {
	count := 0
	for _, o := range m.orders {
		if o.Status == status {
			count++
		}
	}
	return count, nil
}

func (m *MockOrderRepository) DeleteOlderThan(timestamp time.Time) (int64, error) {
	return 0, nil
}

// ============ Mock FillRepository ============

type MockFillRepository struct {
	fills     []*models.Fill
	recordErr error
	nextID    int
}

func NewMockFillRepository() *MockFillRepository {
	return &MockFillRepository{nextID: 1}
}

func (m *MockFillRepository) Record(fill *models.Fill) error {
	if m.recordErr != nil {
		return m.recordErr
	}
	fill.ID = m.nextID
	m.nextID++
	fill.CreatedAt = time.Now()
	copied := *fill
	m.fills = append(m.fills, &copied)
	return nil
}

func (m *MockFillRepository) GetByOrderID(orderID string) ([]*models.Fill, error) {
	var result []*models.Fill
	for _, f := range m.fills {
		if f.OrderID == orderID {
			result = append(result, f)
		}
	}
	return result, nil
}

func (m *MockFillRepository) GetRecent(limit int) ([]*models.Fill, error) {
	if len(m.fills) <= limit {
		return m.fills, nil
	}
	return m.fills[len(m.fills)-limit:], nil
}

// ============ Mock SettlementRepository ============

type MockSettlementRepository struct {
	results map[string]*models.SettlementResult
}

func NewMockSettlementRepository() *MockSettlementRepository {
	return &MockSettlementRepository{results: make(map[string]*models.SettlementResult)}
}

func (m *MockSettlementRepository) RecordResult(result *models.SettlementResult) error {
	copied := *result
	m.results[result.ID] = &copied
	return nil
}

func (m *MockSettlementRepository) GetByID(id string) (*models.SettlementResult, error) {
	if r, ok := m.results[id]; ok {
		return r, nil
	}
	return nil, repository.ErrSettlementNotFound
}

func (m *MockSettlementRepository) GetByUser(userID string, limit int) ([]*models.SettlementResult, error) {
	var result []*models.SettlementResult
	for _, r := range m.results {
		if r.UserID == userID {
			result = append(result, r)
		}
	}
	return result, nil
}

func (m *MockSettlementRepository) DeleteOlderThan(timestamp time.Time) (int64, error) {
	return 0, nil
}

// ============ Mock Router ============

type MockRouter struct {
	pairs      map[string]engine.PoolSource
	result     *models.ExecutionResult
	execErr    error
	registered []string
}

func NewMockRouter() *MockRouter {
	return &MockRouter{pairs: make(map[string]engine.PoolSource)}
}

func (m *MockRouter) ExecuteOrder(ctx context.Context, order *models.Order) (*models.ExecutionResult, error) {
	if m.execErr != nil {
		return nil, m.execErr
	}
	result := *m.result
	result.OrderID = order.ID
	for i := range result.Fills {
		result.Fills[i].OrderID = order.ID
	}
	return &result, nil
}

func (m *MockRouter) RegisterPair(pair string, pool engine.PoolSource, book engine.LiquiditySource) {
	m.pairs[pair] = pool
	m.registered = append(m.registered, pair)
}

func (m *MockRouter) HasPair(pair string) bool {
	_, ok := m.pairs[pair]
	return ok
}

func (m *MockRouter) Pool(pair string) engine.PoolSource {
	return m.pairs[pair]
}

// ============ Mock Queue ============

type MockQueue struct {
	enqueued   []*models.SettlementRequest
	results    map[string]*models.SettlementResult
	enqueueErr error
}

func NewMockQueue() *MockQueue {
	return &MockQueue{results: make(map[string]*models.SettlementResult)}
}

func (m *MockQueue) Enqueue(ctx context.Context, req *models.SettlementRequest) error {
	if m.enqueueErr != nil {
		return m.enqueueErr
	}
	m.enqueued = append(m.enqueued, req)
	return nil
}

func (m *MockQueue) GetResult(ctx context.Context, id string) (*models.SettlementResult, error) {
	if r, ok := m.results[id]; ok {
		return r, nil
	}
	return nil, settlement.ErrResultNotFound
}

func (m *MockQueue) GetUserRequests(ctx context.Context, userID string) ([]*models.SettlementResult, error) {
	var result []*models.SettlementResult
	for _, r := range m.results {
		if r.UserID == userID {
			result = append(result, r)
		}
	}
	return result, nil
}

func (m *MockQueue) LaneDepth(ctx context.Context, lane string) (int64, error) {
	return int64(len(m.enqueued)), nil
}

// ============ Mock Broadcaster ============

type MockHub struct {
	orderUpdates      []*models.Order
	settlementUpdates []*models.SettlementResult
	graduations       []string
}

func NewMockHub() *MockHub {
	return &MockHub{}
}

func (m *MockHub) BroadcastOrderUpdate(order *models.Order) {
	m.orderUpdates = append(m.orderUpdates, order)
}

func (m *MockHub) BroadcastSettlementUpdate(result *models.SettlementResult) {
	m.settlementUpdates = append(m.settlementUpdates, result)
}

func (m *MockHub) BroadcastGraduation(symbol string, progress decimal.Decimal) {
	m.graduations = append(m.graduations, symbol)
}

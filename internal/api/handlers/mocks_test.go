package handlers

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"indexmarket/internal/models"
	"indexmarket/internal/repository"
	"indexmarket/internal/service"
)

// ErrMockDatabase общая ошибка для симуляции сбоев хранилища
var ErrMockDatabase = errors.New("mock database error")

// ============ Mock Curve Service ============

// MockCurveService мок для CurveServiceInterface
type MockCurveService struct {
	tokens map[string]*models.IndexToken
	states map[string]*service.TokenState
	quotes map[string]*models.Quote

	tradeResult *service.CurveTradeResult
	trajectory  []models.TrajectoryPoint

	createErr    error
	listErr      error
	stateErr     error
	quoteErr     error
	tradeErr     error
	graduateErr  error
	graduated    []string
	mu           sync.RWMutex
}

// NewMockCurveService создает новый мок сервиса кривой
func NewMockCurveService() *MockCurveService {
	return &MockCurveService{
		tokens: make(map[string]*models.IndexToken),
		states: make(map[string]*service.TokenState),
		quotes: make(map[string]*models.Quote),
	}
}

func (m *MockCurveService) CreateToken(token *models.IndexToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createErr != nil {
		return m.createErr
	}
	if token.Symbol == "" {
		return service.ErrInvalidToken
	}

	token.ID = len(m.tokens) + 1
	token.Mode = models.ModeCurve
	token.CreatedAt = time.Now()
	m.tokens[token.Symbol] = token
	return nil
}

func (m *MockCurveService) ListTokens() ([]*models.IndexToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.listErr != nil {
		return nil, m.listErr
	}

	result := make([]*models.IndexToken, 0, len(m.tokens))
	for _, t := range m.tokens {
		result = append(result, t)
	}
	return result, nil
}

func (m *MockCurveService) GetState(symbol string) (*service.TokenState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.stateErr != nil {
		return nil, m.stateErr
	}
	if state, ok := m.states[symbol]; ok {
		return state, nil
	}
	return nil, service.ErrTokenNotFound
}

func (m *MockCurveService) QuoteBuy(symbol string, amount decimal.Decimal) (*models.Quote, error) {
	return m.quote(symbol)
}

func (m *MockCurveService) QuoteSell(symbol string, amount decimal.Decimal) (*models.Quote, error) {
	return m.quote(symbol)
}

func (m *MockCurveService) quote(symbol string) (*models.Quote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.quoteErr != nil {
		return nil, m.quoteErr
	}
	if q, ok := m.quotes[symbol]; ok {
		return q, nil
	}
	return nil, service.ErrTokenNotFound
}

func (m *MockCurveService) Trajectory(symbol string, from, to decimal.Decimal, points int) ([]models.TrajectoryPoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.stateErr != nil {
		return nil, m.stateErr
	}
	if _, ok := m.tokens[symbol]; !ok {
		return nil, service.ErrTokenNotFound
	}
	return m.trajectory, nil
}

func (m *MockCurveService) ExecuteTrade(symbol, userID, side string, amount decimal.Decimal) (*service.CurveTradeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.tradeErr != nil {
		return nil, m.tradeErr
	}
	if _, ok := m.tokens[symbol]; !ok {
		return nil, service.ErrTokenNotFound
	}
	return m.tradeResult, nil
}

func (m *MockCurveService) ForceGraduate(symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.graduateErr != nil {
		return m.graduateErr
	}
	if _, ok := m.tokens[symbol]; !ok {
		return service.ErrTokenNotFound
	}
	m.graduated = append(m.graduated, symbol)
	return nil
}

// ============ Mock Order Service ============

// MockOrderService мок для OrderServiceInterface
type MockOrderService struct {
	orders     map[string]*service.OrderDetail
	listResult []*models.Order
	lastFilter repository.OrderFilter

	submitResult *models.ExecutionResult
	submitted    []*service.SubmitOrderRequest

	submitErr error
	listErr   error
	mu        sync.RWMutex
}

// NewMockOrderService создает новый мок сервиса ордеров
func NewMockOrderService() *MockOrderService {
	return &MockOrderService{
		orders: make(map[string]*service.OrderDetail),
	}
}

func (m *MockOrderService) SubmitOrder(ctx context.Context, req *service.SubmitOrderRequest) (*models.ExecutionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.submitErr != nil {
		return nil, m.submitErr
	}

	m.submitted = append(m.submitted, req)
	return m.submitResult, nil
}

func (m *MockOrderService) GetOrder(id string) (*service.OrderDetail, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if detail, ok := m.orders[id]; ok {
		return detail, nil
	}
	return nil, service.ErrOrderNotFound
}

func (m *MockOrderService) ListOrders(filter repository.OrderFilter) ([]*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.listErr != nil {
		return nil, m.listErr
	}

	m.lastFilter = filter
	if m.listResult == nil {
		return []*models.Order{}, nil
	}
	return m.listResult, nil
}

// ============ Mock Settlement Service ============

// MockSettlementService мок для SettlementServiceInterface
type MockSettlementService struct {
	results map[string]*models.SettlementResult
	byUser  map[string][]*models.SettlementResult
	depths  map[string]int64

	getErr    error
	userErr   error
	depthsErr error
	mu        sync.RWMutex
}

// NewMockSettlementService создает новый мок статусного сервиса сеттлмента
func NewMockSettlementService() *MockSettlementService {
	return &MockSettlementService{
		results: make(map[string]*models.SettlementResult),
		byUser:  make(map[string][]*models.SettlementResult),
		depths:  make(map[string]int64),
	}
}

func (m *MockSettlementService) GetResult(ctx context.Context, id string) (*models.SettlementResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.getErr != nil {
		return nil, m.getErr
	}
	if result, ok := m.results[id]; ok {
		return result, nil
	}
	return nil, service.ErrSettlementNotFound
}

func (m *MockSettlementService) GetUserSettlements(ctx context.Context, userID string, limit int) ([]*models.SettlementResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.userErr != nil {
		return nil, m.userErr
	}

	results := m.byUser[userID]
	if results == nil {
		return []*models.SettlementResult{}, nil
	}
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (m *MockSettlementService) LaneDepths(ctx context.Context) (map[string]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.depthsErr != nil {
		return nil, m.depthsErr
	}
	return m.depths, nil
}

// Проверяем, что моки реализуют интерфейсы сервисов
var _ service.CurveServiceInterface = (*MockCurveService)(nil)
var _ service.OrderServiceInterface = (*MockOrderService)(nil)
var _ service.SettlementServiceInterface = (*MockSettlementService)(nil)

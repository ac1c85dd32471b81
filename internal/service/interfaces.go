package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"indexmarket/internal/engine"
	"indexmarket/internal/models"
	"indexmarket/internal/repository"
)

// TokenRepositoryInterface определяет интерфейс репозитория токенов
type TokenRepositoryInterface interface {
	Create(token *models.IndexToken) error
	GetBySymbol(symbol string) (*models.IndexToken, error)
	GetAll() ([]*models.IndexToken, error)
	GetSupplyState(tokenID int) (*models.SupplyState, error)
	ApplyCurveTrade(tokenID int, supplyDelta, raisedDelta decimal.Decimal) (*models.SupplyState, error)
	SetGraduated(tokenID int, graduatedAt time.Time) error
	SaveReserves(pair string, reserves *models.PoolReserves) error
	LoadReserves(pair string) (*models.PoolReserves, error)
}

// OrderRepositoryInterface определяет интерфейс репозитория ордеров
type OrderRepositoryInterface interface {
	Create(order *models.Order) error
	GetByID(id string) (*models.Order, error)
	UpdateExecution(id string, filled, remaining, averagePrice decimal.Decimal, status string) error
	List(filter repository.OrderFilter) ([]*models.Order, error)
	CountByStatus(status string) (int, error)
	DeleteOlderThan(timestamp time.Time) (int64, error)
}

// FillRepositoryInterface определяет интерфейс леджера филлов
type FillRepositoryInterface interface {
	Record(fill *models.Fill) error
	GetByOrderID(orderID string) ([]*models.Fill, error)
	GetRecent(limit int) ([]*models.Fill, error)
}

// SettlementRepositoryInterface определяет интерфейс зеркала сеттлментов
type SettlementRepositoryInterface interface {
	RecordResult(result *models.SettlementResult) error
	GetByID(id string) (*models.SettlementResult, error)
	GetByUser(userID string, limit int) ([]*models.SettlementResult, error)
	DeleteOlderThan(timestamp time.Time) (int64, error)
}

// Проверяем, что реальные репозитории реализуют интерфейсы
var _ TokenRepositoryInterface = (*repository.TokenRepository)(nil)
var _ OrderRepositoryInterface = (*repository.OrderRepository)(nil)
var _ FillRepositoryInterface = (*repository.FillRepository)(nil)
var _ SettlementRepositoryInterface = (*repository.SettlementRepository)(nil)

// ============ Интерфейсы коллабораторов ============

// OrderRouter - гибридное исполнение ордеров (пул + стакан)
type OrderRouter interface {
	ExecuteOrder(ctx context.Context, order *models.Order) (*models.ExecutionResult, error)
	RegisterPair(pair string, pool engine.PoolSource, book engine.LiquiditySource)
	HasPair(pair string) bool
	Pool(pair string) engine.PoolSource
}

var _ OrderRouter = (*engine.Router)(nil)

// SettlementEnqueuer - постановка запросов в очередь финализации
type SettlementEnqueuer interface {
	Enqueue(ctx context.Context, req *models.SettlementRequest) error
}

// SettlementStore - статусные запросы к активной очереди
type SettlementStore interface {
	GetResult(ctx context.Context, id string) (*models.SettlementResult, error)
	GetUserRequests(ctx context.Context, userID string) ([]*models.SettlementResult, error)
	LaneDepth(ctx context.Context, lane string) (int64, error)
}

// Broadcaster - push-уведомления подписчикам (websocket hub)
type Broadcaster interface {
	BroadcastOrderUpdate(order *models.Order)
	BroadcastSettlementUpdate(result *models.SettlementResult)
	BroadcastGraduation(symbol string, progress decimal.Decimal)
}

// ============ Интерфейсы сервисов для HTTP-слоя ============

// CurveServiceInterface определяет интерфейс сервиса бондинг-кривой
type CurveServiceInterface interface {
	CreateToken(token *models.IndexToken) error
	ListTokens() ([]*models.IndexToken, error)
	GetState(symbol string) (*TokenState, error)
	QuoteBuy(symbol string, amount decimal.Decimal) (*models.Quote, error)
	QuoteSell(symbol string, amount decimal.Decimal) (*models.Quote, error)
	Trajectory(symbol string, from, to decimal.Decimal, points int) ([]models.TrajectoryPoint, error)
	ExecuteTrade(symbol, userID, side string, amount decimal.Decimal) (*CurveTradeResult, error)
	ForceGraduate(symbol string) error
}

// OrderServiceInterface определяет интерфейс сервиса гибридных ордеров
type OrderServiceInterface interface {
	SubmitOrder(ctx context.Context, req *SubmitOrderRequest) (*models.ExecutionResult, error)
	GetOrder(id string) (*OrderDetail, error)
	ListOrders(filter repository.OrderFilter) ([]*models.Order, error)
}

// SettlementServiceInterface определяет интерфейс статусных запросов сеттлмента
type SettlementServiceInterface interface {
	GetResult(ctx context.Context, id string) (*models.SettlementResult, error)
	GetUserSettlements(ctx context.Context, userID string, limit int) ([]*models.SettlementResult, error)
	LaneDepths(ctx context.Context) (map[string]int64, error)
}

var _ CurveServiceInterface = (*CurveService)(nil)
var _ OrderServiceInterface = (*OrderService)(nil)
var _ SettlementServiceInterface = (*SettlementService)(nil)

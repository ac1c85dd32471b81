package service

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"indexmarket/internal/engine"
	"indexmarket/internal/models"
	"indexmarket/internal/repository"
)

// Ошибки сервиса ордеров
var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrTokenNotGraduated = errors.New("token still in curve mode, trade through curve endpoint")
	ErrInvalidPriority   = errors.New("unknown settlement priority")
)

// OrderService предоставляет бизнес-логику гибридного исполнения ордеров.
//
// Отвечает за:
// - Валидацию и сабмит ордеров в роутер
// - Персистенцию ордера и его филлов
// - Постановку сеттлмент-запросов (по одному на филл)
// - Историю ордеров с фильтрацией и пагинацией
type OrderService struct {
	orderRepo OrderRepositoryInterface
	fillRepo  FillRepositoryInterface
	tokenRepo TokenRepositoryInterface
	router    OrderRouter
	queue     SettlementEnqueuer
	hub       Broadcaster

	maxRetries int // лимит ретраев сеттлмента на запрос
}

// NewOrderService создает новый экземпляр OrderService
func NewOrderService(
	orderRepo OrderRepositoryInterface,
	fillRepo FillRepositoryInterface,
	tokenRepo TokenRepositoryInterface,
	router OrderRouter,
	queue SettlementEnqueuer,
	hub Broadcaster,
	maxRetries int,
) *OrderService {
	return &OrderService{
		orderRepo:  orderRepo,
		fillRepo:   fillRepo,
		tokenRepo:  tokenRepo,
		router:     router,
		queue:      queue,
		hub:        hub,
		maxRetries: maxRetries,
	}
}

// SubmitOrderRequest - запрос на сабмит ордера
type SubmitOrderRequest struct {
	UserID     string           `json:"user_id"`
	Pair       string           `json:"pair"`
	Side       string           `json:"side"`
	Type       string           `json:"type"`
	Amount     decimal.Decimal  `json:"amount"`
	LimitPrice *decimal.Decimal `json:"limit_price,omitempty"`
	Priority   string           `json:"priority,omitempty"` // лейн сеттлмента, по умолчанию normal
}

// SubmitOrder исполняет ордер через гибридный роутер.
//
// Частичное исполнение - успех: статус ордера отражает остаток,
// ошибка возвращается только когда не исполнено ничего.
func (s *OrderService) SubmitOrder(ctx context.Context, req *SubmitOrderRequest) (*models.ExecutionResult, error) {
	priority := req.Priority
	if priority == "" {
		priority = models.PriorityNormal
	}
	if !validLane(priority) {
		return nil, ErrInvalidPriority
	}

	token, err := s.tokenRepo.GetBySymbol(req.Pair)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	if token.Mode != models.ModeHybrid {
		return nil, ErrTokenNotGraduated
	}

	order := &models.Order{
		ID:         uuid.NewString(),
		UserID:     req.UserID,
		Pair:       req.Pair,
		Side:       req.Side,
		Type:       req.Type,
		Amount:     req.Amount,
		LimitPrice: req.LimitPrice,
		Remaining:  req.Amount,
		Status:     models.OrderStatusNew,
	}

	if err := s.orderRepo.Create(order); err != nil {
		return nil, err
	}

	result, err := s.router.ExecuteOrder(ctx, order)
	if err != nil {
		// Отказ до исполнения: лимит пересечен, пара не найдена, валидация
		order.Status = models.OrderStatusRejected
		if updErr := s.orderRepo.UpdateExecution(order.ID, decimal.Zero, order.Amount, decimal.Zero, order.Status); updErr != nil {
			log.Printf("[orders] %s reject not persisted: %v", order.ID, updErr)
		}
		engine.OrdersTotal.WithLabelValues(order.Side, "rejected").Inc()
		return nil, err
	}

	order.Filled = result.Filled
	order.Remaining = result.Remaining
	order.AveragePrice = result.AveragePrice
	order.Status = executionStatus(result)

	if err := s.orderRepo.UpdateExecution(order.ID, order.Filled, order.Remaining, order.AveragePrice, order.Status); err != nil {
		log.Printf("[orders] %s execution not persisted: %v", order.ID, err)
	}

	// Каждый филл получает свой сеттлмент-запрос и уходит в очередь
	for i := range result.Fills {
		fill := &result.Fills[i]
		fill.SettlementRef = uuid.NewString()

		if err := s.fillRepo.Record(fill); err != nil {
			log.Printf("[orders] %s fill not recorded: %v", order.ID, err)
		}

		sreq := &models.SettlementRequest{
			ID:             fill.SettlementRef,
			OrderID:        order.ID,
			UserID:         order.UserID,
			Priority:       priority,
			Amount:         fill.Amount,
			EstimatedPrice: fill.Price,
			MaxRetries:     s.maxRetries,
		}
		if err := s.queue.Enqueue(ctx, sreq); err != nil {
			log.Printf("[orders] %s settlement enqueue failed for fill %d: %v", order.ID, fill.ID, err)
		}
	}

	// Снимок резервов пула после исполнения - для восстановления при рестарте
	if pool := s.router.Pool(order.Pair); pool != nil {
		reserves := pool.Reserves()
		if err := s.tokenRepo.SaveReserves(order.Pair, &reserves); err != nil {
			log.Printf("[orders] %s reserves not persisted: %v", order.Pair, err)
		}
	}

	engine.OrdersTotal.WithLabelValues(order.Side, order.Status).Inc()
	if s.hub != nil {
		s.hub.BroadcastOrderUpdate(order)
	}

	return result, nil
}

// OrderDetail - ордер вместе с его филлами
type OrderDetail struct {
	Order *models.Order  `json:"order"`
	Fills []*models.Fill `json:"fills"`
}

// GetOrder возвращает ордер и его филлы
func (s *OrderService) GetOrder(id string) (*OrderDetail, error) {
	order, err := s.orderRepo.GetByID(id)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	fills, err := s.fillRepo.GetByOrderID(id)
	if err != nil {
		return nil, err
	}
	if fills == nil {
		fills = []*models.Fill{}
	}

	return &OrderDetail{Order: order, Fills: fills}, nil
}

// ListOrders возвращает историю ордеров с фильтрацией
func (s *OrderService) ListOrders(filter repository.OrderFilter) ([]*models.Order, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}

	orders, err := s.orderRepo.List(filter)
	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []*models.Order{}
	}

	return orders, nil
}

// executionStatus выводит статус ордера из результата роутинга
func executionStatus(result *models.ExecutionResult) string {
	switch {
	case result.Remaining.IsZero():
		return models.OrderStatusFilled
	case result.Filled.IsPositive():
		return models.OrderStatusPartiallyFilled
	default:
		// Ликвидность исчерпана до первого филла
		return models.OrderStatusCancelled
	}
}

func validLane(priority string) bool {
	for _, lane := range models.PriorityLanes {
		if lane == priority {
			return true
		}
	}
	return false
}

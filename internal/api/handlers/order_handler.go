package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"indexmarket/internal/engine"
	"indexmarket/internal/repository"
	"indexmarket/internal/service"
)

// OrderHandler отвечает за гибридное исполнение ордеров
//
// Endpoints:
// - POST /api/v1/orders      - сабмит ордера в гибридный роутер
// - GET /api/v1/orders       - история ордеров с фильтрацией
// - GET /api/v1/orders/{id}  - ордер с его филлами
type OrderHandler struct {
	orderService service.OrderServiceInterface
}

// NewOrderHandler создает новый OrderHandler с внедрением зависимостей
func NewOrderHandler(orderService service.OrderServiceInterface) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
	}
}

// CreateOrderRequest структура запроса на сабмит ордера
type CreateOrderRequest struct {
	UserID     string           `json:"user_id"`
	Pair       string           `json:"pair"`                  // IDX1USDC
	Side       string           `json:"side"`                  // buy | sell
	Type       string           `json:"type"`                  // market | limit
	Amount     decimal.Decimal  `json:"amount"`                // в базовых токенах
	LimitPrice *decimal.Decimal `json:"limit_price,omitempty"` // обязателен для limit
	Priority   string           `json:"priority,omitempty"`    // лейн сеттлмента (default: normal)
}

// CreateOrder исполняет ордер через гибридный роутер
// POST /api/v1/orders
//
// Request Body:
//
//	{
//	  "user_id": "user-1",
//	  "pair": "IDX1USDC",
//	  "side": "buy",
//	  "type": "limit",
//	  "amount": "1000",
//	  "limit_price": "0.95",
//	  "priority": "high"
//	}
//
// Response:
// - 201 Created: результат исполнения с филлами и статистикой
// - 400 Bad Request: невалидные параметры
// - 404 Not Found: пара не найдена
// - 409 Conflict: токен еще в curve-режиме
// - 422 Unprocessable Entity: лимит-цена уже пересечена рынком
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	if h.orderService == nil {
		respondWithError(w, http.StatusInternalServerError, "service_unavailable", "Order service is not available", "")
		return
	}

	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return
	}

	if req.UserID == "" {
		respondWithError(w, http.StatusBadRequest, "missing_user_id", "user_id is required", "")
		return
	}
	if req.Pair == "" {
		respondWithError(w, http.StatusBadRequest, "missing_pair", "pair is required", "")
		return
	}

	result, err := h.orderService.SubmitOrder(r.Context(), &service.SubmitOrderRequest{
		UserID:     req.UserID,
		Pair:       req.Pair,
		Side:       req.Side,
		Type:       req.Type,
		Amount:     req.Amount,
		LimitPrice: req.LimitPrice,
		Priority:   req.Priority,
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, result)
}

// GetOrders возвращает историю ордеров
// GET /api/v1/orders
//
// Query Parameters:
// - user_id: фильтр по пользователю
// - pair: фильтр по паре
// - status: фильтр по статусу (new, filled, partially_filled, cancelled, rejected)
// - limit: максимум записей (default: 100, max: 500)
// - offset: смещение для пагинации
//
// Response:
// - 200 OK: массив ордеров
func (h *OrderHandler) GetOrders(w http.ResponseWriter, r *http.Request) {
	if h.orderService == nil {
		respondWithError(w, http.StatusInternalServerError, "service_unavailable", "Order service is not available", "")
		return
	}

	query := r.URL.Query()

	filter := repository.OrderFilter{
		UserID: query.Get("user_id"),
		Pair:   query.Get("pair"),
		Status: query.Get("status"),
	}

	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			respondWithError(w, http.StatusBadRequest, "invalid_limit", "Limit must be a non-negative integer", "")
			return
		}
		filter.Limit = limit
	}

	if raw := query.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			respondWithError(w, http.StatusBadRequest, "invalid_offset", "Offset must be a non-negative integer", "")
			return
		}
		filter.Offset = offset
	}

	orders, err := h.orderService.ListOrders(filter)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "internal_error", "Failed to list orders", err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, orders)
}

// GetOrder возвращает ордер вместе с его филлами
// GET /api/v1/orders/{id}
//
// Response:
// - 200 OK: ордер и массив филлов
// - 404 Not Found: ордер не найден
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	if h.orderService == nil {
		respondWithError(w, http.StatusInternalServerError, "service_unavailable", "Order service is not available", "")
		return
	}

	id := mux.Vars(r)["id"]

	detail, err := h.orderService.GetOrder(id)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, detail)
}

// handleServiceError обрабатывает ошибки от сервиса ордеров и возвращает соответствующий HTTP статус
func (h *OrderHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrOrderNotFound):
		respondWithError(w, http.StatusNotFound, "order_not_found", "Order not found", "")

	case errors.Is(err, service.ErrTokenNotFound):
		respondWithError(w, http.StatusNotFound, "token_not_found", "Token not found", "")

	case errors.Is(err, service.ErrTokenNotGraduated):
		respondWithError(w, http.StatusConflict, "token_not_graduated", "Token still in curve mode, trade through the curve endpoint", "")

	case errors.Is(err, service.ErrInvalidPriority):
		respondWithError(w, http.StatusBadRequest, "invalid_priority", "Priority must be one of: urgent, high, normal, low", "")

	case errors.Is(err, engine.ErrPairNotRegistered):
		respondWithError(w, http.StatusNotFound, "pair_not_registered", "Pair is not registered for hybrid execution", "")

	case errors.Is(err, engine.ErrInvalidOrder):
		respondWithError(w, http.StatusBadRequest, "invalid_order", "Invalid order parameters", "")

	case errors.Is(err, engine.ErrLimitCrossed):
		respondWithError(w, http.StatusUnprocessableEntity, "limit_crossed", "Limit price already crossed by best available price", "")

	default:
		respondWithError(w, http.StatusInternalServerError, "internal_error", "Internal server error", err.Error())
	}
}

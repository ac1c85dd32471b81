package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"indexmarket/internal/api/handlers"
	"indexmarket/internal/api/middleware"
	"indexmarket/internal/service"
	"indexmarket/internal/websocket"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	CurveService      service.CurveServiceInterface
	OrderService      service.OrderServiceInterface
	SettlementService service.SettlementServiceInterface
	Hub               *websocket.Hub

	// AdminKeyHash - bcrypt-хеш ключа для административных операций.
	// Пустое значение открывает admin-endpoints только в development.
	AdminKeyHash string
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Структура маршрутов:
//
// /api/v1/
//
//	├── /tokens/
//	│   ├── GET / - список индексных токенов
//	│   ├── POST / - листинг нового токена (admin)
//	│   ├── GET /{symbol} - состояние токена
//	│   ├── GET /{symbol}/quote - котировка по кривой
//	│   ├── GET /{symbol}/trajectory - симуляция цены
//	│   ├── POST /{symbol}/trade - сделка против кривой
//	│   └── POST /{symbol}/graduate - принудительная градуация (admin)
//	├── /orders/
//	│   ├── POST / - сабмит ордера в гибридный роутер
//	│   ├── GET / - история ордеров
//	│   └── GET /{id} - ордер с филлами
//	└── /settlements/
//	    ├── GET /lanes - глубина приоритетных лейнов
//	    ├── GET /{id} - статус сеттлмента
//	    └── GET / - сеттлменты пользователя
//
// /ws/
//
//	└── /stream - WebSocket для real-time обновлений
//
// /metrics - Prometheus метрики
// /health - проверка живости
//
// Middleware применяется в следующем порядке:
// 1. Recovery (для всех маршрутов)
// 2. Logging (для всех маршрутов)
// 3. CORS (для всех маршрутов)
// 4. AdminAuth (только для административных маршрутов)
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	// Глобальные middleware (применяются ко всем маршрутам)
	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)
	router.Use(middleware.CORS)

	// Создание handlers с внедрением зависимостей
	var tokenHandler *handlers.TokenHandler
	if deps != nil && deps.CurveService != nil {
		tokenHandler = handlers.NewTokenHandler(deps.CurveService)
	}

	var orderHandler *handlers.OrderHandler
	if deps != nil && deps.OrderService != nil {
		orderHandler = handlers.NewOrderHandler(deps.OrderService)
	}

	var settlementHandler *handlers.SettlementHandler
	if deps != nil && deps.SettlementService != nil {
		settlementHandler = handlers.NewSettlementHandler(deps.SettlementService)
	}

	// API v1 routes
	api := router.PathPrefix("/api/v1").Subrouter()

	// Административные операции защищены отдельным subrouter
	var adminKeyHash string
	if deps != nil {
		adminKeyHash = deps.AdminKeyHash
	}
	admin := router.PathPrefix("/api/v1").Subrouter()
	admin.Use(middleware.AdminAuth(adminKeyHash))

	// Token routes
	if tokenHandler != nil {
		api.HandleFunc("/tokens", tokenHandler.GetTokens).Methods("GET")
		api.HandleFunc("/tokens/{symbol}", tokenHandler.GetToken).Methods("GET")
		api.HandleFunc("/tokens/{symbol}/quote", tokenHandler.GetQuote).Methods("GET")
		api.HandleFunc("/tokens/{symbol}/trajectory", tokenHandler.GetTrajectory).Methods("GET")
		api.HandleFunc("/tokens/{symbol}/trade", tokenHandler.Trade).Methods("POST")

		admin.HandleFunc("/tokens", tokenHandler.CreateToken).Methods("POST")
		admin.HandleFunc("/tokens/{symbol}/graduate", tokenHandler.Graduate).Methods("POST")
	}

	// Order routes
	if orderHandler != nil {
		api.HandleFunc("/orders", orderHandler.CreateOrder).Methods("POST")
		api.HandleFunc("/orders", orderHandler.GetOrders).Methods("GET")
		api.HandleFunc("/orders/{id}", orderHandler.GetOrder).Methods("GET")
	}

	// Settlement routes
	// /lanes регистрируется раньше /{id}, иначе mux сматчит "lanes" как id
	if settlementHandler != nil {
		api.HandleFunc("/settlements/lanes", settlementHandler.GetLaneDepths).Methods("GET")
		api.HandleFunc("/settlements/{id}", settlementHandler.GetSettlement).Methods("GET")
		api.HandleFunc("/settlements", settlementHandler.GetSettlements).Methods("GET")
	}

	// WebSocket route
	if deps != nil && deps.Hub != nil {
		hub := deps.Hub
		router.HandleFunc("/ws/stream", func(w http.ResponseWriter, r *http.Request) {
			websocket.ServeWS(hub, w, r)
		})
	}

	// Prometheus метрики
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	return router
}

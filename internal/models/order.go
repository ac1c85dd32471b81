package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Стороны и типы ордеров
const (
	SideBuy  = "buy"
	SideSell = "sell"

	TypeMarket = "market"
	TypeLimit  = "limit"
)

// Статусы ордера
const (
	OrderStatusNew             = "new"
	OrderStatusFilled          = "filled"
	OrderStatusPartiallyFilled = "partially_filled"
	OrderStatusRejected        = "rejected"
	OrderStatusCancelled       = "cancelled"
)

// Источники ликвидности
const (
	SourcePool      = "pool"
	SourceOrderbook = "orderbook"
	SourceCurve     = "curve"
)

// Order представляет клиентский ордер
// Инвариант: Filled + Remaining == Amount в любой момент времени
type Order struct {
	ID           string           `json:"id" db:"id"` // UUID
	UserID       string           `json:"user_id" db:"user_id"`
	Pair         string           `json:"pair" db:"pair"` // IDX1USDC
	Side         string           `json:"side" db:"side"` // buy | sell
	Type         string           `json:"type" db:"type"` // market | limit
	Amount       decimal.Decimal  `json:"amount" db:"amount"`
	LimitPrice   *decimal.Decimal `json:"limit_price,omitempty" db:"limit_price"`
	Filled       decimal.Decimal  `json:"filled" db:"filled"`
	Remaining    decimal.Decimal  `json:"remaining" db:"remaining"`
	AveragePrice decimal.Decimal  `json:"average_price" db:"average_price"`
	Status       string           `json:"status" db:"status"`
	CreatedAt    time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at" db:"updated_at"`
}

// IsTerminal возвращает true для конечных статусов (ордер архивируется)
func (o *Order) IsTerminal() bool {
	return o.Status == OrderStatusFilled ||
		o.Status == OrderStatusRejected ||
		o.Status == OrderStatusCancelled
}

// Chunk - результат одного решения роутера
// Инвариант: сумма Chunk.Amount по ордеру == Order.Filled
type Chunk struct {
	Source      string          `json:"source"` // pool | orderbook
	Amount      decimal.Decimal `json:"amount"`
	Price       decimal.Decimal `json:"price"`
	PriceImpact decimal.Decimal `json:"price_impact"`
}

// Fill - исполненный чанк, попадает в append-only леджер
// Для пула фиксируются резервы до/после (реконструкция исполнения при спорах)
type Fill struct {
	ID             int             `json:"id" db:"id"`
	OrderID        string          `json:"order_id" db:"order_id"`
	Amount         decimal.Decimal `json:"amount" db:"amount"`
	Price          decimal.Decimal `json:"price" db:"price"`
	Source         string          `json:"source" db:"source"` // pool | orderbook | curve
	PriceImpact    decimal.Decimal `json:"price_impact" db:"price_impact"`
	SettlementRef  string          `json:"settlement_ref,omitempty" db:"settlement_ref"`
	ReservesBefore *PoolReserves   `json:"reserves_before,omitempty"`
	ReservesAfter  *PoolReserves   `json:"reserves_after,omitempty"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// PoolReserves - снимок резервов constant-product пула
type PoolReserves struct {
	Base  decimal.Decimal `json:"base"`
	Quote decimal.Decimal `json:"quote"`
}

// ExecutionStats - статистика исполнения одного ордера
type ExecutionStats struct {
	TotalChunks     int             `json:"total_chunks"`
	PoolChunks      int             `json:"pool_chunks"`
	OrderbookChunks int             `json:"orderbook_chunks"`
	Iterations      int             `json:"iterations"`
	ExecutionTime   time.Duration   `json:"execution_time_ns"`
	AvgPriceImpact  decimal.Decimal `json:"avg_price_impact"`
}

// ExecutionResult - полный ответ на сабмит ордера
// Содержит достаточно деталей для полной реконструкции исполнения (аудит)
type ExecutionResult struct {
	OrderID      string          `json:"order_id"`
	Filled       decimal.Decimal `json:"filled"`
	Remaining    decimal.Decimal `json:"remaining"`
	AveragePrice decimal.Decimal `json:"average_price"`
	Fills        []Fill          `json:"fills"`
	Stats        ExecutionStats  `json:"execution_stats"`
	Degraded     bool            `json:"degraded,omitempty"` // один из источников отвалился по ходу
}

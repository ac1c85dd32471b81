package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Приоритетные лейны очереди сеттлмента (в порядке убывания приоритета)
const (
	PriorityUrgent = "urgent"
	PriorityHigh   = "high"
	PriorityNormal = "normal"
	PriorityLow    = "low"
)

// PriorityLanes - лейны в порядке обхода при диспетчеризации
var PriorityLanes = []string{PriorityUrgent, PriorityHigh, PriorityNormal, PriorityLow}

// Статусы сеттлмента
// Переходы только вперёд: pending → processing → {completed, failed}
// Повторная попытка создаётся под ТЕМ ЖЕ id запроса (клиентский polling не ломается)
const (
	SettlementPending    = "pending"
	SettlementProcessing = "processing"
	SettlementCompleted  = "completed"
	SettlementFailed     = "failed"
)

// SettlementRequest - запрос на финализацию филла в леджере
// Инвариант: RetryCount <= MaxRetries
type SettlementRequest struct {
	ID             string          `json:"id"` // UUID, стабилен между ретраями
	OrderID        string          `json:"order_id"`
	UserID         string          `json:"user_id"`
	Priority       string          `json:"priority"`
	Amount         decimal.Decimal `json:"amount"`
	EstimatedPrice decimal.Decimal `json:"estimated_price"`
	RetryCount     int             `json:"retry_count"`
	MaxRetries     int             `json:"max_retries"`
	Timestamp      time.Time       `json:"timestamp"`
}

// SettlementResult - текущий статус запроса
// Появляется как pending сразу при постановке в очередь, чтобы
// статусные запросы никогда не возвращали "not found" после сабмита
type SettlementResult struct {
	ID              string        `json:"id" db:"id"`
	OrderID         string        `json:"order_id" db:"order_id"`
	UserID          string        `json:"user_id" db:"user_id"`
	Status          string        `json:"status" db:"status"`
	ConfirmationRef string        `json:"confirmation_ref,omitempty" db:"confirmation_ref"`
	Error           string        `json:"error,omitempty" db:"error"`
	Attempts        int           `json:"attempts" db:"attempts"`
	ExecutionTime   time.Duration `json:"execution_time_ns" db:"execution_time"`
	UpdatedAt       time.Time     `json:"updated_at" db:"updated_at"`
}

// IsTerminal возвращает true для конечных статусов
func (r *SettlementResult) IsTerminal() bool {
	return r.Status == SettlementCompleted || r.Status == SettlementFailed
}

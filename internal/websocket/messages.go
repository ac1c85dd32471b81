package websocket

import (
	"time"

	"github.com/shopspring/decimal"

	"indexmarket/internal/models"
)

// MessageType определяет тип WebSocket сообщения
type MessageType string

// Типы WebSocket сообщений
const (
	// MessageTypeOrderUpdate - терминальное состояние ордера после роутинга
	MessageTypeOrderUpdate MessageType = "orderUpdate"

	// MessageTypeSettlementUpdate - переход статуса сеттлмент-запроса
	// Отправляется при каждом переходе: processing, completed, failed
	MessageTypeSettlementUpdate MessageType = "settlementUpdate"

	// MessageTypeGraduation - токен пересек порог и переключился в hybrid
	// Одноразовое событие на токен
	MessageTypeGraduation MessageType = "graduation"
)

// BaseMessage - базовая структура для всех WebSocket сообщений
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// OrderUpdateMessage - сообщение о состоянии ордера
//
// Содержит итог роутинга: filled/remaining, среднюю цену и статус.
// Клиент получает его сразу после исполнения, не дожидаясь сеттлмента.
type OrderUpdateMessage struct {
	BaseMessage
	Data *models.Order `json:"data"`
}

// SettlementUpdateMessage - сообщение о переходе статуса сеттлмента
type SettlementUpdateMessage struct {
	BaseMessage
	Data *models.SettlementResult `json:"data"`
}

// GraduationMessage - сообщение о градуации токена
type GraduationMessage struct {
	BaseMessage
	Symbol   string          `json:"symbol"`
	Progress decimal.Decimal `json:"progress"`
}

// ============ Фабричные функции для создания сообщений ============

// NewOrderUpdateMessage создает сообщение о состоянии ордера
func NewOrderUpdateMessage(order *models.Order) *OrderUpdateMessage {
	return &OrderUpdateMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeOrderUpdate,
			Timestamp: time.Now(),
		},
		Data: order,
	}
}

// NewSettlementUpdateMessage создает сообщение о статусе сеттлмента
func NewSettlementUpdateMessage(result *models.SettlementResult) *SettlementUpdateMessage {
	return &SettlementUpdateMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeSettlementUpdate,
			Timestamp: time.Now(),
		},
		Data: result,
	}
}

// NewGraduationMessage создает сообщение о градуации
func NewGraduationMessage(symbol string, progress decimal.Decimal) *GraduationMessage {
	return &GraduationMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeGraduation,
			Timestamp: time.Now(),
		},
		Symbol:   symbol,
		Progress: progress,
	}
}

package settlement

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"indexmarket/internal/models"
)

// Executor - коллаборатор записи в леджер.
//
// Контракт: Execute либо возвращает подтверждение финализации, либо
// ошибку; очередь сама решает, ретраить или фиксировать терминальный
// отказ. Продакшн-реализация (подпись/broadcast транзакций) вне скоупа
// и подставляется через этот интерфейс.
type Executor interface {
	Execute(ctx context.Context, req *models.SettlementRequest) (confirmationRef string, err error)
}

// SimulatedExecutor - симуляция исполнителя для локальной разработки
// и нагрузочных прогонов. Его success rate и задержки НЕ отражают
// характеристики продакшн-леджера.
type SimulatedExecutor struct {
	successRate float64 // 0..1
	minLatency  time.Duration
	maxLatency  time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulatedExecutor создаёт симулятор
func NewSimulatedExecutor(successRate float64, minLatency, maxLatency time.Duration) *SimulatedExecutor {
	return &SimulatedExecutor{
		successRate: successRate,
		minLatency:  minLatency,
		maxLatency:  maxLatency,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Execute имитирует запись в леджер со случайной задержкой и исходом
func (e *SimulatedExecutor) Execute(ctx context.Context, req *models.SettlementRequest) (string, error) {
	e.mu.Lock()
	delay := e.minLatency
	if e.maxLatency > e.minLatency {
		delay += time.Duration(e.rng.Int63n(int64(e.maxLatency - e.minLatency)))
	}
	success := e.rng.Float64() < e.successRate
	e.mu.Unlock()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(delay):
	}

	if !success {
		return "", ErrLedgerWriteFailed
	}
	return uuid.NewString(), nil
}

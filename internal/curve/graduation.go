package curve

import (
	"log"
	"sync"

	"github.com/shopspring/decimal"

	"indexmarket/internal/models"
)

// GraduationEvaluator отслеживает прогресс токенов к градуации.
//
// После каждой сделки против кривой сервисный слой вызывает Evaluate.
// Порог достигнут, когда progress >= 1.0 ИЛИ totalRaised >= targetMarketCap.
// Событие graduate одноразовое: повторная оценка уже градуировавшего
// токена - логируемый no-op, не ошибка.
type GraduationEvaluator struct {
	mu        sync.Mutex
	graduated map[string]bool

	// onGraduate вызывается ровно один раз на токен, под мьютексом оценки.
	// Сервисный слой персистит смену режима и рассылает событие.
	onGraduate func(symbol string, progress decimal.Decimal)
}

// NewGraduationEvaluator создаёт оценщик с колбэком градуации
func NewGraduationEvaluator(onGraduate func(symbol string, progress decimal.Decimal)) *GraduationEvaluator {
	return &GraduationEvaluator{
		graduated:  make(map[string]bool),
		onGraduate: onGraduate,
	}
}

// MarkGraduated восстанавливает флаг при старте процесса (из БД),
// чтобы рестарт не вызвал повторное событие
func (e *GraduationEvaluator) MarkGraduated(symbol string) {
	e.mu.Lock()
	e.graduated[symbol] = true
	e.mu.Unlock()
}

// Evaluate вычисляет прогресс и при первом достижении порога
// переключает токен в hybrid режим через onGraduate
func (e *GraduationEvaluator) Evaluate(token *models.IndexToken, state models.SupplyState) models.GraduationProgress {
	progress := decimal.Zero
	if token.Curve.GraduationThresholdSupply.IsPositive() {
		progress = state.CurrentSupply.Div(token.Curve.GraduationThresholdSupply)
	}

	reached := progress.GreaterThanOrEqual(decimal.NewFromInt(1)) ||
		(token.Curve.TargetMarketCap.IsPositive() &&
			state.TotalRaised.GreaterThanOrEqual(token.Curve.TargetMarketCap))

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.graduated[token.Symbol] {
		if reached {
			log.Printf("[graduation] %s already graduated, evaluation is a no-op", token.Symbol)
		}
		return models.GraduationProgress{Symbol: token.Symbol, Progress: progress, Graduated: true}
	}

	if !reached {
		return models.GraduationProgress{Symbol: token.Symbol, Progress: progress}
	}

	e.graduated[token.Symbol] = true
	log.Printf("[graduation] %s reached threshold (progress=%s raised=%s), switching to hybrid",
		token.Symbol, progress.String(), state.TotalRaised.String())

	if e.onGraduate != nil {
		e.onGraduate(token.Symbol, progress)
	}

	return models.GraduationProgress{
		Symbol:     token.Symbol,
		Progress:   progress,
		Graduated:  true,
		ShouldFire: true,
	}
}

// IsGraduated возвращает текущий флаг (для сервисного слоя)
func (e *GraduationEvaluator) IsGraduated(symbol string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.graduated[symbol]
}

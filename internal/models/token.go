package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Режимы исполнения индексного токена
const (
	ModeCurve  = "curve"  // ранняя стадия: цена по кривой выпуска
	ModeHybrid = "hybrid" // после градуации: пул + стакан
)

// CurveParams - параметры кривой выпуска P(s) = base + a*s + b*s^2
// Неизменяемы после запуска индекса (governance-обновления вне скоупа)
type CurveParams struct {
	BasePrice                 decimal.Decimal `json:"base_price" db:"base_price"`
	LinearCoeff               decimal.Decimal `json:"linear_coeff" db:"linear_coeff"`
	QuadraticCoeff            decimal.Decimal `json:"quadratic_coeff" db:"quadratic_coeff"`
	TargetMarketCap           decimal.Decimal `json:"target_market_cap" db:"target_market_cap"`
	GraduationThresholdSupply decimal.Decimal `json:"graduation_threshold_supply" db:"graduation_threshold_supply"`
}

// SupplyState - текущее состояние выпуска токена
// Изменяется ТОЛЬКО транзакционно при каждой сделке против кривой.
// Инвариант: оба значения монотонно неотрицательны.
type SupplyState struct {
	CurrentSupply decimal.Decimal `json:"current_supply" db:"current_supply"`
	TotalRaised   decimal.Decimal `json:"total_raised" db:"total_raised"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// IndexToken - индексный токен со своей кривой выпуска и режимом исполнения
type IndexToken struct {
	ID          int         `json:"id" db:"id"`
	Symbol      string      `json:"symbol" db:"symbol"` // IDX1USDC
	Name        string      `json:"name" db:"name"`
	Mode        string      `json:"mode" db:"mode"` // curve | hybrid
	Curve       CurveParams `json:"curve"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	GraduatedAt *time.Time  `json:"graduated_at,omitempty" db:"graduated_at"`
}

// Tradeable возвращает true если токен доступен для торговли
func (t *IndexToken) Tradeable() bool {
	return t.Mode == ModeCurve || t.Mode == ModeHybrid
}

// Quote - эфемерная котировка кривой
// НИКОГДА не персистится и не используется для расчётов сеттлмента
type Quote struct {
	Amount         decimal.Decimal `json:"amount"`
	Side           string          `json:"side"` // buy | sell
	TotalCost      decimal.Decimal `json:"total_cost,omitempty"`
	TotalReturn    decimal.Decimal `json:"total_return,omitempty"`
	EstimatedPrice decimal.Decimal `json:"estimated_price"`
}

// GraduationProgress - прогресс токена к градуации
type GraduationProgress struct {
	Symbol     string          `json:"symbol"`
	Progress   decimal.Decimal `json:"progress"` // currentSupply / threshold
	Graduated  bool            `json:"graduated"`
	ShouldFire bool            `json:"-"` // порог достигнут ИМЕННО этой сделкой
}

// TrajectoryPoint - одна точка симуляции траектории цены
type TrajectoryPoint struct {
	Supply decimal.Decimal `json:"supply"`
	Price  decimal.Decimal `json:"price"`
}

// Package curve реализует детерминированное ценообразование по кривой выпуска.
//
// Цена задаётся квадратичной кривой P(s) = basePrice + a*s + b*s^2
// (линейная кривая - частный случай b = 0).
//
// Стоимость покупки/продажи считается ЗАКРЫТОЙ ФОРМОЙ интеграла, а не
// суммированием spot-цен: любое округление на spot-цене открывает
// экономически эксплуатируемый дрейф при мелких сделках.
//
// Вся арифметика - decimal с фиксированной точностью. Binary floating
// point на этом пути запрещён.
package curve

import (
	"errors"

	"github.com/shopspring/decimal"

	"indexmarket/internal/models"
)

// Ошибки ценообразования
var (
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrInsufficientSupply = errors.New("sell amount exceeds current supply")
	ErrNegativeSupply     = errors.New("supply must be non-negative")
)

var (
	two   = decimal.NewFromInt(2)
	three = decimal.NewFromInt(3)
)

// Pricer - чистый калькулятор кривой, без зависимостей и состояния
type Pricer struct {
	params models.CurveParams
}

// NewPricer создаёт калькулятор для параметров кривой токена
func NewPricer(params models.CurveParams) *Pricer {
	return &Pricer{params: params}
}

// SpotPrice возвращает P(s) напрямую.
// ТОЛЬКО для отображения и оценок. Для расчётов сеттлмента
// обязателен интеграл (QuoteBuy/QuoteSell).
func (p *Pricer) SpotPrice(supply decimal.Decimal) decimal.Decimal {
	return p.params.BasePrice.
		Add(p.params.LinearCoeff.Mul(supply)).
		Add(p.params.QuadraticCoeff.Mul(supply).Mul(supply))
}

// QuoteBuy считает стоимость покупки delta токенов при текущем supply s0:
//
//	cost = base*delta + a*(s1^2 - s0^2)/2 + b*(s1^3 - s0^3)/3, s1 = s0 + delta
func (p *Pricer) QuoteBuy(supply, delta decimal.Decimal) (*models.Quote, error) {
	if supply.IsNegative() {
		return nil, ErrNegativeSupply
	}
	if !delta.IsPositive() {
		return nil, ErrInvalidAmount
	}

	cost := p.integral(supply, supply.Add(delta))
	return &models.Quote{
		Amount:         delta,
		Side:           models.SideBuy,
		TotalCost:      cost,
		EstimatedPrice: cost.Div(delta),
	}, nil
}

// QuoteSell считает выручку от продажи delta токенов: тот же интеграл
// на отрезке [s0-delta, s0]
func (p *Pricer) QuoteSell(supply, delta decimal.Decimal) (*models.Quote, error) {
	if supply.IsNegative() {
		return nil, ErrNegativeSupply
	}
	if !delta.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if delta.GreaterThan(supply) {
		return nil, ErrInsufficientSupply
	}

	ret := p.integral(supply.Sub(delta), supply)
	return &models.Quote{
		Amount:         delta,
		Side:           models.SideSell,
		TotalReturn:    ret,
		EstimatedPrice: ret.Div(delta),
	}, nil
}

// Trajectory возвращает points точек цены на отрезке supply [from, to]
// для симуляции траектории (UI/оценка, не для сеттлмента)
func (p *Pricer) Trajectory(from, to decimal.Decimal, points int) []models.TrajectoryPoint {
	if points < 2 || to.LessThanOrEqual(from) {
		return nil
	}

	step := to.Sub(from).Div(decimal.NewFromInt(int64(points - 1)))
	result := make([]models.TrajectoryPoint, 0, points)
	for i := 0; i < points; i++ {
		s := from.Add(step.Mul(decimal.NewFromInt(int64(i))))
		result = append(result, models.TrajectoryPoint{
			Supply: s,
			Price:  p.SpotPrice(s),
		})
	}
	return result
}

// integral - закрытая форма интеграла P(s) ds на отрезке [s0, s1]
func (p *Pricer) integral(s0, s1 decimal.Decimal) decimal.Decimal {
	linear := p.params.BasePrice.Mul(s1.Sub(s0))

	s0sq := s0.Mul(s0)
	s1sq := s1.Mul(s1)
	quad := p.params.LinearCoeff.Mul(s1sq.Sub(s0sq)).Div(two)

	s0cub := s0sq.Mul(s0)
	s1cub := s1sq.Mul(s1)
	cubic := p.params.QuadraticCoeff.Mul(s1cub.Sub(s0cub)).Div(three)

	return linear.Add(quad).Add(cubic)
}

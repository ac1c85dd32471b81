package engine

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"indexmarket/internal/models"
)

// Ошибки источников ликвидности
var (
	ErrSourceUnavailable = errors.New("liquidity source unavailable")
	ErrEmptyPool         = errors.New("pool has no reserves")
)

// SourceQuote - котировка одного источника на конкретный чанк.
// FillableAmount может быть меньше запрошенного: источник отвечает,
// сколько он реально в состоянии исполнить.
type SourceQuote struct {
	Source         string
	FillableAmount decimal.Decimal
	AvgPrice       decimal.Decimal // эффективная цена за единицу
	PriceImpact    decimal.Decimal // доля отклонения от spot/best
}

// LiquiditySource - общий контракт источника ликвидности для роутера.
//
// Quote обязан быть чистым (без изменения состояния).
// Execute - атомарный: либо исполняет и возвращает филл, либо ошибка
// без частичных мутаций. Частичный филл (меньше запрошенного) -
// валидный результат, остаток уходит в следующее решение роутера.
type LiquiditySource interface {
	Name() string
	Quote(ctx context.Context, side string, amount decimal.Decimal) (*SourceQuote, error)
	Execute(ctx context.Context, side string, amount decimal.Decimal) (*models.Fill, error)
}

// PoolSource - источник-пул: дополнительно отдаёт максимальный размер
// чанка, не превышающий настроенный price impact на текущих резервах,
// и снимок резервов для персистенции
type PoolSource interface {
	LiquiditySource
	MaxChunk(side string) (decimal.Decimal, error)
	Reserves() models.PoolReserves
}

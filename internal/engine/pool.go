package engine

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"indexmarket/internal/models"
)

// Pool - constant-product пул (x*y=k) с комиссией.
//
// Резервы: base - индексный токен, quote - валюта котировки.
// Вся секция quote→execute сериализуется мьютексом роутера на пару,
// собственный мьютекс пула защищает только конкурентные читатели
// (снапшоты для UI, периодическая персистенция резервов).
type Pool struct {
	mu        sync.Mutex
	pair      string
	base      decimal.Decimal
	quote     decimal.Decimal
	fee       decimal.Decimal // доля, например 0.003
	maxImpact decimal.Decimal // максимальный price impact на чанк
}

// NewPool создаёт пул с начальными резервами
func NewPool(pair string, base, quote, fee, maxImpact decimal.Decimal) *Pool {
	return &Pool{
		pair:      pair,
		base:      base,
		quote:     quote,
		fee:       fee,
		maxImpact: maxImpact,
	}
}

func (p *Pool) Name() string { return models.SourcePool }

// Reserves возвращает снапшот текущих резервов
func (p *Pool) Reserves() models.PoolReserves {
	p.mu.Lock()
	defer p.mu.Unlock()
	return models.PoolReserves{Base: p.base, Quote: p.quote}
}

// MaxChunk - максимальный размер чанка, оставляющий price impact
// в пределах maxImpact: доля резерва base, пропорциональная порогу
func (p *Pool) MaxChunk(side string) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.base.IsPositive() || !p.quote.IsPositive() {
		return decimal.Zero, ErrEmptyPool
	}
	return p.base.Mul(p.maxImpact), nil
}

// Quote котирует чанк без изменения состояния
func (p *Pool) Quote(_ context.Context, side string, amount decimal.Decimal) (*SourceQuote, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.base.IsPositive() || !p.quote.IsPositive() {
		return &SourceQuote{Source: models.SourcePool}, nil
	}
	if !amount.IsPositive() {
		return &SourceQuote{Source: models.SourcePool}, nil
	}

	fillable, price, impact := p.preview(side, amount)
	return &SourceQuote{
		Source:         models.SourcePool,
		FillableAmount: fillable,
		AvgPrice:       price,
		PriceImpact:    impact,
	}, nil
}

// Execute исполняет чанк против пула, фиксируя резервы до/после.
// Атомарно: резервы меняются только при успешном расчёте.
func (p *Pool) Execute(_ context.Context, side string, amount decimal.Decimal) (*models.Fill, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.base.IsPositive() || !p.quote.IsPositive() {
		return nil, ErrEmptyPool
	}

	fillable, price, impact := p.preview(side, amount)
	if !fillable.IsPositive() {
		return &models.Fill{Source: models.SourcePool, CreatedAt: time.Now()}, nil
	}

	before := models.PoolReserves{Base: p.base, Quote: p.quote}
	quoteLeg := fillable.Mul(price)

	if side == models.SideBuy {
		// Покупатель забирает base, вносит quote
		p.base = p.base.Sub(fillable)
		p.quote = p.quote.Add(quoteLeg)
	} else {
		// Продавец вносит base, забирает quote
		p.base = p.base.Add(fillable)
		p.quote = p.quote.Sub(quoteLeg)
	}
	after := models.PoolReserves{Base: p.base, Quote: p.quote}

	return &models.Fill{
		Amount:         fillable,
		Price:          price,
		Source:         models.SourcePool,
		PriceImpact:    impact,
		ReservesBefore: &before,
		ReservesAfter:  &after,
		CreatedAt:      time.Now(),
	}, nil
}

// SetReserves восстанавливает резервы (загрузка из БД при старте)
func (p *Pool) SetReserves(base, quote decimal.Decimal) {
	p.mu.Lock()
	p.base = base
	p.quote = quote
	p.mu.Unlock()
}

// preview считает (fillable, avgPrice, impact) для чанка.
// Вызывается строго под p.mu.
func (p *Pool) preview(side string, amount decimal.Decimal) (decimal.Decimal, decimal.Decimal, decimal.Decimal) {
	one := decimal.NewFromInt(1)
	spot := p.quote.Div(p.base)
	feeMul := one.Sub(p.fee)

	if side == models.SideBuy {
		// Пул не может отдать весь base резерв: константа произведения
		// уходит в бесконечность. Жёсткий потолок - половина резерва.
		fillable := amount
		if cap := p.base.Div(decimal.NewFromInt(2)); fillable.GreaterThan(cap) {
			fillable = cap
		}
		if !fillable.IsPositive() {
			return decimal.Zero, decimal.Zero, decimal.Zero
		}
		// in = quote*out / ((base-out)*(1-fee))
		in := p.quote.Mul(fillable).Div(p.base.Sub(fillable).Mul(feeMul))
		price := in.Div(fillable)
		impact := price.Div(spot).Sub(one)
		return fillable, price, impact
	}

	// sell: out = quote*in*(1-fee) / (base+in)
	fillable := amount
	out := p.quote.Mul(fillable).Mul(feeMul).Div(p.base.Add(fillable))
	price := out.Div(fillable)
	impact := one.Sub(price.Div(spot))
	return fillable, price, impact
}

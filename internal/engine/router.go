package engine

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"indexmarket/internal/models"
)

// Ошибки роутера (business rules - отказ ДО исполнения, без побочных эффектов)
var (
	ErrPairNotRegistered = errors.New("pair not registered for hybrid execution")
	ErrInvalidOrder      = errors.New("invalid order parameters")
	ErrLimitCrossed      = errors.New("limit price already crossed by best available price")
)

// RouterConfig - параметры роутинга
type RouterConfig struct {
	MaxIterations int           // потолок итераций на ордер (защита от зацикливания)
	QuoteRetries  int           // попыток котировки источника при сбое
	RetryBackoff  time.Duration // базовая задержка, удваивается на каждый ретрай
}

// Router исполняет ордера против двух гетерогенных источников:
// constant-product пула и стакана с price-time приоритетом.
//
// Алгоритм - итеративный жадный чанкинг: на каждой итерации берём
// chunkSize = min(remaining, maxChunk пула), котируем ОБА источника
// и исполняем чанк против лучшего. При равных ценах выигрывает стакан
// (вознаграждаем мейкеров).
//
// Роутинг одного ордера последовательный по построению: результат
// чанка N определяет цены чанка N+1. Конкурентные ордера по одной
// паре сериализуются per-pair мьютексом - иначе два одновременно
// роутящихся ордера потратят одну и ту же ликвидность дважды.
type Router struct {
	cfg RouterConfig

	mu    sync.RWMutex
	pairs map[string]*pairVenues
}

// pairVenues - источники ликвидности одной пары + её writer-lock
type pairVenues struct {
	mu   sync.Mutex
	pool PoolSource
	book LiquiditySource
}

// NewRouter создаёт роутер
func NewRouter(cfg RouterConfig) *Router {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 100
	}
	return &Router{
		cfg:   cfg,
		pairs: make(map[string]*pairVenues),
	}
}

// RegisterPair подключает источники ликвидности пары
// (вызывается при градуации токена и при старте процесса)
func (r *Router) RegisterPair(pair string, pool PoolSource, book LiquiditySource) {
	r.mu.Lock()
	r.pairs[pair] = &pairVenues{pool: pool, book: book}
	r.mu.Unlock()
	log.Printf("[router] pair %s registered for hybrid execution", pair)
}

// HasPair проверяет, зарегистрирована ли пара
func (r *Router) HasPair(pair string) bool {
	r.mu.RLock()
	_, ok := r.pairs[pair]
	r.mu.RUnlock()
	return ok
}

// Pool возвращает пул пары (для персистенции резервов)
func (r *Router) Pool(pair string) PoolSource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if pv, ok := r.pairs[pair]; ok {
		return pv.pool
	}
	return nil
}

// candidate - источник с котировкой текущего чанка
type candidate struct {
	source LiquiditySource
	quote  *SourceQuote
}

// ExecuteOrder исполняет ордер до remaining == 0 или стоп-условия.
//
// Частичное исполнение - это успех-с-остатком, НЕ ошибка: вызывающий
// обязан смотреть Filled/Remaining. Ошибка возвращается только если
// не исполнено ничего (валидация, пересечённый лимит, пара не найдена).
func (r *Router) ExecuteOrder(ctx context.Context, order *models.Order) (*models.ExecutionResult, error) {
	if err := validateOrder(order); err != nil {
		return nil, err
	}

	r.mu.RLock()
	pv, ok := r.pairs[order.Pair]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrPairNotRegistered
	}

	// Критическая секция quote→execute: один writer на пару
	pv.mu.Lock()
	defer pv.mu.Unlock()

	start := time.Now()
	remaining := order.Amount
	filled := decimal.Zero
	notional := decimal.Zero
	impactSum := decimal.Zero
	var fills []models.Fill
	var stats models.ExecutionStats

	poolOK, bookOK := true, true
	degraded := false

	for remaining.IsPositive() && stats.Iterations < r.cfg.MaxIterations {
		stats.Iterations++

		// 1. Размер чанка ограничен max price impact против резервов пула
		chunk := remaining
		if poolOK {
			if mc, err := pv.pool.MaxChunk(order.Side); err == nil && mc.IsPositive() && mc.LessThan(chunk) {
				chunk = mc
			}
		}

		// 2. Котируем оба источника; сбой источника переводит роутер
		// в одноисточниковый режим до конца ордера
		var candidates []candidate
		if poolOK {
			q, err := r.quoteWithRetry(ctx, pv.pool, order.Side, chunk)
			if err != nil {
				poolOK = false
				degraded = true
				log.Printf("[router] %s pool quote failed, degrading to book-only: %v", order.Pair, err)
			} else if q.FillableAmount.IsPositive() {
				candidates = append(candidates, candidate{source: pv.pool, quote: q})
			}
		}
		if bookOK {
			q, err := r.quoteWithRetry(ctx, pv.book, order.Side, chunk)
			if err != nil {
				bookOK = false
				degraded = true
				log.Printf("[router] %s book quote failed, degrading to pool-only: %v", order.Pair, err)
			} else if q.FillableAmount.IsPositive() {
				candidates = append(candidates, candidate{source: pv.book, quote: q})
			}
		}
		if !poolOK && !bookOK {
			break // оба источника недоступны → остаток не исполняется
		}

		// 3. Лучший источник; при равной цене - стакан
		best := pickBest(order.Side, candidates)
		if best == nil {
			break // ликвидность исчерпана → частичный результат
		}

		// 4. Лимит: отказ до первого чанка, стоп после
		if order.Type == models.TypeLimit && crossesLimit(order.Side, best.quote.AvgPrice, *order.LimitPrice) {
			if len(fills) == 0 {
				return nil, ErrLimitCrossed
			}
			break
		}

		// 5. Исполнение чанка - всё-или-ничего против выбранного источника
		execAmount := chunk
		if best.quote.FillableAmount.LessThan(execAmount) {
			execAmount = best.quote.FillableAmount
		}
		fill, err := best.source.Execute(ctx, order.Side, execAmount)
		if err != nil {
			if best.source.Name() == models.SourcePool {
				poolOK = false
			} else {
				bookOK = false
			}
			degraded = true
			log.Printf("[router] %s execute on %s failed: %v", order.Pair, best.source.Name(), err)
			continue
		}
		if !fill.Amount.IsPositive() {
			break
		}

		fill.OrderID = order.ID
		fills = append(fills, *fill)
		filled = filled.Add(fill.Amount)
		remaining = remaining.Sub(fill.Amount)
		notional = notional.Add(fill.Amount.Mul(fill.Price))
		impactSum = impactSum.Add(fill.PriceImpact)

		stats.TotalChunks++
		if fill.Source == models.SourcePool {
			stats.PoolChunks++
		} else {
			stats.OrderbookChunks++
		}
		RouterChunksTotal.WithLabelValues(fill.Source).Inc()
	}

	stats.ExecutionTime = time.Since(start)
	if stats.TotalChunks > 0 {
		stats.AvgPriceImpact = impactSum.Div(decimal.NewFromInt(int64(stats.TotalChunks)))
	}

	avgPrice := decimal.Zero
	if filled.IsPositive() {
		avgPrice = notional.Div(filled)
	}

	OrderExecutionLatency.WithLabelValues(order.Side).Observe(float64(stats.ExecutionTime.Milliseconds()))

	return &models.ExecutionResult{
		OrderID:      order.ID,
		Filled:       filled,
		Remaining:    remaining,
		AveragePrice: avgPrice,
		Fills:        fills,
		Stats:        stats,
		Degraded:     degraded,
	}, nil
}

// quoteWithRetry котирует источник с ограниченным экспоненциальным бэкоффом
func (r *Router) quoteWithRetry(ctx context.Context, src LiquiditySource, side string, amount decimal.Decimal) (*SourceQuote, error) {
	backoff := r.cfg.RetryBackoff
	var lastErr error

	for attempt := 0; attempt <= r.cfg.QuoteRetries; attempt++ {
		if attempt > 0 && backoff > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		q, err := src.Quote(ctx, side, amount)
		if err == nil {
			return q, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// pickBest выбирает источник с лучшей эффективной ценой чанка.
// Покупка - минимальная цена, продажа - максимальная.
// Tie-break в пользу стакана.
func pickBest(side string, candidates []candidate) *candidate {
	var best *candidate
	for i := range candidates {
		c := &candidates[i]
		if best == nil {
			best = c
			continue
		}
		switch {
		case betterPrice(side, c.quote.AvgPrice, best.quote.AvgPrice):
			best = c
		case c.quote.AvgPrice.Equal(best.quote.AvgPrice) && c.source.Name() == models.SourceOrderbook:
			best = c
		}
	}
	return best
}

func betterPrice(side string, a, b decimal.Decimal) bool {
	if side == models.SideBuy {
		return a.LessThan(b)
	}
	return a.GreaterThan(b)
}

// crossesLimit: покупка дороже лимита / продажа дешевле лимита
func crossesLimit(side string, price, limit decimal.Decimal) bool {
	if side == models.SideBuy {
		return price.GreaterThan(limit)
	}
	return price.LessThan(limit)
}

// validateOrder - синхронная валидация без побочных эффектов
func validateOrder(order *models.Order) error {
	if order == nil || !order.Amount.IsPositive() {
		return ErrInvalidOrder
	}
	if order.Side != models.SideBuy && order.Side != models.SideSell {
		return ErrInvalidOrder
	}
	if order.Type != models.TypeMarket && order.Type != models.TypeLimit {
		return ErrInvalidOrder
	}
	if order.Type == models.TypeLimit && (order.LimitPrice == nil || !order.LimitPrice.IsPositive()) {
		return ErrInvalidOrder
	}
	return nil
}

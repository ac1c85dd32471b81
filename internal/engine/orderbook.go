package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"indexmarket/internal/models"
)

// RestingOrder - отдыхающий ордер в стакане
type RestingOrder struct {
	ID       string
	Price    decimal.Decimal
	Amount   decimal.Decimal
	PlacedAt time.Time
}

// Book - in-memory адаптер стакана с price-time приоритетом.
//
// Полный матчинг-движок - внешний коллаборатор; этот адаптер реализует
// его контракт для роутера: обход отдыхающих ордеров по лучшей цене,
// при равной цене - по времени размещения. Используется как дефолтная
// привязка и как референс контракта в тестах.
type Book struct {
	mu   sync.Mutex
	pair string
	bids []RestingOrder // по убыванию цены, затем по времени
	asks []RestingOrder // по возрастанию цены, затем по времени
}

// NewBook создаёт пустой стакан
func NewBook(pair string) *Book {
	return &Book{pair: pair}
}

func (b *Book) Name() string { return models.SourceOrderbook }

// AddBid добавляет отдыхающий ордер на покупку
func (b *Book) AddBid(id string, price, amount decimal.Decimal) {
	b.mu.Lock()
	b.bids = append(b.bids, RestingOrder{ID: id, Price: price, Amount: amount, PlacedAt: time.Now()})
	sort.SliceStable(b.bids, func(i, j int) bool {
		if !b.bids[i].Price.Equal(b.bids[j].Price) {
			return b.bids[i].Price.GreaterThan(b.bids[j].Price)
		}
		return b.bids[i].PlacedAt.Before(b.bids[j].PlacedAt)
	})
	b.mu.Unlock()
}

// AddAsk добавляет отдыхающий ордер на продажу
func (b *Book) AddAsk(id string, price, amount decimal.Decimal) {
	b.mu.Lock()
	b.asks = append(b.asks, RestingOrder{ID: id, Price: price, Amount: amount, PlacedAt: time.Now()})
	sort.SliceStable(b.asks, func(i, j int) bool {
		if !b.asks[i].Price.Equal(b.asks[j].Price) {
			return b.asks[i].Price.LessThan(b.asks[j].Price)
		}
		return b.asks[i].PlacedAt.Before(b.asks[j].PlacedAt)
	})
	b.mu.Unlock()
}

// Quote обходит стакан до заполнения чанка или исчерпания книги
func (b *Book) Quote(_ context.Context, side string, amount decimal.Decimal) (*SourceQuote, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	levels := b.levelsFor(side)
	fillable, notional := walkLevels(levels, amount)
	if !fillable.IsPositive() {
		return &SourceQuote{Source: models.SourceOrderbook}, nil
	}

	avg := notional.Div(fillable)
	best := levels[0].Price
	impact := avg.Sub(best).Abs().Div(best)

	return &SourceQuote{
		Source:         models.SourceOrderbook,
		FillableAmount: fillable,
		AvgPrice:       avg,
		PriceImpact:    impact,
	}, nil
}

// Execute потребляет отдыхающие ордера в price-time приоритете
func (b *Book) Execute(_ context.Context, side string, amount decimal.Decimal) (*models.Fill, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	levels := b.levelsFor(side)
	fillable, notional := walkLevels(levels, amount)
	if !fillable.IsPositive() {
		return &models.Fill{Source: models.SourceOrderbook, CreatedAt: time.Now()}, nil
	}

	best := levels[0].Price
	remaining := fillable
	consumed := 0
	for i := range levels {
		if !remaining.IsPositive() {
			break
		}
		if levels[i].Amount.LessThanOrEqual(remaining) {
			remaining = remaining.Sub(levels[i].Amount)
			consumed++
		} else {
			levels[i].Amount = levels[i].Amount.Sub(remaining)
			remaining = decimal.Zero
		}
	}
	b.setLevelsFor(side, levels[consumed:])

	avg := notional.Div(fillable)
	return &models.Fill{
		Amount:      fillable,
		Price:       avg,
		Source:      models.SourceOrderbook,
		PriceImpact: avg.Sub(best).Abs().Div(best),
		CreatedAt:   time.Now(),
	}, nil
}

// BestPrice возвращает лучшую цену стороны (nil если книга пуста)
func (b *Book) BestPrice(side string) *decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()

	levels := b.levelsFor(side)
	if len(levels) == 0 {
		return nil
	}
	p := levels[0].Price
	return &p
}

// Depth возвращает суммарный объём стороны
func (b *Book) Depth(side string) decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()

	total := decimal.Zero
	for _, lvl := range b.levelsFor(side) {
		total = total.Add(lvl.Amount)
	}
	return total
}

// levelsFor: покупатель ест asks, продавец ест bids
func (b *Book) levelsFor(side string) []RestingOrder {
	if side == models.SideBuy {
		return b.asks
	}
	return b.bids
}

func (b *Book) setLevelsFor(side string, levels []RestingOrder) {
	if side == models.SideBuy {
		b.asks = levels
	} else {
		b.bids = levels
	}
}

// walkLevels идёт по уровням до заполнения amount,
// возвращает (исполнимый объём, нотионал)
func walkLevels(levels []RestingOrder, amount decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	fillable := decimal.Zero
	notional := decimal.Zero
	remaining := amount

	for _, lvl := range levels {
		if !remaining.IsPositive() {
			break
		}
		take := lvl.Amount
		if take.GreaterThan(remaining) {
			take = remaining
		}
		fillable = fillable.Add(take)
		notional = notional.Add(take.Mul(lvl.Price))
		remaining = remaining.Sub(take)
	}
	return fillable, notional
}

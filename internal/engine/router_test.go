package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"indexmarket/internal/models"
)

// ============================================================
// Router Tests
// ============================================================

// stubSource - управляемый источник ликвидности для тестов роутера
type stubSource struct {
	name      string
	price     decimal.Decimal
	available decimal.Decimal
	quoteErr  error
	execErr   error

	quoteCalls int
	execCalls  int
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Quote(_ context.Context, _ string, amount decimal.Decimal) (*SourceQuote, error) {
	s.quoteCalls++
	if s.quoteErr != nil {
		return nil, s.quoteErr
	}
	fillable := amount
	if s.available.LessThan(fillable) {
		fillable = s.available
	}
	return &SourceQuote{Source: s.name, FillableAmount: fillable, AvgPrice: s.price}, nil
}

func (s *stubSource) Execute(_ context.Context, _ string, amount decimal.Decimal) (*models.Fill, error) {
	s.execCalls++
	if s.execErr != nil {
		return nil, s.execErr
	}
	fillable := amount
	if s.available.LessThan(fillable) {
		fillable = s.available
	}
	s.available = s.available.Sub(fillable)
	return &models.Fill{
		Amount:    fillable,
		Price:     s.price,
		Source:    s.name,
		CreatedAt: time.Now(),
	}, nil
}

// stubPool добавляет MaxChunk к stubSource
type stubPool struct {
	stubSource
	maxChunk decimal.Decimal
}

func (s *stubPool) MaxChunk(string) (decimal.Decimal, error) {
	if s.maxChunk.IsZero() {
		return decimal.Zero, ErrEmptyPool
	}
	return s.maxChunk, nil
}

func (s *stubPool) Reserves() models.PoolReserves {
	return models.PoolReserves{Base: s.available, Quote: s.available}
}

func testRouterConfig() RouterConfig {
	return RouterConfig{
		MaxIterations: 50,
		QuoteRetries:  1,
		RetryBackoff:  time.Millisecond,
	}
}

func marketOrder(pair, side, amount string) *models.Order {
	return &models.Order{
		ID:        "order-1",
		Pair:      pair,
		Side:      side,
		Type:      models.TypeMarket,
		Amount:    dec(amount),
		Remaining: dec(amount),
	}
}

func limitOrder(pair, side, amount, limit string) *models.Order {
	o := marketOrder(pair, side, amount)
	o.Type = models.TypeLimit
	lp := dec(limit)
	o.LimitPrice = &lp
	return o
}

// TestTwoChunkSplit: продажа 10000 - пул абсорбирует 6000 (потолок
// импакта), остальные 4000 уходят в стакан на одном уровне.
// Ровно 2 чанка: 1 pool, 1 orderbook, totalFilled = 10000.
func TestTwoChunkSplit(t *testing.T) {
	pool := newTestPool() // 60000/60000, fee 0.003, max impact 10% → чанк 6000
	book := NewBook("IDX1USDC")
	book.AddBid("mm1", dec("0.90"), dec("100000"))

	router := NewRouter(testRouterConfig())
	router.RegisterPair("IDX1USDC", pool, book)

	result, err := router.ExecuteOrder(context.Background(), marketOrder("IDX1USDC", models.SideSell, "10000"))
	if err != nil {
		t.Fatalf("ExecuteOrder failed: %v", err)
	}

	if result.Stats.TotalChunks != 2 {
		t.Errorf("expected 2 chunks, got %d", result.Stats.TotalChunks)
	}
	if result.Stats.PoolChunks != 1 || result.Stats.OrderbookChunks != 1 {
		t.Errorf("expected 1 pool + 1 orderbook chunk, got %d/%d",
			result.Stats.PoolChunks, result.Stats.OrderbookChunks)
	}
	if !result.Filled.Equal(dec("10000")) {
		t.Errorf("expected total filled 10000, got %s", result.Filled)
	}
	if !result.Remaining.IsZero() {
		t.Errorf("expected zero remaining, got %s", result.Remaining)
	}

	// Первый чанк - пул (цена 0.906 > 0.90 стакана), второй - стакан
	if result.Fills[0].Source != models.SourcePool || result.Fills[1].Source != models.SourceOrderbook {
		t.Errorf("unexpected fill sources: %s, %s", result.Fills[0].Source, result.Fills[1].Source)
	}
	if !result.Fills[1].Amount.Equal(dec("4000")) || !result.Fills[1].Price.Equal(dec("0.90")) {
		t.Errorf("expected book fill 4000@0.90, got %s@%s", result.Fills[1].Amount, result.Fills[1].Price)
	}
}

// TestChunkConservation: Σ fill.Amount == Filled и Filled + Remaining == Amount
// на частично исполнимом ордере
func TestChunkConservation(t *testing.T) {
	pool := newTestPool()
	book := NewBook("IDX1USDC")
	book.AddBid("b1", dec("0.95"), dec("3000"))
	book.AddBid("b2", dec("0.80"), dec("2000"))

	router := NewRouter(testRouterConfig())
	router.RegisterPair("IDX1USDC", pool, book)

	order := marketOrder("IDX1USDC", models.SideSell, "500000")
	result, err := router.ExecuteOrder(context.Background(), order)
	if err != nil {
		t.Fatalf("ExecuteOrder failed: %v", err)
	}

	sum := decimal.Zero
	for _, f := range result.Fills {
		sum = sum.Add(f.Amount)
	}
	if !sum.Equal(result.Filled) {
		t.Errorf("chunk conservation violated: sum %s != filled %s", sum, result.Filled)
	}
	if !result.Filled.Add(result.Remaining).Equal(order.Amount) {
		t.Errorf("filled %s + remaining %s != amount %s",
			result.Filled, result.Remaining, order.Amount)
	}
}

// TestLimitRejectedBeforeExecution: лимитная покупка с лимитом ниже
// лучшего ask отклоняется до любого исполнения - ни чанков, ни мутаций
func TestLimitRejectedBeforeExecution(t *testing.T) {
	pool := newTestPool()
	book := NewBook("IDX1USDC")
	book.AddAsk("a1", dec("1.05"), dec("5000"))

	router := NewRouter(testRouterConfig())
	router.RegisterPair("IDX1USDC", pool, book)

	poolBefore := pool.Reserves()
	depthBefore := book.Depth(models.SideBuy)

	_, err := router.ExecuteOrder(context.Background(), limitOrder("IDX1USDC", models.SideBuy, "1000", "0.90"))
	if !errors.Is(err, ErrLimitCrossed) {
		t.Fatalf("expected ErrLimitCrossed, got %v", err)
	}

	poolAfter := pool.Reserves()
	if !poolBefore.Base.Equal(poolAfter.Base) || !poolBefore.Quote.Equal(poolAfter.Quote) {
		t.Error("rejected limit order must not touch pool reserves")
	}
	if !book.Depth(models.SideBuy).Equal(depthBefore) {
		t.Error("rejected limit order must not consume the book")
	}
}

// TestLimitStopsMidRouting: после исполненных чанков пересечение лимита
// останавливает роутинг - остаток не исполняется, это успех-с-остатком
func TestLimitStopsMidRouting(t *testing.T) {
	pool := &stubPool{
		stubSource: stubSource{name: models.SourcePool, price: dec("1.00"), available: dec("50")},
		maxChunk:   dec("1000"),
	}
	book := &stubSource{name: models.SourceOrderbook, price: dec("2.00"), available: dec("100000")}

	router := NewRouter(testRouterConfig())
	router.RegisterPair("IDX1USDC", pool, book)

	result, err := router.ExecuteOrder(context.Background(), limitOrder("IDX1USDC", models.SideBuy, "100", "1.50"))
	if err != nil {
		t.Fatalf("ExecuteOrder failed: %v", err)
	}

	if !result.Filled.Equal(dec("50")) {
		t.Errorf("expected 50 filled within limit, got %s", result.Filled)
	}
	if !result.Remaining.Equal(dec("50")) {
		t.Errorf("expected 50 unfilled remainder, got %s", result.Remaining)
	}
}

// TestTieFavorsOrderbook: при равной цене чанк уходит в стакан
func TestTieFavorsOrderbook(t *testing.T) {
	pool := &stubPool{
		stubSource: stubSource{name: models.SourcePool, price: dec("1.00"), available: dec("1000")},
		maxChunk:   dec("1000"),
	}
	book := &stubSource{name: models.SourceOrderbook, price: dec("1.00"), available: dec("1000")}

	router := NewRouter(testRouterConfig())
	router.RegisterPair("IDX1USDC", pool, book)

	result, err := router.ExecuteOrder(context.Background(), marketOrder("IDX1USDC", models.SideBuy, "500"))
	if err != nil {
		t.Fatalf("ExecuteOrder failed: %v", err)
	}

	if len(result.Fills) != 1 || result.Fills[0].Source != models.SourceOrderbook {
		t.Errorf("tie must favor the orderbook, got fills %+v", result.Fills)
	}
}

// TestDegradedSingleSource: сбой котировки пула переводит роутер
// в одноисточниковый режим, ордер исполняется стаканом
func TestDegradedSingleSource(t *testing.T) {
	pool := &stubPool{
		stubSource: stubSource{
			name:     models.SourcePool,
			quoteErr: errors.New("pool oracle timeout"),
		},
		maxChunk: dec("1000"),
	}
	book := &stubSource{name: models.SourceOrderbook, price: dec("1.00"), available: dec("10000")}

	router := NewRouter(testRouterConfig())
	router.RegisterPair("IDX1USDC", pool, book)

	result, err := router.ExecuteOrder(context.Background(), marketOrder("IDX1USDC", models.SideBuy, "500"))
	if err != nil {
		t.Fatalf("degraded mode must not abort the order: %v", err)
	}

	if !result.Degraded {
		t.Error("result should be flagged degraded")
	}
	if !result.Filled.Equal(dec("500")) {
		t.Errorf("expected full fill from the book, got %s", result.Filled)
	}
	// Ретраи ограничены: QuoteRetries=1 → не больше 2 вызовов на итерацию,
	// после деградации пул не котируется вовсе
	if pool.quoteCalls > 2 {
		t.Errorf("pool quoted %d times after degradation", pool.quoteCalls)
	}
}

// TestBothSourcesExhausted: ликвидности нет нигде - частичный результат
// с явным остатком, НЕ ошибка
func TestBothSourcesExhausted(t *testing.T) {
	pool := &stubPool{
		stubSource: stubSource{name: models.SourcePool, price: dec("1.00"), available: dec("100")},
		maxChunk:   dec("1000"),
	}
	book := &stubSource{name: models.SourceOrderbook, price: dec("1.10"), available: dec("200")}

	router := NewRouter(testRouterConfig())
	router.RegisterPair("IDX1USDC", pool, book)

	order := marketOrder("IDX1USDC", models.SideBuy, "1000")
	result, err := router.ExecuteOrder(context.Background(), order)
	if err != nil {
		t.Fatalf("liquidity exhaustion must not be an error: %v", err)
	}

	if !result.Filled.Equal(dec("300")) {
		t.Errorf("expected 300 filled, got %s", result.Filled)
	}
	if !result.Remaining.Equal(dec("700")) {
		t.Errorf("expected 700 remaining, got %s", result.Remaining)
	}
}

func TestExecuteOrderValidation(t *testing.T) {
	router := NewRouter(testRouterConfig())
	router.RegisterPair("IDX1USDC", &stubPool{maxChunk: dec("1")}, &stubSource{name: models.SourceOrderbook})

	tests := []struct {
		name    string
		order   *models.Order
		wantErr error
	}{
		{"nil order", nil, ErrInvalidOrder},
		{"zero amount", marketOrder("IDX1USDC", models.SideBuy, "0"), ErrInvalidOrder},
		{"bad side", &models.Order{Pair: "IDX1USDC", Side: "hold", Type: models.TypeMarket, Amount: dec("1")}, ErrInvalidOrder},
		{"limit without price", &models.Order{Pair: "IDX1USDC", Side: models.SideBuy, Type: models.TypeLimit, Amount: dec("1")}, ErrInvalidOrder},
		{"unknown pair", marketOrder("NOPEUSDC", models.SideBuy, "1"), ErrPairNotRegistered},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := router.ExecuteOrder(context.Background(), tt.order)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

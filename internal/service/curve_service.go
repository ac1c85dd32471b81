package service

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"indexmarket/internal/curve"
	"indexmarket/internal/engine"
	"indexmarket/internal/models"
	"indexmarket/internal/repository"
)

// Ошибки сервиса кривой
var (
	ErrTokenNotFound      = errors.New("index token not found")
	ErrTokenGraduated     = errors.New("token already graduated, trade through order flow")
	ErrInvalidTradeAmount = errors.New("trade amount must be positive")
	ErrInvalidToken       = errors.New("invalid token parameters")
)

// PoolSeedConfig - параметры пула, создаваемого при градуации
type PoolSeedConfig struct {
	Fee       decimal.Decimal // доля комиссии, например 0.003
	MaxImpact decimal.Decimal // потолок price impact одного чанка
}

// CurveService предоставляет бизнес-логику торговли против кривой выпуска.
//
// Отвечает за:
// - Котировки и спот-цену по кривой (эфемерные, не персистятся)
// - Исполнение сделок против кривой с транзакционным сдвигом supply
// - Оценку градуации после каждой сделки
// - Засев пула и регистрацию пары в роутере при градуации
type CurveService struct {
	tokenRepo TokenRepositoryInterface
	fillRepo  FillRepositoryInterface
	router    OrderRouter
	hub       Broadcaster
	poolCfg   PoolSeedConfig

	evaluator *curve.GraduationEvaluator

	// Сделки против кривой одного токена сериализуются: quote и
	// ApplyCurveTrade должны видеть одно и то же состояние выпуска
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewCurveService создает новый экземпляр CurveService
func NewCurveService(
	tokenRepo TokenRepositoryInterface,
	fillRepo FillRepositoryInterface,
	router OrderRouter,
	hub Broadcaster,
	poolCfg PoolSeedConfig,
) *CurveService {
	s := &CurveService{
		tokenRepo: tokenRepo,
		fillRepo:  fillRepo,
		router:    router,
		hub:       hub,
		poolCfg:   poolCfg,
		locks:     make(map[string]*sync.Mutex),
	}
	s.evaluator = curve.NewGraduationEvaluator(s.onGraduate)
	return s
}

// Restore восстанавливает состояние после рестарта процесса:
// помечает градуировавшие токены и заново регистрирует их пары в роутере
func (s *CurveService) Restore() error {
	tokens, err := s.tokenRepo.GetAll()
	if err != nil {
		return fmt.Errorf("load tokens: %w", err)
	}

	for _, token := range tokens {
		if token.Mode != models.ModeHybrid {
			continue
		}
		s.evaluator.MarkGraduated(token.Symbol)

		reserves, err := s.tokenRepo.LoadReserves(token.Symbol)
		if err != nil {
			if errors.Is(err, repository.ErrReservesNotFound) {
				log.Printf("[curve] %s graduated but has no saved reserves, skipping pair", token.Symbol)
				continue
			}
			return fmt.Errorf("load reserves for %s: %w", token.Symbol, err)
		}

		pool := engine.NewPool(token.Symbol, reserves.Base, reserves.Quote, s.poolCfg.Fee, s.poolCfg.MaxImpact)
		s.router.RegisterPair(token.Symbol, pool, engine.NewBook(token.Symbol))
		log.Printf("[curve] %s restored as hybrid pair", token.Symbol)
	}

	return nil
}

// CreateToken запускает новый индексный токен в curve-режиме
func (s *CurveService) CreateToken(token *models.IndexToken) error {
	if token.Symbol == "" {
		return ErrInvalidToken
	}
	if !token.Curve.BasePrice.IsPositive() {
		return fmt.Errorf("%w: base price must be positive", ErrInvalidToken)
	}
	if token.Curve.LinearCoeff.IsNegative() || token.Curve.QuadraticCoeff.IsNegative() {
		return fmt.Errorf("%w: coefficients must be non-negative", ErrInvalidToken)
	}

	token.Mode = models.ModeCurve
	return s.tokenRepo.Create(token)
}

// ListTokens возвращает все индексные токены
func (s *CurveService) ListTokens() ([]*models.IndexToken, error) {
	tokens, err := s.tokenRepo.GetAll()
	if err != nil {
		return nil, err
	}

	if tokens == nil {
		tokens = []*models.IndexToken{}
	}

	return tokens, nil
}

// TokenState - токен вместе с текущим состоянием выпуска
type TokenState struct {
	Token     *models.IndexToken        `json:"token"`
	Supply    *models.SupplyState       `json:"supply"`
	SpotPrice decimal.Decimal           `json:"spot_price"`
	Progress  models.GraduationProgress `json:"graduation"`
}

// GetState возвращает токен, состояние выпуска, спот-цену и прогресс градуации
func (s *CurveService) GetState(symbol string) (*TokenState, error) {
	token, err := s.getToken(symbol)
	if err != nil {
		return nil, err
	}

	state, err := s.tokenRepo.GetSupplyState(token.ID)
	if err != nil {
		return nil, err
	}

	pricer := curve.NewPricer(token.Curve)

	progress := decimal.Zero
	if token.Curve.GraduationThresholdSupply.IsPositive() {
		progress = state.CurrentSupply.Div(token.Curve.GraduationThresholdSupply)
	}

	return &TokenState{
		Token:     token,
		Supply:    state,
		SpotPrice: pricer.SpotPrice(state.CurrentSupply),
		Progress: models.GraduationProgress{
			Symbol:    token.Symbol,
			Progress:  progress,
			Graduated: token.Mode == models.ModeHybrid,
		},
	}, nil
}

// QuoteBuy возвращает стоимость покупки amount токенов по кривой.
// Котировка эфемерна: она не резервирует ликвидность и не персистится.
func (s *CurveService) QuoteBuy(symbol string, amount decimal.Decimal) (*models.Quote, error) {
	return s.quote(symbol, models.SideBuy, amount)
}

// QuoteSell возвращает выручку от продажи amount токенов по кривой
func (s *CurveService) QuoteSell(symbol string, amount decimal.Decimal) (*models.Quote, error) {
	return s.quote(symbol, models.SideSell, amount)
}

func (s *CurveService) quote(symbol, side string, amount decimal.Decimal) (*models.Quote, error) {
	token, err := s.getToken(symbol)
	if err != nil {
		return nil, err
	}
	if token.Mode != models.ModeCurve {
		return nil, ErrTokenGraduated
	}

	state, err := s.tokenRepo.GetSupplyState(token.ID)
	if err != nil {
		return nil, err
	}

	pricer := curve.NewPricer(token.Curve)
	if side == models.SideBuy {
		return pricer.QuoteBuy(state.CurrentSupply, amount)
	}
	return pricer.QuoteSell(state.CurrentSupply, amount)
}

// Trajectory симулирует цену кривой на диапазоне supply
func (s *CurveService) Trajectory(symbol string, from, to decimal.Decimal, points int) ([]models.TrajectoryPoint, error) {
	token, err := s.getToken(symbol)
	if err != nil {
		return nil, err
	}

	pricer := curve.NewPricer(token.Curve)
	return pricer.Trajectory(from, to, points), nil
}

// CurveTradeResult - результат сделки против кривой
type CurveTradeResult struct {
	Symbol     string                    `json:"symbol"`
	Side       string                    `json:"side"`
	Amount     decimal.Decimal           `json:"amount"`
	Notional   decimal.Decimal           `json:"notional"` // стоимость покупки или выручка продажи
	AvgPrice   decimal.Decimal           `json:"avg_price"`
	Supply     *models.SupplyState       `json:"supply"`
	Graduation models.GraduationProgress `json:"graduation"`
}

// ExecuteTrade исполняет сделку против кривой.
//
// Последовательность: котировка по текущему supply → транзакционный
// сдвиг supply/raised → запись филла в леджер → оценка градуации.
// Сделка, которой supply пересекает порог, сама исполняется по кривой,
// а градуация срабатывает после нее.
func (s *CurveService) ExecuteTrade(symbol, userID, side string, amount decimal.Decimal) (*CurveTradeResult, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidTradeAmount
	}
	if side != models.SideBuy && side != models.SideSell {
		return nil, ErrInvalidTradeAmount
	}

	token, err := s.getToken(symbol)
	if err != nil {
		return nil, err
	}
	if token.Mode != models.ModeCurve {
		return nil, ErrTokenGraduated
	}

	lock := s.symbolLock(symbol)
	lock.Lock()
	defer lock.Unlock()

	state, err := s.tokenRepo.GetSupplyState(token.ID)
	if err != nil {
		return nil, err
	}

	pricer := curve.NewPricer(token.Curve)

	var q *models.Quote
	var supplyDelta, raisedDelta, notional decimal.Decimal
	if side == models.SideBuy {
		q, err = pricer.QuoteBuy(state.CurrentSupply, amount)
		if err != nil {
			return nil, err
		}
		notional = q.TotalCost
		supplyDelta = amount
		raisedDelta = notional
	} else {
		q, err = pricer.QuoteSell(state.CurrentSupply, amount)
		if err != nil {
			return nil, err
		}
		notional = q.TotalReturn
		supplyDelta = amount.Neg()
		raisedDelta = notional.Neg()
	}

	newState, err := s.tokenRepo.ApplyCurveTrade(token.ID, supplyDelta, raisedDelta)
	if err != nil {
		return nil, err
	}

	fill := &models.Fill{
		OrderID:     fmt.Sprintf("curve-%s-%s", symbol, userID),
		Amount:      amount,
		Price:       q.EstimatedPrice,
		Source:      models.SourceCurve,
		PriceImpact: decimal.Zero,
	}
	if err := s.fillRepo.Record(fill); err != nil {
		// Состояние выпуска уже сдвинуто - сделка состоялась, леджер догонит сверка
		log.Printf("[curve] %s fill not recorded: %v", symbol, err)
	}

	engine.CurveTradesTotal.WithLabelValues(side).Inc()

	progress := s.evaluator.Evaluate(token, *newState)

	return &CurveTradeResult{
		Symbol:     symbol,
		Side:       side,
		Amount:     amount,
		Notional:   notional,
		AvgPrice:   q.EstimatedPrice,
		Supply:     newState,
		Graduation: progress,
	}, nil
}

// ForceGraduate принудительно градуирует токен (админ-операция)
func (s *CurveService) ForceGraduate(symbol string) error {
	token, err := s.getToken(symbol)
	if err != nil {
		return err
	}
	if token.Mode != models.ModeCurve {
		return ErrTokenGraduated
	}

	s.evaluator.MarkGraduated(symbol)
	s.onGraduate(symbol, decimal.NewFromInt(1))
	return nil
}

// onGraduate вызывается оценщиком ровно один раз на токен.
// Засеивает пул собранными средствами, регистрирует пару в роутере
// и персистит смену режима.
func (s *CurveService) onGraduate(symbol string, progress decimal.Decimal) {
	token, err := s.getToken(symbol)
	if err != nil {
		log.Printf("[curve] graduation of %s: load token failed: %v", symbol, err)
		return
	}

	state, err := s.tokenRepo.GetSupplyState(token.ID)
	if err != nil {
		log.Printf("[curve] graduation of %s: load supply failed: %v", symbol, err)
		return
	}

	// Засев: quote-резерв = собранные средства, base-резерв по спот-цене
	pricer := curve.NewPricer(token.Curve)
	spot := pricer.SpotPrice(state.CurrentSupply)

	quoteReserve := state.TotalRaised
	baseReserve := decimal.Zero
	if spot.IsPositive() {
		baseReserve = quoteReserve.Div(spot)
	}

	pool := engine.NewPool(symbol, baseReserve, quoteReserve, s.poolCfg.Fee, s.poolCfg.MaxImpact)
	s.router.RegisterPair(symbol, pool, engine.NewBook(symbol))

	reserves := pool.Reserves()
	if err := s.tokenRepo.SaveReserves(symbol, &reserves); err != nil {
		log.Printf("[curve] graduation of %s: save reserves failed: %v", symbol, err)
	}
	if err := s.tokenRepo.SetGraduated(token.ID, time.Now()); err != nil {
		log.Printf("[curve] graduation of %s: persist mode failed: %v", symbol, err)
	}

	engine.GraduationsTotal.Inc()
	if s.hub != nil {
		s.hub.BroadcastGraduation(symbol, progress)
	}

	log.Printf("[curve] %s graduated: pool seeded base=%s quote=%s", symbol, baseReserve.String(), quoteReserve.String())
}

func (s *CurveService) getToken(symbol string) (*models.IndexToken, error) {
	token, err := s.tokenRepo.GetBySymbol(symbol)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	return token, nil
}

func (s *CurveService) symbolLock(symbol string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[symbol]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[symbol] = lock
	}
	return lock
}

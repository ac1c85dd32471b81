package settlement

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"

	"indexmarket/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Ошибки очереди сеттлмента
var (
	ErrResultNotFound    = errors.New("settlement result not found")
	ErrLedgerWriteFailed = errors.New("ledger write failed")
)

// Ключи Redis
const (
	laneKeyPrefix    = "settlement:lane:"
	requestKeyPrefix = "settlement:request:"
	resultKeyPrefix  = "settlement:result:"
	userKeyPrefix    = "settlement:user:"
)

// Config - параметры очереди
type Config struct {
	TickInterval time.Duration // период фонового сканирования лейнов
	MaxRetries   int           // дефолт для запросов без собственного лимита
	ResultTTL    time.Duration // окно удержания результатов в Redis
}

// ResultRecorder - дуранбельное зеркало терминальных результатов
// (append-only запись в Postgres для аудита и сверки)
type ResultRecorder interface {
	RecordResult(result *models.SettlementResult) error
}

// Notifier - push-уведомления о переходах статусов
// (Pull-based GetResult остаётся для клиентов с поллингом)
type Notifier interface {
	BroadcastSettlementUpdate(result *models.SettlementResult)
}

// Queue - асинхронная очередь финализации филлов.
//
// Приоритетные лейны - Redis-списки: постановка переживает рестарт
// процесса. Результаты пишутся как pending СРАЗУ при постановке,
// чтобы статусные запросы никогда не отвечали "not found" сразу
// после сабмита.
//
// Фоновый цикл: каждый тик снимает не более ОДНОГО запроса из самого
// приоритетного непустого лейна и диспетчеризует его асинхронно -
// тики не блокируются исполнением (fire-and-forget с колбэком
// завершения).
type Queue struct {
	rdb      *redis.Client
	executor Executor
	cfg      Config
	recorder ResultRecorder // может быть nil
	notifier Notifier       // может быть nil

	stop chan struct{}
}

// NewQueue создаёт очередь
func NewQueue(rdb *redis.Client, executor Executor, cfg Config, recorder ResultRecorder, notifier Notifier) *Queue {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 100 * time.Millisecond
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &Queue{
		rdb:      rdb,
		executor: executor,
		cfg:      cfg,
		recorder: recorder,
		notifier: notifier,
		stop:     make(chan struct{}),
	}
}

// Enqueue ставит запрос в лейн. Идемпотентна по req.ID: повторная
// постановка того же id - no-op, терминальный результат будет один.
func (q *Queue) Enqueue(ctx context.Context, req *models.SettlementRequest) error {
	if req.ID == "" {
		return fmt.Errorf("settlement request without id")
	}
	if !validPriority(req.Priority) {
		req.Priority = models.PriorityNormal
	}
	if req.MaxRetries <= 0 {
		req.MaxRetries = q.cfg.MaxRetries
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now()
	}

	// Pending-результат через SETNX - одновременно replay-защита
	pending := &models.SettlementResult{
		ID:        req.ID,
		OrderID:   req.OrderID,
		UserID:    req.UserID,
		Status:    models.SettlementPending,
		UpdatedAt: time.Now(),
	}
	data, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("marshal pending result: %w", err)
	}

	created, err := q.rdb.SetNX(ctx, resultKeyPrefix+req.ID, data, q.cfg.ResultTTL).Result()
	if err != nil {
		return fmt.Errorf("setnx pending result: %w", err)
	}
	if !created {
		log.Printf("[settlement] request %s already enqueued, skipping duplicate", req.ID)
		return nil
	}

	if err := q.storeRequest(ctx, req); err != nil {
		return err
	}
	if err := q.rdb.LPush(ctx, laneKeyPrefix+req.Priority, req.ID).Err(); err != nil {
		return fmt.Errorf("push to lane %s: %w", req.Priority, err)
	}
	if req.UserID != "" {
		userKey := userKeyPrefix + req.UserID
		q.rdb.SAdd(ctx, userKey, req.ID)
		q.rdb.Expire(ctx, userKey, q.cfg.ResultTTL)
	}

	QueueDepth.WithLabelValues(req.Priority).Inc()
	return nil
}

// Run запускает фоновый цикл до отмены контекста
func (q *Queue) Run(ctx context.Context) {
	ticker := time.NewTicker(q.cfg.TickInterval)
	defer ticker.Stop()

	log.Printf("[settlement] queue started, tick %s", q.cfg.TickInterval)
	for {
		select {
		case <-ctx.Done():
			log.Printf("[settlement] queue stopped")
			return
		case <-q.stop:
			return
		case <-ticker.C:
			q.SweepOnce(ctx)
		}
	}
}

// Stop останавливает фоновый цикл
func (q *Queue) Stop() {
	close(q.stop)
}

// SweepOnce снимает не более одного запроса из самого приоритетного
// непустого лейна и диспетчеризует его. Возвращает true если что-то
// было диспетчеризовано.
func (q *Queue) SweepOnce(ctx context.Context) bool {
	for _, lane := range models.PriorityLanes {
		id, err := q.rdb.RPop(ctx, laneKeyPrefix+lane).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			log.Printf("[settlement] lane %s pop failed: %v", lane, err)
			return false
		}

		QueueDepth.WithLabelValues(lane).Dec()
		go q.process(ctx, id)
		return true
	}
	return false
}

// process исполняет одну попытку сеттлмента (в своей горутине)
func (q *Queue) process(ctx context.Context, id string) {
	req, err := q.loadRequest(ctx, id)
	if err != nil {
		log.Printf("[settlement] request %s missing, dropping: %v", id, err)
		return
	}

	result, err := q.loadResult(ctx, id)
	if err != nil {
		log.Printf("[settlement] result %s missing, dropping: %v", id, err)
		return
	}
	if !CanTransition(result.Status, models.SettlementProcessing) {
		log.Printf("[settlement] request %s in status %s, not processable", id, result.Status)
		return
	}

	result.Status = models.SettlementProcessing
	result.Attempts++
	result.UpdatedAt = time.Now()
	if err := q.storeResult(ctx, result); err != nil {
		log.Printf("[settlement] store processing status for %s failed: %v", id, err)
	}

	start := time.Now()
	ref, execErr := q.executor.Execute(ctx, req)
	elapsed := time.Since(start)
	ExecutionLatency.Observe(float64(elapsed.Milliseconds()))

	if execErr == nil {
		result.Status = models.SettlementCompleted
		result.ConfirmationRef = ref
		result.ExecutionTime = elapsed
		result.UpdatedAt = time.Now()
		q.finalize(ctx, result)
		return
	}

	// Ретрай под тем же id: клиентский polling остаётся валидным
	if req.RetryCount < req.MaxRetries {
		req.RetryCount++
		result.Status = models.SettlementPending
		result.UpdatedAt = time.Now()

		if err := q.storeRequest(ctx, req); err != nil {
			log.Printf("[settlement] store retry request %s failed: %v", id, err)
		}
		if err := q.storeResult(ctx, result); err != nil {
			log.Printf("[settlement] store retry result %s failed: %v", id, err)
		}

		lane := retryLane(req.Priority)
		if err := q.rdb.LPush(ctx, laneKeyPrefix+lane, req.ID).Err(); err != nil {
			log.Printf("[settlement] requeue %s failed: %v", id, err)
			return
		}
		QueueDepth.WithLabelValues(lane).Inc()
		RetriesTotal.Inc()
		log.Printf("[settlement] request %s retry %d/%d via lane %s: %v",
			id, req.RetryCount, req.MaxRetries, lane, execErr)
		return
	}

	result.Status = models.SettlementFailed
	result.Error = execErr.Error()
	result.ExecutionTime = elapsed
	result.UpdatedAt = time.Now()
	q.finalize(ctx, result)
}

// finalize фиксирует терминальный результат: Redis + дуранбельное
// зеркало + push-уведомление. Ошибка зеркала не откатывает результат.
func (q *Queue) finalize(ctx context.Context, result *models.SettlementResult) {
	if err := q.storeResult(ctx, result); err != nil {
		log.Printf("[settlement] store terminal result %s failed: %v", result.ID, err)
	}
	SettlementsTotal.WithLabelValues(result.Status).Inc()

	if q.recorder != nil {
		if err := q.recorder.RecordResult(result); err != nil {
			log.Printf("[settlement] durable mirror for %s failed: %v", result.ID, err)
		}
	}
	if q.notifier != nil {
		q.notifier.BroadcastSettlementUpdate(result)
	}
	log.Printf("[settlement] request %s finished: %s (attempts=%d)",
		result.ID, result.Status, result.Attempts)
}

// GetResult возвращает текущий статус запроса
func (q *Queue) GetResult(ctx context.Context, id string) (*models.SettlementResult, error) {
	return q.loadResult(ctx, id)
}

// GetUserRequests возвращает все запросы пользователя в окне удержания
func (q *Queue) GetUserRequests(ctx context.Context, userID string) ([]*models.SettlementResult, error) {
	ids, err := q.rdb.SMembers(ctx, userKeyPrefix+userID).Result()
	if err != nil {
		return nil, fmt.Errorf("load user index: %w", err)
	}

	results := make([]*models.SettlementResult, 0, len(ids))
	for _, id := range ids {
		result, err := q.loadResult(ctx, id)
		if errors.Is(err, ErrResultNotFound) {
			continue // результат вышел из окна удержания
		}
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

// LaneDepth возвращает текущую длину лейна (мониторинг)
func (q *Queue) LaneDepth(ctx context.Context, lane string) (int64, error) {
	return q.rdb.LLen(ctx, laneKeyPrefix+lane).Result()
}

// ============ Внутренние хелперы хранения ============

func (q *Queue) storeRequest(ctx context.Context, req *models.SettlementRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	if err := q.rdb.Set(ctx, requestKeyPrefix+req.ID, data, q.cfg.ResultTTL).Err(); err != nil {
		return fmt.Errorf("store request: %w", err)
	}
	return nil
}

func (q *Queue) loadRequest(ctx context.Context, id string) (*models.SettlementRequest, error) {
	data, err := q.rdb.Get(ctx, requestKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, err
	}
	var req models.SettlementRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("unmarshal request %s: %w", id, err)
	}
	return &req, nil
}

func (q *Queue) storeResult(ctx context.Context, result *models.SettlementResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	return q.rdb.Set(ctx, resultKeyPrefix+result.ID, data, q.cfg.ResultTTL).Err()
}

func (q *Queue) loadResult(ctx context.Context, id string) (*models.SettlementResult, error) {
	data, err := q.rdb.Get(ctx, resultKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, err
	}
	var result models.SettlementResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("unmarshal result %s: %w", id, err)
	}
	return &result, nil
}

func validPriority(p string) bool {
	for _, lane := range models.PriorityLanes {
		if p == lane {
			return true
		}
	}
	return false
}

// retryLane: ретраи уходят в высокоприоритетный лейн,
// urgent остаётся urgent
func retryLane(priority string) string {
	if priority == models.PriorityUrgent {
		return models.PriorityUrgent
	}
	return models.PriorityHigh
}

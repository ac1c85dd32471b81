package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"indexmarket/internal/api"
	"indexmarket/internal/config"
	"indexmarket/internal/engine"
	"indexmarket/internal/repository"
	"indexmarket/internal/service"
	"indexmarket/internal/settlement"
	"indexmarket/internal/websocket"
	"indexmarket/pkg/retry"

	_ "github.com/lib/pq"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация базы данных
	db, err := initDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	log.Printf("Connected to database %s", cfg.Database.DSNWithoutPassword())

	// Инициализация Redis (очередь сеттлмента)
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	// Redis может подниматься параллельно с сервисом - пингуем с backoff
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = retry.Do(pingCtx, func() error {
		return rdb.Ping(pingCtx).Err()
	}, startupRetryConfig("redis"))
	pingCancel()
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}

	log.Printf("Connected to redis at %s", cfg.Redis.Addr)

	// Инициализация репозиториев
	tokenRepo := repository.NewTokenRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	fillRepo := repository.NewFillRepository(db)
	settlementRepo := repository.NewSettlementRepository(db)

	// WebSocket hub
	hub := websocket.NewHub()
	go hub.Run()
	defer hub.Stop()

	// Гибридный роутер
	router := engine.NewRouter(engine.RouterConfig{
		MaxIterations: cfg.Router.MaxIterations,
		QuoteRetries:  cfg.Router.QuoteRetries,
		RetryBackoff:  cfg.Router.RetryBackoff,
	})

	// Очередь сеттлмента: симуляция леджера вместо реального,
	// до интеграции он подменяется через интерфейс Executor
	executor := settlement.NewSimulatedExecutor(0.95, 10*time.Millisecond, 50*time.Millisecond)
	queue := settlement.NewQueue(rdb, executor, settlement.Config{
		TickInterval: cfg.Settlement.TickInterval,
		MaxRetries:   cfg.Settlement.MaxRetries,
		ResultTTL:    cfg.Settlement.ResultTTL,
	}, settlementRepo, hub)

	queueCtx, queueCancel := context.WithCancel(context.Background())
	defer queueCancel()
	go queue.Run(queueCtx)

	// Инициализация сервисов
	curveService := service.NewCurveService(
		tokenRepo,
		fillRepo,
		router,
		hub,
		service.PoolSeedConfig{
			Fee:       cfg.Market.PoolFee,
			MaxImpact: cfg.Market.PoolMaxImpact,
		},
	)

	// Восстановление градуированных пар после рестарта
	if err := curveService.Restore(); err != nil {
		log.Fatalf("Failed to restore graduated pairs: %v", err)
	}

	orderService := service.NewOrderService(
		orderRepo,
		fillRepo,
		tokenRepo,
		router,
		queue,
		hub,
		cfg.Settlement.MaxRetries,
	)

	settlementService := service.NewSettlementService(queue, settlementRepo)

	// Фоновый ретеншн-свип терминальных записей
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()
	go runRetentionSweep(sweepCtx, cfg, orderRepo, settlementRepo)

	// Настройка зависимостей для API
	deps := &api.Dependencies{
		CurveService:      curveService,
		OrderService:      orderService,
		SettlementService: settlementService,
		Hub:               hub,
		AdminKeyHash:      cfg.Security.AdminKeyHash,
	}

	// HTTP сервер
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.SetupRoutes(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Запуск сервера в отдельной горутине
	go func() {
		log.Printf("Starting server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Очередь останавливается первой: недоснятые запросы остаются
	// в Redis-лейнах и будут подхвачены после рестарта
	queue.Stop()
	sweepCancel()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// initDatabase создает подключение к базе данных
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Настройка пула соединений
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Проверка подключения с backoff: при деплое Postgres может быть
	// еще не готов принимать соединения
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err = retry.Do(ctx, func() error {
		return db.PingContext(ctx)
	}, startupRetryConfig("database"))
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// startupRetryConfig - retry-политика подключения к инфраструктуре
func startupRetryConfig(target string) retry.Config {
	cfg := retry.StartupConfig()
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		log.Printf("[startup] %s not ready (attempt %d): %v, retrying in %v", target, attempt, err, delay)
	}
	return cfg
}

// runRetentionSweep периодически выметает старые терминальные записи
// из Postgres. Активные ордера и сеттлменты свип не трогает.
func runRetentionSweep(ctx context.Context, cfg *config.Config, orderRepo *repository.OrderRepository, settlementRepo *repository.SettlementRepository) {
	ticker := time.NewTicker(cfg.Settlement.SweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-cfg.Settlement.RetentionAge)

			if n, err := orderRepo.DeleteOlderThan(cutoff); err != nil {
				log.Printf("[retention] order sweep failed: %v", err)
			} else if n > 0 {
				log.Printf("[retention] removed %d terminal orders older than %s", n, cutoff.Format(time.RFC3339))
			}

			if n, err := settlementRepo.DeleteOlderThan(cutoff); err != nil {
				log.Printf("[retention] settlement sweep failed: %v", err)
			} else if n > 0 {
				log.Printf("[retention] removed %d terminal settlements older than %s", n, cutoff.Format(time.RFC3339))
			}
		}
	}
}

// Package integration contains integration tests for the index token market.
//
// These tests verify the correct interaction between components:
// - API integration tests: full HTTP request cycle
// - WebSocket tests: connection, broadcast messaging
// - Database tests: schema, repositories, transactions
//
// Postgres is expected at TEST_DB_* (tests skip when unreachable).
// Redis is emulated in-process with miniredis, so the settlement
// queue runs without external infrastructure.
package integration

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"indexmarket/internal/api"
	"indexmarket/internal/engine"
	"indexmarket/internal/repository"
	"indexmarket/internal/service"
	"indexmarket/internal/settlement"
	"indexmarket/internal/websocket"

	_ "github.com/lib/pq"
)

// TestConfig contains configuration for integration tests
type TestConfig struct {
	DBDriver   string
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string
}

// TestServer encapsulates all components needed for integration testing
type TestServer struct {
	DB      *sql.DB
	Router  *mux.Router
	Server  *httptest.Server
	Hub     *websocket.Hub
	Redis   *miniredis.Miniredis
	Rdb     *redis.Client
	Queue   *settlement.Queue
	Engine  *engine.Router
	Repos   *TestRepositories
	Services *TestServices
	Cleanup func()
}

// TestRepositories contains all repository instances for testing
type TestRepositories struct {
	Token      *repository.TokenRepository
	Order      *repository.OrderRepository
	Fill       *repository.FillRepository
	Settlement *repository.SettlementRepository
}

// TestServices contains all service instances for testing
type TestServices struct {
	Curve      *service.CurveService
	Order      *service.OrderService
	Settlement *service.SettlementService
}

// getTestConfig returns configuration from environment variables or defaults
func getTestConfig() TestConfig {
	return TestConfig{
		DBDriver:   getEnv("TEST_DB_DRIVER", "postgres"),
		DBHost:     getEnv("TEST_DB_HOST", "localhost"),
		DBPort:     getEnv("TEST_DB_PORT", "5432"),
		DBName:     getEnv("TEST_DB_NAME", "indexmarket_test"),
		DBUser:     getEnv("TEST_DB_USER", "postgres"),
		DBPassword: getEnv("TEST_DB_PASSWORD", "postgres"),
		DBSSLMode:  getEnv("TEST_DB_SSLMODE", "disable"),
	}
}

// mustDecimal parses a decimal literal for test expectations
func mustDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// SetupTestDB creates a test database connection
func SetupTestDB(t *testing.T) (*sql.DB, func()) {
	cfg := getTestConfig()

	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode,
	)

	db, err := sql.Open(cfg.DBDriver, connStr)
	if err != nil {
		t.Skipf("Skipping integration test: cannot connect to database: %v", err)
		return nil, func() {}
	}

	if err := db.Ping(); err != nil {
		t.Skipf("Skipping integration test: cannot ping database: %v", err)
		return nil, func() {}
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	cleanup := func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}

	return db, cleanup
}

// SetupTestServer creates a complete test server with all components
func SetupTestServer(t *testing.T) *TestServer {
	db, dbCleanup := SetupTestDB(t)
	if db == nil {
		return nil
	}

	if err := initTestTables(db); err != nil {
		dbCleanup()
		t.Skipf("Skipping integration test: cannot initialize tables: %v", err)
		return nil
	}

	// In-process Redis for the settlement queue
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	// WebSocket hub
	hub := websocket.NewHub()
	go hub.Run()

	// Repositories
	repos := &TestRepositories{
		Token:      repository.NewTokenRepository(db),
		Order:      repository.NewOrderRepository(db),
		Fill:       repository.NewFillRepository(db),
		Settlement: repository.NewSettlementRepository(db),
	}

	// Hybrid router
	eng := engine.NewRouter(engine.RouterConfig{
		MaxIterations: 100,
		QuoteRetries:  2,
		RetryBackoff:  5 * time.Millisecond,
	})

	// Settlement queue: deterministic executor, always succeeds
	executor := settlement.NewSimulatedExecutor(1.0, time.Millisecond, 2*time.Millisecond)
	queue := settlement.NewQueue(rdb, executor, settlement.Config{
		TickInterval: 10 * time.Millisecond,
		MaxRetries:   3,
		ResultTTL:    time.Hour,
	}, repos.Settlement, hub)

	queueCtx, queueCancel := context.WithCancel(context.Background())
	go queue.Run(queueCtx)

	// Services
	curveSvc := service.NewCurveService(
		repos.Token,
		repos.Fill,
		eng,
		hub,
		service.PoolSeedConfig{
			Fee:       decimal.RequireFromString("0.003"),
			MaxImpact: decimal.RequireFromString("0.1"),
		},
	)
	if err := curveSvc.Restore(); err != nil {
		t.Fatalf("failed to restore graduated pairs: %v", err)
	}

	services := &TestServices{
		Curve:      curveSvc,
		Order:      service.NewOrderService(repos.Order, repos.Fill, repos.Token, eng, queue, hub, 3),
		Settlement: service.NewSettlementService(queue, repos.Settlement),
	}

	deps := &api.Dependencies{
		CurveService:      services.Curve,
		OrderService:      services.Order,
		SettlementService: services.Settlement,
		Hub:               hub,
	}
	router := api.SetupRoutes(deps)

	server := httptest.NewServer(router)

	cleanup := func() {
		server.Close()
		queue.Stop()
		queueCancel()
		hub.Stop()
		rdb.Close()
		cleanupTestTables(db)
		dbCleanup()
	}

	return &TestServer{
		DB:       db,
		Router:   router,
		Server:   server,
		Hub:      hub,
		Redis:    mr,
		Rdb:      rdb,
		Queue:    queue,
		Engine:   eng,
		Repos:    repos,
		Services: services,
		Cleanup:  cleanup,
	}
}

// initTestTables creates tables for testing
func initTestTables(db *sql.DB) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS index_tokens (
			id SERIAL PRIMARY KEY,
			symbol VARCHAR(20) UNIQUE NOT NULL,
			name VARCHAR(100) NOT NULL DEFAULT '',
			mode VARCHAR(10) NOT NULL DEFAULT 'curve',
			base_price DECIMAL(30, 18) NOT NULL,
			linear_coeff DECIMAL(30, 18) NOT NULL DEFAULT 0,
			quadratic_coeff DECIMAL(30, 18) NOT NULL DEFAULT 0,
			target_market_cap DECIMAL(30, 8) NOT NULL DEFAULT 0,
			graduation_threshold_supply DECIMAL(30, 8) NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT NOW(),
			graduated_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS supply_states (
			token_id INT PRIMARY KEY REFERENCES index_tokens(id) ON DELETE CASCADE,
			current_supply DECIMAL(30, 8) NOT NULL DEFAULT 0,
			total_raised DECIMAL(30, 8) NOT NULL DEFAULT 0,
			updated_at TIMESTAMP DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS pool_reserves (
			pair VARCHAR(20) PRIMARY KEY,
			base_reserve DECIMAL(30, 8) NOT NULL,
			quote_reserve DECIMAL(30, 8) NOT NULL,
			updated_at TIMESTAMP DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id VARCHAR(36) PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			pair VARCHAR(20) NOT NULL,
			side VARCHAR(4) NOT NULL,
			type VARCHAR(10) NOT NULL,
			amount DECIMAL(30, 8) NOT NULL,
			limit_price DECIMAL(30, 18),
			filled DECIMAL(30, 8) NOT NULL DEFAULT 0,
			remaining DECIMAL(30, 8) NOT NULL DEFAULT 0,
			average_price DECIMAL(30, 18) NOT NULL DEFAULT 0,
			status VARCHAR(20) NOT NULL,
			created_at TIMESTAMP DEFAULT NOW(),
			updated_at TIMESTAMP DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS fills (
			id SERIAL PRIMARY KEY,
			order_id VARCHAR(64) NOT NULL,
			amount DECIMAL(30, 8) NOT NULL,
			price DECIMAL(30, 18) NOT NULL,
			source VARCHAR(10) NOT NULL,
			price_impact DECIMAL(30, 18) NOT NULL DEFAULT 0,
			settlement_ref VARCHAR(36) NOT NULL DEFAULT '',
			reserves_before_base DECIMAL(30, 8),
			reserves_before_quote DECIMAL(30, 8),
			reserves_after_base DECIMAL(30, 8),
			reserves_after_quote DECIMAL(30, 8),
			created_at TIMESTAMP DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS settlement_results (
			id VARCHAR(36) PRIMARY KEY,
			order_id VARCHAR(36) NOT NULL DEFAULT '',
			user_id VARCHAR(64) NOT NULL DEFAULT '',
			status VARCHAR(12) NOT NULL,
			confirmation_ref TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			attempts INT NOT NULL DEFAULT 0,
			execution_time BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMP DEFAULT NOW()
		)`,
	}

	for _, table := range tables {
		if _, err := db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	return nil
}

// cleanupTestTables truncates all test tables
func cleanupTestTables(db *sql.DB) {
	tables := []string{
		"settlement_results",
		"fills",
		"orders",
		"pool_reserves",
		"supply_states",
		"index_tokens",
	}

	for _, table := range tables {
		db.Exec(fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table))
	}
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Router     RouterConfig
	Settlement SettlementConfig
	Market     MarketConfig
	Security   SecurityConfig
	Logging    LoggingConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig - настройки подключения к БД
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// RedisConfig - настройки подключения к Redis (очередь сеттлмента)
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RouterConfig - параметры гибридного роутера
type RouterConfig struct {
	MaxIterations int           // потолок итераций чанкинга на ордер
	QuoteRetries  int           // попыток котировки источника при сбое
	RetryBackoff  time.Duration // базовая задержка ретрая, удваивается
}

// SettlementConfig - параметры очереди финализации
type SettlementConfig struct {
	TickInterval time.Duration // период сканирования лейнов
	MaxRetries   int           // лимит ретраев на запрос
	ResultTTL    time.Duration // окно удержания результатов в Redis
	RetentionAge time.Duration // возраст, после которого терминальные записи выметаются из Postgres
	SweepEvery   time.Duration // период ретеншн-свипа
}

// MarketConfig - рыночные параметры пула, засеиваемого при градуации
type MarketConfig struct {
	PoolFee       decimal.Decimal // доля комиссии, например 0.003
	PoolMaxImpact decimal.Decimal // потолок price impact одного чанка
}

// SecurityConfig - настройки безопасности
type SecurityConfig struct {
	// AdminKeyHash - bcrypt-хеш ключа административных операций.
	// Пустое значение открывает admin-endpoints только в development.
	AdminKeyHash string
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "indexmarket"),
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Router: RouterConfig{
			MaxIterations: getEnvAsInt("ROUTER_MAX_ITERATIONS", 100),
			QuoteRetries:  getEnvAsInt("ROUTER_QUOTE_RETRIES", 2),
			RetryBackoff:  getEnvAsDuration("ROUTER_RETRY_BACKOFF", 50*time.Millisecond),
		},
		Settlement: SettlementConfig{
			TickInterval: getEnvAsDuration("SETTLEMENT_TICK_INTERVAL", 100*time.Millisecond),
			MaxRetries:   getEnvAsInt("SETTLEMENT_MAX_RETRIES", 3),
			ResultTTL:    getEnvAsDuration("SETTLEMENT_RESULT_TTL", 24*time.Hour),
			RetentionAge: getEnvAsDuration("SETTLEMENT_RETENTION_AGE", 30*24*time.Hour),
			SweepEvery:   getEnvAsDuration("SETTLEMENT_SWEEP_EVERY", 1*time.Hour),
		},
		Market: MarketConfig{
			PoolFee:       getEnvAsDecimal("POOL_FEE", "0.003"),
			PoolMaxImpact: getEnvAsDecimal("POOL_MAX_IMPACT", "0.1"),
		},
		Security: SecurityConfig{
			AdminKeyHash: getEnv("ADMIN_KEY_HASH", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.validateRanges(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateRanges проверяет числовые диапазоны параметров
func (c *Config) validateRanges() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}

	if c.Router.MaxIterations < 1 {
		return fmt.Errorf("ROUTER_MAX_ITERATIONS must be positive, got %d", c.Router.MaxIterations)
	}

	if c.Settlement.MaxRetries < 0 {
		return fmt.Errorf("SETTLEMENT_MAX_RETRIES cannot be negative, got %d", c.Settlement.MaxRetries)
	}

	if c.Settlement.MaxRetries > 10 {
		return fmt.Errorf("SETTLEMENT_MAX_RETRIES should not exceed 10, got %d", c.Settlement.MaxRetries)
	}

	if c.Settlement.TickInterval <= 0 {
		return fmt.Errorf("SETTLEMENT_TICK_INTERVAL must be positive, got %v", c.Settlement.TickInterval)
	}

	if !c.Market.PoolFee.IsPositive() && !c.Market.PoolFee.IsZero() {
		return fmt.Errorf("POOL_FEE cannot be negative, got %s", c.Market.PoolFee)
	}

	if c.Market.PoolFee.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("POOL_FEE must be a fraction below 1, got %s", c.Market.PoolFee)
	}

	if !c.Market.PoolMaxImpact.IsPositive() {
		return fmt.Errorf("POOL_MAX_IMPACT must be positive, got %s", c.Market.PoolMaxImpact)
	}

	return nil
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDecimal(key, defaultValue string) decimal.Decimal {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}
	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		return decimal.RequireFromString(defaultValue)
	}
	return value
}

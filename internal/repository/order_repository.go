package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"indexmarket/internal/models"
)

// Ошибки репозитория ордеров
var (
	ErrOrderNotFound = errors.New("order not found")
)

// OrderRepository - работа с таблицей orders
type OrderRepository struct {
	db *sql.DB
}

// NewOrderRepository создает новый экземпляр репозитория
func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create создает запись об ордере
func (r *OrderRepository) Create(order *models.Order) error {
	query := `
		INSERT INTO orders (id, user_id, pair, side, type, amount, limit_price, filled, remaining, average_price, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt

	var limitPrice interface{}
	if order.LimitPrice != nil {
		limitPrice = *order.LimitPrice
	}

	_, err := r.db.Exec(
		query,
		order.ID,
		order.UserID,
		order.Pair,
		order.Side,
		order.Type,
		order.Amount,
		limitPrice,
		order.Filled,
		order.Remaining,
		order.AveragePrice,
		order.Status,
		order.CreatedAt,
		order.UpdatedAt,
	)

	return err
}

// GetByID возвращает ордер по ID
func (r *OrderRepository) GetByID(id string) (*models.Order, error) {
	query := `
		SELECT id, user_id, pair, side, type, amount, limit_price, filled, remaining, average_price, status, created_at, updated_at
		FROM orders
		WHERE id = $1`

	order, err := scanOrder(r.db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	return order, nil
}

// UpdateExecution фиксирует результат роутинга: filled/remaining/статус
func (r *OrderRepository) UpdateExecution(id string, filled, remaining, averagePrice decimal.Decimal, status string) error {
	query := `
		UPDATE orders
		SET filled = $1, remaining = $2, average_price = $3, status = $4, updated_at = $5
		WHERE id = $6`

	result, err := r.db.Exec(query, filled, remaining, averagePrice, status, time.Now(), id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrOrderNotFound
	}

	return nil
}

// OrderFilter - опциональные фильтры листинга ордеров
type OrderFilter struct {
	UserID string
	Pair   string
	Status string
	Limit  int
	Offset int
}

// List возвращает ордера с фильтрацией и пагинацией, новые первыми
func (r *OrderRepository) List(filter OrderFilter) ([]*models.Order, error) {
	query := `
		SELECT id, user_id, pair, side, type, amount, limit_price, filled, remaining, average_price, status, created_at, updated_at
		FROM orders`

	var conditions []string
	var args []interface{}

	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Pair != "" {
		args = append(args, filter.Pair)
		conditions = append(conditions, fmt.Sprintf("pair = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	for i, c := range conditions {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return orders, nil
}

// CountByStatus возвращает количество ордеров с определенным статусом
func (r *OrderRepository) CountByStatus(status string) (int, error) {
	query := `SELECT COUNT(*) FROM orders WHERE status = $1`

	var count int
	err := r.db.QueryRow(query, status).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}

// DeleteOlderThan удаляет терминальные ордера старше указанной даты
func (r *OrderRepository) DeleteOlderThan(timestamp time.Time) (int64, error) {
	query := `DELETE FROM orders WHERE created_at < $1 AND status IN ($2, $3, $4)`

	result, err := r.db.Exec(query, timestamp, models.OrderStatusFilled, models.OrderStatusRejected, models.OrderStatusCancelled)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// scanner покрывает и *sql.Row, и *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(s scanner) (*models.Order, error) {
	order := &models.Order{}
	var limitPrice decimal.NullDecimal

	err := s.Scan(
		&order.ID,
		&order.UserID,
		&order.Pair,
		&order.Side,
		&order.Type,
		&order.Amount,
		&limitPrice,
		&order.Filled,
		&order.Remaining,
		&order.AveragePrice,
		&order.Status,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if limitPrice.Valid {
		order.LimitPrice = &limitPrice.Decimal
	}

	return order, nil
}

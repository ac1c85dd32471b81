package repository

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"indexmarket/internal/models"
)

// FillRepository - append-only леджер филлов.
// Записи никогда не обновляются и не удаляются: вместе со снимками
// резервов они позволяют реконструировать любое исполнение.
type FillRepository struct {
	db *sql.DB
}

// NewFillRepository создает новый экземпляр репозитория
func NewFillRepository(db *sql.DB) *FillRepository {
	return &FillRepository{db: db}
}

// Record добавляет филл в леджер
func (r *FillRepository) Record(fill *models.Fill) error {
	query := `
		INSERT INTO fills (order_id, amount, price, source, price_impact, settlement_ref, reserves_before_base, reserves_before_quote, reserves_after_base, reserves_after_quote, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`

	fill.CreatedAt = time.Now()

	var beforeBase, beforeQuote, afterBase, afterQuote interface{}
	if fill.ReservesBefore != nil {
		beforeBase = fill.ReservesBefore.Base
		beforeQuote = fill.ReservesBefore.Quote
	}
	if fill.ReservesAfter != nil {
		afterBase = fill.ReservesAfter.Base
		afterQuote = fill.ReservesAfter.Quote
	}

	return r.db.QueryRow(
		query,
		fill.OrderID,
		fill.Amount,
		fill.Price,
		fill.Source,
		fill.PriceImpact,
		fill.SettlementRef,
		beforeBase,
		beforeQuote,
		afterBase,
		afterQuote,
		fill.CreatedAt,
	).Scan(&fill.ID)
}

// GetByOrderID возвращает все филлы ордера в порядке исполнения
func (r *FillRepository) GetByOrderID(orderID string) ([]*models.Fill, error) {
	query := `
		SELECT id, order_id, amount, price, source, price_impact, settlement_ref, reserves_before_base, reserves_before_quote, reserves_after_base, reserves_after_quote, created_at
		FROM fills
		WHERE order_id = $1
		ORDER BY id`

	rows, err := r.db.Query(query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectFills(rows)
}

// GetRecent возвращает последние N филлов
func (r *FillRepository) GetRecent(limit int) ([]*models.Fill, error) {
	query := `
		SELECT id, order_id, amount, price, source, price_impact, settlement_ref, reserves_before_base, reserves_before_quote, reserves_after_base, reserves_after_quote, created_at
		FROM fills
		ORDER BY id DESC
		LIMIT $1`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectFills(rows)
}

func collectFills(rows *sql.Rows) ([]*models.Fill, error) {
	var fills []*models.Fill
	for rows.Next() {
		fill := &models.Fill{}
		var beforeBase, beforeQuote, afterBase, afterQuote decimal.NullDecimal

		err := rows.Scan(
			&fill.ID,
			&fill.OrderID,
			&fill.Amount,
			&fill.Price,
			&fill.Source,
			&fill.PriceImpact,
			&fill.SettlementRef,
			&beforeBase,
			&beforeQuote,
			&afterBase,
			&afterQuote,
			&fill.CreatedAt,
		)
		if err != nil {
			return nil, err
		}

		if beforeBase.Valid && beforeQuote.Valid {
			fill.ReservesBefore = &models.PoolReserves{Base: beforeBase.Decimal, Quote: beforeQuote.Decimal}
		}
		if afterBase.Valid && afterQuote.Valid {
			fill.ReservesAfter = &models.PoolReserves{Base: afterBase.Decimal, Quote: afterQuote.Decimal}
		}

		fills = append(fills, fill)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return fills, nil
}

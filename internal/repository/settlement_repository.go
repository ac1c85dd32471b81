package repository

import (
	"database/sql"
	"errors"
	"time"

	"indexmarket/internal/models"
)

// Ошибки репозитория сеттлментов
var (
	ErrSettlementNotFound = errors.New("settlement result not found")
)

// SettlementRepository - долговременное зеркало терминальных результатов.
// Redis хранит результат только в пределах TTL, Postgres - навсегда:
// статусные запросы после истечения TTL обслуживаются отсюда.
type SettlementRepository struct {
	db *sql.DB
}

// NewSettlementRepository создает новый экземпляр репозитория
func NewSettlementRepository(db *sql.DB) *SettlementRepository {
	return &SettlementRepository{db: db}
}

// RecordResult сохраняет терминальный результат (upsert по id запроса)
func (r *SettlementRepository) RecordResult(result *models.SettlementResult) error {
	query := `
		INSERT INTO settlement_results (id, order_id, user_id, status, confirmation_ref, error, attempts, execution_time, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id)
		DO UPDATE SET status = $4, confirmation_ref = $5, error = $6, attempts = $7, execution_time = $8, updated_at = $9`

	_, err := r.db.Exec(
		query,
		result.ID,
		result.OrderID,
		result.UserID,
		result.Status,
		result.ConfirmationRef,
		result.Error,
		result.Attempts,
		int64(result.ExecutionTime),
		result.UpdatedAt,
	)

	return err
}

// GetByID возвращает результат по ID запроса
func (r *SettlementRepository) GetByID(id string) (*models.SettlementResult, error) {
	query := `
		SELECT id, order_id, user_id, status, confirmation_ref, error, attempts, execution_time, updated_at
		FROM settlement_results
		WHERE id = $1`

	result := &models.SettlementResult{}
	var execTime int64

	err := r.db.QueryRow(query, id).Scan(
		&result.ID,
		&result.OrderID,
		&result.UserID,
		&result.Status,
		&result.ConfirmationRef,
		&result.Error,
		&result.Attempts,
		&execTime,
		&result.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSettlementNotFound
		}
		return nil, err
	}

	result.ExecutionTime = time.Duration(execTime)
	return result, nil
}

// GetByUser возвращает результаты пользователя, новые первыми
func (r *SettlementRepository) GetByUser(userID string, limit int) ([]*models.SettlementResult, error) {
	query := `
		SELECT id, order_id, user_id, status, confirmation_ref, error, attempts, execution_time, updated_at
		FROM settlement_results
		WHERE user_id = $1
		ORDER BY updated_at DESC
		LIMIT $2`

	rows, err := r.db.Query(query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*models.SettlementResult
	for rows.Next() {
		result := &models.SettlementResult{}
		var execTime int64

		err := rows.Scan(
			&result.ID,
			&result.OrderID,
			&result.UserID,
			&result.Status,
			&result.ConfirmationRef,
			&result.Error,
			&result.Attempts,
			&execTime,
			&result.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}

		result.ExecutionTime = time.Duration(execTime)
		results = append(results, result)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}

// DeleteOlderThan удаляет результаты старше указанной даты
func (r *SettlementRepository) DeleteOlderThan(timestamp time.Time) (int64, error) {
	query := `DELETE FROM settlement_results WHERE updated_at < $1`

	result, err := r.db.Exec(query, timestamp)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

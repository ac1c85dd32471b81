package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"indexmarket/internal/models"
)

// Ошибки репозитория токенов
var (
	ErrTokenNotFound    = errors.New("index token not found")
	ErrReservesNotFound = errors.New("pool reserves not found")
)

// TokenRepository - работа с таблицами index_tokens, supply_states и pool_reserves
type TokenRepository struct {
	db *sql.DB
}

// NewTokenRepository создает новый экземпляр репозитория
func NewTokenRepository(db *sql.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Create создает запись об индексном токене вместе с нулевым состоянием выпуска
func (r *TokenRepository) Create(token *models.IndexToken) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO index_tokens (symbol, name, mode, base_price, linear_coeff, quadratic_coeff, target_market_cap, graduation_threshold_supply, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	token.CreatedAt = time.Now()

	err = tx.QueryRow(
		query,
		token.Symbol,
		token.Name,
		token.Mode,
		token.Curve.BasePrice,
		token.Curve.LinearCoeff,
		token.Curve.QuadraticCoeff,
		token.Curve.TargetMarketCap,
		token.Curve.GraduationThresholdSupply,
		token.CreatedAt,
	).Scan(&token.ID)

	if err != nil {
		return err
	}

	_, err = tx.Exec(
		`INSERT INTO supply_states (token_id, current_supply, total_raised, updated_at) VALUES ($1, 0, 0, $2)`,
		token.ID,
		token.CreatedAt,
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// GetBySymbol возвращает токен по символу
func (r *TokenRepository) GetBySymbol(symbol string) (*models.IndexToken, error) {
	query := `
		SELECT id, symbol, name, mode, base_price, linear_coeff, quadratic_coeff, target_market_cap, graduation_threshold_supply, created_at, graduated_at
		FROM index_tokens
		WHERE symbol = $1`

	token := &models.IndexToken{}
	err := r.db.QueryRow(query, symbol).Scan(
		&token.ID,
		&token.Symbol,
		&token.Name,
		&token.Mode,
		&token.Curve.BasePrice,
		&token.Curve.LinearCoeff,
		&token.Curve.QuadraticCoeff,
		&token.Curve.TargetMarketCap,
		&token.Curve.GraduationThresholdSupply,
		&token.CreatedAt,
		&token.GraduatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}

	return token, nil
}

// GetAll возвращает все токены
func (r *TokenRepository) GetAll() ([]*models.IndexToken, error) {
	query := `
		SELECT id, symbol, name, mode, base_price, linear_coeff, quadratic_coeff, target_market_cap, graduation_threshold_supply, created_at, graduated_at
		FROM index_tokens
		ORDER BY symbol`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []*models.IndexToken
	for rows.Next() {
		token := &models.IndexToken{}
		err := rows.Scan(
			&token.ID,
			&token.Symbol,
			&token.Name,
			&token.Mode,
			&token.Curve.BasePrice,
			&token.Curve.LinearCoeff,
			&token.Curve.QuadraticCoeff,
			&token.Curve.TargetMarketCap,
			&token.Curve.GraduationThresholdSupply,
			&token.CreatedAt,
			&token.GraduatedAt,
		)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return tokens, nil
}

// GetSupplyState возвращает текущее состояние выпуска токена
func (r *TokenRepository) GetSupplyState(tokenID int) (*models.SupplyState, error) {
	query := `
		SELECT current_supply, total_raised, updated_at
		FROM supply_states
		WHERE token_id = $1`

	state := &models.SupplyState{}
	err := r.db.QueryRow(query, tokenID).Scan(
		&state.CurrentSupply,
		&state.TotalRaised,
		&state.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}

	return state, nil
}

// ApplyCurveTrade атомарно сдвигает supply и raised одной сделкой.
// Для покупки оба дельты положительные, для продажи - отрицательные.
// WHERE-условие не дает supply уйти ниже нуля при гонке двух продаж.
func (r *TokenRepository) ApplyCurveTrade(tokenID int, supplyDelta, raisedDelta decimal.Decimal) (*models.SupplyState, error) {
	query := `
		UPDATE supply_states
		SET current_supply = current_supply + $1, total_raised = total_raised + $2, updated_at = $3
		WHERE token_id = $4 AND current_supply + $1 >= 0
		RETURNING current_supply, total_raised, updated_at`

	state := &models.SupplyState{}
	err := r.db.QueryRow(query, supplyDelta, raisedDelta, time.Now(), tokenID).Scan(
		&state.CurrentSupply,
		&state.TotalRaised,
		&state.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}

	return state, nil
}

// SetGraduated переводит токен в гибридный режим
func (r *TokenRepository) SetGraduated(tokenID int, graduatedAt time.Time) error {
	query := `
		UPDATE index_tokens
		SET mode = $1, graduated_at = $2
		WHERE id = $3`

	result, err := r.db.Exec(query, models.ModeHybrid, graduatedAt, tokenID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrTokenNotFound
	}

	return nil
}

// SaveReserves сохраняет снимок резервов пула (upsert по паре)
func (r *TokenRepository) SaveReserves(pair string, reserves *models.PoolReserves) error {
	query := `
		INSERT INTO pool_reserves (pair, base_reserve, quote_reserve, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (pair)
		DO UPDATE SET base_reserve = $2, quote_reserve = $3, updated_at = $4`

	_, err := r.db.Exec(query, pair, reserves.Base, reserves.Quote, time.Now())
	return err
}

// LoadReserves возвращает сохраненные резервы пула
func (r *TokenRepository) LoadReserves(pair string) (*models.PoolReserves, error) {
	query := `
		SELECT base_reserve, quote_reserve
		FROM pool_reserves
		WHERE pair = $1`

	reserves := &models.PoolReserves{}
	err := r.db.QueryRow(query, pair).Scan(&reserves.Base, &reserves.Quote)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReservesNotFound
		}
		return nil, err
	}

	return reserves, nil
}

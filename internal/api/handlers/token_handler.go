package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"indexmarket/internal/curve"
	"indexmarket/internal/models"
	"indexmarket/internal/service"
)

// TokenHandler отвечает за индексные токены и торговлю по бондинг-кривой
//
// Endpoints:
// - POST /api/v1/tokens                      - листинг нового индексного токена (admin)
// - GET /api/v1/tokens                       - список всех токенов
// - GET /api/v1/tokens/{symbol}              - состояние токена (supply, цена, прогресс градуации)
// - GET /api/v1/tokens/{symbol}/quote        - котировка покупки/продажи по кривой
// - GET /api/v1/tokens/{symbol}/trajectory   - симуляция цены на диапазоне supply
// - POST /api/v1/tokens/{symbol}/trade       - сделка против кривой
// - POST /api/v1/tokens/{symbol}/graduate    - принудительная градуация (admin)
type TokenHandler struct {
	curveService service.CurveServiceInterface
}

// NewTokenHandler создает новый TokenHandler с внедрением зависимостей
func NewTokenHandler(curveService service.CurveServiceInterface) *TokenHandler {
	return &TokenHandler{
		curveService: curveService,
	}
}

// CreateTokenRequest структура запроса на листинг токена
type CreateTokenRequest struct {
	Symbol                    string          `json:"symbol"` // IDX1USDC
	Name                      string          `json:"name"`
	BasePrice                 decimal.Decimal `json:"base_price"`
	LinearCoeff               decimal.Decimal `json:"linear_coeff"`
	QuadraticCoeff            decimal.Decimal `json:"quadratic_coeff"`
	TargetMarketCap           decimal.Decimal `json:"target_market_cap"`
	GraduationThresholdSupply decimal.Decimal `json:"graduation_threshold_supply"`
}

// TradeRequest структура запроса на сделку против кривой
type TradeRequest struct {
	UserID string          `json:"user_id"`
	Side   string          `json:"side"` // buy | sell
	Amount decimal.Decimal `json:"amount"`
}

// CreateToken запускает новый индексный токен в curve-режиме
// POST /api/v1/tokens
//
// Request Body:
//
//	{
//	  "symbol": "IDX1USDC",
//	  "name": "Top-10 Index",
//	  "base_price": "0.001",
//	  "linear_coeff": "0.0000001",
//	  "quadratic_coeff": "0",
//	  "target_market_cap": "1000000",
//	  "graduation_threshold_supply": "800000000"
//	}
//
// Response:
// - 201 Created: токен создан
// - 400 Bad Request: невалидные параметры кривой
func (h *TokenHandler) CreateToken(w http.ResponseWriter, r *http.Request) {
	if h.curveService == nil {
		respondWithError(w, http.StatusInternalServerError, "service_unavailable", "Curve service is not available", "")
		return
	}

	var req CreateTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return
	}

	token := &models.IndexToken{
		Symbol: req.Symbol,
		Name:   req.Name,
		Curve: models.CurveParams{
			BasePrice:                 req.BasePrice,
			LinearCoeff:               req.LinearCoeff,
			QuadraticCoeff:            req.QuadraticCoeff,
			TargetMarketCap:           req.TargetMarketCap,
			GraduationThresholdSupply: req.GraduationThresholdSupply,
		},
	}

	if err := h.curveService.CreateToken(token); err != nil {
		h.handleServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, token)
}

// GetTokens возвращает список всех индексных токенов
// GET /api/v1/tokens
//
// Query Parameters:
// - mode: фильтр по режиму (curve, hybrid)
//
// Response:
// - 200 OK: массив токенов
func (h *TokenHandler) GetTokens(w http.ResponseWriter, r *http.Request) {
	if h.curveService == nil {
		respondWithError(w, http.StatusInternalServerError, "service_unavailable", "Curve service is not available", "")
		return
	}

	tokens, err := h.curveService.ListTokens()
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "internal_error", "Failed to get tokens", err.Error())
		return
	}

	// Опциональный фильтр по режиму
	modeFilter := r.URL.Query().Get("mode")

	response := make([]*models.IndexToken, 0, len(tokens))
	for _, token := range tokens {
		if modeFilter != "" && token.Mode != modeFilter {
			continue
		}
		response = append(response, token)
	}

	respondWithJSON(w, http.StatusOK, response)
}

// GetToken возвращает токен с состоянием выпуска и прогрессом градуации
// GET /api/v1/tokens/{symbol}
//
// Response:
// - 200 OK: токен, supply, спот-цена, прогресс градуации
// - 404 Not Found: токен не найден
func (h *TokenHandler) GetToken(w http.ResponseWriter, r *http.Request) {
	if h.curveService == nil {
		respondWithError(w, http.StatusInternalServerError, "service_unavailable", "Curve service is not available", "")
		return
	}

	symbol := mux.Vars(r)["symbol"]

	state, err := h.curveService.GetState(symbol)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, state)
}

// GetQuote возвращает котировку покупки или продажи по кривой.
// Котировка эфемерна и ликвидность не резервирует.
//
// GET /api/v1/tokens/{symbol}/quote?side=buy&amount=1000
//
// Response:
// - 200 OK: котировка
// - 400 Bad Request: невалидные параметры
// - 404 Not Found: токен не найден
// - 409 Conflict: токен уже градуировал
func (h *TokenHandler) GetQuote(w http.ResponseWriter, r *http.Request) {
	if h.curveService == nil {
		respondWithError(w, http.StatusInternalServerError, "service_unavailable", "Curve service is not available", "")
		return
	}

	symbol := mux.Vars(r)["symbol"]

	side := r.URL.Query().Get("side")
	if side != models.SideBuy && side != models.SideSell {
		respondWithError(w, http.StatusBadRequest, "invalid_side", "Side must be buy or sell", "")
		return
	}

	amount, err := decimal.NewFromString(r.URL.Query().Get("amount"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_amount", "Amount must be a decimal number", err.Error())
		return
	}

	var quote *models.Quote
	if side == models.SideBuy {
		quote, err = h.curveService.QuoteBuy(symbol, amount)
	} else {
		quote, err = h.curveService.QuoteSell(symbol, amount)
	}
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, quote)
}

// GetTrajectory симулирует цену кривой на диапазоне supply
// GET /api/v1/tokens/{symbol}/trajectory?from=0&to=1000000&points=50
//
// Response:
// - 200 OK: массив точек {supply, price}
// - 400 Bad Request: невалидный диапазон
// - 404 Not Found: токен не найден
func (h *TokenHandler) GetTrajectory(w http.ResponseWriter, r *http.Request) {
	if h.curveService == nil {
		respondWithError(w, http.StatusInternalServerError, "service_unavailable", "Curve service is not available", "")
		return
	}

	symbol := mux.Vars(r)["symbol"]

	from, err := decimal.NewFromString(r.URL.Query().Get("from"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_range", "Parameter from must be a decimal number", err.Error())
		return
	}

	to, err := decimal.NewFromString(r.URL.Query().Get("to"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_range", "Parameter to must be a decimal number", err.Error())
		return
	}

	points := 50
	if raw := r.URL.Query().Get("points"); raw != "" {
		points, err = strconv.Atoi(raw)
		if err != nil || points < 2 || points > 1000 {
			respondWithError(w, http.StatusBadRequest, "invalid_points", "Points must be an integer between 2 and 1000", "")
			return
		}
	}

	trajectory, err := h.curveService.Trajectory(symbol, from, to, points)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, trajectory)
}

// Trade исполняет сделку против бондинг-кривой
// POST /api/v1/tokens/{symbol}/trade
//
// Request Body:
//
//	{
//	  "user_id": "user-1",
//	  "side": "buy",
//	  "amount": "1000000"
//	}
//
// Response:
// - 200 OK: результат сделки с новым состоянием выпуска
// - 400 Bad Request: невалидные параметры
// - 404 Not Found: токен не найден
// - 409 Conflict: токен уже градуировал
func (h *TokenHandler) Trade(w http.ResponseWriter, r *http.Request) {
	if h.curveService == nil {
		respondWithError(w, http.StatusInternalServerError, "service_unavailable", "Curve service is not available", "")
		return
	}

	symbol := mux.Vars(r)["symbol"]

	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return
	}

	if req.UserID == "" {
		respondWithError(w, http.StatusBadRequest, "missing_user_id", "user_id is required", "")
		return
	}
	if req.Side != models.SideBuy && req.Side != models.SideSell {
		respondWithError(w, http.StatusBadRequest, "invalid_side", "Side must be buy or sell", "")
		return
	}

	result, err := h.curveService.ExecuteTrade(symbol, req.UserID, req.Side, req.Amount)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

// Graduate принудительно переводит токен в гибридный режим
// POST /api/v1/tokens/{symbol}/graduate
//
// Response:
// - 200 OK: токен градуировал
// - 404 Not Found: токен не найден
// - 409 Conflict: токен уже градуировал
func (h *TokenHandler) Graduate(w http.ResponseWriter, r *http.Request) {
	if h.curveService == nil {
		respondWithError(w, http.StatusInternalServerError, "service_unavailable", "Curve service is not available", "")
		return
	}

	symbol := mux.Vars(r)["symbol"]

	if err := h.curveService.ForceGraduate(symbol); err != nil {
		h.handleServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, SuccessResponse{
		Message: "Token graduated to hybrid mode",
	})
}

// handleServiceError обрабатывает ошибки от сервиса кривой и возвращает соответствующий HTTP статус
func (h *TokenHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrTokenNotFound):
		respondWithError(w, http.StatusNotFound, "token_not_found", "Token not found", "")

	case errors.Is(err, service.ErrTokenGraduated):
		respondWithError(w, http.StatusConflict, "token_graduated", "Token already graduated, trade through the hybrid order endpoint", "")

	case errors.Is(err, service.ErrInvalidToken):
		respondWithError(w, http.StatusBadRequest, "invalid_token", "Invalid token parameters", err.Error())

	case errors.Is(err, service.ErrInvalidTradeAmount):
		respondWithError(w, http.StatusBadRequest, "invalid_amount", "Trade amount must be positive", "")

	case errors.Is(err, curve.ErrInvalidAmount):
		respondWithError(w, http.StatusBadRequest, "invalid_amount", "Amount must be positive", "")

	case errors.Is(err, curve.ErrInsufficientSupply):
		respondWithError(w, http.StatusConflict, "insufficient_supply", "Sell amount exceeds current supply", "")

	default:
		respondWithError(w, http.StatusInternalServerError, "internal_error", "Internal server error", err.Error())
	}
}

package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"indexmarket/internal/service"
)

// SettlementHandler отвечает за статусные запросы финализации сделок
//
// Endpoints:
// - GET /api/v1/settlements/{id}    - статус сеттлмента по ID
// - GET /api/v1/settlements         - сеттлменты пользователя
// - GET /api/v1/settlements/lanes   - глубина приоритетных лейнов
type SettlementHandler struct {
	settlementService service.SettlementServiceInterface
}

// NewSettlementHandler создает новый SettlementHandler с внедрением зависимостей
func NewSettlementHandler(settlementService service.SettlementServiceInterface) *SettlementHandler {
	return &SettlementHandler{
		settlementService: settlementService,
	}
}

// GetSettlement возвращает статус сеттлмента.
// Сначала проверяется активная очередь, затем персистентное зеркало.
//
// GET /api/v1/settlements/{id}
//
// Response:
// - 200 OK: результат сеттлмента
// - 404 Not Found: сеттлмент не найден ни в очереди, ни в зеркале
func (h *SettlementHandler) GetSettlement(w http.ResponseWriter, r *http.Request) {
	if h.settlementService == nil {
		respondWithError(w, http.StatusInternalServerError, "service_unavailable", "Settlement service is not available", "")
		return
	}

	id := mux.Vars(r)["id"]

	result, err := h.settlementService.GetResult(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrSettlementNotFound) {
			respondWithError(w, http.StatusNotFound, "settlement_not_found", "Settlement not found", "")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "internal_error", "Internal server error", err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

// GetSettlements возвращает сеттлменты пользователя
// GET /api/v1/settlements?user_id=user-1&limit=50
//
// Response:
// - 200 OK: массив результатов (очередь + зеркало, без дублей)
// - 400 Bad Request: user_id не указан
func (h *SettlementHandler) GetSettlements(w http.ResponseWriter, r *http.Request) {
	if h.settlementService == nil {
		respondWithError(w, http.StatusInternalServerError, "service_unavailable", "Settlement service is not available", "")
		return
	}

	query := r.URL.Query()

	userID := query.Get("user_id")
	if userID == "" {
		respondWithError(w, http.StatusBadRequest, "missing_user_id", "user_id is required", "")
		return
	}

	limit := 0
	if raw := query.Get("limit"); raw != "" {
		var err error
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			respondWithError(w, http.StatusBadRequest, "invalid_limit", "Limit must be a non-negative integer", "")
			return
		}
	}

	results, err := h.settlementService.GetUserSettlements(r.Context(), userID, limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "internal_error", "Failed to get settlements", err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, results)
}

// GetLaneDepths возвращает глубину каждого приоритетного лейна очереди
// GET /api/v1/settlements/lanes
//
// Response:
// - 200 OK: {"urgent": 0, "high": 2, "normal": 15, "low": 4}
func (h *SettlementHandler) GetLaneDepths(w http.ResponseWriter, r *http.Request) {
	if h.settlementService == nil {
		respondWithError(w, http.StatusInternalServerError, "service_unavailable", "Settlement service is not available", "")
		return
	}

	depths, err := h.settlementService.LaneDepths(r.Context())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "internal_error", "Failed to get lane depths", err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, depths)
}

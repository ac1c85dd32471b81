package service

import (
	"context"
	"errors"

	"indexmarket/internal/models"
	"indexmarket/internal/repository"
	"indexmarket/internal/settlement"
)

// Ошибки сервиса сеттлментов
var (
	ErrSettlementNotFound = errors.New("settlement not found")
)

// SettlementService предоставляет статусные запросы к сеттлментам.
//
// Активные и недавние запросы живут в Redis в пределах TTL;
// терминальные результаты навсегда зеркалируются в Postgres.
// Чтение сперва идет в очередь, затем падает обратно на зеркало.
type SettlementService struct {
	queue SettlementStore
	repo  SettlementRepositoryInterface
}

// NewSettlementService создает новый экземпляр SettlementService
func NewSettlementService(queue SettlementStore, repo SettlementRepositoryInterface) *SettlementService {
	return &SettlementService{
		queue: queue,
		repo:  repo,
	}
}

// GetResult возвращает статус запроса по ID
func (s *SettlementService) GetResult(ctx context.Context, id string) (*models.SettlementResult, error) {
	result, err := s.queue.GetResult(ctx, id)
	if err == nil {
		return result, nil
	}
	if !errors.Is(err, settlement.ErrResultNotFound) {
		return nil, err
	}

	// TTL истек - смотрим долговременное зеркало
	result, err = s.repo.GetByID(id)
	if err != nil {
		if errors.Is(err, repository.ErrSettlementNotFound) {
			return nil, ErrSettlementNotFound
		}
		return nil, err
	}

	return result, nil
}

// GetUserSettlements возвращает сеттлменты пользователя: свежие из
// очереди плюс архивные из зеркала, без дублей по ID
func (s *SettlementService) GetUserSettlements(ctx context.Context, userID string, limit int) ([]*models.SettlementResult, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	recent, err := s.queue.GetUserRequests(ctx, userID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(recent))
	results := make([]*models.SettlementResult, 0, len(recent))
	for _, r := range recent {
		seen[r.ID] = true
		results = append(results, r)
	}

	archived, err := s.repo.GetByUser(userID, limit)
	if err != nil {
		return nil, err
	}
	for _, r := range archived {
		if !seen[r.ID] {
			results = append(results, r)
		}
	}

	if len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

// LaneDepths возвращает текущие глубины всех лейнов (мониторинг)
func (s *SettlementService) LaneDepths(ctx context.Context) (map[string]int64, error) {
	depths := make(map[string]int64, len(models.PriorityLanes))
	for _, lane := range models.PriorityLanes {
		depth, err := s.queue.LaneDepth(ctx, lane)
		if err != nil {
			return nil, err
		}
		depths[lane] = depth
	}
	return depths, nil
}

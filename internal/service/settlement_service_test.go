package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"indexmarket/internal/models"
)

func newSettlementFixture() (*SettlementService, *MockQueue, *MockSettlementRepository) {
	queue := NewMockQueue()
	repo := NewMockSettlementRepository()
	return NewSettlementService(queue, repo), queue, repo
}

func TestGetResultFromQueue(t *testing.T) {
	svc, queue, _ := newSettlementFixture()
	queue.results["stl-1"] = &models.SettlementResult{
		ID:     "stl-1",
		Status: models.SettlementProcessing,
	}

	result, err := svc.GetResult(context.Background(), "stl-1")
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if result.Status != models.SettlementProcessing {
		t.Errorf("expected processing, got %s", result.Status)
	}
}

// После истечения TTL в Redis статус обслуживается из зеркала в Postgres
func TestGetResultFallsBackToMirror(t *testing.T) {
	svc, _, repo := newSettlementFixture()
	repo.RecordResult(&models.SettlementResult{
		ID:        "stl-old",
		Status:    models.SettlementCompleted,
		UpdatedAt: time.Now().Add(-48 * time.Hour),
	})

	result, err := svc.GetResult(context.Background(), "stl-old")
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if result.Status != models.SettlementCompleted {
		t.Errorf("expected completed, got %s", result.Status)
	}
}

func TestGetResultNotFoundAnywhere(t *testing.T) {
	svc, _, _ := newSettlementFixture()

	if _, err := svc.GetResult(context.Background(), "missing"); !errors.Is(err, ErrSettlementNotFound) {
		t.Errorf("expected ErrSettlementNotFound, got %v", err)
	}
}

func TestGetUserSettlementsMergesWithoutDuplicates(t *testing.T) {
	svc, queue, repo := newSettlementFixture()

	// stl-1 живет и в очереди, и в зеркале - очередь выигрывает
	queue.results["stl-1"] = &models.SettlementResult{ID: "stl-1", UserID: "user-1", Status: models.SettlementProcessing}
	repo.RecordResult(&models.SettlementResult{ID: "stl-1", UserID: "user-1", Status: models.SettlementCompleted})
	repo.RecordResult(&models.SettlementResult{ID: "stl-2", UserID: "user-1", Status: models.SettlementFailed})
	repo.RecordResult(&models.SettlementResult{ID: "stl-3", UserID: "user-2", Status: models.SettlementCompleted})

	results, err := svc.GetUserSettlements(context.Background(), "user-1", 100)
	if err != nil {
		t.Fatalf("GetUserSettlements: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	byID := make(map[string]*models.SettlementResult)
	for _, r := range results {
		byID[r.ID] = r
	}
	if byID["stl-1"] == nil || byID["stl-1"].Status != models.SettlementProcessing {
		t.Error("queue copy of stl-1 should win over the mirror")
	}
	if byID["stl-2"] == nil {
		t.Error("archived stl-2 missing from merge")
	}
}

func TestLaneDepths(t *testing.T) {
	svc, _, _ := newSettlementFixture()

	depths, err := svc.LaneDepths(context.Background())
	if err != nil {
		t.Fatalf("LaneDepths: %v", err)
	}
	for _, lane := range models.PriorityLanes {
		if _, ok := depths[lane]; !ok {
			t.Errorf("lane %s missing from depths", lane)
		}
	}
}

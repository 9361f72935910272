package device

import (
	"context"
	"testing"
	"time"
)

func insertHistoryRow(t *testing.T, repo *SQLiteHistoryRepository, deviceID string, createdAt time.Time) {
	t.Helper()

	_, err := repo.db.Exec(
		"INSERT INTO event_history (device_id, event_type, state, created_at) VALUES (?, 'temperature', '{}', ?)",
		deviceID,
		createdAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		t.Fatalf("failed to insert history row: %v", err)
	}
}

func TestRecordEvent(t *testing.T) {
	repo := NewSQLiteHistoryRepository(setupTestDB(t))
	ctx := context.Background()

	if err := repo.RecordEvent(ctx, "d1", "temperature", State{"currentTemperature": 21.5}); err != nil {
		t.Fatalf("RecordEvent() error = %v", err)
	}
	if err := repo.RecordEvent(ctx, "d1", "batteryStatus", nil); err != nil {
		t.Fatalf("RecordEvent() error = %v", err)
	}

	records, err := repo.GetHistory(ctx, "d1", 10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records length = %d, want 2", len(records))
	}
	if records[0].EventType != "batteryStatus" {
		t.Errorf("newest record = %q, want batteryStatus", records[0].EventType)
	}
	if records[1].State["currentTemperature"] != 21.5 {
		t.Errorf("state = %v", records[1].State)
	}
}

func TestRecordEvent_Validation(t *testing.T) {
	repo := NewSQLiteHistoryRepository(setupTestDB(t))
	ctx := context.Background()

	if err := repo.RecordEvent(ctx, "", "touch", nil); err == nil {
		t.Error("RecordEvent() with empty device id: error = nil")
	}
	if err := repo.RecordEvent(ctx, "d1", "", nil); err == nil {
		t.Error("RecordEvent() with empty event type: error = nil")
	}
}

func TestGetHistory_Limit(t *testing.T) {
	repo := NewSQLiteHistoryRepository(setupTestDB(t))
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		insertHistoryRow(t, repo, "d1", base.Add(time.Duration(i)*time.Minute))
	}

	records, err := repo.GetHistory(context.Background(), "d1", 3)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(records) != 3 {
		t.Errorf("records length = %d, want 3", len(records))
	}
	if !records[0].CreatedAt.After(records[2].CreatedAt) {
		t.Error("records not ordered newest first")
	}
}

func TestPruneHistory(t *testing.T) {
	repo := NewSQLiteHistoryRepository(setupTestDB(t))
	now := time.Now()
	insertHistoryRow(t, repo, "d1", now.Add(-48*time.Hour))
	insertHistoryRow(t, repo, "d1", now.Add(-time.Minute))

	deleted, err := repo.PruneHistory(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatalf("PruneHistory() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	if _, err := repo.PruneHistory(context.Background(), 0); err == nil {
		t.Error("PruneHistory(0) error = nil")
	}
}

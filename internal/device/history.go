package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// HistoryRecord is a single applied event with the entry state it produced.
//
// History is observability only: the registry never reads it back, so it
// can be pruned freely.
type HistoryRecord struct {
	// ID is the auto-incremented primary key for the history row.
	ID int64 `json:"id"`

	// DeviceID is the identifier of the entry the event targeted.
	DeviceID string `json:"device_id"`

	// EventType is the webhook event type, e.g. "temperature".
	EventType string `json:"event_type"`

	// State is the JSON snapshot of the entry state after the event.
	State State `json:"state"`

	// CreatedAt is when the event was recorded (UTC).
	CreatedAt time.Time `json:"created_at"`
}

// HistoryRepository stores and retrieves applied-event history.
//
// Implementations must be thread-safe and use UTC timestamps.
type HistoryRepository interface {
	// RecordEvent appends a history record for an entry.
	RecordEvent(ctx context.Context, deviceID, eventType string, state State) error

	// GetHistory returns recent records for the entry, newest first.
	// limit defaults to 50 and is clamped to 200.
	GetHistory(ctx context.Context, deviceID string, limit int) ([]HistoryRecord, error)

	// PruneHistory deletes records older than olderThan and returns how many.
	PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SQLiteHistoryRepository implements HistoryRepository using SQLite.
type SQLiteHistoryRepository struct {
	db *sql.DB
}

// NewSQLiteHistoryRepository creates a new SQLite history repository.
func NewSQLiteHistoryRepository(db *sql.DB) *SQLiteHistoryRepository {
	return &SQLiteHistoryRepository{db: db}
}

// RecordEvent inserts a new history record.
func (r *SQLiteHistoryRepository) RecordEvent(ctx context.Context, deviceID, eventType string, state State) error {
	if deviceID == "" {
		return fmt.Errorf("device id is required")
	}
	if eventType == "" {
		return fmt.Errorf("event type is required")
	}
	if state == nil {
		state = State{}
	}

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshalling state: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		"INSERT INTO event_history (device_id, event_type, state, created_at) VALUES (?, ?, ?, ?)",
		deviceID,
		eventType,
		string(stateJSON),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting event history: %w", err)
	}

	return nil
}

// GetHistory returns recent history records for an entry, newest first.
func (r *SQLiteHistoryRepository) GetHistory(ctx context.Context, deviceID string, limit int) ([]HistoryRecord, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device id is required")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, device_id, event_type, state, created_at
		 FROM event_history
		 WHERE device_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		deviceID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying event history: %w", err)
	}
	defer rows.Close()

	records := make([]HistoryRecord, 0, limit)
	for rows.Next() {
		var rec HistoryRecord
		var stateJSON string
		var createdAt string

		if err := rows.Scan(&rec.ID, &rec.DeviceID, &rec.EventType, &stateJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning event history: %w", err)
		}

		if err := json.Unmarshal([]byte(stateJSON), &rec.State); err != nil {
			return nil, fmt.Errorf("unmarshalling state: %w", err)
		}

		rec.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating event history: %w", err)
	}

	return records, nil
}

// PruneHistory deletes history records older than the given duration.
func (r *SQLiteHistoryRepository) PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM event_history WHERE created_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting event history: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}

	return rowsAffected, nil
}

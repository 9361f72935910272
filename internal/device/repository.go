package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Repository defines the interface for entry persistence.
// Entries are handed back on restart in no particular order.
type Repository interface {
	// List retrieves all persisted entries.
	List(ctx context.Context) ([]Entry, error)

	// Save inserts or replaces an entry.
	Save(ctx context.Context, e *Entry) error

	// Delete removes an entry by ID.
	// Returns ErrEntryNotFound if the entry does not exist.
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// List retrieves all entries. Columns written by older releases may be NULL;
// they are returned as zero values and defaulted by the registry.
func (r *SQLiteRepository) List(ctx context.Context) ([]Entry, error) {
	query := `
		SELECT id, name, type, serial_number, last_event_at, active, fault,
			low_battery, battery_level, state, created_at, updated_at
		FROM sensor_entries`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		entries = append(entries, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entries: %w", err)
	}

	return entries, nil
}

// Save upserts an entry keyed by ID.
func (r *SQLiteRepository) Save(ctx context.Context, e *Entry) error {
	if e == nil || e.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidEntry)
	}

	state := e.State
	if state == nil {
		state = State{}
	}
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshalling state: %w", err)
	}

	now := time.Now().UTC()
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	query := `
		INSERT INTO sensor_entries (
			id, name, type, serial_number, last_event_at, active, fault,
			low_battery, battery_level, state, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			serial_number = excluded.serial_number,
			last_event_at = excluded.last_event_at,
			active = excluded.active,
			fault = excluded.fault,
			low_battery = excluded.low_battery,
			battery_level = excluded.battery_level,
			state = excluded.state,
			updated_at = excluded.updated_at`

	_, err = r.db.ExecContext(ctx, query,
		e.ID,
		e.Name,
		e.Type,
		e.SerialNumber,
		nullableTime(e.LastEventAt),
		boolToInt(e.Active),
		boolToInt(e.Fault),
		boolToInt(e.LowBattery),
		e.BatteryLevel,
		string(stateJSON),
		createdAt.UTC().Format(time.RFC3339),
		now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving entry: %w", err)
	}

	return nil
}

// Delete removes an entry by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM sensor_entries WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting entry: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrEntryNotFound
	}

	return nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanEntry scans a row into an Entry, tolerating NULL columns.
func scanEntry(scanner rowScanner) (*Entry, error) {
	var e Entry
	var name, typeTag, serial, lastEventAt, stateJSON sql.NullString
	var createdAt, updatedAt sql.NullString
	var active, fault, lowBattery sql.NullInt64
	var batteryLevel sql.NullFloat64

	err := scanner.Scan(
		&e.ID,
		&name,
		&typeTag,
		&serial,
		&lastEventAt,
		&active,
		&fault,
		&lowBattery,
		&batteryLevel,
		&stateJSON,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Name = name.String
	e.Type = typeTag.String
	e.SerialNumber = serial.String
	e.Active = !active.Valid || active.Int64 != 0
	e.Fault = fault.Valid && fault.Int64 != 0
	e.LowBattery = lowBattery.Valid && lowBattery.Int64 != 0
	e.BatteryLevel = batteryLevel.Float64

	e.LastEventAt = parseTimestamp(lastEventAt)
	e.CreatedAt = parseTimestamp(createdAt)
	e.UpdatedAt = parseTimestamp(updatedAt)

	if stateJSON.Valid && stateJSON.String != "" {
		if err := json.Unmarshal([]byte(stateJSON.String), &e.State); err != nil {
			// A garbled payload is rebuilt from the next descriptor.
			e.State = nil
		}
	}

	return &e, nil
}

// parseTimestamp parses an RFC3339 column, returning the zero time when
// the value is NULL or unparseable.
func parseTimestamp(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return time.Time{}
	}
	return t
}

// nullableTime returns a sql.NullString for a timestamp (RFC3339 with
// sub-second precision), NULL for the zero time.
func nullableTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

// boolToInt converts a boolean to 0/1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

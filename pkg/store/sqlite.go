package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tariffwise/tariffwise/pkg/plan"
	"github.com/tariffwise/tariffwise/pkg/usage"
)

// Store manages the SQLite connection and schema.
type Store struct {
	db *sql.DB
}

// NewStore initializes the SQLite database connection.
// It enables WAL mode for concurrency and durability.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping sqlite db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{db: db}

	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("schema migration failed: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the necessary tables if they don't exist.
func (s *Store) migrate() error {
	// Append-only usage event log. Events are immutable once recorded;
	// there is deliberately no UPDATE path.
	query := `
	CREATE TABLE IF NOT EXISTS usage_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		customer_id INTEGER NOT NULL,
		ts_event DATETIME NOT NULL,
		ts_ingest DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		data_gb REAL NOT NULL,
		minutes INTEGER NOT NULL,
		sms INTEGER NOT NULL,
		region TEXT NOT NULL,
		current_plan TEXT NOT NULL,
		spend REAL NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_usage_events_ts ON usage_events(ts_event);
	CREATE INDEX IF NOT EXISTS idx_usage_events_customer ON usage_events(customer_id, ts_event);

	CREATE TABLE IF NOT EXISTS leases (
		name TEXT PRIMARY KEY,
		holder_id TEXT NOT NULL,
		expires_at DATETIME NOT NULL,
		version INTEGER NOT NULL DEFAULT 1
	);
	`

	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	return nil
}

// AppendEvent writes a single usage event.
func (s *Store) AppendEvent(ctx context.Context, event usage.Event) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_events (customer_id, ts_event, data_gb, minutes, sms, region, current_plan, spend)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, event.CustomerID, event.Timestamp.UTC(), event.DataGB, event.Minutes, event.SMS,
		string(event.Region), string(event.CurrentPlan), event.Spend)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// AppendEvents writes a batch of events in a single transaction. Either all
// events land or none do.
func (s *Store) AppendEvents(ctx context.Context, events []usage.Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO usage_events (customer_id, ts_event, data_gb, minutes, sms, region, current_plan, spend)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, event := range events {
		if err := event.Validate(); err != nil {
			return fmt.Errorf("invalid event: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, event.CustomerID, event.Timestamp.UTC(), event.DataGB,
			event.Minutes, event.SMS, string(event.Region), string(event.CurrentPlan), event.Spend); err != nil {
			return fmt.Errorf("failed to append event for customer %d: %w", event.CustomerID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

// ReadEventsSince returns all events with ts_event >= from, oldest first.
func (s *Store) ReadEventsSince(ctx context.Context, from time.Time) ([]usage.Event, error) {
	return s.QueryEvents(ctx, EventFilter{From: from})
}

// QueryEvents returns events matching the filter, oldest first.
func (s *Store) QueryEvents(ctx context.Context, filter EventFilter) ([]usage.Event, error) {
	query := `SELECT customer_id, ts_event, data_gb, minutes, sms, region, current_plan, spend FROM usage_events`
	var conds []string
	var args []interface{}

	if !filter.From.IsZero() {
		conds = append(conds, "ts_event >= ?")
		args = append(args, filter.From.UTC())
	}
	if !filter.To.IsZero() {
		conds = append(conds, "ts_event <= ?")
		args = append(args, filter.To.UTC())
	}
	if filter.CustomerID != 0 {
		conds = append(conds, "customer_id = ?")
		args = append(args, filter.CustomerID)
	}
	if filter.Region != "" {
		conds = append(conds, "region = ?")
		args = append(args, string(filter.Region))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY ts_event ASC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []usage.Event
	for rows.Next() {
		var e usage.Event
		var region, currentPlan string
		if err := rows.Scan(&e.CustomerID, &e.Timestamp, &e.DataGB, &e.Minutes, &e.SMS,
			&region, &currentPlan, &e.Spend); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Region = usage.Region(region)
		e.CurrentPlan = plan.ID(currentPlan)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("event row iteration failed: %w", err)
	}
	return events, nil
}

// CountDistinctCustomers counts customers with at least one event since from.
func (s *Store) CountDistinctCustomers(ctx context.Context, from time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT customer_id) FROM usage_events WHERE ts_event >= ?`,
		from.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count customers: %w", err)
	}
	return count, nil
}

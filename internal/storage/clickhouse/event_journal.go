package clickhouse

import (
	"context"
	"fmt"

	"fundex/internal/domain"
	"fundex/internal/storage"
)

// EventJournal implements storage.EventJournal using ClickHouse.
type EventJournal struct {
	conn *Conn
}

// NewEventJournal creates a new EventJournal.
func NewEventJournal(conn *Conn) *EventJournal {
	return &EventJournal{conn: conn}
}

// Compile-time interface check.
var _ storage.EventJournal = (*EventJournal)(nil)

// Append journals a batch of committed events. MergeTree does not enforce
// uniqueness; the engine assigns fresh UUIDs so duplicates do not occur in
// normal operation.
func (j *EventJournal) Append(ctx context.Context, events []*domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	converted := make([]*domain.JournalEvent, 0, len(events))
	for _, ev := range events {
		je, err := domain.NewJournalEvent(ev)
		if err != nil {
			return storage.ErrInvalidInput
		}
		converted = append(converted, je)
	}

	batch, err := j.conn.PrepareBatch(ctx, `
		INSERT INTO engine_events (event_id, event_type, account, unix, payload)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range converted {
		if err := batch.Append(e.ID, string(e.Type), e.Account, e.Unix, e.Payload); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByTimeRange retrieves journaled events within [start, end] (inclusive),
// ordered by (unix, id) ASC.
func (j *EventJournal) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.JournalEvent, error) {
	query := `
		SELECT event_id, event_type, account, unix, payload
		FROM engine_events
		WHERE unix >= ? AND unix <= ?
		ORDER BY unix ASC, event_id ASC
	`

	rows, err := j.conn.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanJournalEvents(rows)
}

// GetByAccount retrieves all journaled events for one account, ordered by
// (unix, id) ASC.
func (j *EventJournal) GetByAccount(ctx context.Context, account string) ([]*domain.JournalEvent, error) {
	query := `
		SELECT event_id, event_type, account, unix, payload
		FROM engine_events
		WHERE account = ?
		ORDER BY unix ASC, event_id ASC
	`

	rows, err := j.conn.Query(ctx, query, account)
	if err != nil {
		return nil, fmt.Errorf("query by account: %w", err)
	}
	defer rows.Close()

	return scanJournalEvents(rows)
}

// chRows abstracts driver.Rows for scanning.
type chRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// scanJournalEvents scans multiple rows.
func scanJournalEvents(rows chRows) ([]*domain.JournalEvent, error) {
	var result []*domain.JournalEvent

	for rows.Next() {
		var (
			e         domain.JournalEvent
			eventType string
		)
		if err := rows.Scan(&e.ID, &eventType, &e.Account, &e.Unix, &e.Payload); err != nil {
			return nil, fmt.Errorf("scan journal event row: %w", err)
		}
		e.Type = domain.EventType(eventType)
		result = append(result, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal event rows: %w", err)
	}

	return result, nil
}

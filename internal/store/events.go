// ABOUTME: Ledger rows for operation events and the queries over them
// ABOUTME: Events are append-only and listed in the order they were recorded

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/pillarclient/internal/event"
)

// tsLayout is fixed width so stored timestamps compare correctly as text.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Record is one persisted operation event.
type Record struct {
	Seq            int64
	ID             string
	ConversationID string
	CollectionID   string
	Operation      string
	FileID         string
	Type           event.Type
	ContributorID  string
	ResponseCode   string
	Info           string
	Contributors   []string
	Payload        json.RawMessage // JSON of the event payload or terminal results
	Timestamp      time.Time
}

// EventFilter narrows ListEvents. Zero fields match everything.
type EventFilter struct {
	ConversationID string
	Operation      string
	Type           event.Type
	Since          *time.Time
	Limit          int // default 100, max 1000
	// Newest lists the most recent events first.
	Newest bool
}

func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}

// SaveEvent appends e to the ledger.
func (s *SQLiteStore) SaveEvent(ctx context.Context, e event.OperationEvent) error {
	var contributors *string
	if len(e.Contributors) > 0 {
		joined := strings.Join(e.Contributors, ",")
		contributors = &joined
	}

	var payload any = e.Payload
	if e.Type.IsTerminal() && len(e.Results) > 0 {
		payload = e.Results
	}
	var payloadJSON *string
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshaling event payload: %w", err)
		}
		str := string(data)
		payloadJSON = &str
	}

	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	query := `
		INSERT INTO operation_events (
			event_id, conversation_id, collection_id, operation, file_id, type,
			contributor_id, response_code, info, contributors, payload_json, ts
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.New().String(),
		e.ConversationID,
		e.CollectionID,
		e.Operation,
		e.FileID,
		string(e.Type),
		e.ContributorID,
		e.ResponseCode,
		e.Info,
		contributors,
		payloadJSON,
		ts.UTC().Format(tsLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}

	s.logger.Debug("saved operation event",
		"conversation_id", e.ConversationID,
		"type", e.Type,
		"contributor_id", e.ContributorID,
	)
	return nil
}

const listEventsQuery = `
	SELECT seq, event_id, conversation_id, collection_id, operation, file_id, type,
	       contributor_id, response_code, info, contributors, payload_json, ts
	FROM operation_events
	WHERE (? = '' OR conversation_id = ?)
	  AND (? = '' OR operation = ?)
	  AND (? = '' OR type = ?)
	  AND (? IS NULL OR ts >= ?)
	ORDER BY seq %s
	LIMIT ?
`

// ListEvents returns events matching f, oldest first unless f.Newest is set.
func (s *SQLiteStore) ListEvents(ctx context.Context, f EventFilter) ([]Record, error) {
	var since *string
	if f.Since != nil {
		str := f.Since.UTC().Format(tsLayout)
		since = &str
	}
	order := "ASC"
	if f.Newest {
		order = "DESC"
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(listEventsQuery, order),
		f.ConversationID, f.ConversationID,
		f.Operation, f.Operation,
		string(f.Type), string(f.Type),
		since, since,
		normalizeLimit(f.Limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating event rows: %w", err)
	}
	return records, nil
}

// ListOutcomes returns the terminal event of recent conversations, newest first.
func (s *SQLiteStore) ListOutcomes(ctx context.Context, limit int) ([]Record, error) {
	query := `
		SELECT seq, event_id, conversation_id, collection_id, operation, file_id, type,
		       contributor_id, response_code, info, contributors, payload_json, ts
		FROM operation_events
		WHERE type IN (?, ?)
		ORDER BY seq DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, string(event.Complete), string(event.Failed), normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying outcomes: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating outcome rows: %w", err)
	}
	return records, nil
}

func scanRecord(scanner interface{ Scan(dest ...any) error }) (Record, error) {
	var r Record
	var typ, ts string
	var contributors, payload *string

	if err := scanner.Scan(
		&r.Seq,
		&r.ID,
		&r.ConversationID,
		&r.CollectionID,
		&r.Operation,
		&r.FileID,
		&typ,
		&r.ContributorID,
		&r.ResponseCode,
		&r.Info,
		&contributors,
		&payload,
		&ts,
	); err != nil {
		return r, fmt.Errorf("scanning event row: %w", err)
	}

	r.Type = event.Type(typ)
	if contributors != nil {
		r.Contributors = strings.Split(*contributors, ",")
	}
	if payload != nil {
		r.Payload = json.RawMessage(*payload)
	}
	var err error
	r.Timestamp, err = time.Parse(tsLayout, ts)
	if err != nil {
		return r, fmt.Errorf("parsing timestamp: %w", err)
	}
	return r, nil
}

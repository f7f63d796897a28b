package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/leadgenlab/funnelbot/internal/models"
)

// Event repository errors.
var (
	ErrEventNotFound = errors.New("event not found")
	ErrInvalidEvent  = errors.New("invalid event")
)

// EventRepository handles the append-only funnel audit log.
type EventRepository struct {
	db *DB
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// Append adds a new event to the log.
// Returns ErrInvalidEvent if required fields are missing.
func (r *EventRepository) Append(ctx context.Context, event *models.Event) error {
	if event.Type == "" || event.ParticipantID == 0 {
		return ErrInvalidEvent
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	} else {
		event.Timestamp = event.Timestamp.UTC()
	}

	var payloadJSON *string
	if len(event.Payload) > 0 {
		s := string(event.Payload)
		payloadJSON = &s
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO funnel_events (id, timestamp, type, participant_id, payload_json)
		VALUES (?, ?, ?, ?, ?)
	`,
		event.ID,
		event.Timestamp.Format(time.RFC3339),
		string(event.Type),
		event.ParticipantID,
		payloadJSON,
	)
	if err != nil {
		return storageErr("insert event", err)
	}
	return nil
}

// Get retrieves an event by ID.
func (r *EventRepository) Get(ctx context.Context, id string) (*models.Event, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, timestamp, type, participant_id, payload_json
		FROM funnel_events WHERE id = ?
	`, id)
	event, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	return event, err
}

// ListByParticipant retrieves events for a participant, oldest first.
func (r *EventRepository) ListByParticipant(ctx context.Context, participantID int64, limit int) ([]*models.Event, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, timestamp, type, participant_id, payload_json
		FROM funnel_events
		WHERE participant_id = ?
		ORDER BY timestamp
		LIMIT ?
	`, participantID, limit)
	if err != nil {
		return nil, storageErr("query events", err)
	}
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate events", err)
	}
	return events, nil
}

func scanEvent(row scanner) (*models.Event, error) {
	var event models.Event
	var timestamp, eventType string
	var payloadJSON sql.NullString

	err := row.Scan(&event.ID, &timestamp, &eventType, &event.ParticipantID, &payloadJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, storageErr("scan event", err)
	}

	event.Type = models.EventType(eventType)
	if t, err := time.Parse(time.RFC3339, timestamp); err == nil {
		event.Timestamp = t
	}
	if payloadJSON.Valid {
		event.Payload = []byte(payloadJSON.String)
	}
	return &event, nil
}

package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/leadgenlab/funnelbot/internal/models"
)

// ErrMessageRefNotFound is returned when no handle is stored for a role.
var ErrMessageRefNotFound = errors.New("message ref not found")

// MessageRefRepository tracks message handles so later funnel steps can
// edit or delete a message sent by an earlier step.
type MessageRefRepository struct {
	db *DB
}

// NewMessageRefRepository creates a new MessageRefRepository.
func NewMessageRefRepository(db *DB) *MessageRefRepository {
	return &MessageRefRepository{db: db}
}

// Save stores the handle for (participant, role), replacing any previous
// handle for the same role.
func (r *MessageRefRepository) Save(ctx context.Context, ref *models.MessageRef) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO message_refs (participant_id, role, message_id)
		VALUES (?, ?, ?)
	`, ref.ParticipantID, ref.Role, ref.MessageID)
	if err != nil {
		return storageErr("save message ref", err)
	}
	return nil
}

// Get retrieves the stored handle for (participant, role).
func (r *MessageRefRepository) Get(ctx context.Context, participantID int64, role string) (*models.MessageRef, error) {
	ref := &models.MessageRef{ParticipantID: participantID, Role: role}
	err := r.db.QueryRowContext(ctx, `
		SELECT message_id FROM message_refs WHERE participant_id = ? AND role = ?
	`, participantID, role).Scan(&ref.MessageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMessageRefNotFound
	}
	if err != nil {
		return nil, storageErr("get message ref", err)
	}
	return ref, nil
}

// Delete removes the stored handle for (participant, role).
func (r *MessageRefRepository) Delete(ctx context.Context, participantID int64, role string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM message_refs WHERE participant_id = ? AND role = ?
	`, participantID, role)
	if err != nil {
		return storageErr("delete message ref", err)
	}
	return nil
}

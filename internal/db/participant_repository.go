package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/leadgenlab/funnelbot/internal/models"
)

// Participant repository errors.
var (
	ErrParticipantNotFound = errors.New("participant not found")
	ErrVariantAssigned     = errors.New("variant already assigned")
	ErrInvalidState        = errors.New("invalid funnel state")
)

type execer interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}

type scanner interface {
	Scan(dest ...any) error
}

// ParticipantRepository handles participant persistence.
type ParticipantRepository struct {
	db *DB
}

// NewParticipantRepository creates a new ParticipantRepository.
func NewParticipantRepository(db *DB) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

const participantColumns = `id, username, first_name, last_name, name, phone, state,
	answer_1, answer_2, answer_3, answer_4, contact_time, channel_link, variant,
	registered_at, phone_at, completed, vip, hot_lead`

// Create registers a new participant. Re-registration of an existing id is
// a no-op so a repeated /start never clobbers progress.
func (r *ParticipantRepository) Create(ctx context.Context, p *models.Participant) error {
	if p.State == "" {
		p.State = models.StateNew
	}
	if !p.State.Valid() {
		return ErrInvalidState
	}
	if p.RegisteredAt.IsZero() {
		p.RegisteredAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO participants (id, username, first_name, last_name, state, registered_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.ID, p.Username, p.FirstName, p.LastName, string(p.State), p.RegisteredAt.UTC().Format(time.RFC3339))
	if err != nil {
		return storageErr("insert participant", err)
	}
	return nil
}

// Exists reports whether a participant row exists.
func (r *ParticipantRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM participants WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, storageErr("check participant", err)
	}
	return true, nil
}

// Get retrieves a participant by id.
func (r *ParticipantRepository) Get(ctx context.Context, id int64) (*models.Participant, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+participantColumns+` FROM participants WHERE id = ?
	`, id)
	return scanParticipant(row)
}

// GetState returns the participant's current funnel state.
func (r *ParticipantRepository) GetState(ctx context.Context, id int64) (models.FunnelState, error) {
	var raw string
	err := r.db.QueryRowContext(ctx, `SELECT state FROM participants WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrParticipantNotFound
	}
	if err != nil {
		return "", storageErr("get state", err)
	}
	return models.ParseFunnelState(raw)
}

// UpdateState sets the participant's funnel state. Unknown states are
// rejected before touching the store.
func (r *ParticipantRepository) UpdateState(ctx context.Context, id int64, state models.FunnelState) error {
	return r.UpdateStateTx(ctx, r.db, id, state)
}

// UpdateStateTx sets the state using the given executor, so a state change
// can commit atomically with a timer registration.
func (r *ParticipantRepository) UpdateStateTx(ctx context.Context, ex execer, id int64, state models.FunnelState) error {
	if !state.Valid() {
		return ErrInvalidState
	}
	res, err := ex.ExecContext(ctx, `UPDATE participants SET state = ? WHERE id = ?`, string(state), id)
	if err != nil {
		return storageErr("update state", err)
	}
	return requireRow(res, ErrParticipantNotFound)
}

// UpdateName stores the captured display name.
func (r *ParticipantRepository) UpdateName(ctx context.Context, id int64, name string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE participants SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return storageErr("update name", err)
	}
	return requireRow(res, ErrParticipantNotFound)
}

// SetVariant assigns the content variant exactly once. A second assignment
// returns ErrVariantAssigned and leaves the stored value untouched.
func (r *ParticipantRepository) SetVariant(ctx context.Context, id int64, v models.Variant) error {
	if !v.Valid() {
		return fmt.Errorf("unknown variant %q", v)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE participants SET variant = ? WHERE id = ? AND variant = ''
	`, string(v), id)
	if err != nil {
		return storageErr("set variant", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("set variant", err)
	}
	if n == 0 {
		exists, err := r.Exists(ctx, id)
		if err != nil {
			return err
		}
		if !exists {
			return ErrParticipantNotFound
		}
		return ErrVariantAssigned
	}
	return nil
}

// SetAnswer stores the answer for a 1-based question number.
func (r *ParticipantRepository) SetAnswer(ctx context.Context, id int64, question int, answer string) error {
	return r.SetAnswerTx(ctx, r.db, id, question, answer)
}

// SetAnswerTx stores an answer using the given executor.
func (r *ParticipantRepository) SetAnswerTx(ctx context.Context, ex execer, id int64, question int, answer string) error {
	var column string
	switch question {
	case 1:
		column = "answer_1"
	case 2:
		column = "answer_2"
	case 3:
		column = "answer_3"
	case 4:
		column = "answer_4"
	default:
		return fmt.Errorf("no answer column for question %d", question)
	}
	res, err := ex.ExecContext(ctx, `UPDATE participants SET `+column+` = ? WHERE id = ?`, answer, id)
	if err != nil {
		return storageErr("set answer", err)
	}
	return requireRow(res, ErrParticipantNotFound)
}

// SetChannelLink stores the generated single-use invite link.
func (r *ParticipantRepository) SetChannelLink(ctx context.Context, id int64, link string) error {
	return r.SetChannelLinkTx(ctx, r.db, id, link)
}

// SetChannelLinkTx stores the invite link using the given executor.
func (r *ParticipantRepository) SetChannelLinkTx(ctx context.Context, ex execer, id int64, link string) error {
	res, err := ex.ExecContext(ctx, `UPDATE participants SET channel_link = ? WHERE id = ?`, link, id)
	if err != nil {
		return storageErr("set channel link", err)
	}
	return requireRow(res, ErrParticipantNotFound)
}

// SetPhone stores the captured phone number and raises the monotonic vip
// and hot_lead flags in the same write.
func (r *ParticipantRepository) SetPhone(ctx context.Context, id int64, phone string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE participants SET phone = ?, phone_at = ?, vip = 1, hot_lead = 1 WHERE id = ?
	`, phone, at.UTC().Format(time.RFC3339), id)
	if err != nil {
		return storageErr("set phone", err)
	}
	return requireRow(res, ErrParticipantNotFound)
}

// SetContactTime stores the preferred contact window and marks the
// participant completed.
func (r *ParticipantRepository) SetContactTime(ctx context.Context, id int64, contactTime string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE participants SET contact_time = ?, completed = 1 WHERE id = ?
	`, contactTime, id)
	if err != nil {
		return storageErr("set contact time", err)
	}
	return requireRow(res, ErrParticipantNotFound)
}

// List returns all participants, newest registrations first.
func (r *ParticipantRepository) List(ctx context.Context) ([]*models.Participant, error) {
	return r.list(ctx, `
		SELECT `+participantColumns+` FROM participants ORDER BY registered_at DESC
	`)
}

// HotLeads returns participants that supplied a phone number, most recent
// capture first.
func (r *ParticipantRepository) HotLeads(ctx context.Context) ([]*models.Participant, error) {
	return r.list(ctx, `
		SELECT `+participantColumns+` FROM participants
		WHERE hot_lead = 1 ORDER BY phone_at DESC
	`)
}

// ListByVariant returns participants assigned to a variant.
func (r *ParticipantRepository) ListByVariant(ctx context.Context, v models.Variant) ([]*models.Participant, error) {
	return r.list(ctx, `
		SELECT `+participantColumns+` FROM participants
		WHERE variant = ? ORDER BY registered_at DESC
	`, string(v))
}

func (r *ParticipantRepository) list(ctx context.Context, query string, args ...any) ([]*models.Participant, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("query participants", err)
	}
	defer rows.Close()

	var participants []*models.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate participants", err)
	}
	return participants, nil
}

// Stats summarizes the participant table for reporting.
func (r *ParticipantRepository) Stats(ctx context.Context) (*models.Stats, error) {
	var s models.Stats
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(completed), 0),
			COALESCE(SUM(vip), 0),
			COALESCE(SUM(hot_lead), 0),
			COALESCE(SUM(CASE WHEN variant = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN variant = ? THEN 1 ELSE 0 END), 0)
		FROM participants
	`, string(models.VariantMentorA), string(models.VariantMentorB)).Scan(
		&s.Total, &s.Completed, &s.VIP, &s.HotLeads, &s.MentorA, &s.MentorB,
	)
	if err != nil {
		return nil, storageErr("summarize participants", err)
	}
	return &s, nil
}

func scanParticipant(row scanner) (*models.Participant, error) {
	var p models.Participant
	var state, variant, registeredAt string
	var phoneAt sql.NullString

	err := row.Scan(
		&p.ID,
		&p.Username,
		&p.FirstName,
		&p.LastName,
		&p.Name,
		&p.Phone,
		&state,
		&p.Answers[0],
		&p.Answers[1],
		&p.Answers[2],
		&p.Answers[3],
		&p.ContactTime,
		&p.ChannelLink,
		&variant,
		&registeredAt,
		&phoneAt,
		&p.Completed,
		&p.VIP,
		&p.HotLead,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrParticipantNotFound
		}
		return nil, storageErr("scan participant", err)
	}

	p.State = models.FunnelState(state)
	p.Variant = models.Variant(variant)
	if t, err := time.Parse(time.RFC3339, registeredAt); err == nil {
		p.RegisteredAt = t
	}
	if phoneAt.Valid {
		if t, err := time.Parse(time.RFC3339, phoneAt.String); err == nil {
			p.PhoneAt = &t
		}
	}
	return &p, nil
}

func requireRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("rows affected", err)
	}
	if n == 0 {
		return missing
	}
	return nil
}

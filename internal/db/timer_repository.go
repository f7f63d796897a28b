package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/leadgenlab/funnelbot/internal/models"
)

// Timer repository errors.
var (
	ErrReminderNotFound = errors.New("reminder timer not found")
	ErrFinalNotFound    = errors.New("final timer not found")
)

// TimerRepository persists the reminder and final-action timers.
type TimerRepository struct {
	db *DB
}

// NewTimerRepository creates a new TimerRepository.
func NewTimerRepository(db *DB) *TimerRepository {
	return &TimerRepository{db: db}
}

// UpsertReminder writes a reminder timer, replacing any existing row for
// the participant.
func (r *TimerRepository) UpsertReminder(ctx context.Context, t *models.ReminderTimer) error {
	return r.UpsertReminderTx(ctx, r.db, t)
}

// UpsertReminderTx writes a reminder timer using the given executor, so
// registration can commit atomically with the state change that caused it.
func (r *TimerRepository) UpsertReminderTx(ctx context.Context, ex execer, t *models.ReminderTimer) error {
	_, err := ex.ExecContext(ctx, `
		INSERT OR REPLACE INTO reminder_timers
		(participant_id, first_deadline, second_deadline, first_fired, second_fired)
		VALUES (?, ?, ?, ?, ?)
	`, t.ParticipantID, nullTime(t.FirstDeadline), nullTime(t.SecondDeadline), t.FirstFired, t.SecondFired)
	if err != nil {
		return storageErr("upsert reminder timer", err)
	}
	return nil
}

// GetReminder retrieves a reminder timer by participant id.
func (r *TimerRepository) GetReminder(ctx context.Context, participantID int64) (*models.ReminderTimer, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT participant_id, first_deadline, second_deadline, first_fired, second_fired
		FROM reminder_timers WHERE participant_id = ?
	`, participantID)
	t, err := scanReminder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReminderNotFound
	}
	return t, err
}

// MarkFirstFired persists first_fired=true. The conditional write is the
// tie-breaker against a concurrent cancel: false means another path got
// there first and the caller must suppress its side effect.
func (r *TimerRepository) MarkFirstFired(ctx context.Context, participantID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE reminder_timers SET first_fired = 1
		WHERE participant_id = ? AND first_fired = 0
	`, participantID)
	if err != nil {
		return false, storageErr("mark first fired", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("mark first fired", err)
	}
	return n > 0, nil
}

// MarkSecondFired persists second_fired=true under the same tie-breaker
// contract as MarkFirstFired.
func (r *TimerRepository) MarkSecondFired(ctx context.Context, participantID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE reminder_timers SET second_fired = 1
		WHERE participant_id = ? AND second_fired = 0
	`, participantID)
	if err != nil {
		return false, storageErr("mark second fired", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("mark second fired", err)
	}
	return n > 0, nil
}

// RearmSecond replaces the timer with a fresh, unfired second deadline.
// The first half is recorded as spent. Used when the participant answers
// "not yet" to the first follow-up; the entry is replaced, not duplicated.
func (r *TimerRepository) RearmSecond(ctx context.Context, participantID int64, deadline time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO reminder_timers
		(participant_id, first_deadline, second_deadline, first_fired, second_fired)
		VALUES (?, NULL, ?, 1, 0)
	`, participantID, deadline.UTC().Format(time.RFC3339))
	if err != nil {
		return storageErr("rearm second reminder", err)
	}
	return nil
}

// DeleteReminder removes a reminder timer. Deleting an absent row is a
// no-op so cancellation is safe to race a concurrent retire.
func (r *TimerRepository) DeleteReminder(ctx context.Context, participantID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM reminder_timers WHERE participant_id = ?`, participantID)
	if err != nil {
		return storageErr("delete reminder timer", err)
	}
	return nil
}

// ListReminders returns every persisted reminder timer with fired flags
// exactly as last recorded, for startup resumption.
func (r *TimerRepository) ListReminders(ctx context.Context) ([]*models.ReminderTimer, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT participant_id, first_deadline, second_deadline, first_fired, second_fired
		FROM reminder_timers
	`)
	if err != nil {
		return nil, storageErr("list reminder timers", err)
	}
	defer rows.Close()

	var timers []*models.ReminderTimer
	for rows.Next() {
		t, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		timers = append(timers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate reminder timers", err)
	}
	return timers, nil
}

// UpsertFinal writes a final-action timer, replacing any existing row.
func (r *TimerRepository) UpsertFinal(ctx context.Context, t *models.FinalTimer) error {
	return r.UpsertFinalTx(ctx, r.db, t)
}

// UpsertFinalTx writes a final-action timer using the given executor.
func (r *TimerRepository) UpsertFinalTx(ctx context.Context, ex execer, t *models.FinalTimer) error {
	_, err := ex.ExecContext(ctx, `
		INSERT OR REPLACE INTO final_timers (participant_id, send_deadline, sent)
		VALUES (?, ?, ?)
	`, t.ParticipantID, t.SendDeadline.UTC().Format(time.RFC3339), t.Sent)
	if err != nil {
		return storageErr("upsert final timer", err)
	}
	return nil
}

// GetFinal retrieves a final-action timer by participant id.
func (r *TimerRepository) GetFinal(ctx context.Context, participantID int64) (*models.FinalTimer, error) {
	var t models.FinalTimer
	var deadline string
	err := r.db.QueryRowContext(ctx, `
		SELECT participant_id, send_deadline, sent FROM final_timers WHERE participant_id = ?
	`, participantID).Scan(&t.ParticipantID, &deadline, &t.Sent)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFinalNotFound
	}
	if err != nil {
		return nil, storageErr("get final timer", err)
	}
	if ts, err := time.Parse(time.RFC3339, deadline); err == nil {
		t.SendDeadline = ts
	}
	return &t, nil
}

// MarkFinalSent persists sent=true. Same tie-breaker contract as the
// reminder fired flags.
func (r *TimerRepository) MarkFinalSent(ctx context.Context, participantID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE final_timers SET sent = 1 WHERE participant_id = ? AND sent = 0
	`, participantID)
	if err != nil {
		return false, storageErr("mark final sent", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("mark final sent", err)
	}
	return n > 0, nil
}

// DeleteFinal removes a final-action timer.
func (r *TimerRepository) DeleteFinal(ctx context.Context, participantID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM final_timers WHERE participant_id = ?`, participantID)
	if err != nil {
		return storageErr("delete final timer", err)
	}
	return nil
}

// ListPendingFinals returns final timers not yet marked sent.
func (r *TimerRepository) ListPendingFinals(ctx context.Context) ([]*models.FinalTimer, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT participant_id, send_deadline, sent FROM final_timers WHERE sent = 0
	`)
	if err != nil {
		return nil, storageErr("list final timers", err)
	}
	defer rows.Close()

	var timers []*models.FinalTimer
	for rows.Next() {
		var t models.FinalTimer
		var deadline string
		if err := rows.Scan(&t.ParticipantID, &deadline, &t.Sent); err != nil {
			return nil, storageErr("scan final timer", err)
		}
		if ts, err := time.Parse(time.RFC3339, deadline); err == nil {
			t.SendDeadline = ts
		}
		timers = append(timers, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate final timers", err)
	}
	return timers, nil
}

// CleanupOlderThan retires logically complete timer rows older than the
// cutoff: reminders with both halves fired and spent finals. Returns the
// number of rows removed.
func (r *TimerRepository) CleanupOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	ts := cutoff.UTC().Format(time.RFC3339)
	var removed int64

	res, err := r.db.ExecContext(ctx, `
		DELETE FROM reminder_timers
		WHERE first_fired = 1 AND second_fired = 1
		AND (second_deadline IS NULL OR second_deadline < ?)
	`, ts)
	if err != nil {
		return removed, storageErr("cleanup reminder timers", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		removed += n
	}

	res, err = r.db.ExecContext(ctx, `
		DELETE FROM final_timers WHERE sent = 1 AND send_deadline < ?
	`, ts)
	if err != nil {
		return removed, storageErr("cleanup final timers", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		removed += n
	}
	return removed, nil
}

func scanReminder(row scanner) (*models.ReminderTimer, error) {
	var t models.ReminderTimer
	var first, second sql.NullString
	if err := row.Scan(&t.ParticipantID, &first, &second, &t.FirstFired, &t.SecondFired); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, storageErr("scan reminder timer", err)
	}
	t.FirstDeadline = parseNullTime(first)
	t.SecondDeadline = parseNullTime(second)
	return &t, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

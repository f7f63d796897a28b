package db

import (
	"context"
	"fmt"
)

// Schema statements applied in order by MigrateUp. Statements are written
// to be idempotent so MigrateUp can run on every start.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS participants (
		id INTEGER PRIMARY KEY,
		username TEXT NOT NULL DEFAULT '',
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL DEFAULT 'new',
		answer_1 TEXT NOT NULL DEFAULT '',
		answer_2 TEXT NOT NULL DEFAULT '',
		answer_3 TEXT NOT NULL DEFAULT '',
		answer_4 TEXT NOT NULL DEFAULT '',
		contact_time TEXT NOT NULL DEFAULT '',
		channel_link TEXT NOT NULL DEFAULT '',
		variant TEXT NOT NULL DEFAULT '',
		registered_at TEXT NOT NULL,
		phone_at TEXT,
		completed INTEGER NOT NULL DEFAULT 0,
		vip INTEGER NOT NULL DEFAULT 0,
		hot_lead INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS message_refs (
		participant_id INTEGER NOT NULL,
		role TEXT NOT NULL,
		message_id INTEGER NOT NULL,
		PRIMARY KEY (participant_id, role)
	)`,

	`CREATE TABLE IF NOT EXISTS reminder_timers (
		participant_id INTEGER PRIMARY KEY,
		first_deadline TEXT,
		second_deadline TEXT,
		first_fired INTEGER NOT NULL DEFAULT 0,
		second_fired INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS final_timers (
		participant_id INTEGER PRIMARY KEY,
		send_deadline TEXT NOT NULL,
		sent INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS funnel_events (
		id TEXT PRIMARY KEY,
		timestamp TEXT NOT NULL,
		type TEXT NOT NULL,
		participant_id INTEGER NOT NULL,
		payload_json TEXT
	)`,

	`CREATE INDEX IF NOT EXISTS idx_funnel_events_participant
		ON funnel_events (participant_id, timestamp)`,

	`CREATE INDEX IF NOT EXISTS idx_participants_hot_lead
		ON participants (hot_lead, phone_at)`,
}

// MigrateUp applies the schema and returns the number of statements run.
func (d *DB) MigrateUp(ctx context.Context) (int, error) {
	applied := 0
	for i, stmt := range migrations {
		if _, err := d.ExecContext(ctx, stmt); err != nil {
			return applied, fmt.Errorf("failed to apply migration %d: %w", i, err)
		}
		applied++
	}
	d.logger.Debug().Int("statements", applied).Msg("schema migrated")
	return applied, nil
}

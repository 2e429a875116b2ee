package db

import (
	"context"
	"time"

	"github.com/Foundryproject/Donna/internal/model"
)

// UpsertReminder writes a reminder row keyed by its id.
func (db *DB) UpsertReminder(ctx context.Context, r *model.Reminder) error {
	_, err := db.ExecContext(ctx, `
		INSERT OR REPLACE INTO reminders (id, identity, event_id, summary, start_utc, fire_at_utc, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Identity, r.EventID, r.Summary,
		r.StartUTC.UTC(), r.FireAtUTC.UTC(), time.Now().UTC())
	return err
}

// DueBefore returns all reminders with a fire instant at or before now,
// ordered by fire instant for stable output within one poll.
func (db *DB) DueBefore(ctx context.Context, now time.Time) ([]model.Reminder, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, identity, event_id, summary, start_utc, fire_at_utc
		FROM reminders
		WHERE fire_at_utc <= ?
		ORDER BY fire_at_utc ASC`, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reminders []model.Reminder
	for rows.Next() {
		var r model.Reminder
		if err := rows.Scan(&r.ID, &r.Identity, &r.EventID, &r.Summary, &r.StartUTC, &r.FireAtUTC); err != nil {
			return nil, err
		}
		reminders = append(reminders, r)
	}
	return reminders, rows.Err()
}

// DeleteReminder removes a reminder by id.
func (db *DB) DeleteReminder(ctx context.Context, id string) error {
	_, err := db.ExecContext(ctx, "DELETE FROM reminders WHERE id = ?", id)
	return err
}

// CountReminders returns the number of pending reminders for identity.
func (db *DB) CountReminders(ctx context.Context, identity string) (int, error) {
	var count int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM reminders WHERE identity = ?",
		identity,
	).Scan(&count)
	return count, err
}

package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Foundryproject/Donna/internal/model"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.Nop()
	database, err := NewDB(filepath.Join(t.TempDir(), "donna.db"), "America/New_York", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func TestGetOrCreateUserLazyDefault(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	u, err := database.GetOrCreateUser(ctx, "15551234567")
	require.NoError(t, err)
	assert.Equal(t, "15551234567", u.Identity)
	assert.Equal(t, "America/New_York", u.Timezone)
	assert.False(t, u.Linked())

	// Second reference returns the same record, not a new one.
	again, err := database.GetOrCreateUser(ctx, "15551234567")
	require.NoError(t, err)
	assert.Equal(t, u, again)
}

func TestSetCredential(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, database.SetCredential(ctx, "100", "refresh-token"))

	u, err := database.GetOrCreateUser(ctx, "100")
	require.NoError(t, err)
	assert.True(t, u.Linked())
	assert.Equal(t, "refresh-token", u.Credential)
	assert.Equal(t, "America/New_York", u.Timezone, "upsert keeps the default timezone")

	// Idempotent upsert.
	require.NoError(t, database.SetCredential(ctx, "100", "refresh-token"))
	again, err := database.GetOrCreateUser(ctx, "100")
	require.NoError(t, err)
	assert.Equal(t, u, again)
}

func TestSetTimezoneKeepsCredential(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, database.SetCredential(ctx, "100", "refresh-token"))
	require.NoError(t, database.SetTimezone(ctx, "100", "Europe/Berlin"))

	u, err := database.GetOrCreateUser(ctx, "100")
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", u.Timezone)
	assert.Equal(t, "refresh-token", u.Credential)
}

func TestSetTimezoneCreatesUser(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, database.SetTimezone(ctx, "200", "Asia/Tokyo"))
	u, err := database.GetOrCreateUser(ctx, "200")
	require.NoError(t, err)
	assert.Equal(t, "Asia/Tokyo", u.Timezone)
	assert.False(t, u.Linked())
}

func TestReminderLifecycle(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	now := time.Date(2024, 6, 1, 13, 51, 0, 0, time.UTC)
	due := &model.Reminder{
		ID: "r-due", Identity: "100", EventID: "ev1", Summary: "Standup",
		StartUTC:  time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC),
		FireAtUTC: time.Date(2024, 6, 1, 13, 50, 0, 0, time.UTC),
	}
	future := &model.Reminder{
		ID: "r-future", Identity: "100", EventID: "ev2", Summary: "Review",
		StartUTC:  time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC),
		FireAtUTC: time.Date(2024, 6, 1, 17, 50, 0, 0, time.UTC),
	}
	require.NoError(t, database.UpsertReminder(ctx, due))
	require.NoError(t, database.UpsertReminder(ctx, future))

	count, err := database.CountReminders(ctx, "100")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	rows, err := database.DueBefore(ctx, now)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "r-due", rows[0].ID)
	assert.Equal(t, "Standup", rows[0].Summary)
	assert.True(t, rows[0].FireAtUTC.Equal(due.FireAtUTC))
	assert.True(t, rows[0].StartUTC.Equal(due.StartUTC))

	require.NoError(t, database.DeleteReminder(ctx, "r-due"))

	rows, err = database.DueBefore(ctx, time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "r-future", rows[0].ID, "deleted id no longer returned for any later time")
}

func TestDueBeforeOrdering(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"c", "a", "b"} {
		offsets := []time.Duration{30 * time.Minute, 10 * time.Minute, 20 * time.Minute}
		require.NoError(t, database.UpsertReminder(ctx, &model.Reminder{
			ID: id, Identity: "100", EventID: id, Summary: id,
			StartUTC: base.Add(offsets[i]), FireAtUTC: base.Add(offsets[i]),
		}))
	}

	rows, err := database.DueBefore(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "a", rows[0].ID)
	assert.Equal(t, "b", rows[1].ID)
	assert.Equal(t, "c", rows[2].ID)
}

func TestUpsertReminderReplacesById(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	r := &model.Reminder{
		ID: "r1", Identity: "100", EventID: "ev1", Summary: "Old",
		StartUTC:  time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC),
		FireAtUTC: time.Date(2024, 6, 1, 13, 50, 0, 0, time.UTC),
	}
	require.NoError(t, database.UpsertReminder(ctx, r))
	r.Summary = "New"
	require.NoError(t, database.UpsertReminder(ctx, r))

	count, err := database.CountReminders(ctx, "100")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	rows, err := database.DueBefore(ctx, time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "New", rows[0].Summary)
}

func TestConcurrentAccess(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	done := make(chan error, 2)
	go func() {
		for i := 0; i < 25; i++ {
			if err := database.UpsertReminder(ctx, &model.Reminder{
				ID: "r", Identity: "100", EventID: "ev", Summary: "S",
				StartUTC: time.Now().UTC(), FireAtUTC: time.Now().UTC(),
			}); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()
	go func() {
		for i := 0; i < 25; i++ {
			if _, err := database.DueBefore(ctx, time.Now()); err != nil {
				done <- err
				return
			}
			if err := database.DeleteReminder(ctx, "r"); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	require.NoError(t, <-done)
	require.NoError(t, <-done)
}

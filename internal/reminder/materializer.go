package reminder

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Foundryproject/Donna/internal/model"
)

// Materializer converts a user's calendar events for the current day
// into persisted reminder rows.
type Materializer struct {
	users    UserStore
	store    ReminderStore
	calendar EventSource
	lead     time.Duration
	metrics  *Metrics
	logger   *zerolog.Logger
	now      func() time.Time
}

// NewMaterializer creates a materializer with the given fixed lead time.
// metrics may be nil.
func NewMaterializer(users UserStore, store ReminderStore, calendar EventSource, lead time.Duration, metrics *Metrics, logger *zerolog.Logger) *Materializer {
	return &Materializer{
		users:    users,
		store:    store,
		calendar: calendar,
		lead:     lead,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Lead returns the configured lead time.
func (m *Materializer) Lead() time.Duration {
	return m.lead
}

// MaterializeToday writes one reminder per timed event on today's local
// calendar day, firing lead minutes before each start. All-day events
// are skipped. Every call generates fresh reminder ids, so invoking it
// twice for an unchanged day duplicates rows; callers that care must
// not re-invoke.
//
// Returns model.ErrNotLinked without touching the calendar when no
// credential is stored.
func (m *Materializer) MaterializeToday(ctx context.Context, identity string) (int, error) {
	user, err := m.users.GetOrCreateUser(ctx, identity)
	if err != nil {
		return 0, err
	}
	if !user.Linked() {
		return 0, model.ErrNotLinked
	}

	loc, err := model.LoadLocation(user.Timezone)
	if err != nil {
		return 0, err
	}

	accessToken, err := m.calendar.RefreshAccessToken(ctx, identity, user.Credential)
	if err != nil {
		return 0, err
	}

	dayStart, dayEnd := DayWindow(m.now().In(loc))
	events, err := m.calendar.ListEvents(ctx, accessToken, dayStart, dayEnd, user.Timezone)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, ev := range events {
		if ev.AllDay {
			continue
		}
		r := &model.Reminder{
			ID:        uuid.New().String(),
			Identity:  identity,
			EventID:   ev.ID,
			Summary:   ev.Summary,
			StartUTC:  ev.Start,
			FireAtUTC: ev.Start.Add(-m.lead),
		}
		if err := m.store.UpsertReminder(ctx, r); err != nil {
			m.logger.Error().Err(err).
				Str("identity", identity).
				Str("event_id", ev.ID).
				Msg("failed to write reminder")
			continue
		}
		created++
	}

	if m.metrics != nil {
		m.metrics.AddMaterialized(created)
	}
	m.logger.Info().
		Str("identity", identity).
		Int("created", created).
		Msg("reminders materialized")
	return created, nil
}

// DayWindow returns the [00:00:00, 23:59:59.999] bounds of the calendar
// day containing t, in t's location. The end bound is built from wall
// clock fields rather than adding 24h to the start: DST-transition days
// are 23 or 25 hours long, and a fixed offset would clip the last local
// hour or spill into the next day.
func DayWindow(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	end := time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 999000000, t.Location())
	return start, end
}

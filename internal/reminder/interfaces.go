package reminder

import (
	"context"
	"time"

	"github.com/Foundryproject/Donna/internal/model"
)

// UserStore provides access to user records. GetOrCreateUser lazily
// creates a record with the default timezone on first reference.
type UserStore interface {
	GetOrCreateUser(ctx context.Context, identity string) (*model.User, error)
}

// ReminderStore is the durable table of pending reminders. All three
// operations are single-row and atomic; the materializer and the
// dispatcher interleave freely against it.
type ReminderStore interface {
	// UpsertReminder writes a reminder row keyed by its id.
	UpsertReminder(ctx context.Context, r *model.Reminder) error

	// DueBefore returns reminders with a fire instant at or before now.
	DueBefore(ctx context.Context, now time.Time) ([]model.Reminder, error)

	// DeleteReminder removes a reminder by id.
	DeleteReminder(ctx context.Context, id string) error
}

// EventSource exchanges a stored credential for an access token and
// queries the user's calendar for a bounded window.
type EventSource interface {
	RefreshAccessToken(ctx context.Context, identity, credential string) (string, error)
	ListEvents(ctx context.Context, accessToken string, start, end time.Time, tzid string) ([]model.Event, error)
}

// Notifier delivers a text message to a user. Best effort: the caller
// never retries a failed send.
type Notifier interface {
	Send(ctx context.Context, identity, text string) error
}

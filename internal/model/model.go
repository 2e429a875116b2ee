package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotLinked means the user has no stored calendar credential.
	ErrNotLinked = errors.New("calendar not linked")

	// ErrAuthExpired means the provider rejected the stored credential.
	// The credential is left in place; the user has to relink.
	ErrAuthExpired = errors.New("calendar authorization expired")

	// ErrUpstreamUnavailable covers network errors, timeouts and 5xx
	// responses from the calendar provider. Never retried.
	ErrUpstreamUnavailable = errors.New("calendar provider unavailable")

	// ErrInvalidTimezone surfaces when a stored timezone fails to load.
	ErrInvalidTimezone = errors.New("invalid timezone")
)

// User is a chat user keyed by an opaque channel-assigned identity.
// Credential is empty until the OAuth callback stores a refresh token.
type User struct {
	Identity   string
	Credential string
	Timezone   string
}

// Linked reports whether the user has a calendar credential on file.
func (u *User) Linked() bool {
	return u != nil && u.Credential != ""
}

// Reminder is a pending notification for a single calendar event.
// ID is a fresh uuid generated at materialization time, not derived
// from the event id.
type Reminder struct {
	ID        string
	Identity  string
	EventID   string
	Summary   string
	StartUTC  time.Time
	FireAtUTC time.Time
}

// Event is a normalized calendar event for one agenda day.
// Timed events carry an absolute Start; all-day events carry none.
type Event struct {
	ID      string
	Summary string
	Start   time.Time
	AllDay  bool
}

// LoadLocation resolves an IANA zone name, folding lookup failures into
// the taxonomy. Timezones are stored unvalidated, so this is where a
// bad tzid finally surfaces.
func LoadLocation(tzid string) (*time.Location, error) {
	loc, err := time.LoadLocation(tzid)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, tzid)
	}
	return loc, nil
}

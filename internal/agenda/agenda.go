// Package agenda renders a day's normalized events into chat text.
package agenda

import (
	"strings"
	"time"

	"github.com/Foundryproject/Donna/internal/model"
)

const dayFormat = "Mon Jan 02"

// Render formats the agenda for day in the given location. Events are
// printed in input order (the calendar query already sorts by start
// time). Timed starts show as a 12-hour clock in the user's zone,
// all-day events as a fixed label.
func Render(day time.Time, events []model.Event, loc *time.Location) string {
	dayLabel := day.In(loc).Format(dayFormat)
	if len(events) == 0 {
		return "No events on " + dayLabel + "."
	}

	var b strings.Builder
	b.WriteString("Agenda for " + dayLabel + ":")
	for _, ev := range events {
		b.WriteString("\n• ")
		if ev.AllDay {
			b.WriteString("All day")
		} else {
			b.WriteString(FormatClock(ev.Start, loc))
		}
		b.WriteString(" — ")
		b.WriteString(ev.Summary)
	}
	return b.String()
}

// FormatClock renders an instant as a local 12-hour time without a
// leading zero, e.g. "9:50 AM".
func FormatClock(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("3:04 PM")
}

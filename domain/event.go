package domain

import (
	"strings"
	"time"
)

// Event is a titled record with one scheduled wall-clock datetime in the site time zone.
type Event struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	ScheduledAt time.Time `json:"scheduledAt"`
}

const (
	// StorageLayout is how scheduled datetimes are persisted.
	StorageLayout = "2006-01-02 15:04:05"
	// WireLayout is the client-consumable rendition sent to countdown clients.
	WireLayout = "2006-01-02T15:04:05"
)

var inputLayouts = []string{
	"2006-01-02T15:04",
	WireLayout,
	"2006-01-02 15:04",
	StorageLayout,
}

// ParseScheduledAt parses editor input in loc. Accepted forms are the datetime-local
// control values, their space separated variants and RFC 3339 (converted into loc).
func ParseScheduledAt(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, ErrInvalidDatetime
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range inputLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.In(loc).Truncate(time.Second), nil
	}
	return time.Time{}, ErrInvalidDatetime
}

// FormatWire renders t as the wire datetime, with 'T' between date and time.
func FormatWire(t time.Time) string {
	return strings.Replace(t.Format(StorageLayout), " ", "T", 1)
}

// RollYears moves t forward by whole calendar years, keeping month, day and time of day.
// Feb 29 rolled into a non-leap year lands on Feb 28.
func RollYears(t time.Time, years int) time.Time {
	y := t.Year() + years
	m, d := t.Month(), t.Day()
	if m == time.February && d == 29 && !isLeap(y) {
		d = 28
	}
	return time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func isLeap(y int) bool {
	return y%4 == 0 && (y%100 != 0 || y%400 == 0)
}

// Less orders events by scheduled time, then by ID (insertion order).
func Less(a, b Event) bool {
	if a.ScheduledAt.Equal(b.ScheduledAt) {
		return a.ID < b.ID
	}
	return a.ScheduledAt.Before(b.ScheduledAt)
}

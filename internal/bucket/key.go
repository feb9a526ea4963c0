package bucket

import (
	"fmt"
	"strings"
	"time"
)

// Layout is the time layout of an hourly archive key.
const Layout = "2006-01-02-15"

// Key identifies one hour of archived logs, e.g. "2024-03-01-15" (UTC).
type Key string

// FromTime returns the key for the UTC hour containing t.
func FromTime(t time.Time) Key {
	return Key(t.UTC().Format(Layout))
}

// Parse validates s as a canonical key. Keys end up as file names, so
// anything that does not round-trip through Layout is rejected.
func Parse(s string) (Key, error) {
	s = strings.TrimSpace(s)
	t, err := time.Parse(Layout, s)
	if err != nil {
		return "", fmt.Errorf("invalid archive key %q: expected YYYY-MM-DD-HH", s)
	}
	if t.Format(Layout) != s {
		return "", fmt.Errorf("invalid archive key %q: not in canonical form", s)
	}
	return Key(s), nil
}

// ParseAll validates every key, preserving order and duplicates.
func ParseAll(raw []string) ([]Key, error) {
	keys := make([]Key, 0, len(raw))
	for _, s := range raw {
		k, err := Parse(s)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// String returns the key as a string.
func (k Key) String() string { return string(k) }

// Time returns the start of the hour the key covers.
func (k Key) Time() (time.Time, error) {
	return time.Parse(Layout, string(k))
}

// Range returns one key per hour from start to end inclusive. Both ends
// are truncated to the hour in their own location before conversion to UTC.
func Range(start, end time.Time) ([]Key, error) {
	from := truncateHour(start).UTC()
	to := truncateHour(end).UTC()
	if to.Before(from) {
		return nil, fmt.Errorf("end %s is before start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	keys := make([]Key, 0, int(to.Sub(from)/time.Hour)+1)
	for t := from; !t.After(to); t = t.Add(time.Hour) {
		keys = append(keys, FromTime(t))
	}
	return keys, nil
}

// truncateHour drops minutes and below in t's location. time.Truncate
// works on absolute time and gets half-hour zones wrong.
func truncateHour(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15",
	"2006-01-02",
}

// ParseTime parses a user supplied datetime. Inputs without a zone are
// interpreted in loc.
func ParseTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized datetime %q (want RFC3339 or YYYY-MM-DDTHH:MM)", s)
}

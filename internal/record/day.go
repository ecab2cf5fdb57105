package record

import (
	"fmt"
	"strings"
	"time"
)

// StartOfDay truncates t to midnight in loc. A nil loc means UTC.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// ParseZone resolves a configured day zone. Empty and "UTC" map to UTC,
// "Local" to the process zone, anything else to an IANA name.
func ParseZone(name string) (*time.Location, error) {
	switch strings.TrimSpace(name) {
	case "", "UTC", "utc":
		return time.UTC, nil
	case "Local", "local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load day zone %q: %w", name, err)
	}
	return loc, nil
}

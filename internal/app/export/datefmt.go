package export

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

// DefaultTimeZone is where the campaign runs.
const DefaultTimeZone = "Asia/Jakarta"

var monthsID = [...]string{"Jan", "Feb", "Mar", "Apr", "Mei", "Jun", "Jul", "Agu", "Sep", "Okt", "Nov", "Des"}

// DefaultLocation returns Asia/Jakarta, falling back to a fixed UTC+7 zone.
func DefaultLocation() *time.Location {
	loc, err := LoadLocation(DefaultTimeZone)
	if err != nil {
		return time.FixedZone("WIB", 7*60*60)
	}
	return loc
}

func LoadLocation(name string) (*time.Location, error) {
	return time.LoadLocation(name)
}

// FormatTimestamp renders t as an Indonesian medium date with a short time,
// e.g. "17 Okt 2026, 14.05". A nil timestamp renders as "".
func FormatTimestamp(t *time.Time, loc *time.Location) string {
	if t == nil || t.IsZero() {
		return ""
	}
	if loc == nil {
		loc = DefaultLocation()
	}
	lt := t.In(loc)
	return fmt.Sprintf("%d %s %d, %02d.%02d", lt.Day(), monthsID[lt.Month()-1], lt.Year(), lt.Hour(), lt.Minute())
}

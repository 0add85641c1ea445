// Package wintime converts Windows time encodings to time.Time and back.
package wintime

import "time"

const (
	// filetimeEpochDelta is the number of 100ns ticks between the FILETIME
	// epoch (1601-01-01 UTC) and the Unix epoch (1970-01-01 UTC).
	filetimeEpochDelta = 116444736000000000
	filetimeUnitNanos  = 100
)

// FromFiletime converts a Windows FILETIME value (100ns ticks since
// 1601-01-01 UTC) to a UTC time.Time.
func FromFiletime(ticks uint64) time.Time {
	if ticks <= filetimeEpochDelta {
		return time.Unix(0, 0).UTC()
	}
	ns := int64(ticks-filetimeEpochDelta) * filetimeUnitNanos
	return time.Unix(0, ns).UTC()
}

// ToFiletime converts a UTC time.Time back to a FILETIME tick count. It is
// the inverse of FromFiletime, used to verify the §8 round-trip property.
func ToFiletime(t time.Time) uint64 {
	ns := t.UTC().UnixNano()
	ticks := ns/filetimeUnitNanos + filetimeEpochDelta
	if ticks < 0 {
		return 0
	}
	return uint64(ticks)
}

// SystemTime mirrors the Windows SYSTEMTIME structure's decoded fields.
type SystemTime struct {
	Year         uint16
	Month        uint16
	DayOfWeek    uint16
	Day          uint16
	Hour         uint16
	Minute       uint16
	Second       uint16
	Milliseconds uint16
}

// Time converts a SystemTime to a UTC time.Time. DayOfWeek is ignored, as
// noted in spec §4.1.
func (s SystemTime) Time() time.Time {
	return time.Date(
		int(s.Year), time.Month(s.Month), int(s.Day),
		int(s.Hour), int(s.Minute), int(s.Second),
		int(s.Milliseconds)*1_000_000,
		time.UTC,
	)
}

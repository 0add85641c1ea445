package wintime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFiletimeRoundTrip(t *testing.T) {
	want := uint64(132000000000000000) // some arbitrary tick count
	tm := FromFiletime(want)
	got := ToFiletime(tm)

	// FILETIME has 100ns granularity; round trip must land within one unit.
	diff := int64(got) - int64(want)
	if diff < 0 {
		diff = -diff
	}
	require.LessOrEqual(t, diff, int64(1))
}

func TestFiletimeEpoch(t *testing.T) {
	tm := FromFiletime(filetimeEpochDelta)
	require.True(t, tm.Equal(time.Unix(0, 0).UTC()))
}

func TestSystemTimeIgnoresDayOfWeek(t *testing.T) {
	a := SystemTime{Year: 2023, Month: 1, Day: 2, DayOfWeek: 1, Hour: 3, Minute: 4, Second: 5, Milliseconds: 6}
	b := a
	b.DayOfWeek = 99
	require.True(t, a.Time().Equal(b.Time()))
	require.Equal(t, 2023, a.Time().Year())
	require.Equal(t, 6*1_000_000, a.Time().Nanosecond())
}

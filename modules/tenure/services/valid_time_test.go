package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNormalizeValidDateUTC(t *testing.T) {
	t.Run("TruncatesToMidnightUTC", func(t *testing.T) {
		loc, err := time.LoadLocation("America/New_York")
		require.NoError(t, err)

		in := time.Date(2026, time.March, 15, 22, 45, 0, 0, loc)
		got := normalizeValidDateUTC(in)
		require.Equal(t, time.Date(2026, time.March, 16, 0, 0, 0, 0, time.UTC), got)
	})

	t.Run("ZeroStaysZero", func(t *testing.T) {
		require.True(t, normalizeValidDateUTC(time.Time{}).IsZero())
	})
}

func TestSupersessionBoundary(t *testing.T) {
	t.Run("UsesEffectiveDate", func(t *testing.T) {
		started := date(2026, time.January, 1)
		got := supersessionBoundary(started, date(2026, time.June, 1))
		require.Equal(t, date(2026, time.June, 1), got)
	})

	t.Run("SameDayShiftsOneDayForward", func(t *testing.T) {
		started := date(2026, time.June, 1)
		got := supersessionBoundary(started, date(2026, time.June, 1))
		require.Equal(t, date(2026, time.June, 2), got)
	})

	t.Run("NormalizesTimeOfDay", func(t *testing.T) {
		started := date(2026, time.June, 1)
		effective := time.Date(2026, time.June, 1, 15, 30, 0, 0, time.UTC)
		require.Equal(t, date(2026, time.June, 2), supersessionBoundary(started, effective))
	})
}

package services

import "time"

func normalizeValidDateUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	u := t.UTC()
	y, m, d := u.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// supersessionBoundary returns the date on which an open tenure is closed and
// its successor opened. Normally that is the effective date itself (half-open
// intervals leave no gap). When the open tenure started on the effective date,
// closing there would leave a zero-length row, so the boundary shifts one day
// forward and the same-day row stays visible for audit.
func supersessionBoundary(openStartedAt, effectiveDate time.Time) time.Time {
	effective := normalizeValidDateUTC(effectiveDate)
	if normalizeValidDateUTC(openStartedAt).Equal(effective) {
		return effective.AddDate(0, 0, 1)
	}
	return effective
}

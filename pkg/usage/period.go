package usage

import "time"

// PeriodKeyLayout is the layout of billing period keys
const PeriodKeyLayout = "2006-01-02"

// CurrentPeriodStart returns the start of the billing period containing now for the
// given anchor day. Dates are computed on now's UTC calendar day.
func CurrentPeriodStart(anchorDay int, now time.Time) time.Time {
	now = now.UTC()
	year, month, day := now.Date()

	if day >= anchorIn(anchorDay, year, month) {
		return anchorDate(anchorDay, year, month)
	}
	return anchorDate(anchorDay, year, month-1)
}

// PeriodKey returns the identifier of the billing period containing now
func PeriodKey(anchorDay int, now time.Time) string {
	return CurrentPeriodStart(anchorDay, now).Format(PeriodKeyLayout)
}

// NextResetDate returns the instant at which the billing period containing now ends
func NextResetDate(anchorDay int, now time.Time) time.Time {
	now = now.UTC()
	year, month, day := now.Date()

	if day >= anchorIn(anchorDay, year, month) {
		return anchorDate(anchorDay, year, month+1)
	}
	return anchorDate(anchorDay, year, month)
}

// anchorDate builds the UTC midnight of the anchor day in the given month. Month
// values outside 1..12 are normalized first so the anchor is clamped against the
// month it actually lands in.
func anchorDate(anchorDay, year int, month time.Month) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	y, m, _ := first.Date()
	return time.Date(y, m, anchorIn(anchorDay, y, m), 0, 0, 0, 0, time.UTC)
}

// anchorIn clamps the anchor day to the length of the month
func anchorIn(anchorDay, year int, month time.Month) int {
	anchorDay = normalizeAnchorDay(anchorDay)
	if last := daysIn(year, month); anchorDay > last {
		return last
	}
	return anchorDay
}

func daysIn(year int, month time.Month) int {
	// day 0 of the next month is the last day of this one
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func normalizeAnchorDay(anchorDay int) int {
	switch {
	case anchorDay < 1:
		return 1
	case anchorDay > 31:
		return 31
	default:
		return anchorDay
	}
}

package rewards

import "time"

// DateOf truncates t to its civil date, expressed as midnight UTC.
// The year, month and day are taken from t's own location.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Today returns the civil date of now as observed in loc.
func Today(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return DateOf(now.In(loc))
}

func daysBetween(from, to time.Time) int {
	return int(DateOf(to).Sub(DateOf(from)).Hours() / 24)
}

func isSameDay(last *time.Time, today time.Time) bool {
	return last != nil && daysBetween(*last, today) == 0
}

func isYesterday(last *time.Time, today time.Time) bool {
	return last != nil && daysBetween(*last, today) == 1
}

func datePtr(t time.Time) *time.Time {
	d := DateOf(t)
	return &d
}

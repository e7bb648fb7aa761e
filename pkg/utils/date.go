package utils

import (
	"time"
)

const (
	DateLayout = "2006-01-02"
	secPerDay  = 24 * 60 * 60
)

// DaysFromTime returns the number of whole days between the Unix epoch and
// the calendar day of t in UTC. Days before the epoch are negative.
func DaysFromTime(t time.Time) int32 {
	y, m, d := t.UTC().Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return int32(midnight.Unix() / secPerDay)
}

// TimeFromDays is the inverse of DaysFromTime.
func TimeFromDays(days int32) time.Time {
	return time.Unix(int64(days)*secPerDay, 0).UTC()
}

func ParseDate(dateStr string) (time.Time, error) {
	return time.Parse(DateLayout, dateStr)
}

func FormatDate(date time.Time) string {
	return date.Format(DateLayout)
}

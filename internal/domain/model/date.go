package model

import (
	"encoding/json"
	"fmt"
	"time"

	"fx-rate-cache/pkg/utils"
)

// Date is a calendar day counted from 1970-01-01 UTC.
type Date int32

func DateFromTime(t time.Time) Date {
	return Date(utils.DaysFromTime(t))
}

func NewDate(year int, month time.Month, day int) Date {
	return DateFromTime(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

func ParseDate(s string) (Date, error) {
	t, err := utils.ParseDate(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return DateFromTime(t), nil
}

func (d Date) Time() time.Time {
	return utils.TimeFromDays(int32(d))
}

func (d Date) String() string {
	return utils.FormatDate(d.Time())
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDate, string(b))
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Package clock holds the calendar helpers shared by the domain packages:
// an injectable clock, YYYY-MM-DD dates and expiry bucketing.
package clock

import (
	"fmt"
	"time"
)

// DateLayout is the wire format of every date field.
const DateLayout = "2006-01-02"

type Clock interface {
	Now() time.Time
}

// Func adapts a function to Clock.
type Func func() time.Time

func (f Func) Now() time.Time { return f() }

// System reads the wall clock.
var System Clock = Func(time.Now)

// Fixed always returns t. Used by tests.
func Fixed(t time.Time) Clock {
	return Func(func() time.Time { return t })
}

// Today formats the clock's current date.
func Today(c Clock) string {
	return c.Now().Format(DateLayout)
}

func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q must be YYYY-MM-DD", s)
	}
	return t, nil
}

// AddDays shifts a YYYY-MM-DD date by n days.
func AddDays(date string, n int) (string, error) {
	t, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 0, n).Format(DateLayout), nil
}

// DaysUntil returns the whole days from today to date; negative when date is
// in the past.
func DaysUntil(today, date string) (int, error) {
	from, err := ParseDate(today)
	if err != nil {
		return 0, err
	}
	to, err := ParseDate(date)
	if err != nil {
		return 0, err
	}
	return int(to.Sub(from).Hours() / 24), nil
}

// Bucket classifies an expiry date relative to today.
type Bucket string

const (
	Expired  Bucket = "expired"
	Within30 Bucket = "30"
	Within60 Bucket = "60"
	Within90 Bucket = "90"
	OK       Bucket = "ok"
)

// BucketFor places expiry into expired (before today), ≤30, ≤60, ≤90 days,
// or ok. It also returns the day count.
func BucketFor(today, expiry string) (Bucket, int, error) {
	days, err := DaysUntil(today, expiry)
	if err != nil {
		return "", 0, err
	}
	switch {
	case days < 0:
		return Expired, days, nil
	case days <= 30:
		return Within30, days, nil
	case days <= 60:
		return Within60, days, nil
	case days <= 90:
		return Within90, days, nil
	default:
		return OK, days, nil
	}
}

// ExpiringWithin reports whether expiry falls between today and today+days,
// inclusive. Expired and malformed dates are not "expiring".
func ExpiringWithin(today, expiry string, days int) bool {
	n, err := DaysUntil(today, expiry)
	return err == nil && n >= 0 && n <= days
}

// LastDays returns the n dates ending at today, oldest first.
func LastDays(today string, n int) ([]string, error) {
	end, err := ParseDate(today)
	if err != nil {
		return nil, err
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = end.AddDate(0, 0, i-n+1).Format(DateLayout)
	}
	return out, nil
}

// Age returns completed years between dob and today.
func Age(dob, today string) (int, error) {
	b, err := ParseDate(dob)
	if err != nil {
		return 0, err
	}
	t, err := ParseDate(today)
	if err != nil {
		return 0, err
	}
	years := t.Year() - b.Year()
	if t.Month() < b.Month() || (t.Month() == b.Month() && t.Day() < b.Day()) {
		years--
	}
	return years, nil
}

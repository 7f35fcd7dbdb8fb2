// Package renewal computes subscription renewal dates. All functions are
// pure: callers inject "today", so the math is deterministic under test.
//
// Dates are compared at day granularity in UTC. Month and year steps
// preserve the anchor day-of-month and clamp to the last valid day when the
// target month is shorter (Jan 31 + 1 month = Feb 28/29, Feb 29 + 1 year =
// Feb 28 in non-leap years).
package renewal

import (
	"time"

	"subtrack-notifier/internal/common/errors"
	"subtrack-notifier/internal/models"
)

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// NextRenewal returns the earliest occurrence of the recurrence anchored at
// startDate that falls strictly after today. If startDate is already in the
// future, it is the next occurrence. An unrecognized recurrence is an error,
// never a sentinel date.
func NextRenewal(startDate time.Time, recurrence models.Recurrence, today time.Time) (time.Time, error) {
	start := Day(startDate)
	day := Day(today)

	if start.After(day) {
		if !recurrence.Valid() {
			return time.Time{}, errors.NewUnrecognizedRecurrenceError(string(recurrence))
		}
		return start, nil
	}

	switch recurrence {
	case models.RecurrenceWeekly:
		elapsed := int(day.Sub(start).Hours() / 24)
		periods := elapsed/7 + 1
		return start.AddDate(0, 0, 7*periods), nil

	case models.RecurrenceMonthly:
		for n := 1; ; n++ {
			next := addMonthsClamped(start, n)
			if next.After(day) {
				return next, nil
			}
		}

	case models.RecurrenceYearly:
		for n := 1; ; n++ {
			next := addYearsClamped(start, n)
			if next.After(day) {
				return next, nil
			}
		}
	}

	return time.Time{}, errors.NewUnrecognizedRecurrenceError(string(recurrence))
}

// RenewsOn reports whether next and target fall on the same calendar day.
func RenewsOn(next, target time.Time) bool {
	return next.Year() == target.Year() &&
		next.Month() == target.Month() &&
		next.Day() == target.Day()
}

// addMonthsClamped advances anchor by n calendar months, keeping the anchor's
// day-of-month and clamping to the target month's last day when shorter.
// AddDate alone would normalize Jan 31 + 1 month into March.
func addMonthsClamped(anchor time.Time, n int) time.Time {
	firstOfTarget := time.Date(anchor.Year(), anchor.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	day := anchor.Day()
	if last := daysInMonth(firstOfTarget.Year(), firstOfTarget.Month()); day > last {
		day = last
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day, 0, 0, 0, 0, time.UTC)
}

// addYearsClamped advances anchor by n calendar years; a Feb 29 anchor clamps
// to Feb 28 in non-leap target years.
func addYearsClamped(anchor time.Time, n int) time.Time {
	year := anchor.Year() + n
	day := anchor.Day()
	if last := daysInMonth(year, anchor.Month()); day > last {
		day = last
	}
	return time.Date(year, anchor.Month(), day, 0, 0, 0, 0, time.UTC)
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

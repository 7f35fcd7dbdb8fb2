// internal/models/subscription.go
package models

import (
	"fmt"
	"time"
)

// Recurrence is the closed set of supported billing cycles. No daily or
// custom cycles exist; anything else is a data bug and must surface as an
// error, never as a silent fallback.
type Recurrence string

const (
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
	RecurrenceYearly  Recurrence = "yearly"
)

// ParseRecurrence validates a raw recurrence value against the closed set.
func ParseRecurrence(s string) (Recurrence, error) {
	switch Recurrence(s) {
	case RecurrenceWeekly, RecurrenceMonthly, RecurrenceYearly:
		return Recurrence(s), nil
	}
	return "", fmt.Errorf("unrecognized recurrence %q", s)
}

// Valid reports whether r is one of the three supported cycles.
func (r Recurrence) Valid() bool {
	_, err := ParseRecurrence(string(r))
	return err == nil
}

// Subscription is the persistence layer's view of a tracked subscription.
// The notifier only reads it.
type Subscription struct {
	ID         string     `json:"id"`
	OwnerID    string     `json:"ownerId"`
	Title      string     `json:"title"`
	Amount     float64    `json:"amount"`
	Recurrence Recurrence `json:"recurrence"`
	StartDate  time.Time  `json:"startDate"`
	Enabled    bool       `json:"notificationsEnabled"`
	ExpoToken  string     `json:"expoToken"`
}

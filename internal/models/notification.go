// internal/models/notification.go
package models

// ReminderJobData is the payload of a renewal reminder task. Field names are
// part of the queue wire contract; the dispatch worker unmarshals exactly
// this shape.
type ReminderJobData struct {
	ExpoToken         string `json:"expoToken"`
	Title             string `json:"title"`
	SubscriptionTitle string `json:"subscriptionTitle"`
	SubscriptionID    string `json:"subscriptionId"`
}

const (
	// ReminderJobName identifies renewal reminder jobs on the queue.
	ReminderJobName = "send-renewal-reminder"

	// ReminderTitle is the push notification headline.
	ReminderTitle = "It's time to renew subscription"

	// NotificationTypeRenewalReminder tags the push data payload so the
	// mobile client can route the tap.
	NotificationTypeRenewalReminder = "renewal_reminder"
)

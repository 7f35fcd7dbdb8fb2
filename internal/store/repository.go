// internal/store/repository.go
package store

import (
	"context"
	"database/sql"
	"fmt"

	"subtrack-notifier/internal/common/errors"
	"subtrack-notifier/internal/models"
)

// SubscriptionRepository loads subscriptions for the notifier. The scheduler
// only ever needs the notification-enabled slice of the table.
type SubscriptionRepository interface {
	// ListNotificationsEnabled returns up to limit subscriptions with
	// notifications enabled and id > afterID, ordered by id. Keyset
	// pagination keeps per-tick memory bounded.
	ListNotificationsEnabled(ctx context.Context, afterID string, limit int) ([]models.Subscription, error)
}

// PostgresSubscriptionRepository reads the subscriptions table owned by the
// CRUD backend.
type PostgresSubscriptionRepository struct {
	db *sql.DB
}

func NewPostgresSubscriptionRepository(db *sql.DB) *PostgresSubscriptionRepository {
	return &PostgresSubscriptionRepository{db: db}
}

const listEnabledQuery = `
SELECT id, owner_id, title, amount, recurrence, start_date, notifications_enabled, COALESCE(expo_token, '')
FROM subscriptions
WHERE notifications_enabled = TRUE AND id > $1
ORDER BY id
LIMIT $2`

func (r *PostgresSubscriptionRepository) ListNotificationsEnabled(ctx context.Context, afterID string, limit int) ([]models.Subscription, error) {
	rows, err := r.db.QueryContext(ctx, listEnabledQuery, afterID, limit)
	if err != nil {
		return nil, errors.NewSubscriptionLoadError(err.Error())
	}
	defer rows.Close()

	var subs []models.Subscription
	for rows.Next() {
		var sub models.Subscription
		var rawRecurrence string
		if err := rows.Scan(
			&sub.ID,
			&sub.OwnerID,
			&sub.Title,
			&sub.Amount,
			&rawRecurrence,
			&sub.StartDate,
			&sub.Enabled,
			&sub.ExpoToken,
		); err != nil {
			return nil, errors.NewSubscriptionLoadError(fmt.Sprintf("scan subscription row: %v", err))
		}
		// The raw value is carried through unvalidated; the calculator is
		// the enforcement point so a corrupt row surfaces per subscription
		// instead of poisoning the whole batch.
		sub.Recurrence = models.Recurrence(rawRecurrence)
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewSubscriptionLoadError(err.Error())
	}

	return subs, nil
}

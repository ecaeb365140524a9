package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/automation/internal/model"
)

type NotificationService struct {
	db DB
}

func NewNotificationService(db DB) *NotificationService {
	return &NotificationService{db: db}
}

// Notify inserts all notifications or none.
func (s *NotificationService) Notify(ctx context.Context, notes []model.Notification) error {
	if len(notes) == 0 {
		return nil
	}
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		for _, n := range notes {
			_, err := tx.Exec(ctx,
				`INSERT INTO notifications (id, tenant_id, user_id, notification_type, title, message, action_url, action_label, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				n.ID, n.TenantID, n.UserID, n.Type, n.Title, n.Message, n.ActionURL, n.ActionLabel, n.CreatedAt,
			)
			if err != nil {
				return fmt.Errorf("insert notification for user %s: %w", n.UserID, err)
			}
		}
		return nil
	})
}

package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flicky/solar-storefront/internal/model"
)

type NotificationRepository interface {
	Create(ctx context.Context, n *model.Notification) error
	// ListAfter returns notifications with seq > after in ascending order.
	// A nil userID selects admin broadcasts.
	ListAfter(ctx context.Context, userID *uuid.UUID, after int64, limit int) ([]model.Notification, error)
	MarkRead(ctx context.Context, userID *uuid.UUID, upTo int64) (int64, error)
}

type pgNotificationRepo struct{ pool *pgxpool.Pool }

func NewNotificationRepository(pool *pgxpool.Pool) NotificationRepository {
	return &pgNotificationRepo{pool: pool}
}

// notificationSeqLock serializes inserts until commit, so seq values become
// visible in order and a poller never passes over an uncommitted row.
const notificationSeqLock int64 = 0x6e6f7469667931

func (r *pgNotificationRepo) Create(ctx context.Context, n *model.Notification) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, notificationSeqLock); err != nil {
		return fmt.Errorf("lock notification seq: %w", err)
	}

	n.ID = uuid.New()
	err = tx.QueryRow(ctx,
		`INSERT INTO notifications (id, user_id, order_id, kind, message, read, created_at)
		 VALUES ($1, $2, $3, $4, $5, FALSE, NOW()) RETURNING seq, created_at`,
		n.ID, n.UserID, n.OrderID, n.Kind, n.Message,
	).Scan(&n.Seq, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return tx.Commit(ctx)
}

func (r *pgNotificationRepo) ListAfter(ctx context.Context, userID *uuid.UUID, after int64, limit int) ([]model.Notification, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, seq, user_id, order_id, kind, message, read, created_at
		 FROM notifications
		 WHERE user_id IS NOT DISTINCT FROM $1 AND seq > $2
		 ORDER BY seq ASC LIMIT $3`,
		userID, after, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []model.Notification
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.Seq, &n.UserID, &n.OrderID, &n.Kind, &n.Message, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *pgNotificationRepo) MarkRead(ctx context.Context, userID *uuid.UUID, upTo int64) (int64, error) {
	ct, err := r.pool.Exec(ctx,
		`UPDATE notifications SET read = TRUE WHERE user_id IS NOT DISTINCT FROM $1 AND seq <= $2 AND NOT read`,
		userID, upTo,
	)
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	return ct.RowsAffected(), nil
}

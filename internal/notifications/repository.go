package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arikurniawan9/toko-sakinah/internal/shared"
)

// Repository persists notifications in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stores n and fills its id.
func (r *Repository) Insert(ctx context.Context, n *Notification) error {
	data, err := json.Marshal(n.Data)
	if err != nil {
		return err
	}
	return r.pool.QueryRow(ctx, `INSERT INTO notifications (type, title, message, store_id, severity, data, is_read, created_at)
VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7) RETURNING id`,
		n.Type, n.Title, n.Message, n.StoreID, string(n.Severity), data, n.CreatedAt).Scan(&n.ID)
}

// ListForStore returns the newest notifications of a store.
func (r *Repository) ListForStore(ctx context.Context, storeID int64, unreadOnly bool, limit int) ([]Notification, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, type, title, message, store_id, severity, data, is_read, created_at
FROM notifications
WHERE store_id = $1 AND (NOT $2 OR is_read = FALSE)
ORDER BY created_at DESC, id DESC
LIMIT $3`, storeID, unreadOnly, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Notification
	for rows.Next() {
		var (
			n        Notification
			severity string
			data     []byte
		)
		if err := rows.Scan(&n.ID, &n.Type, &n.Title, &n.Message, &n.StoreID, &severity, &data, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Severity = Severity(severity)
		if len(data) > 0 {
			if err := json.Unmarshal(data, &n.Data); err != nil {
				return nil, fmt.Errorf("decode notification %d data: %w", n.ID, err)
			}
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkRead flags a notification as read.
func (r *Repository) MarkRead(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE notifications SET is_read = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: notifikasi %d", shared.ErrNotFound, id)
	}
	return nil
}

// Package notification stores notification records and builds the notices
// the router persists for notification-worthy events.
package notification

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/christopherjohns/socialhub/internal/apperr"
	"github.com/christopherjohns/socialhub/internal/models"
)

const (
	DefaultTake = 20
	maxTake     = 100
)

// Store reads and writes the notifications table.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Create persists an unread notification for recipient. data may be nil.
func (s *Store) Create(ctx context.Context, recipient int64, actor *int64, title, message string,
	typ models.NotificationType, data map[string]any) (*models.Notification, error) {
	var raw []byte
	if len(data) > 0 {
		var err error
		if raw, err = json.Marshal(data); err != nil {
			return nil, fmt.Errorf("encode notification data: %w", err)
		}
	}

	n := &models.Notification{
		UserID:      recipient,
		ActorUserID: actor,
		Title:       title,
		Message:     message,
		Type:        typ,
		CreatedAt:   s.now().UTC(),
		Data:        raw,
	}
	var dataCol sql.NullString
	if raw != nil {
		dataCol = sql.NullString{String: string(raw), Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (user_id, actor_user_id, title, message, type, is_read, created_at, data)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.UserID, nullableID(actor), n.Title, n.Message, string(n.Type), false, n.CreatedAt, dataCol,
	)
	if err != nil {
		return nil, fmt.Errorf("insert notification: %w", err)
	}
	if n.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("notification id: %w", err)
	}
	return n, nil
}

// List returns a page of notifications for userID, newest first.
func (s *Store) List(ctx context.Context, userID int64, skip, take int) ([]*models.Notification, error) {
	if skip < 0 {
		skip = 0
	}
	if take <= 0 {
		take = DefaultTake
	}
	if take > maxTake {
		take = maxTake
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, actor_user_id, title, message, type, is_read, created_at, data
		 FROM notifications WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		userID, take, skip,
	)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	result := []*models.Notification{}
	for rows.Next() {
		var (
			n     models.Notification
			actor sql.NullInt64
			typ   string
			data  sql.NullString
		)
		if err := rows.Scan(&n.ID, &n.UserID, &actor, &n.Title, &n.Message, &typ, &n.IsRead, &n.CreatedAt, &data); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Type = models.NotificationType(typ)
		if actor.Valid {
			id := actor.Int64
			n.ActorUserID = &id
		}
		if data.Valid && data.String != "" {
			n.Data = json.RawMessage(data.String)
		}
		result = append(result, &n)
	}
	return result, rows.Err()
}

func (s *Store) UnreadCount(ctx context.Context, userID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = ?`, userID, false,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// MarkAsRead flags one notification. Notifications of other users are
// reported as not found.
func (s *Store) MarkAsRead(ctx context.Context, userID, notificationID int64) error {
	var owner int64
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id FROM notifications WHERE id = ?`, notificationID,
	).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && owner != userID) {
		return apperr.NotFound("notification not found")
	}
	if err != nil {
		return fmt.Errorf("lookup notification: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = ? WHERE id = ?`, true, notificationID); err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

func (s *Store) MarkAllAsRead(ctx context.Context, userID int64) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = ? WHERE user_id = ? AND is_read = ?`, true, userID, false); err != nil {
		return fmt.Errorf("mark all notifications read: %w", err)
	}
	return nil
}

func nullableID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

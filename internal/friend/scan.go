package friend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/christopherjohns/socialhub/internal/apperr"
	"github.com/christopherjohns/socialhub/internal/models"
)

const summaryColumns = `u.id, u.username, u.display_name, u.profile_picture_url, u.is_online, u.last_seen`

const requestQuery = `SELECT f.id, f.status, f.created_at, f.accepted_at,
	r.id, r.username, r.display_name, r.profile_picture_url, r.is_online, r.last_seen,
	a.id, a.username, a.display_name, a.profile_picture_url, a.is_online, a.last_seen
	FROM friendships f
	JOIN users r ON r.id = f.requester_id
	JOIN users a ON a.id = f.addressee_id`

type scanner interface {
	Scan(dest ...any) error
}

func (s *Service) request(ctx context.Context, id int64) (*models.FriendRequest, error) {
	fr, err := scanRequest(s.db.QueryRowContext(ctx, requestQuery+` WHERE f.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("friend request not found")
	}
	return fr, err
}

func (s *Service) requests(ctx context.Context, where string, args ...any) ([]*models.FriendRequest, error) {
	rows, err := s.db.QueryContext(ctx, requestQuery+` WHERE `+where+` ORDER BY f.created_at DESC, f.id DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list friend requests: %w", err)
	}
	defer rows.Close()
	out := []*models.FriendRequest{}
	for rows.Next() {
		fr, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, fr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list friend requests: %w", err)
	}
	return out, nil
}

func (s *Service) users(ctx context.Context, query string, args ...any) ([]models.UserSummary, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	out := []models.UserSummary{}
	for rows.Next() {
		var (
			u        models.UserSummary
			lastSeen sql.NullTime
		)
		if err := rows.Scan(&u.ID, &u.Username, &u.DisplayName, &u.ProfilePictureURL, &u.IsOnline, &lastSeen); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.LastSeen = timePtr(lastSeen)
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return out, nil
}

func scanRequest(row scanner) (*models.FriendRequest, error) {
	var (
		fr                       models.FriendRequest
		status                   string
		acceptedAt, rSeen, aSeen sql.NullTime
	)
	err := row.Scan(&fr.ID, &status, &fr.CreatedAt, &acceptedAt,
		&fr.Requester.ID, &fr.Requester.Username, &fr.Requester.DisplayName, &fr.Requester.ProfilePictureURL,
		&fr.Requester.IsOnline, &rSeen,
		&fr.Addressee.ID, &fr.Addressee.Username, &fr.Addressee.DisplayName, &fr.Addressee.ProfilePictureURL,
		&fr.Addressee.IsOnline, &aSeen)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan friend request: %w", err)
	}
	fr.Status = models.FriendshipStatus(status)
	fr.AcceptedAt = timePtr(acceptedAt)
	fr.Requester.LastSeen = timePtr(rSeen)
	fr.Addressee.LastSeen = timePtr(aSeen)
	return &fr, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

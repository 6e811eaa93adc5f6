// Package user persists accounts and their online status.
package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/christopherjohns/socialhub/internal/apperr"
	"github.com/christopherjohns/socialhub/internal/models"
)

const userColumns = `id, username, email, password_hash, display_name, profile_picture_url, bio, is_online, last_seen, created_at`

// Store reads and writes the users table.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts u and fills in its id. Username and email must be unused.
func (s *Store) Create(ctx context.Context, u *models.User) error {
	var taken int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE username = ? OR email = ?`, u.Username, u.Email,
	).Scan(&taken)
	if err != nil {
		return fmt.Errorf("check user uniqueness: %w", err)
	}
	if taken > 0 {
		return apperr.Conflict("username or email already exists")
	}

	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, email, password_hash, display_name, profile_picture_url, bio, is_online, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.Username, u.Email, u.PasswordHash, u.DisplayName, u.ProfilePictureURL, u.Bio, false, u.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	u.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("user id: %w", err)
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id int64) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("user not found")
	}
	return u, err
}

// GetByLogin finds a user by username or email.
func (s *Store) GetByLogin(ctx context.Context, login string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ? OR email = ?`, login, login)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("user not found")
	}
	return u, err
}

func (s *Store) Summary(ctx context.Context, id int64) (models.UserSummary, error) {
	u, err := s.GetByID(ctx, id)
	if err != nil {
		return models.UserSummary{}, err
	}
	return u.Summary(), nil
}

// Search matches username or display name, excluding the caller.
func (s *Store) Search(ctx context.Context, query string, excludeID int64, limit int) ([]models.UserSummary, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.UserSummary{}, nil
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	pattern := "%" + strings.ToLower(query) + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE id <> ? AND (LOWER(username) LIKE ? OR LOWER(display_name) LIKE ?)
		 ORDER BY username LIMIT ?`,
		excludeID, pattern, pattern, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	defer rows.Close()

	result := []models.UserSummary{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, u.Summary())
	}
	return result, rows.Err()
}

// SetOnlineStatus records the online flag and stamps last_seen.
func (s *Store) SetOnlineStatus(ctx context.Context, id int64, online bool, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET is_online = ?, last_seen = ? WHERE id = ?`, online, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("update online status: %w", err)
	}
	return nil
}

// ResetPresence marks every user offline. Presence is rebuilt from live
// sessions, so flags left by a previous process are stale.
func (s *Store) ResetPresence(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET is_online = ? WHERE is_online = ?`, false, true)
	if err != nil {
		return 0, fmt.Errorf("reset presence: %w", err)
	}
	return res.RowsAffected()
}

// UpdateProfile changes the editable profile fields.
func (s *Store) UpdateProfile(ctx context.Context, id int64, displayName, bio, pictureURL string) (*models.User, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET display_name = ?, bio = ?, profile_picture_url = ? WHERE id = ?`,
		displayName, bio, pictureURL, id)
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperr.NotFound("user not found")
	}
	return s.GetByID(ctx, id)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*models.User, error) {
	var (
		u        models.User
		lastSeen sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.DisplayName,
		&u.ProfilePictureURL, &u.Bio, &u.IsOnline, &lastSeen, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	if lastSeen.Valid {
		t := lastSeen.Time
		u.LastSeen = &t
	}
	return &u, nil
}

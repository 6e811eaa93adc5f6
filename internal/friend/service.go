// Package friend manages friend requests, friendships and follows.
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

type Service struct {
	db  *sql.DB
	now func() time.Time
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// SendRequest creates a pending request from requesterID to addresseeID. A
// previously rejected request between the pair is replaced.
func (s *Service) SendRequest(ctx context.Context, requesterID, addresseeID int64) (*models.FriendRequest, error) {
	if requesterID == addresseeID {
		return nil, apperr.Invalid("cannot send friend request to yourself")
	}
	if err := s.requireUser(ctx, addresseeID); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin friend request: %w", err)
	}
	defer tx.Rollback()

	var (
		existingID int64
		status     string
	)
	err = tx.QueryRowContext(ctx,
		`SELECT id, status FROM friendships
		 WHERE (requester_id = ? AND addressee_id = ?) OR (requester_id = ? AND addressee_id = ?)`,
		requesterID, addresseeID, addresseeID, requesterID).Scan(&existingID, &status)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("load friendship: %w", err)
	case models.FriendshipStatus(status) == models.FriendshipAccepted:
		return nil, apperr.Conflict("already friends")
	case models.FriendshipStatus(status) == models.FriendshipPending:
		return nil, apperr.Conflict("friend request already pending")
	default:
		if _, err := tx.ExecContext(ctx, `DELETE FROM friendships WHERE id = ?`, existingID); err != nil {
			return nil, fmt.Errorf("clear rejected request: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO friendships (requester_id, addressee_id, status, created_at) VALUES (?, ?, ?, ?)`,
		requesterID, addresseeID, string(models.FriendshipPending), s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("insert friend request: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("friend request id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit friend request: %w", err)
	}
	return s.request(ctx, id)
}

// Accept turns a pending request addressed to userID into a friendship.
func (s *Service) Accept(ctx context.Context, userID, requestID int64) (*models.FriendRequest, error) {
	if _, err := s.pendingFor(ctx, requestID, userID, true, "accept friend requests sent to you"); err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE friendships SET status = ?, accepted_at = ? WHERE id = ?`,
		string(models.FriendshipAccepted), s.now().UTC(), requestID); err != nil {
		return nil, fmt.Errorf("accept friend request: %w", err)
	}
	return s.request(ctx, requestID)
}

func (s *Service) Reject(ctx context.Context, userID, requestID int64) error {
	if _, err := s.pendingFor(ctx, requestID, userID, true, "reject friend requests sent to you"); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE friendships SET status = ? WHERE id = ?`, string(models.FriendshipRejected), requestID); err != nil {
		return fmt.Errorf("reject friend request: %w", err)
	}
	return nil
}

// Cancel withdraws a pending request sent by userID.
func (s *Service) Cancel(ctx context.Context, userID, requestID int64) error {
	if _, err := s.pendingFor(ctx, requestID, userID, false, "cancel friend requests you sent"); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM friendships WHERE id = ?`, requestID); err != nil {
		return fmt.Errorf("cancel friend request: %w", err)
	}
	return nil
}

// Pending lists requests waiting for userID to answer.
func (s *Service) Pending(ctx context.Context, userID int64) ([]*models.FriendRequest, error) {
	return s.requests(ctx, `f.addressee_id = ? AND f.status = ?`, userID, string(models.FriendshipPending))
}

// Sent lists userID's unanswered requests.
func (s *Service) Sent(ctx context.Context, userID int64) ([]*models.FriendRequest, error) {
	return s.requests(ctx, `f.requester_id = ? AND f.status = ?`, userID, string(models.FriendshipPending))
}

func (s *Service) Friends(ctx context.Context, userID int64) ([]models.UserSummary, error) {
	return s.users(ctx,
		`SELECT `+summaryColumns+` FROM friendships f
		 JOIN users u ON u.id = CASE WHEN f.requester_id = ? THEN f.addressee_id ELSE f.requester_id END
		 WHERE (f.requester_id = ? OR f.addressee_id = ?) AND f.status = ?
		 ORDER BY u.username`,
		userID, userID, userID, string(models.FriendshipAccepted))
}

func (s *Service) RemoveFriend(ctx context.Context, userID, friendID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM friendships
		 WHERE ((requester_id = ? AND addressee_id = ?) OR (requester_id = ? AND addressee_id = ?)) AND status = ?`,
		userID, friendID, friendID, userID, string(models.FriendshipAccepted))
	if err != nil {
		return fmt.Errorf("remove friend: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("friendship not found")
	}
	return nil
}

// Follow makes followerID follow followingID. It reports false when the
// follow already existed.
func (s *Service) Follow(ctx context.Context, followerID, followingID int64) (bool, error) {
	if followerID == followingID {
		return false, apperr.Invalid("cannot follow yourself")
	}
	if err := s.requireUser(ctx, followingID); err != nil {
		return false, err
	}
	following, err := s.isFollowing(ctx, followerID, followingID)
	if err != nil || following {
		return false, err
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO follows (follower_id, following_id, created_at) VALUES (?, ?, ?)`,
		followerID, followingID, s.now().UTC()); err != nil {
		return false, fmt.Errorf("insert follow: %w", err)
	}
	return true, nil
}

func (s *Service) Unfollow(ctx context.Context, followerID, followingID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM follows WHERE follower_id = ? AND following_id = ?`, followerID, followingID)
	if err != nil {
		return fmt.Errorf("unfollow: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("follow relationship not found")
	}
	return nil
}

func (s *Service) Followers(ctx context.Context, userID int64) ([]models.UserSummary, error) {
	return s.users(ctx,
		`SELECT `+summaryColumns+` FROM follows f JOIN users u ON u.id = f.follower_id
		 WHERE f.following_id = ? ORDER BY f.created_at DESC, u.id DESC`, userID)
}

func (s *Service) Following(ctx context.Context, userID int64) ([]models.UserSummary, error) {
	return s.users(ctx,
		`SELECT `+summaryColumns+` FROM follows f JOIN users u ON u.id = f.following_id
		 WHERE f.follower_id = ? ORDER BY f.created_at DESC, u.id DESC`, userID)
}

// Status describes how viewerID relates to otherID.
func (s *Service) Status(ctx context.Context, viewerID, otherID int64) (*models.RelationshipStatus, error) {
	st := &models.RelationshipStatus{}
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM friendships
		 WHERE (requester_id = ? AND addressee_id = ?) OR (requester_id = ? AND addressee_id = ?)`,
		viewerID, otherID, otherID, viewerID).Scan(&status)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("load friendship: %w", err)
	default:
		st.FriendshipStatus = models.FriendshipStatus(status)
		st.AreFriends = st.FriendshipStatus == models.FriendshipAccepted
		st.HasPendingRequest = st.FriendshipStatus == models.FriendshipPending
	}

	if st.IsFollowing, err = s.isFollowing(ctx, viewerID, otherID); err != nil {
		return nil, err
	}
	if st.IsFollowedBy, err = s.isFollowing(ctx, otherID, viewerID); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Service) Stats(ctx context.Context, userID int64) (*models.UserStats, error) {
	if err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	var st models.UserStats
	err := s.db.QueryRowContext(ctx,
		`SELECT
			(SELECT COUNT(*) FROM friendships WHERE (requester_id = ? OR addressee_id = ?) AND status = ?),
			(SELECT COUNT(*) FROM follows WHERE following_id = ?),
			(SELECT COUNT(*) FROM follows WHERE follower_id = ?),
			(SELECT COUNT(*) FROM posts WHERE user_id = ? AND is_deleted = ?)`,
		userID, userID, string(models.FriendshipAccepted), userID, userID, userID, false,
	).Scan(&st.FriendsCount, &st.FollowersCount, &st.FollowingCount, &st.PostsCount)
	if err != nil {
		return nil, fmt.Errorf("load user stats: %w", err)
	}
	return &st, nil
}

// pendingFor loads a pending request and checks that userID is its
// addressee (or requester when asAddressee is false).
func (s *Service) pendingFor(ctx context.Context, requestID, userID int64, asAddressee bool, action string) (*models.Friendship, error) {
	var (
		f          models.Friendship
		status     string
		acceptedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, requester_id, addressee_id, status, created_at, accepted_at FROM friendships WHERE id = ?`,
		requestID).Scan(&f.ID, &f.RequesterID, &f.AddresseeID, &status, &f.CreatedAt, &acceptedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("friend request not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load friend request: %w", err)
	}
	f.Status = models.FriendshipStatus(status)
	f.AcceptedAt = timePtr(acceptedAt)

	owner := f.RequesterID
	if asAddressee {
		owner = f.AddresseeID
	}
	if owner != userID {
		return nil, apperr.Forbidden("you can only %s", action)
	}
	if f.Status != models.FriendshipPending {
		return nil, apperr.Conflict("friend request is not pending")
	}
	return &f, nil
}

func (s *Service) requireUser(ctx context.Context, id int64) error {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE id = ?`, id).Scan(&n); err != nil {
		return fmt.Errorf("check user: %w", err)
	}
	if n == 0 {
		return apperr.NotFound("user not found")
	}
	return nil
}

func (s *Service) isFollowing(ctx context.Context, followerID, followingID int64) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM follows WHERE follower_id = ? AND following_id = ?`,
		followerID, followingID).Scan(&n); err != nil {
		return false, fmt.Errorf("check follow: %w", err)
	}
	return n > 0, nil
}

// Package post stores posts, their threaded comments and likes.
package post

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

const (
	DefaultFeedSize    = 20
	DefaultCommentPage = 50
	maxPageSize        = 100
	maxPostLength      = 5000
	maxCommentLength   = 2000
)

type Service struct {
	db  *sql.DB
	now func() time.Time
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db, now: time.Now}
}

type CreatePostInput struct {
	TextContent  string          `json:"text_content"`
	Type         models.PostType `json:"type"`
	MediaURL     string          `json:"media_url"`
	ThumbnailURL string          `json:"thumbnail_url"`
}

func (s *Service) CreatePost(ctx context.Context, userID int64, in CreatePostInput) (*models.Post, error) {
	in.TextContent = strings.TrimSpace(in.TextContent)
	if in.Type == "" {
		in.Type = models.PostText
	}
	switch {
	case !in.Type.Valid():
		return nil, apperr.Invalid("unknown post type %q", in.Type)
	case in.Type == models.PostText && in.TextContent == "":
		return nil, apperr.Invalid("text posts need content")
	case in.Type != models.PostText && in.MediaURL == "":
		return nil, apperr.Invalid("%s posts need a media url", in.Type)
	case len(in.TextContent) > maxPostLength:
		return nil, apperr.Invalid("post exceeds maximum length of %d characters", maxPostLength)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO posts (user_id, text_content, type, media_url, thumbnail_url, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		userID, in.TextContent, string(in.Type), in.MediaURL, in.ThumbnailURL, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("insert post: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("post id: %w", err)
	}
	return s.GetPost(ctx, userID, id)
}

// GetPost returns a live post as seen by viewerID.
func (s *Service) GetPost(ctx context.Context, viewerID, postID int64) (*models.Post, error) {
	p, err := scanPost(s.db.QueryRowContext(ctx, postQuery+` WHERE p.id = ? AND p.is_deleted = ?`,
		viewerID, postID, false))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("post not found")
	}
	return p, err
}

// Feed returns every live post, newest first.
func (s *Service) Feed(ctx context.Context, viewerID int64, skip, take int) (*models.PostFeed, error) {
	return s.page(ctx, viewerID, `p.is_deleted = ?`, []any{false}, skip, take)
}

func (s *Service) UserPosts(ctx context.Context, viewerID, authorID int64, skip, take int) (*models.PostFeed, error) {
	return s.page(ctx, viewerID, `p.user_id = ? AND p.is_deleted = ?`, []any{authorID, false}, skip, take)
}

func (s *Service) page(ctx context.Context, viewerID int64, where string, args []any, skip, take int) (*models.PostFeed, error) {
	skip, take = clampPage(skip, take, DefaultFeedSize)

	feed := &models.PostFeed{Posts: []*models.Post{}}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM posts p WHERE `+where, args...).Scan(&feed.TotalCount); err != nil {
		return nil, fmt.Errorf("count posts: %w", err)
	}

	queryArgs := append([]any{viewerID}, args...)
	queryArgs = append(queryArgs, take, skip)
	rows, err := s.db.QueryContext(ctx,
		postQuery+` WHERE `+where+` ORDER BY p.created_at DESC, p.id DESC LIMIT ? OFFSET ?`, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		feed.Posts = append(feed.Posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	feed.HasMore = skip+take < feed.TotalCount
	return feed, nil
}

func (s *Service) UpdatePost(ctx context.Context, userID, postID int64, text string) (*models.Post, error) {
	text = strings.TrimSpace(text)
	if len(text) > maxPostLength {
		return nil, apperr.Invalid("post exceeds maximum length of %d characters", maxPostLength)
	}
	owner, err := s.postOwner(ctx, postID)
	if err != nil {
		return nil, err
	}
	if owner != userID {
		return nil, apperr.Forbidden("you can only edit your own posts")
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE posts SET text_content = ?, is_edited = ?, edited_at = ? WHERE id = ?`,
		text, true, s.now().UTC(), postID); err != nil {
		return nil, fmt.Errorf("update post: %w", err)
	}
	return s.GetPost(ctx, userID, postID)
}

func (s *Service) DeletePost(ctx context.Context, userID, postID int64) error {
	owner, err := s.postOwner(ctx, postID)
	if err != nil {
		return err
	}
	if owner != userID {
		return apperr.Forbidden("you can only delete your own posts")
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE posts SET is_deleted = ? WHERE id = ?`, true, postID); err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	return nil
}

// AddComment stores a comment or, with parentID set, a reply to a comment
// on the same post.
func (s *Service) AddComment(ctx context.Context, userID, postID int64, parentID *int64, content string) (*models.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperr.Invalid("comment content is required")
	}
	if len(content) > maxCommentLength {
		return nil, apperr.Invalid("comment exceeds maximum length of %d characters", maxCommentLength)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin add comment: %w", err)
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM posts WHERE id = ? AND is_deleted = ?`, postID, false).Scan(&n); err != nil {
		return nil, fmt.Errorf("check post: %w", err)
	}
	if n == 0 {
		return nil, apperr.NotFound("post not found")
	}
	if parentID != nil {
		var parentPost int64
		err := tx.QueryRowContext(ctx,
			`SELECT post_id FROM comments WHERE id = ? AND is_deleted = ?`, *parentID, false).Scan(&parentPost)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("parent comment not found")
		}
		if err != nil {
			return nil, fmt.Errorf("check parent comment: %w", err)
		}
		if parentPost != postID {
			return nil, apperr.Invalid("parent comment does not belong to this post")
		}
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO comments (post_id, user_id, parent_comment_id, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		postID, userID, nullableID(parentID), content, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("insert comment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("comment id: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE posts SET comments_count = comments_count + 1 WHERE id = ?`, postID); err != nil {
		return nil, fmt.Errorf("bump comments count: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit add comment: %w", err)
	}
	return s.GetComment(ctx, userID, id)
}

func (s *Service) GetComment(ctx context.Context, viewerID, commentID int64) (*models.Comment, error) {
	c, err := scanComment(s.db.QueryRowContext(ctx, commentQuery+` WHERE c.id = ? AND c.is_deleted = ?`,
		viewerID, commentID, false))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("comment not found")
	}
	return c, err
}

// Comments returns a page of top-level comments, newest first, each with
// its replies in the order they were written.
func (s *Service) Comments(ctx context.Context, viewerID, postID int64, skip, take int) ([]*models.Comment, error) {
	if _, err := s.postOwner(ctx, postID); err != nil {
		return nil, err
	}
	skip, take = clampPage(skip, take, DefaultCommentPage)

	top, err := s.queryComments(ctx,
		commentQuery+` WHERE c.post_id = ? AND c.parent_comment_id IS NULL AND c.is_deleted = ?
		 ORDER BY c.created_at DESC, c.id DESC LIMIT ? OFFSET ?`,
		viewerID, postID, false, take, skip)
	if err != nil {
		return nil, err
	}
	for _, c := range top {
		replies, err := s.queryComments(ctx,
			commentQuery+` WHERE c.parent_comment_id = ? AND c.is_deleted = ? ORDER BY c.created_at, c.id`,
			viewerID, c.ID, false)
		if err != nil {
			return nil, err
		}
		c.Replies = replies
	}
	return top, nil
}

func (s *Service) UpdateComment(ctx context.Context, userID, commentID int64, content string) (*models.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperr.Invalid("comment content is required")
	}
	if len(content) > maxCommentLength {
		return nil, apperr.Invalid("comment exceeds maximum length of %d characters", maxCommentLength)
	}
	c, err := s.GetComment(ctx, userID, commentID)
	if err != nil {
		return nil, err
	}
	if c.UserID != userID {
		return nil, apperr.Forbidden("you can only edit your own comments")
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE comments SET content = ?, is_edited = ?, edited_at = ? WHERE id = ?`,
		content, true, s.now().UTC(), commentID); err != nil {
		return nil, fmt.Errorf("update comment: %w", err)
	}
	return s.GetComment(ctx, userID, commentID)
}

func (s *Service) DeleteComment(ctx context.Context, userID, commentID int64) error {
	c, err := s.GetComment(ctx, userID, commentID)
	if err != nil {
		return err
	}
	if c.UserID != userID {
		return apperr.Forbidden("you can only delete your own comments")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete comment: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `UPDATE comments SET is_deleted = ? WHERE id = ?`, true, commentID); err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE posts SET comments_count = comments_count - 1 WHERE id = ? AND comments_count > 0`, c.PostID); err != nil {
		return fmt.Errorf("drop comments count: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete comment: %w", err)
	}
	return nil
}

// TogglePostLike likes the post, or removes an existing like.
func (s *Service) TogglePostLike(ctx context.Context, userID, postID int64) (models.LikeResult, error) {
	return s.toggle(ctx, likeTarget{
		name:     "post",
		table:    "posts",
		likes:    "post_likes",
		column:   "post_id",
		notFound: "post not found",
	}, userID, postID)
}

func (s *Service) ToggleCommentLike(ctx context.Context, userID, commentID int64) (models.LikeResult, error) {
	return s.toggle(ctx, likeTarget{
		name:     "comment",
		table:    "comments",
		likes:    "comment_likes",
		column:   "comment_id",
		notFound: "comment not found",
	}, userID, commentID)
}

type likeTarget struct {
	name     string
	table    string
	likes    string
	column   string
	notFound string
}

func (s *Service) toggle(ctx context.Context, t likeTarget, userID, targetID int64) (models.LikeResult, error) {
	var res models.LikeResult

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("begin %s like: %w", t.name, err)
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM `+t.table+` WHERE id = ? AND is_deleted = ?`, targetID, false).Scan(&n); err != nil {
		return res, fmt.Errorf("check %s: %w", t.name, err)
	}
	if n == 0 {
		return res, apperr.NotFound("%s", t.notFound)
	}

	del, err := tx.ExecContext(ctx,
		`DELETE FROM `+t.likes+` WHERE `+t.column+` = ? AND user_id = ?`, targetID, userID)
	if err != nil {
		return res, fmt.Errorf("remove %s like: %w", t.name, err)
	}
	removed, err := del.RowsAffected()
	if err != nil {
		return res, fmt.Errorf("remove %s like: %w", t.name, err)
	}

	delta := `likes_count - 1`
	if removed == 0 {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO `+t.likes+` (`+t.column+`, user_id, created_at) VALUES (?, ?, ?)`,
			targetID, userID, s.now().UTC()); err != nil {
			return res, fmt.Errorf("add %s like: %w", t.name, err)
		}
		delta = `likes_count + 1`
		res.Liked = true
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE `+t.table+` SET likes_count = `+delta+` WHERE id = ?`, targetID); err != nil {
		return res, fmt.Errorf("update %s likes: %w", t.name, err)
	}
	if err := tx.QueryRowContext(ctx,
		`SELECT likes_count FROM `+t.table+` WHERE id = ?`, targetID).Scan(&res.Count); err != nil {
		return res, fmt.Errorf("read %s likes: %w", t.name, err)
	}
	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("commit %s like: %w", t.name, err)
	}
	return res, nil
}

func (s *Service) postOwner(ctx context.Context, postID int64) (int64, error) {
	var owner int64
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id FROM posts WHERE id = ? AND is_deleted = ?`, postID, false).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, apperr.NotFound("post not found")
	}
	if err != nil {
		return 0, fmt.Errorf("load post owner: %w", err)
	}
	return owner, nil
}

func (s *Service) queryComments(ctx context.Context, query string, args ...any) ([]*models.Comment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()
	comments := []*models.Comment{}
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return comments, nil
}

func clampPage(skip, take, def int) (int, int) {
	if skip < 0 {
		skip = 0
	}
	if take <= 0 {
		take = def
	}
	if take > maxPageSize {
		take = maxPageSize
	}
	return skip, take
}

func nullableID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

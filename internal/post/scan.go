package post

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/christopherjohns/socialhub/internal/models"
)

// The first placeholder of both queries is the viewer id.
const (
	postQuery = `SELECT p.id, p.user_id, u.username, u.display_name, u.profile_picture_url, u.is_online,
	p.text_content, p.type, p.media_url, p.thumbnail_url, p.created_at, p.edited_at, p.is_edited,
	p.likes_count, p.comments_count,
	(SELECT COUNT(*) FROM post_likes l WHERE l.post_id = p.id AND l.user_id = ?)
	FROM posts p JOIN users u ON u.id = p.user_id`

	commentQuery = `SELECT c.id, c.post_id, c.user_id, u.username, u.display_name, u.profile_picture_url, u.is_online,
	c.parent_comment_id, c.content, c.created_at, c.edited_at, c.is_edited, c.likes_count,
	(SELECT COUNT(*) FROM comment_likes l WHERE l.comment_id = c.id AND l.user_id = ?)
	FROM comments c JOIN users u ON u.id = c.user_id`
)

type scanner interface {
	Scan(dest ...any) error
}

func scanPost(row scanner) (*models.Post, error) {
	var (
		p        models.Post
		typ      string
		editedAt sql.NullTime
		liked    int
	)
	err := row.Scan(&p.ID, &p.UserID, &p.Author.Username, &p.Author.DisplayName, &p.Author.ProfilePictureURL,
		&p.Author.IsOnline, &p.TextContent, &typ, &p.MediaURL, &p.ThumbnailURL, &p.CreatedAt, &editedAt,
		&p.IsEdited, &p.LikesCount, &p.CommentsCount, &liked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan post: %w", err)
	}
	p.Author.ID = p.UserID
	p.Type = models.PostType(typ)
	if editedAt.Valid {
		t := editedAt.Time
		p.EditedAt = &t
	}
	p.IsLikedByCurrentUser = liked > 0
	return &p, nil
}

func scanComment(row scanner) (*models.Comment, error) {
	var (
		c        models.Comment
		parent   sql.NullInt64
		editedAt sql.NullTime
		liked    int
	)
	err := row.Scan(&c.ID, &c.PostID, &c.UserID, &c.Author.Username, &c.Author.DisplayName,
		&c.Author.ProfilePictureURL, &c.Author.IsOnline, &parent, &c.Content, &c.CreatedAt, &editedAt,
		&c.IsEdited, &c.LikesCount, &liked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan comment: %w", err)
	}
	c.Author.ID = c.UserID
	if parent.Valid {
		id := parent.Int64
		c.ParentCommentID = &id
	}
	if editedAt.Valid {
		t := editedAt.Time
		c.EditedAt = &t
	}
	c.IsLikedByCurrentUser = liked > 0
	return &c, nil
}

package models

import "time"

type PostType string

const (
	PostText  PostType = "text"
	PostImage PostType = "image"
	PostVideo PostType = "video"
)

func (t PostType) Valid() bool {
	switch t {
	case PostText, PostImage, PostVideo:
		return true
	}
	return false
}

type Post struct {
	ID                   int64       `json:"id"`
	UserID               int64       `json:"user_id"`
	Author               UserSummary `json:"author"`
	TextContent          string      `json:"text_content,omitempty"`
	Type                 PostType    `json:"type"`
	MediaURL             string      `json:"media_url,omitempty"`
	ThumbnailURL         string      `json:"thumbnail_url,omitempty"`
	CreatedAt            time.Time   `json:"created_at"`
	EditedAt             *time.Time  `json:"edited_at,omitempty"`
	IsEdited             bool        `json:"is_edited"`
	LikesCount           int         `json:"likes_count"`
	CommentsCount        int         `json:"comments_count"`
	IsLikedByCurrentUser bool        `json:"is_liked_by_current_user"`
}

type PostFeed struct {
	Posts      []*Post `json:"posts"`
	TotalCount int     `json:"total_count"`
	HasMore    bool    `json:"has_more"`
}

type Comment struct {
	ID                   int64       `json:"id"`
	PostID               int64       `json:"post_id"`
	UserID               int64       `json:"user_id"`
	Author               UserSummary `json:"author"`
	ParentCommentID      *int64      `json:"parent_comment_id,omitempty"`
	Content              string      `json:"content"`
	CreatedAt            time.Time   `json:"created_at"`
	EditedAt             *time.Time  `json:"edited_at,omitempty"`
	IsEdited             bool        `json:"is_edited"`
	LikesCount           int         `json:"likes_count"`
	IsLikedByCurrentUser bool        `json:"is_liked_by_current_user"`
	Replies              []*Comment  `json:"replies,omitempty"`
}

// LikeResult is returned by the like toggles.
type LikeResult struct {
	Liked bool `json:"is_liked"`
	Count int  `json:"likes_count"`
}

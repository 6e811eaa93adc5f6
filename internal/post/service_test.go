package post

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/christopherjohns/socialhub/internal/apperr"
	"github.com/christopherjohns/socialhub/internal/models"
	"github.com/christopherjohns/socialhub/internal/storage/storagetest"
)

func setup(t *testing.T) (*Service, int64, int64) {
	t.Helper()
	db := storagetest.Open(t)
	return NewService(db), storagetest.CreateUser(t, db, "alice"), storagetest.CreateUser(t, db, "bob")
}

func TestCreatePostValidation(t *testing.T) {
	svc, alice, _ := setup(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   CreatePostInput
	}{
		{"empty text", CreatePostInput{TextContent: "  "}},
		{"unknown type", CreatePostInput{TextContent: "x", Type: "poll"}},
		{"image without media", CreatePostInput{Type: models.PostImage}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreatePost(ctx, alice, tt.in)
			require.True(t, errors.Is(err, apperr.ErrInvalid), "got %v", err)
		})
	}

	p, err := svc.CreatePost(ctx, alice, CreatePostInput{Type: models.PostImage, MediaURL: "/media/cat.png"})
	require.NoError(t, err)
	require.Equal(t, models.PostImage, p.Type)
	require.Equal(t, "alice", p.Author.Username)
}

func TestFeedPaging(t *testing.T) {
	svc, alice, bob := setup(t)
	ctx := context.Background()

	base := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		svc.now = func() time.Time { return at }
		author := alice
		if i%2 == 1 {
			author = bob
		}
		_, err := svc.CreatePost(ctx, author, CreatePostInput{TextContent: "post"})
		require.NoError(t, err)
	}

	feed, err := svc.Feed(ctx, alice, 0, 2)
	require.NoError(t, err)
	require.Equal(t, 5, feed.TotalCount)
	require.Len(t, feed.Posts, 2)
	require.True(t, feed.HasMore)
	require.True(t, feed.Posts[0].CreatedAt.After(feed.Posts[1].CreatedAt))

	last, err := svc.Feed(ctx, alice, 4, 2)
	require.NoError(t, err)
	require.Len(t, last.Posts, 1)
	require.False(t, last.HasMore)

	bobs, err := svc.UserPosts(ctx, alice, bob, 0, 0)
	require.NoError(t, err)
	require.Equal(t, 2, bobs.TotalCount)
	for _, p := range bobs.Posts {
		require.Equal(t, bob, p.UserID)
	}
}

func TestUpdateAndDeletePostOwnerOnly(t *testing.T) {
	svc, alice, bob := setup(t)
	ctx := context.Background()
	p, err := svc.CreatePost(ctx, alice, CreatePostInput{TextContent: "draft"})
	require.NoError(t, err)

	_, err = svc.UpdatePost(ctx, bob, p.ID, "hijack")
	require.True(t, errors.Is(err, apperr.ErrForbidden))

	updated, err := svc.UpdatePost(ctx, alice, p.ID, "final")
	require.NoError(t, err)
	require.Equal(t, "final", updated.TextContent)
	require.True(t, updated.IsEdited)
	require.NotNil(t, updated.EditedAt)

	require.True(t, errors.Is(svc.DeletePost(ctx, bob, p.ID), apperr.ErrForbidden))
	require.NoError(t, svc.DeletePost(ctx, alice, p.ID))

	_, err = svc.GetPost(ctx, alice, p.ID)
	require.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestAddCommentAndReplies(t *testing.T) {
	svc, alice, bob := setup(t)
	ctx := context.Background()
	p, err := svc.CreatePost(ctx, alice, CreatePostInput{TextContent: "hello"})
	require.NoError(t, err)
	other, err := svc.CreatePost(ctx, alice, CreatePostInput{TextContent: "other"})
	require.NoError(t, err)

	c, err := svc.AddComment(ctx, bob, p.ID, nil, "nice")
	require.NoError(t, err)
	require.Nil(t, c.ParentCommentID)

	reply, err := svc.AddComment(ctx, alice, p.ID, &c.ID, "thanks")
	require.NoError(t, err)
	require.Equal(t, c.ID, *reply.ParentCommentID)

	_, err = svc.AddComment(ctx, bob, 999, nil, "x")
	require.Equal(t, "post not found", apperr.Public(err))

	missing := int64(999)
	_, err = svc.AddComment(ctx, bob, p.ID, &missing, "x")
	require.Equal(t, "parent comment not found", apperr.Public(err))

	_, err = svc.AddComment(ctx, bob, other.ID, &c.ID, "x")
	require.Equal(t, "parent comment does not belong to this post", apperr.Public(err))

	_, err = svc.AddComment(ctx, bob, p.ID, nil, " ")
	require.True(t, errors.Is(err, apperr.ErrInvalid))

	got, err := svc.GetPost(ctx, bob, p.ID)
	require.NoError(t, err)
	require.Equal(t, 2, got.CommentsCount)

	comments, err := svc.Comments(ctx, bob, p.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	require.Len(t, comments[0].Replies, 1)
	require.Equal(t, "thanks", comments[0].Replies[0].Content)

	require.True(t, errors.Is(svc.DeleteComment(ctx, alice, c.ID), apperr.ErrForbidden))
	require.NoError(t, svc.DeleteComment(ctx, alice, reply.ID))
	got, err = svc.GetPost(ctx, bob, p.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.CommentsCount)

	edited, err := svc.UpdateComment(ctx, bob, c.ID, "very nice")
	require.NoError(t, err)
	require.True(t, edited.IsEdited)
	_, err = svc.UpdateComment(ctx, alice, c.ID, "nope")
	require.True(t, errors.Is(err, apperr.ErrForbidden))
}

func TestToggleLikes(t *testing.T) {
	svc, alice, bob := setup(t)
	ctx := context.Background()
	p, err := svc.CreatePost(ctx, alice, CreatePostInput{TextContent: "like me"})
	require.NoError(t, err)

	res, err := svc.TogglePostLike(ctx, bob, p.ID)
	require.NoError(t, err)
	require.Equal(t, models.LikeResult{Liked: true, Count: 1}, res)

	res, err = svc.TogglePostLike(ctx, alice, p.ID)
	require.NoError(t, err)
	require.Equal(t, models.LikeResult{Liked: true, Count: 2}, res)

	viewed, err := svc.GetPost(ctx, bob, p.ID)
	require.NoError(t, err)
	require.True(t, viewed.IsLikedByCurrentUser)

	res, err = svc.TogglePostLike(ctx, bob, p.ID)
	require.NoError(t, err)
	require.Equal(t, models.LikeResult{Liked: false, Count: 1}, res)

	_, err = svc.TogglePostLike(ctx, bob, 404)
	require.True(t, errors.Is(err, apperr.ErrNotFound))

	c, err := svc.AddComment(ctx, bob, p.ID, nil, "first")
	require.NoError(t, err)
	res, err = svc.ToggleCommentLike(ctx, alice, c.ID)
	require.NoError(t, err)
	require.Equal(t, models.LikeResult{Liked: true, Count: 1}, res)

	_, err = svc.ToggleCommentLike(ctx, alice, 404)
	require.Equal(t, "comment not found", apperr.Public(err))
}

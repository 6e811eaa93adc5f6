package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/christopherjohns/socialhub/internal/post"
)

type updatePostRequest struct {
	TextContent string `json:"text_content"`
}

type addCommentRequest struct {
	PostID          int64  `json:"post_id"`
	ParentCommentID *int64 `json:"parent_comment_id"`
	Content         string `json:"content"`
}

type updateCommentRequest struct {
	Content string `json:"content"`
}

func (h *Handler) createPost(c *gin.Context) {
	var req post.CreatePostInput
	if !bind(c, &req) {
		return
	}
	p, err := h.Posts.CreatePost(c.Request.Context(), currentUser(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handler) feed(c *gin.Context) {
	skip, take := paging(c, post.DefaultFeedSize)
	feed, err := h.Posts.Feed(c.Request.Context(), currentUser(c), skip, take)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, feed)
}

func (h *Handler) userPosts(c *gin.Context) {
	authorID, ok := pathID(c)
	if !ok {
		return
	}
	skip, take := paging(c, post.DefaultFeedSize)
	feed, err := h.Posts.UserPosts(c.Request.Context(), currentUser(c), authorID, skip, take)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, feed)
}

func (h *Handler) getPost(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	p, err := h.Posts.GetPost(c.Request.Context(), currentUser(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) updatePost(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req updatePostRequest
	if !bind(c, &req) {
		return
	}
	p, err := h.Posts.UpdatePost(c.Request.Context(), currentUser(c), id, req.TextContent)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) deletePost(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.Posts.DeletePost(c.Request.Context(), currentUser(c), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) likePost(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	userID := currentUser(c)
	res, err := h.Posts.TogglePostLike(c.Request.Context(), userID, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.PostHub.PublishPostLike(c.Request.Context(), userID, id, res)
	c.JSON(http.StatusOK, res)
}

func (h *Handler) listComments(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	skip, take := paging(c, post.DefaultCommentPage)
	comments, err := h.Posts.Comments(c.Request.Context(), currentUser(c), id, skip, take)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, comments)
}

func (h *Handler) addComment(c *gin.Context) {
	var req addCommentRequest
	if !bind(c, &req) {
		return
	}
	comment, err := h.Posts.AddComment(c.Request.Context(), currentUser(c), req.PostID, req.ParentCommentID, req.Content)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.PostHub.PublishComment(c.Request.Context(), comment)
	c.JSON(http.StatusCreated, comment)
}

func (h *Handler) updateComment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req updateCommentRequest
	if !bind(c, &req) {
		return
	}
	comment, err := h.Posts.UpdateComment(c.Request.Context(), currentUser(c), id, req.Content)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, comment)
}

func (h *Handler) deleteComment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.Posts.DeleteComment(c.Request.Context(), currentUser(c), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) likeComment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	userID := currentUser(c)
	res, err := h.Posts.ToggleCommentLike(c.Request.Context(), userID, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.PostHub.PublishCommentLike(c.Request.Context(), userID, id, res)
	c.JSON(http.StatusOK, res)
}

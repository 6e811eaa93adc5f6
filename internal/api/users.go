package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/christopherjohns/socialhub/internal/auth"
)

type registerRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type loginRequest struct {
	// Login is a username or an email address.
	Login    string `json:"login"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if !bind(c, &req) {
		return
	}
	u, token, err := h.Auth.Register(c.Request.Context(), auth.RegisterInput{
		Username:    req.Username,
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.log.Info().Int64("user_id", u.ID).Msg("user registered")
	c.JSON(http.StatusCreated, gin.H{"user": u, "token": token})
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if !bind(c, &req) {
		return
	}
	login := req.Login
	if login == "" {
		login = req.Username
	}
	u, token, err := h.Auth.Login(c.Request.Context(), login, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u, "token": token})
}

func (h *Handler) me(c *gin.Context) {
	u, err := h.Users.GetByID(c.Request.Context(), currentUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *Handler) searchUsers(c *gin.Context) {
	users, err := h.Users.Search(c.Request.Context(), c.Query("q"), currentUser(c), 20)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *Handler) getUser(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	u, err := h.Users.Summary(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

type profileRequest struct {
	DisplayName       string `json:"display_name"`
	Bio               string `json:"bio"`
	ProfilePictureURL string `json:"profile_picture_url"`
}

func (h *Handler) updateProfile(c *gin.Context) {
	var req profileRequest
	if !bind(c, &req) {
		return
	}
	u, err := h.Users.UpdateProfile(c.Request.Context(), currentUser(c), req.DisplayName, req.Bio, req.ProfilePictureURL)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

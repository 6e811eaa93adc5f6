package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/christopherjohns/socialhub/internal/apperr"
)

const (
	userIDContextKey = "auth_user_id"
	headerName       = "Authorization"
	// QueryParam carries the token for websocket upgrades, where browsers
	// cannot set headers.
	QueryParam = "access_token"
)

// Middleware validates bearer tokens and stores the authenticated user in the context.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := s.Authenticate(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": apperr.Public(err)})
			return
		}
		c.Set(userIDContextKey, userID)
		c.Next()
	}
}

// Authenticate resolves the caller of r from the bearer header or the
// access_token query parameter.
func (s *Service) Authenticate(r *http.Request) (int64, error) {
	return s.ValidateToken(ExtractToken(r))
}

// UserIDFromContext retrieves the authenticated user id from the gin context.
func UserIDFromContext(c *gin.Context) (int64, bool) {
	val, ok := c.Get(userIDContextKey)
	if !ok {
		return 0, false
	}
	userID, ok := val.(int64)
	return userID, ok
}

func ExtractToken(r *http.Request) string {
	authHeader := r.Header.Get(headerName)
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return r.URL.Query().Get(QueryParam)
}

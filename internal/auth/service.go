// Package auth registers users, checks passwords and issues the signed
// tokens that identify callers on the REST API and the hub endpoints.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/christopherjohns/socialhub/internal/apperr"
	"github.com/christopherjohns/socialhub/internal/config"
	"github.com/christopherjohns/socialhub/internal/models"
)

// UserStore is the subset of user.Store the service needs.
type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	GetByLogin(ctx context.Context, login string) (*models.User, error)
}

// Claims are the token claims. Subject holds the user id.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Service issues and validates HS256 tokens.
type Service struct {
	users    UserStore
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

func NewService(users UserStore, cfg config.AuthConfig) *Service {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		users:    users,
		secret:   []byte(cfg.JWTSecret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      ttl,
		now:      time.Now,
	}
}

// RegisterInput is the data needed to create an account.
type RegisterInput struct {
	Username    string
	Email       string
	Password    string
	DisplayName string
}

// Register creates the account and returns it with a fresh token.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, string, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if len(in.Username) < 3 || len(in.Username) > 32 {
		return nil, "", apperr.Invalid("username must be 3 to 32 characters")
	}
	if !strings.Contains(in.Email, "@") {
		return nil, "", apperr.Invalid("email is invalid")
	}
	if len(in.Password) < 6 {
		return nil, "", apperr.Invalid("password must be at least 6 characters")
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, "", err
	}
	u := &models.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		DisplayName:  strings.TrimSpace(in.DisplayName),
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, "", err
	}
	token, err := s.IssueToken(u)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

// Login checks the password for a username or email.
func (s *Service) Login(ctx context.Context, login, password string) (*models.User, string, error) {
	u, err := s.users.GetByLogin(ctx, strings.TrimSpace(login))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, "", fmt.Errorf("%w: invalid credentials", apperr.ErrUnauthorized)
		}
		return nil, "", err
	}
	if !CheckPassword(u.PasswordHash, password) {
		return nil, "", fmt.Errorf("%w: invalid credentials", apperr.ErrUnauthorized)
	}
	token, err := s.IssueToken(u)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

// IssueToken signs a token for u.
func (s *Service) IssueToken(u *models.User) (string, error) {
	if u == nil || u.ID <= 0 {
		return "", errors.New("invalid user id")
	}
	now := s.now()
	claims := Claims{
		Username: u.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(u.ID, 10),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	if s.audience != "" {
		claims.Audience = jwt.ClaimStrings{s.audience}
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken verifies the signature and expiry and returns the user id.
func (s *Service) ValidateToken(token string) (int64, error) {
	if token == "" {
		return 0, fmt.Errorf("%w: token required", apperr.ErrUnauthorized)
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	if s.audience != "" {
		opts = append(opts, jwt.WithAudience(s.audience))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", apperr.ErrUnauthorized, err)
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return 0, fmt.Errorf("%w: invalid subject", apperr.ErrUnauthorized)
	}
	return userID, nil
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

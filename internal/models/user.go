package models

import "time"

// User is a registered account.
type User struct {
	ID                int64      `json:"id"`
	Username          string     `json:"username"`
	Email             string     `json:"email"`
	PasswordHash      string     `json:"-"`
	DisplayName       string     `json:"display_name,omitempty"`
	ProfilePictureURL string     `json:"profile_picture_url,omitempty"`
	Bio               string     `json:"bio,omitempty"`
	IsOnline          bool       `json:"is_online"`
	LastSeen          *time.Time `json:"last_seen,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// Summary returns the public projection of u.
func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:                u.ID,
		Username:          u.Username,
		DisplayName:       u.DisplayName,
		ProfilePictureURL: u.ProfilePictureURL,
		IsOnline:          u.IsOnline,
		LastSeen:          u.LastSeen,
	}
}

// UserSummary is embedded in messages, posts, comments and friend lists.
type UserSummary struct {
	ID                int64      `json:"id"`
	Username          string     `json:"username"`
	DisplayName       string     `json:"display_name,omitempty"`
	ProfilePictureURL string     `json:"profile_picture_url,omitempty"`
	IsOnline          bool       `json:"is_online"`
	LastSeen          *time.Time `json:"last_seen,omitempty"`
}

// Name is the display name, falling back to the username.
func (u UserSummary) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

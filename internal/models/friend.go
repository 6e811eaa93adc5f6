package models

import "time"

type FriendshipStatus string

const (
	FriendshipPending  FriendshipStatus = "pending"
	FriendshipAccepted FriendshipStatus = "accepted"
	FriendshipRejected FriendshipStatus = "rejected"
)

type Friendship struct {
	ID          int64            `json:"id"`
	RequesterID int64            `json:"requester_id"`
	AddresseeID int64            `json:"addressee_id"`
	Status      FriendshipStatus `json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	AcceptedAt  *time.Time       `json:"accepted_at,omitempty"`
}

// FriendRequest is a friendship joined with both users.
type FriendRequest struct {
	ID         int64            `json:"id"`
	Requester  UserSummary      `json:"requester"`
	Addressee  UserSummary      `json:"addressee"`
	Status     FriendshipStatus `json:"status"`
	CreatedAt  time.Time        `json:"created_at"`
	AcceptedAt *time.Time       `json:"accepted_at,omitempty"`
}

type RelationshipStatus struct {
	AreFriends        bool             `json:"are_friends"`
	IsFollowing       bool             `json:"is_following"`
	IsFollowedBy      bool             `json:"is_followed_by"`
	HasPendingRequest bool             `json:"has_pending_request"`
	FriendshipStatus  FriendshipStatus `json:"friendship_status,omitempty"`
}

type UserStats struct {
	FriendsCount   int `json:"friends_count"`
	FollowersCount int `json:"followers_count"`
	FollowingCount int `json:"following_count"`
	PostsCount     int `json:"posts_count"`
}

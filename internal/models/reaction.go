package models

import "time"

// Like marks that UserID liked PostID. At most one row exists per pair.
type Like struct {
	PostID    string    `gorm:"primaryKey" json:"post_id"`
	UserID    string    `gorm:"primaryKey" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (Like) TableName() string { return "likes" }

// Repost marks that UserID reposted PostID.
type Repost struct {
	PostID    string    `gorm:"primaryKey" json:"post_id"`
	UserID    string    `gorm:"primaryKey" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (Repost) TableName() string { return "reposts" }

// CommentLike mirrors Like for comments.
type CommentLike struct {
	CommentID string    `gorm:"primaryKey" json:"comment_id"`
	UserID    string    `gorm:"primaryKey" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (CommentLike) TableName() string { return "comment_likes" }

// Follow is a directed edge from FollowerID to FollowingID.
type Follow struct {
	FollowerID  string    `gorm:"primaryKey" json:"follower_id"`
	FollowingID string    `gorm:"primaryKey" json:"following_id"`
	CreatedAt   time.Time `json:"created_at"`
}

func (Follow) TableName() string { return "follows" }

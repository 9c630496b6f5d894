package models

import "time"

// Comment is a row in the comments table. Replies reference a root comment
// through ParentCommentID; a reply never has replies of its own.
type Comment struct {
	ID              string    `gorm:"primaryKey" json:"id"`
	PostID          string    `gorm:"not null;index" json:"post_id"`
	UserID          string    `gorm:"not null" json:"user_id"`
	Content         string    `gorm:"not null" json:"content"`
	CreatedAt       time.Time `json:"created_at"`
	ParentCommentID *string   `gorm:"index" json:"parent_comment_id"`
	LikeCount       int       `gorm:"not null;default:0" json:"like_count"`
}

func (Comment) TableName() string { return "comments" }

// IsRoot reports whether the comment is top-level.
func (c *Comment) IsRoot() bool {
	return c.ParentCommentID == nil || *c.ParentCommentID == ""
}

// CommentWithAuthor is a comment joined with its author and viewer state.
// IsExpanded is client-local and only meaningful on roots.
type CommentWithAuthor struct {
	Comment    Comment `json:"comment"`
	Author     User    `json:"author"`
	IsLiked    bool    `json:"is_liked"`
	ReplyCount int     `json:"reply_count"`
	IsExpanded bool    `json:"is_expanded"`
}

package models

import "time"

// Post is a row in the posts table. The three counters are denormalized and
// advisory; feed reads recompute them from the related rows.
type Post struct {
	ID           string    `gorm:"primaryKey" json:"id"`
	UserID       string    `gorm:"not null;index" json:"user_id"`
	Content      string    `json:"content"`
	ImageURLs    []string  `gorm:"serializer:json" json:"image_urls"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
	LikeCount    int       `gorm:"not null;default:0" json:"like_count"`
	CommentCount int       `gorm:"not null;default:0" json:"comment_count"`
	RepostCount  int       `gorm:"not null;default:0" json:"repost_count"`
}

func (Post) TableName() string { return "posts" }

// PostWithViewerState is a post joined client-side with its author and the
// viewer's membership flags. It is never persisted.
type PostWithViewerState struct {
	Post       Post `json:"post"`
	Author     User `json:"author"`
	IsLiked    bool `json:"is_liked"`
	IsReposted bool `json:"is_reposted"`
}

// Package models contains the domain types shared by the gateway, the
// repositories and the feed controllers.
package models

import (
	"strings"
	"time"
)

// User is a profile row in the users table.
type User struct {
	ID            string    `gorm:"primaryKey" json:"id"`
	FullName      *string   `json:"full_name"`
	Email         *string   `json:"email"`
	AvatarURL     *string   `json:"avatar_url"`
	Provider      *string   `json:"provider"`
	Username      string    `gorm:"not null" json:"username"`
	UsernameLower string    `gorm:"not null;uniqueIndex" json:"username_lower"`
	Bio           *string   `json:"bio"`
	CreatedAt     time.Time `json:"created_at"`
}

// TableName pins the table name used by the hosted API.
func (User) TableName() string { return "users" }

// DisplayName returns the full name when set, otherwise the username.
func (u *User) DisplayName() string {
	if u.FullName != nil && strings.TrimSpace(*u.FullName) != "" {
		return *u.FullName
	}
	return u.Username
}

// StringPtr returns nil for a blank string.
func StringPtr(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

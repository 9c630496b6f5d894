package models

// RecentSearchEntry is a locally stored search hit. Timestamp is unix millis.
type RecentSearchEntry struct {
	UserID      string  `json:"user_id"`
	Username    string  `json:"username"`
	DisplayName *string `json:"display_name,omitempty"`
	AvatarURL   *string `json:"avatar_url,omitempty"`
	Timestamp   int64   `json:"timestamp"`
}

// CachedProfile holds the last-known profile fields used for first paint.
type CachedProfile struct {
	Name       string `json:"name"`
	AvatarURL  string `json:"avatar_url"`
	Username   string `json:"username"`
	AvatarPath string `json:"avatar_path"`
}

// Empty reports whether nothing has been cached.
func (p CachedProfile) Empty() bool {
	return p.Name == "" && p.AvatarURL == "" && p.Username == "" && p.AvatarPath == ""
}

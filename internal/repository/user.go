// Package repository turns UI-level intents into gateway calls and reshapes
// the rows that come back. The gateway has no joins; everything that spans
// tables is combined here or in package feed.
package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"frzterr/internal/cache"
	"frzterr/internal/gateway"
	"frzterr/internal/models"
)

const (
	maxUsernameLength = 20
	maxUsernameProbes = 1000
	defaultUsername   = "user"
)

// ProfileUpdate lists the profile fields to change; nil fields are left as is.
type ProfileUpdate struct {
	FullName  *string
	Username  *string
	Bio       *string
	AvatarURL *string
}

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	Search(ctx context.Context, query string, limit int, excludeID string) ([]models.User, error)
	IsUsernameAvailable(ctx context.Context, username, excludeUserID string) (bool, error)
	GenerateUniqueUsername(ctx context.Context, base string) (string, error)
	CreateOrUpdate(ctx context.Context, user *models.User) error
	UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (*models.User, error)
	UploadAvatar(ctx context.Context, userID string, data []byte) (string, error)
	UpdateAvatarURL(ctx context.Context, id, url string) error
}

type userRepository struct {
	data    gateway.Data
	storage gateway.Storage
	cache   *cache.Cache
	now     func() time.Time
}

// NewUserRepository returns a new UserRepository implementation. c may be
// nil to disable the author cache.
func NewUserRepository(data gateway.Data, storage gateway.Storage, c *cache.Cache) UserRepository {
	return &userRepository{data: data, storage: storage, cache: c, now: time.Now}
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := r.cache.Aside(ctx, cache.AuthorKey(id), &user, cache.AuthorTTL, func() error {
		var rows []models.User
		q := gateway.Select(gateway.Eq("id", id)).Take(1)
		if err := r.data.Select(ctx, gateway.TableUsers, q, &rows); err != nil {
			return err
		}
		if len(rows) == 0 {
			return models.NewNotFoundError("User", id)
		}
		user = rows[0]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) Search(ctx context.Context, query string, limit int, excludeID string) ([]models.User, error) {
	query = strings.TrimSpace(query)
	if query == "" || limit <= 0 {
		return []models.User{}, nil
	}
	pattern := gateway.Contains(query)
	take := limit
	if excludeID != "" {
		take++
	}
	q := gateway.Select(gateway.Or(
		gateway.ILike("full_name", pattern),
		gateway.ILike("username", pattern),
	)).Take(take)

	var rows []models.User
	if err := r.data.Select(ctx, gateway.TableUsers, q, &rows); err != nil {
		return nil, err
	}
	users := make([]models.User, 0, len(rows))
	for _, u := range rows {
		if u.ID == excludeID {
			continue
		}
		users = append(users, u)
		if len(users) == limit {
			break
		}
	}
	return users, nil
}

func (r *userRepository) IsUsernameAvailable(ctx context.Context, username, excludeUserID string) (bool, error) {
	var rows []models.User
	q := gateway.Select(gateway.Eq("username_lower", strings.ToLower(username))).Project("id")
	if err := r.data.Select(ctx, gateway.TableUsers, q, &rows); err != nil {
		return false, err
	}
	for _, u := range rows {
		if u.ID != excludeUserID {
			return false, nil
		}
	}
	return true, nil
}

// SanitizeUsername lowercases base, keeps [a-z0-9_] and caps the length.
func SanitizeUsername(base string) string {
	var b strings.Builder
	for _, ch := range strings.ToLower(base) {
		if (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9') || ch == '_' {
			b.WriteRune(ch)
			if b.Len() == maxUsernameLength {
				break
			}
		}
	}
	if b.Len() == 0 {
		return defaultUsername
	}
	return b.String()
}

// GenerateUniqueUsername probes base, base_1, base_2, ... until one is free.
// The probe is not atomic; the unique index on username_lower is what
// actually guards the later write.
func (r *userRepository) GenerateUniqueUsername(ctx context.Context, base string) (string, error) {
	base = SanitizeUsername(base)
	candidate := base
	for i := 1; i <= maxUsernameProbes; i++ {
		ok, err := r.IsUsernameAvailable(ctx, candidate, "")
		if err != nil {
			return "", err
		}
		if ok {
			return candidate, nil
		}
		candidate = base + "_" + strconv.Itoa(i)
	}
	return "", models.NewConflictError(fmt.Sprintf("no free username for %q", base), nil)
}

func (r *userRepository) CreateOrUpdate(ctx context.Context, user *models.User) error {
	if user.ID == "" || user.Username == "" {
		return models.NewValidationError("user id and username are required")
	}
	user.UsernameLower = strings.ToLower(user.Username)
	row := map[string]any{
		"id":             user.ID,
		"username":       user.Username,
		"username_lower": user.UsernameLower,
	}
	// absent optional columns keep their stored value
	for col, v := range map[string]*string{
		"full_name":  user.FullName,
		"email":      user.Email,
		"provider":   user.Provider,
		"avatar_url": user.AvatarURL,
		"bio":        user.Bio,
	} {
		if v != nil {
			row[col] = *v
		}
	}
	if !user.CreatedAt.IsZero() {
		row["created_at"] = user.CreatedAt
	}
	if err := r.data.Upsert(ctx, gateway.TableUsers, row, "id"); err != nil {
		return err
	}
	r.cache.InvalidateAuthor(ctx, user.ID)
	return nil
}

func (r *userRepository) UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (*models.User, error) {
	values := map[string]any{}
	if upd.FullName != nil {
		values["full_name"] = strings.TrimSpace(*upd.FullName)
	}
	if upd.Username != nil {
		values["username"] = *upd.Username
		values["username_lower"] = strings.ToLower(*upd.Username)
	}
	if upd.Bio != nil {
		values["bio"] = *upd.Bio
	}
	if upd.AvatarURL != nil {
		values["avatar_url"] = *upd.AvatarURL
	}
	if len(values) > 0 {
		if err := r.data.Update(ctx, gateway.TableUsers, gateway.Where(gateway.Eq("id", id)), values); err != nil {
			if models.IsConflict(err) {
				return nil, models.NewConflictError("username is already taken", err)
			}
			return nil, err
		}
		r.cache.InvalidateAuthor(ctx, id)
	}
	return r.GetByID(ctx, id)
}

// UploadAvatar stores the avatar under a per-user path, replacing the old
// one, and returns a URL that changes on every upload.
func (r *userRepository) UploadAvatar(ctx context.Context, userID string, data []byte) (string, error) {
	img, err := toJPEG(data, AvatarMaxSize)
	if err != nil {
		return "", err
	}
	path := userID + "/avatar.jpg"
	if err := r.storage.Upload(ctx, gateway.BucketAvatars, path, img, jpegContentType, true); err != nil {
		return "", err
	}
	url := r.storage.PublicURL(gateway.BucketAvatars, path)
	return url + "?v=" + strconv.FormatInt(r.now().UnixMilli(), 10), nil
}

func (r *userRepository) UpdateAvatarURL(ctx context.Context, id, url string) error {
	err := r.data.Update(ctx, gateway.TableUsers, gateway.Where(gateway.Eq("id", id)), map[string]any{"avatar_url": url})
	if err != nil {
		return err
	}
	r.cache.InvalidateAuthor(ctx, id)
	return nil
}

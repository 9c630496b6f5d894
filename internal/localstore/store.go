// Package localstore keeps device-local state in Redis: the last-known
// profile for first paint, the recent-search list and the auth session.
package localstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"frzterr/internal/gateway"
	"frzterr/internal/models"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// MaxRecentSearches is the length of the recent-search list.
const MaxRecentSearches = 10

const (
	profileKeyFmt = "frzterr:%s:profile"
	recentZKeyFmt = "frzterr:%s:recent:order"
	recentHKeyFmt = "frzterr:%s:recent:entries"
	sessionKeyFmt = "frzterr:%s:session"
)

// Store is the local store of one device. Keys are namespaced by device id
// so several devices can share a Redis instance.
type Store struct {
	rdb    redis.Cmdable
	device string
	now    func() time.Time
}

// New creates a Store for deviceID.
func New(rdb redis.Cmdable, deviceID string) *Store {
	if deviceID == "" {
		deviceID = "default"
	}
	return &Store{rdb: rdb, device: deviceID, now: time.Now}
}

func (s *Store) key(format string) string {
	return fmt.Sprintf(format, s.device)
}

// SaveProfile replaces the cached profile.
func (s *Store) SaveProfile(ctx context.Context, p models.CachedProfile) error {
	key := s.key(profileKeyFmt)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, map[string]any{
			"name":        p.Name,
			"avatar_url":  p.AvatarURL,
			"username":    p.Username,
			"avatar_path": p.AvatarPath,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

// LoadProfile returns the cached profile, zero-valued when none is stored.
func (s *Store) LoadProfile(ctx context.Context) (models.CachedProfile, error) {
	vals, err := s.rdb.HGetAll(ctx, s.key(profileKeyFmt)).Result()
	if err != nil {
		return models.CachedProfile{}, fmt.Errorf("load profile: %w", err)
	}
	return models.CachedProfile{
		Name:       vals["name"],
		AvatarURL:  vals["avatar_url"],
		Username:   vals["username"],
		AvatarPath: vals["avatar_path"],
	}, nil
}

func (s *Store) ClearProfile(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.key(profileKeyFmt)).Err(); err != nil {
		return fmt.Errorf("clear profile: %w", err)
	}
	return nil
}

// AddRecent puts e at the front of the recent searches. An entry for the
// same user is replaced and the list is trimmed to MaxRecentSearches.
// e.Timestamp is overwritten with a value later than every stored entry.
func (s *Store) AddRecent(ctx context.Context, e models.RecentSearchEntry) error {
	zkey, hkey := s.key(recentZKeyFmt), s.key(recentHKeyFmt)

	ts := s.now().UnixMilli()
	top, err := s.rdb.ZRevRangeWithScores(ctx, zkey, 0, 0).Result()
	if err != nil {
		return fmt.Errorf("add recent search: %w", err)
	}
	if len(top) > 0 && int64(top[0].Score) >= ts {
		ts = int64(top[0].Score) + 1
	}
	e.Timestamp = ts

	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("add recent search: %w", err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, zkey, redis.Z{Score: float64(ts), Member: e.UserID})
		pipe.HSet(ctx, hkey, e.UserID, b)
		return nil
	})
	if err != nil {
		return fmt.Errorf("add recent search: %w", err)
	}

	evicted, err := s.rdb.ZRange(ctx, zkey, 0, -(MaxRecentSearches + 1)).Result()
	if err != nil {
		return fmt.Errorf("trim recent searches: %w", err)
	}
	if len(evicted) == 0 {
		return nil
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		members := make([]any, len(evicted))
		for i, id := range evicted {
			members[i] = id
		}
		pipe.ZRem(ctx, zkey, members...)
		pipe.HDel(ctx, hkey, evicted...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("trim recent searches: %w", err)
	}
	return nil
}

// ListRecent returns the recent searches, newest first.
func (s *Store) ListRecent(ctx context.Context) ([]models.RecentSearchEntry, error) {
	zkey, hkey := s.key(recentZKeyFmt), s.key(recentHKeyFmt)
	ids, err := s.rdb.ZRevRange(ctx, zkey, 0, MaxRecentSearches-1).Result()
	if err != nil {
		return nil, fmt.Errorf("list recent searches: %w", err)
	}
	out := make([]models.RecentSearchEntry, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	vals, err := s.rdb.HMGet(ctx, hkey, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("list recent searches: %w", err)
	}
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var e models.RecentSearchEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) RemoveRecent(ctx context.Context, userID string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, s.key(recentZKeyFmt), userID)
		pipe.HDel(ctx, s.key(recentHKeyFmt), userID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove recent search: %w", err)
	}
	return nil
}

func (s *Store) ClearRecent(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.key(recentZKeyFmt), s.key(recentHKeyFmt)).Err(); err != nil {
		return fmt.Errorf("clear recent searches: %w", err)
	}
	return nil
}

// LoadSession implements gateway.SessionStore. A missing session is
// (nil, nil).
func (s *Store) LoadSession(ctx context.Context) (*gateway.Session, error) {
	raw, err := s.rdb.Get(ctx, s.key(sessionKeyFmt)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	var sess gateway.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

// SaveSession implements gateway.SessionStore. A nil session clears it.
func (s *Store) SaveSession(ctx context.Context, sess *gateway.Session) error {
	if sess == nil {
		return s.ClearSession(ctx)
	}
	b, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key(sessionKeyFmt), b, 0).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// ClearSession implements gateway.SessionStore.
func (s *Store) ClearSession(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.key(sessionKeyFmt)).Err(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

var _ gateway.SessionStore = (*Store)(nil)

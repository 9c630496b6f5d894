package repository

import (
	"context"
	"time"

	"frzterr/internal/gateway"
	"frzterr/internal/models"
)

// FollowRepository defines persistence operations for follow edges.
type FollowRepository interface {
	Follow(ctx context.Context, followerID, followingID string) error
	Unfollow(ctx context.Context, followerID, followingID string) error
	IsFollowing(ctx context.Context, followerID, followingID string) (bool, error)
	ToggleFollow(ctx context.Context, followerID, followingID string, currentlyFollowing bool) (bool, error)
	FollowerCount(ctx context.Context, userID string) (int, error)
	FollowingCount(ctx context.Context, userID string) (int, error)
	FollowingIDs(ctx context.Context, userID string) ([]string, error)
}

type followRepository struct {
	data gateway.Data
	now  func() time.Time
}

// NewFollowRepository returns a new FollowRepository implementation.
func NewFollowRepository(data gateway.Data) FollowRepository {
	return &followRepository{data: data, now: time.Now}
}

func edge(followerID, followingID string) gateway.Filter {
	return gateway.Where(gateway.Eq("follower_id", followerID), gateway.Eq("following_id", followingID))
}

func (r *followRepository) Follow(ctx context.Context, followerID, followingID string) error {
	if followerID == followingID {
		return models.NewValidationError("cannot follow yourself")
	}
	err := r.data.Insert(ctx, gateway.TableFollows, &models.Follow{
		FollowerID:  followerID,
		FollowingID: followingID,
		CreatedAt:   r.now().UTC(),
	})
	if models.IsConflict(err) {
		return nil
	}
	return err
}

func (r *followRepository) Unfollow(ctx context.Context, followerID, followingID string) error {
	return r.data.Delete(ctx, gateway.TableFollows, edge(followerID, followingID))
}

func (r *followRepository) IsFollowing(ctx context.Context, followerID, followingID string) (bool, error) {
	if followerID == "" || followerID == followingID {
		return false, nil
	}
	n, err := r.data.Count(ctx, gateway.TableFollows, edge(followerID, followingID))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *followRepository) ToggleFollow(ctx context.Context, followerID, followingID string, currentlyFollowing bool) (bool, error) {
	if currentlyFollowing {
		return false, r.Unfollow(ctx, followerID, followingID)
	}
	return true, r.Follow(ctx, followerID, followingID)
}

func (r *followRepository) FollowerCount(ctx context.Context, userID string) (int, error) {
	return r.data.Count(ctx, gateway.TableFollows, gateway.Where(gateway.Eq("following_id", userID)))
}

func (r *followRepository) FollowingCount(ctx context.Context, userID string) (int, error) {
	return r.data.Count(ctx, gateway.TableFollows, gateway.Where(gateway.Eq("follower_id", userID)))
}

func (r *followRepository) FollowingIDs(ctx context.Context, userID string) ([]string, error) {
	var rows []models.Follow
	q := gateway.Select(gateway.Eq("follower_id", userID)).Project("following_id")
	if err := r.data.Select(ctx, gateway.TableFollows, q, &rows); err != nil {
		return nil, err
	}
	ids := make([]string, len(rows))
	for i, f := range rows {
		ids[i] = f.FollowingID
	}
	return ids, nil
}

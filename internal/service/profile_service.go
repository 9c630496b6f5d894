package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"frzterr/internal/feed"
	"frzterr/internal/models"
	"frzterr/internal/observability"
	"frzterr/internal/repository"
	"frzterr/internal/validation"

	"golang.org/x/sync/errgroup"
)

// ProfileUpdateInput lists the profile fields to change; nil fields are
// kept.
type ProfileUpdateInput struct {
	FullName *string `json:"full_name,omitempty" validate:"omitempty,display_name"`
	Username *string `json:"username,omitempty" validate:"omitempty,username"`
	Bio      *string `json:"bio,omitempty" validate:"omitempty,max=160"`
}

// ProfileView is everything the profile screen shows.
type ProfileView struct {
	User           *models.User                 `json:"user"`
	Cached         *models.CachedProfile        `json:"cached,omitempty"`
	Posts          []models.PostWithViewerState `json:"posts"`
	Reposts        []models.PostWithViewerState `json:"reposts"`
	FollowerCount  int                          `json:"follower_count"`
	FollowingCount int                          `json:"following_count"`
	IsFollowing    bool                         `json:"is_following"`
	IsSelf         bool                         `json:"is_self"`
}

// FollowState is the result of a follow toggle.
type FollowState struct {
	IsFollowing   bool `json:"is_following"`
	FollowerCount int  `json:"follower_count"`
}

// ProfileService loads and edits profiles. Post lists go through the feed
// controllers so likes on the profile screen behave like on the home feed.
type ProfileService struct {
	users   repository.UserRepository
	follows repository.FollowRepository
	feeds   *Feeds
	profile ProfileCache
}

func NewProfileService(users repository.UserRepository, follows repository.FollowRepository, feeds *Feeds, profile ProfileCache) *ProfileService {
	return &ProfileService{users: users, follows: follows, feeds: feeds, profile: profile}
}

// CachedProfile returns the viewer's first-paint profile.
func (s *ProfileService) CachedProfile(ctx context.Context) (models.CachedProfile, error) {
	return s.profile.LoadProfile(ctx)
}

// Load fetches userID's profile as seen by viewerID. The user, both post
// lists and the follow numbers are fetched in parallel.
func (s *ProfileService) Load(ctx context.Context, viewerID, userID string) (*ProfileView, error) {
	view := &ProfileView{IsSelf: viewerID != "" && viewerID == userID}
	if view.IsSelf {
		if cached, err := s.profile.LoadProfile(ctx); err == nil && !cached.Empty() {
			view.Cached = &cached
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u, err := s.users.GetByID(gctx, userID)
		view.User = u
		return err
	})
	g.Go(func() error {
		posts, err := s.feedPosts(gctx, feed.ByAuthor(userID))
		view.Posts = posts
		return err
	})
	g.Go(func() error {
		posts, err := s.feedPosts(gctx, feed.RepostedBy(userID))
		view.Reposts = posts
		return err
	})
	g.Go(func() error {
		n, err := s.follows.FollowerCount(gctx, userID)
		view.FollowerCount = n
		return err
	})
	g.Go(func() error {
		n, err := s.follows.FollowingCount(gctx, userID)
		view.FollowingCount = n
		return err
	})
	g.Go(func() error {
		ok, err := s.follows.IsFollowing(gctx, viewerID, userID)
		view.IsFollowing = ok
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if view.IsSelf {
		s.cache(ctx, view.User)
	}
	return view, nil
}

func (s *ProfileService) feedPosts(ctx context.Context, scope feed.Scope) ([]models.PostWithViewerState, error) {
	ctl := s.feeds.Feed(scope)
	snap, err := ctl.Load(ctx)
	if errors.Is(err, ErrSuperseded) {
		return ctl.Snapshot().Posts, nil
	}
	if err != nil {
		return nil, err
	}
	return snap.Posts, nil
}

// UpdateProfile edits the viewer's profile. A new username must be free
// among other users.
func (s *ProfileService) UpdateProfile(ctx context.Context, viewerID string, in ProfileUpdateInput) (*models.User, error) {
	if viewerID == "" {
		return nil, ErrSignedOut
	}
	if in.FullName != nil {
		v := strings.TrimSpace(*in.FullName)
		in.FullName = &v
	}
	if in.Username != nil {
		v := strings.ToLower(strings.TrimSpace(*in.Username))
		in.Username = &v
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	if in.Username != nil {
		ok, err := s.users.IsUsernameAvailable(ctx, *in.Username, viewerID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, models.NewConflictError("username is already taken", nil)
		}
	}

	user, err := s.users.UpdateProfile(ctx, viewerID, repository.ProfileUpdate{
		FullName: in.FullName,
		Username: in.Username,
		Bio:      in.Bio,
	})
	if err != nil {
		return nil, err
	}
	s.cache(ctx, user)
	return user, nil
}

// UploadAvatar stores a new avatar for the viewer and points the profile at
// it. The returned URL carries a version query so clients refetch it.
func (s *ProfileService) UploadAvatar(ctx context.Context, viewerID string, data []byte) (string, error) {
	if viewerID == "" {
		return "", ErrSignedOut
	}
	if len(data) == 0 {
		return "", models.NewValidationError("avatar image is required")
	}
	url, err := s.users.UploadAvatar(ctx, viewerID, data)
	if err != nil {
		return "", err
	}
	if err := s.users.UpdateAvatarURL(ctx, viewerID, url); err != nil {
		return "", err
	}
	if user, err := s.users.GetByID(ctx, viewerID); err == nil {
		s.cache(ctx, user)
	}
	return url, nil
}

// ToggleFollow follows or unfollows targetID and returns the new state.
func (s *ProfileService) ToggleFollow(ctx context.Context, viewerID, targetID string) (*FollowState, error) {
	if viewerID == "" {
		return nil, ErrSignedOut
	}
	following, err := s.follows.IsFollowing(ctx, viewerID, targetID)
	if err != nil {
		return nil, err
	}
	now, err := s.follows.ToggleFollow(ctx, viewerID, targetID, following)
	if err != nil {
		return nil, err
	}
	n, err := s.follows.FollowerCount(ctx, targetID)
	if err != nil {
		return nil, err
	}
	return &FollowState{IsFollowing: now, FollowerCount: n}, nil
}

func (s *ProfileService) cache(ctx context.Context, u *models.User) {
	if u == nil {
		return
	}
	if err := s.profile.SaveProfile(ctx, cachedFrom(u)); err != nil {
		observability.GlobalLogger.WarnContext(ctx, "caching profile failed", slog.String("error", err.Error()))
	}
}

package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"frzterr/internal/models"
	"frzterr/internal/observability"
	"frzterr/internal/repository"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// DefaultAuthorConcurrency bounds parallel author lookups per aggregation.
const DefaultAuthorConcurrency = 8

// Aggregator builds feeds from the post, comment and user repositories.
type Aggregator struct {
	posts    repository.PostRepository
	comments repository.CommentRepository
	users    repository.UserRepository

	authorConcurrency int
}

// NewAggregator creates an Aggregator.
func NewAggregator(posts repository.PostRepository, comments repository.CommentRepository, users repository.UserRepository) *Aggregator {
	return &Aggregator{
		posts:             posts,
		comments:          comments,
		users:             users,
		authorConcurrency: DefaultAuthorConcurrency,
	}
}

// Posts is LoadPosts with failures logged and swallowed into an empty list.
// Callers cannot tell an empty feed from a failed one.
func (a *Aggregator) Posts(ctx context.Context, viewerID string, scope Scope) []models.PostWithViewerState {
	posts, err := a.LoadPosts(ctx, viewerID, scope)
	if err != nil {
		observability.GlobalLogger.ErrorContext(ctx, "feed aggregation failed",
			slog.String("scope", scope.String()),
			slog.String("scope_user_id", scope.UserID),
			slog.String("error", err.Error()),
		)
		return []models.PostWithViewerState{}
	}
	return posts
}

// LoadPosts fetches the posts in scope and joins them with their authors,
// recomputed counts and the viewer's like and repost flags, newest first.
// Posts whose author cannot be resolved are dropped.
func (a *Aggregator) LoadPosts(ctx context.Context, viewerID string, scope Scope) (_ []models.PostWithViewerState, err error) {
	ctx, span := observability.StartInternalSpan(ctx, "feed.aggregate",
		attribute.String("feed.scope", scope.String()))
	start := time.Now()
	defer func() {
		span.SetError(err)
		span.End()
		observability.FeedAggregationDuration.WithLabelValues(scope.String()).Observe(time.Since(start).Seconds())
	}()

	posts, err := a.scoped(ctx, scope)
	if err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return []models.PostWithViewerState{}, nil
	}

	ids := distinct(len(posts), func(i int) string { return posts[i].ID })

	var (
		likes    []models.Like
		comments []models.Comment
		reposts  []models.Repost
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		likes, err = a.posts.LikesFor(gctx, ids)
		return err
	})
	g.Go(func() (err error) {
		comments, err = a.comments.ForPosts(gctx, ids)
		return err
	})
	g.Go(func() (err error) {
		reposts, err = a.posts.RepostsFor(gctx, ids)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	likeCount := make(map[string]int, len(ids))
	liked := make(map[string]bool)
	for _, l := range likes {
		likeCount[l.PostID]++
		if l.UserID == viewerID {
			liked[l.PostID] = true
		}
	}
	commentCount := make(map[string]int, len(ids))
	for _, c := range comments {
		commentCount[c.PostID]++
	}
	repostCount := make(map[string]int, len(ids))
	reposted := make(map[string]bool)
	for _, r := range reposts {
		repostCount[r.PostID]++
		if r.UserID == viewerID {
			reposted[r.PostID] = true
		}
	}

	authors, err := a.authors(ctx, distinct(len(posts), func(i int) string { return posts[i].UserID }))
	if err != nil {
		return nil, err
	}

	out := make([]models.PostWithViewerState, 0, len(posts))
	for _, p := range posts {
		author, ok := authors[p.UserID]
		if !ok {
			observability.GlobalLogger.DebugContext(ctx, "dropping orphan post",
				slog.String("post_id", p.ID), slog.String("user_id", p.UserID))
			continue
		}
		p.LikeCount = likeCount[p.ID]
		p.CommentCount = commentCount[p.ID]
		p.RepostCount = repostCount[p.ID]
		out = append(out, models.PostWithViewerState{
			Post:       p,
			Author:     author,
			IsLiked:    liked[p.ID],
			IsReposted: reposted[p.ID],
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Post.CreatedAt.After(out[j].Post.CreatedAt)
	})
	return out, nil
}

func (a *Aggregator) scoped(ctx context.Context, scope Scope) ([]models.Post, error) {
	switch scope.Kind {
	case KindAuthor:
		return a.posts.ListByAuthor(ctx, scope.UserID)
	case KindReposts:
		reposts, err := a.posts.RepostsByUser(ctx, scope.UserID)
		if err != nil {
			return nil, err
		}
		ids := distinct(len(reposts), func(i int) string { return reposts[i].PostID })
		return a.posts.ListByIDs(ctx, ids)
	default:
		return a.posts.ListAll(ctx)
	}
}

// authors looks up each id once. A missing row leaves the id out of the
// result; any other failure fails the whole lookup.
func (a *Aggregator) authors(ctx context.Context, ids []string) (map[string]models.User, error) {
	var mu sync.Mutex
	found := make(map[string]models.User, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.authorConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			u, err := a.users.GetByID(gctx, id)
			if models.IsNotFound(err) {
				observability.GlobalLogger.DebugContext(ctx, "author not found",
					slog.String("user_id", id))
				return nil
			}
			if err != nil {
				return fmt.Errorf("resolve author %s: %w", id, err)
			}
			mu.Lock()
			found[id] = *u
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return found, nil
}

// distinct returns the distinct non-empty keys of n items in first-seen order.
func distinct(n int, key func(int) string) []string {
	seen := make(map[string]struct{}, n)
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		k := key(i)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
